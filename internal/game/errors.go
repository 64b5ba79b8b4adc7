package game

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientEnergy   = errors.New("insufficient energy")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrUpgradeMaxed         = errors.New("upgrade already at max tier")
	ErrUnknownUpgrade       = errors.New("unknown upgrade kind")
	ErrBonusNotReady        = errors.New("daily bonus not ready")
	ErrTaskAlreadyCompleted = errors.New("task already completed")
	ErrTaskNotEligible      = errors.New("task requirement not met")
	ErrUnknownTask          = errors.New("unknown task")
	ErrUnknownCode          = errors.New("unknown referral code")
	ErrSelfReferral         = errors.New("cannot use your own referral code")
	ErrAlreadyReferred      = errors.New("player already referred")
	ErrPlayerNotFound       = errors.New("player not found")
	ErrStorageConflict      = errors.New("storage conflict, retry")
	ErrInvalidInput         = errors.New("invalid input")

	// ErrDuplicateKey is returned by a Store when a unique constraint rejects a write.
	ErrDuplicateKey = errors.New("duplicate key")
)

// corruptError marks a persisted record that fails invariant checks. It
// matches ErrPlayerNotFound so callers treat the record as unusable.
type corruptError struct {
	playerID string
	reason   string
}

func (e *corruptError) Error() string {
	return fmt.Sprintf("player %s: corrupt record: %s", e.playerID, e.reason)
}

func (e *corruptError) Is(target error) bool {
	return target == ErrPlayerNotFound
}

func IsCorrupt(err error) bool {
	var c *corruptError
	return errors.As(err, &c)
}

var codes = []struct {
	err  error
	code string
}{
	{ErrInsufficientEnergy, "insufficient_energy"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrUpgradeMaxed, "upgrade_maxed"},
	{ErrUnknownUpgrade, "unknown_upgrade"},
	{ErrBonusNotReady, "bonus_not_ready"},
	{ErrTaskAlreadyCompleted, "task_already_completed"},
	{ErrTaskNotEligible, "task_not_eligible"},
	{ErrUnknownTask, "unknown_task"},
	{ErrUnknownCode, "unknown_code"},
	{ErrSelfReferral, "self_referral"},
	{ErrAlreadyReferred, "already_referred"},
	{ErrPlayerNotFound, "player_not_found"},
	{ErrStorageConflict, "storage_conflict"},
	{ErrInvalidInput, "invalid_input"},
}

// Code returns the stable machine-readable code for a domain failure, or
// "internal" for anything else.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
