package game

import (
	"context"
	"time"
)

// Tx is the subset of Store available inside Transact. Every write in a Tx
// commits or rolls back together.
type Tx interface {
	// Load returns ErrPlayerNotFound when no player has id.
	Load(ctx context.Context, id string) (Player, error)
	LoadByReferralCode(ctx context.Context, code string) (Player, error)
	// Save writes p if the stored version still equals p.Version and returns
	// the record with its new version. A stale version yields ErrStorageConflict.
	Save(ctx context.Context, p Player) (Player, error)
	// InsertReferralRecord returns ErrDuplicateKey when rec.ReferredID already
	// has a record.
	InsertReferralRecord(ctx context.Context, rec ReferralRecord) error
}

// Store is the persistence gateway the engine runs against.
type Store interface {
	Tx
	// Create inserts p unless a player with the same id exists and returns the
	// stored record either way. A referral code collision yields ErrDuplicateKey.
	Create(ctx context.Context, p Player) (Player, error)
	// Transact runs fn in one atomic transaction. Serialization failures
	// surface as ErrStorageConflict.
	Transact(ctx context.Context, fn func(tx Tx) error) error
	// TopPlayers orders by coins descending then id ascending.
	TopPlayers(ctx context.Context, limit, offset int) ([]Player, error)
	// ReferralsBy returns records for referrerID, newest first.
	ReferralsBy(ctx context.Context, referrerID string) ([]ReferralRecord, error)
	// DailyBonusDue lists players whose last claim is at or before cutoff and
	// who have not been reminded since that claim.
	DailyBonusDue(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

type Event string

const (
	EventReferralRedeemed    Event = "referral_redeemed"
	EventDailyBonusAvailable Event = "daily_bonus_available"
)

type Notification struct {
	PlayerID string
	Event    Event
	Amount   int64
	// Counterparty is the display name of the other player, when there is one.
	Counterparty string
}

// Notifier delivers out-of-band messages. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LeaderboardCache stores rendered leaderboard pages for a short time.
type LeaderboardCache interface {
	Get(ctx context.Context, limit, offset int) ([]LeaderboardRow, bool)
	Put(ctx context.Context, limit, offset int, rows []LeaderboardRow)
}
