package game

import (
	"crypto/rand"
	"strings"
	"time"
	"unicode"

	"tapcoin/internal/economy"
)

// ReferralRecord is written exactly once per referred player; ReferredID is
// unique across all records.
type ReferralRecord struct {
	ID         string    `json:"id"`
	ReferrerID string    `json:"referrer_id"`
	ReferredID string    `json:"referred_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type RedeemOutcome struct {
	Referrer       Player
	Candidate      Player
	Record         ReferralRecord
	ReferrerReward int64
	ReferredReward int64
}

// ApplyReferral posts both rewards and links candidate to referrer. It is the
// in-memory half of a redemption; the caller persists the record and both
// players in one transaction.
func ApplyReferral(referrer, candidate Player, now time.Time) (Player, Player, ReferralRecord, error) {
	if referrer.ID == candidate.ID {
		return referrer, candidate, ReferralRecord{}, ErrSelfReferral
	}
	if candidate.ReferredBy != "" {
		return referrer, candidate, ReferralRecord{}, ErrAlreadyReferred
	}
	referrer = referrer.Clone()
	candidate = candidate.Clone()

	referrer.Coins += economy.ReferrerReward
	referrer.ReferralEarnings += economy.ReferrerReward
	referrer.Level = economy.LevelFor(referrer.Coins)

	candidate.ReferredBy = referrer.ID
	candidate.Coins += economy.ReferredReward
	candidate.Level = economy.LevelFor(candidate.Coins)

	rec := ReferralRecord{
		ReferrerID: referrer.ID,
		ReferredID: candidate.ID,
		CreatedAt:  now,
	}
	return referrer, candidate, rec, nil
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewReferralCode builds REF + up to 8 trailing alphanumerics of the player
// id + 4 random characters.
func NewReferralCode(playerID string) (string, error) {
	var idPart []rune
	for _, r := range strings.ToUpper(playerID) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			idPart = append(idPart, r)
		}
	}
	if len(idPart) > 8 {
		idPart = idPart[len(idPart)-8:]
	}
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return "REF" + string(idPart) + string(buf), nil
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type ReferredPlayer struct {
	PlayerID   string    `json:"player_id"`
	Name       string    `json:"name"`
	Coins      int64     `json:"coins"`
	ReferredAt time.Time `json:"referred_at"`
}

type ReferralStats struct {
	ReferralCode   string           `json:"referral_code"`
	TotalReferrals int              `json:"total_referrals"`
	TotalEarnings  int64            `json:"total_earnings"`
	Referred       []ReferredPlayer `json:"referred"`
}
