package game

import (
	"time"

	"tapcoin/internal/economy"
)

type Summary struct {
	PlayerID         string        `json:"player_id"`
	Name             string        `json:"name"`
	Coins            int64         `json:"coins"`
	Energy           int64         `json:"energy"`
	MaxEnergy        int64         `json:"max_energy"`
	EnergyRegenRate  int64         `json:"energy_regen_rate"`
	CoinsPerClick    int64         `json:"coins_per_click"`
	Level            int           `json:"level"`
	NextLevelAt      int64         `json:"next_level_at"`
	TotalClicks      int64         `json:"total_clicks"`
	Upgrades         []UpgradeView `json:"upgrades"`
	CompletedTasks   []string      `json:"completed_tasks"`
	DailyBonusReady  bool          `json:"daily_bonus_ready"`
	DailyBonusAmount int64         `json:"daily_bonus_amount"`
	DailyBonusNextAt *time.Time    `json:"daily_bonus_next_at,omitempty"`
	ReferralCode     string        `json:"referral_code"`
	ReferredBy       string        `json:"referred_by,omitempty"`
	ReferralEarnings int64         `json:"referral_earnings"`
	EnergyUpdatedAt  time.Time     `json:"energy_updated_at"`
}

type UpgradeView struct {
	Kind     economy.UpgradeKind `json:"kind"`
	Level    int                 `json:"level"`
	MaxTier  int                 `json:"max_tier"`
	NextCost int64               `json:"next_cost"`
	Maxed    bool                `json:"maxed"`
}

// ActionResult is returned by every mutating operation: the authoritative
// summary after the change plus the coin delta it caused.
type ActionResult struct {
	Player    Summary `json:"player"`
	Delta     int64   `json:"delta"`
	LeveledUp bool    `json:"leveled_up,omitempty"`
}

type RedeemResult struct {
	Player         Summary `json:"player"`
	ReferrerID     string  `json:"referrer_id"`
	ReferrerName   string  `json:"referrer_name"`
	ReferredReward int64   `json:"referred_reward"`
}

type LeaderboardRow struct {
	Rank        int64  `json:"rank"`
	PlayerID    string `json:"player_id"`
	Name        string `json:"name"`
	Coins       int64  `json:"coins"`
	Level       int    `json:"level"`
	TotalClicks int64  `json:"total_clicks"`
}

func Summarize(p Player, now time.Time) Summary {
	out := Summary{
		PlayerID:         p.ID,
		Name:             p.Name(),
		Coins:            p.Coins,
		Energy:           p.Energy,
		MaxEnergy:        p.MaxEnergy,
		EnergyRegenRate:  p.EnergyRegenRate,
		CoinsPerClick:    p.CoinsPerClick,
		Level:            p.Level,
		NextLevelAt:      economy.LevelThreshold(p.Level + 1),
		TotalClicks:      p.TotalClicks,
		CompletedTasks:   p.CompletedTaskIDs(),
		DailyBonusReady:  p.DailyBonusReady(now),
		DailyBonusAmount: economy.DailyBonusAmount(p.Level),
		ReferralCode:     p.ReferralCode,
		ReferredBy:       p.ReferredBy,
		ReferralEarnings: p.ReferralEarnings,
		EnergyUpdatedAt:  p.LastEnergyUpdateAt,
	}
	if !out.DailyBonusReady {
		next := p.DailyBonusLastClaimAt.Add(economy.DailyBonusWindow)
		out.DailyBonusNextAt = &next
	}
	for _, kind := range economy.Kinds {
		lvl := p.Upgrades[kind]
		cost := economy.UpgradeCost(kind, lvl)
		out.Upgrades = append(out.Upgrades, UpgradeView{
			Kind:     kind,
			Level:    lvl,
			MaxTier:  economy.MaxTier(kind),
			NextCost: cost,
			Maxed:    cost == economy.Unavailable,
		})
	}
	return out
}
