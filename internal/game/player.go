package game

import (
	"fmt"
	"sort"
	"time"

	"tapcoin/internal/economy"
)

// Player is the authoritative per-player record. Values are copied between
// operations; use Clone before mutating a shared instance.
type Player struct {
	ID          string
	Username    string
	DisplayName string

	Coins           int64
	Energy          int64
	MaxEnergy       int64
	EnergyRegenRate int64
	CoinsPerClick   int64
	Level           int
	TotalClicks     int64

	CompletedTasks map[string]struct{}
	Upgrades       map[economy.UpgradeKind]int

	LastEnergyUpdateAt    time.Time
	DailyBonusLastClaimAt time.Time
	BonusNotifiedAt       time.Time

	ReferralCode     string
	ReferredBy       string
	ReferralEarnings int64

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

type Profile struct {
	Username    string
	DisplayName string
}

func NewPlayer(id string, profile Profile, referralCode string, now time.Time) Player {
	p := Player{
		ID:                 id,
		Username:           profile.Username,
		DisplayName:        profile.DisplayName,
		Coins:              economy.StarterCoins,
		Energy:             economy.StarterEnergy,
		CompletedTasks:     map[string]struct{}{},
		Upgrades:           map[economy.UpgradeKind]int{},
		LastEnergyUpdateAt: now,
		ReferralCode:       referralCode,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	p.applyDerived()
	return p
}

func (p Player) Clone() Player {
	out := p
	out.CompletedTasks = make(map[string]struct{}, len(p.CompletedTasks))
	for id := range p.CompletedTasks {
		out.CompletedTasks[id] = struct{}{}
	}
	out.Upgrades = make(map[economy.UpgradeKind]int, len(p.Upgrades))
	for k, v := range p.Upgrades {
		out.Upgrades[k] = v
	}
	return out
}

func (p Player) HasCompleted(taskID string) bool {
	_, ok := p.CompletedTasks[taskID]
	return ok
}

func (p Player) CompletedTaskIDs() []string {
	out := make([]string, 0, len(p.CompletedTasks))
	for id := range p.CompletedTasks {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p Player) Name() string {
	switch {
	case p.DisplayName != "":
		return p.DisplayName
	case p.Username != "":
		return p.Username
	default:
		return "Anonymous"
	}
}

func (p Player) DailyBonusReady(now time.Time) bool {
	return p.DailyBonusLastClaimAt.IsZero() || now.Sub(p.DailyBonusLastClaimAt) >= economy.DailyBonusWindow
}

func (p Player) BonusReminderDue(now time.Time) bool {
	if !p.DailyBonusReady(now) {
		return false
	}
	return p.BonusNotifiedAt.IsZero() || !p.BonusNotifiedAt.After(p.DailyBonusLastClaimAt)
}

func (p *Player) applyDerived() {
	st := economy.DerivedStats(p.Upgrades)
	p.CoinsPerClick = st.CoinsPerClick
	p.MaxEnergy = st.MaxEnergy
	p.EnergyRegenRate = st.RegenRate
	p.Level = economy.LevelFor(p.Coins)
}

// Validate checks the record invariants. A failure means the stored record is
// corrupt; the cached level is not checked here because Normalize rebuilds it.
func (p Player) Validate() error {
	corrupt := func(format string, args ...any) error {
		return &corruptError{playerID: p.ID, reason: fmt.Sprintf(format, args...)}
	}
	if p.ID == "" {
		return corrupt("empty id")
	}
	if p.Coins < 0 {
		return corrupt("negative coins %d", p.Coins)
	}
	if p.ReferralEarnings < 0 {
		return corrupt("negative referral earnings %d", p.ReferralEarnings)
	}
	if p.ReferredBy != "" && p.ReferredBy == p.ID {
		return corrupt("self referred")
	}
	for kind, lvl := range p.Upgrades {
		if _, ok := economy.ParseUpgradeKind(string(kind)); !ok {
			return corrupt("unknown upgrade kind %q", kind)
		}
		if lvl < 0 || lvl > economy.MaxTier(kind) {
			return corrupt("upgrade %s tier %d out of bounds", kind, lvl)
		}
	}
	st := economy.DerivedStats(p.Upgrades)
	if p.CoinsPerClick != st.CoinsPerClick || p.MaxEnergy != st.MaxEnergy || p.EnergyRegenRate != st.RegenRate {
		return corrupt("derived stats do not match upgrade tiers")
	}
	if p.Energy < 0 || p.Energy > p.MaxEnergy {
		return corrupt("energy %d outside [0, %d]", p.Energy, p.MaxEnergy)
	}
	return nil
}

func (p Player) Normalize() Player {
	if p.CompletedTasks == nil {
		p.CompletedTasks = map[string]struct{}{}
	}
	if p.Upgrades == nil {
		p.Upgrades = map[economy.UpgradeKind]int{}
	}
	p.Level = economy.LevelFor(p.Coins)
	return p
}

// AccrueEnergy credits regeneration for the time since the last update and
// moves the update timestamp to now. Time going backwards accrues nothing.
func AccrueEnergy(p Player, now time.Time) Player {
	elapsed := now.Sub(p.LastEnergyUpdateAt).Milliseconds()
	gain := economy.EnergyAccrued(elapsed, p.EnergyRegenRate)
	if gain > 0 {
		p.Energy = min(p.MaxEnergy, p.Energy+gain)
	}
	p.LastEnergyUpdateAt = now
	return p
}

type TapEffect struct {
	Gained    int64
	LeveledUp bool
}

func Tap(p Player, now time.Time) (Player, TapEffect, error) {
	p = AccrueEnergy(p.Clone(), now)
	if p.Energy < 1 {
		return p, TapEffect{}, ErrInsufficientEnergy
	}
	prev := p.Level
	p.Energy--
	p.Coins += p.CoinsPerClick
	p.TotalClicks++
	p.Level = economy.LevelFor(p.Coins)
	return p, TapEffect{Gained: p.CoinsPerClick, LeveledUp: p.Level > prev}, nil
}

func PurchaseUpgrade(p Player, kind economy.UpgradeKind) (Player, int64, error) {
	if _, ok := economy.ParseUpgradeKind(string(kind)); !ok {
		return p, 0, ErrUnknownUpgrade
	}
	cost := economy.UpgradeCost(kind, p.Upgrades[kind])
	if cost == economy.Unavailable {
		return p, 0, ErrUpgradeMaxed
	}
	if p.Coins < cost {
		return p, 0, fmt.Errorf("%w: need %d coins, have %d", ErrInsufficientFunds, cost, p.Coins)
	}
	p = p.Clone()
	p.Coins -= cost
	p.Upgrades[kind]++
	st := economy.Stats{CoinsPerClick: p.CoinsPerClick, MaxEnergy: p.MaxEnergy, RegenRate: p.EnergyRegenRate}
	st = st.Apply(economy.UpgradeEffect(kind), 1)
	p.CoinsPerClick, p.MaxEnergy, p.EnergyRegenRate = st.CoinsPerClick, st.MaxEnergy, st.RegenRate
	p.Level = economy.LevelFor(p.Coins)
	return p, cost, nil
}

func ClaimDailyBonus(p Player, now time.Time) (Player, int64, error) {
	if !p.DailyBonusReady(now) {
		return p, 0, ErrBonusNotReady
	}
	amount := economy.DailyBonusAmount(p.Level)
	p = p.Clone()
	p.Coins += amount
	p.DailyBonusLastClaimAt = now
	p.Level = economy.LevelFor(p.Coins)
	return p, amount, nil
}

// CompleteTask credits reward once per task id. progress must come from the
// player's own fields; see Task.Progress.
func CompleteTask(p Player, taskID string, reward, progress, requirement int64) (Player, error) {
	if p.HasCompleted(taskID) {
		return p, ErrTaskAlreadyCompleted
	}
	if progress < requirement {
		return p, fmt.Errorf("%w: progress %d of %d", ErrTaskNotEligible, progress, requirement)
	}
	p = p.Clone()
	p.Coins += reward
	p.CompletedTasks[taskID] = struct{}{}
	p.Level = economy.LevelFor(p.Coins)
	return p, nil
}
