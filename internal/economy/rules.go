package economy

import (
	"sort"
	"time"
)

const (
	StarterCoins         = int64(500)
	StarterEnergy        = int64(1000)
	StarterMaxEnergy     = int64(1000)
	StarterCoinsPerClick = int64(1)
	StarterRegenRate     = int64(1)

	DailyBonusPerLevel = int64(1000)
	DailyBonusWindow   = 24 * time.Hour

	ReferrerReward = int64(1000)
	ReferredReward = int64(500)

	// Unavailable is returned by UpgradeCost once a kind is at its max tier.
	Unavailable = int64(-1)
)

type UpgradeKind string

const (
	ClickPower     UpgradeKind = "clickPower"
	EnergyCapacity UpgradeKind = "energyCapacity"
	EnergyRegen    UpgradeKind = "energyRegen"
)

// Kinds lists every upgrade kind in display order.
var Kinds = []UpgradeKind{ClickPower, EnergyCapacity, EnergyRegen}

// Stat is the derived player attribute an upgrade feeds.
type Stat string

const (
	StatCoinsPerClick Stat = "coins_per_click"
	StatMaxEnergy     Stat = "max_energy"
	StatRegenRate     Stat = "energy_regen_rate"
)

type Effect struct {
	Stat  Stat
	Delta int64
}

var levelThresholds = []int64{0, 100, 500, 1500, 4000, 10000, 25000, 60000, 150000, 400000}

var upgradeCosts = map[UpgradeKind][]int64{
	ClickPower:     {100, 500, 2000, 10000, 50000},
	EnergyCapacity: {200, 1000, 5000, 25000, 100000},
	EnergyRegen:    {150, 750, 3000, 15000, 75000},
}

var upgradeEffects = map[UpgradeKind]Effect{
	ClickPower:     {Stat: StatCoinsPerClick, Delta: 1},
	EnergyCapacity: {Stat: StatMaxEnergy, Delta: 200},
	EnergyRegen:    {Stat: StatRegenRate, Delta: 1},
}

func ParseUpgradeKind(s string) (UpgradeKind, bool) {
	k := UpgradeKind(s)
	_, ok := upgradeCosts[k]
	return k, ok
}

// MaxLevel is the highest level LevelFor can return.
func MaxLevel() int {
	return len(levelThresholds)
}

// LevelFor returns the 1-based level for a coin balance: one plus the highest
// threshold index the balance reaches. Negative balances map to level 1.
func LevelFor(coins int64) int {
	i := sort.Search(len(levelThresholds), func(i int) bool {
		return levelThresholds[i] > coins
	})
	if i == 0 {
		return 1
	}
	return i
}

// LevelThreshold returns the coins required to reach level, or Unavailable past the table.
func LevelThreshold(level int) int64 {
	if level < 1 || level > len(levelThresholds) {
		return Unavailable
	}
	return levelThresholds[level-1]
}

func MaxTier(kind UpgradeKind) int {
	return len(upgradeCosts[kind])
}

func UpgradeCost(kind UpgradeKind, currentLevel int) int64 {
	costs, ok := upgradeCosts[kind]
	if !ok || currentLevel < 0 || currentLevel >= len(costs) {
		return Unavailable
	}
	return costs[currentLevel]
}

func UpgradeEffect(kind UpgradeKind) Effect {
	return upgradeEffects[kind]
}

// EnergyAccrued is floor(elapsed seconds) * regenRate. Negative elapsed time
// (clock skew) accrues nothing.
func EnergyAccrued(elapsedMillis, regenRate int64) int64 {
	if elapsedMillis <= 0 || regenRate <= 0 {
		return 0
	}
	return (elapsedMillis / 1000) * regenRate
}

func DailyBonusAmount(level int) int64 {
	if level < 1 {
		level = 1
	}
	return DailyBonusPerLevel * int64(level)
}

// Stats holds the attributes derived from upgrade tiers.
type Stats struct {
	CoinsPerClick int64
	MaxEnergy     int64
	RegenRate     int64
}

// DerivedStats recomputes the upgrade-driven stats from tier levels.
func DerivedStats(levels map[UpgradeKind]int) Stats {
	out := Stats{
		CoinsPerClick: StarterCoinsPerClick,
		MaxEnergy:     StarterMaxEnergy,
		RegenRate:     StarterRegenRate,
	}
	for _, kind := range Kinds {
		out = out.Apply(UpgradeEffect(kind), levels[kind])
	}
	return out
}

// Apply adds times*effect to the matching stat.
func (s Stats) Apply(e Effect, times int) Stats {
	d := e.Delta * int64(times)
	switch e.Stat {
	case StatCoinsPerClick:
		s.CoinsPerClick += d
	case StatMaxEnergy:
		s.MaxEnergy += d
	case StatRegenRate:
		s.RegenRate += d
	}
	return s
}
