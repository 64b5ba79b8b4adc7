package game

import "tapcoin/internal/economy"

type TaskKind string

const (
	TaskClicks        TaskKind = "clicks"
	TaskLevel         TaskKind = "level"
	TaskCoins         TaskKind = "coins"
	TaskUpgradePower  TaskKind = "upgrade_power"
	TaskUpgradeEnergy TaskKind = "upgrade_energy"
)

type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Kind        TaskKind `json:"kind"`
	Reward      int64    `json:"reward"`
	Requirement int64    `json:"requirement"`
}

var taskCatalog = []Task{
	{ID: "clicks_100", Title: "Tap 100 times", Kind: TaskClicks, Reward: 500, Requirement: 100},
	{ID: "clicks_500", Title: "Tap 500 times", Kind: TaskClicks, Reward: 2000, Requirement: 500},
	{ID: "clicks_1000", Title: "Tap 1000 times", Kind: TaskClicks, Reward: 5000, Requirement: 1000},
	{ID: "level_5", Title: "Reach level 5", Kind: TaskLevel, Reward: 5000, Requirement: 5},
	{ID: "level_10", Title: "Reach level 10", Kind: TaskLevel, Reward: 15000, Requirement: 10},
	{ID: "coins_10k", Title: "Hold 10,000 coins", Kind: TaskCoins, Reward: 10000, Requirement: 10000},
	{ID: "coins_50k", Title: "Hold 50,000 coins", Kind: TaskCoins, Reward: 25000, Requirement: 50000},
	{ID: "upgrade_power", Title: "Buy a click power upgrade", Kind: TaskUpgradePower, Reward: 1000, Requirement: 1},
	{ID: "upgrade_energy", Title: "Buy an energy capacity upgrade", Kind: TaskUpgradeEnergy, Reward: 1500, Requirement: 1},
}

func Tasks() []Task {
	out := make([]Task, len(taskCatalog))
	copy(out, taskCatalog)
	return out
}

func TaskByID(id string) (Task, bool) {
	for _, t := range taskCatalog {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// Progress reads the player's authoritative counter for this task.
func (t Task) Progress(p Player) int64 {
	switch t.Kind {
	case TaskClicks:
		return p.TotalClicks
	case TaskLevel:
		return int64(economy.LevelFor(p.Coins))
	case TaskCoins:
		return p.Coins
	case TaskUpgradePower:
		return int64(p.Upgrades[economy.ClickPower])
	case TaskUpgradeEnergy:
		return int64(p.Upgrades[economy.EnergyCapacity])
	default:
		return 0
	}
}

type TaskView struct {
	Task
	Progress  int64 `json:"progress"`
	Completed bool  `json:"completed"`
	Claimable bool  `json:"claimable"`
}
