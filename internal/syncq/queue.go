// Package syncq keeps commands the CLI could not deliver while offline. Only
// commands the API accepts on /v1/sync/replay are queued; taps are never
// replayed because energy is time dependent.
package syncq

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"tapcoin/internal/cli"

	"github.com/google/uuid"
)

const (
	TypeDailyBonus   = "daily_bonus"
	TypeCompleteTask = "complete_task"
	TypeRedeem       = "redeem"
)

type Command struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Arg  string `json:"arg,omitempty"`
}

// New stamps a command with a fresh id so replay results can be matched back.
func New(kind, arg string) (Command, error) {
	switch kind {
	case TypeDailyBonus, TypeCompleteTask, TypeRedeem:
	default:
		return Command{}, fmt.Errorf("command %q cannot be queued", kind)
	}
	return Command{ID: uuid.NewString(), Type: kind, Arg: arg}, nil
}

func queuePath() (string, error) {
	dir, err := cli.BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Push appends cmd unless an identical command is already waiting.
func Push(cmd Command) error {
	commands, err := Load()
	if err != nil {
		return err
	}
	for _, c := range commands {
		if c.Type == cmd.Type && c.Arg == cmd.Arg {
			return nil
		}
	}
	commands = append(commands, cmd)
	return Save(commands)
}
