package bot

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tapcoin/internal/game"
	"tapcoin/internal/store/memory"

	"github.com/jonboulle/clockwork"
)

func TestRemindersSweep(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	var mu sync.Mutex
	var got []game.Notification
	notes := game.NotifierFunc(func(_ context.Context, n game.Notification) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, n)
		return nil
	})
	svc := game.NewService(memory.New(), logger, game.WithClock(clock), game.WithNotifier(notes))
	ctx := context.Background()
	if _, err := svc.GetOrCreate(ctx, "discord:1", game.Profile{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	r, err := NewReminders(svc, time.Minute, 50, clock, logger)
	if err != nil {
		t.Fatalf("reminders: %v", err)
	}

	if n := r.Sweep(ctx); n != 1 {
		t.Fatalf("first sweep sent %d", n)
	}
	if n := r.Sweep(ctx); n != 0 {
		t.Fatalf("second sweep sent %d, want no repeat", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Event != game.EventDailyBonusAvailable || got[0].PlayerID != "discord:1" {
		t.Fatalf("notifications=%+v", got)
	}
}
