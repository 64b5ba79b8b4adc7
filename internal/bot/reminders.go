package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tapcoin/internal/game"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// Reminders periodically tells players their daily bonus is claimable.
type Reminders struct {
	svc   *game.Service
	batch int
	log   *slog.Logger
	sched gocron.Scheduler
}

func NewReminders(svc *game.Service, every time.Duration, batch int, clock clockwork.Clock, logger *slog.Logger) (*Reminders, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("reminder scheduler: %w", err)
	}
	r := &Reminders{svc: svc, batch: batch, log: logger, sched: sched}
	_, err = sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), every)
			defer cancel()
			r.Sweep(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("reminder job: %w", err)
	}
	return r, nil
}

// Sweep sends one batch of reminders and returns how many went out.
func (r *Reminders) Sweep(ctx context.Context) int {
	sent, err := r.svc.NotifyDailyBonusDue(ctx, r.batch)
	if err != nil {
		r.log.Error("daily bonus sweep failed", "err", err)
		return sent
	}
	if sent > 0 {
		r.log.Info("daily bonus reminders sent", "count", sent)
	}
	return sent
}

func (r *Reminders) Start() {
	r.sched.Start()
}

func (r *Reminders) Shutdown() error {
	return r.sched.Shutdown()
}
