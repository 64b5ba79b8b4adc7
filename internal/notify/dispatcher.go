// Package notify delivers game notifications to players on the platform their
// id belongs to.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tapcoin/internal/game"

	"golang.org/x/time/rate"
)

var ErrQueueFull = errors.New("notification queue full")

// Sender delivers text to one recipient on one platform. recipient is the
// player id with its platform prefix removed.
type Sender interface {
	Send(ctx context.Context, recipient, text string) error
}

type SenderFunc func(ctx context.Context, recipient, text string) error

func (f SenderFunc) Send(ctx context.Context, recipient, text string) error {
	return f(ctx, recipient, text)
}

// Dispatcher implements game.Notifier. Notify only enqueues; Run drains the
// queue at a bounded rate so a burst of reminders cannot trip platform limits.
type Dispatcher struct {
	log      *slog.Logger
	limiter  *rate.Limiter
	queue    chan game.Notification
	mu       sync.RWMutex
	routes   map[string]Sender
	fallback Sender
}

func NewDispatcher(logger *slog.Logger, perSecond float64, queueSize int) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if perSecond <= 0 {
		perSecond = 5
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		log:     logger,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		queue:   make(chan game.Notification, queueSize),
		routes:  map[string]Sender{},
	}
}

// Route sends notifications for ids prefixed "<platform>:" through s.
func (d *Dispatcher) Route(platform string, s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes[platform] = s
}

// Fallback receives notifications no route claims.
func (d *Dispatcher) Fallback(s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = s
}

func (d *Dispatcher) Notify(_ context.Context, n game.Notification) error {
	select {
	case d.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued notifications until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			if err := d.Deliver(ctx, n); err != nil {
				d.log.Warn("notification delivery failed",
					"player_id", n.PlayerID,
					"event", string(n.Event),
					"err", err,
				)
			}
		}
	}
}

// Deliver sends n immediately, bypassing the queue and the rate limit.
func (d *Dispatcher) Deliver(ctx context.Context, n game.Notification) error {
	platform, recipient := SplitPlayerID(n.PlayerID)
	d.mu.RLock()
	s, ok := d.routes[platform]
	if !ok {
		s = d.fallback
		recipient = n.PlayerID
	}
	d.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("no sender for platform %q", platform)
	}
	return s.Send(ctx, recipient, Message(n))
}

// SplitPlayerID splits "discord:123" into ("discord", "123"). Ids without a
// platform prefix return an empty platform.
func SplitPlayerID(id string) (platform, recipient string) {
	platform, recipient, ok := strings.Cut(id, ":")
	if !ok {
		return "", id
	}
	return platform, recipient
}

func Message(n game.Notification) string {
	switch n.Event {
	case game.EventReferralRedeemed:
		who := n.Counterparty
		if who == "" {
			who = "A new player"
		}
		return fmt.Sprintf("🎉 %s joined with your referral link! You earned %d coins.", who, n.Amount)
	case game.EventDailyBonusAvailable:
		return fmt.Sprintf("🎁 Your daily bonus of %d coins is ready. Send /bonus to claim it.", n.Amount)
	default:
		return fmt.Sprintf("%s (%d)", n.Event, n.Amount)
	}
}

// LogSender writes notifications to the log. It backs platforms the current
// process cannot reach.
type LogSender struct {
	Log *slog.Logger
}

func (l LogSender) Send(_ context.Context, recipient, text string) error {
	logger := l.Log
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "recipient", recipient, "text", text)
	return nil
}
