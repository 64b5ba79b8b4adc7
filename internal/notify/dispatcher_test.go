package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"tapcoin/internal/game"
)

type captured struct {
	recipient string
	text      string
}

type captureSender struct {
	mu  sync.Mutex
	got []captured
}

func (c *captureSender) Send(_ context.Context, recipient, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, captured{recipient, text})
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSplitPlayerID(t *testing.T) {
	tests := []struct {
		id, platform, recipient string
	}{
		{"discord:1234", "discord", "1234"},
		{"wa:15551234567", "wa", "15551234567"},
		{"local", "", "local"},
	}
	for _, tc := range tests {
		p, r := SplitPlayerID(tc.id)
		if p != tc.platform || r != tc.recipient {
			t.Fatalf("%s: got (%q,%q)", tc.id, p, r)
		}
	}
}

func TestDeliverRoutesByPrefix(t *testing.T) {
	d := NewDispatcher(quietLogger(), 100, 4)
	discord, fallback := &captureSender{}, &captureSender{}
	d.Route("discord", discord)
	d.Fallback(fallback)

	ctx := context.Background()
	n := game.Notification{PlayerID: "discord:42", Event: game.EventReferralRedeemed, Amount: 1000, Counterparty: "bo"}
	if err := d.Deliver(ctx, n); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if err := d.Deliver(ctx, game.Notification{PlayerID: "tg:7", Event: game.EventDailyBonusAvailable, Amount: 2000}); err != nil {
		t.Fatalf("deliver fallback: %v", err)
	}
	if discord.got[0].recipient != "42" || !strings.Contains(discord.got[0].text, "bo joined") {
		t.Fatalf("discord got %+v", discord.got)
	}
	if fallback.got[0].recipient != "tg:7" || !strings.Contains(fallback.got[0].text, "2000") {
		t.Fatalf("fallback got %+v", fallback.got)
	}
}

func TestDeliverWithoutSender(t *testing.T) {
	d := NewDispatcher(quietLogger(), 1, 1)
	if err := d.Deliver(context.Background(), game.Notification{PlayerID: "x:1"}); err == nil {
		t.Fatalf("expected error with no route and no fallback")
	}
}

func TestNotifyQueueFull(t *testing.T) {
	d := NewDispatcher(quietLogger(), 1, 1)
	ctx := context.Background()
	if err := d.Notify(ctx, game.Notification{PlayerID: "a"}); err != nil {
		t.Fatalf("first notify: %v", err)
	}
	if err := d.Notify(ctx, game.Notification{PlayerID: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err=%v want queue full", err)
	}
}

func TestRunDrainsQueue(t *testing.T) {
	d := NewDispatcher(quietLogger(), 1000, 8)
	sink := &captureSender{}
	d.Fallback(sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	for i := 0; i < 3; i++ {
		if err := d.Notify(ctx, game.Notification{PlayerID: "p", Event: game.EventDailyBonusAvailable}); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if sink.count() != 3 {
		t.Fatalf("delivered=%d want 3", sink.count())
	}
}
