package bot

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"tapcoin/internal/auth"
	"tapcoin/internal/game"
	"tapcoin/internal/store/memory"

	"github.com/jonboulle/clockwork"
)

func newTestHandler(t *testing.T) (*Handler, *game.Service, *auth.Issuer) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := game.NewService(memory.New(), logger, game.WithClock(clock))
	tokens, err := auth.NewIssuer("test-secret", time.Hour, clock)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	return NewHandler(svc, tokens, "https://play.example.com", logger), svc, tokens
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		cmd  string
		args int
		ok   bool
	}{
		{"/start REFABC", "start", 1, true},
		{"!TAP", "tap", 0, true},
		{"/stats@tapcoin_bot", "stats", 0, true},
		{"hello there", "", 0, false},
		{"/", "", 0, false},
		{"   ", "", 0, false},
	}
	for _, tc := range tests {
		cmd, args, ok := parseCommand(tc.text)
		if cmd != tc.cmd || len(args) != tc.args || ok != tc.ok {
			t.Fatalf("%q: got (%q,%v,%v)", tc.text, cmd, args, ok)
		}
	}
}

func TestStartWithReferralCode(t *testing.T) {
	h, svc, _ := newTestHandler(t)
	ctx := context.Background()

	referrer, err := svc.GetOrCreate(ctx, "discord:1", game.Profile{Username: "ana"})
	if err != nil {
		t.Fatalf("create referrer: %v", err)
	}
	reply := h.Handle(ctx, Incoming{PlayerID: "discord:2", Profile: game.Profile{Username: "bo"}, Text: "/start " + strings.ToLower(referrer.ReferralCode)})
	if !strings.Contains(reply, "500 bonus coins") || !strings.Contains(reply, "ana") {
		t.Fatalf("reply=%q", reply)
	}
	reply = h.Handle(ctx, Incoming{PlayerID: "discord:2", Text: "/start " + referrer.ReferralCode})
	if !strings.Contains(reply, "already used") {
		t.Fatalf("second start reply=%q", reply)
	}

	sum, err := svc.Summary(ctx, "discord:1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Coins != 1500 || sum.ReferralEarnings != 1000 {
		t.Fatalf("referrer coins=%d earnings=%d", sum.Coins, sum.ReferralEarnings)
	}
}

func TestStartWithOwnCodeIsIgnored(t *testing.T) {
	h, svc, _ := newTestHandler(t)
	ctx := context.Background()
	p, _ := svc.GetOrCreate(ctx, "wa:1", game.Profile{})
	reply := h.Handle(ctx, Incoming{PlayerID: "wa:1", Text: "/start " + p.ReferralCode})
	if strings.Contains(reply, "bonus coins") {
		t.Fatalf("self referral credited: %q", reply)
	}
}

func TestTapAndStats(t *testing.T) {
	h, _, _ := newTestHandler(t)
	ctx := context.Background()
	in := Incoming{PlayerID: "discord:9", Profile: game.Profile{DisplayName: "Cy"}}

	in.Text = "/tap"
	if reply := h.Handle(ctx, in); !strings.Contains(reply, "+1 coins") || !strings.Contains(reply, "501 coins") {
		t.Fatalf("tap reply=%q", reply)
	}
	in.Text = "/stats"
	if reply := h.Handle(ctx, in); !strings.Contains(reply, "Coins: 501") || !strings.Contains(reply, "Total taps: 1") {
		t.Fatalf("stats reply=%q", reply)
	}
	in.Text = "/upgrade warp"
	if reply := h.Handle(ctx, in); !strings.Contains(reply, "Unknown upgrade") {
		t.Fatalf("upgrade reply=%q", reply)
	}
	in.Text = "/claim clicks_100"
	if reply := h.Handle(ctx, in); !strings.Contains(reply, "not met") {
		t.Fatalf("claim reply=%q", reply)
	}
	in.Text = "just chatting"
	if reply := h.Handle(ctx, in); reply != "" {
		t.Fatalf("non-command got reply %q", reply)
	}
}

func TestPlayIssuesVerifiableToken(t *testing.T) {
	h, _, tokens := newTestHandler(t)
	reply := h.Handle(context.Background(), Incoming{PlayerID: "discord:5", Text: "/play"})
	idx := strings.Index(reply, "tap login ")
	if idx < 0 {
		t.Fatalf("reply=%q", reply)
	}
	tok := strings.TrimSpace(reply[idx+len("tap login "):])
	claims, err := tokens.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.PlayerID != "discord:5" {
		t.Fatalf("claims=%+v", claims)
	}
}

func TestLeaderboardReply(t *testing.T) {
	h, svc, _ := newTestHandler(t)
	ctx := context.Background()
	if _, err := svc.GetOrCreate(ctx, "discord:1", game.Profile{Username: "ana"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	reply := h.Handle(ctx, Incoming{PlayerID: "discord:2", Profile: game.Profile{Username: "bo"}, Text: "/leaderboard"})
	if !strings.Contains(reply, "🥇 ana - 500 coins") || !strings.Contains(reply, "🥈 bo - 500 coins") {
		t.Fatalf("reply=%q", reply)
	}
}
