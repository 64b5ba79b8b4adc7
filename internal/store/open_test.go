package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"tapcoin/internal/config"
	"tapcoin/internal/game"
)

func TestOpenDrivers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, cfg := range []config.StoreConfig{
		{Driver: "memory"},
		{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "open.db")},
	} {
		st, closeFn, err := Open(ctx, cfg, logger)
		if err != nil {
			t.Fatalf("%s: open: %v", cfg.Driver, err)
		}
		p, err := st.Create(ctx, game.NewPlayer("discord:1", game.Profile{}, "REF1AAAA", t0))
		if err != nil || p.Version != 1 {
			t.Fatalf("%s: create=%+v err=%v", cfg.Driver, p, err)
		}
		closeFn()
	}

	if _, _, err := Open(ctx, config.StoreConfig{Driver: "mongo"}, logger); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestLeaderboardCacheDisabledWithoutURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, closeFn := LeaderboardCache(context.Background(), config.StoreConfig{}, logger)
	defer closeFn()
	if c != nil {
		t.Fatalf("cache should be nil without REDIS_URL")
	}
}
