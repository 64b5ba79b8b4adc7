// Package store selects the game.Store backend named by configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"tapcoin/internal/cache"
	"tapcoin/internal/config"
	"tapcoin/internal/db"
	"tapcoin/internal/game"
	"tapcoin/internal/store/memory"
	"tapcoin/internal/store/postgres"
	"tapcoin/internal/store/sqlite"
)

// Open connects the configured backend and, for postgres, applies the schema.
// The returned close func releases every connection Open made.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (game.Store, func(), error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		st := postgres.New(pool)
		if err := st.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("store ready", "driver", cfg.Driver)
		return st, pool.Close, nil
	case "sqlite":
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("store ready", "driver", cfg.Driver, "path", cfg.SQLitePath)
		return st, func() { _ = st.Close() }, nil
	case "memory":
		logger.Warn("using in-memory store, state is lost on exit")
		return memory.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// LeaderboardCache returns a redis-backed cache when REDIS_URL is set. A
// failed connection is logged and the service runs uncached.
func LeaderboardCache(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (game.LeaderboardCache, func()) {
	if cfg.RedisURL == "" {
		return nil, func() {}
	}
	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("leaderboard cache disabled", "err", err)
		return nil, func() {}
	}
	return cache.NewLeaderboard(rdb, cfg.CacheTTL, logger), func() { _ = rdb.Close() }
}
