// Package cache keeps rendered leaderboard pages in Redis for a short TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tapcoin/internal/game"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tapcoin:leaderboard"

// Connect parses a redis:// URL and verifies the server answers PING.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Leaderboard implements game.LeaderboardCache. Redis failures degrade to a
// cache miss; the store stays authoritative.
type Leaderboard struct {
	rdb redis.Cmdable
	ttl time.Duration
	log *slog.Logger
}

func NewLeaderboard(rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Leaderboard {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Leaderboard{rdb: rdb, ttl: ttl, log: logger}
}

func pageKey(limit, offset int) string {
	return fmt.Sprintf("%s:%d:%d", keyPrefix, limit, offset)
}

func (l *Leaderboard) Get(ctx context.Context, limit, offset int) ([]game.LeaderboardRow, bool) {
	raw, err := l.rdb.Get(ctx, pageKey(limit, offset)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		l.log.Warn("leaderboard cache read failed", "err", err)
		return nil, false
	}
	var rows []game.LeaderboardRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		l.log.Warn("leaderboard cache entry unreadable", "err", err)
		return nil, false
	}
	return rows, true
}

func (l *Leaderboard) Put(ctx context.Context, limit, offset int, rows []game.LeaderboardRow) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return
	}
	if err := l.rdb.Set(ctx, pageKey(limit, offset), raw, l.ttl).Err(); err != nil {
		l.log.Warn("leaderboard cache write failed", "err", err)
	}
}
