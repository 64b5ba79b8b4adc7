// Package sqlite implements game.Store on a single SQLite file through gorm.
// It suits one-process deployments and integration tests.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tapcoin/internal/economy"
	"tapcoin/internal/game"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type playerRow struct {
	ID                    string `gorm:"primaryKey"`
	Username              string
	DisplayName           string
	Coins                 int64 `gorm:"index:idx_players_leaderboard,priority:1,sort:desc"`
	Energy                int64
	MaxEnergy             int64
	EnergyRegenRate       int64
	CoinsPerClick         int64
	TotalClicks           int64
	Upgrades              string
	CompletedTasks        string
	LastEnergyUpdateAt    time.Time
	DailyBonusLastClaimAt *time.Time
	BonusNotifiedAt       *time.Time
	ReferralCode          string `gorm:"uniqueIndex"`
	ReferredBy            string
	ReferralEarnings      int64
	Version               int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (playerRow) TableName() string { return "players" }

type referralRow struct {
	ID         string `gorm:"primaryKey"`
	ReferrerID string `gorm:"index"`
	ReferredID string `gorm:"uniqueIndex"`
	CreatedAt  time.Time
}

func (referralRow) TableName() string { return "referrals" }

type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection keeps transactions from
	// tripping over each other with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&playerRow{}, &referralRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Create(ctx context.Context, p game.Player) (game.Player, error) {
	existing, err := s.Load(ctx, p.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, game.ErrPlayerNotFound) {
		return game.Player{}, err
	}
	row, err := toRow(p)
	if err != nil {
		return game.Player{}, err
	}
	row.Version = 1
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race on the id; the stored record wins.
			if existing, lerr := s.Load(ctx, p.ID); lerr == nil {
				return existing, nil
			}
			return game.Player{}, game.ErrDuplicateKey
		}
		return game.Player{}, err
	}
	return fromRow(row)
}

func (s *Store) Load(ctx context.Context, id string) (game.Player, error) {
	return queries{s.db.WithContext(ctx)}.Load(ctx, id)
}

func (s *Store) LoadByReferralCode(ctx context.Context, code string) (game.Player, error) {
	return queries{s.db.WithContext(ctx)}.LoadByReferralCode(ctx, code)
}

func (s *Store) Save(ctx context.Context, p game.Player) (game.Player, error) {
	return queries{s.db.WithContext(ctx)}.Save(ctx, p)
}

func (s *Store) InsertReferralRecord(ctx context.Context, rec game.ReferralRecord) error {
	return queries{s.db.WithContext(ctx)}.InsertReferralRecord(ctx, rec)
}

func (s *Store) Transact(ctx context.Context, fn func(tx game.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(queries{tx})
	})
}

func (s *Store) TopPlayers(ctx context.Context, limit, offset int) ([]game.Player, error) {
	var rows []playerRow
	err := s.db.WithContext(ctx).
		Order("coins DESC").Order("id ASC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]game.Player, 0, len(rows))
	for _, r := range rows {
		p, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) ReferralsBy(ctx context.Context, referrerID string) ([]game.ReferralRecord, error) {
	var rows []referralRow
	err := s.db.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]game.ReferralRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, game.ReferralRecord{
			ID:         r.ID,
			ReferrerID: r.ReferrerID,
			ReferredID: r.ReferredID,
			CreatedAt:  r.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) DailyBonusDue(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&playerRow{}).
		Where("daily_bonus_last_claim_at IS NULL OR daily_bonus_last_claim_at <= ?", cutoff.UTC()).
		Where("bonus_notified_at IS NULL OR (daily_bonus_last_claim_at IS NOT NULL AND bonus_notified_at <= daily_bonus_last_claim_at)").
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

type queries struct {
	db *gorm.DB
}

func (q queries) Load(_ context.Context, id string) (game.Player, error) {
	var row playerRow
	if err := q.db.Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return game.Player{}, game.ErrPlayerNotFound
		}
		return game.Player{}, err
	}
	return fromRow(row)
}

func (q queries) LoadByReferralCode(_ context.Context, code string) (game.Player, error) {
	var row playerRow
	if err := q.db.Where("referral_code = ?", code).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return game.Player{}, game.ErrPlayerNotFound
		}
		return game.Player{}, err
	}
	return fromRow(row)
}

func (q queries) Save(_ context.Context, p game.Player) (game.Player, error) {
	row, err := toRow(p)
	if err != nil {
		return game.Player{}, err
	}
	now := time.Now().UTC()
	res := q.db.Model(&playerRow{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]any{
			"username":                  row.Username,
			"display_name":              row.DisplayName,
			"coins":                     row.Coins,
			"energy":                    row.Energy,
			"max_energy":                row.MaxEnergy,
			"energy_regen_rate":         row.EnergyRegenRate,
			"coins_per_click":           row.CoinsPerClick,
			"total_clicks":              row.TotalClicks,
			"upgrades":                  row.Upgrades,
			"completed_tasks":           row.CompletedTasks,
			"last_energy_update_at":     row.LastEnergyUpdateAt,
			"daily_bonus_last_claim_at": row.DailyBonusLastClaimAt,
			"bonus_notified_at":         row.BonusNotifiedAt,
			"referral_code":             row.ReferralCode,
			"referred_by":               row.ReferredBy,
			"referral_earnings":         row.ReferralEarnings,
			"version":                   gorm.Expr("version + 1"),
			"updated_at":                now,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return game.Player{}, game.ErrDuplicateKey
		}
		return game.Player{}, res.Error
	}
	if res.RowsAffected == 0 {
		return game.Player{}, game.ErrStorageConflict
	}
	out := p.Clone()
	out.Version = p.Version + 1
	out.UpdatedAt = now
	return out, nil
}

func (q queries) InsertReferralRecord(_ context.Context, rec game.ReferralRecord) error {
	err := q.db.Create(&referralRow{
		ID:         rec.ID,
		ReferrerID: rec.ReferrerID,
		ReferredID: rec.ReferredID,
		CreatedAt:  rec.CreatedAt.UTC(),
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return game.ErrDuplicateKey
	}
	return err
}

func toRow(p game.Player) (playerRow, error) {
	upgrades, err := json.Marshal(p.Upgrades)
	if err != nil {
		return playerRow{}, err
	}
	tasks, err := json.Marshal(p.CompletedTaskIDs())
	if err != nil {
		return playerRow{}, err
	}
	return playerRow{
		ID:                    p.ID,
		Username:              p.Username,
		DisplayName:           p.DisplayName,
		Coins:                 p.Coins,
		Energy:                p.Energy,
		MaxEnergy:             p.MaxEnergy,
		EnergyRegenRate:       p.EnergyRegenRate,
		CoinsPerClick:         p.CoinsPerClick,
		TotalClicks:           p.TotalClicks,
		Upgrades:              string(upgrades),
		CompletedTasks:        string(tasks),
		LastEnergyUpdateAt:    p.LastEnergyUpdateAt.UTC(),
		DailyBonusLastClaimAt: utcOrNil(p.DailyBonusLastClaimAt),
		BonusNotifiedAt:       utcOrNil(p.BonusNotifiedAt),
		ReferralCode:          p.ReferralCode,
		ReferredBy:            p.ReferredBy,
		ReferralEarnings:      p.ReferralEarnings,
		Version:               p.Version,
		CreatedAt:             p.CreatedAt.UTC(),
		UpdatedAt:             p.UpdatedAt.UTC(),
	}, nil
}

func fromRow(r playerRow) (game.Player, error) {
	p := game.Player{
		ID:                 r.ID,
		Username:           r.Username,
		DisplayName:        r.DisplayName,
		Coins:              r.Coins,
		Energy:             r.Energy,
		MaxEnergy:          r.MaxEnergy,
		EnergyRegenRate:    r.EnergyRegenRate,
		CoinsPerClick:      r.CoinsPerClick,
		TotalClicks:        r.TotalClicks,
		LastEnergyUpdateAt: r.LastEnergyUpdateAt,
		ReferralCode:       r.ReferralCode,
		ReferredBy:         r.ReferredBy,
		ReferralEarnings:   r.ReferralEarnings,
		Version:            r.Version,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		Upgrades:           map[economy.UpgradeKind]int{},
		CompletedTasks:     map[string]struct{}{},
	}
	if r.DailyBonusLastClaimAt != nil {
		p.DailyBonusLastClaimAt = *r.DailyBonusLastClaimAt
	}
	if r.BonusNotifiedAt != nil {
		p.BonusNotifiedAt = *r.BonusNotifiedAt
	}
	if r.Upgrades != "" {
		if err := json.Unmarshal([]byte(r.Upgrades), &p.Upgrades); err != nil {
			return game.Player{}, fmt.Errorf("player %s: decode upgrades: %w", r.ID, err)
		}
	}
	if r.CompletedTasks != "" {
		var ids []string
		if err := json.Unmarshal([]byte(r.CompletedTasks), &ids); err != nil {
			return game.Player{}, fmt.Errorf("player %s: decode tasks: %w", r.ID, err)
		}
		for _, id := range ids {
			p.CompletedTasks[id] = struct{}{}
		}
	}
	return p, nil
}

func utcOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
