// Package postgres implements game.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"tapcoin/internal/economy"
	"tapcoin/internal/game"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db *pgxpool.Pool
	q  queries
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db, q: queries{db}}
}

// Migrate creates the schema when missing. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, p game.Player) (game.Player, error) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO tapcoin.players (
			id, username, display_name, coins, energy, max_energy, energy_regen_rate,
			coins_per_click, total_clicks, upgrades, completed_tasks, last_energy_update_at,
			referral_code, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14, $14)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.Username, p.DisplayName, p.Coins, p.Energy, p.MaxEnergy, p.EnergyRegenRate,
		p.CoinsPerClick, p.TotalClicks, upgradesJSON(p.Upgrades), p.CompletedTaskIDs(), p.LastEnergyUpdateAt,
		p.ReferralCode, p.CreatedAt)
	if err != nil {
		return game.Player{}, mapErr(err)
	}
	// A concurrent or earlier create wins; return whatever is stored.
	return s.Load(ctx, p.ID)
}

func (s *Store) Load(ctx context.Context, id string) (game.Player, error) {
	return s.q.Load(ctx, id)
}

func (s *Store) LoadByReferralCode(ctx context.Context, code string) (game.Player, error) {
	return s.q.LoadByReferralCode(ctx, code)
}

func (s *Store) Save(ctx context.Context, p game.Player) (game.Player, error) {
	return s.q.Save(ctx, p)
}

func (s *Store) InsertReferralRecord(ctx context.Context, rec game.ReferralRecord) error {
	return s.q.InsertReferralRecord(ctx, rec)
}

// Transact runs fn in a serializable transaction. Serialization failures
// and deadlocks surface as game.ErrStorageConflict.
func (s *Store) Transact(ctx context.Context, fn func(tx game.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(queries{tx}); err != nil {
		return mapErr(err)
	}
	return mapErr(tx.Commit(ctx))
}

func (s *Store) TopPlayers(ctx context.Context, limit, offset int) ([]game.Player, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+playerColumns+`
		FROM tapcoin.players
		ORDER BY coins DESC, id ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]game.Player, 0, limit)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ReferralsBy(ctx context.Context, referrerID string) ([]game.ReferralRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, referrer_id, referred_id, created_at
		FROM tapcoin.referrals
		WHERE referrer_id = $1
		ORDER BY created_at DESC, id ASC
	`, referrerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]game.ReferralRecord, 0)
	for rows.Next() {
		var rec game.ReferralRecord
		if err := rows.Scan(&rec.ID, &rec.ReferrerID, &rec.ReferredID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) DailyBonusDue(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id
		FROM tapcoin.players
		WHERE (daily_bonus_last_claim_at IS NULL OR daily_bonus_last_claim_at <= $1)
		  AND (bonus_notified_at IS NULL OR bonus_notified_at <= COALESCE(daily_bonus_last_claim_at, '-infinity'::timestamptz))
		ORDER BY id
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// queries holds the statements shared by the pool and open transactions.
type queries struct {
	q querier
}

const playerColumns = `
	id, username, display_name, coins, energy, max_energy, energy_regen_rate,
	coins_per_click, total_clicks, upgrades, completed_tasks, last_energy_update_at,
	daily_bonus_last_claim_at, bonus_notified_at, referral_code, COALESCE(referred_by, ''),
	referral_earnings, version, created_at, updated_at`

func (q queries) Load(ctx context.Context, id string) (game.Player, error) {
	row := q.q.QueryRow(ctx, `SELECT `+playerColumns+` FROM tapcoin.players WHERE id = $1 FOR UPDATE`, id)
	p, err := scanPlayer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Player{}, game.ErrPlayerNotFound
	}
	return p, mapErr(err)
}

func (q queries) LoadByReferralCode(ctx context.Context, code string) (game.Player, error) {
	row := q.q.QueryRow(ctx, `SELECT `+playerColumns+` FROM tapcoin.players WHERE referral_code = $1 FOR UPDATE`, code)
	p, err := scanPlayer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Player{}, game.ErrPlayerNotFound
	}
	return p, mapErr(err)
}

func (q queries) Save(ctx context.Context, p game.Player) (game.Player, error) {
	var next game.Player
	err := q.q.QueryRow(ctx, `
		UPDATE tapcoin.players
		SET username = $2, display_name = $3, coins = $4, energy = $5, max_energy = $6,
			energy_regen_rate = $7, coins_per_click = $8, total_clicks = $9, upgrades = $10,
			completed_tasks = $11, last_energy_update_at = $12, daily_bonus_last_claim_at = $13,
			bonus_notified_at = $14, referral_code = $15, referred_by = NULLIF($16, ''),
			referral_earnings = $17, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $18
		RETURNING version, updated_at
	`, p.ID, p.Username, p.DisplayName, p.Coins, p.Energy, p.MaxEnergy,
		p.EnergyRegenRate, p.CoinsPerClick, p.TotalClicks, upgradesJSON(p.Upgrades),
		p.CompletedTaskIDs(), p.LastEnergyUpdateAt, nullTime(p.DailyBonusLastClaimAt),
		nullTime(p.BonusNotifiedAt), p.ReferralCode, p.ReferredBy,
		p.ReferralEarnings, p.Version,
	).Scan(&next.Version, &next.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Player{}, game.ErrStorageConflict
	}
	if err != nil {
		return game.Player{}, mapErr(err)
	}
	out := p.Clone()
	out.Version, out.UpdatedAt = next.Version, next.UpdatedAt
	return out, nil
}

func (q queries) InsertReferralRecord(ctx context.Context, rec game.ReferralRecord) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO tapcoin.referrals (id, referrer_id, referred_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, rec.ID, rec.ReferrerID, rec.ReferredID, rec.CreatedAt)
	return mapErr(err)
}

func scanPlayer(row pgx.Row) (game.Player, error) {
	var p game.Player
	var upgrades map[string]int
	var tasks []string
	var lastClaim, notified *time.Time
	err := row.Scan(
		&p.ID, &p.Username, &p.DisplayName, &p.Coins, &p.Energy, &p.MaxEnergy, &p.EnergyRegenRate,
		&p.CoinsPerClick, &p.TotalClicks, &upgrades, &tasks, &p.LastEnergyUpdateAt,
		&lastClaim, &notified, &p.ReferralCode, &p.ReferredBy,
		&p.ReferralEarnings, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return game.Player{}, err
	}
	p.Upgrades = make(map[economy.UpgradeKind]int, len(upgrades))
	for k, v := range upgrades {
		p.Upgrades[economy.UpgradeKind(k)] = v
	}
	p.CompletedTasks = make(map[string]struct{}, len(tasks))
	for _, id := range tasks {
		p.CompletedTasks[id] = struct{}{}
	}
	if lastClaim != nil {
		p.DailyBonusLastClaimAt = *lastClaim
	}
	if notified != nil {
		p.BonusNotifiedAt = *notified
	}
	return p, nil
}

func upgradesJSON(in map[economy.UpgradeKind]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		if v > 0 {
			out[string(k)] = v
		}
	}
	return out
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return fmt.Errorf("%w: %s", game.ErrStorageConflict, pgErr.Message)
	case "23505":
		return fmt.Errorf("%w: %s", game.ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}
