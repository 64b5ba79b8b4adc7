// Package memory is an in-process game.Store used by tests and local runs
// without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tapcoin/internal/game"
)

type state struct {
	players   map[string]game.Player
	codes     map[string]string
	referrals map[string]game.ReferralRecord
}

func (s *state) clone() *state {
	out := &state{
		players:   make(map[string]game.Player, len(s.players)),
		codes:     make(map[string]string, len(s.codes)),
		referrals: make(map[string]game.ReferralRecord, len(s.referrals)),
	}
	for k, v := range s.players {
		out.players[k] = v
	}
	for k, v := range s.codes {
		out.codes[k] = v
	}
	for k, v := range s.referrals {
		out.referrals[k] = v
	}
	return out
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: &state{
		players:   map[string]game.Player{},
		codes:     map[string]string{},
		referrals: map[string]game.ReferralRecord{},
	}}
}

// Put writes p as-is, bypassing version checks. Tests use it to seed records.
func (s *Store) Put(p game.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.players[p.ID] = p.Clone()
	if p.ReferralCode != "" {
		s.st.codes[p.ReferralCode] = p.ID
	}
}

func (s *Store) Create(_ context.Context, p game.Player) (game.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.st.players[p.ID]; ok {
		return existing.Clone(), nil
	}
	if _, taken := s.st.codes[p.ReferralCode]; taken {
		return game.Player{}, game.ErrDuplicateKey
	}
	p = p.Clone()
	p.Version = 1
	s.st.players[p.ID] = p
	s.st.codes[p.ReferralCode] = p.ID
	return p.Clone(), nil
}

func (s *Store) Load(_ context.Context, id string) (game.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*tx)(s.st).load(id)
}

func (s *Store) LoadByReferralCode(_ context.Context, code string) (game.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*tx)(s.st).loadByCode(code)
}

func (s *Store) Save(_ context.Context, p game.Player) (game.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*tx)(s.st).save(p)
}

func (s *Store) InsertReferralRecord(_ context.Context, rec game.ReferralRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*tx)(s.st).insertReferral(rec)
}

// Transact stages writes on a copy of the state and swaps it in only when fn
// succeeds.
func (s *Store) Transact(ctx context.Context, fn func(tx game.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := s.st.clone()
	if err := fn(txAdapter{(*tx)(staged)}); err != nil {
		return err
	}
	s.st = staged
	return nil
}

func (s *Store) TopPlayers(_ context.Context, limit, offset int) ([]game.Player, error) {
	s.mu.Lock()
	all := make([]game.Player, 0, len(s.st.players))
	for _, p := range s.st.players {
		all = append(all, p.Clone())
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Coins != all[j].Coins {
			return all[i].Coins > all[j].Coins
		}
		return all[i].ID < all[j].ID
	})
	if offset >= len(all) {
		return []game.Player{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) ReferralsBy(_ context.Context, referrerID string) ([]game.ReferralRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]game.ReferralRecord, 0)
	for _, rec := range s.st.referrals {
		if rec.ReferrerID == referrerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DailyBonusDue(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0)
	for id, p := range s.st.players {
		if !p.DailyBonusLastClaimAt.IsZero() && p.DailyBonusLastClaimAt.After(cutoff) {
			continue
		}
		if !p.BonusNotifiedAt.IsZero() && p.BonusNotifiedAt.After(p.DailyBonusLastClaimAt) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	return ids, nil
}

// tx implements the store operations against one state without locking. The
// caller holds Store.mu.
type tx state

func (t *tx) load(id string) (game.Player, error) {
	p, ok := t.players[id]
	if !ok {
		return game.Player{}, game.ErrPlayerNotFound
	}
	return p.Clone(), nil
}

func (t *tx) loadByCode(code string) (game.Player, error) {
	id, ok := t.codes[code]
	if !ok {
		return game.Player{}, game.ErrPlayerNotFound
	}
	return t.load(id)
}

func (t *tx) save(p game.Player) (game.Player, error) {
	cur, ok := t.players[p.ID]
	if !ok {
		return game.Player{}, game.ErrPlayerNotFound
	}
	if cur.Version != p.Version {
		return game.Player{}, game.ErrStorageConflict
	}
	if p.ReferralCode != cur.ReferralCode {
		if owner, taken := t.codes[p.ReferralCode]; taken && owner != p.ID {
			return game.Player{}, game.ErrDuplicateKey
		}
		delete(t.codes, cur.ReferralCode)
		t.codes[p.ReferralCode] = p.ID
	}
	p = p.Clone()
	p.Version++
	t.players[p.ID] = p
	return p.Clone(), nil
}

func (t *tx) insertReferral(rec game.ReferralRecord) error {
	if _, dup := t.referrals[rec.ReferredID]; dup {
		return game.ErrDuplicateKey
	}
	t.referrals[rec.ReferredID] = rec
	return nil
}

type txAdapter struct {
	t *tx
}

func (a txAdapter) Load(_ context.Context, id string) (game.Player, error) {
	return a.t.load(id)
}

func (a txAdapter) LoadByReferralCode(_ context.Context, code string) (game.Player, error) {
	return a.t.loadByCode(code)
}

func (a txAdapter) Save(_ context.Context, p game.Player) (game.Player, error) {
	return a.t.save(p)
}

func (a txAdapter) InsertReferralRecord(_ context.Context, rec game.ReferralRecord) error {
	return a.t.insertReferral(rec)
}
