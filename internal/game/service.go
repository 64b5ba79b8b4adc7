package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tapcoin/internal/economy"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	maxAttempts        = 3
	maxCodeAttempts    = 5
	maxLeaderboardRows = 100
	reminderBatch      = 200
)

var errNothingToDo = errors.New("nothing to do")

type Service struct {
	store    Store
	clock    clockwork.Clock
	log      *slog.Logger
	notifier Notifier
	cache    LeaderboardCache
	locks    *keyedMutex
}

type Option func(*Service)

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLeaderboardCache(c LeaderboardCache) Option {
	return func(s *Service) { s.cache = c }
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store: store,
		clock: clockwork.NewRealClock(),
		log:   logger,
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Now() time.Time {
	return s.clock.Now()
}

func (s *Service) GetOrCreate(ctx context.Context, id string, profile Profile) (Player, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Player{}, fmt.Errorf("%w: player id is required", ErrInvalidInput)
	}
	p, err := s.load(ctx, s.store, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPlayerNotFound) || IsCorrupt(err) {
		return Player{}, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := NewReferralCode(id)
		if err != nil {
			return Player{}, err
		}
		created, err := s.store.Create(ctx, NewPlayer(id, profile, code, s.clock.Now()))
		if errors.Is(err, ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return Player{}, err
		}
		if created.ReferralCode == code {
			s.log.Info("player created", "player_id", id, "referral_code", code)
		}
		return s.checked(created)
	}
	return Player{}, fmt.Errorf("create player %s: referral code collisions", id)
}

func (s *Service) Summary(ctx context.Context, id string) (Summary, error) {
	p, err := s.mutate(ctx, id, func(p Player, now time.Time) (Player, error) {
		return AccrueEnergy(p, now), nil
	})
	if err != nil {
		return Summary{}, err
	}
	return Summarize(p, s.clock.Now()), nil
}

func (s *Service) Tap(ctx context.Context, id string) (ActionResult, error) {
	var eff TapEffect
	p, err := s.mutate(ctx, id, func(p Player, now time.Time) (Player, error) {
		next, e, err := Tap(p, now)
		eff = e
		return next, err
	})
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Player: Summarize(p, s.clock.Now()), Delta: eff.Gained, LeveledUp: eff.LeveledUp}, nil
}

func (s *Service) PurchaseUpgrade(ctx context.Context, id, kind string) (ActionResult, error) {
	k, ok := economy.ParseUpgradeKind(strings.TrimSpace(kind))
	if !ok {
		return ActionResult{}, fmt.Errorf("%w: %q", ErrUnknownUpgrade, kind)
	}
	var cost int64
	p, err := s.mutate(ctx, id, func(p Player, now time.Time) (Player, error) {
		next, c, err := PurchaseUpgrade(AccrueEnergy(p, now), k)
		cost = c
		return next, err
	})
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Player: Summarize(p, s.clock.Now()), Delta: -cost}, nil
}

func (s *Service) ClaimDailyBonus(ctx context.Context, id string) (ActionResult, error) {
	var amount int64
	var before int
	p, err := s.mutate(ctx, id, func(p Player, now time.Time) (Player, error) {
		before = p.Level
		next, a, err := ClaimDailyBonus(AccrueEnergy(p, now), now)
		amount = a
		return next, err
	})
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Player: Summarize(p, s.clock.Now()), Delta: amount, LeveledUp: p.Level > before}, nil
}

func (s *Service) CompleteTask(ctx context.Context, id, taskID string) (ActionResult, error) {
	task, ok := TaskByID(strings.TrimSpace(taskID))
	if !ok {
		return ActionResult{}, fmt.Errorf("%w: %q", ErrUnknownTask, taskID)
	}
	var before int
	p, err := s.mutate(ctx, id, func(p Player, now time.Time) (Player, error) {
		before = p.Level
		p = AccrueEnergy(p, now)
		return CompleteTask(p, task.ID, task.Reward, task.Progress(p), task.Requirement)
	})
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Player: Summarize(p, s.clock.Now()), Delta: task.Reward, LeveledUp: p.Level > before}, nil
}

func (s *Service) ListTasks(ctx context.Context, id string) ([]TaskView, error) {
	p, err := s.load(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	tasks := Tasks()
	out := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		progress := t.Progress(p)
		done := p.HasCompleted(t.ID)
		out = append(out, TaskView{
			Task:      t,
			Progress:  progress,
			Completed: done,
			Claimable: !done && progress >= t.Requirement,
		})
	}
	return out, nil
}

// Redeem attributes candidateID to the owner of code and posts both rewards in
// one transaction. The store's unique constraint on the referred id decides
// races between concurrent redemptions.
func (s *Service) Redeem(ctx context.Context, code, candidateID string) (RedeemResult, error) {
	code = NormalizeCode(code)
	if code == "" {
		return RedeemResult{}, ErrUnknownCode
	}
	owner, err := s.store.LoadByReferralCode(ctx, code)
	if errors.Is(err, ErrPlayerNotFound) && !IsCorrupt(err) {
		return RedeemResult{}, ErrUnknownCode
	}
	if err != nil {
		return RedeemResult{}, err
	}
	if owner.ID == candidateID {
		return RedeemResult{}, ErrSelfReferral
	}

	unlock := s.locks.LockAll(owner.ID, candidateID)
	defer unlock()

	var out RedeemOutcome
	retryDelay := 25 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = s.store.Transact(ctx, func(tx Tx) error {
			o, err := s.redeemTx(ctx, tx, code, candidateID)
			out = o
			return err
		})
		if !errors.Is(err, ErrStorageConflict) {
			break
		}
		s.log.Warn("referral redeem conflict, retrying", "candidate_id", candidateID, "attempt", attempt+1)
		if attempt < maxAttempts-1 {
			if err := sleepWithContext(ctx, retryDelay); err != nil {
				return RedeemResult{}, err
			}
			retryDelay *= 2
		}
	}
	if err != nil {
		return RedeemResult{}, err
	}

	s.log.Info("referral redeemed",
		"referrer_id", out.Referrer.ID,
		"referred_id", out.Candidate.ID,
		"record_id", out.Record.ID,
	)
	s.emit(ctx, Notification{
		PlayerID:     out.Referrer.ID,
		Event:        EventReferralRedeemed,
		Amount:       out.ReferrerReward,
		Counterparty: out.Candidate.Name(),
	})
	return RedeemResult{
		Player:         Summarize(out.Candidate, s.clock.Now()),
		ReferrerID:     out.Referrer.ID,
		ReferrerName:   out.Referrer.Name(),
		ReferredReward: out.ReferredReward,
	}, nil
}

func (s *Service) redeemTx(ctx context.Context, tx Tx, code, candidateID string) (RedeemOutcome, error) {
	referrer, err := s.load(ctx, tx, "", withCode(code))
	if errors.Is(err, ErrPlayerNotFound) && !IsCorrupt(err) {
		return RedeemOutcome{}, ErrUnknownCode
	}
	if err != nil {
		return RedeemOutcome{}, err
	}
	candidate, err := s.load(ctx, tx, candidateID)
	if err != nil {
		return RedeemOutcome{}, err
	}
	now := s.clock.Now()
	referrer, candidate, rec, err := ApplyReferral(referrer, candidate, now)
	if err != nil {
		return RedeemOutcome{}, err
	}
	rec.ID = uuid.NewString()
	if err := tx.InsertReferralRecord(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return RedeemOutcome{}, ErrAlreadyReferred
		}
		return RedeemOutcome{}, err
	}
	if referrer, err = tx.Save(ctx, referrer); err != nil {
		return RedeemOutcome{}, err
	}
	if candidate, err = tx.Save(ctx, candidate); err != nil {
		return RedeemOutcome{}, err
	}
	return RedeemOutcome{
		Referrer:       referrer,
		Candidate:      candidate,
		Record:         rec,
		ReferrerReward: economy.ReferrerReward,
		ReferredReward: economy.ReferredReward,
	}, nil
}

func (s *Service) Leaderboard(ctx context.Context, limit, offset int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > maxLeaderboardRows {
		limit = maxLeaderboardRows
	}
	if offset < 0 {
		offset = 0
	}
	if s.cache != nil {
		if rows, ok := s.cache.Get(ctx, limit, offset); ok {
			return rows, nil
		}
	}
	players, err := s.store.TopPlayers(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]LeaderboardRow, 0, len(players))
	for i, p := range players {
		out = append(out, LeaderboardRow{
			Rank:        int64(offset + i + 1),
			PlayerID:    p.ID,
			Name:        p.Name(),
			Coins:       p.Coins,
			Level:       economy.LevelFor(p.Coins),
			TotalClicks: p.TotalClicks,
		})
	}
	if s.cache != nil {
		s.cache.Put(ctx, limit, offset, out)
	}
	return out, nil
}

func (s *Service) ReferralStats(ctx context.Context, id string) (ReferralStats, error) {
	p, err := s.load(ctx, s.store, id)
	if err != nil {
		return ReferralStats{}, err
	}
	records, err := s.store.ReferralsBy(ctx, id)
	if err != nil {
		return ReferralStats{}, err
	}
	out := ReferralStats{
		ReferralCode:   p.ReferralCode,
		TotalReferrals: len(records),
		TotalEarnings:  p.ReferralEarnings,
		Referred:       make([]ReferredPlayer, 0, len(records)),
	}
	for _, rec := range records {
		ref := ReferredPlayer{PlayerID: rec.ReferredID, Name: "Anonymous", ReferredAt: rec.CreatedAt}
		if rp, err := s.store.Load(ctx, rec.ReferredID); err == nil {
			ref.Name = rp.Name()
			ref.Coins = rp.Coins
		}
		out.Referred = append(out.Referred, ref)
	}
	return out, nil
}

func (s *Service) NotifyDailyBonusDue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = reminderBatch
	}
	cutoff := s.clock.Now().Add(-economy.DailyBonusWindow)
	ids, err := s.store.DailyBonusDue(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, id := range ids {
		p, err := s.mutate(ctx, id, func(p Player, now time.Time) (Player, error) {
			if !p.BonusReminderDue(now) {
				return p, errNothingToDo
			}
			p.BonusNotifiedAt = now
			return p, nil
		})
		if errors.Is(err, errNothingToDo) {
			continue
		}
		if err != nil {
			s.log.Warn("daily bonus reminder skipped", "player_id", id, "err", err)
			continue
		}
		s.emit(ctx, Notification{
			PlayerID: id,
			Event:    EventDailyBonusAvailable,
			Amount:   economy.DailyBonusAmount(p.Level),
		})
		sent++
	}
	return sent, nil
}

func (s *Service) mutate(ctx context.Context, id string, fn func(p Player, now time.Time) (Player, error)) (Player, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	retryDelay := 20 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		p, err := s.load(ctx, s.store, id)
		if err != nil {
			return Player{}, err
		}
		next, err := fn(p, s.clock.Now())
		if err != nil {
			return Player{}, err
		}
		saved, err := s.store.Save(ctx, next)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, ErrStorageConflict) {
			return Player{}, err
		}
		s.log.Warn("player save conflict, retrying", "player_id", id, "attempt", attempt+1)
		if attempt < maxAttempts-1 {
			if err := sleepWithContext(ctx, retryDelay); err != nil {
				return Player{}, err
			}
			retryDelay *= 2
		}
	}
	return Player{}, ErrStorageConflict
}

type loadOption func(*loadArgs)

type loadArgs struct {
	code string
}

func withCode(code string) loadOption {
	return func(a *loadArgs) { a.code = code }
}

func (s *Service) load(ctx context.Context, tx Tx, id string, opts ...loadOption) (Player, error) {
	var args loadArgs
	for _, opt := range opts {
		opt(&args)
	}
	var p Player
	var err error
	if args.code != "" {
		p, err = tx.LoadByReferralCode(ctx, args.code)
	} else {
		p, err = tx.Load(ctx, id)
	}
	if err != nil {
		return Player{}, err
	}
	return s.checked(p)
}

func (s *Service) checked(p Player) (Player, error) {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		s.log.Error("corrupt player record", "player_id", p.ID, "err", err)
		return Player{}, err
	}
	return p, nil
}

func (s *Service) emit(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn("notification failed", "player_id", n.PlayerID, "event", string(n.Event), "err", err)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
