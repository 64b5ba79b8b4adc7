package game_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tapcoin/internal/economy"
	"tapcoin/internal/game"
	"tapcoin/internal/store/memory"

	"github.com/jonboulle/clockwork"
)

type recorder struct {
	mu   sync.Mutex
	sent []game.Notification
}

func (r *recorder) Notify(_ context.Context, n game.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recorder) all() []game.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]game.Notification(nil), r.sent...)
}

type env struct {
	svc   *game.Service
	store *memory.Store
	clock *clockwork.FakeClock
	notes *recorder
}

func newEnv(t *testing.T) env {
	t.Helper()
	st := memory.New()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	notes := &recorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := game.NewService(st, logger, game.WithClock(clock), game.WithNotifier(notes))
	return env{svc: svc, store: st, clock: clock, notes: notes}
}

func (e env) player(t *testing.T, id string) game.Player {
	t.Helper()
	p, err := e.svc.GetOrCreate(context.Background(), id, game.Profile{Username: id})
	if err != nil {
		t.Fatalf("get or create %s: %v", id, err)
	}
	return p
}

// edit rewrites a stored player directly, keeping its version.
func (e env) edit(t *testing.T, id string, fn func(p *game.Player)) {
	t.Helper()
	p, err := e.store.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("load %s: %v", id, err)
	}
	fn(&p)
	e.store.Put(p)
}

func TestGetOrCreateStarterValues(t *testing.T) {
	e := newEnv(t)
	p := e.player(t, "discord:1")
	if p.Coins != 500 || p.Energy != 1000 || p.MaxEnergy != 1000 || p.CoinsPerClick != 1 || p.EnergyRegenRate != 1 {
		t.Fatalf("unexpected starter values: %+v", p)
	}
	if p.Level != 3 {
		t.Fatalf("level=%d want 3", p.Level)
	}
	again := e.player(t, "discord:1")
	if again.ReferralCode != p.ReferralCode {
		t.Fatalf("referral code changed on second contact: %q vs %q", again.ReferralCode, p.ReferralCode)
	}
}

func TestTap(t *testing.T) {
	e := newEnv(t)
	e.player(t, "p1")
	res, err := e.svc.Tap(context.Background(), "p1")
	if err != nil {
		t.Fatalf("tap: %v", err)
	}
	if res.Player.Coins != 501 || res.Player.Energy != 999 || res.Player.TotalClicks != 1 || res.Delta != 1 {
		t.Fatalf("unexpected tap result: %+v", res)
	}
}

func TestTapAccruesBeforeSpending(t *testing.T) {
	e := newEnv(t)
	e.player(t, "p1")
	e.edit(t, "p1", func(p *game.Player) { p.Energy = 0 })

	if _, err := e.svc.Tap(context.Background(), "p1"); !errors.Is(err, game.ErrInsufficientEnergy) {
		t.Fatalf("err=%v want insufficient energy", err)
	}
	e.clock.Advance(5500 * time.Millisecond)
	res, err := e.svc.Tap(context.Background(), "p1")
	if err != nil {
		t.Fatalf("tap after regen: %v", err)
	}
	if res.Player.Energy != 4 {
		t.Fatalf("energy=%d want 4", res.Player.Energy)
	}
}

func TestPurchaseUpgrade(t *testing.T) {
	e := newEnv(t)
	e.player(t, "p1")
	e.edit(t, "p1", func(p *game.Player) { p.Coins = 150 })

	res, err := e.svc.PurchaseUpgrade(context.Background(), "p1", "clickPower")
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if res.Player.Coins != 50 || res.Player.CoinsPerClick != 2 || res.Delta != -100 {
		t.Fatalf("unexpected purchase result: %+v", res)
	}

	_, err = e.svc.PurchaseUpgrade(context.Background(), "p1", "clickPower")
	if !errors.Is(err, game.ErrInsufficientFunds) {
		t.Fatalf("err=%v want insufficient funds", err)
	}
	if game.Code(err) != "insufficient_funds" {
		t.Fatalf("code=%q", game.Code(err))
	}
	if _, err := e.svc.PurchaseUpgrade(context.Background(), "p1", "rocket"); !errors.Is(err, game.ErrUnknownUpgrade) {
		t.Fatalf("err=%v want unknown upgrade", err)
	}
}

func TestRegenUpgradeAccruesAtOldRate(t *testing.T) {
	e := newEnv(t)
	e.player(t, "p1")
	e.edit(t, "p1", func(p *game.Player) { p.Energy = 0 })
	e.clock.Advance(10 * time.Second)

	res, err := e.svc.PurchaseUpgrade(context.Background(), "p1", string(economy.EnergyRegen))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if res.Player.Energy != 10 || res.Player.EnergyRegenRate != 2 {
		t.Fatalf("energy=%d rate=%d want 10 2", res.Player.Energy, res.Player.EnergyRegenRate)
	}
}

func TestDailyBonus(t *testing.T) {
	e := newEnv(t)
	e.player(t, "p1")
	ctx := context.Background()

	res, err := e.svc.ClaimDailyBonus(ctx, "p1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res.Delta != 3000 || res.Player.Coins != 3500 {
		t.Fatalf("delta=%d coins=%d want 3000 3500", res.Delta, res.Player.Coins)
	}
	if res.Player.DailyBonusReady || res.Player.DailyBonusNextAt == nil {
		t.Fatalf("bonus should not be ready right after a claim")
	}

	e.clock.Advance(23 * time.Hour)
	if _, err := e.svc.ClaimDailyBonus(ctx, "p1"); !errors.Is(err, game.ErrBonusNotReady) {
		t.Fatalf("err=%v want bonus not ready", err)
	}
	e.clock.Advance(time.Hour)
	if _, err := e.svc.ClaimDailyBonus(ctx, "p1"); err != nil {
		t.Fatalf("claim after window: %v", err)
	}
}

func TestCompleteTask(t *testing.T) {
	e := newEnv(t)
	e.player(t, "p1")
	ctx := context.Background()

	if _, err := e.svc.CompleteTask(ctx, "p1", "clicks_100"); !errors.Is(err, game.ErrTaskNotEligible) {
		t.Fatalf("err=%v want not eligible", err)
	}
	e.edit(t, "p1", func(p *game.Player) { p.TotalClicks = 100 })

	res, err := e.svc.CompleteTask(ctx, "p1", "clicks_100")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Delta != 500 || res.Player.Coins != 1000 {
		t.Fatalf("delta=%d coins=%d", res.Delta, res.Player.Coins)
	}
	if _, err := e.svc.CompleteTask(ctx, "p1", "clicks_100"); !errors.Is(err, game.ErrTaskAlreadyCompleted) {
		t.Fatalf("err=%v want already completed", err)
	}
	if _, err := e.svc.CompleteTask(ctx, "p1", "moon_landing"); !errors.Is(err, game.ErrUnknownTask) {
		t.Fatalf("err=%v want unknown task", err)
	}

	views, err := e.svc.ListTasks(ctx, "p1")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	for _, v := range views {
		if v.ID == "clicks_100" && (!v.Completed || v.Claimable) {
			t.Fatalf("clicks_100 view=%+v", v)
		}
		if v.ID == "level_5" && v.Progress != 3 {
			t.Fatalf("level_5 progress=%d want 3", v.Progress)
		}
	}
}

func TestCorruptRecordTreatedAsMissing(t *testing.T) {
	e := newEnv(t)
	e.player(t, "p1")
	e.edit(t, "p1", func(p *game.Player) { p.Coins = -10 })

	_, err := e.svc.Tap(context.Background(), "p1")
	if !errors.Is(err, game.ErrPlayerNotFound) || !game.IsCorrupt(err) {
		t.Fatalf("err=%v want corrupt record", err)
	}
	if _, err := e.svc.GetOrCreate(context.Background(), "p1", game.Profile{}); !game.IsCorrupt(err) {
		t.Fatalf("get or create must not overwrite a corrupt record, err=%v", err)
	}
}

func TestRedeem(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.player(t, "a")
	e.player(t, "b")
	e.edit(t, "a", func(p *game.Player) { p.Coins = 1000 })

	res, err := e.svc.Redeem(ctx, " "+a.ReferralCode+" ", "b")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if res.Player.Coins != 1000 || res.Player.ReferredBy != "a" || res.ReferredReward != 500 {
		t.Fatalf("candidate result=%+v", res)
	}
	ref, err := e.store.Load(ctx, "a")
	if err != nil {
		t.Fatalf("load referrer: %v", err)
	}
	if ref.Coins != 2000 || ref.ReferralEarnings != 1000 {
		t.Fatalf("referrer coins=%d earnings=%d", ref.Coins, ref.ReferralEarnings)
	}

	notes := e.notes.all()
	if len(notes) != 1 || notes[0].PlayerID != "a" || notes[0].Event != game.EventReferralRedeemed || notes[0].Amount != 1000 {
		t.Fatalf("notifications=%+v", notes)
	}

	if _, err := e.svc.Redeem(ctx, a.ReferralCode, "b"); !errors.Is(err, game.ErrAlreadyReferred) {
		t.Fatalf("err=%v want already referred", err)
	}

	stats, err := e.svc.ReferralStats(ctx, "a")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalReferrals != 1 || stats.TotalEarnings != 1000 || stats.Referred[0].PlayerID != "b" {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestRedeemRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.player(t, "a")

	if _, err := e.svc.Redeem(ctx, a.ReferralCode, "a"); !errors.Is(err, game.ErrSelfReferral) {
		t.Fatalf("err=%v want self referral", err)
	}
	if _, err := e.svc.Redeem(ctx, "REFNOPE0000", "a"); !errors.Is(err, game.ErrUnknownCode) {
		t.Fatalf("err=%v want unknown code", err)
	}
	if _, err := e.svc.Redeem(ctx, a.ReferralCode, "ghost"); !errors.Is(err, game.ErrPlayerNotFound) {
		t.Fatalf("err=%v want player not found", err)
	}
	p, _ := e.store.Load(ctx, "a")
	if p.Coins != 500 || p.ReferralEarnings != 0 {
		t.Fatalf("rejected redemptions moved coins: %+v", p)
	}
}

func TestConcurrentRedeemSingleWinner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.player(t, "candidate")

	const n = 8
	codes := make([]string, n)
	for i := range codes {
		codes[i] = e.player(t, "ref"+string(rune('a'+i))).ReferralCode
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.Redeem(ctx, codes[i], "candidate")
		}(i)
	}
	wg.Wait()

	wins, already := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, game.ErrAlreadyReferred):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || already != n-1 {
		t.Fatalf("wins=%d already=%d", wins, already)
	}

	c, _ := e.store.Load(ctx, "candidate")
	if c.Coins != 1000 {
		t.Fatalf("candidate coins=%d want 1000", c.Coins)
	}
	var earned int64
	for i := 0; i < n; i++ {
		p, _ := e.store.Load(ctx, "ref"+string(rune('a'+i)))
		earned += p.ReferralEarnings
	}
	if earned != 1000 {
		t.Fatalf("total referral earnings=%d want 1000", earned)
	}
}

func TestRedeemDuplicateRecordWins(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.player(t, "a")
	e.player(t, "b")
	e.player(t, "c")

	// b already has a ledger entry from another instance but its player row
	// was never updated.
	if err := e.store.InsertReferralRecord(ctx, game.ReferralRecord{
		ID:         "rec-1",
		ReferrerID: "c",
		ReferredID: "b",
		CreatedAt:  e.clock.Now(),
	}); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	if _, err := e.svc.Redeem(ctx, a.ReferralCode, "b"); !errors.Is(err, game.ErrAlreadyReferred) {
		t.Fatalf("err=%v want already referred", err)
	}
	for _, id := range []string{"a", "b"} {
		p, _ := e.store.Load(ctx, id)
		if p.Coins != 500 || p.ReferralEarnings != 0 || p.ReferredBy != "" {
			t.Fatalf("%s changed after rejected redeem: %+v", id, p)
		}
	}
	if len(e.notes.all()) != 0 {
		t.Fatalf("rejected redeem notified: %+v", e.notes.all())
	}
}

func TestConcurrentRedeemSameCodeAcrossServices(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.player(t, "a")
	e.player(t, "b")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	other := game.NewService(e.store, logger, game.WithClock(e.clock))
	services := []*game.Service{e.svc, other}

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = services[i%2].Redeem(ctx, a.ReferralCode, "b")
		}(i)
	}
	wg.Wait()

	wins, already := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, game.ErrAlreadyReferred):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || already != n-1 {
		t.Fatalf("wins=%d already=%d", wins, already)
	}

	ref, _ := e.store.Load(ctx, "a")
	if ref.Coins != 1500 || ref.ReferralEarnings != 1000 {
		t.Fatalf("referrer coins=%d earnings=%d want 1500 1000", ref.Coins, ref.ReferralEarnings)
	}
	cand, _ := e.store.Load(ctx, "b")
	if cand.Coins != 1000 || cand.ReferredBy != "a" {
		t.Fatalf("candidate coins=%d referred_by=%q want 1000 a", cand.Coins, cand.ReferredBy)
	}
}

func TestConcurrentTapsKeepInvariants(t *testing.T) {
	e := newEnv(t)
	e.player(t, "p1")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.svc.Tap(context.Background(), "p1"); err != nil {
				t.Errorf("tap: %v", err)
			}
		}()
	}
	wg.Wait()

	p, _ := e.store.Load(context.Background(), "p1")
	if p.Coins != 500+n || p.Energy != 1000-n || p.TotalClicks != n {
		t.Fatalf("coins=%d energy=%d clicks=%d", p.Coins, p.Energy, p.TotalClicks)
	}
}

func TestLeaderboardOrderingStable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for id, coins := range map[string]int64{"b": 300, "a": 300, "c": 100} {
		e.player(t, id)
		e.edit(t, id, func(p *game.Player) { p.Coins = coins })
	}

	first, err := e.svc.Leaderboard(ctx, 10, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(first) != len(want) {
		t.Fatalf("rows=%d", len(first))
	}
	for i, row := range first {
		if row.PlayerID != want[i] || row.Rank != int64(i+1) {
			t.Fatalf("row %d = %+v", i, row)
		}
	}
	second, _ := e.svc.Leaderboard(ctx, 10, 0)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("leaderboard changed between calls: %+v vs %+v", first[i], second[i])
		}
	}

	page, _ := e.svc.Leaderboard(ctx, 1, 1)
	if len(page) != 1 || page[0].PlayerID != "b" || page[0].Rank != 2 {
		t.Fatalf("page=%+v", page)
	}
}

func TestNotifyDailyBonusDue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.player(t, "p1")

	sent, err := e.svc.NotifyDailyBonusDue(ctx, 100)
	if err != nil || sent != 1 {
		t.Fatalf("sent=%d err=%v want 1", sent, err)
	}
	if sent, _ := e.svc.NotifyDailyBonusDue(ctx, 100); sent != 0 {
		t.Fatalf("second sweep sent=%d want 0", sent)
	}

	if _, err := e.svc.ClaimDailyBonus(ctx, "p1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	e.clock.Advance(25 * time.Hour)
	if sent, _ := e.svc.NotifyDailyBonusDue(ctx, 100); sent != 1 {
		t.Fatalf("sweep after window sent=%d want 1", sent)
	}
	notes := e.notes.all()
	if notes[len(notes)-1].Event != game.EventDailyBonusAvailable {
		t.Fatalf("last notification=%+v", notes[len(notes)-1])
	}
}

type batchStore struct {
	*memory.Store
	limit int
}

func (b *batchStore) DailyBonusDue(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	b.limit = limit
	return b.Store.DailyBonusDue(ctx, cutoff, limit)
}

func TestNotifyDailyBonusDueDefaultsBatch(t *testing.T) {
	st := &batchStore{Store: memory.New()}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := game.NewService(st, slog.New(slog.NewTextHandler(io.Discard, nil)), game.WithClock(clock))
	ctx := context.Background()
	if _, err := svc.GetOrCreate(ctx, "p1", game.Profile{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, limit := range []int{0, -3} {
		if _, err := svc.NotifyDailyBonusDue(ctx, limit); err != nil {
			t.Fatalf("limit=%d: %v", limit, err)
		}
		if st.limit <= 0 {
			t.Fatalf("limit=%d reached the store as %d", limit, st.limit)
		}
	}
	if _, err := svc.NotifyDailyBonusDue(ctx, 7); err != nil || st.limit != 7 {
		t.Fatalf("explicit limit passed as %d err=%v", st.limit, err)
	}
}

func TestGetOrCreateRejectsBlankID(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.GetOrCreate(context.Background(), "   ", game.Profile{})
	if !errors.Is(err, game.ErrInvalidInput) {
		t.Fatalf("err=%v want invalid input", err)
	}
	if game.Code(err) != "invalid_input" {
		t.Fatalf("code=%q want invalid_input", game.Code(err))
	}
}
