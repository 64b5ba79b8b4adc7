package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"tapcoin/internal/db"
	"tapcoin/internal/game"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapErr(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"40001", game.ErrStorageConflict},
		{"40P01", game.ErrStorageConflict},
		{"23505", game.ErrDuplicateKey},
	}
	for _, tc := range tests {
		err := mapErr(fmt.Errorf("exec: %w", &pgconn.PgError{Code: tc.code}))
		if !errors.Is(err, tc.want) {
			t.Fatalf("code=%s got=%v want %v", tc.code, err, tc.want)
		}
	}
	plain := errors.New("boom")
	if got := mapErr(plain); got != plain {
		t.Fatalf("non-postgres error was rewritten: %v", got)
	}
	if mapErr(nil) != nil {
		t.Fatalf("nil error was rewritten")
	}
}

func TestNullTime(t *testing.T) {
	if nullTime(time.Time{}) != nil {
		t.Fatalf("zero time should be NULL")
	}
	now := time.Now()
	if got := nullTime(now); got == nil || !got.Equal(now) {
		t.Fatalf("nullTime(%v)=%v", now, got)
	}
}

// TestStoreRoundTrip needs a disposable database in TAPCOIN_TEST_DATABASE_URL.
func TestStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("TAPCOIN_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TAPCOIN_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	st := New(pool)
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	suffix := uuid.NewString()[:8]
	now := time.Now().UTC().Truncate(time.Microsecond)
	a, err := st.Create(ctx, game.NewPlayer("test:a"+suffix, game.Profile{Username: "a"}, "REFA"+suffix, now))
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := st.Create(ctx, game.NewPlayer("test:b"+suffix, game.Profile{Username: "b"}, "REFB"+suffix, now))
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := st.Create(ctx, game.NewPlayer("test:c"+suffix, game.Profile{}, "REFA"+suffix, now)); !errors.Is(err, game.ErrDuplicateKey) {
		t.Fatalf("code collision err=%v", err)
	}

	a.Coins = 42
	saved, err := st.Save(ctx, a)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Version != a.Version+1 {
		t.Fatalf("version=%d want %d", saved.Version, a.Version+1)
	}
	if _, err := st.Save(ctx, a); !errors.Is(err, game.ErrStorageConflict) {
		t.Fatalf("stale save err=%v", err)
	}

	rec := game.ReferralRecord{ID: uuid.NewString(), ReferrerID: a.ID, ReferredID: b.ID, CreatedAt: now}
	err = st.Transact(ctx, func(tx game.Tx) error {
		return tx.InsertReferralRecord(ctx, rec)
	})
	if err != nil {
		t.Fatalf("insert referral: %v", err)
	}
	rec.ID = uuid.NewString()
	err = st.Transact(ctx, func(tx game.Tx) error {
		return tx.InsertReferralRecord(ctx, rec)
	})
	if !errors.Is(err, game.ErrDuplicateKey) {
		t.Fatalf("second referral err=%v", err)
	}
	refs, err := st.ReferralsBy(ctx, a.ID)
	if err != nil || len(refs) != 1 {
		t.Fatalf("referrals=%v err=%v", refs, err)
	}
}
