package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestIssueVerify(t *testing.T) {
	clock := clockwork.NewFakeClock()
	iss, err := NewIssuer("s3cret", time.Hour, clock)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	tok, err := iss.Issue("discord:42", "ana")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := iss.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.PlayerID != "discord:42" || claims.Name != "ana" {
		t.Fatalf("claims=%+v", claims)
	}

	clock.Advance(2 * time.Hour)
	if _, err := iss.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token err=%v", err)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a, _ := NewIssuer("one", time.Hour, clock)
	b, _ := NewIssuer("two", time.Hour, clock)
	tok, _ := a.Issue("wa:1555", "")
	if _, err := b.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err=%v want invalid token", err)
	}
	if _, err := a.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage err=%v", err)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer("  ", time.Hour, nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
