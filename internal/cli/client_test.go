package cli

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tapcoin/internal/auth"

	"github.com/jonboulle/clockwork"
)

func TestAPIErrorCarriesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("auth header=%q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"daily bonus not ready","code":"bonus_not_ready"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ClaimDailyBonus(context.Background(), "tok")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%v, want APIError", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Code != "bonus_not_ready" {
		t.Fatalf("apiErr=%+v", apiErr)
	}
	if IsOffline(err) {
		t.Fatalf("api answer reported as offline")
	}
}

func TestLeaderboardQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/leaderboard" || r.URL.Query().Get("limit") != "5" || r.URL.Query().Get("offset") != "10" {
			t.Errorf("url=%s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"rows":[]}`))
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL+"/").Leaderboard(context.Background(), 5, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if _, ok := out["rows"]; !ok {
		t.Fatalf("out=%v", out)
	}
}

func TestIsOfflineOnTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Me(context.Background(), "tok")
	if err == nil || !IsOffline(err) {
		t.Fatalf("err=%v, want offline", err)
	}
}

func TestSessionFromToken(t *testing.T) {
	iss, err := auth.NewIssuer("secret", time.Hour, clockwork.NewRealClock())
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	tok, err := iss.Issue("discord:42", "ana")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	s, err := SessionFromToken("  " + tok + "\n")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if s.PlayerID != "discord:42" || s.Name != "ana" || s.AccessToken != tok {
		t.Fatalf("session=%+v", s)
	}
	if _, err := SessionFromToken("not-a-token"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, err := LoadSession(); err == nil {
		t.Fatalf("expected error without a session")
	}
	if err := SaveSession(Session{AccessToken: "tok", PlayerID: "wa:1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	s, err := LoadSession()
	if err != nil || s.PlayerID != "wa:1" {
		t.Fatalf("load=%+v err=%v", s, err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := LoadSession(); err == nil {
		t.Fatalf("session survived clear")
	}
}
