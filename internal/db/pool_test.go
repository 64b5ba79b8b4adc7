package db

import (
	"context"
	"testing"
)

func TestConnectRejectsBadURL(t *testing.T) {
	if _, err := Connect(context.Background(), "postgres://%zz", nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestConnectStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Connect(ctx, "postgres://nobody@127.0.0.1:1/none?connect_timeout=1", nil); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
