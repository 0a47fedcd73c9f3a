package models

import (
	"testing"
	"time"
)

func TestNewQrLogin(t *testing.T) {
	q := NewQrLogin(5 * time.Minute)
	if q.Token == "" {
		t.Fatalf("expected a generated token")
	}
	if q.Used {
		t.Fatalf("new token must be unused")
	}
	if q.IsExpired() {
		t.Fatalf("freshly created token reported expired")
	}

	other := NewQrLogin(5 * time.Minute)
	if other.Token == q.Token {
		t.Fatalf("tokens must be unique")
	}
}

func TestQrLoginIsExpired(t *testing.T) {
	q := &QrLogin{ExpiresAt: time.Now().Add(-time.Minute)}
	if !q.IsExpired() {
		t.Fatalf("past expiry not reported expired")
	}
}
