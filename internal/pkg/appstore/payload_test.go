package appstore

import (
	"testing"
	"time"
)

func TestMsToTime(t *testing.T) {
	got := msToTime(1748779200000)
	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("msToTime = %v, want %v", got, want)
	}
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", got.Location())
	}
}

func TestTransactionInfoExpiresAt(t *testing.T) {
	tx := &TransactionInfo{}
	if tx.ExpiresAt() != nil {
		t.Fatalf("expected nil expiry for non-expiring product")
	}

	tx.ExpiresDate = 1748779200000
	if got := tx.ExpiresAt(); got == nil || !got.Equal(msToTime(1748779200000)) {
		t.Fatalf("ExpiresAt = %v", got)
	}
}

func TestRenewalInfoAutoRenewEnabled(t *testing.T) {
	r := &RenewalInfo{AutoRenewStatus: 1}
	if !r.AutoRenewEnabled() {
		t.Fatalf("expected auto-renew on for status 1")
	}
	r.AutoRenewStatus = 0
	if r.AutoRenewEnabled() {
		t.Fatalf("expected auto-renew off for status 0")
	}
}

func TestRenewalInfoGracePeriodExpiresAt(t *testing.T) {
	r := &RenewalInfo{}
	if r.GracePeriodExpiresAt() != nil {
		t.Fatalf("expected nil grace period")
	}
	r.GracePeriodExpiresDate = 1748779200000
	if got := r.GracePeriodExpiresAt(); got == nil || !got.Equal(msToTime(1748779200000)) {
		t.Fatalf("GracePeriodExpiresAt = %v", got)
	}
}
