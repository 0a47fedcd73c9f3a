package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/vpspilot/vpspilot/internal/pkg/appstore"
)

func TestStatusForProcessError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: appstore.ErrMissingSignedPayload, want: fiber.StatusBadRequest},
		{err: fmt.Errorf("wrapped: %w", appstore.ErrMissingSignedPayload), want: fiber.StatusBadRequest},
		{err: appstore.ErrMalformedToken, want: fiber.StatusUnauthorized},
		{err: appstore.ErrMissingKeyID, want: fiber.StatusUnauthorized},
		{err: appstore.ErrUnknownKeyID, want: fiber.StatusUnauthorized},
		{err: appstore.ErrSignatureInvalid, want: fiber.StatusUnauthorized},
		{err: fmt.Errorf("decode notification envelope: %w", appstore.ErrSignatureInvalid), want: fiber.StatusUnauthorized},
		{err: appstore.ErrUpstreamUnavailable, want: fiber.StatusInternalServerError},
		{err: appstore.ErrMissingType, want: fiber.StatusInternalServerError},
		{err: errors.New("some db error"), want: fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusForProcessError(tt.err); got != tt.want {
			t.Fatalf("statusForProcessError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHandleAppStoreWebhookVerify(t *testing.T) {
	t.Setenv("APPSTORE_ENVIRONMENT", "sandbox")

	app := fiber.New()
	app.Get("/webhooks/appstore/verify", HandleAppStoreWebhookVerify)

	resp, err := app.Test(httptest.NewRequest("GET", "/webhooks/appstore/verify", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var out struct {
		Status      string `json:"status"`
		Environment string `json:"environment"`
		Timestamp   string `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Status != "verified" {
		t.Fatalf("status field = %q", out.Status)
	}
	if out.Environment != "sandbox" {
		t.Fatalf("environment field = %q", out.Environment)
	}
	if out.Timestamp == "" {
		t.Fatalf("expected a timestamp")
	}
}

func TestMessageForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{status: fiber.StatusBadRequest, want: "Invalid payload format"},
		{status: fiber.StatusUnauthorized, want: "Invalid signature"},
		{status: fiber.StatusInternalServerError, want: "Internal server error"},
	}

	for _, tt := range tests {
		if got := messageForStatus(tt.status); got != tt.want {
			t.Fatalf("messageForStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
