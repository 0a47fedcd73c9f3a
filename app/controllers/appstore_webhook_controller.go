package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/vpspilot/vpspilot/internal/pkg/appstore"
	"github.com/vpspilot/vpspilot/internal/pkg/database"
	"github.com/vpspilot/vpspilot/internal/pkg/metrics/counter"
	"github.com/vpspilot/vpspilot/internal/pkg/subscription"
)

// HandleAppStoreWebhook receives App Store server notifications. Every
// attempt is recorded by the service regardless of outcome; Apple's retry
// behavior is the recovery path, so duplicate delivery must stay safe.
func HandleAppStoreWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	log.Infof("appstore webhook received: ip=%s payload_size=%d", c.IP(), len(rawBody))
	if err := counter.AddWebhookReceived(); err != nil {
		log.Warnf("webhook counter update failed: %v", err)
	}

	svc := subscription.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := svc.ProcessNotification(ctx, rawBody); err != nil {
		_ = counter.AddWebhookFailed()
		status := statusForProcessError(err)
		if status == fiber.StatusUnauthorized {
			log.Warnf("appstore webhook signature rejected: ip=%s err=%v", c.IP(), err)
		}
		return c.Status(status).JSON(fiber.Map{"error": messageForStatus(status)})
	}

	_ = counter.AddWebhookProcessed()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "success",
		"message": "Notification processed successfully",
	})
}

// HandleAppStoreWebhookVerify is a connectivity probe for webhook setup. It
// also reports the delivery counters so a misbehaving integration shows up
// without digging through logs.
func HandleAppStoreWebhookVerify(c *fiber.Ctx) error {
	cfg := appstore.NewConfigFromEnv()
	received, processed, failed := counter.WebhookTotals()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":      "verified",
		"environment": cfg.Environment,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"counters": fiber.Map{
			"received":  received,
			"processed": processed,
			"failed":    failed,
		},
	})
}

// statusForProcessError maps pipeline failures onto the webhook contract:
// 400 for a body without signedPayload, 401 for envelope trust failures,
// 500 for everything else.
func statusForProcessError(err error) int {
	switch {
	case errors.Is(err, appstore.ErrMissingSignedPayload):
		return fiber.StatusBadRequest
	case errors.Is(err, appstore.ErrMalformedToken),
		errors.Is(err, appstore.ErrMissingKeyID),
		errors.Is(err, appstore.ErrUnknownKeyID),
		errors.Is(err, appstore.ErrSignatureInvalid):
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

func messageForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "Invalid payload format"
	case fiber.StatusUnauthorized:
		return "Invalid signature"
	default:
		return "Internal server error"
	}
}
