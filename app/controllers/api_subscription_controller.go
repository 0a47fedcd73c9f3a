package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/vpspilot/vpspilot/internal/pkg/appstore"
)

const outboundCallTimeout = 30 * time.Second

// HandleSubscriptionStatus proxies a live status lookup to the App Store
// Server API.
func HandleSubscriptionStatus(c *fiber.Ctx) error {
	originalTransactionID := c.Params("originalTransactionId")
	if originalTransactionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "originalTransactionId is required"})
	}

	client := appstore.NewClient(appstore.NewConfigFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), outboundCallTimeout)
	defer cancel()

	status, err := client.GetSubscriptionStatus(ctx, originalTransactionID)
	if err != nil {
		return apiClientError(c, "subscription status lookup failed", err)
	}
	return c.Status(fiber.StatusOK).JSON(status)
}

// HandleTransactionHistory returns one page of transaction history; clients
// pass the previous revision cursor to continue.
func HandleTransactionHistory(c *fiber.Ctx) error {
	originalTransactionID := c.Params("originalTransactionId")
	if originalTransactionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "originalTransactionId is required"})
	}

	client := appstore.NewClient(appstore.NewConfigFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), outboundCallTimeout)
	defer cancel()

	history, err := client.GetTransactionHistory(ctx, originalTransactionID, c.Query("revision"))
	if err != nil {
		return apiClientError(c, "transaction history lookup failed", err)
	}
	return c.Status(fiber.StatusOK).JSON(history)
}

// HandleOrderLookup resolves a customer order id.
func HandleOrderLookup(c *fiber.Ctx) error {
	orderID := c.Params("orderId")
	if orderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "orderId is required"})
	}

	client := appstore.NewClient(appstore.NewConfigFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), outboundCallTimeout)
	defer cancel()

	order, err := client.LookupOrder(ctx, orderID)
	if err != nil {
		return apiClientError(c, "order lookup failed", err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"order": order})
}

// HandleRequestTestNotification triggers a sandbox test notification so the
// webhook wiring can be exercised end to end.
func HandleRequestTestNotification(c *fiber.Ctx) error {
	client := appstore.NewClient(appstore.NewConfigFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), outboundCallTimeout)
	defer cancel()

	resp, err := client.RequestTestNotification(ctx)
	if err != nil {
		if errors.Is(err, appstore.ErrConfiguration) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return apiClientError(c, "test notification request failed", err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func apiClientError(c *fiber.Ctx, msg string, err error) error {
	log.Errorf("%s: %v", msg, err)
	if errors.Is(err, appstore.ErrUpstreamUnavailable) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": msg})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg})
}
