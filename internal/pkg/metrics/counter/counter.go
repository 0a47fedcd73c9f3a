package counter

import (
	"context"
	"strconv"

	"github.com/vpspilot/vpspilot/internal/pkg/cache"
)

const (
	webhookReceivedKey  = "appstore:counters:received"
	webhookProcessedKey = "appstore:counters:processed"
	webhookFailedKey    = "appstore:counters:failed"
)

// AddWebhookReceived increments the inbound notification counter in Redis.
func AddWebhookReceived() error {
	return incr(webhookReceivedKey)
}

// AddWebhookProcessed increments the processed notification counter in Redis.
func AddWebhookProcessed() error {
	return incr(webhookProcessedKey)
}

// AddWebhookFailed increments the failed notification counter in Redis.
func AddWebhookFailed() error {
	return incr(webhookFailedKey)
}

func incr(key string) error {
	return cache.GetClient().Incr(context.Background(), key).Err()
}

// WebhookTotals reads the current counter values. Missing keys read as zero.
func WebhookTotals() (received, processed, failed int64) {
	received = readCounter(webhookReceivedKey)
	processed = readCounter(webhookProcessedKey)
	failed = readCounter(webhookFailedKey)
	return
}

func readCounter(key string) int64 {
	val, err := cache.Get(key)
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
