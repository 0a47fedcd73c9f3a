package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	WebhookStatusPending   = "pending"
	WebhookStatusProcessed = "processed"
	WebhookStatusFailed    = "failed"
)

// AppStoreWebhookLog records every inbound App Store server notification
// attempt, including ones that never verify. Rows are created before
// verification and moved to exactly one terminal status afterwards.
// Notification UUIDs are deliberately not unique-constrained: Apple
// redeliveries produce one row per attempt and subscription state stays
// idempotent through the upsert path.
type AppStoreWebhookLog struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	NotificationType      string     `gorm:"type:varchar(100);not null;default:'unknown';index:idx_webhook_log_type_status,priority:1" json:"notification_type"`
	Subtype               string     `gorm:"type:varchar(100);default:null" json:"subtype"`
	NotificationUUID      string     `gorm:"type:varchar(100);default:null;index" json:"notification_uuid"`
	OriginalTransactionID string     `gorm:"type:varchar(191);default:null;index" json:"original_transaction_id"`
	BundleID              string     `gorm:"type:varchar(191);default:null" json:"bundle_id"`
	Status                string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_webhook_log_type_status,priority:2" json:"status"`
	ErrorMessage          string     `gorm:"type:text" json:"error_message"`
	Payload               string     `gorm:"type:longtext;not null" json:"payload"`
	DecodedPayload        string     `gorm:"type:longtext" json:"decoded_payload"`
	NotificationTimestamp *time.Time `gorm:"type:timestamp;default:null" json:"notification_timestamp"`
	CreatedAt             time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l *AppStoreWebhookLog) MarkAsProcessed(db *gorm.DB) error {
	return db.Model(l).Update("status", WebhookStatusProcessed).Error
}

func (l *AppStoreWebhookLog) MarkAsFailed(db *gorm.DB, errorMessage string) error {
	return db.Model(l).Updates(map[string]interface{}{
		"status":        WebhookStatusFailed,
		"error_message": errorMessage,
	}).Error
}
