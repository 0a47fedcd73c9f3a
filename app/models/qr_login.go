package models

import (
	"time"

	"github.com/google/uuid"
)

// QrLogin is an ephemeral device-login token. Unused tokens expire quickly;
// used ones are kept for a few days and then purged by the scheduled sweep.
type QrLogin struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Token     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"token"`
	UserID    *uint     `gorm:"default:null;index" json:"user_id"`
	Used      bool      `gorm:"default:false;index:idx_qr_logins_used_expires,priority:1" json:"used"`
	ExpiresAt time.Time `gorm:"type:timestamp;not null;index:idx_qr_logins_used_expires,priority:2" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewQrLogin creates an unclaimed token valid for the given duration.
func NewQrLogin(validFor time.Duration) *QrLogin {
	return &QrLogin{
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(validFor),
	}
}

func (q *QrLogin) IsExpired() bool {
	return time.Now().After(q.ExpiresAt)
}
