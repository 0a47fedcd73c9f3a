package models

import "time"

const (
	PurchaseStatusActive    = "active"
	PurchaseStatusCancelled = "cancelled"
	PurchaseStatusExpired   = "expired"
)

// Purchase is a time-boxed plan purchase (web checkout side). The scheduled
// sweep flips rows whose end date has passed to expired.
type Purchase struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	PlanID     uint       `gorm:"not null;index" json:"plan_id"`
	AmountPaid float64    `gorm:"type:decimal(8,2);not null" json:"amount_paid"`
	Status     string     `gorm:"type:varchar(20);not null;default:'active';index:idx_purchases_status_end,priority:1" json:"status"`
	StartDate  time.Time  `gorm:"type:timestamp;not null" json:"start_date"`
	EndDate    *time.Time `gorm:"type:timestamp;default:null;index:idx_purchases_status_end,priority:2" json:"end_date"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
	Plan *Plan `gorm:"foreignKey:PlanID" json:"-"`
}
