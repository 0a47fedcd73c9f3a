package models

import "time"

const (
	DurationUnitDay   = "day"
	DurationUnitWeek  = "week"
	DurationUnitMonth = "month"
	DurationUnitYear  = "year"
)

// Plan is a sellable product. AppleProductID links a plan to the matching
// auto-renewable subscription product in App Store Connect.
type Plan struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"type:varchar(60);not null" json:"name"`
	Slug           string    `gorm:"type:varchar(100);uniqueIndex" json:"slug"`
	Description    string    `gorm:"type:text" json:"description"`
	Price          float64   `gorm:"type:decimal(8,2);not null" json:"price"`
	Duration       int       `gorm:"not null" json:"duration"`
	DurationUnit   string    `gorm:"type:varchar(10);not null;default:'day'" json:"duration_unit"`
	AppleProductID string    `gorm:"type:varchar(100);default:null;index" json:"apple_product_id"`
	TrialDays      int       `gorm:"default:0" json:"trial_days"`
	IsBestDeal     bool      `gorm:"default:false" json:"is_best_deal"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
