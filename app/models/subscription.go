package models

import "time"

const (
	SubscriptionStatusActive             = "active"
	SubscriptionStatusExpired            = "expired"
	SubscriptionStatusCancelled          = "cancelled"
	SubscriptionStatusRefunded           = "refunded"
	SubscriptionStatusRevoked            = "revoked"
	SubscriptionStatusBillingRetry       = "billing_retry"
	SubscriptionStatusBillingGracePeriod = "billing_grace_period"
)

// Subscription mirrors one Apple auto-renewable subscription lineage. All
// renewals of a purchase share the same original transaction id, so there is
// at most one row per lineage.
type Subscription struct {
	ID                          uint       `gorm:"primaryKey" json:"id"`
	UserID                      uint       `gorm:"not null;index:idx_subscriptions_user_status,priority:1" json:"user_id"`
	OriginalTransactionID       string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"original_transaction_id"`
	WebOrderLineItemID          string     `gorm:"type:varchar(191);default:null" json:"web_order_line_item_id"`
	ProductID                   string     `gorm:"type:varchar(100);not null" json:"product_id"`
	SubscriptionGroupIdentifier string     `gorm:"type:varchar(100);default:null" json:"subscription_group_identifier"`
	Status                      string     `gorm:"type:varchar(32);not null;default:'active';index:idx_subscriptions_user_status,priority:2" json:"status"`
	PurchasedAt                 time.Time  `gorm:"type:timestamp;not null" json:"purchased_at"`
	ExpiresAt                   *time.Time `gorm:"type:timestamp;default:null" json:"expires_at"`
	GracePeriodExpiresAt        *time.Time `gorm:"type:timestamp;default:null" json:"grace_period_expires_at"`
	AutoRenewStatus             bool       `gorm:"default:true" json:"auto_renew_status"`
	AutoRenewProductID          string     `gorm:"type:varchar(100);default:null" json:"auto_renew_product_id"`
	CancellationReason          string     `gorm:"type:varchar(100);default:null" json:"cancellation_reason"`
	PriceIncreaseStatus         string     `gorm:"type:varchar(50);default:null" json:"price_increase_status"`
	LatestTransactionInfo       string     `gorm:"type:longtext" json:"latest_transaction_info"`
	LatestRenewalInfo           string     `gorm:"type:longtext" json:"latest_renewal_info"`
	Metadata                    string     `gorm:"type:longtext" json:"metadata"`
	CreatedAt                   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

// IsActive reports whether the subscription currently grants access.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive &&
		s.ExpiresAt != nil &&
		s.ExpiresAt.After(time.Now())
}

// IsInGracePeriod reports whether access is provisionally retained pending
// a billing retry.
func (s *Subscription) IsInGracePeriod() bool {
	return s.Status == SubscriptionStatusBillingGracePeriod &&
		s.GracePeriodExpiresAt != nil &&
		s.GracePeriodExpiresAt.After(time.Now())
}

func (s *Subscription) IsExpired() bool {
	return !s.IsActive() && !s.IsInGracePeriod()
}

// RemainingDays returns whole days until expiry, never negative.
func (s *Subscription) RemainingDays() int {
	if s.ExpiresAt == nil {
		return 0
	}
	d := int(time.Until(*s.ExpiresAt).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
