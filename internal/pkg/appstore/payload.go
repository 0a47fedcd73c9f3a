package appstore

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Notification types of App Store Server Notifications V2 this service
// understands. Unknown types are acknowledged, never rejected.
const (
	NotificationTypeSubscribed             = "SUBSCRIBED"
	NotificationTypeDidRenew               = "DID_RENEW"
	NotificationTypeExpired                = "EXPIRED"
	NotificationTypeDidChangeRenewalStatus = "DID_CHANGE_RENEWAL_STATUS"
	NotificationTypeDidChangeRenewalPref   = "DID_CHANGE_RENEWAL_PREF"
	NotificationTypeOfferRedeemed          = "OFFER_REDEEMED"
	NotificationTypeRefund                 = "REFUND"
	NotificationTypeRevoke                 = "REVOKE"
	NotificationTypePriceIncrease          = "PRICE_INCREASE"
	NotificationTypeGracePeriodExpired     = "GRACE_PERIOD_EXPIRED"
)

// NotificationPayload is the decoded outer envelope of a server notification.
type NotificationPayload struct {
	NotificationType string           `json:"notificationType"`
	Subtype          string           `json:"subtype,omitempty"`
	NotificationUUID string           `json:"notificationUUID"`
	Version          string           `json:"version"`
	SignedDate       int64            `json:"signedDate"`
	Data             NotificationData `json:"data"`

	jwt.RegisteredClaims
}

// NotificationData wraps the two nested signed sub-payloads. Both are compact
// tokens that must be verified on their own before use.
type NotificationData struct {
	AppAppleID            int64  `json:"appAppleId"`
	BundleID              string `json:"bundleId"`
	BundleVersion         string `json:"bundleVersion"`
	Environment           string `json:"environment"`
	Status                int    `json:"status"`
	SignedTransactionInfo string `json:"signedTransactionInfo"`
	SignedRenewalInfo     string `json:"signedRenewalInfo"`
}

// SignedAt converts the envelope's millisecond signing timestamp.
func (p *NotificationPayload) SignedAt() time.Time {
	return msToTime(p.SignedDate)
}

// TransactionInfo is the decoded signedTransactionInfo sub-payload.
type TransactionInfo struct {
	TransactionID               string `json:"transactionId"`
	OriginalTransactionID       string `json:"originalTransactionId"`
	WebOrderLineItemID          string `json:"webOrderLineItemId"`
	BundleID                    string `json:"bundleId"`
	ProductID                   string `json:"productId"`
	SubscriptionGroupIdentifier string `json:"subscriptionGroupIdentifier"`
	AppAccountToken             string `json:"appAccountToken"`
	PurchaseDate                int64  `json:"purchaseDate"`
	OriginalPurchaseDate        int64  `json:"originalPurchaseDate"`
	ExpiresDate                 int64  `json:"expiresDate"`
	Quantity                    int    `json:"quantity"`
	Type                        string `json:"type"`
	InAppOwnershipType          string `json:"inAppOwnershipType"`
	RevocationDate              int64  `json:"revocationDate"`
	RevocationReason            *int   `json:"revocationReason"`
	SignedDate                  int64  `json:"signedDate"`
	Environment                 string `json:"environment"`

	jwt.RegisteredClaims
}

func (t *TransactionInfo) PurchasedAt() time.Time {
	return msToTime(t.PurchaseDate)
}

// ExpiresAt returns nil for non-expiring products.
func (t *TransactionInfo) ExpiresAt() *time.Time {
	if t.ExpiresDate == 0 {
		return nil
	}
	ts := msToTime(t.ExpiresDate)
	return &ts
}

// RenewalInfo is the decoded signedRenewalInfo sub-payload.
type RenewalInfo struct {
	OriginalTransactionID  string `json:"originalTransactionId"`
	AutoRenewProductID     string `json:"autoRenewProductId"`
	ProductID              string `json:"productId"`
	AutoRenewStatus        int    `json:"autoRenewStatus"`
	ExpirationIntent       int    `json:"expirationIntent"`
	GracePeriodExpiresDate int64  `json:"gracePeriodExpiresDate"`
	IsInBillingRetryPeriod bool   `json:"isInBillingRetryPeriod"`
	PriceIncreaseStatus    int    `json:"priceIncreaseStatus"`
	SignedDate             int64  `json:"signedDate"`
	Environment            string `json:"environment"`

	jwt.RegisteredClaims
}

// AutoRenewEnabled reports whether the customer left auto-renew on.
func (r *RenewalInfo) AutoRenewEnabled() bool {
	return r.AutoRenewStatus == 1
}

// GracePeriodExpiresAt returns nil when no grace period applies.
func (r *RenewalInfo) GracePeriodExpiresAt() *time.Time {
	if r.GracePeriodExpiresDate == 0 {
		return nil
	}
	ts := msToTime(r.GracePeriodExpiresDate)
	return &ts
}

// msToTime converts Apple's millisecond epoch timestamps.
func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
