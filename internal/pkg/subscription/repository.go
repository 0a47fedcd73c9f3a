package subscription

import (
	"time"

	"github.com/vpspilot/vpspilot/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the DB operations used by the notification service and
// the scheduled sweeps. Absence is reported as gorm.ErrRecordNotFound and is
// an expected outcome for lookups, not a failure.
type Repository interface {
	CreateWebhookLog(l *models.AppStoreWebhookLog) error
	UpdateWebhookLog(id uint, updates map[string]interface{}) error
	MarkWebhookProcessed(id uint) error
	MarkWebhookFailed(id uint, errorMessage string) error

	FindUserByID(id uint) (*models.User, error)
	FindUserByIdentifier(identifier string) (*models.User, error)
	FindSubscriptionByOriginalTransactionID(originalTransactionID string) (*models.Subscription, error)

	// SaveSubscriptionActivated upserts the subscription by its original
	// transaction id and enables premium access on the owning user, both in
	// one transaction.
	SaveSubscriptionActivated(sub *models.Subscription) error

	// SaveSubscriptionDeactivated persists an absorbing status (expired,
	// refunded) and disables premium access atomically with it.
	SaveSubscriptionDeactivated(sub *models.Subscription) error

	// UpdateRenewalPreferences touches only the auto-renew fields; the user's
	// premium state is left alone.
	UpdateRenewalPreferences(sub *models.Subscription) error

	// SavePriceIncreaseStatus records the customer's price-increase response
	// without touching status or premium access.
	SavePriceIncreaseStatus(sub *models.Subscription) error

	ExpireEndedPurchases(now time.Time) (int64, error)
	PurgeStaleQrLogins(now time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a subscription repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateWebhookLog(l *models.AppStoreWebhookLog) error {
	return r.db.Create(l).Error
}

func (r *gormRepository) UpdateWebhookLog(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.AppStoreWebhookLog{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) MarkWebhookProcessed(id uint) error {
	return r.UpdateWebhookLog(id, map[string]interface{}{
		"status": models.WebhookStatusProcessed,
	})
}

func (r *gormRepository) MarkWebhookFailed(id uint, errorMessage string) error {
	return r.UpdateWebhookLog(id, map[string]interface{}{
		"status":        models.WebhookStatusFailed,
		"error_message": errorMessage,
	})
}

func (r *gormRepository) FindUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) FindUserByIdentifier(identifier string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ? OR name = ?", identifier, identifier).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) FindSubscriptionByOriginalTransactionID(originalTransactionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("original_transaction_id = ?", originalTransactionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) SaveSubscriptionActivated(sub *models.Subscription) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "original_transaction_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_id",
				"web_order_line_item_id",
				"product_id",
				"subscription_group_identifier",
				"status",
				"purchased_at",
				"expires_at",
				"grace_period_expires_at",
				"auto_renew_status",
				"auto_renew_product_id",
				"latest_transaction_info",
				"latest_renewal_info",
				"updated_at",
			}),
		}).Create(sub).Error; err != nil {
			return err
		}

		// Ensure ID is populated after upsert.
		if err := tx.Where("original_transaction_id = ?", sub.OriginalTransactionID).
			First(sub).Error; err != nil {
			return err
		}

		return tx.Model(&models.User{}).Where("id = ?", sub.UserID).Updates(map[string]interface{}{
			"is_premium":              true,
			"subscription_status":     models.SubscriptionStatusActive,
			"subscribed_product":      sub.ProductID,
			"subscription_expires_at": sub.ExpiresAt,
		}).Error
	})
}

func (r *gormRepository) SaveSubscriptionDeactivated(sub *models.Subscription) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":                  sub.Status,
			"latest_transaction_info": sub.LatestTransactionInfo,
		}
		if sub.CancellationReason != "" {
			updates["cancellation_reason"] = sub.CancellationReason
		}
		if err := tx.Model(sub).Updates(updates).Error; err != nil {
			return err
		}

		return tx.Model(&models.User{}).Where("id = ?", sub.UserID).Updates(map[string]interface{}{
			"is_premium":          false,
			"subscription_status": sub.Status,
		}).Error
	})
}

func (r *gormRepository) UpdateRenewalPreferences(sub *models.Subscription) error {
	return r.db.Model(sub).Updates(map[string]interface{}{
		"auto_renew_status":     sub.AutoRenewStatus,
		"auto_renew_product_id": sub.AutoRenewProductID,
		"latest_renewal_info":   sub.LatestRenewalInfo,
	}).Error
}

func (r *gormRepository) SavePriceIncreaseStatus(sub *models.Subscription) error {
	return r.db.Model(sub).Updates(map[string]interface{}{
		"price_increase_status":   sub.PriceIncreaseStatus,
		"latest_transaction_info": sub.LatestTransactionInfo,
	}).Error
}

// ExpireEndedPurchases flips every active or cancelled purchase whose end
// date has passed to expired, in a single conditional update.
func (r *gormRepository) ExpireEndedPurchases(now time.Time) (int64, error) {
	res := r.db.Model(&models.Purchase{}).
		Where("status IN ?", []string{models.PurchaseStatusActive, models.PurchaseStatusCancelled}).
		Where("end_date IS NOT NULL AND end_date < ?", now).
		Update("status", models.PurchaseStatusExpired)
	return res.RowsAffected, res.Error
}

// PurgeStaleQrLogins deletes unused tokens that expired more than ten
// minutes ago and used tokens older than seven days.
func (r *gormRepository) PurgeStaleQrLogins(now time.Time) (int64, error) {
	unused := r.db.Where("used = ? AND expires_at < ?", false, now.Add(-10*time.Minute)).
		Delete(&models.QrLogin{})
	if unused.Error != nil {
		return unused.RowsAffected, unused.Error
	}

	used := r.db.Where("used = ? AND updated_at < ?", true, now.AddDate(0, 0, -7)).
		Delete(&models.QrLogin{})
	return unused.RowsAffected + used.RowsAffected, used.Error
}
