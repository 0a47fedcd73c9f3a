package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/vpspilot/vpspilot/app/models"
	"github.com/vpspilot/vpspilot/internal/pkg/appstore"
	"gorm.io/gorm"
)

// route dispatches a verified notification envelope. Unknown types are
// acknowledged: new types Apple introduces must never break delivery.
func (s *Service) route(ctx context.Context, p *appstore.NotificationPayload, wl *models.AppStoreWebhookLog) error {
	if p.NotificationType == "" {
		return appstore.ErrMissingType
	}

	switch p.NotificationType {
	case appstore.NotificationTypeSubscribed, appstore.NotificationTypeOfferRedeemed:
		return s.handleSubscribed(ctx, p, wl)
	case appstore.NotificationTypeDidRenew:
		return s.handleRenew(ctx, p, wl)
	case appstore.NotificationTypeExpired, appstore.NotificationTypeGracePeriodExpired:
		return s.handleDeactivation(ctx, p, wl, models.SubscriptionStatusExpired)
	case appstore.NotificationTypeRefund, appstore.NotificationTypeRevoke:
		return s.handleDeactivation(ctx, p, wl, models.SubscriptionStatusRefunded)
	case appstore.NotificationTypeDidChangeRenewalStatus, appstore.NotificationTypeDidChangeRenewalPref:
		return s.handleRenewalChange(ctx, p, wl)
	case appstore.NotificationTypePriceIncrease:
		return s.handlePriceIncrease(ctx, p, wl)
	default:
		log.Warnf("unknown appstore notification type %q acknowledged: log_id=%d", p.NotificationType, wl.ID)
		return nil
	}
}

// handleSubscribed covers first-time purchases, resubscribes, and offer
// redemptions: upsert by original transaction id, activate, grant premium.
func (s *Service) handleSubscribed(ctx context.Context, p *appstore.NotificationPayload, wl *models.AppStoreWebhookLog) error {
	ti, ri, err := s.decodeSubPayloads(ctx, p, true)
	if err != nil {
		return err
	}
	s.tagWebhookLog(wl, ti)

	user, err := s.resolveUser(ti)
	if err != nil {
		return err
	}
	if user == nil {
		log.Warnf("no user for subscription: original_transaction_id=%s app_account_token=%q log_id=%d",
			ti.OriginalTransactionID, ti.AppAccountToken, wl.ID)
		return nil
	}

	sub := &models.Subscription{
		UserID:                      user.ID,
		OriginalTransactionID:       ti.OriginalTransactionID,
		WebOrderLineItemID:          ti.WebOrderLineItemID,
		ProductID:                   ti.ProductID,
		SubscriptionGroupIdentifier: ti.SubscriptionGroupIdentifier,
		Status:                      models.SubscriptionStatusActive,
		PurchasedAt:                 ti.PurchasedAt(),
		ExpiresAt:                   ti.ExpiresAt(),
		AutoRenewStatus:             ri.AutoRenewEnabled(),
		AutoRenewProductID:          ri.AutoRenewProductID,
		GracePeriodExpiresAt:        ri.GracePeriodExpiresAt(),
		LatestTransactionInfo:       marshalClaims(ti),
		LatestRenewalInfo:           marshalClaims(ri),
	}
	if err := s.repo.SaveSubscriptionActivated(sub); err != nil {
		return fmt.Errorf("activate subscription %s: %w", ti.OriginalTransactionID, err)
	}

	log.Infof("subscription activated: user_id=%d original_transaction_id=%s product=%s log_id=%d",
		user.ID, ti.OriginalTransactionID, ti.ProductID, wl.ID)
	return nil
}

// handleRenew refreshes an existing lineage. A renewal for an unknown
// lineage is acknowledged without mutation.
func (s *Service) handleRenew(ctx context.Context, p *appstore.NotificationPayload, wl *models.AppStoreWebhookLog) error {
	ti, ri, err := s.decodeSubPayloads(ctx, p, true)
	if err != nil {
		return err
	}
	s.tagWebhookLog(wl, ti)

	sub, err := s.repo.FindSubscriptionByOriginalTransactionID(ti.OriginalTransactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("renewal for unknown subscription acknowledged: original_transaction_id=%s log_id=%d",
				ti.OriginalTransactionID, wl.ID)
			return nil
		}
		return err
	}

	sub.Status = models.SubscriptionStatusActive
	sub.ProductID = ti.ProductID
	sub.ExpiresAt = ti.ExpiresAt()
	sub.GracePeriodExpiresAt = ri.GracePeriodExpiresAt()
	sub.AutoRenewStatus = ri.AutoRenewEnabled()
	sub.AutoRenewProductID = ri.AutoRenewProductID
	sub.LatestTransactionInfo = marshalClaims(ti)
	sub.LatestRenewalInfo = marshalClaims(ri)
	if err := s.repo.SaveSubscriptionActivated(sub); err != nil {
		return fmt.Errorf("renew subscription %s: %w", ti.OriginalTransactionID, err)
	}

	log.Infof("subscription renewed: user_id=%d original_transaction_id=%s expires_at=%v log_id=%d",
		sub.UserID, ti.OriginalTransactionID, sub.ExpiresAt, wl.ID)
	return nil
}

// handleDeactivation applies the absorbing statuses: expired (EXPIRED,
// GRACE_PERIOD_EXPIRED) and refunded (REFUND, REVOKE).
func (s *Service) handleDeactivation(ctx context.Context, p *appstore.NotificationPayload, wl *models.AppStoreWebhookLog, status string) error {
	ti, _, err := s.decodeSubPayloads(ctx, p, false)
	if err != nil {
		return err
	}
	s.tagWebhookLog(wl, ti)

	sub, err := s.repo.FindSubscriptionByOriginalTransactionID(ti.OriginalTransactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("%s for unknown subscription acknowledged: original_transaction_id=%s log_id=%d",
				p.NotificationType, ti.OriginalTransactionID, wl.ID)
			return nil
		}
		return err
	}

	sub.Status = status
	sub.LatestTransactionInfo = marshalClaims(ti)
	if ti.RevocationReason != nil {
		sub.CancellationReason = strconv.Itoa(*ti.RevocationReason)
	}
	if err := s.repo.SaveSubscriptionDeactivated(sub); err != nil {
		return fmt.Errorf("deactivate subscription %s: %w", ti.OriginalTransactionID, err)
	}

	log.Infof("subscription %s: user_id=%d original_transaction_id=%s log_id=%d",
		status, sub.UserID, ti.OriginalTransactionID, wl.ID)
	return nil
}

// handleRenewalChange updates only the auto-renew fields. Status and premium
// access stay untouched, so a refunded lineage remains refunded.
func (s *Service) handleRenewalChange(ctx context.Context, p *appstore.NotificationPayload, wl *models.AppStoreWebhookLog) error {
	ti, ri, err := s.decodeSubPayloads(ctx, p, true)
	if err != nil {
		return err
	}
	s.tagWebhookLog(wl, ti)

	sub, err := s.repo.FindSubscriptionByOriginalTransactionID(ti.OriginalTransactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	sub.AutoRenewStatus = ri.AutoRenewEnabled()
	sub.AutoRenewProductID = ri.AutoRenewProductID
	sub.LatestRenewalInfo = marshalClaims(ri)
	if err := s.repo.UpdateRenewalPreferences(sub); err != nil {
		return fmt.Errorf("update renewal preferences %s: %w", ti.OriginalTransactionID, err)
	}

	log.Infof("renewal preferences updated: original_transaction_id=%s auto_renew=%t log_id=%d",
		ti.OriginalTransactionID, sub.AutoRenewStatus, wl.ID)
	return nil
}

// handlePriceIncrease records the customer's response (subtype PENDING or
// ACCEPTED) on the lineage; no status or premium change.
func (s *Service) handlePriceIncrease(ctx context.Context, p *appstore.NotificationPayload, wl *models.AppStoreWebhookLog) error {
	ti, _, err := s.decodeSubPayloads(ctx, p, false)
	if err != nil {
		return err
	}
	s.tagWebhookLog(wl, ti)

	sub, err := s.repo.FindSubscriptionByOriginalTransactionID(ti.OriginalTransactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	sub.PriceIncreaseStatus = p.Subtype
	sub.LatestTransactionInfo = marshalClaims(ti)
	if err := s.repo.SavePriceIncreaseStatus(sub); err != nil {
		return fmt.Errorf("record price increase %s: %w", ti.OriginalTransactionID, err)
	}
	return nil
}

// decodeSubPayloads verifies the nested sub-payloads. signedTransactionInfo
// is always required; signedRenewalInfo only when renewalRequired.
func (s *Service) decodeSubPayloads(ctx context.Context, p *appstore.NotificationPayload, renewalRequired bool) (*appstore.TransactionInfo, *appstore.RenewalInfo, error) {
	if p.Data.SignedTransactionInfo == "" {
		return nil, nil, fmt.Errorf("%w: signedTransactionInfo", appstore.ErrMissingSubPayload)
	}
	ti, err := s.decoder.DecodeTransactionInfo(ctx, p.Data.SignedTransactionInfo)
	if err != nil {
		return nil, nil, fmt.Errorf("decode transaction info: %w", err)
	}

	ri := &appstore.RenewalInfo{}
	if p.Data.SignedRenewalInfo == "" {
		if renewalRequired {
			return nil, nil, fmt.Errorf("%w: signedRenewalInfo", appstore.ErrMissingSubPayload)
		}
		// Renewal defaults to on when Apple sends no renewal info.
		ri.AutoRenewStatus = 1
		return ti, ri, nil
	}
	if ri, err = s.decoder.DecodeRenewalInfo(ctx, p.Data.SignedRenewalInfo); err != nil {
		return nil, nil, fmt.Errorf("decode renewal info: %w", err)
	}
	return ti, ri, nil
}

// resolveUser attributes transaction claims to a local user. A numeric app
// account token is a direct user id; otherwise the token is matched against
// email or username. No match is a soft outcome, not an error.
func (s *Service) resolveUser(ti *appstore.TransactionInfo) (*models.User, error) {
	token := ti.AppAccountToken
	if token == "" {
		return nil, nil
	}

	if id, err := strconv.ParseUint(token, 10, 64); err == nil {
		user, err := s.repo.FindUserByID(uint(id))
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	user, err := s.repo.FindUserByIdentifier(token)
	if err == nil {
		return user, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func marshalClaims(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
