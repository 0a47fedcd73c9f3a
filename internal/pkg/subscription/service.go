package subscription

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/vpspilot/vpspilot/app/models"
	"github.com/vpspilot/vpspilot/internal/pkg/appstore"
	"gorm.io/gorm"
)

// Service runs the App Store notification pipeline: audit-log the attempt,
// verify the signed envelope, dispatch by type, reconcile subscription and
// user state. Safe under at-least-once delivery; replays land in the same
// subscription row through the upsert path.
type Service struct {
	repo    Repository
	decoder appstore.Decoder
	cfg     appstore.Config
}

// NewService creates the notification service from injected collaborators.
func NewService(repo Repository, decoder appstore.Decoder, cfg appstore.Config) *Service {
	return &Service{repo: repo, decoder: decoder, cfg: cfg}
}

// NewServiceFromDB wires the service against the shared key source. When
// inbound verification is disabled by configuration, payloads are decoded
// without signature checks.
func NewServiceFromDB(db *gorm.DB) *Service {
	cfg := appstore.NewConfigFromEnv()
	var decoder appstore.Decoder
	if cfg.VerifySignature {
		decoder = appstore.NewPayloadVerifier(appstore.GetKeySource())
	} else {
		decoder = appstore.NewUnverifiedDecoder()
	}
	return NewService(NewRepository(db), decoder, cfg)
}

// ProcessNotification handles one inbound webhook body. Every attempt gets a
// webhook log row before verification, and the row reaches exactly one
// terminal status. A nil return means the notification was acknowledged;
// soft outcomes (unknown user, unknown subscription, unknown type) are
// acknowledged too, since redelivery would not change them.
func (s *Service) ProcessNotification(ctx context.Context, rawBody []byte) error {
	wl := &models.AppStoreWebhookLog{
		NotificationType: "unknown",
		Status:           models.WebhookStatusPending,
		Payload:          string(rawBody),
	}
	if err := s.repo.CreateWebhookLog(wl); err != nil {
		return fmt.Errorf("create webhook log: %w", err)
	}

	var envelope struct {
		SignedPayload string `json:"signedPayload"`
	}
	if err := json.Unmarshal(rawBody, &envelope); err != nil || envelope.SignedPayload == "" {
		return s.fail(wl, appstore.ErrMissingSignedPayload)
	}

	payload, err := s.decoder.DecodeNotification(ctx, envelope.SignedPayload)
	if err != nil {
		return s.fail(wl, fmt.Errorf("decode notification envelope: %w", err))
	}

	decoded, _ := json.Marshal(payload)
	updates := map[string]interface{}{
		"decoded_payload":   string(decoded),
		"notification_type": payload.NotificationType,
		"subtype":           payload.Subtype,
		"notification_uuid": payload.NotificationUUID,
	}
	if payload.SignedDate > 0 {
		ts := payload.SignedAt()
		updates["notification_timestamp"] = &ts
	}
	if err := s.repo.UpdateWebhookLog(wl.ID, updates); err != nil {
		return s.fail(wl, fmt.Errorf("update webhook log: %w", err))
	}

	if err := s.route(ctx, payload, wl); err != nil {
		return s.fail(wl, err)
	}

	if err := s.repo.MarkWebhookProcessed(wl.ID); err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	log.Infof("appstore notification processed: type=%s subtype=%s log_id=%d",
		payload.NotificationType, payload.Subtype, wl.ID)
	return nil
}

func (s *Service) fail(wl *models.AppStoreWebhookLog, cause error) error {
	if err := s.repo.MarkWebhookFailed(wl.ID, cause.Error()); err != nil {
		log.Errorf("marking webhook log %d failed: %v (original error: %v)", wl.ID, err, cause)
	}
	log.Errorf("appstore notification failed: log_id=%d err=%v", wl.ID, cause)
	return cause
}

// tagWebhookLog records the transaction linkage once the nested payload is
// known. Best effort; the pipeline does not fail on it.
func (s *Service) tagWebhookLog(wl *models.AppStoreWebhookLog, ti *appstore.TransactionInfo) {
	err := s.repo.UpdateWebhookLog(wl.ID, map[string]interface{}{
		"original_transaction_id": ti.OriginalTransactionID,
		"bundle_id":               ti.BundleID,
	})
	if err != nil {
		log.Warnf("tagging webhook log %d: %v", wl.ID, err)
	}
}
