package appstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Decoder turns the three payload shapes of a server notification into typed
// claims. The verifying implementation is PayloadVerifier; UnverifiedDecoder
// exists for deployments that disable inbound signature verification.
type Decoder interface {
	DecodeNotification(ctx context.Context, token string) (*NotificationPayload, error)
	DecodeTransactionInfo(ctx context.Context, token string) (*TransactionInfo, error)
	DecodeRenewalInfo(ctx context.Context, token string) (*RenewalInfo, error)
}

// PayloadVerifier verifies compact signed tokens against the remote key set
// and decodes their claims. It is reused for the outer notification envelope
// and both nested sub-payloads, so it assumes nothing about the claim shape
// beyond signature validity.
type PayloadVerifier struct {
	keys   *KeySource
	parser *jwt.Parser
}

func NewPayloadVerifier(keys *KeySource) *PayloadVerifier {
	return &PayloadVerifier{
		keys: keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"ES256", "RS256"}),
		),
	}
}

// Verify checks structure and signature of token and decodes its claims into
// claims. Failures map onto the package error taxonomy.
func (v *PayloadVerifier) Verify(ctx context.Context, token string, claims jwt.Claims) error {
	if strings.Count(token, ".") != 2 {
		return fmt.Errorf("%w: expected three segments", ErrMalformedToken)
	}

	_, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, ErrMissingKeyID
		}
		return v.keys.Resolve(ctx, kid)
	})
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrMissingKeyID),
		errors.Is(err, ErrUnknownKeyID),
		errors.Is(err, ErrUpstreamUnavailable):
		return err
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	default:
		return fmt.Errorf("verify token: %w", err)
	}
}

func (v *PayloadVerifier) DecodeNotification(ctx context.Context, token string) (*NotificationPayload, error) {
	var payload NotificationPayload
	if err := v.Verify(ctx, token, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (v *PayloadVerifier) DecodeTransactionInfo(ctx context.Context, token string) (*TransactionInfo, error) {
	var info TransactionInfo
	if err := v.Verify(ctx, token, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (v *PayloadVerifier) DecodeRenewalInfo(ctx context.Context, token string) (*RenewalInfo, error) {
	var info RenewalInfo
	if err := v.Verify(ctx, token, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// UnverifiedDecoder decodes payloads without checking signatures. Only used
// when APPSTORE_VERIFY_SIGNATURE is explicitly disabled (local development
// against hand-crafted payloads).
type UnverifiedDecoder struct {
	parser *jwt.Parser
}

func NewUnverifiedDecoder() *UnverifiedDecoder {
	return &UnverifiedDecoder{parser: jwt.NewParser()}
}

func (d *UnverifiedDecoder) decode(token string, claims jwt.Claims) error {
	if strings.Count(token, ".") != 2 {
		return fmt.Errorf("%w: expected three segments", ErrMalformedToken)
	}
	if _, _, err := d.parser.ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return nil
}

func (d *UnverifiedDecoder) DecodeNotification(_ context.Context, token string) (*NotificationPayload, error) {
	var payload NotificationPayload
	if err := d.decode(token, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (d *UnverifiedDecoder) DecodeTransactionInfo(_ context.Context, token string) (*TransactionInfo, error) {
	var info TransactionInfo
	if err := d.decode(token, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (d *UnverifiedDecoder) DecodeRenewalInfo(_ context.Context, token string) (*RenewalInfo, error) {
	var info RenewalInfo
	if err := d.decode(token, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
