package appstore

import "errors"

// Error taxonomy for the App Store trust pipeline. Callers classify with
// errors.Is; everything is wrapped, never stringly matched.
var (
	// ErrConfiguration marks missing or unusable static configuration.
	ErrConfiguration = errors.New("appstore: configuration incomplete")

	// ErrKeyUnavailable marks a missing or unreadable signing key file.
	ErrKeyUnavailable = errors.New("appstore: private key unavailable")

	// ErrMissingSignedPayload marks a webhook body without a signedPayload field.
	ErrMissingSignedPayload = errors.New("appstore: missing signedPayload")

	// ErrMalformedToken marks a token that is not a three-segment compact JWS
	// or whose header/claims segments fail structured decoding.
	ErrMalformedToken = errors.New("appstore: malformed token")

	// ErrMissingKeyID marks a token header without a kid.
	ErrMissingKeyID = errors.New("appstore: token header missing kid")

	// ErrUnknownKeyID marks a kid absent from the key set even after a refresh.
	ErrUnknownKeyID = errors.New("appstore: unknown key id")

	// ErrSignatureInvalid marks a signature that does not verify against the
	// resolved key.
	ErrSignatureInvalid = errors.New("appstore: signature invalid")

	// ErrUpstreamUnavailable marks a failed key-set fetch or Server API call.
	ErrUpstreamUnavailable = errors.New("appstore: upstream unavailable")

	// ErrMissingType marks a verified notification without a notificationType.
	ErrMissingType = errors.New("appstore: notification missing type")

	// ErrMissingSubPayload marks a notification whose data section lacks a
	// required nested signed payload.
	ErrMissingSubPayload = errors.New("appstore: missing nested signed payload")
)
