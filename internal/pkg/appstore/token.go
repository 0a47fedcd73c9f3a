package appstore

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// authTokenTTL is well above the duration of a single Server API call, so
// tokens are re-issued per call instead of being cached.
const authTokenTTL = 20 * time.Minute

// TokenIssuer builds the short-lived ES256 bearer tokens that authenticate
// outbound App Store Server API calls.
type TokenIssuer struct {
	cfg Config
	now func() time.Time
}

func NewTokenIssuer(cfg Config) *TokenIssuer {
	return &TokenIssuer{cfg: cfg, now: time.Now}
}

// Issue signs a fresh auth token. Pure function of current time and static
// configuration; no side effects, no caching.
func (i *TokenIssuer) Issue() (string, error) {
	if err := i.cfg.Validate(); err != nil {
		return "", err
	}

	pemBytes, err := os.ReadFile(i.cfg.PrivateKeyPath)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrKeyUnavailable, i.cfg.PrivateKeyPath, err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return "", fmt.Errorf("%w: parse %s: %v", ErrKeyUnavailable, i.cfg.PrivateKeyPath, err)
	}

	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": i.cfg.IssuerID,
		"iat": now.Unix(),
		"exp": now.Add(authTokenTTL).Unix(),
		"aud": "appstoreconnect-v1",
		"bid": i.cfg.BundleID,
	})
	token.Header["kid"] = i.cfg.KeyID

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign auth token: %w", err)
	}
	return signed, nil
}
