package appstore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestSigningKey generates a P-256 key, writes it as PKCS#8 PEM the way
// App Store Connect delivers .p8 files, and returns the path plus public key.
func writeTestSigningKey(t *testing.T) (string, *ecdsa.PublicKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "AuthKey_TEST.p8")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	require.NoError(t, os.WriteFile(path, pemBytes, 0600))

	return path, &key.PublicKey
}

func TestTokenIssuerIssue(t *testing.T) {
	keyPath, pub := writeTestSigningKey(t)

	cfg := validConfig()
	cfg.PrivateKeyPath = keyPath

	issuer := NewTokenIssuer(cfg)
	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return issuedAt }

	signed, err := issuer.Issue()
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	token, err := jwt.NewParser(jwt.WithValidMethods([]string{"ES256"}), jwt.WithTimeFunc(func() time.Time { return issuedAt })).
		ParseWithClaims(signed, claims, func(*jwt.Token) (interface{}, error) { return pub, nil })
	require.NoError(t, err)
	require.True(t, token.Valid)

	assert.Equal(t, cfg.KeyID, token.Header["kid"])
	assert.Equal(t, cfg.IssuerID, claims["iss"])
	assert.Equal(t, "appstoreconnect-v1", claims["aud"])
	assert.Equal(t, cfg.BundleID, claims["bid"])
	assert.Equal(t, float64(issuedAt.Unix()), claims["iat"])
	assert.Equal(t, float64(issuedAt.Add(20*time.Minute).Unix()), claims["exp"])
}

func TestTokenIssuerConfigIncomplete(t *testing.T) {
	cfg := validConfig()
	cfg.KeyID = ""

	_, err := NewTokenIssuer(cfg).Issue()
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestTokenIssuerKeyUnavailable(t *testing.T) {
	cfg := validConfig()
	cfg.PrivateKeyPath = filepath.Join(t.TempDir(), "does-not-exist.p8")

	_, err := NewTokenIssuer(cfg).Issue()
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestTokenIssuerBadKeyMaterial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.p8")
	require.NoError(t, os.WriteFile(path, []byte("not a pem file"), 0600))

	cfg := validConfig()
	cfg.PrivateKeyPath = path

	_, err := NewTokenIssuer(cfg).Issue()
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}
