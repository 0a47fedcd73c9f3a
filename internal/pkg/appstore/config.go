package appstore

import (
	"fmt"
	"strings"

	"github.com/vpspilot/vpspilot/internal/pkg/env"
)

const (
	EnvironmentProduction = "production"
	EnvironmentSandbox    = "sandbox"

	productionBaseURL = "https://api.storekit.itunes.apple.com"
	sandboxBaseURL    = "https://api.storekit-sandbox.itunes.apple.com"

	defaultPublicKeysURL = "https://appleid.apple.com/auth/keys"
)

// Config carries the static App Store settings. Built once from env and passed
// into each component at construction.
type Config struct {
	IssuerID        string
	KeyID           string
	PrivateKeyPath  string
	BundleID        string
	Environment     string
	PublicKeysURL   string
	VerifySignature bool
}

// NewConfigFromEnv reads the Apple settings the same way the rest of the app
// reads its env: dotenv file first, OS environment as fallback.
func NewConfigFromEnv() Config {
	return Config{
		IssuerID:        strings.TrimSpace(env.GetEnv("APPLE_ISSUER_ID", "")),
		KeyID:           strings.TrimSpace(env.GetEnv("APPLE_KEY_ID", "")),
		PrivateKeyPath:  strings.TrimSpace(env.GetEnv("APPLE_PRIVATE_KEY_PATH", "")),
		BundleID:        strings.TrimSpace(env.GetEnv("APPLE_BUNDLE_ID", "")),
		Environment:     strings.TrimSpace(env.GetEnv("APPSTORE_ENVIRONMENT", EnvironmentSandbox)),
		PublicKeysURL:   strings.TrimSpace(env.GetEnv("APPSTORE_PUBLIC_KEYS_URL", defaultPublicKeysURL)),
		VerifySignature: env.GetBool("APPSTORE_VERIFY_SIGNATURE", true),
	}
}

// Validate reports every missing required setting at once.
func (c Config) Validate() error {
	var missing []string
	if c.IssuerID == "" {
		missing = append(missing, "APPLE_ISSUER_ID")
	}
	if c.KeyID == "" {
		missing = append(missing, "APPLE_KEY_ID")
	}
	if c.PrivateKeyPath == "" {
		missing = append(missing, "APPLE_PRIVATE_KEY_PATH")
	}
	if c.BundleID == "" {
		missing = append(missing, "APPLE_BUNDLE_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// BaseURL returns the Server API host for the configured environment.
func (c Config) BaseURL() string {
	if c.Environment == EnvironmentProduction {
		return productionBaseURL
	}
	return sandboxBaseURL
}

func (c Config) IsSandbox() bool {
	return c.Environment != EnvironmentProduction
}
