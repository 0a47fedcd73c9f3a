package appstore

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/singleflight"
)

const (
	keySetTTL       = time.Hour
	keySetCacheKey  = "appstore:jwks"
	keySetBodyLimit = 1 << 20
)

// KeySource resolves Apple's signing keys by key id. The parsed set is held
// in-process under a TTL; refreshes are coalesced through singleflight and
// the raw JWKS JSON is shared across instances via the Redis cache when
// cache accessors are wired in.
type KeySource struct {
	url        string
	ttl        time.Duration
	httpClient *http.Client

	// Optional shared-cache accessors (nil outside full deployments).
	cacheGet func(key string) (string, error)
	cacheSet func(key string, value interface{}, expiration time.Duration) error

	mu        sync.RWMutex
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time

	group singleflight.Group
}

func NewKeySource(cfg Config) *KeySource {
	return &KeySource{
		url: cfg.PublicKeysURL,
		ttl: keySetTTL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithSharedCache wires the cross-instance JWKS cache. Cache errors degrade
// to a direct fetch and are never fatal.
func (s *KeySource) WithSharedCache(
	get func(key string) (string, error),
	set func(key string, value interface{}, expiration time.Duration) error,
) *KeySource {
	s.cacheGet = get
	s.cacheSet = set
	return s
}

// Resolve returns the public key for kid, refreshing the cached set when it
// is stale or does not contain the kid.
func (s *KeySource) Resolve(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if key, ok := s.lookup(kid, false); ok {
		return key, nil
	}

	// Coalesce concurrent refreshes; redundant fetches are harmless but
	// pointless load on the upstream endpoint.
	_, err, _ := s.group.Do("refresh", func() (interface{}, error) {
		if _, ok := s.lookup(kid, false); ok {
			return nil, nil
		}
		return nil, s.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}

	if key, ok := s.lookup(kid, true); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKeyID, kid)
}

// lookup returns the cached key. When allowStale is false an expired set is
// treated as a miss so the caller triggers a refresh.
func (s *KeySource) lookup(kid string, allowStale bool) (crypto.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keys == nil {
		return nil, false
	}
	if !allowStale && time.Since(s.fetchedAt) >= s.ttl {
		return nil, false
	}
	key, ok := s.keys[kid]
	return key, ok
}

// refresh replaces the whole cached set; no partial merges.
func (s *KeySource) refresh(ctx context.Context) error {
	raw, fromCache, err := s.fetchRaw(ctx)
	if err != nil {
		return err
	}

	keys, err := parseKeySet(raw)
	if err != nil {
		if fromCache {
			// Poisoned cache entry; fall back to the origin.
			if raw, _, err = s.fetchOrigin(ctx); err != nil {
				return err
			}
			if keys, err = parseKeySet(raw); err != nil {
				return err
			}
		} else {
			return err
		}
	}

	s.mu.Lock()
	s.keys = keys
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *KeySource) fetchRaw(ctx context.Context) ([]byte, bool, error) {
	if s.cacheGet != nil {
		if cached, err := s.cacheGet(keySetCacheKey); err == nil && cached != "" {
			return []byte(cached), true, nil
		}
	}

	raw, _, err := s.fetchOrigin(ctx)
	if err != nil {
		return nil, false, err
	}

	if s.cacheSet != nil {
		if err := s.cacheSet(keySetCacheKey, string(raw), s.ttl); err != nil {
			log.Warnf("appstore: caching key set failed: %v", err)
		}
	}
	return raw, false, nil
}

func (s *KeySource) fetchOrigin(ctx context.Context) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: fetch key set: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, keySetBodyLimit))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("%w: key set endpoint returned status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	return body, false, nil
}

// jsonWebKey is the subset of RFC 7517 Apple publishes: P-256 EC keys and
// RSA keys.
type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func parseKeySet(raw []byte) (map[string]crypto.PublicKey, error) {
	var doc struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode key set: %v", ErrUpstreamUnavailable, err)
	}
	if doc.Keys == nil {
		return nil, fmt.Errorf("%w: key set response missing keys field", ErrUpstreamUnavailable)
	}

	keys := make(map[string]crypto.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.Kid == "" {
			continue
		}
		key, err := jwk.publicKey()
		if err != nil {
			log.Warnf("appstore: skipping key %q: %v", jwk.Kid, err)
			continue
		}
		keys[jwk.Kid] = key
	}
	return keys, nil
}

func (k jsonWebKey) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "EC":
		if k.Crv != "P-256" {
			return nil, fmt.Errorf("unsupported curve %q", k.Crv)
		}
		x, err := base64.RawURLEncoding.DecodeString(k.X)
		if err != nil {
			return nil, fmt.Errorf("decode x: %v", err)
		}
		y, err := base64.RawURLEncoding.DecodeString(k.Y)
		if err != nil {
			return nil, fmt.Errorf("decode y: %v", err)
		}
		return &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		}, nil
	case "RSA":
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, fmt.Errorf("decode n: %v", err)
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, fmt.Errorf("decode e: %v", err)
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
}
