package appstore

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jwksDocument renders the given EC public keys as a JWKS response body.
func jwksDocument(t *testing.T, keys map[string]*ecdsa.PublicKey) []byte {
	t.Helper()

	doc := struct {
		Keys []jsonWebKey `json:"keys"`
	}{}
	for kid, pub := range keys {
		x := make([]byte, 32)
		y := make([]byte, 32)
		pub.X.FillBytes(x)
		pub.Y.FillBytes(y)
		doc.Keys = append(doc.Keys, jsonWebKey{
			Kty: "EC",
			Kid: kid,
			Use: "sig",
			Alg: "ES256",
			Crv: "P-256",
			X:   base64.RawURLEncoding.EncodeToString(x),
			Y:   base64.RawURLEncoding.EncodeToString(y),
		})
	}

	body, err := json.Marshal(doc)
	require.NoError(t, err)
	return body
}

func newTestKeySource(url string) *KeySource {
	return &KeySource{
		url:        url,
		ttl:        keySetTTL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestKeySourceResolve(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write(jwksDocument(t, map[string]*ecdsa.PublicKey{"kid-1": &key.PublicKey}))
	}))
	defer srv.Close()

	src := newTestKeySource(srv.URL)

	got, err := src.Resolve(context.Background(), "kid-1")
	require.NoError(t, err)
	pub, ok := got.(*ecdsa.PublicKey)
	require.True(t, ok)
	assert.Zero(t, pub.X.Cmp(key.PublicKey.X))
	assert.Zero(t, pub.Y.Cmp(key.PublicKey.Y))

	// Fresh set, second resolve must not hit the endpoint again.
	_, err = src.Resolve(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestKeySourceUnknownKid(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write(jwksDocument(t, map[string]*ecdsa.PublicKey{"kid-1": &key.PublicKey}))
	}))
	defer srv.Close()

	src := newTestKeySource(srv.URL)

	_, err = src.Resolve(context.Background(), "kid-other")
	assert.ErrorIs(t, err, ErrUnknownKeyID)
	// The unknown kid must have forced one refresh attempt.
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestKeySourceExpiredSetRefreshes(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write(jwksDocument(t, map[string]*ecdsa.PublicKey{"kid-1": &key.PublicKey}))
	}))
	defer srv.Close()

	src := newTestKeySource(srv.URL)

	_, err = src.Resolve(context.Background(), "kid-1")
	require.NoError(t, err)

	// Age the cached set past its TTL.
	src.mu.Lock()
	src.fetchedAt = time.Now().Add(-2 * keySetTTL)
	src.mu.Unlock()

	_, err = src.Resolve(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestKeySourceUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := newTestKeySource(srv.URL)

	_, err := src.Resolve(context.Background(), "kid-1")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestKeySourceCoalescesConcurrentRefreshes(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		time.Sleep(50 * time.Millisecond)
		w.Write(jwksDocument(t, map[string]*ecdsa.PublicKey{"kid-1": &key.PublicKey}))
	}))
	defer srv.Close()

	src := newTestKeySource(srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := src.Resolve(context.Background(), "kid-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestKeySourceSharedCache(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	raw := jwksDocument(t, map[string]*ecdsa.PublicKey{"kid-1": &key.PublicKey})

	// No HTTP server at all; the shared cache is the only source.
	src := newTestKeySource("http://127.0.0.1:0")
	src.WithSharedCache(
		func(string) (string, error) { return string(raw), nil },
		func(string, interface{}, time.Duration) error { return nil },
	)

	_, err = src.Resolve(context.Background(), "kid-1")
	require.NoError(t, err)
}

func TestKeySourcePoisonedCacheFallsBack(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jwksDocument(t, map[string]*ecdsa.PublicKey{"kid-1": &key.PublicKey}))
	}))
	defer srv.Close()

	src := newTestKeySource(srv.URL)
	src.WithSharedCache(
		func(string) (string, error) { return "{not json", nil },
		func(string, interface{}, time.Duration) error { return nil },
	)

	_, err = src.Resolve(context.Background(), "kid-1")
	require.NoError(t, err)
}

func TestParseKeySetSkipsUnusableKeys(t *testing.T) {
	keys, err := parseKeySet([]byte(`{"keys":[
		{"kty":"EC","kid":"bad-curve","crv":"P-384","x":"AA","y":"AA"},
		{"kty":"OKP","kid":"bad-type"},
		{"kty":"EC","crv":"P-256","x":"AA","y":"AA"}
	]}`))
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestParseKeySetMissingKeysField(t *testing.T) {
	_, err := parseKeySet([]byte(`{"foo": []}`))
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}
