package appstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient wires a Client with a working signing key against the given
// stub server.
func newTestClient(t *testing.T, srv *httptest.Server, environment string) *Client {
	t.Helper()

	keyPath, _ := writeTestSigningKey(t)
	cfg := validConfig()
	cfg.PrivateKeyPath = keyPath
	cfg.Environment = environment

	c := NewClient(cfg)
	c.BaseURL = srv.URL
	return c
}

func TestClientGetSubscriptionStatus(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"environment":"Sandbox","bundleId":"com.vpspilot.app","appAppleId":1,"data":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, EnvironmentSandbox)

	out, err := c.GetSubscriptionStatus(context.Background(), "tx-100")
	require.NoError(t, err)

	assert.Equal(t, "/inApps/v1/subscriptions/tx-100", gotPath)
	assert.True(t, strings.HasPrefix(gotAuth, "Bearer ey"), "authorization header %q", gotAuth)
	assert.Equal(t, "com.vpspilot.app", out.BundleID)
	assert.Equal(t, "Sandbox", out.Environment)
}

func TestClientGetTransactionHistoryRevision(t *testing.T) {
	var gotQueries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQueries = append(gotQueries, r.URL.RawQuery)
		if len(gotQueries) == 1 {
			w.Write([]byte(`{"revision":"rev-2","hasMore":true,"signedTransactions":["a.b.c"]}`))
			return
		}
		w.Write([]byte(`{"revision":"rev-3","hasMore":false,"signedTransactions":["d.e.f"]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, EnvironmentSandbox)

	page, err := c.GetTransactionHistory(context.Background(), "tx-100", "")
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	assert.Equal(t, "rev-2", page.Revision)

	page, err = c.GetTransactionHistory(context.Background(), "tx-100", page.Revision)
	require.NoError(t, err)
	assert.False(t, page.HasMore)

	require.Len(t, gotQueries, 2)
	assert.Equal(t, "", gotQueries[0])
	assert.Equal(t, "revision=rev-2", gotQueries[1])
}

func TestClientLookupOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inApps/v1/lookup/ORDER-1", r.URL.Path)
		w.Write([]byte(`{"status":0,"signedTransactions":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, EnvironmentSandbox)

	raw, err := c.LookupOrder(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":0,"signedTransactions":[]}`, string(raw))
}

func TestClientRequestTestNotification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/inApps/v1/notifications/test", r.URL.Path)
		w.Write([]byte(`{"testNotificationToken":"token-1"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, EnvironmentSandbox)

	out, err := c.RequestTestNotification(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", out.TestNotificationToken)
}

func TestClientRequestTestNotificationProductionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request in production mode")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, EnvironmentProduction)

	_, err := c.RequestTestNotification(context.Background())
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestClientUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorCode":4040010}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, EnvironmentSandbox)

	_, err := c.GetSubscriptionStatus(context.Background(), "tx-404")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}
