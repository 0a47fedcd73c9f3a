package appstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const clientBodyLimit = 2 << 20

// Client calls the App Store Server API. Every request carries a freshly
// issued auth token; retry policy belongs to the caller.
type Client struct {
	cfg    Config
	issuer *TokenIssuer

	// BaseURL overrides the environment host (tests).
	BaseURL string

	HTTPClient *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:    cfg,
		issuer: NewTokenIssuer(cfg),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SubscriptionStatusResponse is the statuses envelope for one app.
type SubscriptionStatusResponse struct {
	Environment string          `json:"environment"`
	BundleID    string          `json:"bundleId"`
	AppAppleID  int64           `json:"appAppleId"`
	Data        json.RawMessage `json:"data"`
}

// TransactionHistoryResponse is one page of a paginated history lookup.
type TransactionHistoryResponse struct {
	Revision           string   `json:"revision"`
	HasMore            bool     `json:"hasMore"`
	BundleID           string   `json:"bundleId"`
	Environment        string   `json:"environment"`
	SignedTransactions []string `json:"signedTransactions"`
}

// TestNotificationResponse carries the token identifying a requested test
// notification.
type TestNotificationResponse struct {
	TestNotificationToken string `json:"testNotificationToken"`
}

// GetSubscriptionStatus fetches the current subscription statuses for an
// original transaction id.
func (c *Client) GetSubscriptionStatus(ctx context.Context, originalTransactionID string) (*SubscriptionStatusResponse, error) {
	var out SubscriptionStatusResponse
	path := "/inApps/v1/subscriptions/" + url.PathEscape(originalTransactionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransactionHistory fetches one history page; pass the previous page's
// revision cursor to continue, or empty for the first page.
func (c *Client) GetTransactionHistory(ctx context.Context, originalTransactionID, revision string) (*TransactionHistoryResponse, error) {
	var query url.Values
	if revision != "" {
		query = url.Values{"revision": []string{revision}}
	}
	var out TransactionHistoryResponse
	path := "/inApps/v1/history/" + url.PathEscape(originalTransactionID)
	if err := c.do(ctx, http.MethodGet, path, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LookupOrder resolves a customer-facing order id to its signed transactions.
func (c *Client) LookupOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	var out json.RawMessage
	path := "/inApps/v1/lookup/" + url.PathEscape(orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RequestTestNotification asks Apple to send a TEST notification to the
// configured webhook. Sandbox only.
func (c *Client) RequestTestNotification(ctx context.Context) (*TestNotificationResponse, error) {
	if !c.cfg.IsSandbox() {
		return nil, fmt.Errorf("%w: test notifications are only available in the sandbox environment", ErrConfiguration)
	}
	var out TestNotificationResponse
	if err := c.do(ctx, http.MethodPost, "/inApps/v1/notifications/test", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out interface{}) error {
	token, err := c.issuer.Issue()
	if err != nil {
		return err
	}

	base := c.BaseURL
	if base == "" {
		base = c.cfg.BaseURL()
	}
	endpoint := strings.TrimRight(base, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUpstreamUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, clientBodyLimit))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s returned status %d: %s", ErrUpstreamUnavailable, method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrUpstreamUnavailable, path, err)
	}
	return nil
}
