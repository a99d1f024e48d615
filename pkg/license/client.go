package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// CacheTTL is how long a positive verdict may stand in for the server
	CacheTTL = 7 * 24 * time.Hour
	// FreeCaptures is the number of captures allowed without a license
	FreeCaptures = 3
)

// Client calls the license service
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default(),
		now:    time.Now,
	}
}

// SetLogger sets the logger used to report fallbacks
func (c *Client) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Verify resolves the entitlement for st.ClientID and updates st.LicenseCache.
// It never fails: when the service is unreachable or answers non-2xx, a valid
// cached verdict younger than CacheTTL is used instead.
func (c *Client) Verify(ctx context.Context, st *State) Entitlement {
	verdict, err := c.fetchVerdict(ctx, st.ClientID)
	if err != nil {
		c.logger.Warn("license check failed, using cache", "error", err)
		return FromCache(st.LicenseCache, c.now())
	}

	if !verdict.Valid {
		st.LicenseCache = nil
		return Entitlement{Source: SourceServer, Reason: verdict.Reason}
	}

	st.LicenseCache = &CachedVerdict{
		Valid:     true,
		Type:      verdict.Type,
		CheckedAt: c.now(),
	}
	return Entitlement{Pro: true, Type: verdict.Type, Source: SourceServer}
}

// FromCache returns the entitlement a cached verdict still grants at now
func FromCache(cached *CachedVerdict, now time.Time) Entitlement {
	if cached == nil || !cached.Valid {
		return Entitlement{Source: SourceNone}
	}
	if now.Sub(cached.CheckedAt) >= CacheTTL {
		return Entitlement{Source: SourceNone, Reason: "cache_expired"}
	}
	return Entitlement{Pro: true, Type: cached.Type, Source: SourceCache}
}

func (c *Client) fetchVerdict(ctx context.Context, clientID string) (*Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/verify/"+url.PathEscape(clientID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach license server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("license server returned status %d", resp.StatusCode)
	}

	var v Verdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to parse verdict: %w", err)
	}
	return &v, nil
}

// CreateCheckout asks the service for a payment URL
func (c *Client) CreateCheckout(ctx context.Context, r CheckoutRequest) (string, error) {
	if r.ClientID == "" {
		return "", fmt.Errorf("client ID required")
	}
	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/create-checkout", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach license server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("checkout failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out CheckoutResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to parse checkout response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("checkout response has no URL")
	}
	return out.URL, nil
}

// Allowed reports whether another capture may proceed
func Allowed(ent Entitlement, captureCount int) bool {
	return ent.Pro || captureCount < FreeCaptures
}
