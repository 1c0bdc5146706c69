// Package price looks up native-asset USD rates with a short-lived
// per-asset cache. A failed lookup is reported as "unavailable", never as
// an error: callers degrade to native-only thresholds.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

type cachedRate struct {
	rate      float64
	fetchedAt time.Time
}

// Client fetches USD rates from the CoinGecko simple-price endpoint and
// caches them per asset ID.
type Client struct {
	baseURL    string
	httpClient *http.Client
	ttl        time.Duration
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[string]cachedRate
	now   func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithTTL overrides the cache lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

// New creates a price client with a 60s cache and 10s request timeout.
func New(logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		ttl:        60 * time.Second,
		logger:     logger.With("component", "price"),
		cache:      make(map[string]cachedRate),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NativeUSD returns the cached USD rate for the given asset ID. ok is
// false when the ID is empty or the rate could not be fetched.
func (c *Client) NativeUSD(ctx context.Context, assetID string) (float64, bool) {
	if assetID == "" {
		return 0, false
	}

	c.mu.Lock()
	if entry, ok := c.cache[assetID]; ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return entry.rate, true
	}
	c.mu.Unlock()

	rate, err := c.fetch(ctx, assetID)
	if err != nil {
		c.logger.Warn("price lookup failed", "asset", assetID, "error", err)
		return 0, false
	}

	c.mu.Lock()
	c.cache[assetID] = cachedRate{rate: rate, fetchedAt: c.now()}
	c.mu.Unlock()
	return rate, true
}

func (c *Client) fetch(ctx context.Context, assetID string) (float64, error) {
	u := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		c.baseURL, url.QueryEscape(assetID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	rate, ok := body[assetID]["usd"]
	if !ok {
		return 0, fmt.Errorf("no usd rate for %s", assetID)
	}
	return rate, nil
}
