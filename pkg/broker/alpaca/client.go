// Package alpaca adapts the Alpaca trading and market data REST APIs to the
// broker.Provider contract. Venue error codes are classified into tagged
// broker error kinds here so no caller ever matches raw error text.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTradingURL      = "https://api.alpaca.markets"
	defaultPaperTradingURL = "https://paper-api.alpaca.markets"
	defaultDataURL         = "https://data.alpaca.markets"
	defaultHTTPTimeout     = 10 * time.Second

	// Alpaca allows 200 requests/min on the free tier; 3/s keeps a margin.
	defaultRequestsPerSec = 3
)

// Client wraps access to the Alpaca trading and market data endpoints.
type Client struct {
	tradingURL string
	dataURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURLs overrides the default trading and data endpoints. Empty
// strings leave the corresponding default in place.
func WithBaseURLs(trading, data string) Option {
	return func(c *Client) {
		if trading != "" {
			c.tradingURL = strings.TrimRight(trading, "/")
		}
		if data != "" {
			c.dataURL = strings.TrimRight(data, "/")
		}
	}
}

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit overrides the request throttle (requests per second).
func WithRateLimit(perSec float64) Option {
	return func(c *Client) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// NewClient constructs an Alpaca API client. Paper selects the paper trading
// endpoint; market data always uses the shared data host.
func NewClient(apiKey, apiSecret string, paper bool, opts ...Option) *Client {
	tradingURL := defaultTradingURL
	if paper {
		tradingURL = defaultPaperTradingURL
	}
	client := &Client{
		tradingURL: tradingURL,
		dataURL:    defaultDataURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsPerSec), 1),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// do performs one authenticated request and decodes the response into result.
func (c *Client) do(ctx context.Context, op, method, rawURL string, body any, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("alpaca: encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("alpaca: build %s request: %w", op, err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("alpaca: %s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("alpaca: read %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyError(op, resp.StatusCode, data)
	}
	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("alpaca: decode %s response: %w", op, err)
		}
	}
	return nil
}

func (c *Client) tradingEndpoint(path string) string {
	return c.tradingURL + path
}

func (c *Client) dataEndpoint(path string, query url.Values) string {
	u := c.dataURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
