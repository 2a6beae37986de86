// Package exchange implements the signed REST client for the Aster futures API.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the Aster futures REST root, including the API version prefix.
	DefaultBaseURL = "https://fapi.asterdex.com/fapi/v1"

	// DefaultRecvWindow is the validity window, in milliseconds, attached to signed calls.
	DefaultRecvWindow = 5000

	// APIKeyHeader carries the API key on signed requests.
	APIKeyHeader = "X-MBX-APIKEY"

	EndpointTime          = "/time"
	EndpointTickerPrice   = "/ticker/price"
	EndpointOrder         = "/order"
	EndpointOpenOrders    = "/openOrders"
	EndpointAllOpenOrders = "/allOpenOrders"
)

// Config holds client configuration.
type Config struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"-"`
	SecretKey    string        `yaml:"-"`
	RecvWindow   int           `yaml:"recv_window"`
	Timeout      time.Duration `yaml:"timeout"`
	RateLimitRPS int           `yaml:"rate_limit_rps"`
}

// DefaultConfig returns the production defaults without credentials.
func DefaultConfig() Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		RecvWindow:   DefaultRecvWindow,
		Timeout:      10 * time.Second,
		RateLimitRPS: 10,
	}
}

// Client sends public and HMAC-signed requests to the exchange.
type Client struct {
	baseURL    string
	recvWindow int
	signer     *Signer
	httpClient *http.Client
	limiter    *RateLimiter
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client. Missing credentials are not an error here:
// public calls still work and signed calls fail with ErrMissingCredentials.
func NewClient(cfg Config, logger *zap.Logger, opts ...ClientOption) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = DefaultRecvWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		recvWindow: cfg.RecvWindow,
		signer:     NewSigner(cfg.APIKey, cfg.SecretKey),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    NewRateLimiter(cfg.RateLimitRPS),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Close wipes the credentials held by the client.
func (c *Client) Close() {
	c.signer.Wipe()
}

// ServerTime returns the exchange clock in milliseconds.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	body, err := c.Public(ctx, EndpointTime, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrServerTime, err)
	}

	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%w: decode: %w", ErrServerTime, err)
	}
	if resp.ServerTime <= 0 {
		return 0, fmt.Errorf("%w: empty serverTime", ErrServerTime)
	}
	return resp.ServerTime, nil
}

// Public performs an unsigned GET.
func (c *Client) Public(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, fullURL, false)
}

// Send performs a signed request. The exchange server time is fetched first
// and used as the timestamp; the signature covers the key-sorted, URL-encoded
// parameters including timestamp and recvWindow. Everything travels in the
// query string regardless of method.
func (c *Client) Send(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodDelete:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	if !c.signer.HasCredentials() {
		return nil, ErrMissingCredentials
	}

	ts, err := c.ServerTime(ctx)
	if err != nil {
		return nil, err
	}

	query, signature := c.sign(params, ts)
	fullURL := c.baseURL + endpoint + "?" + query + "&signature=" + signature

	return c.do(ctx, method, fullURL, true)
}

// sign returns the encoded query and its signature.
func (c *Client) sign(params url.Values, timestamp int64) (string, string) {
	signed := url.Values{}
	for k, vs := range params {
		signed[k] = append([]string(nil), vs...)
	}
	signed.Set("timestamp", strconv.FormatInt(timestamp, 10))
	signed.Set("recvWindow", strconv.Itoa(c.recvWindow))

	query := signed.Encode()
	return query, c.signer.Sign(query)
}

func (c *Client) do(ctx context.Context, method, fullURL string, signed bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if signed {
		req.Header.Set(APIKeyHeader, c.signer.APIKey())
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("exchange request",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, body)
	}

	return body, nil
}
