// Package clio provides the rate-limited Clio API client used by the
// migration engine: authenticated collection fetching, error classification,
// and retry with server-hinted backoff.
package clio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/casefront/clio-migrate/pkg/logging"
)

// Prometheus metrics for Clio client operations.
var (
	clioRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clio_requests_total",
		Help: "Total Clio API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	clioRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clio_request_duration_seconds",
		Help:    "Clio API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	clioErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clio_errors_total",
		Help: "Total Clio API errors by kind",
	}, []string{"kind"})
)

// DefaultBaseURL is the production Clio API root.
const DefaultBaseURL = "https://app.clio.com/api/v4"

// TokenSource supplies the bearer token for each request. Implementations
// typically read from the credential store so that a disconnect invalidates
// in-flight sessions.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource holding a fixed bearer token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// Pacer gates requests against a shared rate budget. Implemented by
// ratelimit.Tracker; nil disables shared pacing.
type Pacer interface {
	ShouldAllowRequest(ctx context.Context) (bool, error)
	UpdateFromHeaders(ctx context.Context, headers http.Header) error
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root (default: DefaultBaseURL).
	BaseURL string

	// UserAgent identifies the integration to the API.
	UserAgent string

	// RequestDelay is the constant pause enforced between consecutive
	// requests, successful or not, to stay under steady-state throughput.
	RequestDelay time.Duration

	// PageSize is the requested records-per-page limit.
	PageSize int

	// ResultCapPhrase marks a response body as a result-cap refusal.
	// Best-effort heuristic; the cap itself is undocumented upstream.
	ResultCapPhrase string

	// Retry configures internal retry behavior.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		UserAgent:       userAgent,
		RequestDelay:    200 * time.Millisecond,
		PageSize:        200,
		ResultCapPhrase: "maximum number of records",
		Retry:           DefaultRetryConfig(),
	}
}

// Client is the rate-limited Clio API client.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	pacer      Pacer
	config     Config
	logger     zerolog.Logger

	mu       sync.Mutex
	lastCall time.Time
}

// New creates a new Clio client.
func New(cfg Config, tokens TokenSource, pacer Pacer) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tokens: tokens,
		pacer:  pacer,
		config: cfg,
		logger: logging.NewLogger("clio-client"),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetList fetches one page of a collection endpoint with the given query
// parameters. A non-empty pageURL overrides endpoint+params and is followed
// verbatim (cursor continuation).
func (c *Client) GetList(ctx context.Context, endpoint string, params url.Values, pageURL string) (*Page, error) {
	target := pageURL
	if target == "" {
		q := url.Values{}
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		if q.Get("limit") == "" {
			q.Set("limit", strconv.Itoa(c.config.PageSize))
		}
		target = c.config.BaseURL + endpoint + ".json?" + q.Encode()
	}

	startTime := time.Now()
	defer func() {
		clioRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	var page *Page
	err := retryWithBackoff(ctx, c.config.Retry, func() error {
		var reqErr error
		page, reqErr = c.doOnce(ctx, endpoint, target)
		return reqErr
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// doOnce performs a single request/parse round. The inter-request delay is
// enforced here so retries pace themselves too.
func (c *Client) doOnce(ctx context.Context, endpoint, target string) (*Page, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	if c.pacer != nil {
		allowed, err := c.pacer.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Rate budget check failed, proceeding")
		} else if !allowed {
			clioRequestsTotal.WithLabelValues(endpoint, "paced").Inc()
			return nil, &APIError{
				StatusCode: 0,
				Kind:       KindRateLimited,
				Message:    "request blocked by shared rate budget",
			}
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		clioErrorsTotal.WithLabelValues(string(KindUnauthorized)).Inc()
		return nil, &APIError{
			StatusCode: 0,
			Kind:       KindUnauthorized,
			Message:    "no credentials available",
			Err:        err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Msg("Executing Clio request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		clioErrorsTotal.WithLabelValues(string(KindNetwork)).Inc()
		clioRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &APIError{
			Kind:    KindNetwork,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if c.pacer != nil {
		if err := c.pacer.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate budget from headers")
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		clioErrorsTotal.WithLabelValues(string(KindNetwork)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Kind:       KindNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	clioRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		kind := classifyStatus(resp.StatusCode, string(body), c.config.ResultCapPhrase)
		clioErrorsTotal.WithLabelValues(string(kind)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_kind", string(kind)).
			Msg("Clio request error")

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Kind:       kind,
			Message:    errorMessage(body, resp.Status),
			RetryAfter: retryAfterSeconds(resp.Header),
		}
	}

	return parsePage(body)
}

// pace blocks until at least RequestDelay has passed since the previous call.
func (c *Client) pace(ctx context.Context) error {
	if c.config.RequestDelay <= 0 {
		return nil
	}

	c.mu.Lock()
	wait := c.config.RequestDelay - time.Since(c.lastCall)
	if wait <= 0 {
		// First call, or enough time has already passed.
		c.lastCall = time.Now()
		c.mu.Unlock()
		return nil
	}
	c.lastCall = time.Now().Add(wait)
	c.mu.Unlock()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-time.After(wait):
		return nil
	}
}

// parsePage decodes a collection response body.
func parsePage(body []byte) (*Page, error) {
	var envelope struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Paging struct {
				Next string `json:"next"`
			} `json:"paging"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &APIError{
			Kind:    KindOther,
			Message: "decode collection response",
			Err:     err,
		}
	}

	records := make([]RawRecord, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		records = append(records, RawRecord(item))
	}
	return &Page{
		Records: records,
		NextURL: envelope.Meta.Paging.Next,
	}, nil
}

// errorMessage extracts the API error message, falling back to the HTTP status.
func errorMessage(body []byte, fallback string) string {
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return fallback
}

// retryAfterSeconds parses the Retry-After header, accepting both the
// delta-seconds and HTTP-date forms.
func retryAfterSeconds(headers http.Header) int {
	v := headers.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return secs
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return int(d.Seconds() + 0.5)
		}
	}
	return 0
}
