package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"resty.dev/v3"

	"mapproxy/internal/metrics"
	"mapproxy/internal/ratelimit"
)

const (
	// Longest upstream error body excerpt carried into an error message
	maxErrorBodyLen = 200
)

// BreakerSettings configures the per-upstream circuit breaker.
type BreakerSettings struct {
	Enabled     bool
	MaxFailures int
	OpenTimeout time.Duration
}

// Options configures a Client.
type Options struct {
	// Timeout bounds each upstream call. Zero leaves the client default in place.
	Timeout   time.Duration
	UserAgent string
	Limiter   *ratelimit.Limiter
	Breaker   BreakerSettings
	Logger    *slog.Logger
}

// Client fetches upstream JSON documents over HTTP.
// It never retries; a failed call is reported once and the caller decides.
type Client struct {
	http     *resty.Client
	limiter  *ratelimit.Limiter
	settings BreakerSettings
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[Source]*gobreaker.CircuitBreaker[json.RawMessage]
}

// NewHTTPClient creates the resty client used for upstream calls
func NewHTTPClient(timeout time.Duration, userAgent string) *resty.Client {
	client := resty.New().
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent).
		SetRetryCount(0)

	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return client
}

// NewClient creates a Client from opts.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "mapproxy"
	}

	return &Client{
		http:     NewHTTPClient(opts.Timeout, userAgent),
		limiter:  opts.Limiter,
		settings: opts.Breaker,
		logger:   logger,
		breakers: make(map[Source]*gobreaker.CircuitBreaker[json.RawMessage]),
	}
}

// Close releases the underlying HTTP resources.
func (c *Client) Close() error {
	return c.http.Close()
}

// Fetch retrieves url and validates that the body is JSON.
func (c *Client) Fetch(ctx context.Context, source Source, url string) Result {
	start := time.Now()
	c.logger.Debug("fetching upstream", "source", source, "url", url)

	body, err := c.execute(ctx, source, url)
	elapsed := time.Since(start)

	if err != nil {
		fe := ClassifyTransportError(err)
		metrics.ObserveUpstream(string(source), string(fe.Type), elapsed)
		c.logger.Warn("upstream fetch failed",
			"source", source,
			"url", url,
			"type", fe.Type,
			"status_code", fe.StatusCode,
			"duration", elapsed,
			"error", fe.Error())
		return Failed(source, url, fe)
	}

	metrics.ObserveUpstream(string(source), "ok", elapsed)
	c.logger.Debug("upstream fetch finished",
		"source", source,
		"url", url,
		"bytes", len(body),
		"duration", elapsed)
	return Ok(source, url, body)
}

func (c *Client) execute(ctx context.Context, source Source, url string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx, ratelimit.Upstream(source)); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, NewNetworkError(err)
		}
		return nil, NewTimeoutError(fmt.Errorf("rate limit wait: %w", err))
	}

	cb := c.breaker(source)
	if cb == nil {
		return c.get(ctx, url)
	}

	body, err := cb.Execute(func() (json.RawMessage, error) {
		return c.get(ctx, url)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, NewNetworkError(err)
	}
	return body, err
}

func (c *Client) get(ctx context.Context, url string) (json.RawMessage, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, err
	}

	if !resp.IsSuccess() {
		return nil, NewStatusError(resp.StatusCode(), truncate(resp.String(), maxErrorBodyLen))
	}

	body := []byte(resp.String())
	if !json.Valid(body) {
		return nil, NewMalformedBodyError("upstream body is not valid JSON", nil)
	}

	return json.RawMessage(body), nil
}

// breaker returns the circuit breaker guarding source, or nil when disabled.
func (c *Client) breaker(source Source) *gobreaker.CircuitBreaker[json.RawMessage] {
	if !c.settings.Enabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[source]; ok {
		return cb
	}

	maxFailures := uint32(c.settings.MaxFailures)
	cb := gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        string(source),
		MaxRequests: 1,
		Timeout:     c.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("circuit breaker state transition",
				"upstream", name,
				"from", from.String(),
				"to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(string(source)).Set(float64(gobreaker.StateClosed))
	c.breakers[source] = cb
	return cb
}

// countsAsSuccess decides which outcomes do not count against the breaker.
// Only unreachable upstreams and 5xx answers are upstream health failures.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	fe := ClassifyTransportError(err)
	if fe.Unreachable() {
		return false
	}
	return !(fe.Type == ErrorTypeHTTPStatus && fe.StatusCode >= 500)
}

// truncate shortens s for error messages.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
