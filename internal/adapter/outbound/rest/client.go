// Package rest implements the hub's REST surface.
package rest

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hass-gate/hassgate/internal/config"
	"github.com/hass-gate/hassgate/internal/domain/hub"
	"github.com/hass-gate/hassgate/internal/port/outbound"
)

const (
	// maxAttempts bounds transport-error retries (first try included).
	maxAttempts = 3

	// maxResponseBodySize guards against an unbounded response body.
	maxResponseBodySize = 10 * 1024 * 1024 // 10MB

	// maxErrorBodyChars is how much of an error body is kept in APIError.
	maxErrorBodyChars = 200
)

// Client talks to the hub REST API over one persistent HTTP session.
type Client struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics outbound.HubMetrics
	tracer  trace.Tracer

	initialInterval time.Duration
	maxInterval     time.Duration

	mu         sync.Mutex
	httpClient *http.Client
	closed     bool
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records request outcomes and retries.
func WithMetrics(m outbound.HubMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer emits a span per hub request.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithRetryIntervals overrides the backoff base and cap (0.5s and 4s by default).
func WithRetryIntervals(initial, max time.Duration) Option {
	return func(c *Client) {
		c.initialInterval = initial
		c.maxInterval = max
	}
}

// NewClient creates a REST client. The HTTP session is created on first use.
func NewClient(cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:             cfg,
		logger:          logger,
		tracer:          noop.NewTracerProvider().Tracer(""),
		initialInterval: 500 * time.Millisecond,
		maxInterval:     4 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// session returns the shared HTTP client, recreating it after Close.
func (c *Client) session() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.httpClient == nil || c.closed {
		c.httpClient = &http.Client{
			Timeout: c.cfg.RequestTimeout(),
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					MinVersion:         tls.VersionTLS12,
					InsecureSkipVerify: !c.cfg.VerifyTLS(), //nolint:gosec // opt-in via HA_VERIFY_TLS=false
				},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		}
		c.closed = false
	}
	return c.httpClient
}

// Close releases idle connections. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.httpClient != nil && !c.closed {
		c.httpClient.CloseIdleConnections()
	}
	c.closed = true
	return nil
}

// request performs method path with retry on transport failures and returns
// the decoded JSON body, or the body as a string for non-JSON responses.
func (c *Client) request(ctx context.Context, method, path string, body map[string]any) (any, error) {
	op := method + " " + path
	ctx, span := c.tracer.Start(ctx, "hub.rest "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method), attribute.String("hub.path", path)))
	defer span.End()

	var payload []byte
	if len(body) > 0 {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		payload = b
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.Multiplier = 2
	b.MaxInterval = c.maxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	attempt := 0
	var result any
	operation := func() error {
		attempt++
		c.logger.Debug("hub REST request", "method", method, "path", path, "attempt", attempt)

		r, err := c.do(ctx, method, path, payload)
		if err == nil {
			result = r
			return nil
		}
		if ctx.Err() != nil || !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("hub REST request failed, retrying", "op", op, "error", err, "retry_in", wait)
		if c.metrics != nil {
			c.metrics.ObserveHubRetry()
		}
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx), notify)
	if err != nil {
		err = c.classify(op, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("hub.attempts", attempt))
	return result, nil
}

// do performs a single HTTP exchange.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) (any, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.session().Do(req)
	if err != nil {
		c.observe("error")
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	c.observe(strconv.Itoa(resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, err
	}

	if err := statusError(resp.StatusCode, path, data); err != nil {
		return nil, err
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var decoded any
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, nil
		}
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, &hub.APIError{StatusCode: resp.StatusCode, Body: "invalid JSON in response"}
		}
		return decoded, nil
	}
	return string(data), nil
}

func (c *Client) observe(status string) {
	if c.metrics != nil {
		c.metrics.ObserveHubRequest("rest", status)
	}
}

// statusError translates HTTP error statuses. They are never retried.
func statusError(status int, path string, body []byte) error {
	switch {
	case status == http.StatusUnauthorized:
		return &hub.AuthError{Message: "Authentication failed - check HA_TOKEN"}
	case status == http.StatusForbidden:
		return &hub.AuthError{Message: "Access forbidden - token may lack required permissions"}
	case status == http.StatusNotFound:
		return &hub.NotFoundError{Path: path}
	case status >= 400:
		text := string(body)
		if len(text) > maxErrorBodyChars {
			text = text[:maxErrorBodyChars]
		}
		return &hub.APIError{StatusCode: status, Body: text}
	}
	return nil
}

// isRetryable reports whether err is a network-layer failure.
func isRetryable(err error) bool {
	var authErr *hub.AuthError
	var notFound *hub.NotFoundError
	var apiErr *hub.APIError
	if errors.As(err, &authErr) || errors.As(err, &notFound) || errors.As(err, &apiErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// classify converts a final retry error into the hub taxonomy.
func (c *Client) classify(op string, err error) error {
	var authErr *hub.AuthError
	var notFound *hub.NotFoundError
	var apiErr *hub.APIError
	if errors.As(err, &authErr) || errors.As(err, &notFound) || errors.As(err, &apiErr) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		c.logger.Warn("hub REST request timed out", "op", op)
		return &hub.TimeoutError{Op: fmt.Sprintf("Request %s (after %s)", op, c.cfg.RequestTimeout())}
	}
	c.logger.Warn("hub REST transport error", "op", op, "error", err)
	return &hub.TransportError{Op: op, Err: err}
}

var _ outbound.HubREST = (*Client)(nil)
