// Package ws implements the hub's WebSocket command surface. Every operation
// opens its own connection, authenticates, runs one command and closes.
package ws

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hass-gate/hassgate/internal/config"
	"github.com/hass-gate/hassgate/internal/domain/hub"
	"github.com/hass-gate/hassgate/internal/port/outbound"
)

// readLimit bounds a single inbound frame. Dashboard configs can be large;
// anything past MaxLovelaceBytes is summarized, not rejected.
const readLimit = 32 * 1024 * 1024

// frame is an inbound hub message. Only the fields the client inspects are typed.
type frame struct {
	ID      int64  `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Result  any    `json:"result"`
	Message string `json:"message,omitempty"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client runs WebSocket commands against the hub.
type Client struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics outbound.HubMetrics
	tracer  trace.Tracer

	nextID atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records connection outcomes.
func WithMetrics(m outbound.HubMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer emits a span per command.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// NewClient creates a WebSocket client. No connection is opened until a
// command runs.
func NewClient(cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		logger: logger,
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL is the hub WebSocket endpoint derived from the base URL.
func (c *Client) URL() string {
	scheme := "ws"
	if c.cfg.Scheme() == "https" {
		scheme = "wss"
	}
	return scheme + "://" + c.cfg.Host() + "/api/websocket"
}

// run dials, authenticates and executes one command, always closing the
// connection before returning.
func (c *Client) run(ctx context.Context, cmdType string, fields map[string]any) (any, error) {
	ctx, span := c.tracer.Start(ctx, "hub.ws "+cmdType,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("hub.command", cmdType)))
	defer span.End()

	result, err := c.runConn(ctx, cmdType, fields)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.observe("error")
		return nil, err
	}
	c.observe("ok")
	return result, nil
}

func (c *Client) runConn(ctx context.Context, cmdType string, fields map[string]any) (any, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.CloseNow() }()

	if err := c.authenticate(ctx, conn); err != nil {
		return nil, err
	}
	result, err := c.command(ctx, conn, cmdType, fields)
	if err != nil {
		return nil, err
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
	return result, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout())
	defer cancel()

	opts := &websocket.DialOptions{
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					MinVersion:         tls.VersionTLS12,
					InsecureSkipVerify: !c.cfg.VerifyTLS(), //nolint:gosec // opt-in via HA_VERIFY_TLS=false
				},
			},
		},
	}

	conn, _, err := websocket.Dial(dctx, c.URL(), opts)
	if err != nil {
		if dctx.Err() != nil && ctx.Err() == nil {
			return nil, c.timeoutError()
		}
		return nil, &hub.WSError{Message: fmt.Sprintf("Connection failed: %v", err), Err: err}
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// authenticate performs the auth_required / auth / auth_ok exchange.
func (c *Client) authenticate(ctx context.Context, conn *websocket.Conn) error {
	first, err := c.read(ctx, conn)
	if err != nil {
		return err
	}
	if first.Type != "auth_required" {
		return &hub.AuthError{Message: "Expected auth_required, got: " + first.Type}
	}

	c.logger.Debug("websocket auth required, sending token")
	if err := c.write(ctx, conn, map[string]any{"type": "auth", "access_token": c.cfg.Token()}); err != nil {
		return err
	}

	resp, err := c.read(ctx, conn)
	if err != nil {
		return err
	}
	switch resp.Type {
	case "auth_ok":
		c.logger.Debug("websocket authentication successful")
		return nil
	case "auth_invalid":
		msg := resp.Message
		if msg == "" {
			msg = "Invalid token"
		}
		return &hub.AuthError{Message: "Authentication failed: " + msg}
	default:
		return &hub.AuthError{Message: "Unexpected auth response: " + resp.Type}
	}
}

// command sends {id, type, fields...} and waits for the result frame with
// the same id. Frames for other ids are skipped.
func (c *Client) command(ctx context.Context, conn *websocket.Conn, cmdType string, fields map[string]any) (any, error) {
	id := c.nextID.Add(1)
	msg := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		msg[k] = v
	}
	msg["id"] = id
	msg["type"] = cmdType

	c.logger.Debug("sending websocket command", "id", id, "type", cmdType)
	if err := c.write(ctx, conn, msg); err != nil {
		return nil, err
	}

	for {
		f, err := c.read(ctx, conn)
		if err != nil {
			return nil, err
		}
		if f.ID != id {
			c.logger.Debug("skipping websocket frame", "id", f.ID, "type", f.Type)
			continue
		}
		if f.Success {
			if f.Result == nil {
				return map[string]any{}, nil
			}
			return f.Result, nil
		}
		reason := "Unknown error"
		if f.Error != nil && f.Error.Message != "" {
			reason = f.Error.Message
		}
		return nil, &hub.WSError{Message: "Command failed: " + reason}
	}
}

// read waits for one frame, bounded by the request timeout.
func (c *Client) read(ctx context.Context, conn *websocket.Conn) (frame, error) {
	rctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout())
	defer cancel()

	var f frame
	if err := wsjson.Read(rctx, conn, &f); err != nil {
		return frame{}, c.wrap(ctx, rctx, err)
	}
	return f, nil
}

func (c *Client) write(ctx context.Context, conn *websocket.Conn, v any) error {
	wctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout())
	defer cancel()

	if err := wsjson.Write(wctx, conn, v); err != nil {
		return c.wrap(ctx, wctx, err)
	}
	return nil
}

// wrap maps a read or write failure to a WSError.
func (c *Client) wrap(parent, bounded context.Context, err error) error {
	if bounded.Err() != nil && parent.Err() == nil {
		return c.timeoutError()
	}
	if websocket.CloseStatus(err) != -1 {
		return &hub.WSError{Message: fmt.Sprintf("WebSocket connection closed: %v", err), Err: err}
	}
	return &hub.WSError{Message: fmt.Sprintf("WebSocket error: %v", err), Err: err}
}

func (c *Client) timeoutError() error {
	c.logger.Warn("websocket wait timed out", "timeout", c.cfg.RequestTimeout())
	return &hub.WSError{
		Message: fmt.Sprintf("WebSocket timeout after %s", formatSeconds(c.cfg.RequestTimeout())),
		Err:     hub.ErrTimeout,
	}
}

func (c *Client) observe(status string) {
	if c.metrics != nil {
		c.metrics.ObserveHubRequest("websocket", status)
	}
}

// formatSeconds renders d as seconds ("30s", "0.5s").
func formatSeconds(d time.Duration) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.3f", d.Seconds()), "0"), ".") + "s"
}

// isTimeout reports whether err is an expired WebSocket wait.
func isTimeout(err error) bool {
	return errors.Is(err, hub.ErrTimeout)
}
