// Package sshlogs retrieves full hub logs over a remote shell when the REST
// error log is not enough.
package sshlogs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hass-gate/hassgate/internal/config"
	"github.com/hass-gate/hassgate/internal/domain/hub"
	"github.com/hass-gate/hassgate/internal/domain/shaping"
	"github.com/hass-gate/hassgate/internal/port/outbound"
)

const (
	// MaxLines caps how many lines a single request may ask for.
	MaxLines = 2000

	// logCommandTimeout bounds each log strategy; log commands can be slow.
	logCommandTimeout = 30 * time.Second
)

// coreLogPaths are tried with tail when the ha CLI is unavailable.
var coreLogPaths = []string{
	"/config/home-assistant.log",
	"/var/log/home-assistant.log",
	"/home/homeassistant/.homeassistant/home-assistant.log",
}

// Client implements outbound.HubLogs.
type Client struct {
	cfg     *config.Config
	logger  *slog.Logger
	runner  Runner
	metrics outbound.HubMetrics
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithRunner replaces the SSH command runner.
func WithRunner(r Runner) Option {
	return func(c *Client) {
		c.runner = r
	}
}

// WithMetrics records command outcomes.
func WithMetrics(m outbound.HubMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer emits a span per log request.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// NewClient creates a log client. When SSH is disabled every operation
// fails fast without touching the network.
func NewClient(cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		logger: logger,
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runner == nil {
		if sshCfg, ok := cfg.SSH(); ok {
			c.runner = NewSSHRunner(sshCfg, cfg.RequestTimeout(), logger)
		}
	}
	return c
}

func (c *Client) enabled() bool {
	return c.cfg.SSHEnabled() && c.runner != nil
}

func (c *Client) host() string {
	sshCfg, _ := c.cfg.SSH()
	return sshCfg.Host
}

func (c *Client) run(ctx context.Context, command string, timeout time.Duration) (CommandResult, error) {
	res, err := c.runner.Run(ctx, command, timeout)
	if c.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		} else if res.ExitCode != 0 {
			status = "exit_nonzero"
		}
		c.metrics.ObserveHubRequest("ssh", status)
	}
	return res, err
}

// GetLogs fetches the last lines of the core or supervisor log. lines is
// capped at MaxLines.
func (c *Client) GetLogs(ctx context.Context, kind hub.LogKind, lines int) (*hub.LogResult, error) {
	if !c.enabled() {
		return nil, &hub.SSHDisabledError{}
	}
	lines = min(lines, MaxLines)

	ctx, span := c.tracer.Start(ctx, "hub.ssh logs",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("hub.log_kind", string(kind)), attribute.Int("hub.lines", lines)))
	defer span.End()

	var (
		res *hub.LogResult
		err error
	)
	switch kind {
	case hub.LogKindCore:
		res, err = c.coreLogs(ctx, lines)
	case hub.LogKindSupervisor:
		res, err = c.supervisorLogs(ctx, lines)
	default:
		err = &hub.SSHError{Message: fmt.Sprintf("Unknown log kind: %s. Use 'core' or 'supervisor'.", kind)}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("hub.log_source", res.Source))
	return res, nil
}

type strategy struct {
	source  string
	command string
}

// coreLogs tries the ha CLI, then well-known log files, then journalctl.
// A strategy succeeds on exit status 0 with non-empty output.
func (c *Client) coreLogs(ctx context.Context, lines int) (*hub.LogResult, error) {
	strategies := []strategy{{source: "ha core logs", command: fmt.Sprintf("ha core logs --lines %d", lines)}}
	for _, p := range coreLogPaths {
		strategies = append(strategies, strategy{source: "tail " + p, command: fmt.Sprintf("tail -n %d %s", lines, p)})
	}
	strategies = append(strategies, strategy{
		source:  "journalctl",
		command: fmt.Sprintf("journalctl -u home-assistant -n %d --no-pager", lines),
	})

	attempts := make([]string, 0, len(strategies))
	for _, s := range strategies {
		if ctx.Err() != nil {
			break
		}
		attempts = append(attempts, s.source)

		out, err := c.run(ctx, s.command, logCommandTimeout)
		if err != nil {
			c.logger.Debug("log strategy failed", "source", s.source, "error", err)
			continue
		}
		if out.ExitCode == 0 && out.Stdout != "" {
			return format(out.Stdout, s.source, lines), nil
		}
		c.logger.Debug("log strategy produced no output", "source", s.source, "exit_code", out.ExitCode)
	}

	return nil, &hub.SSHError{
		Message:  "Could not retrieve core logs. Tried: ha core logs, common log files, journalctl",
		Attempts: attempts,
	}
}

func (c *Client) supervisorLogs(ctx context.Context, lines int) (*hub.LogResult, error) {
	out, err := c.run(ctx, fmt.Sprintf("ha supervisor logs --lines %d", lines), logCommandTimeout)
	if err == nil {
		if out.ExitCode == 0 && out.Stdout != "" {
			return format(out.Stdout, "ha supervisor logs", lines), nil
		}
		if out.Stderr != "" {
			err = &hub.SSHError{Message: "ha supervisor logs failed: " + truncateRunes(out.Stderr, 200)}
		} else {
			err = &hub.SSHError{Message: "ha supervisor logs returned empty output"}
		}
	}

	if strings.Contains(strings.ToLower(err.Error()), "not found") {
		return nil, &hub.SSHError{
			Message:  "Supervisor logs not available. This requires HA OS or Supervised installation.",
			Attempts: []string{"ha supervisor logs"},
		}
	}
	return nil, err
}

// format bounds log text to MaxLogBytes, cutting at a line boundary where possible.
func format(text, source string, requested int) *hub.LogResult {
	r := shaping.TruncateText(text, shaping.MaxLogBytes, true)
	res := &hub.LogResult{
		Truncated:      r.Truncated,
		Source:         source,
		RequestedLines: requested,
		TotalBytes:     r.TotalBytes,
		Log:            r.Text,
	}
	if r.Truncated {
		res.ReturnedBytes = &r.ReturnedBytes
		res.MaxBytes = shaping.MaxLogBytes
	} else {
		res.ActualLines = &r.Lines
	}
	return res
}

// TestConnection runs whoami on the host. Failures are reported in the
// result, never as an error.
func (c *Client) TestConnection(ctx context.Context) *hub.SSHTestResult {
	if !c.enabled() {
		return &hub.SSHTestResult{Success: false, Error: "SSH is not enabled (HA_SSH_ENABLE=false)"}
	}

	out, err := c.run(ctx, "whoami", c.cfg.RequestTimeout())
	if err != nil {
		var sshErr *hub.SSHError
		msg := err.Error()
		if errors.As(err, &sshErr) {
			msg = sshErr.Message
		}
		return &hub.SSHTestResult{Success: false, Host: c.host(), Error: msg}
	}
	return &hub.SSHTestResult{
		Success: true,
		Host:    c.host(),
		User:    strings.TrimSpace(out.Stdout),
		Message: "SSH connection successful",
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var _ outbound.HubLogs = (*Client)(nil)
