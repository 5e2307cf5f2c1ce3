// Package service contains the gateway's long-running services: the
// stdio message loop and the asynchronous audit writer.
package service

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hass-gate/hassgate/internal/domain/proxy"
	"github.com/hass-gate/hassgate/internal/domain/validation"
	"github.com/hass-gate/hassgate/pkg/mcp"
)

// MaxMessageSize is the largest line accepted from the client.
const MaxMessageSize = 4 * 1024 * 1024

// DefaultMaxConcurrent bounds in-flight requests.
const DefaultMaxConcurrent = 8

// ProxyOption configures ProxyService.
type ProxyOption func(*ProxyService)

// WithMaxConcurrent sets how many requests may be handled at once.
func WithMaxConcurrent(n int) ProxyOption {
	return func(p *ProxyService) {
		if n > 0 {
			p.maxConcurrent = n
		}
	}
}

// ProxyService reads newline-delimited JSON-RPC messages from the client,
// runs each through the interceptor chain and writes the answers back.
// Requests are handled concurrently; responses are written whole, one per
// line, in completion order.
type ProxyService struct {
	interceptor   proxy.MessageInterceptor
	logger        *slog.Logger
	maxConcurrent int

	writeMu sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]context.CancelFunc
}

// NewProxyService creates a new proxy service.
func NewProxyService(interceptor proxy.MessageInterceptor, logger *slog.Logger, opts ...ProxyOption) *ProxyService {
	p := &ProxyService{
		interceptor:   interceptor,
		logger:        logger,
		maxConcurrent: DefaultMaxConcurrent,
		inflight:      make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run serves the client until in reaches EOF or ctx is cancelled. On EOF
// it waits for in-flight requests and returns nil; on cancellation it
// cancels them, waits, and returns the context error. The reader goroutine
// exits once in is closed.
func (p *ProxyService) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go p.readLines(ctx, in, lines, readErr)

	sem := make(chan struct{}, p.maxConcurrent)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			wg.Wait()
			if err != nil {
				return fmt.Errorf("read client input: %w", err)
			}
			p.logger.Debug("client closed input")
			return nil

		case raw := <-lines:
			msg := p.decode(raw, out)
			if msg == nil {
				continue
			}

			req := msg.Request()
			if req == nil || !req.IsCall() {
				// Notifications and stray responses are cheap and ordered.
				if req != nil && req.Method == "notifications/cancelled" {
					p.cancelRequest(msg)
				}
				p.handle(ctx, msg, out)
				continue
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}

			reqCtx, reqCancel := context.WithCancel(ctx)
			key := string(msg.RawID())
			p.track(key, reqCancel)

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				defer p.untrack(key, reqCancel)
				p.handle(reqCtx, msg, out)
			}()
		}
	}
}

// readLines scans in and delivers each non-empty line. It reports the
// terminal condition (nil on EOF) on errc.
func (p *ProxyService) readLines(ctx context.Context, in io.Reader, lines chan<- []byte, errc chan<- error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxMessageSize)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		select {
		case lines <- append([]byte(nil), raw...):
		case <-ctx.Done():
			return
		}
	}
	errc <- scanner.Err()
}

// decode wraps a line, answering a parse error when it is not JSON-RPC.
func (p *ProxyService) decode(raw []byte, out io.Writer) *mcp.Message {
	msg, err := mcp.WrapMessage(raw, mcp.ClientToServer)
	if err != nil {
		p.logger.Warn("unparseable client message", "error", err)
		p.write(out, mcp.EncodeError(mcp.RecoverID(raw), validation.ErrCodeParseError, "Parse error"))
		return nil
	}
	msg.CorrelationID = uuid.NewString()
	return msg
}

// handle runs msg through the chain and writes the answer, if any.
func (p *ProxyService) handle(ctx context.Context, msg *mcp.Message, out io.Writer) {
	start := time.Now()
	logger := p.logger.With("correlation_id", msg.CorrelationID)

	resp, err := p.interceptor.Intercept(ctx, msg)

	if ctx.Err() != nil && msg.Request() != nil && msg.Request().IsCall() {
		// The client cancelled the request or we are shutting down; it
		// expects no answer.
		logger.Debug("request cancelled, response suppressed", "method", msg.Method())
		return
	}

	if err != nil {
		code, message := proxy.SafeErrorMessage(err)
		logger.Warn("request rejected", "method", msg.Method(), "error", err)
		if req := msg.Request(); req != nil && req.IsCall() {
			p.write(out, mcp.EncodeError(msg.RawID(), code, message))
		}
		return
	}
	if resp == nil {
		return
	}

	p.write(out, resp.Raw)
	logger.Debug("answered request",
		"method", msg.Method(),
		"latency_us", time.Since(start).Microseconds(),
	)
}

// write emits one line. Writes are serialized so concurrent responses
// never interleave.
func (p *ProxyService) write(out io.Writer, line []byte) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	buf := make([]byte, 0, len(line)+1)
	buf = append(append(buf, line...), '\n')
	if _, err := out.Write(buf); err != nil {
		p.logger.Error("failed to write response", "error", err)
	}
}

func (p *ProxyService) track(key string, cancel context.CancelFunc) {
	p.inflightMu.Lock()
	defer p.inflightMu.Unlock()
	p.inflight[key] = cancel
}

func (p *ProxyService) untrack(key string, cancel context.CancelFunc) {
	cancel()
	p.inflightMu.Lock()
	defer p.inflightMu.Unlock()
	delete(p.inflight, key)
}

// cancelRequest cancels the in-flight request named by a
// notifications/cancelled message. Unknown ids are ignored.
func (p *ProxyService) cancelRequest(msg *mcp.Message) {
	params := msg.ParseParams()
	if params == nil {
		return
	}
	id, ok := params["requestId"]
	if !ok {
		return
	}
	key, err := json.Marshal(id)
	if err != nil {
		return
	}

	p.inflightMu.Lock()
	cancel, found := p.inflight[string(key)]
	p.inflightMu.Unlock()
	if found {
		p.logger.Debug("cancelling request", "request_id", string(key))
		cancel()
	}
}
