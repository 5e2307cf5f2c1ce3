// Package stdio provides the stdio transport: MCP over newline-delimited
// JSON on stdin and stdout.
package stdio

import (
	"context"
	"io"
	"os"

	"github.com/hass-gate/hassgate/internal/port/inbound"
	"github.com/hass-gate/hassgate/internal/service"
)

// StdioTransport connects the proxy service to a pair of streams, normally
// the process's stdin and stdout.
type StdioTransport struct {
	proxyService *service.ProxyService
	in           io.Reader
	out          io.Writer
}

// Option configures a StdioTransport.
type Option func(*StdioTransport)

// WithStreams replaces stdin/stdout.
func WithStreams(in io.Reader, out io.Writer) Option {
	return func(t *StdioTransport) {
		t.in, t.out = in, out
	}
}

// NewStdioTransport creates a stdio transport wrapping the proxy service.
func NewStdioTransport(proxyService *service.ProxyService, opts ...Option) *StdioTransport {
	t := &StdioTransport{
		proxyService: proxyService,
		in:           os.Stdin,
		out:          os.Stdout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start serves until the client closes its input or ctx is cancelled.
func (t *StdioTransport) Start(ctx context.Context) error {
	return t.proxyService.Run(ctx, t.in, t.out)
}

// Close is a no-op: the streams belong to the process.
func (t *StdioTransport) Close() error {
	return nil
}

var _ inbound.Transport = (*StdioTransport)(nil)
