// Package proxy contains the gateway's message interceptor chain:
// validation, audit, the dispatch gate and the tool router.
package proxy

import (
	"context"

	"github.com/hass-gate/hassgate/pkg/mcp"
)

// MessageInterceptor inspects a message and either passes it on or answers it.
//
// An interceptor that answers returns a ServerToClient message. A nil message
// with a nil error means no response is due (notifications). A non-nil error
// rejects the message at the JSON-RPC level.
type MessageInterceptor interface {
	Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error)
}

// InterceptorFunc adapts a function to MessageInterceptor.
type InterceptorFunc func(ctx context.Context, msg *mcp.Message) (*mcp.Message, error)

// Intercept calls f(ctx, msg).
func (f InterceptorFunc) Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	return f(ctx, msg)
}

var _ MessageInterceptor = InterceptorFunc(nil)
