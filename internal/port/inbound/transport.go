// Package inbound defines the port the client-facing transports implement.
package inbound

import "context"

// Transport connects a client to the gateway.
type Transport interface {
	// Start serves the client. It blocks until the client disconnects
	// (returning nil) or ctx is cancelled.
	Start(ctx context.Context) error

	// Close releases transport resources.
	Close() error
}
