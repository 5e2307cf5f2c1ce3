// Package outbound defines the outbound port interfaces for reaching the hub
// over its REST, WebSocket and SSH surfaces.
package outbound

import (
	"context"

	"github.com/hass-gate/hassgate/internal/domain/hub"
	"github.com/hass-gate/hassgate/internal/domain/shaping"
)

// HubREST is the polling-style surface of the hub.
// Adapters translate HTTP failures into the hub error types.
type HubREST interface {
	Ping(ctx context.Context) (*hub.PingResult, error)
	ListEntities(ctx context.Context, domain string) (*hub.EntityList, error)
	GetEntity(ctx context.Context, entityID string) (map[string]any, error)
	SearchEntities(ctx context.Context, query string) (shaping.Envelope, error)
	GetHistory(ctx context.Context, entityID string, hours int) (shaping.Envelope, error)
	GetLogbook(ctx context.Context, entityID string, hours int) (shaping.Envelope, error)
	GetErrorLog(ctx context.Context) (*hub.ErrorLog, error)

	// CallService invokes a hub service. It does not consult the allowlist;
	// callers must have authorized the call.
	CallService(ctx context.Context, domain, service string, data, target map[string]any) (*hub.ServiceCallResult, error)

	// Close releases the underlying session. Safe to call more than once.
	Close() error
}

// HubDashboards is the WebSocket surface used for dashboard configuration.
type HubDashboards interface {
	GetLovelaceConfig(ctx context.Context, force bool, urlPath string) (*hub.LovelaceResult, error)
	ListDashboards(ctx context.Context) (*hub.DashboardList, error)
}

// HubLogs is the remote-shell surface used for full log retrieval.
type HubLogs interface {
	GetLogs(ctx context.Context, kind hub.LogKind, lines int) (*hub.LogResult, error)
	TestConnection(ctx context.Context) *hub.SSHTestResult
}

// HubMetrics receives per-request transport observations.
// Implemented by the Prometheus metrics adapter; nil-safe wrappers live in
// each client.
type HubMetrics interface {
	ObserveHubRequest(transport, status string)
	ObserveHubRetry()
}

// ServiceGuard applies operator rules to service calls that passed the
// allowlist. Check returns the name of the denying rule, or "".
type ServiceGuard interface {
	Check(ctx context.Context, domain, service string, data, target map[string]any) (string, error)
}
