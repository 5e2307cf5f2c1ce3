package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hass-gate/hassgate/internal/domain/audit"
	"github.com/hass-gate/hassgate/internal/domain/hub"
	"github.com/hass-gate/hassgate/internal/domain/tool"
	"github.com/hass-gate/hassgate/internal/port/outbound"
	"github.com/hass-gate/hassgate/pkg/mcp"
)

// DefaultProtocolVersion is answered when the client asks for a protocol
// revision the gateway does not know.
const DefaultProtocolVersion = "2025-06-18"

// supportedProtocolVersions are echoed back when the client requests them.
var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
	"2025-06-18": true,
}

// ServerName is the serverInfo name advertised on initialize.
const ServerName = "hass-gate"

// Hubs bundles the transport ports the router dispatches to.
type Hubs struct {
	REST       outbound.HubREST
	Dashboards outbound.HubDashboards
	Logs       outbound.HubLogs
}

// Features is the configuration that decides which gated tools are visible.
type Features struct {
	ReadWrite  bool
	SSHEnabled bool
}

// RouterOption configures a ToolRouter.
type RouterOption func(*ToolRouter)

// WithTracer records a span per tool call.
func WithTracer(t trace.Tracer) RouterOption {
	return func(r *ToolRouter) {
		r.tracer = t
	}
}

// WithServerVersion sets the serverInfo version.
func WithServerVersion(v string) RouterOption {
	return func(r *ToolRouter) {
		r.version = v
	}
}

// ToolRouter answers MCP requests locally. It is the innermost interceptor:
// tools/call requests reach it only after the gate has approved them, and
// every hub failure is turned into an isError tool result here.
type ToolRouter struct {
	catalog  *tool.Catalog
	hubs     Hubs
	features Features
	version  string
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewToolRouter creates a new ToolRouter.
func NewToolRouter(catalog *tool.Catalog, hubs Hubs, features Features, logger *slog.Logger, opts ...RouterOption) *ToolRouter {
	r := &ToolRouter{
		catalog:  catalog,
		hubs:     hubs,
		features: features,
		version:  "dev",
		tracer:   noop.NewTracerProvider().Tracer(""),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Intercept answers the message by method.
func (r *ToolRouter) Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	if msg.Direction == mcp.ServerToClient {
		return msg, nil
	}

	req := msg.Request()
	if req == nil {
		// The gateway never issues requests, so a client response has no
		// pending call to match.
		r.logger.Debug("ignoring client response")
		return nil, nil
	}
	if !req.IsCall() {
		r.logger.Debug("notification received", "method", req.Method)
		return nil, nil
	}

	switch req.Method {
	case "initialize":
		return r.handleInitialize(msg)
	case "ping":
		return buildResultResponse(msg, map[string]any{})
	case "tools/list":
		return r.handleToolsList(msg)
	case "tools/call":
		return r.handleToolsCall(ctx, msg)
	default:
		return buildErrorResponse(msg, ErrCodeMethodNotFound, "Method not found: "+req.Method), nil
	}
}

// handleInitialize responds to the MCP initialize handshake.
func (r *ToolRouter) handleInitialize(msg *mcp.Message) (*mcp.Message, error) {
	version := DefaultProtocolVersion
	if params := msg.ParseParams(); params != nil {
		if requested, ok := params["protocolVersion"].(string); ok && supportedProtocolVersions[requested] {
			version = requested
		}
	}
	r.logger.Debug("initialize", "protocol_version", version)

	result := map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    ServerName,
			"version": r.version,
		},
	}
	return buildResultResponse(msg, result)
}

// handleToolsList returns the tools visible under the current features,
// in catalog order.
func (r *ToolRouter) handleToolsList(msg *mcp.Message) (*mcp.Message, error) {
	available := r.catalog.Available(r.features.ReadWrite, r.features.SSHEnabled)
	tools := make([]toolEntry, 0, len(available))
	for _, t := range available {
		entry := toolEntry{Name: t.Name, InputSchema: t.InputSchema}
		if t.Description != nil {
			entry.Description = *t.Description
		}
		tools = append(tools, entry)
	}
	return buildResultResponse(msg, toolsListResult{Tools: tools})
}

// handleToolsCall invokes the hub operation behind the tool and wraps the
// outcome as a tool result.
func (r *ToolRouter) handleToolsCall(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	name, args, ok := msg.ToolCall()
	if !ok {
		return buildErrorResponse(msg, ErrCodeInvalidParams, "Invalid tool call parameters"), nil
	}
	if _, found := r.catalog.Lookup(name); !found {
		return buildToolError(msg, "Unknown tool: "+name)
	}

	ctx, span := r.tracer.Start(ctx, "tool "+name,
		trace.WithAttributes(
			attribute.String("mcp.tool", name),
			attribute.String("hassgate.correlation_id", msg.CorrelationID),
		))
	defer span.End()

	r.logger.Info("tool call", "tool", name, "correlation_id", msg.CorrelationID)

	result, err := r.invoke(ctx, name, args)
	if err != nil {
		message := r.errorMessage(name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, message)
		audit.OutcomeFromContext(ctx).Fail(message)
		return buildToolError(msg, message)
	}

	resp, err := buildToolResponse(msg, result, false)
	if err != nil {
		// Hub payloads are decoded JSON; this only fails on a programming error.
		r.logger.Error("failed to encode tool result", "tool", name, "error", err)
		message := fmt.Sprintf("Unexpected error: %s: %v", typeName(err), err)
		audit.OutcomeFromContext(ctx).Fail(message)
		return buildToolError(msg, message)
	}
	return resp, nil
}

// PanicError reports a recovered panic inside a tool handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("tool handler panicked: %v", e.Value)
}

// invoke runs dispatch, converting a panic into a PanicError.
func (r *ToolRouter) invoke(ctx context.Context, name string, args map[string]any) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool handler panicked", "tool", name, "panic", p, "stack", string(debug.Stack()))
			result, err = nil, &PanicError{Value: p}
		}
	}()
	return r.dispatch(ctx, name, args)
}

// dispatch calls the hub operation for name with coerced arguments.
func (r *ToolRouter) dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case tool.NamePing:
		return r.hubs.REST.Ping(ctx)
	case tool.NameListEntities:
		return r.hubs.REST.ListEntities(ctx, stringArg(args, "domain"))
	case tool.NameGetEntity:
		return r.hubs.REST.GetEntity(ctx, stringArg(args, "entity_id"))
	case tool.NameSearchEntities:
		return r.hubs.REST.SearchEntities(ctx, stringArg(args, "query"))
	case tool.NameGetHistory:
		hours := intArg(args, "hours", tool.DefaultHours, tool.MinHours, tool.MaxHours)
		return r.hubs.REST.GetHistory(ctx, stringArg(args, "entity_id"), hours)
	case tool.NameGetLogbook:
		hours := intArg(args, "hours", tool.DefaultHours, tool.MinHours, tool.MaxHours)
		return r.hubs.REST.GetLogbook(ctx, stringArg(args, "entity_id"), hours)
	case tool.NameGetErrorLog:
		return r.hubs.REST.GetErrorLog(ctx)
	case tool.NameGetLovelace:
		return r.hubs.Dashboards.GetLovelaceConfig(ctx, boolArg(args, "force"), stringArg(args, "url_path"))
	case tool.NameListDashboards:
		return r.hubs.Dashboards.ListDashboards(ctx)
	case tool.NameCallService:
		return r.hubs.REST.CallService(ctx,
			stringArg(args, "domain"), stringArg(args, "service"),
			objectArg(args, "data"), objectArg(args, "target"))
	case tool.NameGetFullLogs:
		kind := stringArg(args, "kind")
		if kind == "" {
			kind = string(hub.LogKindCore)
		}
		lines := intArg(args, "lines", tool.DefaultLines, tool.MinLines, tool.MaxLines)
		return r.hubs.Logs.GetLogs(ctx, hub.LogKind(kind), lines)
	case tool.NameSSHTest:
		return r.hubs.Logs.TestConnection(ctx), nil
	}
	return nil, fmt.Errorf("no handler for tool %q", name)
}

// errorMessage maps a dispatch error to the caller-visible message and logs
// it at the level its category deserves.
func (r *ToolRouter) errorMessage(name string, err error) string {
	var (
		authErr      *hub.AuthError
		notFoundErr  *hub.NotFoundError
		apiErr       *hub.APIError
		timeoutErr   *hub.TimeoutError
		transportErr *hub.TransportError
		wsErr        *hub.WSError
		disabledErr  *hub.SSHDisabledError
		sshErr       *hub.SSHError
	)

	switch {
	case errors.As(err, &authErr):
		r.logger.Error("authentication error", "tool", name, "error", err)
		return "Authentication failed: " + authErr.Error()
	case errors.As(err, &notFoundErr):
		r.logger.Warn("resource not found", "tool", name, "error", err)
		return notFoundErr.Error()
	case errors.As(err, &apiErr):
		r.logger.Error("API error", "tool", name, "error", err)
		return "Home Assistant API error: " + apiErr.Error()
	case errors.As(err, &timeoutErr):
		r.logger.Error("API timeout", "tool", name, "error", err)
		return "Home Assistant API error: " + timeoutErr.Error()
	case errors.As(err, &transportErr):
		r.logger.Error("API transport error", "tool", name, "error", err)
		return "Home Assistant API error: " + transportErr.Error()
	case errors.As(err, &wsErr):
		r.logger.Error("WebSocket error", "tool", name, "error", err)
		return "WebSocket error: " + wsErr.Error()
	case errors.As(err, &disabledErr):
		return disabledErr.Error()
	case errors.As(err, &sshErr):
		r.logger.Error("SSH error", "tool", name, "error", err, "attempts", sshErr.Attempts)
		return "SSH error: " + sshErr.Error()
	default:
		r.logger.Error("unexpected error in tool", "tool", name, "error", err)
		return fmt.Sprintf("Unexpected error: %s: %v", typeName(err), err)
	}
}

// typeName returns the bare type name of v, without package or pointer.
func typeName(v any) string {
	name := fmt.Sprintf("%T", v)
	name = strings.TrimLeft(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Compile-time check that ToolRouter implements MessageInterceptor.
var _ MessageInterceptor = (*ToolRouter)(nil)
