package proxy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hass-gate/hassgate/internal/domain/audit"
	"github.com/hass-gate/hassgate/internal/domain/tool"
	"github.com/hass-gate/hassgate/internal/port/outbound"
	"github.com/hass-gate/hassgate/pkg/mcp"
)

// ServicePolicy decides which hub services may be called.
// Satisfied by *config.ServiceAllowlist.
type ServicePolicy interface {
	IsAllowed(domain, service string) bool
	DenialMessage(domain, service string) string
}

// GateInterceptor refuses tool calls that are unknown, disabled, missing
// required arguments, or (for service calls) outside the allowlist or
// matched by a deny rule. Refusals are normal isError tool results, never
// JSON-RPC errors, and never reach the hub.
type GateInterceptor struct {
	catalog  *tool.Catalog
	features Features
	policy   ServicePolicy
	guard    outbound.ServiceGuard // optional, may be nil
	next     MessageInterceptor
	logger   *slog.Logger
}

// NewGateInterceptor creates a new GateInterceptor.
func NewGateInterceptor(
	catalog *tool.Catalog,
	features Features,
	policy ServicePolicy,
	guard outbound.ServiceGuard,
	next MessageInterceptor,
	logger *slog.Logger,
) *GateInterceptor {
	return &GateInterceptor{
		catalog:  catalog,
		features: features,
		policy:   policy,
		guard:    guard,
		next:     next,
		logger:   logger,
	}
}

// Intercept applies the gate to tools/call requests and passes everything
// else through.
func (g *GateInterceptor) Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	if msg.Direction != mcp.ClientToServer || !msg.IsToolCall() {
		return g.next.Intercept(ctx, msg)
	}
	name, args, ok := msg.ToolCall()
	if !ok {
		// The router answers malformed params with a JSON-RPC error.
		return g.next.Intercept(ctx, msg)
	}

	holder := audit.OutcomeFromContext(ctx)

	def, found := g.catalog.Lookup(name)
	if !found {
		return g.deny(msg, holder, audit.ReasonUnknownTool, name, "Unknown tool: "+name)
	}
	if holder != nil {
		holder.Risk = string(def.Risk)
	}

	if !tool.Enabled(def, g.features.ReadWrite, g.features.SSHEnabled) {
		return g.deny(msg, holder, audit.ReasonDisabled, name, def.DisabledMessage())
	}

	if missing := def.MissingArgs(args); len(missing) > 0 {
		return g.deny(msg, holder, audit.ReasonMissingArgs, name, def.RequiredMessage())
	}

	if def.Gate == tool.GateReadWrite {
		if message, reason, denied := g.checkService(ctx, args); denied {
			return g.deny(msg, holder, reason, name, message)
		}
	}

	return g.next.Intercept(ctx, msg)
}

// checkService applies the allowlist, then the deny rules.
func (g *GateInterceptor) checkService(ctx context.Context, args map[string]any) (message, reason string, denied bool) {
	domain := stringArg(args, "domain")
	service := stringArg(args, "service")
	if domain == "" || service == "" {
		return "domain and service are required", audit.ReasonMissingArgs, true
	}

	if !g.policy.IsAllowed(domain, service) {
		return g.policy.DenialMessage(domain, service), audit.ReasonAllowlist, true
	}

	if g.guard == nil {
		return "", "", false
	}
	rule, err := g.guard.Check(ctx, domain, service, objectArg(args, "data"), objectArg(args, "target"))
	if err != nil {
		g.logger.Error("service rule check failed", "service", domain+"."+service, "error", err)
		return fmt.Sprintf("Service call '%s.%s' denied: rule evaluation failed", domain, service), audit.ReasonRule, true
	}
	if rule != "" {
		return fmt.Sprintf("Service call '%s.%s' denied by rule '%s'", domain, service, rule), audit.ReasonRule, true
	}
	return "", "", false
}

// deny records the refusal and answers with an isError tool result.
func (g *GateInterceptor) deny(msg *mcp.Message, holder *audit.OutcomeHolder, reason, toolName, message string) (*mcp.Message, error) {
	g.logger.Info("tool call denied",
		"tool", toolName,
		"reason", reason,
		"correlation_id", msg.CorrelationID,
	)
	holder.Deny(reason, message)
	return buildToolError(msg, message)
}

// Compile-time check that GateInterceptor implements MessageInterceptor.
var _ MessageInterceptor = (*GateInterceptor)(nil)
