package audit

import "context"

// Deny reasons recorded when the gate refuses a call.
const (
	ReasonDisabled    = "disabled"
	ReasonUnknownTool = "unknown_tool"
	ReasonMissingArgs = "missing_args"
	ReasonAllowlist   = "allowlist"
	ReasonRule        = "rule"
)

// outcomeContextKey is the context key type for outcome propagation.
type outcomeContextKey struct{}

// OutcomeHolder is a mutable container placed in context by the
// AuditInterceptor. The gate and the router fill it in; the
// AuditInterceptor reads it after the chain completes. Denials are
// returned to the agent as normal tool results, so the holder is the
// only way the audit layer learns about them.
type OutcomeHolder struct {
	// Denied is set by the gate.
	Denied bool
	// Reason is one of the Reason* constants.
	Reason string
	// Failed is set by the router when the hub call produced an error payload.
	Failed bool
	// Message is the denial or error text.
	Message string
	// Risk is the catalog risk level of the tool.
	Risk string
}

// Deny marks the call as refused by the gate.
func (h *OutcomeHolder) Deny(reason, message string) {
	if h == nil {
		return
	}
	h.Denied = true
	h.Reason = reason
	h.Message = message
}

// Fail marks the call as failed at the hub.
func (h *OutcomeHolder) Fail(message string) {
	if h == nil {
		return
	}
	h.Failed = true
	h.Message = message
}

// Decision returns DecisionDeny for gate refusals, DecisionAllow otherwise.
func (h *OutcomeHolder) Decision() string {
	if h != nil && h.Denied {
		return DecisionDeny
	}
	return DecisionAllow
}

// Outcome returns the outcome constant for the holder's state.
func (h *OutcomeHolder) Outcome() string {
	switch {
	case h == nil:
		return OutcomeOK
	case h.Denied:
		return OutcomeDenied
	case h.Failed:
		return OutcomeError
	}
	return OutcomeOK
}

// NewOutcomeContext returns a new context with an empty OutcomeHolder.
func NewOutcomeContext(ctx context.Context) (context.Context, *OutcomeHolder) {
	holder := &OutcomeHolder{}
	return context.WithValue(ctx, outcomeContextKey{}, holder), holder
}

// OutcomeFromContext retrieves the OutcomeHolder from context.
// Returns nil if not present; the holder's methods are nil-safe.
func OutcomeFromContext(ctx context.Context) *OutcomeHolder {
	holder, _ := ctx.Value(outcomeContextKey{}).(*OutcomeHolder)
	return holder
}
