package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hass-gate/hassgate/internal/domain/audit"
	"github.com/hass-gate/hassgate/pkg/mcp"
)

// AuditRecorder records audit events.
// This interface is satisfied by AuditService.
type AuditRecorder interface {
	Record(record audit.AuditRecord)
}

// StatsRecorder records tool call statistics.
// This interface is satisfied by the Prometheus metrics adapter.
type StatsRecorder interface {
	RecordToolCall(tool, outcome string, latency time.Duration)
	RecordDenial(reason string)
}

// AuditInterceptor records every tools/call with its decision, outcome and
// latency. Chain order: Validation -> Audit -> Gate -> ToolRouter.
type AuditInterceptor struct {
	recorder AuditRecorder // optional, may be nil
	stats    StatsRecorder // optional, may be nil
	next     MessageInterceptor
	logger   *slog.Logger
}

// NewAuditInterceptor creates a new AuditInterceptor.
func NewAuditInterceptor(
	recorder AuditRecorder,
	stats StatsRecorder,
	next MessageInterceptor,
	logger *slog.Logger,
) *AuditInterceptor {
	return &AuditInterceptor{
		recorder: recorder,
		stats:    stats,
		next:     next,
		logger:   logger,
	}
}

// Intercept records tool calls and passes messages to the next interceptor.
// Non-tool-call messages are passed through without audit logging.
func (a *AuditInterceptor) Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	if !msg.IsToolCall() {
		return a.next.Intercept(ctx, msg)
	}

	startTime := time.Now()

	// Outcome holder in context for the gate and the router.
	ctx, holder := audit.NewOutcomeContext(ctx)

	result, err := a.next.Intercept(ctx, msg)
	latency := time.Since(startTime)

	record := a.buildAuditRecord(msg, holder, startTime, latency, err)

	if a.stats != nil {
		a.stats.RecordToolCall(record.ToolName, record.Outcome, latency)
		if holder.Denied {
			a.stats.RecordDenial(holder.Reason)
		}
	}

	if a.recorder != nil {
		a.recorder.Record(record)
	}

	a.logger.Debug("audit recorded",
		"tool", record.ToolName,
		"decision", record.Decision,
		"outcome", record.Outcome,
		"latency_us", record.LatencyMicros,
	)

	return result, err
}

// buildAuditRecord creates an AuditRecord from the message and the outcome
// the gate and router left in the holder.
func (a *AuditInterceptor) buildAuditRecord(msg *mcp.Message, holder *audit.OutcomeHolder, startTime time.Time, latency time.Duration, err error) audit.AuditRecord {
	record := audit.AuditRecord{
		ID:            uuid.NewString(),
		Timestamp:     startTime,
		CorrelationID: msg.CorrelationID,
		RequestID:     a.extractRequestID(msg),
		LatencyMicros: latency.Microseconds(),
		Risk:          holder.Risk,
		Decision:      holder.Decision(),
		Outcome:       holder.Outcome(),
		DenyReason:    holder.Reason,
		Message:       holder.Message,
	}

	name, args, ok := msg.ToolCall()
	if !ok {
		name = msg.Method()
	}
	record.ToolName = name
	record.ToolArguments = audit.RedactSensitiveArgs(args)

	// A JSON-RPC level failure never reached the gate.
	if err != nil {
		record.Outcome = audit.OutcomeError
		record.Message = err.Error()
	}

	return record
}

// extractRequestID gets the JSON-RPC request ID for correlation.
func (a *AuditInterceptor) extractRequestID(msg *mcp.Message) string {
	req := msg.Request()
	if req == nil {
		return ""
	}

	// ID.Raw() returns the underlying value (string, int64, or nil)
	id := req.ID.Raw()
	if id == nil {
		return ""
	}

	return fmt.Sprintf("%v", id)
}

// Compile-time check that AuditInterceptor implements MessageInterceptor.
var _ MessageInterceptor = (*AuditInterceptor)(nil)
