package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hass-gate/hassgate/internal/domain/validation"
	"github.com/hass-gate/hassgate/pkg/mcp"
)

// ValidationInterceptor is the outermost interceptor. It rejects malformed
// client messages with JSON-RPC errors, drops client responses, and
// replaces tool call params with their sanitized form so the audit log,
// the gate and the hub all see the same arguments.
type ValidationInterceptor struct {
	next      MessageInterceptor
	validator *validation.MessageValidator
	sanitizer *validation.Sanitizer
	logger    *slog.Logger
}

// NewValidationInterceptor creates a new ValidationInterceptor.
func NewValidationInterceptor(next MessageInterceptor, logger *slog.Logger) *ValidationInterceptor {
	return &ValidationInterceptor{
		next:      next,
		validator: validation.NewMessageValidator(),
		sanitizer: validation.NewSanitizer(),
		logger:    logger,
	}
}

// Intercept validates client messages; anything flowing to the client
// passes through.
func (v *ValidationInterceptor) Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	if msg.Direction != mcp.ClientToServer {
		return v.next.Intercept(ctx, msg)
	}

	if err := v.validator.Validate(msg); err != nil {
		v.logger.Warn("rejecting client message",
			"method", msg.Method(),
			"error", err,
			"correlation_id", msg.CorrelationID,
		)
		return nil, asValidationError(err, validation.ErrCodeInvalidRequest, "Invalid Request")
	}

	// The gateway never sends requests, so a client response has nothing
	// to answer.
	if msg.IsResponse() {
		v.logger.Warn("dropping unsolicited client response", "correlation_id", msg.CorrelationID)
		return nil, nil
	}

	if msg.IsToolCall() {
		if err := v.sanitizeToolCall(msg); err != nil {
			v.logger.Warn("rejecting tool call", "error", err, "correlation_id", msg.CorrelationID)
			return nil, asValidationError(err, validation.ErrCodeInvalidParams, "Invalid tool call parameters")
		}
	}

	return v.next.Intercept(ctx, msg)
}

// sanitizeToolCall rewrites the request params and ParsedParams in place.
func (v *ValidationInterceptor) sanitizeToolCall(msg *mcp.Message) error {
	req := msg.Request()
	var params map[string]any
	if err := json.Unmarshal(req.Params, &params); err != nil || params == nil {
		return validation.NewValidationError(validation.ErrCodeInvalidParams, "Invalid params")
	}

	clean, err := v.sanitizer.SanitizeToolCall(params)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(clean)
	if err != nil {
		return validation.NewValidationError(validation.ErrCodeInternalError, "Request processing error")
	}
	req.Params = encoded
	msg.ParsedParams = clean
	return nil
}

// asValidationError keeps a *ValidationError and replaces anything else with
// a generic one, so no internal detail reaches the client.
func asValidationError(err error, code int, message string) error {
	var valErr *validation.ValidationError
	if errors.As(err, &valErr) {
		return valErr
	}
	return validation.NewValidationError(code, message)
}

var _ MessageInterceptor = (*ValidationInterceptor)(nil)
