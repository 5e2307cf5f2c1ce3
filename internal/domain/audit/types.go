// Package audit contains domain types for audit logging of tool calls.
package audit

import (
	"strings"
	"time"
)

// Decision constants for audit records.
const (
	// DecisionAllow indicates the tool call passed the gate and reached the hub.
	DecisionAllow = "allow"
	// DecisionDeny indicates the gate refused the tool call.
	DecisionDeny = "deny"
)

// Outcome constants describe how an allowed call ended.
const (
	OutcomeOK     = "ok"
	OutcomeError  = "error"
	OutcomeDenied = "denied"
)

// sensitiveKeywords lists substrings that indicate a sensitive argument key.
// Comparison is case-insensitive.
var sensitiveKeywords = []string{
	"password", "secret", "token", "api_key", "apikey",
	"credential", "auth", "private_key", "privatekey", "code",
}

// RedactSensitiveArgs returns a copy of args with sensitive values masked.
// Nested objects (service data, targets) are redacted recursively.
func RedactSensitiveArgs(args map[string]interface{}) map[string]interface{} {
	if len(args) == 0 {
		return args
	}
	redacted := make(map[string]interface{}, len(args))
	for k, v := range args {
		switch {
		case isSensitiveKey(k):
			redacted[k] = "***REDACTED***"
		default:
			if nested, ok := v.(map[string]interface{}); ok {
				redacted[k] = RedactSensitiveArgs(nested)
			} else {
				redacted[k] = v
			}
		}
	}
	return redacted
}

// isSensitiveKey checks if a key name indicates sensitive data.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// AuditRecord represents one tools/call handled by the gateway.
type AuditRecord struct {
	// ID uniquely identifies the record.
	ID string `json:"id"`
	// Timestamp is when the tool call was received.
	Timestamp time.Time `json:"timestamp"`
	// CorrelationID matches log lines and spans for the same exchange.
	CorrelationID string `json:"correlation_id,omitempty"`
	// RequestID is the JSON-RPC request id.
	RequestID string `json:"request_id,omitempty"`
	// ToolName is the name of the tool being invoked.
	ToolName string `json:"tool"`
	// ToolArguments are the arguments passed to the tool, redacted.
	ToolArguments map[string]interface{} `json:"arguments,omitempty"`
	// Risk is the catalog risk level of the tool.
	Risk string `json:"risk,omitempty"`
	// Decision is "allow" or "deny".
	Decision string `json:"decision"`
	// Outcome is "ok", "error" or "denied".
	Outcome string `json:"outcome"`
	// DenyReason is the gate stage that refused the call.
	DenyReason string `json:"deny_reason,omitempty"`
	// Message is the denial or error message returned to the agent.
	Message string `json:"message,omitempty"`
	// LatencyMicros is the time spent handling the call in microseconds.
	LatencyMicros int64 `json:"latency_us"`
}
