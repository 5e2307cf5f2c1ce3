package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hass-gate/hassgate/internal/domain/validation"
	"github.com/hass-gate/hassgate/pkg/mcp"
)

// JSON-RPC error codes used by the router.
const (
	ErrCodeInvalidParams  int64 = -32602
	ErrCodeMethodNotFound int64 = -32601
	ErrCodeInternal       int64 = -32603
)

// SafeErrorMessage returns a client-facing message for a chain error.
// Validation errors carry a safe message already; anything else is
// reported generically and only logged in full.
func SafeErrorMessage(err error) (int, string) {
	var valErr *validation.ValidationError
	if errors.As(err, &valErr) {
		return valErr.Code, valErr.Message
	}
	return int(ErrCodeInternal), "Internal error"
}

// buildErrorResponse constructs a JSON-RPC error response message.
func buildErrorResponse(msg *mcp.Message, code int64, message string) *mcp.Message {
	return &mcp.Message{
		Raw:           mcp.EncodeError(msg.RawID(), int(code), message),
		Direction:     mcp.ServerToClient,
		Timestamp:     time.Now(),
		CorrelationID: msg.CorrelationID,
	}
}

// buildResultResponse constructs a JSON-RPC success response message.
func buildResultResponse(msg *mcp.Message, result any) (*mcp.Message, error) {
	raw, err := mcp.EncodeResult(msg.RawID(), result)
	if err != nil {
		return nil, err
	}
	return &mcp.Message{
		Raw:           raw,
		Direction:     mcp.ServerToClient,
		Timestamp:     time.Now(),
		CorrelationID: msg.CorrelationID,
	}, nil
}

// buildToolResponse wraps a payload as a tools/call result whose single
// text content is the indented JSON of payload.
func buildToolResponse(msg *mcp.Message, payload any, isError bool) (*mcp.Message, error) {
	text, err := indentJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return buildResultResponse(msg, toolCallResult{
		Content: []textContent{{Type: "text", Text: text}},
		IsError: isError,
	})
}

// buildToolError wraps message as the {error: message} payload.
func buildToolError(msg *mcp.Message, message string) (*mcp.Message, error) {
	return buildToolResponse(msg, errorPayload{Error: message}, true)
}

// indentJSON encodes v with two-space indentation and without HTML escaping,
// so entity attributes such as "<unknown>" stay readable.
func indentJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// --- JSON response types ---

type toolEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type toolsListResult struct {
	Tools []toolEntry `json:"tools"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolCallResult struct {
	Content []textContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type errorPayload struct {
	Error string `json:"error"`
}
