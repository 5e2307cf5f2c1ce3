// Package validation rejects malformed client input before it reaches the
// gate: JSON-RPC shape, the method set the gateway answers, and tool call
// arguments.
package validation

import "fmt"

// JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ValidationError is a rejection that is safe to send to the client:
// Message goes out verbatim as the JSON-RPC error message.
type ValidationError struct {
	Code    int
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// NewValidationError creates a ValidationError.
func NewValidationError(code int, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}

func invalidRequest(message string) *ValidationError {
	return NewValidationError(ErrCodeInvalidRequest, message)
}

func invalidParams(message string) *ValidationError {
	return NewValidationError(ErrCodeInvalidParams, message)
}
