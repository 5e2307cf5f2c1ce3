// Package hub contains the failure taxonomy shared by the hub transport
// clients and the dispatch gate.
package hub

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is matching. Each concrete error type below
// unwraps to exactly one of these.
var (
	ErrAuth        = errors.New("hub authentication failed")
	ErrNotFound    = errors.New("hub resource not found")
	ErrAPI         = errors.New("hub API error")
	ErrTransport   = errors.New("hub transport error")
	ErrTimeout     = errors.New("hub request timed out")
	ErrWebSocket   = errors.New("hub websocket error")
	ErrSSHDisabled = errors.New("ssh disabled")
	ErrSSH         = errors.New("ssh error")
)

// AuthError reports rejected credentials (HTTP 401/403, auth_invalid).
// Never retried.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }
func (e *AuthError) Unwrap() error { return ErrAuth }

// NotFoundError reports an HTTP 404 for Path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string { return "Resource not found: " + e.Path }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// APIError reports any other HTTP error status. Body is already truncated.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}
func (e *APIError) Unwrap() error { return ErrAPI }

// TransportError reports a network-level failure after retries were exhausted.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// TimeoutError reports that Op did not complete within the request timeout.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out", e.Op)
}
func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// WSError reports a WebSocket protocol failure, including a command the
// hub answered with success=false. Err, when set, is the underlying cause
// (ErrTimeout for an expired wait).
type WSError struct {
	Message string
	Err     error
}

func (e *WSError) Error() string { return e.Message }

func (e *WSError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrWebSocket}
	}
	return []error{ErrWebSocket, e.Err}
}

// SSHDisabledError is returned by every SSH operation when SSH is not enabled.
type SSHDisabledError struct{}

func (e *SSHDisabledError) Error() string {
	return "SSH is not enabled. Set HA_SSH_ENABLE=true and configure HA_SSH_USER."
}
func (e *SSHDisabledError) Unwrap() error { return ErrSSHDisabled }

// SSHError reports connection or command failures, including the list of
// strategies attempted when every log strategy failed.
type SSHError struct {
	Message  string
	Attempts []string
}

func (e *SSHError) Error() string { return e.Message }
func (e *SSHError) Unwrap() error { return ErrSSH }
