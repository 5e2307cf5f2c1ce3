package validation

import (
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/hass-gate/hassgate/pkg/mcp"
)

// MessageValidator checks decoded client messages against JSON-RPC and the
// gateway's method set.
type MessageValidator struct{}

// NewMessageValidator creates a MessageValidator.
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// Validate returns nil or a *ValidationError.
//
// Requests need a known method; notification methods must not carry an id
// and tools/call needs params. Responses need an id and exactly one of
// result or error.
func (v *MessageValidator) Validate(msg *mcp.Message) error {
	switch m := msg.Decoded.(type) {
	case nil:
		return NewValidationError(ErrCodeParseError, "Parse error")
	case *jsonrpc.Request:
		return validateRequest(m)
	case *jsonrpc.Response:
		return validateResponse(m)
	default:
		return invalidRequest("Invalid Request")
	}
}

func validateRequest(req *jsonrpc.Request) error {
	if req.Method == "" {
		return invalidRequest("Invalid Request")
	}
	rule, ok := serverMethods[req.Method]
	if !ok {
		return NewValidationError(ErrCodeMethodNotFound, "Method not found: "+req.Method)
	}
	if rule.notification && req.IsCall() {
		return invalidRequest("Notification must not have an id: " + req.Method)
	}
	if rule.needsParams && len(req.Params) == 0 {
		return invalidParams("Missing params")
	}
	return nil
}

func validateResponse(resp *jsonrpc.Response) error {
	if !resp.ID.IsValid() {
		return invalidRequest("Invalid Request")
	}
	if (resp.Result != nil) == (resp.Error != nil) {
		return invalidRequest("Invalid Request")
	}
	return nil
}
