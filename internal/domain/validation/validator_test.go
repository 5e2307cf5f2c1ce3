package validation

import (
	"encoding/json"
	"testing"

	"github.com/hass-gate/hassgate/pkg/mcp"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

func mustID(t *testing.T, v any) jsonrpc.ID {
	t.Helper()
	id, err := jsonrpc.MakeID(v)
	if err != nil {
		t.Fatalf("MakeID(%v) error = %v", v, err)
	}
	return id
}

func TestMessageValidator_Validate(t *testing.T) {
	v := NewMessageValidator()

	tests := []struct {
		name     string
		decoded  jsonrpc.Message
		wantCode int // 0 means valid
	}{
		{"nil decoded", nil, ErrCodeParseError},
		{"tools/list", &jsonrpc.Request{ID: mustID(t, float64(1)), Method: "tools/list"}, 0},
		{"tools/call", &jsonrpc.Request{ID: mustID(t, "abc"), Method: "tools/call", Params: json.RawMessage(`{"name":"ha_ping"}`)}, 0},
		{"tools/call without params", &jsonrpc.Request{ID: mustID(t, "abc"), Method: "tools/call"}, ErrCodeInvalidParams},
		{"initialize", &jsonrpc.Request{ID: mustID(t, float64(0)), Method: "initialize"}, 0},
		{"ping", &jsonrpc.Request{ID: mustID(t, float64(2)), Method: "ping"}, 0},
		{"initialized notification", &jsonrpc.Request{Method: "notifications/initialized"}, 0},
		{"cancelled notification", &jsonrpc.Request{Method: "notifications/cancelled"}, 0},
		{"notification with id", &jsonrpc.Request{ID: mustID(t, float64(9)), Method: "notifications/initialized"}, ErrCodeInvalidRequest},
		{"missing method", &jsonrpc.Request{ID: mustID(t, float64(1))}, ErrCodeInvalidRequest},
		{"notification missing method", &jsonrpc.Request{}, ErrCodeInvalidRequest},
		{"unknown method", &jsonrpc.Request{ID: mustID(t, float64(1)), Method: "unknown/method"}, ErrCodeMethodNotFound},
		{"unadvertised capability", &jsonrpc.Request{ID: mustID(t, float64(1)), Method: "resources/list"}, ErrCodeMethodNotFound},
		{"response with result", &jsonrpc.Response{ID: mustID(t, float64(1)), Result: json.RawMessage(`{}`)}, 0},
		{"response with error", &jsonrpc.Response{ID: mustID(t, float64(1)), Error: &jsonrpc.Error{Code: -1, Message: "x"}}, 0},
		{"response missing id", &jsonrpc.Response{Result: json.RawMessage(`{}`)}, ErrCodeInvalidRequest},
		{"response with neither", &jsonrpc.Response{ID: mustID(t, float64(1))}, ErrCodeInvalidRequest},
		{"response with both", &jsonrpc.Response{ID: mustID(t, float64(1)), Result: json.RawMessage(`{}`), Error: &jsonrpc.Error{Code: -1}}, ErrCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&mcp.Message{Decoded: tt.decoded})
			if tt.wantCode == 0 {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			valErr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("Validate() error = %T %v, want *ValidationError", err, err)
			}
			if valErr.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", valErr.Code, tt.wantCode)
			}
		})
	}
}

func TestMessageValidator_UnknownMethodNamesMethod(t *testing.T) {
	err := NewMessageValidator().Validate(&mcp.Message{
		Decoded: &jsonrpc.Request{ID: mustID(t, float64(1)), Method: "prompts/list"},
	})
	valErr, ok := err.(*ValidationError)
	if !ok || valErr.Message != "Method not found: prompts/list" {
		t.Errorf("Validate() = %v", err)
	}
}

func TestServerMethods(t *testing.T) {
	for _, m := range []string{"initialize", "notifications/initialized", "ping", "tools/list", "tools/call"} {
		if !IsServerMethod(m) {
			t.Errorf("IsServerMethod(%q) = false", m)
		}
	}
	for _, m := range []string{"resources/read", "sampling/createMessage", "Tools/List", "initialized", ""} {
		if IsServerMethod(m) {
			t.Errorf("IsServerMethod(%q) = true", m)
		}
	}
}
