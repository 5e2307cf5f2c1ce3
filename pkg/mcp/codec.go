package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// jsonrpcVersion is the only protocol version the gateway speaks.
const jsonrpcVersion = "2.0"

// WrapMessage decodes one line of client input and wraps it with direction
// and receive time. The SDK decoder rejects anything that is not a JSON-RPC
// 2.0 request or response; callers answer those with a parse error using
// RecoverID.
func WrapMessage(raw []byte, dir Direction) (*Message, error) {
	decoded, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return nil, err
	}

	return &Message{
		Raw:       raw,
		Direction: dir,
		Decoded:   decoded,
		Timestamp: time.Now(),
	}, nil
}

// RecoverID returns the "id" member of raw when raw is at least a JSON
// object, so an undecodable request can still be answered against its id.
// It returns nil otherwise.
func RecoverID(raw []byte) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj["id"]
}

type resultFrame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result"`
}

type errorFrame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   errorDetail     `json:"error"`
}

type errorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// EncodeResult encodes a success response for id. HTML escaping is off so
// hub values such as "<unknown>" reach the agent unchanged.
func EncodeResult(id json.RawMessage, result any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resultFrame{JSONRPC: jsonrpcVersion, ID: id, Result: result}); err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// EncodeError encodes an error response. A nil id encodes as null, which is
// what JSON-RPC requires when the request id is unknown.
func EncodeError(id json.RawMessage, code int, message string) []byte {
	if id == nil {
		id = json.RawMessage("null")
	}
	b, _ := json.Marshal(errorFrame{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Error:   errorDetail{Code: code, Message: message},
	})
	return b
}
