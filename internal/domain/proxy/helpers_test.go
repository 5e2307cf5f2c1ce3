package proxy

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/hass-gate/hassgate/internal/domain/hub"
	"github.com/hass-gate/hassgate/internal/domain/shaping"
	"github.com/hass-gate/hassgate/pkg/mcp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newRequest builds a decoded client message from its wire form. A nil id
// makes it a notification.
func newRequest(t *testing.T, id any, method string, params any) *mcp.Message {
	t.Helper()
	wire := map[string]any{"jsonrpc": "2.0", "method": method}
	if id != nil {
		wire["id"] = id
	}
	if params != nil {
		wire["params"] = params
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	msg, err := mcp.WrapMessage(raw, mcp.ClientToServer)
	if err != nil {
		t.Fatalf("WrapMessage(%s): %v", raw, err)
	}
	msg.CorrelationID = "corr-1"
	return msg
}

func toolCall(t *testing.T, name string, args map[string]any) *mcp.Message {
	t.Helper()
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	return newRequest(t, 7, "tools/call", params)
}

type rpcEnvelope struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int64  `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *mcp.Message) rpcEnvelope {
	t.Helper()
	if resp == nil {
		t.Fatal("expected a response, got nil")
	}
	if resp.Direction != mcp.ServerToClient {
		t.Errorf("Direction = %v, want ServerToClient", resp.Direction)
	}
	var env rpcEnvelope
	if err := json.Unmarshal(resp.Raw, &env); err != nil {
		t.Fatalf("unmarshal response %s: %v", resp.Raw, err)
	}
	return env
}

// decodeToolResult returns the JSON payload carried in the single text
// content of a tools/call result, and the isError flag.
func decodeToolResult(t *testing.T, resp *mcp.Message) (map[string]any, bool) {
	t.Helper()
	env := decodeEnvelope(t, resp)
	if env.Error != nil {
		t.Fatalf("unexpected JSON-RPC error: %d %s", env.Error.Code, env.Error.Message)
	}
	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("content = %+v, want one text item", result.Content)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].Text), &payload); err != nil {
		t.Fatalf("payload is not a JSON object: %q", result.Content[0].Text)
	}
	return payload, result.IsError
}

// fakeREST implements outbound.HubREST with canned answers.
type fakeREST struct {
	mu    sync.Mutex
	calls []string

	err        error
	panicValue any

	gotDomain  string
	gotService string
	gotData    map[string]any
	gotTarget  map[string]any
	gotHours   int
	gotEntity  string
}

func (f *fakeREST) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.panicValue != nil {
		panic(f.panicValue)
	}
	return f.err
}

func (f *fakeREST) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeREST) Ping(ctx context.Context) (*hub.PingResult, error) {
	if err := f.record("ping"); err != nil {
		return nil, err
	}
	return &hub.PingResult{Status: "ok", Message: "API running.", Version: "2024.5.0"}, nil
}

func (f *fakeREST) ListEntities(ctx context.Context, domain string) (*hub.EntityList, error) {
	if err := f.record("list"); err != nil {
		return nil, err
	}
	f.gotDomain = domain
	return &hub.EntityList{Total: 1, Returned: 1, Entities: []hub.EntitySummary{{EntityID: "light.kitchen", State: "on"}}}, nil
}

func (f *fakeREST) GetEntity(ctx context.Context, entityID string) (map[string]any, error) {
	if err := f.record("get"); err != nil {
		return nil, err
	}
	f.gotEntity = entityID
	return map[string]any{"entity_id": entityID, "state": "on"}, nil
}

func (f *fakeREST) SearchEntities(ctx context.Context, query string) (shaping.Envelope, error) {
	if err := f.record("search"); err != nil {
		return shaping.Envelope{}, err
	}
	return shaping.Envelope{Data: hub.SearchResult{Query: query}}, nil
}

func (f *fakeREST) GetHistory(ctx context.Context, entityID string, hours int) (shaping.Envelope, error) {
	if err := f.record("history"); err != nil {
		return shaping.Envelope{}, err
	}
	f.gotEntity, f.gotHours = entityID, hours
	return shaping.Envelope{Data: hub.HistoryResult{Hours: hours}}, nil
}

func (f *fakeREST) GetLogbook(ctx context.Context, entityID string, hours int) (shaping.Envelope, error) {
	if err := f.record("logbook"); err != nil {
		return shaping.Envelope{}, err
	}
	f.gotEntity, f.gotHours = entityID, hours
	return shaping.Envelope{Data: hub.LogbookResult{Hours: hours}}, nil
}

func (f *fakeREST) GetErrorLog(ctx context.Context) (*hub.ErrorLog, error) {
	if err := f.record("error_log"); err != nil {
		return nil, err
	}
	log := "line"
	return &hub.ErrorLog{Log: &log}, nil
}

func (f *fakeREST) CallService(ctx context.Context, domain, service string, data, target map[string]any) (*hub.ServiceCallResult, error) {
	if err := f.record("call_service"); err != nil {
		return nil, err
	}
	f.gotDomain, f.gotService, f.gotData, f.gotTarget = domain, service, data, target
	return &hub.ServiceCallResult{Success: true, Domain: domain, Service: service, Result: []any{}}, nil
}

func (f *fakeREST) Close() error { return nil }

// fakeDashboards implements outbound.HubDashboards.
type fakeDashboards struct {
	err        error
	gotForce   bool
	gotURLPath string
	listCalled bool
}

func (f *fakeDashboards) GetLovelaceConfig(ctx context.Context, force bool, urlPath string) (*hub.LovelaceResult, error) {
	f.gotForce, f.gotURLPath = force, urlPath
	if f.err != nil {
		return nil, f.err
	}
	return &hub.LovelaceResult{Config: map[string]any{"title": "Home"}}, nil
}

func (f *fakeDashboards) ListDashboards(ctx context.Context) (*hub.DashboardList, error) {
	f.listCalled = true
	if f.err != nil {
		return nil, f.err
	}
	n := 0
	return &hub.DashboardList{Dashboards: []any{}, Count: &n}, nil
}

// fakeLogs implements outbound.HubLogs.
type fakeLogs struct {
	err      error
	gotKind  hub.LogKind
	gotLines int
}

func (f *fakeLogs) GetLogs(ctx context.Context, kind hub.LogKind, lines int) (*hub.LogResult, error) {
	f.gotKind, f.gotLines = kind, lines
	if f.err != nil {
		return nil, f.err
	}
	return &hub.LogResult{Source: "ha core logs", RequestedLines: lines, Log: "ok"}, nil
}

func (f *fakeLogs) TestConnection(ctx context.Context) *hub.SSHTestResult {
	return &hub.SSHTestResult{Success: true, Host: "ha.local", User: "root", Message: "SSH connection successful"}
}

// fakePolicy implements ServicePolicy over a fixed set of services.
type fakePolicy struct {
	allowed map[string]bool
}

func (p fakePolicy) IsAllowed(domain, service string) bool {
	return p.allowed[domain+"."+service]
}

func (p fakePolicy) DenialMessage(domain, service string) string {
	return "Service call '" + domain + "." + service + "' denied: not in allowlist"
}

// fakeGuard implements outbound.ServiceGuard.
type fakeGuard struct {
	rule   string
	err    error
	called bool
}

func (g *fakeGuard) Check(ctx context.Context, domain, service string, data, target map[string]any) (string, error) {
	g.called = true
	return g.rule, g.err
}
