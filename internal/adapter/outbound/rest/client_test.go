package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hass-gate/hassgate/internal/config"
	"github.com/hass-gate/hassgate/internal/domain/hub"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T, baseURL, timeout string) *config.Config {
	t.Helper()
	s := config.Settings{URL: baseURL, Token: "test-token", RequestTimeoutSeconds: timeout}
	s.SetDefaults()
	cfg, err := config.Build(s, testLogger())
	if err != nil {
		t.Fatalf("config.Build() error = %v", err)
	}
	return cfg
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithRetryIntervals(time.Millisecond, 4*time.Millisecond)}, opts...)
	c := NewClient(testConfig(t, srv.URL, "1"), testLogger(), opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type fakeMetrics struct {
	mu       sync.Mutex
	statuses []string
	retries  int
}

func (m *fakeMetrics) ObserveHubRequest(transport, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, transport+":"+status)
}

func (m *fakeMetrics) ObserveHubRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

var sampleStates = []map[string]any{
	{"entity_id": "light.kitchen", "state": "on", "attributes": map[string]any{"friendly_name": "Kitchen"}},
	{"entity_id": "light.hall", "state": "off", "attributes": map[string]any{"friendly_name": "Hall"}},
	{"entity_id": "light.porch", "state": "on", "attributes": map[string]any{}},
	{"entity_id": "switch.fan", "state": "off", "attributes": map[string]any{"friendly_name": "Ceiling Fan"}},
	{"entity_id": "switch.pump", "state": "on", "attributes": map[string]any{"device_class": "outlet", "location": "Garden shed"}},
}

func statesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/states" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, sampleStates)
	})
}

func TestClient_SendsBearerToken(t *testing.T) {
	t.Parallel()

	var gotAuth string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, map[string]any{"message": "API running.", "version": "2024.6.0"})
	}))

	res, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if res.Status != "ok" || res.Message != "API running." || res.Version != "2024.6.0" {
		t.Errorf("Ping() = %+v", res)
	}
}

func TestListEntities_DomainFilter(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, statesHandler())

	res, err := c.ListEntities(context.Background(), "light")
	if err != nil {
		t.Fatalf("ListEntities() error = %v", err)
	}
	if res.Total != 3 || res.Returned != 3 {
		t.Errorf("Total/Returned = %d/%d, want 3/3", res.Total, res.Returned)
	}
	for _, e := range res.Entities {
		if !strings.HasPrefix(e.EntityID, "light.") {
			t.Errorf("unexpected entity %q in light listing", e.EntityID)
		}
	}
	if res.DomainFilter == nil || *res.DomainFilter != "light" {
		t.Errorf("DomainFilter = %v, want light", res.DomainFilter)
	}
	if res.Truncated {
		t.Error("Truncated = true, want false")
	}
}

func TestListEntities_CapsAtMax(t *testing.T) {
	t.Parallel()

	many := make([]map[string]any, MaxEntities+25)
	for i := range many {
		many[i] = map[string]any{"entity_id": "sensor.s", "state": "1", "attributes": map[string]any{}}
	}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, many)
	}))

	res, err := c.ListEntities(context.Background(), "")
	if err != nil {
		t.Fatalf("ListEntities() error = %v", err)
	}
	if res.Total != MaxEntities+25 || res.Returned != MaxEntities {
		t.Errorf("Total/Returned = %d/%d", res.Total, res.Returned)
	}
	if !res.Truncated || res.Message == "" {
		t.Error("expected truncation flag with guidance message")
	}
}

func TestSearchEntities_MatchOrderAndNoDuplicates(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, statesHandler())

	env, err := c.SearchEntities(context.Background(), "GARDEN")
	if err != nil {
		t.Fatalf("SearchEntities() error = %v", err)
	}
	res, ok := env.Data.(hub.SearchResult)
	if !ok {
		t.Fatalf("Data type = %T, want hub.SearchResult", env.Data)
	}
	if res.TotalMatches != 1 || res.Entities[0].EntityID != "switch.pump" {
		t.Errorf("attribute search = %+v, want switch.pump", res)
	}

	env, _ = c.SearchEntities(context.Background(), "kitchen")
	res = env.Data.(hub.SearchResult)
	if res.TotalMatches != 1 {
		t.Errorf("TotalMatches = %d, want 1 (id and name match the same entity)", res.TotalMatches)
	}
}

func TestSearchEntities_AttributeWithHTMLCharacters(t *testing.T) {
	t.Parallel()

	states := []map[string]any{
		{"entity_id": "media_player.den", "state": "playing", "attributes": map[string]any{"media_genre": "R&B <Live>"}},
		{"entity_id": "media_player.patio", "state": "idle", "attributes": map[string]any{"media_genre": "Jazz"}},
	}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, states)
	}))

	for _, query := range []string{"r&b", "<live>"} {
		env, err := c.SearchEntities(context.Background(), query)
		if err != nil {
			t.Fatalf("SearchEntities(%q) error = %v", query, err)
		}
		res := env.Data.(hub.SearchResult)
		if res.TotalMatches != 1 || res.Entities[0].EntityID != "media_player.den" {
			t.Errorf("SearchEntities(%q) = %+v, want media_player.den", query, res)
		}
	}
}

func TestGetEntity_EscapesPath(t *testing.T) {
	t.Parallel()

	var gotPath string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		writeJSON(w, map[string]any{"entity_id": "light.a b", "state": "on"})
	}))

	if _, err := c.GetEntity(context.Background(), "light.a b"); err != nil {
		t.Fatalf("GetEntity() error = %v", err)
	}
	if gotPath != "/api/states/light.a%20b" {
		t.Errorf("path = %q, want escaped entity id", gotPath)
	}
}

func TestClient_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status  int
		body    string
		check   func(error) bool
		wantMsg string
	}{
		{401, "", func(err error) bool { var e *hub.AuthError; return errors.As(err, &e) }, "check HA_TOKEN"},
		{403, "", func(err error) bool { var e *hub.AuthError; return errors.As(err, &e) }, "lack required permissions"},
		{404, "", func(err error) bool { var e *hub.NotFoundError; return errors.As(err, &e) }, "Resource not found: /api/states/light.x"},
		{500, strings.Repeat("z", 300), func(err error) bool { var e *hub.APIError; return errors.As(err, &e) && len(e.Body) == 200 }, "API error 500"},
	}

	for _, tt := range tests {
		var calls atomic.Int32
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(tt.body))
		}))

		_, err := c.GetEntity(context.Background(), "light.x")
		if err == nil || !tt.check(err) {
			t.Errorf("status %d: error = %T %v", tt.status, err, err)
			continue
		}
		if !strings.Contains(err.Error(), tt.wantMsg) {
			t.Errorf("status %d: error = %q, want %q", tt.status, err.Error(), tt.wantMsg)
		}
		if calls.Load() != 1 {
			t.Errorf("status %d: %d requests, HTTP errors must not be retried", tt.status, calls.Load())
		}
	}
}

func TestClient_RetryThenSucceed(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			select {
			case <-release:
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		writeJSON(w, map[string]any{"message": "API running."})
	}))
	t.Cleanup(srv.Close)

	metrics := &fakeMetrics{}
	c := NewClient(testConfig(t, srv.URL, "0.1"), testLogger(),
		WithRetryIntervals(time.Millisecond, 4*time.Millisecond), WithMetrics(metrics))
	t.Cleanup(func() { _ = c.Close() })

	res, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping() error = %v, want success on third attempt", err)
	}
	if res.Message != "API running." {
		t.Errorf("Message = %q", res.Message)
	}
	if calls.Load() != 3 {
		t.Errorf("requests = %d, want 3", calls.Load())
	}
	if metrics.retries != 2 {
		t.Errorf("retries = %d, want 2", metrics.retries)
	}
}

func TestClient_RetryExhaustedTimeout(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(testConfig(t, srv.URL, "0.05"), testLogger(), WithRetryIntervals(time.Millisecond, 4*time.Millisecond))
	t.Cleanup(func() { _ = c.Close() })

	_, err := c.Ping(context.Background())
	var timeoutErr *hub.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Ping() error = %T %v, want *hub.TimeoutError", err, err)
	}
	if calls.Load() != 3 {
		t.Errorf("requests = %d, want 3", calls.Load())
	}
}

func TestClient_ConnectionRefusedIsTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewClient(testConfig(t, base, "1"), testLogger(), WithRetryIntervals(time.Millisecond, 2*time.Millisecond))
	_, err := c.Ping(context.Background())
	if !errors.Is(err, hub.ErrTransport) {
		t.Fatalf("Ping() error = %T %v, want transport error", err, err)
	}
}

func TestGetHistory_QueryShape(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 30, 45, 123, time.UTC)
	orig := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = orig })

	var gotPath, gotQuery string
	series := make([]any, 250)
	for i := range series {
		series[i] = map[string]any{"state": "1"}
	}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		writeJSON(w, []any{series, []any{}, []any{map[string]any{"state": "2"}}})
	}))

	env, err := c.GetHistory(context.Background(), "", 6)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if gotPath != "/api/history/period/2024-05-01T06:30:45Z" {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.Contains(gotQuery, "end_time=2024-05-01T12%3A30%3A45Z") || !strings.Contains(gotQuery, "significant_changes_only=1") {
		t.Errorf("query = %q", gotQuery)
	}

	res := env.Data.(hub.HistoryResult)
	if res.TotalEntries != 251 || res.ReturnedEntries != 201 {
		t.Errorf("Total/Returned = %d/%d, want 251/201", res.TotalEntries, res.ReturnedEntries)
	}
	if len(res.History) != 2 || len(res.History[0]) != MaxHistoryEntries {
		t.Errorf("History series = %d, first len %d", len(res.History), len(res.History[0]))
	}
}

func TestGetLogbook_EntityFilter(t *testing.T) {
	t.Parallel()

	var gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeJSON(w, make([]any, 300))
	}))

	env, err := c.GetLogbook(context.Background(), "light.kitchen", 24)
	if err != nil {
		t.Fatalf("GetLogbook() error = %v", err)
	}
	if !strings.Contains(gotQuery, "entity=light.kitchen") {
		t.Errorf("query = %q, want entity filter", gotQuery)
	}
	res := env.Data.(hub.LogbookResult)
	if res.TotalEntries != 300 || res.ReturnedEntries != MaxHistoryEntries {
		t.Errorf("Total/Returned = %d/%d", res.TotalEntries, res.ReturnedEntries)
	}
}

func TestGetErrorLog(t *testing.T) {
	t.Parallel()

	t.Run("missing endpoint", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestClient(t, http.NotFoundHandler())

		res, err := c.GetErrorLog(context.Background())
		if err != nil {
			t.Fatalf("GetErrorLog() error = %v, want guidance payload", err)
		}
		if res.Error == nil || *res.Error || res.Log != nil || res.Message == "" {
			t.Errorf("GetErrorLog() = %+v", res)
		}
	})

	t.Run("truncated text", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(strings.Repeat("e", 150_000)))
		}))

		res, err := c.GetErrorLog(context.Background())
		if err != nil {
			t.Fatalf("GetErrorLog() error = %v", err)
		}
		if !*res.Truncated || *res.TotalBytes != 150_000 || len(*res.Log) != 100_000 || res.MaxBytes != 100_000 {
			t.Errorf("truncated=%v total=%d log=%d max=%d", *res.Truncated, *res.TotalBytes, len(*res.Log), res.MaxBytes)
		}
	})
}

func TestCallService_MergesBody(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotBody map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, []any{})
	}))

	res, err := c.CallService(context.Background(), "light", "turn_on",
		map[string]any{"brightness": 128}, map[string]any{"entity_id": "light.kitchen"})
	if err != nil {
		t.Fatalf("CallService() error = %v", err)
	}
	if gotPath != "/api/services/light/turn_on" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["brightness"] != float64(128) || gotBody["entity_id"] != "light.kitchen" {
		t.Errorf("body = %v, want flat merge of data and target", gotBody)
	}
	if !res.Success || res.Result != "Service called successfully" {
		t.Errorf("CallService() = %+v", res)
	}
}

func TestClient_CloseIdempotentAndReopens(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, statesHandler())

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := c.ListEntities(context.Background(), ""); err != nil {
		t.Fatalf("ListEntities() after Close error = %v, want recreated session", err)
	}
}
