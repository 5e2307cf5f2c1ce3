package proxy

import (
	"context"
	"testing"

	"github.com/hass-gate/hassgate/internal/domain/audit"
	"github.com/hass-gate/hassgate/internal/domain/tool"
)

// TestChain drives the full Validation -> Audit -> Gate -> ToolRouter chain.
func TestChain(t *testing.T) {
	rest := &fakeREST{}
	rec := &captureRecorder{}
	stats := &captureStats{}
	features := Features{ReadWrite: true}
	catalog := tool.NewCatalog()

	router := NewToolRouter(catalog, Hubs{REST: rest, Dashboards: &fakeDashboards{}, Logs: &fakeLogs{}}, features, testLogger())
	gate := NewGateInterceptor(catalog, features, fakePolicy{allowed: map[string]bool{"light.turn_on": true}}, &fakeGuard{}, router, testLogger())
	chain := NewValidationInterceptor(NewAuditInterceptor(rec, stats, gate, testLogger()), testLogger())
	ctx := context.Background()

	resp, err := chain.Intercept(ctx, newRequest(t, 1, "initialize", map[string]any{"protocolVersion": "2024-11-05"}))
	if err != nil || decodeEnvelope(t, resp).Error != nil {
		t.Fatalf("initialize: %v %v", resp, err)
	}

	resp, _ = chain.Intercept(ctx, toolCall(t, tool.NameCallService, lightOn()))
	if payload, isError := decodeToolResult(t, resp); isError {
		t.Fatalf("allowed call failed: %v", payload)
	}

	resp, _ = chain.Intercept(ctx, toolCall(t, tool.NameCallService, map[string]any{"domain": "homeassistant", "service": "restart"}))
	if payload, isError := decodeToolResult(t, resp); !isError || payload["error"] != "Service call 'homeassistant.restart' denied: not in allowlist" {
		t.Errorf("denial payload = %v", payload)
	}

	if _, err := chain.Intercept(ctx, newRequest(t, 2, "prompts/list", nil)); err == nil {
		t.Error("unsupported method should be rejected")
	}

	if len(rec.records) != 2 {
		t.Fatalf("records = %d, want 2", len(rec.records))
	}
	if rec.records[0].Outcome != audit.OutcomeOK || rec.records[1].Outcome != audit.OutcomeDenied {
		t.Errorf("outcomes = %s, %s", rec.records[0].Outcome, rec.records[1].Outcome)
	}
	if rest.callCount() != 1 {
		t.Errorf("hub calls = %d, want 1", rest.callCount())
	}
	if len(stats.denials) != 1 || stats.denials[0] != audit.ReasonAllowlist {
		t.Errorf("denials = %v", stats.denials)
	}
}
