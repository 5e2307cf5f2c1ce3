package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/hass-gate/hassgate/internal/domain/hub"
	"github.com/hass-gate/hassgate/internal/domain/shaping"
	"github.com/hass-gate/hassgate/internal/port/outbound"
)

const noLovelaceMessage = "No UI-managed Lovelace configuration found. " +
	"This typically means: 1) You're using YAML mode (dashboards defined in configuration.yaml), " +
	"2) Using auto-generated dashboards, or " +
	"3) No custom dashboards have been created via the UI. " +
	"YAML mode dashboards are stored in files, not the database."

const dashboardsUnavailableMessage = "Dashboard listing may not be available in your HA version"

// GetLovelaceConfig fetches a dashboard configuration. urlPath selects a
// non-default dashboard. Configs larger than MaxLovelaceBytes are replaced
// by a per-view summary.
func (c *Client) GetLovelaceConfig(ctx context.Context, force bool, urlPath string) (*hub.LovelaceResult, error) {
	fields := map[string]any{"force": force}
	if urlPath != "" {
		fields["url_path"] = urlPath
	}

	raw, err := c.run(ctx, "lovelace/config", fields)
	if err != nil {
		var wsErr *hub.WSError
		if errors.As(err, &wsErr) && !isTimeout(err) {
			lower := strings.ToLower(wsErr.Message)
			if strings.Contains(lower, "no config found") || strings.Contains(lower, "config not found") {
				return &hub.LovelaceResult{Config: nil, Message: noLovelaceMessage}, nil
			}
		}
		return nil, err
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, &hub.WSError{Message: "WebSocket error: encoding dashboard config: " + err.Error(), Err: err}
	}
	if len(encoded) <= shaping.MaxLovelaceBytes {
		return &hub.LovelaceResult{Truncated: false, Config: raw}, nil
	}

	c.logger.Info("dashboard config exceeds limit, summarizing",
		"total_bytes", len(encoded), "max_bytes", shaping.MaxLovelaceBytes)
	return summarize(raw, len(encoded)), nil
}

// summarize reduces an oversized config to its title and per-view card counts.
func summarize(raw any, total int) *hub.LovelaceResult {
	cfg, _ := raw.(map[string]any)
	views, _ := cfg["views"].([]any)

	summaries := make([]hub.ViewSummary, 0, len(views))
	for _, v := range views {
		view, _ := v.(map[string]any)
		cards, _ := view["cards"].([]any)
		summaries = append(summaries, hub.ViewSummary{
			Title:      view["title"],
			Path:       view["path"],
			Icon:       view["icon"],
			CardsCount: len(cards),
		})
	}

	count := len(views)
	return &hub.LovelaceResult{
		Truncated:  true,
		Message:    "Full config too large, returning summary",
		TotalBytes: total,
		MaxBytes:   shaping.MaxLovelaceBytes,
		Title:      cfg["title"],
		ViewsCount: &count,
		Views:      summaries,
	}
}

// ListDashboards lists UI-managed dashboards. A hub that answers the command
// with a failure gets an explanatory payload instead of an error; connection
// failures and timeouts are still errors.
func (c *Client) ListDashboards(ctx context.Context) (*hub.DashboardList, error) {
	raw, err := c.run(ctx, "lovelace/dashboards", nil)
	if err != nil {
		var wsErr *hub.WSError
		if errors.As(err, &wsErr) && wsErr.Err == nil {
			c.logger.Warn("failed to list dashboards", "error", wsErr.Message)
			return &hub.DashboardList{Error: wsErr.Message, Message: dashboardsUnavailableMessage}, nil
		}
		return nil, err
	}

	count := 0
	if list, ok := raw.([]any); ok {
		count = len(list)
	}
	return &hub.DashboardList{Dashboards: raw, Count: &count}, nil
}

var _ outbound.HubDashboards = (*Client)(nil)
