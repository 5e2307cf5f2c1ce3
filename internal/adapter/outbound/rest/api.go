package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hass-gate/hassgate/internal/domain/hub"
	"github.com/hass-gate/hassgate/internal/domain/shaping"
)

const (
	// MaxEntities caps entity listings and search results.
	MaxEntities = 500
	// MaxHistoryEntries caps points per history series and logbook entries.
	MaxHistoryEntries = 200
)

const errorLogMissingMessage = "Error log endpoint not available. This may be due to: " +
	"1) Home Assistant version differences, " +
	"2) Logging not configured, or " +
	"3) Insufficient API token permissions. " +
	"Try checking logs via SSH with ha_get_full_logs if SSH is enabled."

// now is replaced in tests.
var now = time.Now

// hubState is the subset of a hub state object the listings need.
type hubState struct {
	EntityID    string         `json:"entity_id"`
	State       any            `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged any            `json:"last_changed"`
}

func (s hubState) summary() hub.EntitySummary {
	id := s.EntityID
	if id == "" {
		id = "unknown"
	}
	return hub.EntitySummary{
		EntityID:     id,
		State:        s.State,
		FriendlyName: s.Attributes["friendly_name"],
		DeviceClass:  s.Attributes["device_class"],
	}
}

// Ping checks connectivity and reports the hub version.
func (c *Client) Ping(ctx context.Context) (*hub.PingResult, error) {
	raw, err := c.request(ctx, "GET", "/api/", nil)
	if err != nil {
		return nil, err
	}
	obj, _ := raw.(map[string]any)

	message := "API running"
	if m, ok := obj["message"].(string); ok {
		message = m
	}
	return &hub.PingResult{Status: "ok", Message: message, Version: obj["version"]}, nil
}

// states fetches the full state collection.
func (c *Client) states(ctx context.Context) ([]hubState, error) {
	raw, err := c.request(ctx, "GET", "/api/states", nil)
	if err != nil {
		return nil, err
	}
	if _, ok := raw.([]any); !ok {
		return nil, &hub.APIError{StatusCode: 200, Body: "Unexpected response format from /api/states"}
	}

	// Round-trip through JSON to get typed states; the payload is already bounded.
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encoding states: %w", err)
	}
	var states []hubState
	if err := json.Unmarshal(b, &states); err != nil {
		return nil, &hub.APIError{StatusCode: 200, Body: "Unexpected response format from /api/states"}
	}
	return states, nil
}

// ListEntities lists entity summaries, optionally restricted to one domain.
func (c *Client) ListEntities(ctx context.Context, domain string) (*hub.EntityList, error) {
	states, err := c.states(ctx)
	if err != nil {
		return nil, err
	}

	var filter *string
	if domain != "" {
		filter = &domain
		prefix := domain + "."
		filtered := states[:0]
		for _, s := range states {
			if strings.HasPrefix(s.EntityID, prefix) {
				filtered = append(filtered, s)
			}
		}
		states = filtered
	}

	limit := min(len(states), MaxEntities)
	entities := make([]hub.EntitySummary, 0, limit)
	for _, s := range states[:limit] {
		entities = append(entities, s.summary())
	}

	result := &hub.EntityList{
		Total:        len(states),
		Returned:     len(entities),
		DomainFilter: filter,
		Entities:     entities,
	}
	if len(states) > MaxEntities {
		result.Truncated = true
		result.Message = fmt.Sprintf("Limited to %d entities. Use domain filter for more specific results.", MaxEntities)
	}
	return result, nil
}

// GetEntity returns the full state object of one entity.
func (c *Client) GetEntity(ctx context.Context, entityID string) (map[string]any, error) {
	raw, err := c.request(ctx, "GET", "/api/states/"+url.PathEscape(entityID), nil)
	if err != nil {
		return nil, err
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &hub.APIError{StatusCode: 200, Body: "Unexpected response format for entity " + entityID}
	}
	return obj, nil
}

// SearchEntities matches query case-insensitively against entity id,
// friendly name, then the serialized attribute map.
func (c *Client) SearchEntities(ctx context.Context, query string) (shaping.Envelope, error) {
	states, err := c.states(ctx)
	if err != nil {
		return shaping.Envelope{}, err
	}

	q := strings.ToLower(query)
	var matches []hubState
	for _, s := range states {
		if strings.Contains(strings.ToLower(s.EntityID), q) {
			matches = append(matches, s)
			continue
		}
		if name, ok := s.Attributes["friendly_name"].(string); ok && strings.Contains(strings.ToLower(name), q) {
			matches = append(matches, s)
			continue
		}
		if attrs, err := attributesText(s.Attributes); err == nil && strings.Contains(strings.ToLower(attrs), q) {
			matches = append(matches, s)
		}
	}

	limit := min(len(matches), MaxEntities)
	entities := make([]hub.EntitySummary, 0, limit)
	for _, s := range matches[:limit] {
		e := s.summary()
		e.LastChanged = s.LastChanged
		entities = append(entities, e)
	}

	return shaping.Truncate(hub.SearchResult{
		Query:        query,
		TotalMatches: len(matches),
		Returned:     len(entities),
		Entities:     entities,
	}, shaping.MaxResponseBytes), nil
}

// window returns the [now-hours, now] UTC window at second precision.
func window(hours int) (start, end string) {
	e := now().UTC().Truncate(time.Second)
	s := e.Add(-time.Duration(hours) * time.Hour)
	return s.Format(time.RFC3339), e.Format(time.RFC3339)
}

// GetHistory returns state history for one entity, or significant changes
// for all entities when entityID is empty.
func (c *Client) GetHistory(ctx context.Context, entityID string, hours int) (shaping.Envelope, error) {
	start, end := window(hours)

	path := "/api/history/period/" + url.QueryEscape(start) + "?end_time=" + url.QueryEscape(end)
	if entityID != "" {
		path += "&filter_entity_id=" + url.QueryEscape(entityID)
	} else {
		path += "&significant_changes_only=1"
	}

	raw, err := c.request(ctx, "GET", path, nil)
	if err != nil {
		return shaping.Envelope{}, err
	}
	series, ok := raw.([]any)
	if !ok {
		return shaping.Envelope{}, &hub.APIError{StatusCode: 200, Body: "Unexpected response format from history API"}
	}

	result := hub.HistoryResult{
		EntityID:  optional(entityID),
		Hours:     hours,
		StartTime: start,
		EndTime:   end,
		History:   [][]any{},
	}
	for _, s := range series {
		points, ok := s.([]any)
		if !ok || len(points) == 0 {
			continue
		}
		result.TotalEntries += len(points)
		limited := points[:min(len(points), MaxHistoryEntries)]
		result.ReturnedEntries += len(limited)
		result.History = append(result.History, limited)
	}

	return shaping.Truncate(result, shaping.MaxResponseBytes), nil
}

// GetLogbook returns logbook entries in the window, capped at MaxHistoryEntries.
func (c *Client) GetLogbook(ctx context.Context, entityID string, hours int) (shaping.Envelope, error) {
	start, end := window(hours)

	path := "/api/logbook/" + url.QueryEscape(start) + "?end_time=" + url.QueryEscape(end)
	if entityID != "" {
		path += "&entity=" + url.QueryEscape(entityID)
	}

	raw, err := c.request(ctx, "GET", path, nil)
	if err != nil {
		return shaping.Envelope{}, err
	}
	entries, ok := raw.([]any)
	if !ok {
		return shaping.Envelope{}, &hub.APIError{StatusCode: 200, Body: "Unexpected response format from logbook API"}
	}

	limited := entries[:min(len(entries), MaxHistoryEntries)]
	return shaping.Truncate(hub.LogbookResult{
		EntityID:        optional(entityID),
		Hours:           hours,
		StartTime:       start,
		EndTime:         end,
		TotalEntries:    len(entries),
		ReturnedEntries: len(limited),
		Entries:         limited,
	}, shaping.MaxResponseBytes), nil
}

// GetErrorLog returns the hub's error log text, capped at MaxResponseBytes.
// A missing endpoint yields a guidance payload instead of an error.
func (c *Client) GetErrorLog(ctx context.Context) (*hub.ErrorLog, error) {
	raw, err := c.request(ctx, "GET", "/api/error_log", nil)
	if err != nil {
		var notFound *hub.NotFoundError
		if errors.As(err, &notFound) {
			f := false
			return &hub.ErrorLog{Error: &f, Message: errorLogMissingMessage}, nil
		}
		return nil, err
	}

	text, ok := raw.(string)
	if !ok {
		b, _ := json.Marshal(raw)
		text = string(b)
	}

	r := shaping.TruncateText(text, shaping.MaxResponseBytes, false)
	out := &hub.ErrorLog{
		Truncated:  &r.Truncated,
		TotalBytes: &r.TotalBytes,
		Log:        &r.Text,
	}
	if r.Truncated {
		out.MaxBytes = shaping.MaxResponseBytes
	}
	return out, nil
}

// attributesText serializes attributes for substring search. HTML escaping
// is off so that queries containing &, < or > match the raw values.
func attributesText(attrs map[string]any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(attrs); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// CallService posts data and target, merged into one flat body, to
// /api/services/{domain}/{service}.
func (c *Client) CallService(ctx context.Context, domain, service string, data, target map[string]any) (*hub.ServiceCallResult, error) {
	body := make(map[string]any, len(data)+len(target))
	for k, v := range data {
		body[k] = v
	}
	for k, v := range target {
		body[k] = v
	}

	c.logger.Info("calling hub service", "domain", domain, "service", service, "body_keys", len(body))

	path := "/api/services/" + url.PathEscape(domain) + "/" + url.PathEscape(service)
	raw, err := c.request(ctx, "POST", path, body)
	if err != nil {
		return nil, err
	}

	var result any = "Service called successfully"
	if !isEmpty(raw) {
		result = raw
	}
	return &hub.ServiceCallResult{Success: true, Domain: domain, Service: service, Result: result}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
