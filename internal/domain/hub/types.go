package hub

// PingResult is returned by the status probe.
type PingResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version any    `json:"version"`
}

// EntitySummary is the projection of a hub state used in listings.
type EntitySummary struct {
	EntityID     string `json:"entity_id"`
	State        any    `json:"state"`
	FriendlyName any    `json:"friendly_name"`
	DeviceClass  any    `json:"device_class"`
	LastChanged  any    `json:"last_changed,omitempty"`
}

// EntityList is returned by ListEntities.
type EntityList struct {
	Total        int             `json:"total"`
	Returned     int             `json:"returned"`
	DomainFilter *string         `json:"domain_filter"`
	Entities     []EntitySummary `json:"entities"`
	Truncated    bool            `json:"truncated,omitempty"`
	Message      string          `json:"message,omitempty"`
}

// SearchResult is the payload of SearchEntities before enveloping.
type SearchResult struct {
	Query        string          `json:"query"`
	TotalMatches int             `json:"total_matches"`
	Returned     int             `json:"returned"`
	Entities     []EntitySummary `json:"entities"`
}

// HistoryResult is the payload of GetHistory before enveloping.
type HistoryResult struct {
	EntityID        *string `json:"entity_id"`
	Hours           int     `json:"hours"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	TotalEntries    int     `json:"total_entries"`
	ReturnedEntries int     `json:"returned_entries"`
	History         [][]any `json:"history"`
}

// LogbookResult is the payload of GetLogbook before enveloping.
type LogbookResult struct {
	EntityID        *string `json:"entity_id"`
	Hours           int     `json:"hours"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	TotalEntries    int     `json:"total_entries"`
	ReturnedEntries int     `json:"returned_entries"`
	Entries         []any   `json:"entries"`
}

// ErrorLog is returned by GetErrorLog. When the endpoint is absent, Error is
// false, Message explains why and Log is nil.
type ErrorLog struct {
	Truncated  *bool   `json:"truncated,omitempty"`
	Error      *bool   `json:"error,omitempty"`
	Message    string  `json:"message,omitempty"`
	TotalBytes *int    `json:"total_bytes,omitempty"`
	MaxBytes   int     `json:"max_bytes,omitempty"`
	Log        *string `json:"log"`
}

// ServiceCallResult is returned by CallService.
type ServiceCallResult struct {
	Success bool   `json:"success"`
	Domain  string `json:"domain"`
	Service string `json:"service"`
	Result  any    `json:"result"`
}

// ViewSummary describes one dashboard view when the full config is too large.
type ViewSummary struct {
	Title      any `json:"title"`
	Path       any `json:"path"`
	Icon       any `json:"icon"`
	CardsCount int `json:"cards_count"`
}

// LovelaceResult is returned by GetLovelaceConfig. Exactly one of Config,
// a not-found Message, or the views summary is populated.
type LovelaceResult struct {
	Truncated  bool          `json:"truncated"`
	Config     any           `json:"config"`
	Message    string        `json:"message,omitempty"`
	TotalBytes int           `json:"total_bytes,omitempty"`
	MaxBytes   int           `json:"max_bytes,omitempty"`
	Title      any           `json:"title,omitempty"`
	ViewsCount *int          `json:"views_count,omitempty"`
	Views      []ViewSummary `json:"views,omitempty"`
}

// DashboardList is returned by ListDashboards. On hubs without the command,
// Error and Message are set instead.
type DashboardList struct {
	Dashboards any    `json:"dashboards,omitempty"`
	Count      *int   `json:"count,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
}

// LogKind selects which log GetLogs fetches.
type LogKind string

const (
	LogKindCore       LogKind = "core"
	LogKindSupervisor LogKind = "supervisor"
)

// LogResult is the formatted output of GetLogs.
type LogResult struct {
	Truncated      bool   `json:"truncated"`
	Source         string `json:"source"`
	RequestedLines int    `json:"requested_lines"`
	ActualLines    *int   `json:"actual_lines,omitempty"`
	TotalBytes     int    `json:"total_bytes"`
	ReturnedBytes  *int   `json:"returned_bytes,omitempty"`
	MaxBytes       int    `json:"max_bytes,omitempty"`
	Log            string `json:"log"`
}

// SSHTestResult is returned by TestConnection. It never carries a Go error.
type SSHTestResult struct {
	Success bool   `json:"success"`
	Host    string `json:"host,omitempty"`
	User    string `json:"user,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
