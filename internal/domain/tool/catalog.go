package tool

import (
	"encoding/json"
)

// Tool names.
const (
	NamePing           = "ha_ping"
	NameListEntities   = "ha_list_entities"
	NameGetEntity      = "ha_get_entity"
	NameSearchEntities = "ha_search_entities"
	NameGetHistory     = "ha_get_history"
	NameGetLogbook     = "ha_get_logbook"
	NameGetErrorLog    = "ha_get_error_log"
	NameGetLovelace    = "ha_get_lovelace_config"
	NameListDashboards = "ha_list_dashboards"
	NameCallService    = "ha_call_service"
	NameGetFullLogs    = "ha_get_full_logs"
	NameSSHTest        = "ha_ssh_test"
)

// Argument bounds.
const (
	DefaultHours = 24
	MinHours     = 1
	MaxHours     = 168

	DefaultLines = 500
	MinLines     = 10
	MaxLines     = 2000
)

const emptySchema = `{"type": "object", "properties": {}, "required": []}`

const stringOrList = `{"oneOf": [{"type": "string"}, {"type": "array", "items": {"type": "string"}}]}`

// definitions is the catalog in advertisement order.
var definitions = []Definition{
	{
		Tool: Tool{
			Name:        NamePing,
			Description: strPtr("Check Home Assistant connectivity and get version info"),
			InputSchema: json.RawMessage(emptySchema),
		},
	},
	{
		Tool: Tool{
			Name:        NameListEntities,
			Description: strPtr("List all entities in Home Assistant, optionally filtered by domain (e.g., 'light', 'sensor', 'switch')"),
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"domain": {"type": "string", "description": "Optional domain to filter by (e.g., 'light', 'sensor', 'climate')"}
				},
				"required": []
			}`),
		},
	},
	{
		Tool: Tool{
			Name:        NameGetEntity,
			Description: strPtr("Get the current state and attributes of a specific entity"),
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"entity_id": {"type": "string", "description": "The entity ID (e.g., 'light.living_room', 'sensor.temperature')"}
				},
				"required": ["entity_id"]
			}`),
		},
		Required: []string{"entity_id"},
	},
	{
		Tool: Tool{
			Name:        NameSearchEntities,
			Description: strPtr("Search for entities by name, ID, or attributes"),
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Search query to match against entity IDs, friendly names, and attributes"}
				},
				"required": ["query"]
			}`),
		},
		Required: []string{"query"},
	},
	{
		Tool: Tool{
			Name:        NameGetHistory,
			Description: strPtr("Get state history for an entity or all entities over a time period"),
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"entity_id": {"type": "string", "description": "Optional entity ID to get history for. If omitted, returns history for all entities (limited)."},
					"hours": {"type": "integer", "description": "Number of hours of history to retrieve (default: 24, max: 168)", "default": 24, "minimum": 1, "maximum": 168}
				},
				"required": []
			}`),
		},
	},
	{
		Tool: Tool{
			Name:        NameGetLogbook,
			Description: strPtr("Get logbook events showing what happened in Home Assistant"),
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"entity_id": {"type": "string", "description": "Optional entity ID to filter events for"},
					"hours": {"type": "integer", "description": "Number of hours of events to retrieve (default: 24, max: 168)", "default": 24, "minimum": 1, "maximum": 168}
				},
				"required": []
			}`),
		},
	},
	{
		Tool: Tool{
			Name:        NameGetErrorLog,
			Description: strPtr("Get the Home Assistant error log"),
			InputSchema: json.RawMessage(emptySchema),
		},
	},
	{
		Tool: Tool{
			Name:        NameGetLovelace,
			Description: strPtr("Get the Lovelace dashboard configuration via WebSocket API"),
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"force": {"type": "boolean", "description": "Force reload configuration from storage (default: false)", "default": false},
					"url_path": {"type": "string", "description": "Optional dashboard URL path; omit for the default dashboard"}
				},
				"required": []
			}`),
		},
	},
	{
		Tool: Tool{
			Name:        NameListDashboards,
			Description: strPtr("List UI-managed Lovelace dashboards via WebSocket API"),
			InputSchema: json.RawMessage(emptySchema),
		},
	},
	{
		Tool: Tool{
			Name: NameCallService,
			Description: strPtr("Call a Home Assistant service (e.g., turn on lights, set temperature). " +
				"Only allowed services can be called based on HA_ALLOWED_SERVICES configuration."),
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"domain": {"type": "string", "description": "Service domain (e.g., 'light', 'climate', 'switch')"},
					"service": {"type": "string", "description": "Service name (e.g., 'turn_on', 'turn_off', 'set_temperature')"},
					"data": {"type": "object", "description": "Optional service data (e.g., {'brightness': 255})", "default": {}},
					"target": {
						"type": "object",
						"description": "Optional target specifying entity_id, device_id, or area_id",
						"properties": {
							"entity_id": ` + stringOrList + `,
							"device_id": ` + stringOrList + `,
							"area_id": ` + stringOrList + `
						}
					}
				},
				"required": ["domain", "service"]
			}`),
		},
		Gate:     GateReadWrite,
		Required: []string{"domain", "service"},
	},
	{
		Tool: Tool{
			Name:        NameGetFullLogs,
			Description: strPtr("Get full Home Assistant logs via SSH. Requires SSH access to the HA host."),
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"kind": {"type": "string", "description": "Log type: 'core' for HA core logs, 'supervisor' for supervisor logs", "enum": ["core", "supervisor"], "default": "core"},
					"lines": {"type": "integer", "description": "Number of log lines to retrieve (default: 500, max: 2000)", "default": 500, "minimum": 10, "maximum": 2000}
				},
				"required": []
			}`),
		},
		Gate: GateSSH,
	},
	{
		Tool: Tool{
			Name:        NameSSHTest,
			Description: strPtr("Test the SSH connection to the Home Assistant host"),
			InputSchema: json.RawMessage(emptySchema),
		},
		Gate: GateSSH,
	},
}

// Catalog is the immutable set of tool definitions.
type Catalog struct {
	defs   []Definition
	byName map[string]int
}

// NewCatalog returns the gateway's tool catalog with risk levels assigned.
func NewCatalog() *Catalog {
	c := &Catalog{
		defs:   make([]Definition, len(definitions)),
		byName: make(map[string]int, len(definitions)),
	}
	for i, d := range definitions {
		d.Risk = Classify(d)
		c.defs[i] = d
		c.byName[d.Name] = i
	}
	return c
}

// Lookup returns the definition for name regardless of gating.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Enabled reports whether d's gate is open under the given configuration.
func Enabled(d Definition, readWrite, sshEnabled bool) bool {
	switch d.Gate {
	case GateReadWrite:
		return readWrite
	case GateSSH:
		return sshEnabled
	}
	return true
}

// Available returns the tools visible under the given configuration, in
// catalog order.
func (c *Catalog) Available(readWrite, sshEnabled bool) []Tool {
	out := make([]Tool, 0, len(c.defs))
	for _, d := range c.defs {
		if Enabled(d, readWrite, sshEnabled) {
			out = append(out, d.Tool)
		}
	}
	return out
}

// Definitions returns every definition, in catalog order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

func strPtr(s string) *string { return &s }
