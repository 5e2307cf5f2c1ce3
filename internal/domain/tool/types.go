// Package tool contains the static catalog of tools the gateway exposes.
package tool

import (
	"encoding/json"
)

// RiskLevel represents how much a tool can change or reveal.
type RiskLevel string

const (
	// RiskLevelLow indicates read-only state queries.
	RiskLevelLow RiskLevel = "LOW"

	// RiskLevelMedium indicates reads that may expose sensitive host detail (logs).
	RiskLevelMedium RiskLevel = "MEDIUM"

	// RiskLevelHigh indicates operations that change device state.
	RiskLevelHigh RiskLevel = "HIGH"
)

// IsValid returns true if the risk level is a known valid level.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh:
		return true
	default:
		return false
	}
}

// Tool is a tools/list entry. Fields follow MCP protocol revision 2025-06-18.
type Tool struct {
	// Name is the unique identifier for this tool (required).
	Name string `json:"name"`

	// Description is an optional human-readable description.
	Description *string `json:"description,omitempty"`

	// InputSchema is the JSON Schema for the tool's parameters (required).
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Gate is the configuration condition a tool is visible under.
type Gate int

const (
	// GateNone tools are always available.
	GateNone Gate = iota
	// GateReadWrite tools require HA_MCP_MODE=readwrite.
	GateReadWrite
	// GateSSH tools require HA_SSH_ENABLE=true.
	GateSSH
)

func (g Gate) String() string {
	switch g {
	case GateReadWrite:
		return "readwrite"
	case GateSSH:
		return "ssh"
	default:
		return "none"
	}
}

// Definition is a catalog entry: the tool as advertised plus how it is gated.
type Definition struct {
	Tool

	// Gate decides visibility and the capability check at call time.
	Gate Gate

	// Required lists argument names that must be present and non-empty.
	Required []string

	// Risk is the audit classification.
	Risk RiskLevel
}

// DisabledMessage explains why a gated tool cannot be called.
func (d Definition) DisabledMessage() string {
	switch d.Gate {
	case GateReadWrite:
		return "Service calls are disabled in read-only mode. Set HA_MCP_MODE=readwrite to enable."
	case GateSSH:
		return "SSH is not enabled. Set HA_SSH_ENABLE=true and configure SSH credentials to use this feature."
	}
	return ""
}

// MissingArgs returns the required arguments absent from args. Empty
// strings and nulls count as absent.
func (d Definition) MissingArgs(args map[string]any) []string {
	var missing []string
	for _, name := range d.Required {
		v, ok := args[name]
		if !ok || v == nil {
			missing = append(missing, name)
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// RequiredMessage formats the validation error for a tool with missing
// arguments, naming every required argument.
func (d Definition) RequiredMessage() string {
	switch len(d.Required) {
	case 0:
		return ""
	case 1:
		return d.Required[0] + " is required"
	}
	out := d.Required[0]
	for _, r := range d.Required[1:] {
		out += " and " + r
	}
	return out + " are required"
}
