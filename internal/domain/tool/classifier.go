package tool

import (
	"strings"
)

// Classify determines the risk level of a catalog entry.
//
// Priority order (highest to lowest):
//   - HIGH: tools that mutate hub state (read-write gated)
//   - MEDIUM: tools that reach the host shell or return raw logs
//   - LOW: everything else
func Classify(d Definition) RiskLevel {
	if d.Gate == GateReadWrite {
		return RiskLevelHigh
	}
	name := strings.ToLower(d.Name)
	if d.Gate == GateSSH || strings.HasSuffix(name, "_log") || strings.HasSuffix(name, "_logs") {
		return RiskLevelMedium
	}
	return RiskLevelLow
}
