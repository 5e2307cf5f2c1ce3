package proxy

import (
	"encoding/json"
	"math"
)

// stringArg returns args[key] when it is a string, "" otherwise.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// boolArg returns args[key] when it is a bool, false otherwise.
func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// objectArg returns args[key] when it is a JSON object, nil otherwise.
func objectArg(args map[string]any, key string) map[string]any {
	m, _ := args[key].(map[string]any)
	return m
}

// intArg reads an integer argument, accepting any JSON number. Absent or
// non-numeric values yield def; the result is clamped to [lo, hi].
func intArg(args map[string]any, key string, def, lo, hi int) int {
	n := def
	switch v := args[key].(type) {
	case float64:
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			n = clampFloat(v, lo, hi)
		}
	case int:
		n = v
	case int64:
		n = clampFloat(float64(v), lo, hi)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			n = clampFloat(f, lo, hi)
		}
	}
	return max(lo, min(n, hi))
}

// clampFloat truncates f toward zero after clamping, so huge values cannot
// overflow the int conversion.
func clampFloat(f float64, lo, hi int) int {
	if f < float64(lo) {
		return lo
	}
	if f > float64(hi) {
		return hi
	}
	return int(f)
}
