package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Sanitization limits.
const (
	// MaxStringLength caps any argument string (1MB).
	MaxStringLength = 1 << 20

	// MaxToolNameLength caps a tool name.
	MaxToolNameLength = 128

	// MaxArgumentDepth caps nesting of objects and arrays in arguments.
	MaxArgumentDepth = 32
)

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// Sanitizer checks tool names and cleans argument values before they reach
// the gate, the audit log or the hub.
type Sanitizer struct{}

// NewSanitizer creates a Sanitizer.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// ValidateToolName rejects empty, oversized and non-identifier names.
// Unknown but well-formed names pass; the gate reports those.
func (s *Sanitizer) ValidateToolName(name string) error {
	switch {
	case name == "":
		return invalidParams("tool name is required")
	case len(name) > MaxToolNameLength:
		return invalidParams("tool name too long")
	case strings.Contains(name, "..") || strings.Contains(name, "/"):
		return invalidParams("invalid characters in tool name")
	case !toolNamePattern.MatchString(name):
		return invalidParams("invalid tool name format")
	}
	return nil
}

// SanitizeValue returns a copy of v with NUL bytes removed from every string
// and oversized strings cut at MaxStringLength on a rune boundary. Numbers,
// booleans and null pass through.
func (s *Sanitizer) SanitizeValue(v any) (any, error) {
	return s.sanitize(v, 0)
}

func (s *Sanitizer) sanitize(v any, depth int) (any, error) {
	if depth > MaxArgumentDepth {
		return nil, invalidParams("tool arguments nested too deeply")
	}
	switch val := v.(type) {
	case string:
		return sanitizeString(val), nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			clean, err := s.sanitize(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[sanitizeString(k)] = clean
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			clean, err := s.sanitize(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = clean
		}
		return out, nil
	}
	return v, nil
}

func sanitizeString(str string) string {
	if strings.IndexByte(str, 0) >= 0 {
		str = strings.ReplaceAll(str, "\x00", "")
	}
	if len(str) <= MaxStringLength {
		return str
	}
	cut := MaxStringLength
	for cut > 0 && !utf8.RuneStart(str[cut]) {
		cut--
	}
	return str[:cut]
}

// SanitizeToolCall validates params.name and sanitizes params.arguments.
// A null arguments member is dropped; any other non-object is rejected.
// Other members such as _meta are copied unchanged.
func (s *Sanitizer) SanitizeToolCall(params map[string]any) (map[string]any, error) {
	name, _ := params["name"].(string)
	if err := s.ValidateToolName(name); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(params))
	for k, v := range params {
		if k != "arguments" {
			out[k] = v
			continue
		}
		if v == nil {
			continue
		}
		if _, ok := v.(map[string]any); !ok {
			return nil, invalidParams("tool arguments must be an object")
		}
		clean, err := s.SanitizeValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = clean
	}
	return out, nil
}
