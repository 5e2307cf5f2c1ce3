// Package shaping bounds the size of payloads returned to the agent.
//
// Every transport client runs oversized results through Truncate (for
// structured data) or TruncateText (for raw log text) so callers see a
// uniform envelope: a truncated flag plus the counts needed to explain
// what was dropped.
package shaping

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Size limits shared by the transport clients.
const (
	// MaxResponseBytes bounds REST payloads.
	MaxResponseBytes = 100_000
	// MaxLovelaceBytes bounds dashboard configurations before they degrade to a summary.
	MaxLovelaceBytes = 500_000
	// MaxLogBytes bounds log text fetched over SSH.
	MaxLogBytes = 200_000
)

// Envelope is the bounded response wrapper.
// Data is nil only when the payload could not be shrunk.
type Envelope struct {
	Truncated     bool   `json:"truncated"`
	TotalItems    *int   `json:"total_items,omitempty"`
	ReturnedItems *int   `json:"returned_items,omitempty"`
	MaxBytes      int    `json:"max_bytes,omitempty"`
	Message       string `json:"message,omitempty"`
	Data          any    `json:"data"`
}

// Truncate serializes data and, if it exceeds maxBytes, shrinks it.
// Slices are cut to the largest prefix found by repeatedly halving the
// length; anything else is replaced by a marker with nil Data.
func Truncate(data any, maxBytes int) Envelope {
	if size, err := encodedSize(data); err == nil && size <= maxBytes {
		return Envelope{Truncated: false, Data: data}
	}

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Slice {
		total := v.Len()
		items := total
		for items > 0 {
			items /= 2
			prefix := v.Slice(0, items).Interface()
			if size, err := encodedSize(prefix); err == nil && size <= maxBytes {
				return Envelope{
					Truncated:     true,
					TotalItems:    intPtr(total),
					ReturnedItems: intPtr(items),
					MaxBytes:      maxBytes,
					Data:          prefix,
				}
			}
		}
	}

	return Envelope{
		Truncated: true,
		MaxBytes:  maxBytes,
		Message:   fmt.Sprintf("Response exceeds %d bytes and could not be truncated safely", maxBytes),
		Data:      nil,
	}
}

// TextResult describes a bounded block of text.
type TextResult struct {
	Text          string
	Truncated     bool
	TotalBytes    int
	ReturnedBytes int
	Lines         int
}

// TruncateText cuts text to at most maxBytes. When lineAware is set and the
// last newline inside the cut lies past the midpoint, the cut backs off to it
// so no line is split. Lines counts newline-terminated lines in the full text,
// plus a trailing unterminated one.
func TruncateText(text string, maxBytes int, lineAware bool) TextResult {
	r := TextResult{
		Text:       text,
		TotalBytes: len(text),
		Lines:      CountLines(text),
	}
	if len(text) <= maxBytes {
		r.ReturnedBytes = len(text)
		return r
	}

	cut := text[:maxBytes]
	if lineAware {
		if i := strings.LastIndexByte(cut, '\n'); i > maxBytes/2 {
			cut = cut[:i]
		}
	}
	r.Text = cut
	r.Truncated = true
	r.ReturnedBytes = len(cut)
	return r
}

// CountLines counts newline-delimited lines.
func CountLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

func encodedSize(v any) (int, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

func intPtr(i int) *int {
	return &i
}
