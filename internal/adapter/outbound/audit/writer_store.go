package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hass-gate/hassgate/internal/domain/audit"
)

// WriterStore writes JSON lines to a stream. Used for stderr, which keeps
// audit output off the stdout protocol channel.
type WriterStore struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewWriterStore wraps w.
func NewWriterStore(w io.Writer) *WriterStore {
	return &WriterStore{w: bufio.NewWriter(w)}
}

// Append encodes each record on its own line and flushes the batch.
func (s *WriterStore) Append(_ context.Context, records ...audit.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode audit record: %w", err)
		}
	}
	return s.w.Flush()
}

// Flush writes any buffered bytes.
func (s *WriterStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// Close flushes; the underlying stream is owned by the caller.
func (s *WriterStore) Close() error {
	return s.Flush(context.Background())
}

var _ audit.AuditStore = (*WriterStore)(nil)
