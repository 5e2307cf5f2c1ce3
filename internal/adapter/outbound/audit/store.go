package audit

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hass-gate/hassgate/internal/domain/audit"
)

// Output values accepted by NewStore.
const (
	OutputNone   = "none"
	OutputStderr = "stderr"
	filePrefix   = "file://"
)

// NewStore builds the store for an audit output setting. It returns nil for
// "none" or an empty output: auditing is then disabled. stderr is the
// stream used for "stderr".
func NewStore(output string, stderr io.Writer, logger *slog.Logger) (audit.AuditStore, error) {
	switch {
	case output == "" || output == OutputNone:
		return nil, nil
	case output == OutputStderr:
		return NewWriterStore(stderr), nil
	case strings.HasPrefix(output, filePrefix):
		dir := strings.TrimPrefix(output, filePrefix)
		store, err := NewFileStore(FileConfig{Dir: dir}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported audit output %q", output)
}
