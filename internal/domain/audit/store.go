package audit

import "context"

// AuditStore persists audit records.
// Interface owned by domain per hexagonal architecture.
type AuditStore interface {
	// Append stores audit records. Called from the audit worker, never
	// from the request path.
	Append(ctx context.Context, records ...AuditRecord) error

	// Flush forces pending records to storage. Called during shutdown.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close() error
}
