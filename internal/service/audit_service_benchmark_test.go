package service

import (
	"context"
	"io"
	"testing"
	"time"

	auditstore "github.com/hass-gate/hassgate/internal/adapter/outbound/audit"
	"github.com/hass-gate/hassgate/internal/domain/audit"
)

// BenchmarkAuditRecord measures the request-path cost of Record with the
// JSON-lines store behind the worker.
func BenchmarkAuditRecord(b *testing.B) {
	record := audit.AuditRecord{
		ToolName:      "ha_call_service",
		ToolArguments: map[string]any{"domain": "light", "service": "turn_on", "target": map[string]any{"entity_id": "light.kitchen"}},
		Risk:          "HIGH",
		Decision:      audit.DecisionAllow,
		Outcome:       audit.OutcomeOK,
	}

	cases := []struct {
		name string
		opts []AuditOption
	}{
		{"buffered", []AuditOption{WithChannelSize(10000), WithFlushInterval(10 * time.Millisecond)}},
		// A one-slot queue with no send wait measures the drop path.
		{"saturated", []AuditOption{WithChannelSize(1), WithSendTimeout(0)}},
	}
	for _, tc := range cases {
		b.Run(tc.name, func(b *testing.B) {
			svc := NewAuditService(auditstore.NewWriterStore(io.Discard), discardLogger(), tc.opts...)
			ctx, cancel := context.WithCancel(context.Background())
			svc.Start(ctx)

			b.ReportAllocs()
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					svc.Record(record)
				}
			})
			b.StopTimer()

			cancel()
			svc.Stop()
		})
	}
}
