package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hassgate"

// Metrics holds all Prometheus metrics for hass-gate. It implements the
// proxy's StatsRecorder and the hub clients' HubMetrics.
type Metrics struct {
	ToolCallsTotal     *prometheus.CounterVec
	ToolCallDuration   *prometheus.HistogramVec
	HubRequestsTotal   *prometheus.CounterVec
	HubRetriesTotal    prometheus.Counter
	PolicyDenialsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ToolCallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tools/call requests by outcome",
			},
			[]string{"tool", "outcome"}, // outcome=ok/error/denied
		),
		ToolCallDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Tool call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		HubRequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hub_requests_total",
				Help:      "Requests sent to Home Assistant by transport and status",
			},
			[]string{"transport", "status"}, // transport=rest/ws/ssh
		),
		HubRetriesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hub_retries_total",
				Help:      "REST requests retried after a transient failure",
			},
		),
		PolicyDenialsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_denials_total",
				Help:      "Tool calls refused by the gate, by reason",
			},
			[]string{"reason"},
		),
	}
}

// RegisterAuditDrops exposes the audit drop counter read from drops.
func RegisterAuditDrops(reg prometheus.Registerer, drops func() int64) {
	promauto.With(reg).NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_drops_total",
			Help:      "Total audit records dropped due to backpressure",
		},
		func() float64 { return float64(drops()) },
	)
}

// RecordToolCall counts a finished tool call.
func (m *Metrics) RecordToolCall(tool, outcome string, latency time.Duration) {
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(latency.Seconds())
}

// RecordDenial counts a gate refusal.
func (m *Metrics) RecordDenial(reason string) {
	m.PolicyDenialsTotal.WithLabelValues(reason).Inc()
}

// ObserveHubRequest counts one hub request.
func (m *Metrics) ObserveHubRequest(transport, status string) {
	m.HubRequestsTotal.WithLabelValues(transport, status).Inc()
}

// ObserveHubRetry counts one REST retry.
func (m *Metrics) ObserveHubRetry() {
	m.HubRetriesTotal.Inc()
}
