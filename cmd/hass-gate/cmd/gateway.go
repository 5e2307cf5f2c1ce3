package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hass-gate/hassgate/internal/adapter/inbound/http"
	auditstore "github.com/hass-gate/hassgate/internal/adapter/outbound/audit"
	"github.com/hass-gate/hassgate/internal/adapter/outbound/cel"
	"github.com/hass-gate/hassgate/internal/adapter/outbound/rest"
	"github.com/hass-gate/hassgate/internal/adapter/outbound/sshlogs"
	"github.com/hass-gate/hassgate/internal/adapter/outbound/ws"
	"github.com/hass-gate/hassgate/internal/config"
	"github.com/hass-gate/hassgate/internal/domain/audit"
	"github.com/hass-gate/hassgate/internal/domain/proxy"
	"github.com/hass-gate/hassgate/internal/domain/tool"
	"github.com/hass-gate/hassgate/internal/port/outbound"
	"github.com/hass-gate/hassgate/internal/service"
	"github.com/hass-gate/hassgate/internal/telemetry"
)

// gateway holds every component built from a Config, in dependency order.
type gateway struct {
	cfg      *config.Config
	logger   *slog.Logger
	catalog  *tool.Catalog
	features proxy.Features

	rest *rest.Client
	ws   *ws.Client
	logs *sshlogs.Client

	registry       *prometheus.Registry
	metrics        *http.Metrics
	store          audit.AuditStore      // nil when audit_output is none
	auditService   *service.AuditService // nil when audit_output is none
	metricsServer  *http.Server          // nil when metrics_addr is empty
	shutdownTracer telemetry.ShutdownFunc

	proxy *service.ProxyService
}

// newGateway wires hub clients, metrics, tracing and the interceptor chain
// Validation -> Audit -> Gate -> ToolRouter. stderr receives audit and span
// output when those are configured for it.
func newGateway(cfg *config.Config, logger *slog.Logger, stderr io.Writer) (*gateway, error) {
	g := &gateway{
		cfg:     cfg,
		logger:  logger,
		catalog: tool.NewCatalog(),
		features: proxy.Features{
			ReadWrite:  cfg.IsReadWrite(),
			SSHEnabled: cfg.SSHEnabled(),
		},
		registry: prometheus.NewRegistry(),
	}
	g.metrics = http.NewMetrics(g.registry)

	tracer, shutdownTracer, err := telemetry.NewTracer(cfg.TraceEnabled(), stderr)
	if err != nil {
		return nil, err
	}
	g.shutdownTracer = shutdownTracer

	g.rest = rest.NewClient(cfg, logger, rest.WithMetrics(g.metrics), rest.WithTracer(tracer))
	g.ws = ws.NewClient(cfg, logger, ws.WithMetrics(g.metrics), ws.WithTracer(tracer))
	g.logs = sshlogs.NewClient(cfg, logger, sshlogs.WithMetrics(g.metrics), sshlogs.WithTracer(tracer))

	var guard outbound.ServiceGuard
	if rules := cfg.ServiceRules(); len(rules) > 0 {
		celGuard, err := cel.NewGuard(rules, logger)
		if err != nil {
			g.abort()
			return nil, fmt.Errorf("failed to compile service rules: %w", err)
		}
		guard = celGuard
	}

	store, err := auditstore.NewStore(cfg.AuditOutput(), stderr, logger)
	if err != nil {
		g.abort()
		return nil, fmt.Errorf("failed to open audit output: %w", err)
	}
	// A nil *AuditService must not leak into the interceptor as a non-nil
	// interface value, so the recorder stays untyped until a store exists.
	var recorder proxy.AuditRecorder
	var queue http.AuditQueue
	if store != nil {
		g.store = store
		g.auditService = service.NewAuditService(store, logger)
		recorder = g.auditService
		queue = g.auditService
		http.RegisterAuditDrops(g.registry, g.auditService.DroppedRecords)
	}

	if addr := cfg.MetricsAddr(); addr != "" {
		health := http.NewHealthChecker(queue, string(cfg.Mode()), Version)
		g.metricsServer = http.NewServer(addr, g.registry, health, logger)
	}

	router := proxy.NewToolRouter(g.catalog, proxy.Hubs{
		REST:       g.rest,
		Dashboards: g.ws,
		Logs:       g.logs,
	}, g.features, logger, proxy.WithTracer(tracer), proxy.WithServerVersion(Version))
	gate := proxy.NewGateInterceptor(g.catalog, g.features, cfg.Allowlist(), guard, router, logger)
	audited := proxy.NewAuditInterceptor(recorder, g.metrics, gate, logger)
	validated := proxy.NewValidationInterceptor(audited, logger)

	g.proxy = service.NewProxyService(validated, logger)
	return g, nil
}

// start launches the background workers. The metrics listener runs until
// ctx is cancelled; a listen failure is logged and does not stop the gateway.
func (g *gateway) start(ctx context.Context) {
	if g.auditService != nil {
		g.auditService.Start(ctx)
	}
	if g.metricsServer != nil {
		go func() {
			if err := g.metricsServer.Start(ctx); err != nil {
				g.logger.Error("metrics listener failed", "error", err)
			}
		}()
	}
}

// close releases everything in reverse order of construction.
// abort releases what newGateway opened before it failed.
func (g *gateway) abort() {
	if err := g.close(context.Background()); err != nil {
		g.logger.Warn("cleanup after failed startup", "error", err)
	}
}

func (g *gateway) close(ctx context.Context) error {
	var errs []error
	if g.auditService != nil {
		g.auditService.Stop()
	}
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit store: %w", err))
		}
	}
	if g.rest != nil {
		if err := g.rest.Close(); err != nil {
			errs = append(errs, fmt.Errorf("rest client: %w", err))
		}
	}
	if g.shutdownTracer != nil {
		if err := g.shutdownTracer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
	}
	return errors.Join(errs...)
}
