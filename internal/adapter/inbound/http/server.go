package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// shutdownTimeout bounds graceful shutdown of the listener.
const shutdownTimeout = 5 * time.Second

// Server serves /metrics and /health.
type Server struct {
	addr     string
	gatherer prometheus.Gatherer
	health   *HealthChecker
	logger   *slog.Logger
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthChecker, logger *slog.Logger) *Server {
	return &Server{addr: addr, gatherer: gatherer, health: health, logger: logger}
}

// Handler returns the mux with both endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/health", s.health.Handler())
	return mux
}

// Start listens on addr and serves until ctx is cancelled, then shuts down
// gracefully. A failure to listen is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start over an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("metrics listener started", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during metrics listener shutdown", "error", err)
			return err
		}
		<-errCh
		s.logger.Info("metrics listener stopped")
		return nil
	case err := <-errCh:
		return err
	}
}
