package cmd

import (
	"context"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/hass-gate/hassgate/internal/adapter/inbound/stdio"
)

// closeTimeout bounds span export and store shutdown after the stream ends.
const closeTimeout = 5 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Serve MCP on stdin/stdout",
	Long: `Start the gateway and serve the Model Context Protocol over stdio.

Stdout carries only JSON-RPC messages; logs, audit records (audit_output:
stderr) and trace spans go to stderr. The gateway exits when stdin closes
or on SIGINT/SIGTERM.

Examples:
  # Read-only tools with settings from the environment
  hass-gate start

  # Allow light and switch services
  hass-gate --mode readwrite --allowed-services 'light.*,switch.*' start`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, gracefulSignals()...)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg.LogSummary(logger)

	g, err := newGateway(cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	g.start(ctx)

	transport := stdio.NewStdioTransport(g.proxy, stdio.WithStreams(cmd.InOrStdin(), cmd.OutOrStdout()))
	logger.Info("hass-gate started", "version", Version, "tools", len(g.catalog.Available(g.features.ReadWrite, g.features.SSHEnabled)))
	runErr := transport.Start(ctx)
	if err := transport.Close(); err != nil {
		logger.Warn("error closing transport", "error", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := g.close(closeCtx); err != nil {
		logger.Warn("error during shutdown", "error", err)
	}
	logger.Info("hass-gate stopped")

	if ctx.Err() != nil {
		return nil
	}
	return runErr
}
