// Package cmd provides the CLI commands for hass-gate.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hass-gate/hassgate/internal/config"
)

var (
	cfgFile         string
	flagMode        string
	flagURL         string
	flagAllowed     string
	flagNoVerifyTLS bool
	flagDebug       bool
)

var rootCmd = &cobra.Command{
	Use:   "hass-gate",
	Short: "hass-gate - MCP gateway for Home Assistant",
	Long: `hass-gate exposes a Home Assistant hub to AI agents as MCP tools over stdio.

Read tools (entities, history, logbook, dashboards, error log) are always
available. Service calls require readwrite mode and are checked against a
service allowlist and optional CEL deny rules before they reach the hub.

Quick start:
  export HA_URL=http://homeassistant.local:8123
  export HA_TOKEN=<long-lived access token>
  hass-gate start

Configuration:
  Config is loaded from hass-gate.yaml in the current directory,
  $HOME/.hass-gate/, or /etc/hass-gate/. HA_* environment variables
  override file values, and flags override both.

Commands:
  start       Serve MCP on stdin/stdout
  check       Verify hub (and SSH) connectivity
  tools       List the tools visible under the current configuration
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./hass-gate.yaml)")
	flags.StringVar(&flagMode, "mode", "", "tool mode: readonly or readwrite (overrides HA_MCP_MODE)")
	flags.StringVar(&flagURL, "url", "", "hub base URL (overrides HA_URL)")
	flags.StringVar(&flagAllowed, "allowed-services", "", "comma-separated service allowlist (overrides HA_ALLOWED_SERVICES)")
	flags.BoolVar(&flagNoVerifyTLS, "no-verify-tls", false, "disable TLS certificate verification")
	flags.BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

// loadConfig reads file and environment settings, applies CLI overrides and
// builds the validated Config. The returned logger writes to stderr at the
// configured level; it is valid even when err is non-nil.
func loadConfig(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	logger := newLogger(stderr, "info")

	s, err := config.LoadSettings(config.NewViper(cfgFile))
	if err != nil {
		return nil, logger, fmt.Errorf("failed to load config: %w", err)
	}
	applyOverrides(&s)

	logger = newLogger(stderr, s.LogLevel)
	cfg, err := config.Build(s, logger)
	if err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

// applyOverrides copies explicitly set flags over file and environment values.
func applyOverrides(s *config.Settings) {
	if flagMode != "" {
		s.Mode = flagMode
	}
	if flagURL != "" {
		s.URL = flagURL
	}
	if flagAllowed != "" {
		s.AllowedServices = flagAllowed
	}
	if flagNoVerifyTLS {
		s.VerifyTLS = "false"
	}
	if flagDebug {
		s.LogLevel = "debug"
	}
}

// newLogger writes text logs to w. Stdout is reserved for the MCP stream.
func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}))
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
