package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hass-gate/hassgate/internal/adapter/outbound/rest"
	"github.com/hass-gate/hassgate/internal/adapter/outbound/sshlogs"
	"github.com/hass-gate/hassgate/internal/domain/hub"
)

var showConfig bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify hub (and SSH) connectivity",
	Long: `Ping the hub REST API with the configured token and, when SSH is enabled,
run a test command on the hub host. The result is printed as JSON and the
command exits non-zero if any check fails.

With --show-config the effective configuration is printed as YAML first,
with the token and SSH password masked.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&showConfig, "show-config", false, "print the effective configuration (secrets masked)")
	rootCmd.AddCommand(checkCmd)
}

// checkReport is the JSON printed by check.
type checkReport struct {
	Hub      *hub.PingResult    `json:"hub,omitempty"`
	HubError string             `json:"hub_error,omitempty"`
	SSH      *hub.SSHTestResult `json:"ssh,omitempty"`
	OK       bool               `json:"ok"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if showConfig {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg.Redact()); err != nil {
			return fmt.Errorf("failed to print config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return err
		}
		fmt.Fprintln(out, "---")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client := rest.NewClient(cfg, logger)
	defer client.Close()

	report := checkReport{OK: true}
	if ping, err := client.Ping(ctx); err != nil {
		report.HubError = err.Error()
		report.OK = false
	} else {
		report.Hub = ping
	}

	if cfg.SSHEnabled() {
		report.SSH = sshlogs.NewClient(cfg, logger).TestConnection(ctx)
		if !report.SSH.Success {
			report.OK = false
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if !report.OK {
		return fmt.Errorf("connectivity check failed")
	}
	return nil
}
