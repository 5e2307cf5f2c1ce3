package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hass-gate/hassgate/internal/domain/tool"
)

var toolsJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools visible under the current configuration",
	Long: `List the MCP tools an agent would see from tools/list, in catalog order,
with the risk level recorded in audit entries.`,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print the tools/list payload as JSON")
	rootCmd.AddCommand(toolsCmd)
}

// toolRow is one line of the tools listing.
type toolRow struct {
	Name        string `json:"name"`
	Risk        string `json:"risk"`
	Description string `json:"description"`
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	rows := visibleTools(tool.NewCatalog(), cfg.IsReadWrite(), cfg.SSHEnabled())
	out := cmd.OutOrStdout()
	if toolsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tRISK\tDESCRIPTION")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Risk, r.Description)
	}
	return w.Flush()
}

func visibleTools(catalog *tool.Catalog, readWrite, sshEnabled bool) []toolRow {
	var rows []toolRow
	for _, d := range catalog.Definitions() {
		if !tool.Enabled(d, readWrite, sshEnabled) {
			continue
		}
		row := toolRow{Name: d.Name, Risk: string(d.Risk)}
		if d.Description != nil {
			row.Description = *d.Description
		}
		rows = append(rows, row)
	}
	return rows
}
