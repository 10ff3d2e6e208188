// ABOUTME: CLI command for starting MCP server.
// ABOUTME: Runs stdio-based MCP server for Claude integration.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/medtrack/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server",
	Long: `Start the Model Context Protocol (MCP) server for AI assistant integration.

MCP allows AI assistants like Claude to manage medications, record doses
and readings, and generate reports through a standardized protocol. The
server communicates via stdin/stdout; logs go to stderr.

CLAUDE DESKTOP CONFIGURATION:

  Add this to your Claude Desktop config (claude_desktop_config.json):

  {
    "mcpServers": {
      "medtrack": {
        "command": "medtrack",
        "args": ["mcp"]
      }
    }
  }

  On macOS, the config is at:
    ~/Library/Application Support/Claude/claude_desktop_config.json

AVAILABLE TOOLS:

  add_medication      Add a medication and schedule its doses
  list_medications    List medications
  delete_medication   Deactivate a medication
  restock_medication  Set remaining pill count
  extend_schedule     Schedule doses ahead of time
  list_today_doses    Today's doses with status
  mark_taken          Mark a dose taken
  mark_skipped        Mark a dose skipped
  low_stock           Medications running low
  add_reading         Record a health reading
  list_readings       List recent readings
  classify_reading    Classify a blood pressure or sugar value
  get_adherence       Adherence rate over N days
  get_health_stats    Statistics and trend for a reading type
  weekly_report       Compose a health report

AVAILABLE RESOURCES:

  medtrack://today       Today's doses
  medtrack://report      Current period report (Markdown)
  medtrack://low-stock   Medications running low`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		composer, err := app.composer(ctx)
		if err != nil {
			return err
		}

		server, err := mcp.NewServer(mcp.Deps{
			Medications:       app.meds,
			Doses:             app.doses,
			Vitals:            app.vitals,
			Adherence:         app.adherence,
			Reports:           composer,
			RecipientID:       app.recipient(),
			LowStockThreshold: app.cfg.LowStockThreshold,
			ReportPeriodDays:  app.cfg.ReportPeriodDays,
			HorizonDays:       app.cfg.HorizonDays,
			Location:          app.loc,
			Log:               app.log,
		})
		if err != nil {
			return err
		}

		// Handle shutdown signals
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		return server.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
