// ABOUTME: CLI commands for exporting and importing medtrack data.
// ABOUTME: Supports JSON, YAML, and Markdown export formats and JSON import.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/harperreed/medtrack/internal/models"
	"github.com/harperreed/medtrack/internal/storage"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOutput string
	exportType   string
	exportSince  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export medtrack data",
	Long: `Export every medication, dose log, and reading.

FORMATS:

  json       Full JSON export (suitable for backup/restore)
  yaml       YAML export (human-readable)
  markdown   Markdown tables (for documentation/sharing)

OPTIONS:

  --format, -f   Output format (default json)
  --output, -o   Write to file instead of stdout
  --type, -t     Filter readings by type (markdown only)
  --since        Only include data since this date (markdown only, YYYY-MM-DD)

EXAMPLES:

  medtrack export                              # Export all data as JSON
  medtrack export -o backup.json               # Save to file
  medtrack export --format yaml                # Export as YAML
  medtrack export -f markdown --type weight    # Weight readings as Markdown
  medtrack export -f markdown --since 2025-01-01`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var data []byte
		var err error

		switch exportFormat {
		case "json":
			data, err = storage.ExportJSON(ctx, app.repo)
		case "yaml", "yml":
			data, err = storage.ExportYAML(ctx, app.repo)
		case "markdown", "md":
			var readingType *models.ReadingType
			if exportType != "" {
				if !models.IsValidReadingType(exportType) {
					return fmt.Errorf("unknown reading type: %s\nValid types: %s", exportType, readingTypeNames)
				}
				rt := models.ReadingType(exportType)
				readingType = &rt
			}
			var since *time.Time
			if exportSince != "" {
				t, err := time.ParseInLocation("2006-01-02", exportSince, app.loc)
				if err != nil {
					return fmt.Errorf("invalid date format: %s (use YYYY-MM-DD)", exportSince)
				}
				since = &t
			}
			var md string
			md, err = storage.ExportMarkdown(ctx, app.repo, readingType, since)
			data = []byte(md)
		default:
			return fmt.Errorf("unknown format: %s (use json, yaml, or markdown)", exportFormat)
		}

		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		if exportOutput != "" {
			if err := os.WriteFile(exportOutput, data, 0600); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			color.Green("✓ Exported to %s", exportOutput)
		} else {
			fmt.Println(string(data))
		}

		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import medtrack data from JSON",
	Long: `Import medications, dose logs, and readings from a JSON backup file.

Dose logs that already exist for the same medication and time are skipped.
Medications or readings with an existing ID cause an error.

EXAMPLES:

  medtrack import backup.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := args[0]

		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		if err := storage.ImportJSON(cmd.Context(), app.repo, data); err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		color.Green("✓ Imported from %s", filename)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "export format: json, yaml, markdown")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
	exportCmd.Flags().StringVarP(&exportType, "type", "t", "", "filter readings by type (markdown only)")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "only include data since date (YYYY-MM-DD)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
