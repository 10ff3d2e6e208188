// ABOUTME: CLI commands for adherence rates and health reports.
// ABOUTME: Reports render as text, JSON, YAML, or Markdown to stdout or a file.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/harperreed/medtrack/internal/adherence"
	"github.com/harperreed/medtrack/internal/report"
	"github.com/spf13/cobra"
)

var (
	adherenceDays int
	reportDays    int
	reportFormat  string
	reportOutput  string
)

var adherenceCmd = &cobra.Command{
	Use:   "adherence",
	Short: "Show the medication adherence rate",
	Long: `Show the share of scheduled doses that were taken over the last N days.
Skipped and still-pending doses both count as missed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := app.adherence.Rate(cmd.Context(), app.recipient(), adherenceDays)
		if err != nil {
			return fmt.Errorf("failed to compute adherence: %w", err)
		}
		if w.TotalDoses == 0 {
			fmt.Printf("No doses scheduled in the last %d days.\n", adherenceDays)
			return nil
		}

		rate := fmt.Sprintf("%d%%", w.Rate)
		switch {
		case w.Rate >= 90:
			rate = color.GreenString(rate)
		case w.Rate >= 70:
			rate = color.YellowString(rate)
		default:
			rate = color.RedString(rate)
		}
		fmt.Printf("Adherence %s over %d days\n", rate, adherenceDays)
		fmt.Printf("  %d of %d doses taken, %d missed\n", w.TakenDoses, w.TotalDoses, w.MissedDoses)
		fmt.Printf("  %s\n", faint.Sprintf("%s to %s",
			w.Start.In(app.loc).Format("2006-01-02 15:04"),
			w.End.In(app.loc).Format("2006-01-02 15:04")))
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a health report",
	Long: `Generate a report with adherence, health metric averages, and a short
narrative summary with recommendations.

The narrative comes from the configured provider (narrative.provider:
rules, openai, or gemini). If the provider fails or times out, a standard
summary is used so the report is always produced.

FORMATS:

  text       Plain text (default)
  json       Full JSON
  yaml       YAML
  markdown   Markdown for sharing with a care team

EXAMPLES:

  medtrack report
  medtrack report --days 30 --format markdown -o march.md
  medtrack report -r dad --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(reportFormat)
		if err != nil {
			return err
		}
		days := app.cfg.ReportPeriodDays
		if cmd.Flags().Changed("days") {
			days = reportDays
		}

		composer, err := app.composer(cmd.Context())
		if err != nil {
			return err
		}
		r, err := composer.Compose(cmd.Context(), app.recipient(), days)
		if err != nil {
			return fmt.Errorf("failed to compose report: %w", err)
		}
		data, err := report.Encode(r, format)
		if err != nil {
			return err
		}

		if reportOutput != "" {
			if err := os.WriteFile(reportOutput, data, 0600); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			color.Green("✓ Report written to %s", reportOutput)
			return nil
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	adherenceCmd.Flags().IntVar(&adherenceDays, "days", adherence.DefaultRateDays, "look-back in days")

	reportCmd.Flags().IntVar(&reportDays, "days", 0, "report period in days (default report_period_days)")
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "text", "output format: text, json, yaml, markdown")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "output file (default: stdout)")

	rootCmd.AddCommand(adherenceCmd, reportCmd)
}
