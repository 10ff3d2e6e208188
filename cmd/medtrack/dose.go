// ABOUTME: CLI commands for scheduled doses and schedule extension.
// ABOUTME: A dose that is already taken or skipped prints a notice and exits 0.
package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/harperreed/medtrack/internal/models"
	"github.com/spf13/cobra"
)

var (
	doseListDays int
	extendDays   int
)

var doseCmd = &cobra.Command{
	Use:     "dose",
	Aliases: []string{"d"},
	Short:   "View and record scheduled doses",
}

var doseTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's doses",
	RunE: func(cmd *cobra.Command, args []string) error {
		logs, err := app.doses.Today(cmd.Context(), app.recipient())
		if err != nil {
			return fmt.Errorf("failed to list doses: %w", err)
		}
		if len(logs) == 0 {
			fmt.Println("No doses scheduled today.")
			return nil
		}
		for _, l := range logs {
			printDose(l, "15:04")
		}
		return nil
	},
}

var doseListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List doses from the last N days",
	RunE: func(cmd *cobra.Command, args []string) error {
		if doseListDays < 1 {
			return fmt.Errorf("--days must be at least 1")
		}
		end := time.Now().In(app.loc)
		start := models.StartOfDay(end).AddDate(0, 0, -(doseListDays - 1))
		logs, err := app.doses.List(cmd.Context(), app.recipient(), start, end)
		if err != nil {
			return fmt.Errorf("failed to list doses: %w", err)
		}
		if len(logs) == 0 {
			fmt.Println("No doses found.")
			return nil
		}
		for _, l := range logs {
			printDose(l, "2006-01-02 15:04")
		}
		return nil
	},
}

var doseTakeCmd = &cobra.Command{
	Use:     "take <id>",
	Aliases: []string{"taken"},
	Short:   "Mark a dose as taken",
	Long: `Mark a pending dose as taken. Tracked stock drops by one.

Use the ID prefix shown by 'medtrack dose today'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := app.doses.MarkTaken(cmd.Context(), args[0])
		if alreadyRecorded(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to mark dose: %w", err)
		}
		color.Green("✓ Took %s (%s)", l.MedicationName, l.ScheduledTime.In(app.loc).Format("Jan 2 15:04"))
		return nil
	},
}

var doseSkipCmd = &cobra.Command{
	Use:   "skip <id>",
	Short: "Mark a dose as skipped",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := app.doses.MarkSkipped(cmd.Context(), args[0])
		if alreadyRecorded(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to mark dose: %w", err)
		}
		color.Yellow("- Skipped %s (%s)", l.MedicationName, l.ScheduledTime.In(app.loc).Format("Jan 2 15:04"))
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage the dose schedule",
}

var scheduleExtendCmd = &cobra.Command{
	Use:   "extend [medication-id]",
	Short: "Schedule doses ahead of time",
	Long: `Generate dose logs for the next N days starting today.

With a medication ID only that medication is extended; otherwise every
active medication is. Days that are already scheduled are left alone, so
running this repeatedly is safe.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		days := app.cfg.HorizonDays
		if cmd.Flags().Changed("days") {
			days = extendDays
		}

		var (
			n   int
			err error
		)
		if len(args) == 1 {
			n, err = app.meds.ExtendSchedule(cmd.Context(), args[0], time.Now().In(app.loc), days)
		} else {
			n, err = app.meds.ExtendAll(cmd.Context(), days)
		}
		if err != nil {
			return fmt.Errorf("failed to extend schedule: %w", err)
		}
		color.Green("✓ Scheduled %d new doses over %d days", n, days)
		return nil
	},
}

func printDose(l *models.DoseLog, layout string) {
	var status string
	switch l.Status {
	case models.DoseTaken:
		status = color.GreenString("taken  ")
	case models.DoseSkipped:
		status = color.YellowString("skipped")
	default:
		status = faint.Sprint("pending")
	}
	fmt.Printf("%s %s %s %s\n",
		faint.Sprint(shortID(l.ID)),
		l.ScheduledTime.In(app.loc).Format(layout),
		status,
		l.MedicationName)
}

func init() {
	doseListCmd.Flags().IntVar(&doseListDays, "days", 7, "number of days to show")
	scheduleExtendCmd.Flags().IntVar(&extendDays, "days", 0, "days to schedule (default horizon_days)")

	doseCmd.AddCommand(doseTodayCmd, doseListCmd, doseTakeCmd, doseSkipCmd)
	scheduleCmd.AddCommand(scheduleExtendCmd)
	rootCmd.AddCommand(doseCmd, scheduleCmd)
}
