// ABOUTME: CLI commands for managing medications.
// ABOUTME: Add, list, show, update, restock, delete, and low-stock checks.
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/harperreed/medtrack/internal/medication"
	"github.com/harperreed/medtrack/internal/models"
	"github.com/spf13/cobra"
)

var (
	medUnit      string
	medTimes     []string
	medStock     int
	medStart     string
	medEnd       string
	medNotes     string
	medFrequency string
	medAll       bool
	medThreshold int

	medUpdateName   string
	medUpdateDosage float64
)

var medCmd = &cobra.Command{
	Use:     "med",
	Aliases: []string{"medication", "m"},
	Short:   "Manage medications",
	Long: `Manage medications and their dosing schedules.

Adding a medication schedules its doses for the configured horizon
(horizon_days, 7 by default). The daemon keeps extending the schedule
each night; 'medtrack schedule extend' does the same on demand.`,
}

var medAddCmd = &cobra.Command{
	Use:     "add <name> <dosage>",
	Aliases: []string{"a"},
	Short:   "Add a medication",
	Long: `Add a medication with one or more daily dosing times.

Examples:
  medtrack med add Aspirin 81 --unit mg --times 08:00
  medtrack med add Metformin 500 --unit mg --times 08:00,20:00 --stock 60
  medtrack med add Amoxicillin 1 --times 08:00,14:00,20:00 --end 2025-03-20`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dosage, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid dosage: %s", args[1])
		}

		unit := medUnit
		if unit == "" {
			unit = "tablet"
		}
		m := models.NewMedication(app.recipient(), args[0], dosage, unit, medTimes...)
		if medStart != "" {
			t, err := parseTime(medStart, app.loc)
			if err != nil {
				return fmt.Errorf("invalid start date: %s", medStart)
			}
			m.WithStartDate(t)
		}
		if medEnd != "" {
			t, err := parseTime(medEnd, app.loc)
			if err != nil {
				return fmt.Errorf("invalid end date: %s", medEnd)
			}
			m.WithEndDate(t)
		}
		if cmd.Flags().Changed("stock") {
			m.WithStock(medStock)
		}
		if medNotes != "" {
			m.WithNotes(medNotes)
		}
		if medFrequency != "" {
			m.WithFrequency(medFrequency)
		}

		seeded, err := app.meds.Create(cmd.Context(), m)
		if err != nil {
			return fmt.Errorf("failed to add medication: %w", err)
		}

		color.Green("✓ Added %s", m.Name)
		fmt.Printf("  %s %g %s at %s (%d doses scheduled)\n",
			faint.Sprint(shortID(m.ID)),
			m.Dosage, m.DosageUnit,
			strings.Join(m.Times, ", "),
			seeded)
		return nil
	},
}

var medListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "l"},
	Short:   "List medications",
	RunE: func(cmd *cobra.Command, args []string) error {
		meds, err := app.meds.List(cmd.Context(), app.recipient(), !medAll)
		if err != nil {
			return fmt.Errorf("failed to list medications: %w", err)
		}
		if len(meds) == 0 {
			fmt.Println("No medications found.")
			return nil
		}
		for _, m := range meds {
			printMedication(m)
		}
		return nil
	},
}

var medShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a medication",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := app.meds.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		bold := color.New(color.Bold)
		fmt.Printf("%s %s\n", bold.Sprint(m.Name), faint.Sprint(m.ID.String()))
		fmt.Printf("  Recipient:  %s\n", m.RecipientID)
		fmt.Printf("  Dosage:     %g %s, %s\n", m.Dosage, m.DosageUnit, m.Frequency)
		fmt.Printf("  Times:      %s\n", strings.Join(m.Times, ", "))
		fmt.Printf("  Starts:     %s\n", m.StartDate.In(app.loc).Format("2006-01-02"))
		if m.EndDate != nil {
			fmt.Printf("  Ends:       %s\n", m.EndDate.In(app.loc).Format("2006-01-02"))
		}
		if m.TracksStock() {
			fmt.Printf("  Stock:      %d\n", *m.CurrentStock)
		}
		if !m.Active {
			color.Yellow("  Inactive")
		}
		if m.Notes != nil && *m.Notes != "" {
			fmt.Printf("  Notes:      %s\n", *m.Notes)
		}
		return nil
	},
}

var medUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a medication",
	Long: `Update fields of a medication. Only the flags you pass are changed.

Dosing times can only change while no doses have been scheduled.

Examples:
  medtrack med update 3f2a --dosage 100
  medtrack med update 3f2a --end 2025-04-01 --notes "with food"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var u medication.Update
		flags := cmd.Flags()
		if flags.Changed("name") {
			u.Name = &medUpdateName
		}
		if flags.Changed("dosage") {
			u.Dosage = &medUpdateDosage
		}
		if flags.Changed("unit") {
			u.DosageUnit = &medUnit
		}
		if flags.Changed("frequency") {
			u.Frequency = &medFrequency
		}
		if flags.Changed("times") {
			u.Times = medTimes
		}
		if flags.Changed("notes") {
			u.Notes = &medNotes
		}
		if flags.Changed("stock") {
			u.Stock = &medStock
		}
		if flags.Changed("end") {
			t, err := parseTime(medEnd, app.loc)
			if err != nil {
				return fmt.Errorf("invalid end date: %s", medEnd)
			}
			u.EndDate = &t
		}

		m, err := app.meds.Update(cmd.Context(), args[0], u)
		if alreadyRecorded(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to update medication: %w", err)
		}
		color.Green("✓ Updated %s", m.Name)
		return nil
	},
}

var medRestockCmd = &cobra.Command{
	Use:   "restock <id> <count>",
	Short: "Set the remaining pill count",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid count: %s", args[1])
		}
		m, err := app.meds.Restock(cmd.Context(), args[0], count)
		if err != nil {
			return fmt.Errorf("failed to restock: %w", err)
		}
		color.Green("✓ %s stock set to %d", m.Name, count)
		return nil
	},
}

var medDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"del", "rm"},
	Short:   "Deactivate a medication",
	Long: `Deactivate a medication by its ID or ID prefix.

The medication stops being scheduled, but its dose history is kept so
past adherence stays accurate.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := app.meds.Delete(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to delete medication: %w", err)
		}
		color.Yellow("✗ Deactivated %s", m.Name)
		fmt.Printf("  %s\n", faint.Sprint(shortID(m.ID)))
		return nil
	},
}

var medLowStockCmd = &cobra.Command{
	Use:   "low-stock",
	Short: "List medications running low",
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold := app.cfg.LowStockThreshold
		if cmd.Flags().Changed("threshold") {
			threshold = medThreshold
		}
		meds, err := app.meds.LowStock(cmd.Context(), app.recipient(), threshold)
		if err != nil {
			return fmt.Errorf("failed to check stock: %w", err)
		}
		if len(meds) == 0 {
			color.Green("✓ No medications at or below %d", threshold)
			return nil
		}
		for _, m := range meds {
			color.Red("! %s: %d left", m.Name, *m.CurrentStock)
		}
		return nil
	},
}

func printMedication(m *models.Medication) {
	stock := ""
	if m.TracksStock() {
		stock = faint.Sprintf(" [%d left]", *m.CurrentStock)
	}
	status := ""
	if !m.Active {
		status = color.YellowString(" (inactive)")
	}
	fmt.Printf("%s %s %g %s  %s%s%s\n",
		faint.Sprint(shortID(m.ID)),
		padRight(m.Name, 16),
		m.Dosage, m.DosageUnit,
		strings.Join(m.Times, ", "),
		stock, status)
}

func init() {
	medAddCmd.Flags().StringVarP(&medUnit, "unit", "u", "", "dosage unit (default tablet)")
	medAddCmd.Flags().StringSliceVar(&medTimes, "times", nil, "daily dosing times, HH:MM (comma separated)")
	medAddCmd.Flags().IntVar(&medStock, "stock", 0, "pills on hand (enables stock tracking)")
	medAddCmd.Flags().StringVar(&medStart, "start", "", "first day (YYYY-MM-DD, default today)")
	medAddCmd.Flags().StringVar(&medEnd, "end", "", "last day (YYYY-MM-DD)")
	medAddCmd.Flags().StringVar(&medNotes, "notes", "", "optional notes")
	medAddCmd.Flags().StringVar(&medFrequency, "frequency", "", "frequency label (default from the number of times)")
	_ = medAddCmd.MarkFlagRequired("times")

	medListCmd.Flags().BoolVarP(&medAll, "all", "a", false, "include inactive medications")

	medUpdateCmd.Flags().StringVar(&medUpdateName, "name", "", "new name")
	medUpdateCmd.Flags().Float64Var(&medUpdateDosage, "dosage", 0, "new dosage")
	medUpdateCmd.Flags().StringVarP(&medUnit, "unit", "u", "", "new dosage unit")
	medUpdateCmd.Flags().StringVar(&medFrequency, "frequency", "", "new frequency label")
	medUpdateCmd.Flags().StringSliceVar(&medTimes, "times", nil, "new dosing times")
	medUpdateCmd.Flags().StringVar(&medNotes, "notes", "", "new notes")
	medUpdateCmd.Flags().IntVar(&medStock, "stock", 0, "new stock count")
	medUpdateCmd.Flags().StringVar(&medEnd, "end", "", "new end date (YYYY-MM-DD)")

	medLowStockCmd.Flags().IntVarP(&medThreshold, "threshold", "t", 0, "stock at or below this is low (default from config)")

	medCmd.AddCommand(medAddCmd, medListCmd, medShowCmd, medUpdateCmd, medRestockCmd, medDeleteCmd, medLowStockCmd)
	rootCmd.AddCommand(medCmd)
}
