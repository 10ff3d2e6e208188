// ABOUTME: CLI commands for health readings.
// ABOUTME: Handles the blood pressure pair and prints threshold classifications.
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/harperreed/medtrack/internal/models"
	"github.com/harperreed/medtrack/internal/vitals"
	"github.com/spf13/cobra"
)

var (
	readingAt      string
	readingNotes   string
	readingUnit    string
	readingType    string
	readingLimit   int
	readingDays    int
	readingFasting bool
)

var readingTypeNames = func() string {
	names := make([]string, len(models.AllReadingTypes))
	for i, t := range models.AllReadingTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}()

var readingCmd = &cobra.Command{
	Use:     "reading",
	Aliases: []string{"r", "vitals"},
	Short:   "Record and review health readings",
}

var readingAddCmd = &cobra.Command{
	Use:     "add <type> <value> [diastolic]",
	Aliases: []string{"a"},
	Short:   "Record a health reading",
	Long: `Record a health reading. Blood pressure takes systolic and diastolic values.

Examples:
  medtrack reading add blood_pressure 128 82
  medtrack reading add blood_sugar 104 --at "2025-03-10 07:30"
  medtrack reading add weight 69.8
  medtrack reading add temperature 37.2 --notes "after nap"`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := buildReading(app.recipient(), args)
		if err != nil {
			return err
		}
		if readingAt != "" {
			t, err := parseTime(readingAt, app.loc)
			if err != nil {
				return fmt.Errorf("invalid timestamp: %s", readingAt)
			}
			r.WithRecordedAt(t)
		}
		if readingUnit != "" {
			r.WithUnit(readingUnit)
		}
		if readingNotes != "" {
			r.WithNotes(readingNotes)
		}

		rec, err := app.vitals.Record(cmd.Context(), r)
		if err != nil {
			return fmt.Errorf("failed to record reading: %w", err)
		}

		color.Green("✓ Added %s", r.Type)
		fmt.Printf("  %s %s\n", faint.Sprint(shortID(r.ID)), r.Display())
		if rec.Classification != nil {
			printClassification(*rec.Classification)
		}
		return nil
	},
}

var readingListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "l"},
	Short:   "List health readings",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := readingTypeFlag()
		if err != nil {
			return err
		}
		readings, err := app.vitals.List(cmd.Context(), app.recipient(), rt, readingDays, readingLimit)
		if err != nil {
			return fmt.Errorf("failed to list readings: %w", err)
		}
		if len(readings) == 0 {
			fmt.Println("No readings found.")
			return nil
		}
		for _, r := range readings {
			printReading(r)
		}
		return nil
	},
}

var readingLatestCmd = &cobra.Command{
	Use:   "latest [type]",
	Short: "Show the latest reading of each type",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		types := models.AllReadingTypes
		if len(args) == 1 {
			if !models.IsValidReadingType(args[0]) {
				return fmt.Errorf("unknown reading type: %s\nValid types: %s", args[0], readingTypeNames)
			}
			types = []models.ReadingType{models.ReadingType(args[0])}
		}

		found := 0
		for _, t := range types {
			r, err := app.vitals.Latest(cmd.Context(), app.recipient(), t)
			if err != nil {
				continue
			}
			printReading(r)
			found++
		}
		if found == 0 {
			fmt.Println("No readings found.")
		}
		return nil
	},
}

var readingStatsCmd = &cobra.Command{
	Use:   "stats <type>",
	Short: "Summarize readings of one type",
	Long: `Show count, average, min, max, latest value, and trend for a reading type.
Blood pressure statistics use the systolic value.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !models.IsValidReadingType(args[0]) {
			return fmt.Errorf("unknown reading type: %s\nValid types: %s", args[0], readingTypeNames)
		}
		days := readingDays
		if days <= 0 {
			days = vitals.DefaultStatsDays
		}

		stats, ok, err := app.vitals.Stats(cmd.Context(), app.recipient(), models.ReadingType(args[0]), days)
		if err != nil {
			return fmt.Errorf("failed to compute stats: %w", err)
		}
		if !ok {
			fmt.Printf("No %s readings in the last %d days.\n", args[0], days)
			return nil
		}

		bold := color.New(color.Bold)
		fmt.Printf("%s %s\n", bold.Sprint(args[0]), faint.Sprintf("(last %d days)", days))
		fmt.Printf("  Count:    %d\n", stats.Count)
		fmt.Printf("  Average:  %g\n", stats.Average)
		fmt.Printf("  Min/Max:  %g / %g\n", stats.Min, stats.Max)
		fmt.Printf("  Latest:   %g\n", stats.Latest)
		fmt.Printf("  Trend:    %s\n", stats.Trend)
		return nil
	},
}

var readingClassifyCmd = &cobra.Command{
	Use:   "classify <type> <value> [diastolic]",
	Short: "Classify a value without recording it",
	Long: `Check a blood pressure or blood sugar value against clinical thresholds.

Examples:
  medtrack reading classify blood_pressure 142 88
  medtrack reading classify blood_sugar 118 --fasting`,
	Args:        cobra.RangeArgs(2, 3),
	Annotations: map[string]string{skipStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := buildReading("-", args)
		if err != nil {
			return err
		}
		if err := r.Validate(); err != nil {
			return err
		}

		var c vitals.Classification
		switch r.Type {
		case models.ReadingBloodPressure:
			c = vitals.ClassifyBloodPressure(r.Pressure.Systolic, r.Pressure.Diastolic)
		case models.ReadingBloodSugar:
			c = vitals.ClassifyBloodSugar(r.Value, readingFasting)
		default:
			return fmt.Errorf("%s readings have no thresholds", r.Type)
		}
		printClassification(c)
		return nil
	},
}

// buildReading turns "<type> <value> [diastolic]" into a reading.
func buildReading(recipientID string, args []string) (*models.Reading, error) {
	if !models.IsValidReadingType(args[0]) {
		return nil, fmt.Errorf("unknown reading type: %s\nValid types: %s", args[0], readingTypeNames)
	}
	rt := models.ReadingType(args[0])

	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid value: %s", args[1])
	}

	if rt == models.ReadingBloodPressure {
		if len(args) < 3 {
			return nil, fmt.Errorf("blood pressure requires two values: systolic and diastolic")
		}
		dia, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid diastolic value: %s", args[2])
		}
		return models.NewBloodPressureReading(recipientID, value, dia), nil
	}
	if len(args) > 2 {
		return nil, fmt.Errorf("%s takes a single value", rt)
	}
	return models.NewScalarReading(recipientID, rt, value), nil
}

func readingTypeFlag() (*models.ReadingType, error) {
	if readingType == "" {
		return nil, nil
	}
	if !models.IsValidReadingType(readingType) {
		return nil, fmt.Errorf("unknown reading type: %s\nValid types: %s", readingType, readingTypeNames)
	}
	rt := models.ReadingType(readingType)
	return &rt, nil
}

func printReading(r *models.Reading) {
	notes := ""
	if r.Notes != nil && *r.Notes != "" {
		notes = faint.Sprintf(" (%s)", truncate(*r.Notes, 30))
	}
	fmt.Printf("%s %s %s %s%s\n",
		faint.Sprint(shortID(r.ID)),
		faint.Sprint(r.RecordedAt.In(app.loc).Format("2006-01-02 15:04")),
		padRight(string(r.Type), 15),
		r.Display(),
		notes)
}

func printClassification(c vitals.Classification) {
	switch c.Status {
	case vitals.StatusNormal:
		color.Green("  %s", c.Message)
	case vitals.StatusElevated, vitals.StatusPrediabetes:
		color.Yellow("  %s", c.Message)
	default:
		color.Red("  %s", c.Message)
	}
}

func init() {
	readingAddCmd.Flags().StringVar(&readingAt, "at", "", "when it was measured (YYYY-MM-DD HH:MM, default now)")
	readingAddCmd.Flags().StringVar(&readingNotes, "notes", "", "optional notes")
	readingAddCmd.Flags().StringVar(&readingUnit, "unit", "", "unit override")

	readingListCmd.Flags().StringVarP(&readingType, "type", "t", "", "filter by reading type")
	readingListCmd.Flags().IntVarP(&readingLimit, "limit", "n", 20, "max number of results")
	readingListCmd.Flags().IntVar(&readingDays, "days", 0, "only the last N days")

	readingStatsCmd.Flags().IntVar(&readingDays, "days", 0, "look-back in days (default 30)")

	readingClassifyCmd.Flags().BoolVar(&readingFasting, "fasting", false, "blood sugar was measured fasting")

	readingCmd.AddCommand(readingAddCmd, readingListCmd, readingLatestCmd, readingStatsCmd, readingClassifyCmd)
	rootCmd.AddCommand(readingCmd)
}
