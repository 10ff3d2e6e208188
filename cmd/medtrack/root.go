// ABOUTME: Root Cobra command for medtrack CLI.
// ABOUTME: Loads config and opens the store and services via PersistentPre/PostRunE.
package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harperreed/medtrack/internal/adherence"
	"github.com/harperreed/medtrack/internal/apperr"
	"github.com/harperreed/medtrack/internal/config"
	"github.com/harperreed/medtrack/internal/dose"
	"github.com/harperreed/medtrack/internal/logging"
	"github.com/harperreed/medtrack/internal/medication"
	"github.com/harperreed/medtrack/internal/narrative"
	"github.com/harperreed/medtrack/internal/report"
	"github.com/harperreed/medtrack/internal/storage"
	"github.com/harperreed/medtrack/internal/vitals"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// skipStore marks commands that run without opening the configured store.
const skipStore = "skip-store"

var (
	configPath    string
	recipientFlag string
	logLevelFlag  string

	app *appState
)

// appState holds what a command run needs. It is built in PersistentPreRunE.
type appState struct {
	cfg *config.Config
	log zerolog.Logger
	loc *time.Location

	repo      storage.Repository
	meds      *medication.Service
	doses     *dose.Service
	vitals    *vitals.Service
	adherence *adherence.Calculator

	closeNarrator func() error
}

var rootCmd = &cobra.Command{
	Use:   "medtrack",
	Short: "Medication adherence and health metrics tracker",
	Long: `Medtrack tracks medications, scheduled doses, and health readings for
one or more care recipients, and turns them into adherence rates and reports.

WHAT IT TRACKS:

  Medications   name, dosage, daily dosing times, optional pill stock
  Doses         one log per scheduled time: pending, taken, or skipped
  Readings      blood_pressure, blood_sugar, weight, temperature, heart_rate

QUICK START:

  $ medtrack med add Aspirin 81 --unit mg --times 08:00,20:00 --stock 60
  $ medtrack dose today                     # Today's schedule
  $ medtrack dose take 3f2a                 # Mark a dose taken (ID prefix)
  $ medtrack reading add blood_pressure 128 82
  $ medtrack adherence --days 7
  $ medtrack report --format markdown

CARE RECIPIENTS:

  Every record belongs to a recipient. The default comes from recipient_id in
  the config file; override it per command with --recipient.

MCP INTEGRATION:

  Run 'medtrack mcp' to start the Model Context Protocol server for use with
  Claude Desktop or other MCP-compatible AI assistants.

  {
    "mcpServers": {
      "medtrack": { "command": "medtrack", "args": ["mcp"] }
    }
  }

CONFIGURATION:

  Settings live in ~/.config/medtrack/config.json and can be overridden with
  MEDTRACK_* environment variables (for example MEDTRACK_BACKEND=badger).
  Run 'medtrack config show' to see the effective values.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Annotations[skipStore] == "true" {
			return nil
		}

		a, err := newAppState(cmd.Context())
		if err != nil {
			return err
		}
		app = a
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app == nil {
			return nil
		}
		err := app.Close()
		app = nil
		return err
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	// PersistentPostRunE does not run when a command fails.
	if app != nil {
		_ = app.Close()
		app = nil
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/medtrack/config.json)")
	rootCmd.PersistentFlags().StringVarP(&recipientFlag, "recipient", "r", "", "care recipient (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level override (debug, info, warn, error)")
}

// loadConfig reads the config file and applies CLI overrides.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	return cfg, logging.New(cfg.LoggingOptions()), nil
}

func newAppState(ctx context.Context) (*appState, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	repo, err := cfg.OpenStorage(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Backend, err)
	}

	return &appState{
		cfg:  cfg,
		log:  log,
		loc:  loc,
		repo: repo,
		meds: medication.NewService(repo,
			medication.WithLogger(log),
			medication.WithLocation(loc),
			medication.WithHorizon(cfg.HorizonDays)),
		doses:     dose.NewService(repo, dose.WithLogger(log), dose.WithLocation(loc)),
		vitals:    vitals.NewService(repo, log, cfg.TrendOptions()),
		adherence: adherence.NewCalculator(repo),
	}, nil
}

// composer builds the report composer with the configured narrator.
func (a *appState) composer(ctx context.Context) (*report.Composer, error) {
	n, closeFn, err := narrative.New(ctx, a.cfg.NarrativeOptions(), a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up narrative provider: %w", err)
	}
	a.closeNarrator = closeFn
	return report.NewComposer(a.repo, n,
		report.WithLogger(a.log),
		report.WithNarrativeTimeout(a.cfg.Narrative.Timeout),
		report.WithLocale(a.cfg.Locale),
	), nil
}

// recipient returns the --recipient flag or the configured default.
func (a *appState) recipient() string {
	if recipientFlag != "" {
		return recipientFlag
	}
	return a.cfg.RecipientID
}

// Close releases the narrator and the store.
func (a *appState) Close() error {
	var errs []error
	if a.closeNarrator != nil {
		errs = append(errs, a.closeNarrator())
	}
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	return errors.Join(errs...)
}

// alreadyRecorded prints a state conflict as a notice. It reports whether err
// was a state conflict, in which case the command should succeed.
func alreadyRecorded(err error) bool {
	if !errors.Is(err, apperr.ErrStateConflict) {
		return false
	}
	color.Yellow("! %s", apperr.Message(err))
	return true
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	formats := []string{
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"2006-01-02",
	}
	for _, f := range formats {
		if t, err := time.ParseInLocation(f, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time: %s", s)
}

func shortID(id fmt.Stringer) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}

var faint = color.New(color.Faint)
