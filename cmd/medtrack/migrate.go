// ABOUTME: CLI command for copying data between storage backends.
// ABOUTME: Moves medications, dose logs, and readings from one backend to another.
package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/harperreed/medtrack/internal/config"
	"github.com/harperreed/medtrack/internal/storage"
	"github.com/spf13/cobra"
)

var (
	migrateFrom   string
	migrateTo     string
	migrateDSN    string
	migrateForce  bool
	migrateDryRun bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy data between storage backends",
	Long: `Copy every medication, dose log, and reading from one storage backend
to another.

BACKENDS:

  sqlite     <data_dir>/medtrack.db
  badger     <data_dir>/kv/
  postgres   postgres_dsn from the config, or --dsn

IMPORTANT:

  - The destination should be empty; use --force to copy into a store
    that already has medications
  - Dose logs that already exist in the destination are skipped, so a
    re-run after a partial failure is safe
  - Run with --dry-run first to see what would be copied
  - Switch the backend setting in the config afterwards

USAGE:

  medtrack migrate --from sqlite --to badger --dry-run
  medtrack migrate --from sqlite --to postgres --dsn postgres://localhost/medtrack`,
	Annotations: map[string]string{skipStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if migrateFrom == migrateTo {
			return fmt.Errorf("source and destination are both %s", migrateFrom)
		}

		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		dsn := cfg.PostgresDSN
		if migrateDSN != "" {
			dsn = migrateDSN
		}
		dataDir := cfg.GetDataDir()

		src, err := config.OpenBackend(ctx, migrateFrom, dataDir, dsn, log)
		if err != nil {
			return fmt.Errorf("failed to open source %s: %w", migrateFrom, err)
		}
		defer src.Close()

		if migrateDryRun {
			color.Yellow("Dry run mode - no changes will be made")
			fmt.Println()
			data, err := storage.Export(ctx, src)
			if err != nil {
				return fmt.Errorf("failed to read source: %w", err)
			}
			fmt.Printf("Would copy from %s to %s:\n", migrateFrom, migrateTo)
			fmt.Printf("  %d medications\n", len(data.Medications))
			fmt.Printf("  %d dose logs\n", len(data.DoseLogs))
			fmt.Printf("  %d readings\n", len(data.Readings))
			return nil
		}

		if migrateTo == config.BackendBadger && !migrateForce {
			nonEmpty, err := storage.IsDirNonEmpty(filepath.Join(dataDir, "kv"))
			if err != nil {
				return err
			}
			if nonEmpty {
				return fmt.Errorf("destination %s already has data (use --force to copy anyway)", filepath.Join(dataDir, "kv"))
			}
		}

		dst, err := config.OpenBackend(ctx, migrateTo, dataDir, dsn, log)
		if err != nil {
			return fmt.Errorf("failed to open destination %s: %w", migrateTo, err)
		}
		defer dst.Close()

		if !migrateForce {
			existing, err := dst.ListMedications(ctx, storage.MedicationFilter{})
			if err != nil {
				return fmt.Errorf("failed to check destination: %w", err)
			}
			if len(existing) > 0 {
				return fmt.Errorf("destination %s already has %d medications (use --force to copy anyway)", migrateTo, len(existing))
			}
		}

		summary, err := storage.Migrate(ctx, src, dst)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		color.Green("✓ Migrated %s to %s", migrateFrom, migrateTo)
		fmt.Printf("  %d medications, %d dose logs, %d readings\n",
			summary.Medications, summary.DoseLogs, summary.Readings)
		fmt.Println()
		fmt.Printf("Set \"backend\": %q in %s to use it.\n", migrateTo, config.GetConfigPath())
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateFrom, "from", config.BackendSQLite, "source backend: sqlite, badger, postgres")
	migrateCmd.Flags().StringVar(&migrateTo, "to", "", "destination backend: sqlite, badger, postgres")
	migrateCmd.Flags().StringVar(&migrateDSN, "dsn", "", "postgres DSN (default postgres_dsn from config)")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "copy even if the destination has data")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "preview migration without making changes")
	_ = migrateCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(migrateCmd)
}
