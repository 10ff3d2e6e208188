// ABOUTME: CLI command that runs the background scheduler until signalled.
// ABOUTME: Extends dose schedules nightly, writes weekly reports, and sweeps low stock.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harperreed/medtrack/internal/scheduler"
	"github.com/spf13/cobra"
)

var (
	daemonRunNow    bool
	daemonStockCron string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduled jobs in the foreground",
	Long: `Run the background scheduler until interrupted.

JOBS:

  extend      schedule.extend_cron (default "10 0 * * *")
              Schedules horizon_days of doses for every active medication.
  report      schedule.report_cron (default "0 7 * * 1")
              Writes a Markdown report per recipient to <data_dir>/reports/.
  low-stock   --stock-cron (default "0 8 * * *")
              Logs medications at or below low_stock_threshold.

Cron expressions use the configured timezone. An empty expression
disables that job.

EXAMPLES:

  medtrack daemon
  medtrack daemon --run-now --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		composer, err := app.composer(ctx)
		if err != nil {
			return err
		}

		s, err := scheduler.New(app.meds, composer, scheduler.Options{
			ExtendCron:        app.cfg.Schedule.ExtendCron,
			ReportCron:        app.cfg.Schedule.ReportCron,
			StockCron:         daemonStockCron,
			HorizonDays:       app.cfg.HorizonDays,
			ReportPeriodDays:  app.cfg.ReportPeriodDays,
			LowStockThreshold: app.cfg.LowStockThreshold,
			Recipients:        []string{app.recipient()},
			ReportsDir:        app.cfg.ReportsDir(),
			Location:          app.loc,
		}, app.log)
		if err != nil {
			return err
		}

		if daemonRunNow {
			if _, err := s.RunExtend(ctx); err != nil {
				app.log.Error().Err(err).Msg("initial schedule extension failed")
			}
			if _, err := s.RunLowStock(ctx); err != nil {
				app.log.Error().Err(err).Msg("initial stock check failed")
			}
		}

		s.Start()
		app.log.Info().Int("jobs", s.Entries()).Msg("daemon started")

		<-ctx.Done()
		app.log.Info().Msg("shutting down")

		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonRunNow, "run-now", false, "extend schedules and check stock once at startup")
	daemonCmd.Flags().StringVar(&daemonStockCron, "stock-cron", scheduler.DefaultStockCron, "cron expression for the low-stock sweep (empty disables)")
	rootCmd.AddCommand(daemonCmd)
}
