// ABOUTME: Cron jobs for the medtrack daemon: horizon extension, periodic reports, low-stock sweep.
// ABOUTME: Each job is also callable directly so the CLI and tests can run it once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/harperreed/medtrack/internal/models"
	"github.com/harperreed/medtrack/internal/report"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultStockCron runs the low-stock sweep every morning.
const DefaultStockCron = "0 8 * * *"

// Medications is the slice of the medication service the jobs use.
type Medications interface {
	List(ctx context.Context, recipientID string, activeOnly bool) ([]*models.Medication, error)
	ExtendAll(ctx context.Context, days int) (int, error)
	LowStock(ctx context.Context, recipientID string, threshold int) ([]*models.Medication, error)
}

// Reporter composes reports.
type Reporter interface {
	Compose(ctx context.Context, recipientID string, periodDays int) (*report.Report, error)
}

// Options configures the jobs. Empty cron expressions disable a job.
type Options struct {
	ExtendCron string
	ReportCron string
	StockCron  string

	HorizonDays       int
	ReportPeriodDays  int
	LowStockThreshold int

	// Recipients always get a report, in addition to every recipient with an
	// active medication.
	Recipients []string
	ReportsDir string
	Location   *time.Location
	// JobTimeout bounds a single job run.
	JobTimeout time.Duration
}

// Scheduler owns the cron runner and the job implementations.
type Scheduler struct {
	cron     *cron.Cron
	meds     Medications
	reporter Reporter
	opts     Options
	log      zerolog.Logger
	now      func() time.Time
}

// New registers the configured jobs. It does not start the runner.
func New(meds Medications, reporter Reporter, opts Options, log zerolog.Logger) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 5 * time.Minute
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(opts.Location)),
		meds:     meds,
		reporter: reporter,
		opts:     opts,
		log:      log.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"extend", opts.ExtendCron, func(ctx context.Context) error {
			_, err := s.RunExtend(ctx)
			return err
		}},
		{"report", opts.ReportCron, func(ctx context.Context) error {
			_, err := s.RunReports(ctx)
			return err
		}},
		{"low_stock", opts.StockCron, func(ctx context.Context) error {
			_, err := s.RunLowStock(ctx)
			return err
		}},
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(job.spec, func() { s.runJob(job.name, job.run) }); err != nil {
			return nil, fmt.Errorf("schedule %s job %q: %w", job.name, job.spec, err)
		}
		s.log.Info().Str("job", job.name).Str("spec", job.spec).Msg("job scheduled")
	}
	return s, nil
}

// Entries returns how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the runner and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runJob(name string, run func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.JobTimeout)
	defer cancel()

	start := time.Now()
	if err := run(ctx); err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("job failed")
		return
	}
	s.log.Info().Str("job", name).Dur("took", time.Since(start)).Msg("job finished")
}

// RunExtend extends every active medication's schedule by the horizon.
func (s *Scheduler) RunExtend(ctx context.Context) (int, error) {
	return s.meds.ExtendAll(ctx, s.opts.HorizonDays)
}

// RunReports writes one Markdown report per recipient into ReportsDir and
// returns the written paths. A failure for one recipient does not stop the others.
func (s *Scheduler) RunReports(ctx context.Context) ([]string, error) {
	recipients, err := s.recipients(ctx)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.opts.ReportsDir, 0750); err != nil {
		return nil, fmt.Errorf("create reports directory: %w", err)
	}

	date := s.now().In(s.opts.Location).Format("2006-01-02")
	var paths []string
	var errs []error
	for _, rid := range recipients {
		r, err := s.reporter.Compose(ctx, rid, s.opts.ReportPeriodDays)
		if err != nil {
			errs = append(errs, fmt.Errorf("compose report for %s: %w", rid, err))
			continue
		}
		path := filepath.Join(s.opts.ReportsDir, fmt.Sprintf("%s-%s.md", safeName(rid), date))
		if err := os.WriteFile(path, []byte(report.Markdown(r)), 0600); err != nil {
			errs = append(errs, fmt.Errorf("write report %s: %w", path, err))
			continue
		}
		s.log.Info().Str("recipient_id", rid).Str("path", path).Str("narrative", string(r.NarrativeSource)).Msg("report written")
		paths = append(paths, path)
	}
	return paths, errors.Join(errs...)
}

// RunLowStock logs every active medication at or below the threshold and returns them.
func (s *Scheduler) RunLowStock(ctx context.Context) ([]*models.Medication, error) {
	meds, err := s.meds.LowStock(ctx, "", s.opts.LowStockThreshold)
	if err != nil {
		return nil, err
	}
	for _, m := range meds {
		s.log.Warn().
			Str("recipient_id", m.RecipientID).
			Str("medication", m.Name).
			Int("stock", *m.CurrentStock).
			Msg("medication stock is low")
	}
	return meds, nil
}

// recipients merges configured recipients with those that have active medications.
func (s *Scheduler) recipients(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, r := range s.opts.Recipients {
		if r != "" {
			seen[r] = true
		}
	}

	meds, err := s.meds.List(ctx, "", true)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	for _, m := range meds {
		seen[m.RecipientID] = true
	}

	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

// safeName keeps recipient IDs usable as file names.
func safeName(id string) string {
	b := []byte(id)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}
