// ABOUTME: Tests for the scheduler jobs with in-package fakes.
// ABOUTME: Jobs are run directly rather than waiting on cron ticks.
package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harperreed/medtrack/internal/models"
	"github.com/harperreed/medtrack/internal/report"
	"github.com/rs/zerolog"
)

type fakeMeds struct {
	meds       []*models.Medication
	extendDays int
	lowCalls   int
}

func (f *fakeMeds) List(ctx context.Context, recipientID string, activeOnly bool) ([]*models.Medication, error) {
	return f.meds, nil
}

func (f *fakeMeds) ExtendAll(ctx context.Context, days int) (int, error) {
	f.extendDays = days
	return 2 * days, nil
}

func (f *fakeMeds) LowStock(ctx context.Context, recipientID string, threshold int) ([]*models.Medication, error) {
	f.lowCalls++
	var low []*models.Medication
	for _, m := range f.meds {
		if m.TracksStock() && *m.CurrentStock <= threshold {
			low = append(low, m)
		}
	}
	return low, nil
}

type fakeReporter struct {
	fail map[string]bool
	days int
}

func (f *fakeReporter) Compose(ctx context.Context, recipientID string, periodDays int) (*report.Report, error) {
	f.days = periodDays
	if f.fail[recipientID] {
		return nil, errors.New("store unavailable")
	}
	return &report.Report{
		RecipientID:     recipientID,
		Summary:         "summary for " + recipientID,
		Recommendations: []string{"rest"},
		NarrativeSource: report.SourceFallback,
	}, nil
}

func testOptions(dir string) Options {
	return Options{
		ExtendCron:        "10 0 * * *",
		ReportCron:        "0 7 * * 1",
		StockCron:         DefaultStockCron,
		HorizonDays:       7,
		ReportPeriodDays:  7,
		LowStockThreshold: 5,
		Recipients:        []string{"default"},
		ReportsDir:        dir,
		Location:          time.UTC,
	}
}

func TestNewRegistersJobs(t *testing.T) {
	opts := testOptions(t.TempDir())
	s, err := New(&fakeMeds{}, &fakeReporter{}, opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.Entries() != 3 {
		t.Errorf("Entries() = %d, want 3", s.Entries())
	}

	opts.StockCron = ""
	s, err = New(&fakeMeds{}, &fakeReporter{}, opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.Entries() != 2 {
		t.Errorf("Entries() = %d, want 2 with stock job disabled", s.Entries())
	}

	opts.ExtendCron = "whenever"
	if _, err := New(&fakeMeds{}, &fakeReporter{}, opts, zerolog.Nop()); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestStartStop(t *testing.T) {
	s, err := New(&fakeMeds{}, &fakeReporter{}, testOptions(t.TempDir()), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestRunExtend(t *testing.T) {
	meds := &fakeMeds{}
	s, err := New(meds, &fakeReporter{}, testOptions(t.TempDir()), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	n, err := s.RunExtend(context.Background())
	if err != nil {
		t.Fatalf("RunExtend failed: %v", err)
	}
	if meds.extendDays != 7 || n != 14 {
		t.Errorf("extend days = %d, inserted = %d", meds.extendDays, n)
	}
}

func TestRunReports(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	meds := &fakeMeds{meds: []*models.Medication{
		models.NewMedication("mom", "Aspirin", 81, "mg", "08:00"),
		models.NewMedication("dad/uncle", "Metformin", 500, "mg", "09:00"),
		models.NewMedication("mom", "Lisinopril", 10, "mg", "20:00"),
	}}
	reporter := &fakeReporter{fail: map[string]bool{"default": true}}

	s, err := New(meds, reporter, testOptions(dir), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.now = func() time.Time { return time.Date(2025, 3, 17, 7, 0, 0, 0, time.UTC) }

	paths, err := s.RunReports(context.Background())
	if err == nil || !strings.Contains(err.Error(), "default") {
		t.Errorf("expected error naming the failed recipient, got %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("wrote %d reports, want 2: %v", len(paths), paths)
	}
	if reporter.days != 7 {
		t.Errorf("period days = %d, want 7", reporter.days)
	}

	want := []string{
		filepath.Join(dir, "dad_uncle-2025-03-17.md"),
		filepath.Join(dir, "mom-2025-03-17.md"),
	}
	for i, p := range want {
		if paths[i] != p {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], p)
		}
	}

	data, err := os.ReadFile(want[1])
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), "# Health Report - mom") || !strings.Contains(string(data), "summary for mom") {
		t.Errorf("unexpected report contents:\n%s", data)
	}
}

func TestRunLowStock(t *testing.T) {
	meds := &fakeMeds{meds: []*models.Medication{
		models.NewMedication("mom", "Aspirin", 81, "mg", "08:00").WithStock(3),
		models.NewMedication("mom", "Metformin", 500, "mg", "09:00").WithStock(30),
		models.NewMedication("mom", "Vitamin D", 1000, "IU", "09:00"),
	}}
	s, err := New(meds, &fakeReporter{}, testOptions(t.TempDir()), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	low, err := s.RunLowStock(context.Background())
	if err != nil {
		t.Fatalf("RunLowStock failed: %v", err)
	}
	if len(low) != 1 || low[0].Name != "Aspirin" {
		t.Errorf("low stock = %v, want only Aspirin", low)
	}
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"mom":         "mom",
		"dad/uncle":   "dad_uncle",
		"../etc":      "___etc",
		"care-team_1": "care-team_1",
	}
	for in, want := range tests {
		if got := safeName(in); got != want {
			t.Errorf("safeName(%q) = %q, want %q", in, got, want)
		}
	}
}
