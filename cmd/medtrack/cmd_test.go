// ABOUTME: Tests for CLI helper functions and command execution.
// ABOUTME: Tests parseTime, truncate, padRight, command wiring, and a full command run against SQLite.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harperreed/medtrack/internal/apperr"
	"github.com/harperreed/medtrack/internal/config"
	"github.com/harperreed/medtrack/internal/models"
	"github.com/harperreed/medtrack/internal/report"
	"github.com/harperreed/medtrack/internal/storage"
	"github.com/rs/zerolog"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "date and time with space", input: "2025-01-31 08:30"},
		{name: "date and time with T", input: "2025-01-31T08:30"},
		{name: "date only", input: "2025-01-31"},
		{name: "RFC3339", input: "2025-01-31T08:30:00Z"},
		{name: "RFC3339 with offset", input: "2025-01-31T08:30:00+05:00"},
		{name: "invalid format", input: "31-01-2025", wantErr: true},
		{name: "invalid random string", input: "not a date", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseTime(tt.input, time.UTC)

			if tt.wantErr {
				if err == nil {
					t.Errorf("parseTime(%q) expected error, got nil", tt.input)
				}
				return
			}

			if err != nil {
				t.Errorf("parseTime(%q) unexpected error: %v", tt.input, err)
				return
			}

			if result.IsZero() {
				t.Errorf("parseTime(%q) returned zero time", tt.input)
			}
		})
	}
}

func TestParseTimeUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	result, err := parseTime("2025-06-15 08:00", loc)
	if err != nil {
		t.Fatalf("parseTime failed: %v", err)
	}
	if result.Location() != loc || result.Hour() != 8 {
		t.Errorf("parseTime = %v, want 08:00 in the given zone", result)
	}

	result, err = parseTime("2025-06-15T08:00:00Z", loc)
	if err != nil {
		t.Fatalf("parseTime failed: %v", err)
	}
	if !result.Equal(time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("RFC3339 offset was not honored: %v", result)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "short string no truncation", input: "hello", maxLen: 10, want: "hello"},
		{name: "exact length", input: "hello", maxLen: 5, want: "hello"},
		{name: "needs truncation", input: "hello world this is a long string", maxLen: 10, want: "hello w..."},
		{name: "empty string", input: "", maxLen: 10, want: ""},
		{name: "very short maxLen", input: "hello", maxLen: 3, want: "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestPadRight(t *testing.T) {
	tests := []struct {
		input  string
		length int
		want   string
	}{
		{"hi", 5, "hi   "},
		{"hello", 5, "hello"},
		{"hello world", 5, "hello world"},
		{"", 5, "     "},
	}

	for _, tt := range tests {
		if got := padRight(tt.input, tt.length); got != tt.want {
			t.Errorf("padRight(%q, %d) = %q, want %q", tt.input, tt.length, got, tt.want)
		}
	}
}

func TestBuildReading(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    models.ReadingType
		wantErr bool
	}{
		{name: "blood pressure", args: []string{"blood_pressure", "128", "82"}, want: models.ReadingBloodPressure},
		{name: "weight", args: []string{"weight", "69.8"}, want: models.ReadingWeight},
		{name: "pressure missing diastolic", args: []string{"blood_pressure", "128"}, wantErr: true},
		{name: "scalar with extra value", args: []string{"weight", "69.8", "70"}, wantErr: true},
		{name: "unknown type", args: []string{"mood", "7"}, wantErr: true},
		{name: "bad value", args: []string{"weight", "heavy"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := buildReading("mom", tt.args)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildReading failed: %v", err)
			}
			if r.Type != tt.want || r.RecipientID != "mom" {
				t.Errorf("got %s for %s, want %s", r.Type, r.RecipientID, tt.want)
			}
		})
	}
}

func TestAlreadyRecorded(t *testing.T) {
	if alreadyRecorded(nil) {
		t.Error("nil is not a state conflict")
	}
	if alreadyRecorded(apperr.NotFound("dose.mark_taken", "dose log", "abc")) {
		t.Error("not found is not a state conflict")
	}
	if !alreadyRecorded(apperr.StateConflict("dose.mark_taken", "dose already recorded as taken")) {
		t.Error("expected state conflict to be reported")
	}
}

func TestRootCmd(t *testing.T) {
	if rootCmd.Use != "medtrack" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "medtrack")
	}
	for _, name := range []string{"config", "recipient", "log-level"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("Expected --%s persistent flag", name)
		}
	}
}

func TestCommandTree(t *testing.T) {
	want := map[string][]string{
		"med":      {"add", "list", "show", "update", "restock", "delete", "low-stock"},
		"dose":     {"today", "list", "take", "skip"},
		"schedule": {"extend"},
		"reading":  {"add", "list", "latest", "stats", "classify"},
		"config":   {"show", "init"},
	}
	top := map[string]bool{"adherence": true, "report": true, "migrate": true, "export": true,
		"import": true, "mcp": true, "daemon": true, "install-skill": true}

	found := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
		subs, ok := want[c.Name()]
		if !ok {
			continue
		}
		names := make(map[string]bool)
		for _, sc := range c.Commands() {
			names[sc.Name()] = true
		}
		for _, s := range subs {
			if !names[s] {
				t.Errorf("Expected %s subcommand %q", c.Name(), s)
			}
		}
	}
	for name := range want {
		if !found[name] {
			t.Errorf("Expected command %q", name)
		}
	}
	for name := range top {
		if !found[name] {
			t.Errorf("Expected command %q", name)
		}
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd   string
		flags []string
	}{
		{"med add", []string{"unit", "times", "stock", "start", "end", "notes", "frequency"}},
		{"med update", []string{"name", "dosage", "times", "stock", "end"}},
		{"reading add", []string{"at", "notes", "unit"}},
		{"reading list", []string{"type", "limit", "days"}},
		{"reading classify", []string{"fasting"}},
		{"report", []string{"days", "format", "output"}},
		{"export", []string{"format", "output", "type", "since"}},
		{"migrate", []string{"from", "to", "dsn", "force", "dry-run"}},
		{"daemon", []string{"run-now", "stock-cron"}},
	}
	for _, tt := range tests {
		cmd, _, err := rootCmd.Find(strings.Fields(tt.cmd))
		if err != nil {
			t.Errorf("Find(%q) failed: %v", tt.cmd, err)
			continue
		}
		for _, f := range tt.flags {
			if cmd.Flags().Lookup(f) == nil {
				t.Errorf("Expected --%s flag on %s", f, tt.cmd)
			}
		}
	}
}

func TestStoreFreeCommands(t *testing.T) {
	for _, path := range []string{"reading classify", "migrate", "install-skill", "config show", "config init"} {
		cmd, _, err := rootCmd.Find(strings.Fields(path))
		if err != nil {
			t.Fatalf("Find(%q) failed: %v", path, err)
		}
		if cmd.Annotations[skipStore] != "true" {
			t.Errorf("%s should not open the store", path)
		}
	}
}

// run executes the CLI with a private config path and data directory.
func run(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.json")}, args...))
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	return Execute()
}

func TestCLIEndToEnd(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("MEDTRACK_DATA_DIR", dataDir)
	t.Setenv("MEDTRACK_RECIPIENT_ID", "mom")
	t.Setenv("MEDTRACK_TIMEZONE", "UTC")
	t.Setenv("MEDTRACK_LOG_LEVEL", "error")
	ctx := context.Background()

	openStore := func() storage.Repository {
		t.Helper()
		repo, err := config.OpenBackend(ctx, config.BackendSQLite, dataDir, "", zerolog.Nop())
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() { repo.Close() })
		return repo
	}

	if err := run(t, "med", "add", "Aspirin", "81", "--unit", "mg", "--times", "08:00,20:00", "--stock", "10"); err != nil {
		t.Fatalf("med add failed: %v", err)
	}

	repo := openStore()
	meds, err := repo.ListMedications(ctx, storage.MedicationFilter{RecipientID: "mom"})
	if err != nil || len(meds) != 1 {
		t.Fatalf("medications = %v, %v; want one", meds, err)
	}
	if meds[0].DosageUnit != "mg" || meds[0].CurrentStock == nil || *meds[0].CurrentStock != 10 {
		t.Errorf("unexpected medication: %+v", meds[0])
	}
	logs, err := repo.QueryDoseLogs(ctx, "mom", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("QueryDoseLogs failed: %v", err)
	}
	if len(logs) != 14 {
		t.Errorf("scheduled %d doses, want 14 (2 times x 7 days)", len(logs))
	}

	doseID := logs[0].ID.String()[:8]
	if err := run(t, "dose", "take", doseID); err != nil {
		t.Fatalf("dose take failed: %v", err)
	}
	if err := run(t, "dose", "take", doseID); err != nil {
		t.Errorf("taking a dose twice should succeed with a notice, got %v", err)
	}
	m, err := repo.GetMedication(ctx, meds[0].ID.String())
	if err != nil {
		t.Fatalf("GetMedication failed: %v", err)
	}
	if *m.CurrentStock != 9 {
		t.Errorf("stock = %d, want 9", *m.CurrentStock)
	}

	if err := run(t, "reading", "add", "blood_pressure", "150", "95"); err != nil {
		t.Fatalf("reading add failed: %v", err)
	}
	if err := run(t, "reading", "add", "mood", "7"); err == nil {
		t.Error("expected error for unknown reading type")
	}

	backup := filepath.Join(t.TempDir(), "backup.json")
	if err := run(t, "export", "-o", backup); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	data, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	var exported storage.ExportData
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("backup is not JSON: %v", err)
	}
	if len(exported.Medications) != 1 || len(exported.DoseLogs) != 14 || len(exported.Readings) != 1 {
		t.Errorf("backup has %d meds, %d doses, %d readings",
			len(exported.Medications), len(exported.DoseLogs), len(exported.Readings))
	}

	out := filepath.Join(t.TempDir(), "report.json")
	if err := run(t, "report", "--format", "json", "-o", out); err != nil {
		t.Fatalf("report failed: %v", err)
	}
	data, err = os.ReadFile(out)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var r report.Report
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if r.RecipientID != "mom" || r.NarrativeSource != report.SourceGenerated {
		t.Errorf("unexpected report: recipient %q, source %q", r.RecipientID, r.NarrativeSource)
	}
	if r.Metrics.BloodPressure == nil {
		t.Error("report is missing the blood pressure metric")
	}

	if err := run(t, "med", "show", "ffffffff"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestClassifyRunsWithoutStore(t *testing.T) {
	t.Setenv("MEDTRACK_BACKEND", "postgres")
	t.Setenv("MEDTRACK_POSTGRES_DSN", "postgres://127.0.0.1:1/none")

	if err := run(t, "reading", "classify", "blood_pressure", "142", "88"); err != nil {
		t.Errorf("classify failed: %v", err)
	}
	if app != nil {
		t.Error("classify should not open the store")
	}
}
