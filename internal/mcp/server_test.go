// ABOUTME: Tests for MCP server, tools, and resources.
// ABOUTME: Handlers run against real services over a temporary SQLite store.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harperreed/medtrack/internal/adherence"
	"github.com/harperreed/medtrack/internal/apperr"
	"github.com/harperreed/medtrack/internal/dose"
	"github.com/harperreed/medtrack/internal/medication"
	"github.com/harperreed/medtrack/internal/narrative"
	"github.com/harperreed/medtrack/internal/report"
	"github.com/harperreed/medtrack/internal/storage"
	"github.com/harperreed/medtrack/internal/vitals"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

// setupTestServer builds a server over a fresh database in a temp directory.
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "medtrack.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := zerolog.Nop()
	server, err := NewServer(Deps{
		Medications: medication.NewService(db, medication.WithLocation(time.UTC), medication.WithHorizon(3)),
		Doses:       dose.NewService(db, dose.WithLocation(time.UTC)),
		Vitals:      vitals.NewService(db, log, adherence.DefaultTrendOptions),
		Adherence:   adherence.NewCalculator(db),
		Reports:     report.NewComposer(db, narrative.Rules{}),
		RecipientID: "mom",
		Location:    time.UTC,
		Log:         log,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return server
}

func intPtr(v int) *int { return &v }

// addAspirin adds a twice-daily medication with ten pills and returns its output.
func addAspirin(t *testing.T, s *Server) medicationOutput {
	t.Helper()
	_, out, err := s.handleAddMedication(context.Background(), nil, addMedicationInput{
		Name:       "Aspirin",
		Dosage:     81,
		DosageUnit: "mg",
		Times:      []string{"08:00", "20:00"},
		Stock:      intPtr(10),
	})
	if err != nil {
		t.Fatalf("add_medication failed: %v", err)
	}
	return out
}

func TestNewServer(t *testing.T) {
	if _, err := NewServer(Deps{}); err == nil {
		t.Error("expected error when services are missing")
	}

	s := setupTestServer(t)
	if s.mcpServer == nil {
		t.Error("Expected non-nil mcpServer")
	}
	if s.deps.LowStockThreshold != medication.DefaultLowStockThreshold {
		t.Errorf("LowStockThreshold = %d, want default", s.deps.LowStockThreshold)
	}
	if s.deps.ReportPeriodDays != report.DefaultPeriodDays {
		t.Errorf("ReportPeriodDays = %d, want default", s.deps.ReportPeriodDays)
	}
}

func TestHandleAddMedication(t *testing.T) {
	s := setupTestServer(t)

	out := addAspirin(t, s)
	if out.Seeded != 6 {
		t.Errorf("Seeded = %d, want 6 (2 times x 3 days)", out.Seeded)
	}
	if out.Medication.RecipientID != "mom" {
		t.Errorf("RecipientID = %q, want configured default", out.Medication.RecipientID)
	}
	if !strings.Contains(out.Message, "Aspirin") || !strings.Contains(out.Message, "08:00, 20:00") {
		t.Errorf("unexpected message %q", out.Message)
	}

	tests := []struct {
		name  string
		input addMedicationInput
	}{
		{"no times", addMedicationInput{Name: "Metformin", Dosage: 500}},
		{"bad time", addMedicationInput{Name: "Metformin", Dosage: 500, Times: []string{"25:00"}}},
		{"no name", addMedicationInput{Dosage: 500, Times: []string{"08:00"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.handleAddMedication(context.Background(), nil, tt.input)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}

	if _, _, err := s.handleAddMedication(context.Background(), nil, addMedicationInput{
		Name: "Metformin", Dosage: 500, Times: []string{"08:00"}, StartDate: "next week",
	}); err == nil {
		t.Error("expected error for unparseable start date")
	}
}

func TestHandleListAndDeleteMedication(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()
	added := addAspirin(t, s)

	_, list, err := s.handleListMedications(ctx, nil, listMedicationsInput{})
	if err != nil {
		t.Fatalf("list_medications failed: %v", err)
	}
	if list.Count != 1 {
		t.Fatalf("Count = %d, want 1", list.Count)
	}

	_, other, err := s.handleListMedications(ctx, nil, listMedicationsInput{RecipientID: "dad"})
	if err != nil {
		t.Fatalf("list_medications failed: %v", err)
	}
	if other.Count != 0 {
		t.Errorf("dad has %d medications, want 0", other.Count)
	}

	_, del, err := s.handleDeleteMedication(ctx, nil, idInput{ID: added.Medication.ID[:8]})
	if err != nil {
		t.Fatalf("delete_medication failed: %v", err)
	}
	if del.Medication.Active {
		t.Error("deleted medication should be inactive")
	}

	_, list, _ = s.handleListMedications(ctx, nil, listMedicationsInput{})
	if list.Count != 0 {
		t.Errorf("active Count = %d after delete, want 0", list.Count)
	}
	_, list, _ = s.handleListMedications(ctx, nil, listMedicationsInput{IncludeInactive: true})
	if list.Count != 1 {
		t.Errorf("Count with inactive = %d, want 1", list.Count)
	}

	if _, _, err := s.handleDeleteMedication(ctx, nil, idInput{ID: "ffffffff"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestHandleMarkDoses(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()
	addAspirin(t, s)

	_, today, err := s.handleListTodayDoses(ctx, nil, recipientInput{})
	if err != nil {
		t.Fatalf("list_today_doses failed: %v", err)
	}
	if today.Count != 2 {
		t.Fatalf("today Count = %d, want 2", today.Count)
	}
	morning, evening := today.Doses[0], today.Doses[1]

	_, taken, err := s.handleMarkTaken(ctx, nil, idInput{ID: morning.ID})
	if err != nil {
		t.Fatalf("mark_taken failed: %v", err)
	}
	if taken.AlreadyRecorded || taken.Dose.Status != "taken" || taken.Dose.TakenAt == "" {
		t.Errorf("unexpected mark_taken output: %+v", taken)
	}

	_, again, err := s.handleMarkTaken(ctx, nil, idInput{ID: morning.ID})
	if err != nil {
		t.Fatalf("second mark_taken should not be a tool error: %v", err)
	}
	if !again.AlreadyRecorded || !strings.Contains(again.Message, "taken") {
		t.Errorf("expected already-recorded result, got %+v", again)
	}

	_, skipped, err := s.handleMarkSkipped(ctx, nil, idInput{ID: evening.ID})
	if err != nil {
		t.Fatalf("mark_skipped failed: %v", err)
	}
	if skipped.Dose.Status != "skipped" {
		t.Errorf("Status = %q, want skipped", skipped.Dose.Status)
	}

	_, list, _ := s.handleListMedications(ctx, nil, listMedicationsInput{})
	if got := list.Medications[0].CurrentStock; got == nil || *got != 9 {
		t.Errorf("stock = %v, want 9 after one taken dose", got)
	}

	if _, _, err := s.handleMarkTaken(ctx, nil, idInput{ID: "ffffffff"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestHandleRestockAndLowStock(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()
	added := addAspirin(t, s)

	_, low, err := s.handleLowStock(ctx, nil, lowStockInput{})
	if err != nil {
		t.Fatalf("low_stock failed: %v", err)
	}
	if low.Count != 0 {
		t.Errorf("low Count = %d with 10 pills, want 0", low.Count)
	}

	if _, _, err := s.handleRestockMedication(ctx, nil, restockInput{ID: added.Medication.ID, Stock: 2}); err != nil {
		t.Fatalf("restock_medication failed: %v", err)
	}
	_, low, _ = s.handleLowStock(ctx, nil, lowStockInput{})
	if low.Count != 1 {
		t.Errorf("low Count = %d with 2 pills, want 1", low.Count)
	}
	_, low, _ = s.handleLowStock(ctx, nil, lowStockInput{Threshold: intPtr(1)})
	if low.Count != 0 {
		t.Errorf("low Count = %d at threshold 1, want 0", low.Count)
	}

	if _, _, err := s.handleRestockMedication(ctx, nil, restockInput{ID: added.Medication.ID, Stock: -1}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want validation error for negative stock", err)
	}
}

func TestHandleExtendSchedule(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()
	added := addAspirin(t, s)

	_, out, err := s.handleExtendSchedule(ctx, nil, extendInput{ID: added.Medication.ID, Days: 5})
	if err != nil {
		t.Fatalf("extend_schedule failed: %v", err)
	}
	if out.Inserted != 4 {
		t.Errorf("Inserted = %d, want 4 (days 4 and 5)", out.Inserted)
	}

	_, out, err = s.handleExtendSchedule(ctx, nil, extendInput{Days: 5})
	if err != nil {
		t.Fatalf("extend_schedule for all failed: %v", err)
	}
	if out.Inserted != 0 {
		t.Errorf("Inserted = %d on repeat, want 0", out.Inserted)
	}
}

func TestHandleAddReading(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		input      addReadingInput
		wantStatus string
		wantErr    bool
	}{
		{"high blood pressure", addReadingInput{Type: "blood_pressure", Systolic: 150, Diastolic: 95}, "high", false},
		{"normal sugar", addReadingInput{Type: "blood_sugar", Value: 95}, "normal", false},
		{"weight has no status", addReadingInput{Type: "weight", Value: 70.2}, "", false},
		{"unknown type", addReadingInput{Type: "mood", Value: 7}, "", true},
		{"pressure missing diastolic", addReadingInput{Type: "blood_pressure", Systolic: 120}, "", true},
		{"future reading", addReadingInput{Type: "weight", Value: 70, RecordedAt: time.Now().Add(time.Hour).Format(time.RFC3339)}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := s.handleAddReading(ctx, nil, tt.input)
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrValidation) {
					t.Errorf("err = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("add_reading failed: %v", err)
			}
			if tt.wantStatus == "" {
				if out.Classification != nil {
					t.Errorf("unexpected classification %+v", out.Classification)
				}
				return
			}
			if out.Classification == nil || out.Classification.Status != tt.wantStatus {
				t.Errorf("classification = %+v, want %s", out.Classification, tt.wantStatus)
			}
		})
	}

	_, list, err := s.handleListReadings(ctx, nil, listReadingsInput{})
	if err != nil {
		t.Fatalf("list_readings failed: %v", err)
	}
	if list.Count != 3 {
		t.Errorf("Count = %d, want 3", list.Count)
	}
	_, list, _ = s.handleListReadings(ctx, nil, listReadingsInput{Type: "blood_pressure"})
	if list.Count != 1 || !strings.HasPrefix(list.Readings[0].Display, "150/95") {
		t.Errorf("unexpected blood pressure readings: %+v", list.Readings)
	}
}

func TestHandleClassifyReading(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name    string
		input   classifyInput
		want    string
		wantErr bool
	}{
		{"crisis", classifyInput{Type: "blood_pressure", Systolic: 185, Diastolic: 100}, "very_high", false},
		{"elevated by diastolic", classifyInput{Type: "blood_pressure", Systolic: 118, Diastolic: 82}, "elevated", false},
		{"fasting prediabetes", classifyInput{Type: "blood_sugar", Value: 110, Fasting: true}, "prediabetes_range", false},
		{"non-fasting normal", classifyInput{Type: "blood_sugar", Value: 110}, "normal", false},
		{"weight", classifyInput{Type: "weight", Value: 70}, "", true},
		{"missing value", classifyInput{Type: "blood_sugar"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := s.handleClassifyReading(context.Background(), nil, tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("classify_reading failed: %v", err)
			}
			if out.Status != tt.want {
				t.Errorf("Status = %q, want %q", out.Status, tt.want)
			}
		})
	}
}

func TestHandleStatsAndAdherence(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	_, empty, err := s.handleGetHealthStats(ctx, nil, statsInput{Type: "weight"})
	if err != nil {
		t.Fatalf("get_health_stats failed: %v", err)
	}
	if empty.Count != 0 || !strings.Contains(empty.Message, "No weight readings") {
		t.Errorf("unexpected empty stats: %+v", empty)
	}

	now := time.Now().UTC()
	for i, v := range []float64{70.0, 70.4, 71.0} {
		at := now.Add(time.Duration(i-3) * time.Hour).Format(time.RFC3339)
		if _, _, err := s.handleAddReading(ctx, nil, addReadingInput{Type: "weight", Value: v, RecordedAt: at}); err != nil {
			t.Fatalf("add_reading failed: %v", err)
		}
	}
	_, stats, err := s.handleGetHealthStats(ctx, nil, statsInput{Type: "weight", Days: 7})
	if err != nil {
		t.Fatalf("get_health_stats failed: %v", err)
	}
	if stats.Count != 3 || stats.Min != 70.0 || stats.Max != 71.0 || stats.Latest != 71.0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Average != 70.5 {
		t.Errorf("Average = %v, want 70.5", stats.Average)
	}

	if _, _, err := s.handleGetHealthStats(ctx, nil, statsInput{Type: "mood"}); err == nil {
		t.Error("expected error for unknown type")
	}

	_, adh, err := s.handleGetAdherence(ctx, nil, periodInput{Days: 7})
	if err != nil {
		t.Fatalf("get_adherence failed: %v", err)
	}
	if adh.RecipientID != "mom" || adh.TotalDoses != 0 || adh.Rate != 0 {
		t.Errorf("unexpected adherence for no doses: %+v", adh)
	}
}

func TestHandleWeeklyReport(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	res, _, err := s.handleWeeklyReport(ctx, nil, reportInput{})
	if err != nil {
		t.Fatalf("weekly_report failed: %v", err)
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if !strings.Contains(text, "# Health Report - mom") {
		t.Errorf("markdown report missing header:\n%s", text)
	}

	res, _, err = s.handleWeeklyReport(ctx, nil, reportInput{Format: "json", Days: 14})
	if err != nil {
		t.Fatalf("weekly_report json failed: %v", err)
	}
	var r report.Report
	if err := json.Unmarshal([]byte(res.Content[0].(*mcp.TextContent).Text), &r); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if r.RecipientID != "mom" || r.Summary == "" {
		t.Errorf("unexpected report: %+v", r)
	}

	if _, _, err := s.handleWeeklyReport(ctx, nil, reportInput{Format: "pdf"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestResources(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()
	added := addAspirin(t, s)
	if _, _, err := s.handleRestockMedication(ctx, nil, restockInput{ID: added.Medication.ID, Stock: 1}); err != nil {
		t.Fatalf("restock failed: %v", err)
	}

	tests := []struct {
		name     string
		handler  func(context.Context, *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error)
		uri      string
		mimeType string
		contains string
	}{
		{"today", s.handleTodayResource, "medtrack://today", "application/json", `"medication_name": "Aspirin"`},
		{"report", s.handleReportResource, "medtrack://report", "text/markdown", "# Health Report - mom"},
		{"low stock", s.handleLowStockResource, "medtrack://low-stock", "application/json", `"current_stock": 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.handler(ctx, nil)
			if err != nil {
				t.Fatalf("resource failed: %v", err)
			}
			if len(res.Contents) != 1 {
				t.Fatalf("got %d contents, want 1", len(res.Contents))
			}
			c := res.Contents[0]
			if c.URI != tt.uri || c.MIMEType != tt.mimeType {
				t.Errorf("URI/MIME = %s %s, want %s %s", c.URI, c.MIMEType, tt.uri, tt.mimeType)
			}
			if !strings.Contains(c.Text, tt.contains) {
				t.Errorf("contents missing %q:\n%s", tt.contains, c.Text)
			}
		})
	}
}

func TestInMemoryClient(t *testing.T) {
	s := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, ct := mcp.NewInMemoryTransports()
	ss, err := s.mcpServer.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server connect failed: %v", err)
	}
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect failed: %v", err)
	}
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools.Tools) != 15 {
		t.Errorf("got %d tools, want 15", len(tools.Tools))
	}

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name: "add_medication",
		Arguments: map[string]any{
			"name":   "Lisinopril",
			"dosage": 10,
			"times":  []string{"09:00"},
		},
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("add_medication returned a tool error: %+v", res.Content)
	}

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "add_medication",
		Arguments: map[string]any{"name": "Lisinopril", "dosage": 10, "times": []string{"9am"}},
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if !res.IsError {
		t.Error("expected a tool error for an invalid dosing time")
	}
}
