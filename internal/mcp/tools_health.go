// ABOUTME: MCP tools for health readings, adherence, statistics, and reports.
// ABOUTME: Recording a reading returns its classification when the type has thresholds.
package mcp

import (
	"context"
	"fmt"

	"github.com/harperreed/medtrack/internal/adherence"
	"github.com/harperreed/medtrack/internal/apperr"
	"github.com/harperreed/medtrack/internal/models"
	"github.com/harperreed/medtrack/internal/report"
	"github.com/harperreed/medtrack/internal/vitals"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerHealthTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "add_reading",
		Description: "Record a health reading (blood_pressure, blood_sugar, weight, temperature, heart_rate). Blood pressure needs systolic and diastolic.",
	}, s.handleAddReading)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_readings",
		Description: "List recent health readings, newest first",
	}, s.handleListReadings)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "classify_reading",
		Description: "Classify a blood pressure or blood sugar value without storing it",
	}, s.handleClassifyReading)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_adherence",
		Description: "Medication adherence rate over the last N days",
	}, s.handleGetAdherence)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_health_stats",
		Description: "Count, average, min, max, latest, and trend for one reading type",
	}, s.handleGetHealthStats)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "weekly_report",
		Description: "Compose a health report with adherence, metrics, and a narrative summary",
	}, s.handleWeeklyReport)
}

// Tool input/output types

type addReadingInput struct {
	RecipientID string  `json:"recipient_id,omitempty" jsonschema:"Care recipient, defaults to the configured recipient"`
	Type        string  `json:"type" jsonschema:"Reading type: blood_pressure, blood_sugar, weight, temperature, or heart_rate"`
	Value       float64 `json:"value,omitempty" jsonschema:"Measured value for single-valued types"`
	Systolic    float64 `json:"systolic,omitempty" jsonschema:"Systolic pressure in mmHg"`
	Diastolic   float64 `json:"diastolic,omitempty" jsonschema:"Diastolic pressure in mmHg"`
	Unit        string  `json:"unit,omitempty" jsonschema:"Unit override, defaults to the type's unit"`
	RecordedAt  string  `json:"recorded_at,omitempty" jsonschema:"When it was measured (RFC 3339 or YYYY-MM-DD HH:MM), defaults to now"`
	Notes       string  `json:"notes,omitempty" jsonschema:"Optional notes"`
}

type readingOutput struct {
	Reading        readingView         `json:"reading"`
	Classification *classificationView `json:"classification,omitempty"`
	Message        string              `json:"message"`
}

type listReadingsInput struct {
	RecipientID string `json:"recipient_id,omitempty" jsonschema:"Care recipient, defaults to the configured recipient"`
	Type        string `json:"type,omitempty" jsonschema:"Only this reading type"`
	Days        int    `json:"days,omitempty" jsonschema:"Look back this many days; omit for all time"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Maximum readings to return, default 20"`
}

type readingsOutput struct {
	Readings []readingView `json:"readings"`
	Count    int           `json:"count"`
}

type classifyInput struct {
	Type      string  `json:"type" jsonschema:"blood_pressure or blood_sugar"`
	Value     float64 `json:"value,omitempty" jsonschema:"Blood sugar in mg/dL"`
	Systolic  float64 `json:"systolic,omitempty" jsonschema:"Systolic pressure in mmHg"`
	Diastolic float64 `json:"diastolic,omitempty" jsonschema:"Diastolic pressure in mmHg"`
	Fasting   bool    `json:"fasting,omitempty" jsonschema:"Blood sugar was measured fasting"`
}

type periodInput struct {
	RecipientID string `json:"recipient_id,omitempty" jsonschema:"Care recipient, defaults to the configured recipient"`
	Days        int    `json:"days,omitempty" jsonschema:"Look-back period in days"`
}

type statsInput struct {
	RecipientID string `json:"recipient_id,omitempty" jsonschema:"Care recipient, defaults to the configured recipient"`
	Type        string `json:"type" jsonschema:"Reading type"`
	Days        int    `json:"days,omitempty" jsonschema:"Look-back period in days, default 30"`
}

type statsOutput struct {
	Type    string  `json:"type"`
	Days    int     `json:"days"`
	Count   int     `json:"count"`
	Average float64 `json:"average,omitempty"`
	Min     float64 `json:"min,omitempty"`
	Max     float64 `json:"max,omitempty"`
	Latest  float64 `json:"latest,omitempty"`
	Trend   string  `json:"trend,omitempty"`
	Message string  `json:"message"`
}

type reportInput struct {
	RecipientID string `json:"recipient_id,omitempty" jsonschema:"Care recipient, defaults to the configured recipient"`
	Days        int    `json:"days,omitempty" jsonschema:"Report period in days, default 7"`
	Format      string `json:"format,omitempty" jsonschema:"markdown (default), text, json, or yaml"`
}

// Tool handlers

func (s *Server) handleAddReading(ctx context.Context, req *mcp.CallToolRequest, input addReadingInput) (*mcp.CallToolResult, readingOutput, error) {
	if !models.IsValidReadingType(input.Type) {
		return nil, readingOutput{}, apperr.Validationf("mcp.add_reading", "unknown reading type %q", input.Type)
	}
	rid := s.recipient(input.RecipientID)

	var r *models.Reading
	if models.ReadingType(input.Type) == models.ReadingBloodPressure {
		r = models.NewBloodPressureReading(rid, input.Systolic, input.Diastolic)
	} else {
		r = models.NewScalarReading(rid, models.ReadingType(input.Type), input.Value)
	}
	if input.RecordedAt != "" {
		at, err := s.parseWhen(input.RecordedAt)
		if err != nil {
			return nil, readingOutput{}, apperr.Validation("mcp.add_reading", err)
		}
		r.WithRecordedAt(at)
	}
	if input.Unit != "" {
		r.WithUnit(input.Unit)
	}
	if input.Notes != "" {
		r.WithNotes(input.Notes)
	}

	rec, err := s.deps.Vitals.Record(ctx, r)
	if err != nil {
		return nil, readingOutput{}, fmt.Errorf("failed to record reading: %w", err)
	}

	out := readingOutput{
		Reading:        toReadingView(rec.Reading),
		Classification: toClassificationView(rec.Classification),
		Message:        fmt.Sprintf("Recorded %s: %s", r.Type, r.Display()),
	}
	if rec.Classification != nil {
		out.Message += " (" + rec.Classification.Message + ")"
	}
	return nil, out, nil
}

func (s *Server) handleListReadings(ctx context.Context, req *mcp.CallToolRequest, input listReadingsInput) (*mcp.CallToolResult, readingsOutput, error) {
	var rt *models.ReadingType
	if input.Type != "" {
		if !models.IsValidReadingType(input.Type) {
			return nil, readingsOutput{}, apperr.Validationf("mcp.list_readings", "unknown reading type %q", input.Type)
		}
		t := models.ReadingType(input.Type)
		rt = &t
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	readings, err := s.deps.Vitals.List(ctx, s.recipient(input.RecipientID), rt, input.Days, limit)
	if err != nil {
		return nil, readingsOutput{}, fmt.Errorf("failed to list readings: %w", err)
	}
	views := make([]readingView, 0, len(readings))
	for _, r := range readings {
		views = append(views, toReadingView(r))
	}
	return nil, readingsOutput{Readings: views, Count: len(views)}, nil
}

func (s *Server) handleClassifyReading(ctx context.Context, req *mcp.CallToolRequest, input classifyInput) (*mcp.CallToolResult, classificationView, error) {
	var c vitals.Classification
	switch models.ReadingType(input.Type) {
	case models.ReadingBloodPressure:
		if input.Systolic <= 0 || input.Diastolic <= 0 {
			return nil, classificationView{}, apperr.Validationf("mcp.classify_reading", "systolic and diastolic are required")
		}
		c = vitals.ClassifyBloodPressure(input.Systolic, input.Diastolic)
	case models.ReadingBloodSugar:
		if input.Value <= 0 {
			return nil, classificationView{}, apperr.Validationf("mcp.classify_reading", "value is required")
		}
		c = vitals.ClassifyBloodSugar(input.Value, input.Fasting)
	default:
		return nil, classificationView{}, apperr.Validationf("mcp.classify_reading", "%q readings have no thresholds", input.Type)
	}
	return nil, *toClassificationView(&c), nil
}

func (s *Server) handleGetAdherence(ctx context.Context, req *mcp.CallToolRequest, input periodInput) (*mcp.CallToolResult, adherenceView, error) {
	days := input.Days
	if days <= 0 {
		days = adherence.DefaultRateDays
	}
	rid := s.recipient(input.RecipientID)
	w, err := s.deps.Adherence.Rate(ctx, rid, days)
	if err != nil {
		return nil, adherenceView{}, fmt.Errorf("failed to compute adherence: %w", err)
	}
	return nil, toAdherenceView(rid, w), nil
}

func (s *Server) handleGetHealthStats(ctx context.Context, req *mcp.CallToolRequest, input statsInput) (*mcp.CallToolResult, statsOutput, error) {
	if !models.IsValidReadingType(input.Type) {
		return nil, statsOutput{}, apperr.Validationf("mcp.get_health_stats", "unknown reading type %q", input.Type)
	}
	days := input.Days
	if days <= 0 {
		days = vitals.DefaultStatsDays
	}

	stats, ok, err := s.deps.Vitals.Stats(ctx, s.recipient(input.RecipientID), models.ReadingType(input.Type), days)
	if err != nil {
		return nil, statsOutput{}, fmt.Errorf("failed to compute stats: %w", err)
	}
	out := statsOutput{Type: input.Type, Days: days}
	if !ok {
		out.Message = fmt.Sprintf("No %s readings in the last %d days", input.Type, days)
		return nil, out, nil
	}
	out.Count = stats.Count
	out.Average = stats.Average
	out.Min = stats.Min
	out.Max = stats.Max
	out.Latest = stats.Latest
	out.Trend = string(stats.Trend)
	out.Message = fmt.Sprintf("%d %s readings, average %g, trend %s", stats.Count, input.Type, stats.Average, stats.Trend)
	return nil, out, nil
}

func (s *Server) handleWeeklyReport(ctx context.Context, req *mcp.CallToolRequest, input reportInput) (*mcp.CallToolResult, any, error) {
	format := report.FormatMarkdown
	if input.Format != "" {
		f, err := report.ParseFormat(input.Format)
		if err != nil {
			return nil, nil, apperr.Validation("mcp.weekly_report", err)
		}
		format = f
	}
	days := input.Days
	if days <= 0 {
		days = s.deps.ReportPeriodDays
	}

	r, err := s.deps.Reports.Compose(ctx, s.recipient(input.RecipientID), days)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compose report: %w", err)
	}
	body, err := report.Encode(r, format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode report: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
	}, nil, nil
}
