// ABOUTME: Tests for report renderings and format parsing.
// ABOUTME: Checks that absent metrics never appear in any format.
package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/harperreed/medtrack/internal/adherence"
	"github.com/harperreed/medtrack/internal/vitals"
)

func sampleReport() *Report {
	start := time.Date(2025, 3, 9, 22, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	return &Report{
		RecipientID: "mom",
		Period:      Period{Start: start, End: end},
		Adherence:   adherence.Window{Start: start, End: end, Rate: 71, TotalDoses: 14, TakenDoses: 10, MissedDoses: 4},
		Metrics: Metrics{
			BloodPressure: &BloodPressureMetric{Systolic: 131, Diastolic: 86, Unit: "mmHg", Status: vitals.StatusElevated, Count: 2},
			Weight:        &WeightMetric{Current: 69.8, Change: -0.4, Unit: "kg", Count: 2},
		},
		Summary:         "Steady week.",
		Recommendations: []string{"Walk daily.", "Cut back on salt."},
		NarrativeSource: SourceGenerated,
		GeneratedAt:     end,
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"md", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{"pdf", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	r := sampleReport()

	tests := []struct {
		format Format
		want   []string
	}{
		{FormatText, []string{"Health report for mom (2025-03-09 ~ 2025-03-16)", "Adherence: 71% (10 of 14 doses taken, 4 missed)", "Blood pressure: 131/86 mmHg", "Weight: 69.8 kg (-0.4 kg", "  - Walk daily."}},
		{FormatMarkdown, []string{"# Health Report - mom", "| 71% | 10 | 4 | 14 |", "## Health metrics", "## Recommendations", "- Cut back on salt."}},
		{FormatYAML, []string{"recipient_id: mom", "systolic: 131", "narrative_source: generated"}},
		{FormatJSON, []string{`"rate": 71`, `"change": -0.4`}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			out, err := Encode(r, tt.format)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			s := string(out)
			for _, want := range tt.want {
				if !strings.Contains(s, want) {
					t.Errorf("%s output missing %q:\n%s", tt.format, want, s)
				}
			}
			for _, absent := range []string{"blood_sugar", "Blood sugar", "Heart rate", "temperature"} {
				if strings.Contains(s, absent) {
					t.Errorf("%s output mentions absent metric %q", tt.format, absent)
				}
			}
		})
	}

	if _, err := Encode(r, Format("pdf")); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestEncodeJSONRoundTrip(t *testing.T) {
	out, err := Encode(sampleReport(), FormatJSON)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var back Report
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back.Metrics.Weight == nil || back.Metrics.Weight.Current != 69.8 {
		t.Errorf("weight lost in JSON: %+v", back.Metrics.Weight)
	}
	if back.Metrics.BloodSugar != nil {
		t.Error("blood sugar should stay absent")
	}
}
