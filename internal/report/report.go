// ABOUTME: Report types: adherence window, per-type reading metrics, and narrative text.
// ABOUTME: Narrator is the text-generation collaborator the composer depends on.
package report

import (
	"context"
	"time"

	"github.com/harperreed/medtrack/internal/adherence"
	"github.com/harperreed/medtrack/internal/vitals"
)

// DefaultPeriodDays is the report window when none is given.
const DefaultPeriodDays = 7

// Period is the report window.
type Period struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// String formats the period as "2006-01-02 ~ 2006-01-02".
func (p Period) String() string {
	return p.Start.Format("2006-01-02") + " ~ " + p.End.Format("2006-01-02")
}

// BloodPressureMetric holds independently averaged systolic and diastolic values.
type BloodPressureMetric struct {
	Systolic  int           `json:"systolic" yaml:"systolic"`
	Diastolic int           `json:"diastolic" yaml:"diastolic"`
	Unit      string        `json:"unit" yaml:"unit"`
	Status    vitals.Status `json:"status" yaml:"status"`
	Message   string        `json:"message" yaml:"message"`
	Count     int           `json:"count" yaml:"count"`
}

// ScalarMetric is the average of a single-valued reading type. Status is set
// only for types that have thresholds.
type ScalarMetric struct {
	Average float64       `json:"average" yaml:"average"`
	Unit    string        `json:"unit" yaml:"unit"`
	Status  vitals.Status `json:"status,omitempty" yaml:"status,omitempty"`
	Message string        `json:"message,omitempty" yaml:"message,omitempty"`
	Count   int           `json:"count" yaml:"count"`
}

// WeightMetric reports the latest weight and its change from the oldest reading in the window.
type WeightMetric struct {
	Current float64 `json:"current" yaml:"current"`
	Change  float64 `json:"change" yaml:"change"`
	Unit    string  `json:"unit" yaml:"unit"`
	Count   int     `json:"count" yaml:"count"`
}

// Metrics holds one entry per reading type present in the window. Absent
// types are nil and omitted from every rendering.
type Metrics struct {
	BloodPressure *BloodPressureMetric `json:"blood_pressure,omitempty" yaml:"blood_pressure,omitempty"`
	BloodSugar    *ScalarMetric        `json:"blood_sugar,omitempty" yaml:"blood_sugar,omitempty"`
	Weight        *WeightMetric        `json:"weight,omitempty" yaml:"weight,omitempty"`
	HeartRate     *ScalarMetric        `json:"heart_rate,omitempty" yaml:"heart_rate,omitempty"`
	Temperature   *ScalarMetric        `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// Empty reports whether no reading type is present.
func (m Metrics) Empty() bool {
	return m.BloodPressure == nil && m.BloodSugar == nil && m.Weight == nil &&
		m.HeartRate == nil && m.Temperature == nil
}

// Summary is the structured numeric data handed to a Narrator. It never
// carries raw readings.
type Summary struct {
	RecipientID string           `json:"recipient_id"`
	Period      Period           `json:"period"`
	Adherence   adherence.Window `json:"adherence"`
	Metrics     Metrics          `json:"metrics"`
}

// Narrative is free text produced from a Summary.
type Narrative struct {
	Summary         string   `json:"summary" yaml:"summary"`
	Recommendations []string `json:"recommendations" yaml:"recommendations"`
}

// Blank reports whether the narrative carries no usable text.
func (n Narrative) Blank() bool {
	return n.Summary == "" && len(n.Recommendations) == 0
}

// Narrator turns a Summary into a Narrative. Implementations may call remote
// services; the composer treats every failure as non-fatal.
type Narrator interface {
	Summarize(ctx context.Context, data Summary, locale string) (Narrative, error)
}

// NarrativeSource records where a report's text came from.
type NarrativeSource string

const (
	SourceGenerated NarrativeSource = "generated"
	SourceFallback  NarrativeSource = "fallback"
)

// Report is a composed, non-persisted report. Its fields are always present;
// only Summary and Recommendations depend on the Narrator.
type Report struct {
	RecipientID     string           `json:"recipient_id" yaml:"recipient_id"`
	Period          Period           `json:"period" yaml:"period"`
	Adherence       adherence.Window `json:"adherence" yaml:"adherence"`
	Metrics         Metrics          `json:"metrics" yaml:"metrics"`
	Summary         string           `json:"summary" yaml:"summary"`
	Recommendations []string         `json:"recommendations" yaml:"recommendations"`
	NarrativeSource NarrativeSource  `json:"narrative_source" yaml:"narrative_source"`
	GeneratedAt     time.Time        `json:"generated_at" yaml:"generated_at"`
}
