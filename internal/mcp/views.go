// ABOUTME: Flat JSON views of medtrack records returned by MCP tools.
// ABOUTME: IDs and times are strings so tool output schemas stay simple.
package mcp

import (
	"time"

	"github.com/harperreed/medtrack/internal/adherence"
	"github.com/harperreed/medtrack/internal/models"
	"github.com/harperreed/medtrack/internal/vitals"
)

type medicationView struct {
	ID           string   `json:"id"`
	RecipientID  string   `json:"recipient_id"`
	Name         string   `json:"name"`
	Dosage       float64  `json:"dosage"`
	DosageUnit   string   `json:"dosage_unit"`
	Frequency    string   `json:"frequency,omitempty"`
	Times        []string `json:"times"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date,omitempty"`
	CurrentStock *int     `json:"current_stock,omitempty"`
	Active       bool     `json:"active"`
	Notes        string   `json:"notes,omitempty"`
}

func toMedicationView(m *models.Medication) medicationView {
	v := medicationView{
		ID:           m.ID.String(),
		RecipientID:  m.RecipientID,
		Name:         m.Name,
		Dosage:       m.Dosage,
		DosageUnit:   m.DosageUnit,
		Frequency:    m.Frequency,
		Times:        m.Times,
		StartDate:    m.StartDate.Format("2006-01-02"),
		CurrentStock: m.CurrentStock,
		Active:       m.Active,
	}
	if m.EndDate != nil {
		v.EndDate = m.EndDate.Format("2006-01-02")
	}
	if m.Notes != nil {
		v.Notes = *m.Notes
	}
	return v
}

func toMedicationViews(meds []*models.Medication) []medicationView {
	out := make([]medicationView, 0, len(meds))
	for _, m := range meds {
		out = append(out, toMedicationView(m))
	}
	return out
}

type doseView struct {
	ID             string `json:"id"`
	MedicationID   string `json:"medication_id"`
	MedicationName string `json:"medication_name,omitempty"`
	ScheduledTime  string `json:"scheduled_time"`
	Status         string `json:"status"`
	TakenAt        string `json:"taken_at,omitempty"`
}

func toDoseView(l *models.DoseLog) doseView {
	v := doseView{
		ID:             l.ID.String(),
		MedicationID:   l.MedicationID.String(),
		MedicationName: l.MedicationName,
		ScheduledTime:  l.ScheduledTime.Format(time.RFC3339),
		Status:         string(l.Status),
	}
	if l.TakenAt != nil {
		v.TakenAt = l.TakenAt.Format(time.RFC3339)
	}
	return v
}

func toDoseViews(logs []*models.DoseLog) []doseView {
	out := make([]doseView, 0, len(logs))
	for _, l := range logs {
		out = append(out, toDoseView(l))
	}
	return out
}

type readingView struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Value      float64 `json:"value,omitempty"`
	Systolic   float64 `json:"systolic,omitempty"`
	Diastolic  float64 `json:"diastolic,omitempty"`
	Unit       string  `json:"unit"`
	Display    string  `json:"display"`
	RecordedAt string  `json:"recorded_at"`
	Notes      string  `json:"notes,omitempty"`
}

func toReadingView(r *models.Reading) readingView {
	v := readingView{
		ID:         r.ID.String(),
		Type:       string(r.Type),
		Value:      r.Value,
		Unit:       r.Unit,
		Display:    r.Display(),
		RecordedAt: r.RecordedAt.Format(time.RFC3339),
	}
	if r.Pressure != nil {
		v.Systolic, v.Diastolic = r.Pressure.Systolic, r.Pressure.Diastolic
	}
	if r.Notes != nil {
		v.Notes = *r.Notes
	}
	return v
}

type adherenceView struct {
	RecipientID string `json:"recipient_id"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Rate        int    `json:"rate"`
	TotalDoses  int    `json:"total_doses"`
	TakenDoses  int    `json:"taken_doses"`
	MissedDoses int    `json:"missed_doses"`
}

func toAdherenceView(recipientID string, w adherence.Window) adherenceView {
	return adherenceView{
		RecipientID: recipientID,
		Start:       w.Start.Format(time.RFC3339),
		End:         w.End.Format(time.RFC3339),
		Rate:        w.Rate,
		TotalDoses:  w.TotalDoses,
		TakenDoses:  w.TakenDoses,
		MissedDoses: w.MissedDoses,
	}
}

type classificationView struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

func toClassificationView(c *vitals.Classification) *classificationView {
	if c == nil {
		return nil
	}
	return &classificationView{Status: string(c.Status), Message: c.Message}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
