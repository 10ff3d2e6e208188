// ABOUTME: Backup export and import for medtrack data across any backend.
// ABOUTME: Supports JSON, YAML, and Markdown export formats and JSON import.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harperreed/medtrack/internal/models"
	"gopkg.in/yaml.v3"
)

// ExportVersion is the backup format version.
const ExportVersion = "1.0"

// ExportData represents the full backup format for medtrack data.
type ExportData struct {
	Version     string               `json:"version" yaml:"version"`
	ExportedAt  time.Time            `json:"exported_at" yaml:"exported_at"`
	Tool        string               `json:"tool" yaml:"tool"`
	Medications []*models.Medication `json:"medications" yaml:"medications"`
	DoseLogs    []*models.DoseLog    `json:"dose_logs" yaml:"dose_logs"`
	Readings    []*models.Reading    `json:"readings" yaml:"readings"`
}

// Export retrieves all data from repo.
func Export(ctx context.Context, repo Repository) (*ExportData, error) {
	meds, err := repo.ListMedications(ctx, MedicationFilter{})
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}

	logs, err := repo.QueryDoseLogs(ctx, "", time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list dose logs: %w", err)
	}

	readings, err := repo.QueryHealthReadings(ctx, ReadingQuery{})
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}

	return &ExportData{
		Version:     ExportVersion,
		ExportedAt:  time.Now(),
		Tool:        "medtrack",
		Medications: meds,
		DoseLogs:    logs,
		Readings:    readings,
	}, nil
}

// Import writes a backup into repo. Dose logs that already exist are skipped.
func Import(ctx context.Context, repo Repository, data *ExportData) error {
	for _, m := range data.Medications {
		if err := repo.CreateMedication(ctx, m); err != nil {
			return fmt.Errorf("import medication: %w", err)
		}
	}

	if _, err := repo.InsertDoseInstances(ctx, data.DoseLogs); err != nil {
		return fmt.Errorf("import dose logs: %w", err)
	}

	for _, r := range data.Readings {
		if err := repo.CreateReading(ctx, r); err != nil {
			return fmt.Errorf("import reading: %w", err)
		}
	}

	return nil
}

// ExportJSON exports all data as JSON.
func ExportJSON(ctx context.Context, repo Repository) ([]byte, error) {
	data, err := Export(ctx, repo)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(data, "", "  ")
}

// ImportJSON imports data from JSON bytes.
func ImportJSON(ctx context.Context, repo Repository, raw []byte) error {
	var data ExportData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("unmarshal JSON: %w", err)
	}
	return Import(ctx, repo, &data)
}

// ExportYAML exports all data as YAML, with readings grouped by type.
func ExportYAML(ctx context.Context, repo Repository) ([]byte, error) {
	data, err := Export(ctx, repo)
	if err != nil {
		return nil, err
	}

	yamlData := struct {
		Version     string                   `yaml:"version"`
		ExportedAt  string                   `yaml:"exported_at"`
		Tool        string                   `yaml:"tool"`
		Medications []yamlMedication         `yaml:"medications"`
		Readings    map[string][]yamlReading `yaml:"readings"`
	}{
		Version:     data.Version,
		ExportedAt:  data.ExportedAt.Format(time.RFC3339),
		Tool:        data.Tool,
		Medications: make([]yamlMedication, 0, len(data.Medications)),
		Readings:    make(map[string][]yamlReading),
	}

	doses := make(map[string][]yamlDose)
	for _, l := range data.DoseLogs {
		yd := yamlDose{
			Scheduled: l.ScheduledTime.Format(time.RFC3339),
			Status:    string(l.Status),
		}
		if l.TakenAt != nil {
			yd.TakenAt = l.TakenAt.Format(time.RFC3339)
		}
		key := l.MedicationID.String()
		doses[key] = append(doses[key], yd)
	}

	for _, m := range data.Medications {
		ym := yamlMedication{
			ID:        m.ID.String()[:8],
			Recipient: m.RecipientID,
			Name:      m.Name,
			Dosage:    fmt.Sprintf("%g %s", m.Dosage, m.DosageUnit),
			Times:     m.Times,
			Active:    m.Active,
			Doses:     doses[m.ID.String()],
		}
		if m.CurrentStock != nil {
			ym.Stock = m.CurrentStock
		}
		yamlData.Medications = append(yamlData.Medications, ym)
	}

	for _, r := range data.Readings {
		rt := string(r.Type)
		yr := yamlReading{
			ID:         r.ID.String()[:8],
			Recipient:  r.RecipientID,
			Value:      r.Display(),
			RecordedAt: r.RecordedAt.Format(time.RFC3339),
		}
		if r.Notes != nil {
			yr.Notes = *r.Notes
		}
		yamlData.Readings[rt] = append(yamlData.Readings[rt], yr)
	}

	return yaml.Marshal(yamlData)
}

type yamlMedication struct {
	ID        string     `yaml:"id"`
	Recipient string     `yaml:"recipient"`
	Name      string     `yaml:"name"`
	Dosage    string     `yaml:"dosage"`
	Times     []string   `yaml:"times"`
	Active    bool       `yaml:"active"`
	Stock     *int       `yaml:"stock,omitempty"`
	Doses     []yamlDose `yaml:"doses,omitempty"`
}

type yamlDose struct {
	Scheduled string `yaml:"scheduled"`
	Status    string `yaml:"status"`
	TakenAt   string `yaml:"taken_at,omitempty"`
}

type yamlReading struct {
	ID         string `yaml:"id"`
	Recipient  string `yaml:"recipient"`
	Value      string `yaml:"value"`
	RecordedAt string `yaml:"recorded_at"`
	Notes      string `yaml:"notes,omitempty"`
}

// ExportMarkdown renders medications and readings as Markdown tables.
// A non-nil readingType limits the readings section to that type; since drops older readings.
func ExportMarkdown(ctx context.Context, repo Repository, readingType *models.ReadingType, since *time.Time) (string, error) {
	meds, err := repo.ListMedications(ctx, MedicationFilter{})
	if err != nil {
		return "", fmt.Errorf("list medications: %w", err)
	}
	readings, err := repo.QueryHealthReadings(ctx, ReadingQuery{Type: readingType, Start: since})
	if err != nil {
		return "", fmt.Errorf("list readings: %w", err)
	}

	var sb strings.Builder
	now := time.Now()

	sb.WriteString(fmt.Sprintf("# Medtrack Export - %s\n\n", now.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", now.Format(time.RFC3339)))

	if readingType == nil && len(meds) > 0 {
		sb.WriteString("## Medications\n\n")
		sb.WriteString("| Name | Dosage | Times | Stock | Active |\n")
		sb.WriteString("|------|--------|-------|-------|--------|\n")
		for _, m := range meds {
			stock := "-"
			if m.CurrentStock != nil {
				stock = fmt.Sprintf("%d", *m.CurrentStock)
			}
			sb.WriteString(fmt.Sprintf("| %s | %g %s | %s | %s | %t |\n",
				m.Name, m.Dosage, m.DosageUnit, strings.Join(m.Times, ", "), stock, m.Active))
		}
		sb.WriteString("\n")
	}

	grouped := make(map[models.ReadingType][]*models.Reading)
	for _, r := range readings {
		grouped[r.Type] = append(grouped[r.Type], r)
	}

	types := make([]models.ReadingType, 0, len(grouped))
	for t := range grouped {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		return string(types[i]) < string(types[j])
	})

	for _, t := range types {
		sb.WriteString(fmt.Sprintf("## %s\n\n", t))
		sb.WriteString("| Date | Value | Notes |\n")
		sb.WriteString("|------|-------|-------|\n")
		for _, r := range grouped[t] {
			notes := ""
			if r.Notes != nil {
				notes = *r.Notes
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
				r.RecordedAt.Format("2006-01-02 15:04"), r.Display(), notes))
		}
		sb.WriteString("\n")
	}

	return sb.String(), nil
}
