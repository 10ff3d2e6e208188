// ABOUTME: Report renderings: plain text, JSON, YAML, and Markdown.
// ABOUTME: Absent metric types are left out of every format.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format names a report rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts a format name; "md" and "yml" are aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown report format %q (use text, json, yaml, or markdown)", s)
	}
}

// Encode renders r in the given format.
func Encode(r *Report, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(r, "", "  ")
	case FormatYAML:
		return yaml.Marshal(r)
	case FormatMarkdown:
		return []byte(Markdown(r)), nil
	case FormatText, "":
		return []byte(Text(r)), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// metricLines returns one "label: value" line per present metric.
func metricLines(m Metrics) []string {
	var lines []string
	if bp := m.BloodPressure; bp != nil {
		lines = append(lines, fmt.Sprintf("Blood pressure: %d/%d %s average over %d readings (%s)",
			bp.Systolic, bp.Diastolic, bp.Unit, bp.Count, bp.Status))
	}
	if bs := m.BloodSugar; bs != nil {
		lines = append(lines, fmt.Sprintf("Blood sugar: %g %s average over %d readings (%s)",
			bs.Average, bs.Unit, bs.Count, bs.Status))
	}
	if w := m.Weight; w != nil {
		lines = append(lines, fmt.Sprintf("Weight: %g %s (%+g %s over %d readings)",
			w.Current, w.Unit, w.Change, w.Unit, w.Count))
	}
	if hr := m.HeartRate; hr != nil {
		lines = append(lines, fmt.Sprintf("Heart rate: %g %s average over %d readings", hr.Average, hr.Unit, hr.Count))
	}
	if t := m.Temperature; t != nil {
		lines = append(lines, fmt.Sprintf("Temperature: %g %s average over %d readings", t.Average, t.Unit, t.Count))
	}
	return lines
}

// Text renders r for a terminal.
func Text(r *Report) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Health report for %s (%s)\n\n", r.RecipientID, r.Period))
	sb.WriteString(fmt.Sprintf("Adherence: %d%% (%d of %d doses taken, %d missed)\n",
		r.Adherence.Rate, r.Adherence.TakenDoses, r.Adherence.TotalDoses, r.Adherence.MissedDoses))
	for _, line := range metricLines(r.Metrics) {
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n" + r.Summary + "\n")
	if len(r.Recommendations) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for _, rec := range r.Recommendations {
			sb.WriteString("  - " + rec + "\n")
		}
	}
	return sb.String()
}

// Markdown renders r as a Markdown document.
func Markdown(r *Report) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Health Report - %s\n\n", r.RecipientID))
	sb.WriteString(fmt.Sprintf("Period: %s\n\n", r.Period))

	sb.WriteString("## Medication adherence\n\n")
	sb.WriteString("| Rate | Taken | Missed | Total |\n")
	sb.WriteString("|------|-------|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| %d%% | %d | %d | %d |\n\n",
		r.Adherence.Rate, r.Adherence.TakenDoses, r.Adherence.MissedDoses, r.Adherence.TotalDoses))

	if lines := metricLines(r.Metrics); len(lines) > 0 {
		sb.WriteString("## Health metrics\n\n")
		for _, line := range lines {
			sb.WriteString("- " + line + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Summary\n\n")
	sb.WriteString(r.Summary + "\n\n")

	sb.WriteString("## Recommendations\n\n")
	for _, rec := range r.Recommendations {
		sb.WriteString("- " + rec + "\n")
	}
	return sb.String()
}
