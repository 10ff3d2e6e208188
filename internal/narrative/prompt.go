// ABOUTME: Prompt text shared by the language-model narrators.
// ABOUTME: Only the structured numeric summary is sent, never raw readings.
package narrative

import (
	"fmt"
	"strings"

	"github.com/harperreed/medtrack/internal/report"
)

// Request parameters shared by the language-model narrators.
const (
	Temperature = 0.7
	MaxTokens   = 600
)

const systemPrompt = `You are a friendly health assistant for older adults and their caregivers.
You summarize a period of medication adherence and vital-sign averages.

Rules:
- Use short, clear sentences and an encouraging tone.
- Give general lifestyle guidance only. Never diagnose or prescribe.
- When a value is high or in a crisis range, recommend contacting a doctor.

Reply with a JSON object only:
{"summary": "<3-5 sentence summary>", "recommendations": ["<3-5 short recommendations>"]}`

var languageNames = map[string]string{
	"en": "English",
	"ko": "Korean",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"ja": "Japanese",
}

// buildPrompt renders the period summary as the user message.
func buildPrompt(data report.Summary, locale string) string {
	var sb strings.Builder
	sb.WriteString("Health report data:\n")
	sb.WriteString(fmt.Sprintf("- Period: %s\n", data.Period))

	a := data.Adherence
	if a.TotalDoses > 0 {
		sb.WriteString(fmt.Sprintf("- Medication adherence: %d%% (%d of %d scheduled doses taken, %d missed)\n",
			a.Rate, a.TakenDoses, a.TotalDoses, a.MissedDoses))
	} else {
		sb.WriteString("- Medication adherence: no doses were scheduled\n")
	}

	m := data.Metrics
	if bp := m.BloodPressure; bp != nil {
		sb.WriteString(fmt.Sprintf("- Average blood pressure: %d/%d %s over %d readings (%s)\n",
			bp.Systolic, bp.Diastolic, bp.Unit, bp.Count, bp.Status))
	}
	if bs := m.BloodSugar; bs != nil {
		sb.WriteString(fmt.Sprintf("- Average blood sugar: %g %s over %d readings (%s)\n",
			bs.Average, bs.Unit, bs.Count, bs.Status))
	}
	if w := m.Weight; w != nil {
		sb.WriteString(fmt.Sprintf("- Weight: %g %s, change %+g %s\n", w.Current, w.Unit, w.Change, w.Unit))
	}
	if hr := m.HeartRate; hr != nil {
		sb.WriteString(fmt.Sprintf("- Average heart rate: %g %s\n", hr.Average, hr.Unit))
	}
	if t := m.Temperature; t != nil {
		sb.WriteString(fmt.Sprintf("- Average temperature: %g %s\n", t.Average, t.Unit))
	}

	lang, ok := languageNames[strings.ToLower(locale)]
	if !ok {
		lang = "English"
	}
	sb.WriteString(fmt.Sprintf("\nWrite the summary and recommendations in %s.\n", lang))
	return sb.String()
}
