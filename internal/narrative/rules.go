// ABOUTME: Deterministic narrator built from adherence tiers and metric statuses.
// ABOUTME: Used when no language model is configured and as the offline default.
package narrative

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/harperreed/medtrack/internal/report"
	"github.com/harperreed/medtrack/internal/vitals"
)

// Adherence tiers used by the rule narrator.
const (
	GoodAdherence      = 90
	ModerateAdherence  = 70
	NotableWeightDelta = 2.0
)

// Rules is a report.Narrator that needs no external service. Text is English
// regardless of locale.
type Rules struct{}

var _ report.Narrator = Rules{}

// Summarize implements report.Narrator.
func (Rules) Summarize(ctx context.Context, data report.Summary, locale string) (report.Narrative, error) {
	if err := ctx.Err(); err != nil {
		return report.Narrative{}, err
	}

	var sentences []string
	var recs []string

	a := data.Adherence
	switch {
	case a.TotalDoses == 0:
		sentences = append(sentences, "No medication doses were scheduled this period.")
	case a.Rate >= GoodAdherence:
		sentences = append(sentences, fmt.Sprintf("Medication adherence was excellent at %d%% (%d of %d doses taken).",
			a.Rate, a.TakenDoses, a.TotalDoses))
	case a.Rate >= ModerateAdherence:
		sentences = append(sentences, fmt.Sprintf("Medication adherence was fair at %d%% (%d of %d doses taken).",
			a.Rate, a.TakenDoses, a.TotalDoses))
		recs = append(recs, fmt.Sprintf("%d doses were missed. A daily phone reminder can help.", a.MissedDoses))
	default:
		sentences = append(sentences, fmt.Sprintf("Medication adherence was low at %d%% (%d of %d doses taken).",
			a.Rate, a.TakenDoses, a.TotalDoses))
		recs = append(recs, fmt.Sprintf("%d doses were missed. Talk with your care team about a simpler schedule or a pill organizer.", a.MissedDoses))
	}

	m := data.Metrics
	if bp := m.BloodPressure; bp != nil {
		sentences = append(sentences, fmt.Sprintf("Average blood pressure was %d/%d %s.", bp.Systolic, bp.Diastolic, bp.Unit))
		switch bp.Status {
		case vitals.StatusVeryHigh:
			recs = append(recs, "Blood pressure averaged in the crisis range. Contact a doctor right away.")
		case vitals.StatusHigh:
			recs = append(recs, "Blood pressure is high. Share these readings with your doctor soon.")
		case vitals.StatusElevated:
			recs = append(recs, "Blood pressure is elevated. Cut back on salt and keep measuring daily.")
		}
	}
	if bs := m.BloodSugar; bs != nil {
		sentences = append(sentences, fmt.Sprintf("Average blood sugar was %g %s.", bs.Average, bs.Unit))
		switch bs.Status {
		case vitals.StatusDiabetes:
			recs = append(recs, "Blood sugar is in the diabetes range. Review it with your doctor.")
		case vitals.StatusElevated:
			recs = append(recs, "Blood sugar is elevated. Watch sweets and refined carbohydrates.")
		}
	}
	if w := m.Weight; w != nil {
		sentences = append(sentences, fmt.Sprintf("Weight is %g %s (%+g %s).", w.Current, w.Unit, w.Change, w.Unit))
		if math.Abs(w.Change) >= NotableWeightDelta {
			recs = append(recs, "Weight changed noticeably. Mention it at the next checkup.")
		}
	}
	if m.Empty() {
		recs = append(recs, "Record blood pressure and weight a few times a week to track trends.")
	}
	if len(recs) == 0 {
		recs = append(recs, "Keep up the current routine.")
	}

	return report.Narrative{Summary: strings.Join(sentences, " "), Recommendations: recs}, nil
}
