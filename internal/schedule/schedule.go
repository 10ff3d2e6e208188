// ABOUTME: Dose instance generation from a medication's dosing times.
// ABOUTME: Produces pending dose logs for consecutive calendar days; validation is all-or-nothing.
package schedule

import (
	"time"

	"github.com/harperreed/medtrack/internal/apperr"
	"github.com/harperreed/medtrack/internal/models"
)

// DefaultHorizonDays is how many days of doses are seeded when a medication is created.
const DefaultHorizonDays = 7

// GenerateDoseInstances returns one pending dose log per (day, time) for
// horizonDays consecutive days starting on from's calendar day, in from's
// location. Days are the outer loop; times keep the medication's order.
// Nothing is returned when any dosing time is malformed.
func GenerateDoseInstances(med *models.Medication, from time.Time, horizonDays int) ([]*models.DoseLog, error) {
	const op = "schedule.generate"

	if med == nil {
		return nil, apperr.Validationf(op, "medication is required")
	}
	if horizonDays <= 0 {
		return nil, apperr.Validationf(op, "horizon must be at least one day, got %d", horizonDays)
	}

	times, err := models.ParseTimes(med.Times)
	if err != nil {
		return nil, apperr.Validation(op, err).WithContext("medication_id", med.ID.String())
	}

	first := models.StartOfDay(from)
	logs := make([]*models.DoseLog, 0, len(times)*horizonDays)
	for i := 0; i < horizonDays; i++ {
		day := first.AddDate(0, 0, i)
		used := make(map[int64]bool, len(times))
		for _, tod := range times {
			at := tod.On(day)
			// A time moved forward by a clock change can land on another dosing
			// time; it takes the next free minute instead.
			for used[at.Unix()] {
				at = at.Add(time.Minute)
			}
			used[at.Unix()] = true
			logs = append(logs, models.NewDoseLog(med, at))
		}
	}
	return logs, nil
}

// ClipRange narrows [from, from+days) to the medication's active date range.
// It returns the new start and day count; a count of zero means nothing to schedule.
func ClipRange(med *models.Medication, from time.Time, days int) (time.Time, int) {
	start := models.StartOfDay(from)
	medStart := models.StartOfDay(med.StartDate.In(from.Location()))
	if start.Before(medStart) {
		days -= daysBetween(start, medStart)
		start = medStart
	}
	if med.EndDate != nil {
		end := models.StartOfDay(med.EndDate.In(from.Location()))
		if maxDays := daysBetween(start, end) + 1; days > maxDays {
			days = maxDays
		}
	}
	if days < 0 {
		days = 0
	}
	return start, days
}

// daysBetween counts calendar days from a to b, both at midnight in the same location.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
