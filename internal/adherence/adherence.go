// ABOUTME: Adherence rate computation over a window of dose logs.
// ABOUTME: Calculator pulls logs from the record store and clamps windows to the present.
package adherence

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/harperreed/medtrack/internal/apperr"
	"github.com/harperreed/medtrack/internal/models"
)

// DefaultRateDays is the look-back used when no period is given.
const DefaultRateDays = 30

// Window is the adherence summary for a time window. It is always derived, never stored.
type Window struct {
	Start       time.Time `json:"start" yaml:"start"`
	End         time.Time `json:"end" yaml:"end"`
	Rate        int       `json:"rate" yaml:"rate"`
	TotalDoses  int       `json:"total_doses" yaml:"total_doses"`
	TakenDoses  int       `json:"taken_doses" yaml:"taken_doses"`
	MissedDoses int       `json:"missed_doses" yaml:"missed_doses"`
}

// Compute counts logs scheduled within [start, end] inclusive. Skipped and
// pending doses both count as missed. An empty window yields a zero rate.
func Compute(logs []*models.DoseLog, start, end time.Time) Window {
	w := Window{Start: start, End: end}
	for _, l := range logs {
		if l.ScheduledTime.Before(start) || l.ScheduledTime.After(end) {
			continue
		}
		w.TotalDoses++
		if l.Status == models.DoseTaken {
			w.TakenDoses++
		}
	}
	w.MissedDoses = w.TotalDoses - w.TakenDoses
	if w.TotalDoses > 0 {
		w.Rate = int(math.Round(float64(w.TakenDoses) / float64(w.TotalDoses) * 100))
	}
	return w
}

// DoseLogQuerier is the slice of the record store the calculator reads from.
type DoseLogQuerier interface {
	QueryDoseLogs(ctx context.Context, recipientID string, start, end time.Time) ([]*models.DoseLog, error)
}

// Calculator computes adherence for a recipient from stored dose logs.
type Calculator struct {
	store DoseLogQuerier
	now   func() time.Time
}

// NewCalculator creates a Calculator backed by store.
func NewCalculator(store DoseLogQuerier) *Calculator {
	return &Calculator{store: store, now: time.Now}
}

// Rate returns adherence over the last days days, ending now.
func (c *Calculator) Rate(ctx context.Context, recipientID string, days int) (Window, error) {
	if days <= 0 {
		return Window{}, apperr.Validationf("adherence.rate", "period must be at least one day, got %d", days)
	}
	end := c.now()
	return c.Between(ctx, recipientID, end.AddDate(0, 0, -days), end)
}

// Between returns adherence over [start, end]. An end in the future is pulled
// back to now so doses that are not yet due are never counted as missed.
func (c *Calculator) Between(ctx context.Context, recipientID string, start, end time.Time) (Window, error) {
	if now := c.now(); end.After(now) {
		end = now
	}
	if end.Before(start) {
		return Window{}, apperr.Validationf("adherence.between", "window ends before it starts")
	}
	logs, err := c.store.QueryDoseLogs(ctx, recipientID, start, end)
	if err != nil {
		return Window{}, fmt.Errorf("query dose logs: %w", err)
	}
	return Compute(logs, start, end), nil
}
