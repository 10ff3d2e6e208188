// ABOUTME: Report composition: adherence, classified reading averages, weight change, and narrative.
// ABOUTME: Narrative failures and timeouts fall back to static text; store failures are errors.
package report

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/harperreed/medtrack/internal/adherence"
	"github.com/harperreed/medtrack/internal/apperr"
	"github.com/harperreed/medtrack/internal/models"
	"github.com/harperreed/medtrack/internal/storage"
	"github.com/harperreed/medtrack/internal/vitals"
	"github.com/rs/zerolog"
)

// DefaultNarrativeTimeout bounds a single Narrator call.
const DefaultNarrativeTimeout = 20 * time.Second

// Fallback text used when the Narrator fails or returns nothing.
const (
	FallbackSummary        = "Your health summary for this period is ready. Review the numbers with your care team."
	FallbackRecommendation = "Keep taking medications on schedule and keep recording your readings."
)

// Store is the part of the record store the composer reads.
type Store interface {
	QueryDoseLogs(ctx context.Context, recipientID string, start, end time.Time) ([]*models.DoseLog, error)
	QueryHealthReadings(ctx context.Context, q storage.ReadingQuery) ([]*models.Reading, error)
}

// Composer builds reports for a recipient.
type Composer struct {
	store    Store
	narrator Narrator
	log      zerolog.Logger
	timeout  time.Duration
	locale   string
	now      func() time.Time
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the composer logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Composer) { c.log = l.With().Str("component", "report").Logger() }
}

// WithNarrativeTimeout bounds each Narrator call.
func WithNarrativeTimeout(d time.Duration) Option {
	return func(c *Composer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLocale sets the locale passed to the Narrator.
func WithLocale(locale string) Option {
	return func(c *Composer) {
		if locale != "" {
			c.locale = locale
		}
	}
}

// NewComposer creates a Composer. A nil narrator always yields the fallback text.
func NewComposer(store Store, narrator Narrator, opts ...Option) *Composer {
	c := &Composer{
		store:    store,
		narrator: narrator,
		log:      zerolog.Nop(),
		timeout:  DefaultNarrativeTimeout,
		locale:   "en",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose builds the report for [now - periodDays, now].
func (c *Composer) Compose(ctx context.Context, recipientID string, periodDays int) (*Report, error) {
	const op = "report.compose"

	if periodDays <= 0 {
		return nil, apperr.Validationf(op, "period must be at least one day, got %d", periodDays)
	}

	end := c.now()
	start := end.AddDate(0, 0, -periodDays)

	logs, err := c.store.QueryDoseLogs(ctx, recipientID, start, end)
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("query dose logs: %w", err))
	}
	window := adherence.Compute(logs, start, end)

	readings, err := c.store.QueryHealthReadings(ctx, storage.ReadingQuery{
		RecipientID: recipientID,
		Start:       &start,
		End:         &end,
	})
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("query readings: %w", err))
	}

	r := &Report{
		RecipientID: recipientID,
		Period:      Period{Start: start, End: end},
		Adherence:   window,
		Metrics:     BuildMetrics(readings),
		GeneratedAt: end,
	}

	n, source := c.narrate(ctx, Summary{
		RecipientID: recipientID,
		Period:      r.Period,
		Adherence:   r.Adherence,
		Metrics:     r.Metrics,
	})
	r.Summary, r.Recommendations, r.NarrativeSource = n.Summary, n.Recommendations, source
	return r, nil
}

// narrate calls the Narrator under its own timeout. Any failure, including
// cancellation of ctx, yields the fallback narrative.
func (c *Composer) narrate(ctx context.Context, data Summary) (Narrative, NarrativeSource) {
	if c.narrator == nil {
		return fallback(), SourceFallback
	}

	nctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.narrator.Summarize(nctx, data, c.locale)
	if err != nil {
		c.log.Warn().Err(err).Str("recipient_id", data.RecipientID).Msg("narrative failed, using fallback")
		return fallback(), SourceFallback
	}
	if n.Blank() {
		c.log.Warn().Str("recipient_id", data.RecipientID).Msg("narrative empty, using fallback")
		return fallback(), SourceFallback
	}
	if n.Summary == "" {
		n.Summary = FallbackSummary
	}
	if len(n.Recommendations) == 0 {
		n.Recommendations = []string{FallbackRecommendation}
	}
	return n, SourceGenerated
}

func fallback() Narrative {
	return Narrative{Summary: FallbackSummary, Recommendations: []string{FallbackRecommendation}}
}

// BuildMetrics reduces readings (any order) to per-type metrics. Types with no
// readings stay nil. Weight needs at least two readings to report a change.
func BuildMetrics(readings []*models.Reading) Metrics {
	byType := make(map[models.ReadingType][]*models.Reading)
	for _, r := range readings {
		byType[r.Type] = append(byType[r.Type], r)
	}

	var m Metrics
	if rs := byType[models.ReadingBloodPressure]; len(rs) > 0 {
		m.BloodPressure = bloodPressureMetric(rs)
	}
	if rs := byType[models.ReadingBloodSugar]; len(rs) > 0 {
		avg := math.Round(meanOf(rs))
		c := vitals.ClassifyBloodSugar(avg, false)
		m.BloodSugar = &ScalarMetric{
			Average: avg,
			Unit:    unitOf(rs, models.ReadingBloodSugar),
			Status:  c.Status,
			Message: c.Message,
			Count:   len(rs),
		}
	}
	if rs := byType[models.ReadingWeight]; len(rs) >= 2 {
		m.Weight = weightMetric(rs)
	}
	if rs := byType[models.ReadingHeartRate]; len(rs) > 0 {
		m.HeartRate = &ScalarMetric{
			Average: adherence.Round1(meanOf(rs)),
			Unit:    unitOf(rs, models.ReadingHeartRate),
			Count:   len(rs),
		}
	}
	if rs := byType[models.ReadingTemperature]; len(rs) > 0 {
		m.Temperature = &ScalarMetric{
			Average: adherence.Round1(meanOf(rs)),
			Unit:    unitOf(rs, models.ReadingTemperature),
			Count:   len(rs),
		}
	}
	return m
}

func bloodPressureMetric(rs []*models.Reading) *BloodPressureMetric {
	var sys, dia float64
	n := 0
	for _, r := range rs {
		if r.Pressure == nil {
			continue
		}
		sys += r.Pressure.Systolic
		dia += r.Pressure.Diastolic
		n++
	}
	if n == 0 {
		return nil
	}
	s := int(math.Round(sys / float64(n)))
	d := int(math.Round(dia / float64(n)))
	c := vitals.ClassifyBloodPressure(float64(s), float64(d))
	return &BloodPressureMetric{
		Systolic:  s,
		Diastolic: d,
		Unit:      unitOf(rs, models.ReadingBloodPressure),
		Status:    c.Status,
		Message:   c.Message,
		Count:     n,
	}
}

func weightMetric(rs []*models.Reading) *WeightMetric {
	newest, oldest := rs[0], rs[0]
	for _, r := range rs[1:] {
		if r.RecordedAt.After(newest.RecordedAt) {
			newest = r
		}
		if r.RecordedAt.Before(oldest.RecordedAt) {
			oldest = r
		}
	}
	return &WeightMetric{
		Current: newest.Value,
		Change:  adherence.Round1(newest.Value - oldest.Value),
		Unit:    unitOf(rs, models.ReadingWeight),
		Count:   len(rs),
	}
}

func meanOf(rs []*models.Reading) float64 {
	var sum float64
	for _, r := range rs {
		sum += r.Value
	}
	return sum / float64(len(rs))
}

func unitOf(rs []*models.Reading, t models.ReadingType) string {
	if len(rs) > 0 && rs[0].Unit != "" {
		return rs[0].Unit
	}
	return models.ReadingUnits[t]
}
