// ABOUTME: Health reading service: record, list, latest, and per-type statistics.
// ABOUTME: Recording a reading returns its threshold classification when the type has one.
package vitals

import (
	"context"
	"time"

	"github.com/harperreed/medtrack/internal/adherence"
	"github.com/harperreed/medtrack/internal/apperr"
	"github.com/harperreed/medtrack/internal/models"
	"github.com/harperreed/medtrack/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultStatsDays is the look-back for Stats when no period is given.
const DefaultStatsDays = 30

// Service records and summarizes health readings.
type Service struct {
	repo  storage.Repository
	log   zerolog.Logger
	trend adherence.TrendOptions
	now   func() time.Time
}

// NewService creates a reading service. Trend options with a zero window use the defaults.
func NewService(repo storage.Repository, log zerolog.Logger, trend adherence.TrendOptions) *Service {
	if trend.Window <= 0 {
		trend = adherence.DefaultTrendOptions
	}
	return &Service{
		repo:  repo,
		log:   log.With().Str("service", "vitals").Logger(),
		trend: trend,
		now:   time.Now,
	}
}

// Recorded is a stored reading with its classification, if the type has thresholds.
type Recorded struct {
	Reading        *models.Reading `json:"reading"`
	Classification *Classification `json:"classification,omitempty"`
}

// Record validates and stores r. Readings are immutable once stored.
func (s *Service) Record(ctx context.Context, r *models.Reading) (*Recorded, error) {
	const op = "vitals.record"

	if r == nil {
		return nil, apperr.Validationf(op, "reading is required")
	}
	if err := r.Validate(); err != nil {
		return nil, apperr.Validation(op, err)
	}
	if r.Unit == "" {
		r.Unit = models.ReadingUnits[r.Type]
	}
	now := s.now()
	if r.RecordedAt.IsZero() {
		r.RecordedAt = now
	}
	if r.RecordedAt.After(now.Add(time.Minute)) {
		return nil, apperr.Validationf(op, "reading cannot be recorded in the future")
	}
	r.CreatedAt = now

	if err := s.repo.CreateReading(ctx, r); err != nil {
		return nil, apperr.Internal(op, err)
	}

	out := &Recorded{Reading: r}
	if c, ok := Classify(r); ok {
		out.Classification = &c
		if c.Status != StatusNormal {
			s.log.Info().
				Str("recipient_id", r.RecipientID).
				Str("type", string(r.Type)).
				Str("status", string(c.Status)).
				Msg("reading outside normal range")
		}
	}
	return out, nil
}

// List returns a recipient's readings, newest first. A nil type lists every
// type; days <= 0 means all time; limit <= 0 means no limit.
func (s *Service) List(ctx context.Context, recipientID string, readingType *models.ReadingType, days, limit int) ([]*models.Reading, error) {
	q := storage.ReadingQuery{RecipientID: recipientID, Type: readingType, Limit: limit}
	if days > 0 {
		start := s.now().AddDate(0, 0, -days)
		q.Start = &start
	}
	readings, err := s.repo.QueryHealthReadings(ctx, q)
	if err != nil {
		return nil, apperr.Internal("vitals.list", err)
	}
	return readings, nil
}

// Latest returns the most recently recorded reading of a type.
func (s *Service) Latest(ctx context.Context, recipientID string, readingType models.ReadingType) (*models.Reading, error) {
	readings, err := s.List(ctx, recipientID, &readingType, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, apperr.NotFound("vitals.latest", string(readingType)+" reading", recipientID)
	}
	return readings[0], nil
}

// Stats summarizes a type over the last days days. Blood pressure uses the
// systolic series. ok is false when there are no readings in range.
func (s *Service) Stats(ctx context.Context, recipientID string, readingType models.ReadingType, days int) (adherence.Stats, bool, error) {
	if days <= 0 {
		return adherence.Stats{}, false, apperr.Validationf("vitals.stats", "period must be at least one day, got %d", days)
	}
	readings, err := s.List(ctx, recipientID, &readingType, days, 0)
	if err != nil {
		return adherence.Stats{}, false, err
	}

	series := make([]float64, len(readings))
	for i, r := range readings {
		// readings are newest first; the series runs oldest first.
		series[len(readings)-1-i] = r.Primary()
	}
	stats, ok := s.trend.Summarize(series)
	return stats, ok, nil
}
