// ABOUTME: Dose log lifecycle: pending doses move once to taken or skipped.
// ABOUTME: Transitions are compare-and-swap updates in the store; taking a dose decrements stock.
package dose

import (
	"context"
	"errors"
	"time"

	"github.com/harperreed/medtrack/internal/apperr"
	"github.com/harperreed/medtrack/internal/models"
	"github.com/harperreed/medtrack/internal/storage"
	"github.com/rs/zerolog"
)

// Service records what happened to scheduled doses.
type Service struct {
	repo storage.Repository
	log  zerolog.Logger
	loc  *time.Location
	now  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l.With().Str("service", "dose").Logger() }
}

// WithLocation sets the zone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewService creates a dose service over repo.
func NewService(repo storage.Repository, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		log:  zerolog.Nop(),
		loc:  time.Local,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarkTaken moves a pending dose to taken, stamps the taken time, and lowers
// the medication's tracked stock by one (never below zero). A dose that is
// already taken or skipped yields a state conflict and leaves stock alone.
func (s *Service) MarkTaken(ctx context.Context, idOrPrefix string) (*models.DoseLog, error) {
	const op = "dose.mark_taken"

	now := s.now()
	l, err := s.transition(ctx, op, idOrPrefix, models.DoseTaken, &now)
	if err != nil {
		return l, err
	}

	stock, err := s.repo.DecrementMedicationStock(ctx, l.MedicationID)
	switch {
	case err != nil:
		// The dose stays recorded even when the decrement fails.
		s.log.Error().Err(err).
			Str("dose_id", l.ID.String()).
			Str("medication_id", l.MedicationID.String()).
			Msg("stock decrement failed")
	case stock != nil:
		s.log.Debug().Str("medication_id", l.MedicationID.String()).Int("stock", *stock).Msg("stock decremented")
	}
	return l, nil
}

// MarkSkipped moves a pending dose to skipped. Stock is not touched.
func (s *Service) MarkSkipped(ctx context.Context, idOrPrefix string) (*models.DoseLog, error) {
	return s.transition(ctx, "dose.mark_skipped", idOrPrefix, models.DoseSkipped, nil)
}

func (s *Service) transition(ctx context.Context, op, idOrPrefix string, next models.DoseStatus, takenAt *time.Time) (*models.DoseLog, error) {
	l, err := s.repo.GetDoseLog(ctx, idOrPrefix)
	if err != nil {
		return nil, storage.AppError(op, "dose log", idOrPrefix, err)
	}
	if l.Status != models.DosePending {
		return l, alreadyRecorded(op, l)
	}

	updated, err := s.repo.UpdateDoseLogStatus(ctx, l.ID, models.DosePending, next, takenAt)
	if errors.Is(err, storage.ErrConflict) && updated != nil {
		// Another caller won the race.
		return updated, alreadyRecorded(op, updated)
	}
	if err != nil {
		return nil, storage.AppError(op, "dose log", idOrPrefix, err)
	}

	s.log.Debug().
		Str("dose_id", updated.ID.String()).
		Str("medication", updated.MedicationName).
		Str("status", string(updated.Status)).
		Msg("dose recorded")
	return updated, nil
}

func alreadyRecorded(op string, l *models.DoseLog) error {
	return apperr.StateConflict(op, "dose already recorded as "+string(l.Status)).
		WithContext("dose_id", l.ID.String()).
		WithContext("status", string(l.Status))
}

// Today returns the recipient's doses scheduled on the current local calendar day.
func (s *Service) Today(ctx context.Context, recipientID string) ([]*models.DoseLog, error) {
	start := models.StartOfDay(s.now().In(s.loc))
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return s.List(ctx, recipientID, start, end)
}

// List returns the recipient's doses scheduled in [start, end], oldest first.
func (s *Service) List(ctx context.Context, recipientID string, start, end time.Time) ([]*models.DoseLog, error) {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, apperr.Validationf("dose.list", "range ends before it starts")
	}
	logs, err := s.repo.QueryDoseLogs(ctx, recipientID, start, end)
	if err != nil {
		return nil, apperr.Internal("dose.list", err)
	}
	return logs, nil
}
