// ABOUTME: Medication service: create, update, restock, soft delete, and schedule extension.
// ABOUTME: Creating a medication seeds its first horizon of pending dose logs.
package medication

import (
	"context"
	"errors"
	"time"

	"github.com/harperreed/medtrack/internal/apperr"
	"github.com/harperreed/medtrack/internal/models"
	"github.com/harperreed/medtrack/internal/schedule"
	"github.com/harperreed/medtrack/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultLowStockThreshold is the stock level at or below which a medication is reported as low.
const DefaultLowStockThreshold = 5

// Service manages medication definitions and their dose schedules.
type Service struct {
	repo        storage.Repository
	log         zerolog.Logger
	loc         *time.Location
	horizonDays int
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l.With().Str("service", "medication").Logger() }
}

// WithLocation sets the zone whose calendar days schedules are generated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithHorizon sets how many days of doses are seeded on create.
func WithHorizon(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.horizonDays = days
		}
	}
}

// NewService creates a medication service over repo.
func NewService(repo storage.Repository, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		log:         zerolog.Nop(),
		loc:         time.Local,
		horizonDays: schedule.DefaultHorizonDays,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and stores m, then seeds the first horizon of dose logs
// starting today, or on the start date when that is later. It returns how many
// dose logs were seeded.
func (s *Service) Create(ctx context.Context, m *models.Medication) (int, error) {
	const op = "medication.create"

	if m == nil {
		return 0, apperr.Validationf(op, "medication is required")
	}
	if err := m.Validate(); err != nil {
		return 0, apperr.Validation(op, err)
	}

	now := s.now()
	m.CreatedAt, m.UpdatedAt = now, now

	from := s.today()
	if start := models.StartOfDay(m.StartDate.In(s.loc)); start.After(from) {
		from = start
	}
	logs, err := s.plan(m, from, s.horizonDays)
	if err != nil {
		return 0, err
	}
	seeded, err := s.repo.CreateMedicationWithDoses(ctx, m, logs)
	if err != nil {
		return 0, apperr.Internal(op, err)
	}

	s.log.Debug().
		Str("medication_id", m.ID.String()).
		Str("recipient_id", m.RecipientID).
		Int("seeded", seeded).
		Msg("medication created")
	return seeded, nil
}

// Get returns a medication by ID or unique prefix.
func (s *Service) Get(ctx context.Context, idOrPrefix string) (*models.Medication, error) {
	m, err := s.repo.GetMedication(ctx, idOrPrefix)
	if err != nil {
		return nil, storage.AppError("medication.get", "medication", idOrPrefix, err)
	}
	return m, nil
}

// List returns a recipient's medications. An empty recipient lists everyone's.
func (s *Service) List(ctx context.Context, recipientID string, activeOnly bool) ([]*models.Medication, error) {
	meds, err := s.repo.ListMedications(ctx, storage.MedicationFilter{RecipientID: recipientID, ActiveOnly: activeOnly})
	if err != nil {
		return nil, apperr.Internal("medication.list", err)
	}
	return meds, nil
}

// Update holds the fields to change; nil fields are left as they are.
type Update struct {
	Name       *string
	Dosage     *float64
	DosageUnit *string
	Frequency  *string
	Times      []string
	EndDate    *time.Time
	Notes      *string
	Stock      *int
}

// Update applies u to the medication. Only the fields set in u are written,
// so concurrent dose taking and soft deletes are never undone. Dosing times can
// only change while no dose logs exist, since existing logs are keyed by their
// scheduled time.
func (s *Service) Update(ctx context.Context, idOrPrefix string, u Update) (*models.Medication, error) {
	const op = "medication.update"

	m, err := s.Get(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}

	c := storage.MedicationChanges{
		Name:       u.Name,
		Dosage:     u.Dosage,
		DosageUnit: u.DosageUnit,
		Frequency:  u.Frequency,
		Notes:      u.Notes,
		UpdatedAt:  s.now(),
	}

	// Validate the merged result before writing anything.
	merged := *m
	if u.Times != nil && !sameTimes(u.Times, m.Times) {
		c.Times = u.Times
		merged.Times = u.Times
	}
	if u.Name != nil {
		merged.Name = *u.Name
	}
	if u.Dosage != nil {
		merged.Dosage = *u.Dosage
	}
	if u.DosageUnit != nil {
		merged.DosageUnit = *u.DosageUnit
	}
	if u.Frequency != nil {
		merged.Frequency = *u.Frequency
	}
	if u.EndDate != nil {
		merged.WithEndDate(*u.EndDate)
		c.EndDate = merged.EndDate
	}
	if u.Notes != nil {
		merged.Notes = u.Notes
	}
	if u.Stock != nil {
		stock := *u.Stock
		merged.CurrentStock = &stock
	}
	if err := merged.Validate(); err != nil {
		return nil, apperr.Validation(op, err)
	}

	err = s.repo.UpdateMedication(ctx, m.ID, c)
	if errors.Is(err, storage.ErrConflict) {
		return nil, apperr.StateConflict(op, "dosing times cannot change once doses are scheduled").
			WithContext("medication_id", m.ID.String())
	}
	if err != nil {
		return nil, storage.AppError(op, "medication", idOrPrefix, err)
	}
	if u.Stock != nil {
		if err := s.repo.UpdateMedicationStock(ctx, m.ID, *u.Stock); err != nil {
			return nil, storage.AppError(op, "medication", idOrPrefix, err)
		}
	}
	return s.Get(ctx, m.ID.String())
}

// Restock sets the current stock, turning on stock tracking if it was off.
func (s *Service) Restock(ctx context.Context, idOrPrefix string, stock int) (*models.Medication, error) {
	const op = "medication.restock"

	if stock < 0 {
		return nil, apperr.Validationf(op, "stock cannot be negative, got %d", stock)
	}
	m, err := s.Get(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateMedicationStock(ctx, m.ID, stock); err != nil {
		return nil, storage.AppError(op, "medication", idOrPrefix, err)
	}
	m.CurrentStock = &stock

	s.log.Info().Str("medication_id", m.ID.String()).Int("stock", stock).Msg("medication restocked")
	return m, nil
}

// Delete soft-deletes a medication. Its dose logs are kept for adherence history.
func (s *Service) Delete(ctx context.Context, idOrPrefix string) (*models.Medication, error) {
	m, err := s.Get(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeactivateMedication(ctx, m.ID); err != nil {
		return nil, storage.AppError("medication.delete", "medication", idOrPrefix, err)
	}
	m.Active = false
	return m, nil
}

// ExtendSchedule inserts dose logs for days days starting at from's calendar
// day, clipped to the medication's start and end dates. Existing slots are
// skipped, so overlapping calls are safe. It returns how many logs were inserted.
func (s *Service) ExtendSchedule(ctx context.Context, idOrPrefix string, from time.Time, days int) (int, error) {
	if days <= 0 {
		return 0, apperr.Validationf("medication.extend", "days must be at least one, got %d", days)
	}
	m, err := s.Get(ctx, idOrPrefix)
	if err != nil {
		return 0, err
	}
	return s.extend(ctx, m, from.In(s.loc), days)
}

// ExtendAll extends every active medication by days days from today. Failures
// for one medication do not stop the others; they are joined into the returned error.
func (s *Service) ExtendAll(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, apperr.Validationf("medication.extend_all", "days must be at least one, got %d", days)
	}
	meds, err := s.List(ctx, "", true)
	if err != nil {
		return 0, err
	}

	total := 0
	var errs []error
	for _, m := range meds {
		n, err := s.extend(ctx, m, s.today(), days)
		if err != nil {
			s.log.Error().Err(err).Str("medication_id", m.ID.String()).Msg("extend schedule failed")
			errs = append(errs, err)
			continue
		}
		total += n
	}

	s.log.Info().Int("medications", len(meds)).Int("inserted", total).Msg("schedules extended")
	return total, errors.Join(errs...)
}

// LowStock lists active medications whose tracked stock is at or below threshold.
func (s *Service) LowStock(ctx context.Context, recipientID string, threshold int) ([]*models.Medication, error) {
	if threshold < 0 {
		return nil, apperr.Validationf("medication.low_stock", "threshold cannot be negative, got %d", threshold)
	}
	meds, err := s.List(ctx, recipientID, true)
	if err != nil {
		return nil, err
	}

	var low []*models.Medication
	for _, m := range meds {
		if m.TracksStock() && *m.CurrentStock <= threshold {
			low = append(low, m)
		}
	}
	return low, nil
}

// plan generates the pending logs for days days from from, clipped to the
// medication's dates. Inactive medications get none.
func (s *Service) plan(m *models.Medication, from time.Time, days int) ([]*models.DoseLog, error) {
	if !m.Active {
		return nil, nil
	}
	start, n := schedule.ClipRange(m, from, days)
	if n == 0 {
		return nil, nil
	}
	logs, err := schedule.GenerateDoseInstances(m, start, n)
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("medication_id", m.ID.String()).
		Time("from", start).
		Int("days", n).
		Int("generated", len(logs)).
		Msg("dose logs generated")
	return logs, nil
}

func (s *Service) extend(ctx context.Context, m *models.Medication, from time.Time, days int) (int, error) {
	const op = "medication.extend"

	logs, err := s.plan(m, from, days)
	if err != nil || len(logs) == 0 {
		return 0, err
	}
	inserted, err := s.repo.InsertDoseInstances(ctx, logs)
	if err != nil {
		return 0, storage.AppError(op, "medication", m.ID.String(), err)
	}

	s.log.Debug().
		Str("medication_id", m.ID.String()).
		Int("inserted", inserted).
		Msg("dose logs inserted")
	return inserted, nil
}

func (s *Service) today() time.Time {
	return models.StartOfDay(s.now().In(s.loc))
}

func sameTimes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
