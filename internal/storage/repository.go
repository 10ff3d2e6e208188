// ABOUTME: Repository interface for medication, dose log, and health reading storage.
// ABOUTME: Defines the record store contract shared by the SQLite, Badger, and Postgres backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/medtrack/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional update finds the record in a different state.
	ErrConflict = errors.New("conflict")
	// ErrAmbiguousID is returned when an ID prefix matches more than one record.
	ErrAmbiguousID = errors.New("ambiguous id prefix")
)

// MedicationFilter narrows ListMedications. An empty RecipientID lists every recipient.
type MedicationFilter struct {
	RecipientID string
	ActiveOnly  bool
}

// MedicationChanges lists the descriptive fields UpdateMedication writes.
// Nil fields are left as stored. Stock and the active flag are never touched.
type MedicationChanges struct {
	Name       *string
	Dosage     *float64
	DosageUnit *string
	Frequency  *string
	Times      []string
	EndDate    *time.Time
	Notes      *string
	UpdatedAt  time.Time
}

// ReadingQuery narrows QueryHealthReadings. Nil bounds are open; Limit <= 0 means no limit.
type ReadingQuery struct {
	RecipientID string
	Type        *models.ReadingType
	Start       *time.Time
	End         *time.Time
	Limit       int
}

// Repository defines the storage interface for medtrack data.
// Every backend must make InsertDoseInstances idempotent per
// (medication, scheduled time) and UpdateDoseLogStatus a compare-and-swap.
type Repository interface {
	// Medication operations
	CreateMedication(ctx context.Context, m *models.Medication) error
	// CreateMedicationWithDoses stores m and its first dose logs together;
	// either both are written or neither is. It returns how many logs were inserted.
	CreateMedicationWithDoses(ctx context.Context, m *models.Medication, logs []*models.DoseLog) (int, error)
	GetMedication(ctx context.Context, idOrPrefix string) (*models.Medication, error)
	ListMedications(ctx context.Context, filter MedicationFilter) ([]*models.Medication, error)
	// UpdateMedication applies c in one conditional write. Times are only
	// written while no dose log references the medication; otherwise it
	// returns ErrConflict and nothing changes.
	UpdateMedication(ctx context.Context, id uuid.UUID, c MedicationChanges) error
	// UpdateMedicationStock sets the current stock, recording it as the
	// initial stock when tracking was off.
	UpdateMedicationStock(ctx context.Context, id uuid.UUID, stock int) error
	// DecrementMedicationStock lowers tracked stock by one, never below zero.
	// It returns the new stock, or nil when the medication does not track stock.
	DecrementMedicationStock(ctx context.Context, id uuid.UUID) (*int, error)
	DeactivateMedication(ctx context.Context, id uuid.UUID) error

	// Dose log operations
	// InsertDoseInstances skips logs whose (medication, scheduled time) already
	// exists and returns how many were inserted.
	InsertDoseInstances(ctx context.Context, logs []*models.DoseLog) (int, error)
	GetDoseLog(ctx context.Context, idOrPrefix string) (*models.DoseLog, error)
	// UpdateDoseLogStatus moves a log from expected to next. It returns
	// ErrNotFound for a missing log and ErrConflict when the status is not expected.
	UpdateDoseLogStatus(ctx context.Context, id uuid.UUID, expected, next models.DoseStatus, takenAt *time.Time) (*models.DoseLog, error)
	// QueryDoseLogs returns logs scheduled in [start, end], oldest first.
	// Zero bounds are open and an empty recipient matches everyone.
	QueryDoseLogs(ctx context.Context, recipientID string, start, end time.Time) ([]*models.DoseLog, error)
	CountDoseLogs(ctx context.Context, medicationID uuid.UUID) (int, error)

	// Health reading operations
	CreateReading(ctx context.Context, r *models.Reading) error
	// QueryHealthReadings returns readings newest first.
	QueryHealthReadings(ctx context.Context, q ReadingQuery) ([]*models.Reading, error)

	// Lifecycle
	Close() error
}

// looksLikeUUID reports whether s has the shape of a full UUID string.
func looksLikeUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}

// inRange reports whether t is inside [start, end], treating zero bounds as open.
func inRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}
