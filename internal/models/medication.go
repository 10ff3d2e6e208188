// ABOUTME: Medication model and HH:MM time-of-day parsing for dosing schedules.
// ABOUTME: Medications own an ordered list of dosing times and optional stock tracking.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTimeOfDay is returned when a dosing time is not a valid HH:MM string.
var ErrInvalidTimeOfDay = errors.New("invalid time of day")

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a strict two-digit "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' {
		return TimeOfDay{}, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidTimeOfDay, s)
	}
	hour, ok := twoDigits(s[0:2])
	if !ok || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: %q hour must be 00-23", ErrInvalidTimeOfDay, s)
	}
	minute, ok := twoDigits(s[3:5])
	if !ok || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q minute must be 00-59", ErrInvalidTimeOfDay, s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func twoDigits(s string) (int, bool) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// String formats the time as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant at this time of day on the calendar day of d, in d's
// location. A wall time skipped by a forward clock change is read with the
// offset in effect before the change, so 02:30 on a spring-forward night
// becomes 03:30.
func (t TimeOfDay) On(d time.Time) time.Time {
	y, m, day := d.Date()
	loc := d.Location()
	at := time.Date(y, m, day, t.Hour, t.Minute, 0, 0, loc)
	if at.Hour() == t.Hour && at.Minute() == t.Minute {
		return at
	}

	// Noon the day before precedes any same-day transition.
	_, offset := time.Date(y, m, day-1, 12, 0, 0, 0, loc).Zone()
	wall := time.Date(y, m, day, t.Hour, t.Minute, 0, 0, time.UTC)
	return wall.Add(-time.Duration(offset) * time.Second).In(loc)
}

// ParseTimes validates a list of dosing times. It fails on the first malformed
// or duplicated entry and returns nothing in that case.
func ParseTimes(times []string) ([]TimeOfDay, error) {
	if len(times) == 0 {
		return nil, errors.New("at least one dosing time is required")
	}
	parsed := make([]TimeOfDay, 0, len(times))
	seen := make(map[TimeOfDay]bool, len(times))
	for _, s := range times {
		tod, err := ParseTimeOfDay(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		if seen[tod] {
			return nil, fmt.Errorf("%w: %s listed more than once", ErrInvalidTimeOfDay, tod)
		}
		seen[tod] = true
		parsed = append(parsed, tod)
	}
	return parsed, nil
}

// StartOfDay truncates t to local midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Medication is a recurring prescription owned by one care recipient.
type Medication struct {
	ID           uuid.UUID  `json:"id" yaml:"id"`
	RecipientID  string     `json:"recipient_id" yaml:"recipient_id"`
	Name         string     `json:"name" yaml:"name"`
	Dosage       float64    `json:"dosage" yaml:"dosage"`
	DosageUnit   string     `json:"dosage_unit" yaml:"dosage_unit"`
	Frequency    string     `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	Times        []string   `json:"times" yaml:"times"`
	StartDate    time.Time  `json:"start_date" yaml:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	InitialStock *int       `json:"initial_stock,omitempty" yaml:"initial_stock,omitempty"`
	CurrentStock *int       `json:"current_stock,omitempty" yaml:"current_stock,omitempty"`
	Active       bool       `json:"active" yaml:"active"`
	Notes        *string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" yaml:"updated_at"`
}

// NewMedication creates an active Medication starting today with a generated UUID.
func NewMedication(recipientID, name string, dosage float64, unit string, times ...string) *Medication {
	now := time.Now()
	return &Medication{
		ID:          uuid.New(),
		RecipientID: recipientID,
		Name:        name,
		Dosage:      dosage,
		DosageUnit:  unit,
		Frequency:   defaultFrequency(len(times)),
		Times:       times,
		StartDate:   StartOfDay(now),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func defaultFrequency(n int) string {
	switch n {
	case 1:
		return "once daily"
	case 2:
		return "twice daily"
	case 3:
		return "three times daily"
	default:
		return fmt.Sprintf("%d times daily", n)
	}
}

// WithFrequency sets the frequency label.
func (m *Medication) WithFrequency(label string) *Medication {
	m.Frequency = label
	return m
}

// WithStartDate sets the first day of the schedule.
func (m *Medication) WithStartDate(t time.Time) *Medication {
	m.StartDate = StartOfDay(t)
	return m
}

// WithEndDate sets the last day of the schedule.
func (m *Medication) WithEndDate(t time.Time) *Medication {
	end := StartOfDay(t)
	m.EndDate = &end
	return m
}

// WithStock enables stock tracking with the given count.
func (m *Medication) WithStock(count int) *Medication {
	initial, current := count, count
	m.InitialStock = &initial
	m.CurrentStock = &current
	return m
}

// WithNotes sets notes on the medication.
func (m *Medication) WithNotes(notes string) *Medication {
	m.Notes = &notes
	return m
}

// TracksStock reports whether current stock is recorded for this medication.
func (m *Medication) TracksStock() bool {
	return m.CurrentStock != nil
}

// Validate checks the medication definition before it is persisted.
func (m *Medication) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("name is required")
	}
	if m.RecipientID == "" {
		return errors.New("recipient is required")
	}
	if m.Dosage <= 0 {
		return errors.New("dosage must be positive")
	}
	if _, err := ParseTimes(m.Times); err != nil {
		return err
	}
	if m.StartDate.IsZero() {
		return errors.New("start date is required")
	}
	if m.EndDate != nil && m.EndDate.Before(m.StartDate) {
		return errors.New("end date is before start date")
	}
	if m.CurrentStock != nil && *m.CurrentStock < 0 {
		return errors.New("stock cannot be negative")
	}
	if m.InitialStock != nil && *m.InitialStock < 0 {
		return errors.New("initial stock cannot be negative")
	}
	return nil
}
