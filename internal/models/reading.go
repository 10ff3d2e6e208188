// ABOUTME: HealthReading model and ReadingType enum for vital-sign measurements.
// ABOUTME: Readings are a tagged union: a scalar value, or a systolic/diastolic pair for blood pressure.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReadingType represents the kind of vital sign being recorded.
type ReadingType string

const (
	ReadingBloodPressure ReadingType = "blood_pressure"
	ReadingBloodSugar    ReadingType = "blood_sugar"
	ReadingWeight        ReadingType = "weight"
	ReadingTemperature   ReadingType = "temperature"
	ReadingHeartRate     ReadingType = "heart_rate"
)

// ReadingUnits maps reading types to their display units.
var ReadingUnits = map[ReadingType]string{
	ReadingBloodPressure: "mmHg",
	ReadingBloodSugar:    "mg/dL",
	ReadingWeight:        "kg",
	ReadingTemperature:   "°C",
	ReadingHeartRate:     "bpm",
}

// AllReadingTypes returns all valid reading types in display order.
var AllReadingTypes = []ReadingType{
	ReadingBloodPressure, ReadingBloodSugar, ReadingWeight, ReadingTemperature, ReadingHeartRate,
}

// IsValidReadingType checks if a string is a valid reading type.
func IsValidReadingType(s string) bool {
	for _, rt := range AllReadingTypes {
		if string(rt) == s {
			return true
		}
	}
	return false
}

// BloodPressure is the paired value carried by blood_pressure readings.
type BloodPressure struct {
	Systolic  float64 `json:"systolic" yaml:"systolic"`
	Diastolic float64 `json:"diastolic" yaml:"diastolic"`
}

// String renders the pair as "120/80".
func (bp BloodPressure) String() string {
	return fmt.Sprintf("%g/%g", bp.Systolic, bp.Diastolic)
}

// Reading is a single vital-sign measurement. The Type tag decides which
// payload is meaningful: Pressure for blood_pressure, Value for everything else.
type Reading struct {
	ID          uuid.UUID      `json:"id" yaml:"id"`
	RecipientID string         `json:"recipient_id" yaml:"recipient_id"`
	Type        ReadingType    `json:"type" yaml:"type"`
	Value       float64        `json:"value,omitempty" yaml:"value,omitempty"`
	Pressure    *BloodPressure `json:"pressure,omitempty" yaml:"pressure,omitempty"`
	Unit        string         `json:"unit" yaml:"unit"`
	RecordedAt  time.Time      `json:"recorded_at" yaml:"recorded_at"`
	Notes       *string        `json:"notes,omitempty" yaml:"notes,omitempty"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
}

// NewScalarReading creates a single-valued reading with generated UUID and current timestamp.
func NewScalarReading(recipientID string, readingType ReadingType, value float64) *Reading {
	now := time.Now()
	return &Reading{
		ID:          uuid.New(),
		RecipientID: recipientID,
		Type:        readingType,
		Value:       value,
		Unit:        ReadingUnits[readingType],
		RecordedAt:  now,
		CreatedAt:   now,
	}
}

// NewBloodPressureReading creates a blood pressure reading.
func NewBloodPressureReading(recipientID string, systolic, diastolic float64) *Reading {
	now := time.Now()
	return &Reading{
		ID:          uuid.New(),
		RecipientID: recipientID,
		Type:        ReadingBloodPressure,
		Pressure:    &BloodPressure{Systolic: systolic, Diastolic: diastolic},
		Unit:        ReadingUnits[ReadingBloodPressure],
		RecordedAt:  now,
		CreatedAt:   now,
	}
}

// WithRecordedAt sets a custom recorded_at timestamp.
func (r *Reading) WithRecordedAt(t time.Time) *Reading {
	r.RecordedAt = t
	return r
}

// WithNotes sets notes on the reading.
func (r *Reading) WithNotes(notes string) *Reading {
	r.Notes = &notes
	return r
}

// WithUnit overrides the default unit.
func (r *Reading) WithUnit(unit string) *Reading {
	r.Unit = unit
	return r
}

// IsBloodPressure reports whether the reading carries a systolic/diastolic pair.
func (r *Reading) IsBloodPressure() bool {
	return r.Type == ReadingBloodPressure
}

// Primary returns the value used for series statistics: systolic for blood
// pressure, the scalar value otherwise.
func (r *Reading) Primary() float64 {
	if r.IsBloodPressure() && r.Pressure != nil {
		return r.Pressure.Systolic
	}
	return r.Value
}

// Display formats the reading value with its unit.
func (r *Reading) Display() string {
	if r.IsBloodPressure() && r.Pressure != nil {
		return fmt.Sprintf("%s %s", r.Pressure, r.Unit)
	}
	return fmt.Sprintf("%g %s", r.Value, r.Unit)
}

// Validate checks that the payload matches the type tag.
func (r *Reading) Validate() error {
	if !IsValidReadingType(string(r.Type)) {
		return fmt.Errorf("unknown reading type %q", r.Type)
	}
	if r.RecipientID == "" {
		return errors.New("recipient is required")
	}
	if r.IsBloodPressure() {
		if r.Pressure == nil {
			return errors.New("blood pressure reading needs systolic and diastolic values")
		}
		if r.Pressure.Systolic <= 0 || r.Pressure.Diastolic <= 0 {
			return errors.New("systolic and diastolic must be positive")
		}
		return nil
	}
	if r.Pressure != nil {
		return fmt.Errorf("%s reading cannot carry a blood pressure pair", r.Type)
	}
	if r.Value <= 0 {
		return fmt.Errorf("%s value must be positive", r.Type)
	}
	return nil
}
