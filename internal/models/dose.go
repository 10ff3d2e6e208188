// ABOUTME: DoseLog model and DoseStatus lifecycle states.
// ABOUTME: One dose log exists per (medication, scheduled time); pending is the only mutable state.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DoseStatus is the lifecycle state of a scheduled dose.
type DoseStatus string

const (
	DosePending DoseStatus = "pending"
	DoseTaken   DoseStatus = "taken"
	DoseSkipped DoseStatus = "skipped"
)

// IsTerminal reports whether no further transition is allowed.
func (s DoseStatus) IsTerminal() bool {
	return s == DoseTaken || s == DoseSkipped
}

// ParseDoseStatus converts a string to a DoseStatus.
func ParseDoseStatus(s string) (DoseStatus, error) {
	switch DoseStatus(s) {
	case DosePending, DoseTaken, DoseSkipped:
		return DoseStatus(s), nil
	}
	return "", fmt.Errorf("unknown dose status %q", s)
}

// DoseLog is one scheduled occurrence of taking a medication.
type DoseLog struct {
	ID            uuid.UUID  `json:"id" yaml:"id"`
	MedicationID  uuid.UUID  `json:"medication_id" yaml:"medication_id"`
	RecipientID   string     `json:"recipient_id" yaml:"recipient_id"`
	ScheduledTime time.Time  `json:"scheduled_time" yaml:"scheduled_time"`
	Status        DoseStatus `json:"status" yaml:"status"`
	TakenAt       *time.Time `json:"taken_at,omitempty" yaml:"taken_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at" yaml:"created_at"`

	// MedicationName is filled in by queries that join the medication; it is not persisted.
	MedicationName string `json:"medication_name,omitempty" yaml:"medication_name,omitempty"`
}

// NewDoseLog creates a pending dose log for med at the given instant.
func NewDoseLog(med *Medication, scheduled time.Time) *DoseLog {
	return &DoseLog{
		ID:             uuid.New(),
		MedicationID:   med.ID,
		RecipientID:    med.RecipientID,
		ScheduledTime:  scheduled,
		Status:         DosePending,
		CreatedAt:      time.Now(),
		MedicationName: med.Name,
	}
}

// SlotKey identifies the (medication, scheduled time) pair that must stay unique.
func (d *DoseLog) SlotKey() string {
	return d.MedicationID.String() + "@" + d.ScheduledTime.UTC().Format(time.RFC3339)
}
