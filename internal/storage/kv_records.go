// ABOUTME: Medication, dose log, and reading operations for the Badger backend.
// ABOUTME: Conditional updates run inside optimistic transactions that retry on write conflicts.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/harperreed/medtrack/internal/models"
)

func medKey(id uuid.UUID) string { return kvMedPrefix + id.String() }

func doseKey(id uuid.UUID) string { return kvDosePrefix + id.String() }

func slotKey(l *models.DoseLog) string {
	return kvSlotPrefix + l.MedicationID.String() + "/" + formatTime(l.ScheduledTime)
}

func doseIndexKey(l *models.DoseLog) string {
	return kvDoseIdxPrefix + recipientSegment(l.RecipientID) + timeSegment(l.ScheduledTime) + l.ID.String()
}

func readingKey(id uuid.UUID) string { return kvReadingPrefix + id.String() }

// CreateMedication stores a new medication.
func (k *KV) CreateMedication(_ context.Context, m *models.Medication) error {
	err := k.update(func(txn *badger.Txn) error {
		return putNewMedication(txn, m)
	})
	if err != nil {
		return fmt.Errorf("create medication: %w", err)
	}
	return nil
}

// CreateMedicationWithDoses stores m and logs in one transaction.
func (k *KV) CreateMedicationWithDoses(_ context.Context, m *models.Medication, logs []*models.DoseLog) (int, error) {
	var inserted int
	err := k.update(func(txn *badger.Txn) error {
		if err := putNewMedication(txn, m); err != nil {
			return err
		}
		var err error
		inserted, err = putDoseLogs(txn, logs)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create medication: %w", err)
	}
	return inserted, nil
}

func putNewMedication(txn *badger.Txn, m *models.Medication) error {
	if _, err := txn.Get([]byte(medKey(m.ID))); err == nil {
		return fmt.Errorf("medication %s already exists", m.ID)
	}
	return setJSON(txn, medKey(m.ID), m)
}

// GetMedication retrieves a medication by ID or ID prefix.
func (k *KV) GetMedication(_ context.Context, idOrPrefix string) (*models.Medication, error) {
	var m models.Medication
	err := k.db.View(func(txn *badger.Txn) error {
		key, err := resolveKey(txn, kvMedPrefix, idOrPrefix)
		if err != nil {
			return err
		}
		return getJSON(txn, key, &m)
	})
	if err != nil {
		return nil, fmt.Errorf("get medication %s: %w", idOrPrefix, err)
	}
	return &m, nil
}

// ListMedications returns medications ordered by name.
func (k *KV) ListMedications(_ context.Context, filter MedicationFilter) ([]*models.Medication, error) {
	var meds []*models.Medication
	err := k.db.View(func(txn *badger.Txn) error {
		return eachValue(txn, kvMedPrefix, func(_, val []byte) error {
			var m models.Medication
			if err := json.Unmarshal(val, &m); err != nil {
				return err
			}
			if filter.RecipientID != "" && m.RecipientID != filter.RecipientID {
				return nil
			}
			if filter.ActiveOnly && !m.Active {
				return nil
			}
			meds = append(meds, &m)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}

	sort.SliceStable(meds, func(i, j int) bool {
		return strings.ToLower(meds[i].Name) < strings.ToLower(meds[j].Name)
	})
	return meds, nil
}

// modifyMedication loads, mutates, and stores a medication in one transaction.
func (k *KV) modifyMedication(id uuid.UUID, fn func(m *models.Medication) error) error {
	return k.update(func(txn *badger.Txn) error {
		var m models.Medication
		if err := getJSON(txn, medKey(id), &m); err != nil {
			return fmt.Errorf("medication %s: %w", id, err)
		}
		if err := fn(&m); err != nil {
			return err
		}
		return setJSON(txn, medKey(id), &m)
	})
}

// UpdateMedication writes only the fields set in c. The slot scan for a
// times change runs in the same transaction, so a concurrent insert makes it retry.
func (k *KV) UpdateMedication(_ context.Context, id uuid.UUID, c MedicationChanges) error {
	err := k.update(func(txn *badger.Txn) error {
		var m models.Medication
		if err := getJSON(txn, medKey(id), &m); err != nil {
			return fmt.Errorf("medication %s: %w", id, err)
		}
		if c.Times != nil {
			if hasSlots(txn, id) {
				return fmt.Errorf("medication %s has scheduled doses: %w", id, ErrConflict)
			}
			m.Times = c.Times
		}
		if c.Name != nil {
			m.Name = *c.Name
		}
		if c.Dosage != nil {
			m.Dosage = *c.Dosage
		}
		if c.DosageUnit != nil {
			m.DosageUnit = *c.DosageUnit
		}
		if c.Frequency != nil {
			m.Frequency = *c.Frequency
		}
		if c.EndDate != nil {
			end := *c.EndDate
			m.EndDate = &end
		}
		if c.Notes != nil {
			notes := *c.Notes
			m.Notes = &notes
		}
		m.UpdatedAt = c.UpdatedAt
		return setJSON(txn, medKey(id), &m)
	})
	if err != nil {
		return fmt.Errorf("update medication: %w", err)
	}
	return nil
}

// UpdateMedicationStock sets the current stock.
func (k *KV) UpdateMedicationStock(_ context.Context, id uuid.UUID, stock int) error {
	err := k.modifyMedication(id, func(m *models.Medication) error {
		m.CurrentStock = &stock
		if m.InitialStock == nil {
			initial := stock
			m.InitialStock = &initial
		}
		m.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("update medication stock: %w", err)
	}
	return nil
}

// DecrementMedicationStock lowers tracked stock by one, floored at zero.
func (k *KV) DecrementMedicationStock(_ context.Context, id uuid.UUID) (*int, error) {
	var result *int
	err := k.modifyMedication(id, func(m *models.Medication) error {
		result = nil
		if m.CurrentStock == nil {
			return nil
		}
		next := *m.CurrentStock - 1
		if next < 0 {
			next = 0
		}
		m.CurrentStock = &next
		m.UpdatedAt = time.Now()
		result = &next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decrement medication stock: %w", err)
	}
	return result, nil
}

// DeactivateMedication soft-deletes a medication.
func (k *KV) DeactivateMedication(_ context.Context, id uuid.UUID) error {
	err := k.modifyMedication(id, func(m *models.Medication) error {
		m.Active = false
		m.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("deactivate medication: %w", err)
	}
	return nil
}

// InsertDoseInstances writes logs whose slot key is still free.
func (k *KV) InsertDoseInstances(_ context.Context, logs []*models.DoseLog) (int, error) {
	if len(logs) == 0 {
		return 0, nil
	}

	var inserted int
	err := k.update(func(txn *badger.Txn) error {
		var err error
		inserted, err = putDoseLogs(txn, logs)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert dose logs: %w", err)
	}
	return inserted, nil
}

// putDoseLogs writes the logs whose slot is free. Each medication record is
// rewritten unchanged so a concurrent times update that read it conflicts.
func putDoseLogs(txn *badger.Txn, logs []*models.DoseLog) (int, error) {
	inserted := 0
	checked := make(map[uuid.UUID]bool)
	for _, l := range logs {
		if !checked[l.MedicationID] {
			item, err := txn.Get([]byte(medKey(l.MedicationID)))
			if err != nil {
				return 0, fmt.Errorf("medication %s: %w", l.MedicationID, ErrNotFound)
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return 0, err
			}
			if err := txn.Set([]byte(medKey(l.MedicationID)), val); err != nil {
				return 0, err
			}
			checked[l.MedicationID] = true
		}

		slot := slotKey(l)
		_, err := txn.Get([]byte(slot))
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return 0, err
		}

		stored := *l
		stored.MedicationName = ""
		if err := setJSON(txn, doseKey(l.ID), &stored); err != nil {
			return 0, err
		}
		if err := txn.Set([]byte(slot), []byte(l.ID.String())); err != nil {
			return 0, err
		}
		if err := txn.Set([]byte(doseIndexKey(l)), nil); err != nil {
			return 0, err
		}
		inserted++
	}
	return inserted, nil
}

// GetDoseLog retrieves a dose log by ID or ID prefix.
func (k *KV) GetDoseLog(_ context.Context, idOrPrefix string) (*models.DoseLog, error) {
	var l models.DoseLog
	err := k.db.View(func(txn *badger.Txn) error {
		key, err := resolveKey(txn, kvDosePrefix, idOrPrefix)
		if err != nil {
			return err
		}
		if err := getJSON(txn, key, &l); err != nil {
			return err
		}
		l.MedicationName = medicationName(txn, l.MedicationID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get dose log %s: %w", idOrPrefix, err)
	}
	return &l, nil
}

// UpdateDoseLogStatus changes status only while the stored log still holds expected.
func (k *KV) UpdateDoseLogStatus(_ context.Context, id uuid.UUID, expected, next models.DoseStatus, takenAt *time.Time) (*models.DoseLog, error) {
	var l models.DoseLog
	err := k.update(func(txn *badger.Txn) error {
		l = models.DoseLog{}
		if err := getJSON(txn, doseKey(id), &l); err != nil {
			return fmt.Errorf("dose log %s: %w", id, err)
		}
		l.MedicationName = medicationName(txn, l.MedicationID)
		if l.Status != expected {
			return fmt.Errorf("dose log %s is %s: %w", id, l.Status, ErrConflict)
		}
		l.Status = next
		l.TakenAt = takenAt
		stored := l
		stored.MedicationName = ""
		return setJSON(txn, doseKey(id), &stored)
	})
	if errors.Is(err, ErrConflict) {
		return &l, err
	}
	if err != nil {
		return nil, fmt.Errorf("update dose log status: %w", err)
	}
	return &l, nil
}

// QueryDoseLogs returns logs scheduled in [start, end], oldest first.
func (k *KV) QueryDoseLogs(_ context.Context, recipientID string, start, end time.Time) ([]*models.DoseLog, error) {
	var logs []*models.DoseLog
	err := k.db.View(func(txn *badger.Txn) error {
		names := make(map[uuid.UUID]string)
		collect := func(l *models.DoseLog) {
			name, ok := names[l.MedicationID]
			if !ok {
				name = medicationName(txn, l.MedicationID)
				names[l.MedicationID] = name
			}
			l.MedicationName = name
			logs = append(logs, l)
		}

		if recipientID == "" {
			return eachValue(txn, kvDosePrefix, func(_, val []byte) error {
				var l models.DoseLog
				if err := json.Unmarshal(val, &l); err != nil {
					return err
				}
				if inRange(l.ScheduledTime, start, end) {
					collect(&l)
				}
				return nil
			})
		}

		// Walk the per-recipient time index from start.
		prefix := []byte(kvDoseIdxPrefix + recipientSegment(recipientID))
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := prefix
		if !start.IsZero() {
			seek = append(append([]byte{}, prefix...), formatTime(start)...)
		}
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			rest := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			slash := strings.LastIndexByte(rest, '/')
			if slash < 0 {
				continue
			}
			if !end.IsZero() && rest[:slash] > formatTime(end) {
				break
			}
			id, err := uuid.Parse(rest[slash+1:])
			if err != nil {
				continue
			}
			var l models.DoseLog
			if err := getJSON(txn, doseKey(id), &l); err != nil {
				return err
			}
			collect(&l)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query dose logs: %w", err)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if !logs[i].ScheduledTime.Equal(logs[j].ScheduledTime) {
			return logs[i].ScheduledTime.Before(logs[j].ScheduledTime)
		}
		return logs[i].MedicationName < logs[j].MedicationName
	})
	return logs, nil
}

// CountDoseLogs returns how many logs reference a medication.
func (k *KV) CountDoseLogs(_ context.Context, medicationID uuid.UUID) (int, error) {
	n := 0
	err := k.db.View(func(txn *badger.Txn) error {
		n = countSlots(txn, medicationID, 0)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count dose logs: %w", err)
	}
	return n, nil
}

// countSlots counts a medication's slot keys, stopping at limit when it is positive.
func countSlots(txn *badger.Txn, medicationID uuid.UUID, limit int) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(kvSlotPrefix + medicationID.String() + "/")
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return n
}

func hasSlots(txn *badger.Txn, medicationID uuid.UUID) bool {
	return countSlots(txn, medicationID, 1) > 0
}

// CreateReading stores a reading. Readings are immutable once written.
func (k *KV) CreateReading(_ context.Context, r *models.Reading) error {
	err := k.update(func(txn *badger.Txn) error {
		return setJSON(txn, readingKey(r.ID), r)
	})
	if err != nil {
		return fmt.Errorf("create reading: %w", err)
	}
	return nil
}

// QueryHealthReadings returns readings matching q, newest first.
func (k *KV) QueryHealthReadings(_ context.Context, q ReadingQuery) ([]*models.Reading, error) {
	var readings []*models.Reading
	err := k.db.View(func(txn *badger.Txn) error {
		return eachValue(txn, kvReadingPrefix, func(_, val []byte) error {
			var r models.Reading
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			if q.RecipientID != "" && r.RecipientID != q.RecipientID {
				return nil
			}
			if q.Type != nil && r.Type != *q.Type {
				return nil
			}
			if q.Start != nil && r.RecordedAt.Before(*q.Start) {
				return nil
			}
			if q.End != nil && r.RecordedAt.After(*q.End) {
				return nil
			}
			readings = append(readings, &r)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}

	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].RecordedAt.After(readings[j].RecordedAt)
	})
	if q.Limit > 0 && len(readings) > q.Limit {
		readings = readings[:q.Limit]
	}
	return readings, nil
}

func medicationName(txn *badger.Txn, id uuid.UUID) string {
	var m models.Medication
	if err := getJSON(txn, medKey(id), &m); err != nil {
		return ""
	}
	return m.Name
}
