// ABOUTME: Data migration between medtrack storage backends.
// ABOUTME: Copies medications, dose logs, and health readings from source to destination.

package storage

import (
	"context"
	"fmt"
	"os"
	"time"
)

// MigrateSummary holds counts of migrated entities.
type MigrateSummary struct {
	Medications int
	DoseLogs    int
	Readings    int
}

// Migrate copies all data from src to dst storage.
// Medications go first so dose logs can reference them. Dose logs keep
// their status and taken time. The destination should be empty.
func Migrate(ctx context.Context, src, dst Repository) (*MigrateSummary, error) {
	summary := &MigrateSummary{}

	meds, err := src.ListMedications(ctx, MedicationFilter{})
	if err != nil {
		return nil, fmt.Errorf("list source medications: %w", err)
	}
	for _, m := range meds {
		if err := dst.CreateMedication(ctx, m); err != nil {
			return nil, fmt.Errorf("create medication %s: %w", m.ID, err)
		}
		summary.Medications++
	}

	logs, err := src.QueryDoseLogs(ctx, "", time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list source dose logs: %w", err)
	}
	n, err := dst.InsertDoseInstances(ctx, logs)
	if err != nil {
		return nil, fmt.Errorf("copy dose logs: %w", err)
	}
	summary.DoseLogs = n

	readings, err := src.QueryHealthReadings(ctx, ReadingQuery{})
	if err != nil {
		return nil, fmt.Errorf("list source readings: %w", err)
	}
	// Oldest first so append-only backends keep insertion order.
	for i := len(readings) - 1; i >= 0; i-- {
		r := readings[i]
		if err := dst.CreateReading(ctx, r); err != nil {
			return nil, fmt.Errorf("create reading %s: %w", r.ID, err)
		}
		summary.Readings++
	}

	return summary, nil
}

// IsDirNonEmpty checks whether a directory exists and contains any files or subdirectories.
// Returns false if the directory does not exist or is empty.
func IsDirNonEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read directory %q: %w", path, err)
	}
	return len(entries) > 0, nil
}
