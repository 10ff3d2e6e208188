// ABOUTME: Dose log operations for SQLite storage.
// ABOUTME: Idempotent batch insert on (medication_id, scheduled_time) and compare-and-swap status updates.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/medtrack/internal/models"
)

const doseLogSelect = `
	SELECT d.id, d.medication_id, d.recipient_id, d.scheduled_time, d.status, d.taken_at, d.created_at, m.name
	FROM dose_logs d
	JOIN medications m ON m.id = d.medication_id
`

// InsertDoseInstances inserts logs in one transaction, skipping slots that already exist.
func (d *DB) InsertDoseInstances(ctx context.Context, logs []*models.DoseLog) (int, error) {
	if len(logs) == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert dose logs: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := insertDoseLogs(ctx, tx, logs)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit dose logs: %w", err)
	}
	return inserted, nil
}

func insertDoseLogs(ctx context.Context, tx *sql.Tx, logs []*models.DoseLog) (int, error) {
	if len(logs) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dose_logs (id, medication_id, recipient_id, scheduled_time, status, taken_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (medication_id, scheduled_time) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert dose logs: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, l := range logs {
		result, err := stmt.ExecContext(ctx,
			l.ID.String(),
			l.MedicationID.String(),
			l.RecipientID,
			formatTime(l.ScheduledTime),
			string(l.Status),
			nullTime(l.TakenAt),
			formatTime(l.CreatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("insert dose log: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert dose log: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// GetDoseLog retrieves a dose log by ID or ID prefix.
func (d *DB) GetDoseLog(ctx context.Context, idOrPrefix string) (*models.DoseLog, error) {
	id, err := d.resolveID(ctx, "dose_logs", idOrPrefix)
	if err != nil {
		return nil, err
	}

	l, err := scanDoseLog(d.db.QueryRowContext(ctx, doseLogSelect+` WHERE d.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dose log %s: %w", idOrPrefix, ErrNotFound)
	}
	return l, err
}

// UpdateDoseLogStatus changes status only while the row still holds expected.
func (d *DB) UpdateDoseLogStatus(ctx context.Context, id uuid.UUID, expected, next models.DoseStatus, takenAt *time.Time) (*models.DoseLog, error) {
	result, err := d.db.ExecContext(ctx,
		`UPDATE dose_logs SET status = ?, taken_at = ? WHERE id = ? AND status = ?`,
		string(next), nullTime(takenAt), id.String(), string(expected))
	if err != nil {
		return nil, fmt.Errorf("update dose log status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update dose log status: %w", err)
	}

	current, err := d.GetDoseLog(ctx, id.String())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return current, fmt.Errorf("dose log %s is %s: %w", id, current.Status, ErrConflict)
	}
	return current, nil
}

// QueryDoseLogs returns logs scheduled in [start, end], oldest first.
func (d *DB) QueryDoseLogs(ctx context.Context, recipientID string, start, end time.Time) ([]*models.DoseLog, error) {
	query := doseLogSelect + ` WHERE 1 = 1`
	var args []interface{}

	if recipientID != "" {
		query += " AND d.recipient_id = ?"
		args = append(args, recipientID)
	}
	if !start.IsZero() {
		query += " AND d.scheduled_time >= ?"
		args = append(args, formatTime(start))
	}
	if !end.IsZero() {
		query += " AND d.scheduled_time <= ?"
		args = append(args, formatTime(end))
	}
	query += " ORDER BY d.scheduled_time, m.name"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dose logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.DoseLog
	for rows.Next() {
		l, err := scanDoseLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// CountDoseLogs returns how many logs reference a medication.
func (d *DB) CountDoseLogs(ctx context.Context, medicationID uuid.UUID) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dose_logs WHERE medication_id = ?`, medicationID.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count dose logs: %w", err)
	}
	return n, nil
}

// scanDoseLog scans a single joined row into a DoseLog struct.
func scanDoseLog(row scanner) (*models.DoseLog, error) {
	var l models.DoseLog
	var idStr, medID, scheduled, status, createdAt string
	var takenAt sql.NullString

	err := row.Scan(&idStr, &medID, &l.RecipientID, &scheduled, &status, &takenAt, &createdAt, &l.MedicationName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan dose log: %w", err)
	}

	l.ID, _ = uuid.Parse(idStr)
	l.MedicationID, _ = uuid.Parse(medID)
	l.ScheduledTime = parseTime(scheduled)
	l.Status = models.DoseStatus(status)
	if takenAt.Valid {
		t := parseTime(takenAt.String)
		l.TakenAt = &t
	}
	l.CreatedAt = parseTime(createdAt)

	return &l, nil
}
