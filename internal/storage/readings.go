// ABOUTME: Health reading operations for SQLite storage.
// ABOUTME: Blood pressure pairs live in systolic/diastolic columns; scalars use value.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/harperreed/medtrack/internal/models"
)

// CreateReading stores a new health reading.
func (d *DB) CreateReading(ctx context.Context, r *models.Reading) error {
	var value, systolic, diastolic sql.NullFloat64
	if r.IsBloodPressure() && r.Pressure != nil {
		systolic = sql.NullFloat64{Float64: r.Pressure.Systolic, Valid: true}
		diastolic = sql.NullFloat64{Float64: r.Pressure.Diastolic, Valid: true}
	} else {
		value = sql.NullFloat64{Float64: r.Value, Valid: true}
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO health_readings (id, recipient_id, reading_type, value, systolic, diastolic, unit, recorded_at, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID.String(),
		r.RecipientID,
		string(r.Type),
		value, systolic, diastolic,
		r.Unit,
		formatTime(r.RecordedAt),
		nullString(r.Notes),
		formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create reading: %w", err)
	}
	return nil
}

// QueryHealthReadings returns readings matching q, newest first.
func (d *DB) QueryHealthReadings(ctx context.Context, q ReadingQuery) ([]*models.Reading, error) {
	query := `
		SELECT id, recipient_id, reading_type, value, systolic, diastolic, unit, recorded_at, notes, created_at
		FROM health_readings
		WHERE 1 = 1
	`
	var args []interface{}

	if q.RecipientID != "" {
		query += " AND recipient_id = ?"
		args = append(args, q.RecipientID)
	}
	if q.Type != nil {
		query += " AND reading_type = ?"
		args = append(args, string(*q.Type))
	}
	if q.Start != nil {
		query += " AND recorded_at >= ?"
		args = append(args, formatTime(*q.Start))
	}
	if q.End != nil {
		query += " AND recorded_at <= ?"
		args = append(args, formatTime(*q.End))
	}
	query += " ORDER BY recorded_at DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var readings []*models.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// scanReading rebuilds the tagged union from the row's type column.
func scanReading(row scanner) (*models.Reading, error) {
	var r models.Reading
	var idStr, readingType, recordedAt, createdAt string
	var value, systolic, diastolic sql.NullFloat64
	var notes sql.NullString

	err := row.Scan(&idStr, &r.RecipientID, &readingType, &value, &systolic, &diastolic,
		&r.Unit, &recordedAt, &notes, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan reading: %w", err)
	}

	r.ID, _ = uuid.Parse(idStr)
	r.Type = models.ReadingType(readingType)
	if r.IsBloodPressure() {
		r.Pressure = &models.BloodPressure{Systolic: systolic.Float64, Diastolic: diastolic.Float64}
	} else {
		r.Value = value.Float64
	}
	r.RecordedAt = parseTime(recordedAt)
	if notes.Valid {
		r.Notes = &notes.String
	}
	r.CreatedAt = parseTime(createdAt)

	return &r, nil
}
