// ABOUTME: Medication CRUD operations for SQLite storage.
// ABOUTME: Implements Repository medication methods including atomic stock decrement.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/medtrack/internal/models"
)

const medicationColumns = `id, recipient_id, name, dosage, dosage_unit, frequency, times, start_date, end_date,
	initial_stock, current_stock, active, notes, created_at, updated_at`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CreateMedication stores a new medication in the database.
func (d *DB) CreateMedication(ctx context.Context, m *models.Medication) error {
	return insertMedication(ctx, d.db, m)
}

// CreateMedicationWithDoses stores m and logs in one transaction.
func (d *DB) CreateMedicationWithDoses(ctx context.Context, m *models.Medication, logs []*models.DoseLog) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create medication: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertMedication(ctx, tx, m); err != nil {
		return 0, err
	}
	inserted, err := insertDoseLogs(ctx, tx, logs)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit medication: %w", err)
	}
	return inserted, nil
}

func insertMedication(ctx context.Context, ex execer, m *models.Medication) error {
	times, err := json.Marshal(m.Times)
	if err != nil {
		return fmt.Errorf("encode times: %w", err)
	}

	query := `INSERT INTO medications (` + medicationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = ex.ExecContext(ctx, query,
		m.ID.String(),
		m.RecipientID,
		m.Name,
		m.Dosage,
		m.DosageUnit,
		m.Frequency,
		string(times),
		m.StartDate.Format(time.RFC3339),
		nullDate(m.EndDate),
		nullInt(m.InitialStock),
		nullInt(m.CurrentStock),
		m.Active,
		nullString(m.Notes),
		formatTime(m.CreatedAt),
		formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create medication: %w", err)
	}
	return nil
}

// GetMedication retrieves a medication by ID or ID prefix.
func (d *DB) GetMedication(ctx context.Context, idOrPrefix string) (*models.Medication, error) {
	id, err := d.resolveID(ctx, "medications", idOrPrefix)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + medicationColumns + ` FROM medications WHERE id = ?`
	m, err := scanMedication(d.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("medication %s: %w", idOrPrefix, ErrNotFound)
	}
	return m, err
}

// ListMedications returns medications ordered by name.
func (d *DB) ListMedications(ctx context.Context, filter MedicationFilter) ([]*models.Medication, error) {
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE 1 = 1`
	var args []interface{}

	if filter.RecipientID != "" {
		query += " AND recipient_id = ?"
		args = append(args, filter.RecipientID)
	}
	if filter.ActiveOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY name COLLATE NOCASE, created_at"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()

	var meds []*models.Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		meds = append(meds, m)
	}
	return meds, rows.Err()
}

// UpdateMedication writes only the fields set in c. A times change carries a
// NOT EXISTS guard so it cannot race with dose log inserts.
func (d *DB) UpdateMedication(ctx context.Context, id uuid.UUID, c MedicationChanges) error {
	set := []string{"updated_at = ?"}
	args := []interface{}{formatTime(c.UpdatedAt)}
	add := func(column string, value interface{}) {
		set = append(set, column+" = ?")
		args = append(args, value)
	}

	if c.Name != nil {
		add("name", *c.Name)
	}
	if c.Dosage != nil {
		add("dosage", *c.Dosage)
	}
	if c.DosageUnit != nil {
		add("dosage_unit", *c.DosageUnit)
	}
	if c.Frequency != nil {
		add("frequency", *c.Frequency)
	}
	if c.EndDate != nil {
		add("end_date", nullDate(c.EndDate))
	}
	if c.Notes != nil {
		add("notes", nullString(c.Notes))
	}
	where := "id = ?"
	if c.Times != nil {
		times, err := json.Marshal(c.Times)
		if err != nil {
			return fmt.Errorf("encode times: %w", err)
		}
		add("times", string(times))
		where += " AND NOT EXISTS (SELECT 1 FROM dose_logs WHERE medication_id = medications.id)"
	}
	args = append(args, id.String())

	result, err := d.db.ExecContext(ctx,
		"UPDATE medications SET "+strings.Join(set, ", ")+" WHERE "+where, args...)
	if err != nil {
		return fmt.Errorf("update medication: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update medication: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// No row updated: either a missing medication or scheduled doses.
	var exists int
	err = d.db.QueryRowContext(ctx, `SELECT 1 FROM medications WHERE id = ?`, id.String()).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("medication %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update medication: %w", err)
	}
	return fmt.Errorf("medication %s has scheduled doses: %w", id, ErrConflict)
}

// UpdateMedicationStock sets the current stock.
func (d *DB) UpdateMedicationStock(ctx context.Context, id uuid.UUID, stock int) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE medications SET current_stock = ?, initial_stock = COALESCE(initial_stock, ?), updated_at = ? WHERE id = ?`,
		stock, stock, formatTime(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("update medication stock: %w", err)
	}
	return expectAffected(result, "medication", id)
}

// DecrementMedicationStock lowers tracked stock by one in a single statement.
func (d *DB) DecrementMedicationStock(ctx context.Context, id uuid.UUID) (*int, error) {
	var stock int
	err := d.db.QueryRowContext(ctx, `
		UPDATE medications
		SET current_stock = MAX(current_stock - 1, 0), updated_at = ?
		WHERE id = ? AND current_stock IS NOT NULL
		RETURNING current_stock
	`, formatTime(time.Now()), id.String()).Scan(&stock)
	if err == nil {
		return &stock, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decrement medication stock: %w", err)
	}

	// No row updated: either untracked stock or a missing medication.
	var exists int
	err = d.db.QueryRowContext(ctx, `SELECT 1 FROM medications WHERE id = ?`, id.String()).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("medication %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("decrement medication stock: %w", err)
	}
	return nil, nil
}

// DeactivateMedication soft-deletes a medication. Its dose logs are kept.
func (d *DB) DeactivateMedication(ctx context.Context, id uuid.UUID) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE medications SET active = 0, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("deactivate medication: %w", err)
	}
	return expectAffected(result, "medication", id)
}

// resolveID finds the full ID in table from a unique prefix.
func (d *DB) resolveID(ctx context.Context, table, idOrPrefix string) (string, error) {
	if looksLikeUUID(idOrPrefix) {
		return idOrPrefix, nil
	}
	if idOrPrefix == "" {
		return "", fmt.Errorf("empty id: %w", ErrNotFound)
	}

	// table is always one of our own constants.
	rows, err := d.db.QueryContext(ctx, `SELECT id FROM `+table+` WHERE id LIKE ? || '%' LIMIT 2`, idOrPrefix)
	if err != nil {
		return "", fmt.Errorf("resolve %s id: %w", table, err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scan %s id: %w", table, err)
		}
		matches = append(matches, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%s %s: %w", table, idOrPrefix, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%s %s: %w", table, idOrPrefix, ErrAmbiguousID)
	}
}

func expectAffected(result sql.Result, what string, id uuid.UUID) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

// scanMedication scans a single row into a Medication struct.
func scanMedication(row scanner) (*models.Medication, error) {
	var m models.Medication
	var idStr, times, startDate, createdAt, updatedAt string
	var frequency, endDate, notes sql.NullString
	var initialStock, currentStock sql.NullInt64

	err := row.Scan(&idStr, &m.RecipientID, &m.Name, &m.Dosage, &m.DosageUnit, &frequency, &times,
		&startDate, &endDate, &initialStock, &currentStock, &m.Active, &notes, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan medication: %w", err)
	}

	m.ID, _ = uuid.Parse(idStr)
	m.Frequency = frequency.String
	if err := json.Unmarshal([]byte(times), &m.Times); err != nil {
		return nil, fmt.Errorf("decode times: %w", err)
	}
	m.StartDate, _ = time.Parse(time.RFC3339, startDate)
	if endDate.Valid {
		end, _ := time.Parse(time.RFC3339, endDate.String)
		m.EndDate = &end
	}
	if initialStock.Valid {
		n := int(initialStock.Int64)
		m.InitialStock = &n
	}
	if currentStock.Valid {
		n := int(currentStock.Int64)
		m.CurrentStock = &n
	}
	if notes.Valid {
		m.Notes = &notes.String
	}
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)

	return &m, nil
}
