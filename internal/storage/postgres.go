// ABOUTME: Postgres backend for medtrack data using a pgx connection pool.
// ABOUTME: Shares the SQLite contract: ON CONFLICT DO NOTHING inserts and status-guarded updates.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/medtrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS medications (
	id UUID PRIMARY KEY,
	recipient_id TEXT NOT NULL,
	name TEXT NOT NULL,
	dosage DOUBLE PRECISION NOT NULL,
	dosage_unit TEXT NOT NULL,
	frequency TEXT NOT NULL DEFAULT '',
	times TEXT[] NOT NULL,
	start_date TIMESTAMPTZ NOT NULL,
	end_date TIMESTAMPTZ,
	initial_stock INTEGER,
	current_stock INTEGER CHECK (current_stock IS NULL OR current_stock >= 0),
	active BOOLEAN NOT NULL DEFAULT TRUE,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dose_logs (
	id UUID PRIMARY KEY,
	medication_id UUID NOT NULL REFERENCES medications(id),
	recipient_id TEXT NOT NULL,
	scheduled_time TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('pending', 'taken', 'skipped')),
	taken_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (medication_id, scheduled_time)
);

CREATE TABLE IF NOT EXISTS health_readings (
	id UUID PRIMARY KEY,
	recipient_id TEXT NOT NULL,
	reading_type TEXT NOT NULL,
	value DOUBLE PRECISION,
	systolic DOUBLE PRECISION,
	diastolic DOUBLE PRECISION,
	unit TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_medications_recipient ON medications(recipient_id, active);
CREATE INDEX IF NOT EXISTS idx_dose_logs_recipient_time ON dose_logs(recipient_id, scheduled_time);
CREATE INDEX IF NOT EXISTS idx_readings_recipient_type ON health_readings(recipient_id, reading_type, recorded_at DESC);
`

// PG is a Repository backed by Postgres.
type PG struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PG)(nil)

// OpenPostgres connects to databaseURL, pings it, and ensures the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PG, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &PG{pool: pool}, nil
}

// Close releases the pool.
func (p *PG) Close() error {
	p.pool.Close()
	return nil
}

const pgMedCols = `id, recipient_id, name, dosage, dosage_unit, frequency, times, start_date, end_date,
	initial_stock, current_stock, active, notes, created_at, updated_at`

func scanPGMedication(row pgx.Row) (*models.Medication, error) {
	var m models.Medication
	err := row.Scan(&m.ID, &m.RecipientID, &m.Name, &m.Dosage, &m.DosageUnit, &m.Frequency, &m.Times,
		&m.StartDate, &m.EndDate, &m.InitialStock, &m.CurrentStock, &m.Active, &m.Notes,
		&m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

// pgExecer is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CreateMedication stores a new medication.
func (p *PG) CreateMedication(ctx context.Context, m *models.Medication) error {
	return insertPGMedication(ctx, p.pool, m)
}

// CreateMedicationWithDoses stores m and logs in one transaction.
func (p *PG) CreateMedicationWithDoses(ctx context.Context, m *models.Medication, logs []*models.DoseLog) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin create medication: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertPGMedication(ctx, tx, m); err != nil {
		return 0, err
	}
	inserted, err := sendDoseBatch(ctx, tx, logs)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit medication: %w", err)
	}
	return inserted, nil
}

func insertPGMedication(ctx context.Context, ex pgExecer, m *models.Medication) error {
	_, err := ex.Exec(ctx, `
		INSERT INTO medications (`+pgMedCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		m.ID, m.RecipientID, m.Name, m.Dosage, m.DosageUnit, m.Frequency, m.Times,
		m.StartDate, m.EndDate, m.InitialStock, m.CurrentStock, m.Active, m.Notes,
		m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create medication: %w", err)
	}
	return nil
}

// GetMedication retrieves a medication by ID or ID prefix.
func (p *PG) GetMedication(ctx context.Context, idOrPrefix string) (*models.Medication, error) {
	id, err := p.resolveID(ctx, "medications", idOrPrefix)
	if err != nil {
		return nil, err
	}
	m, err := scanPGMedication(p.pool.QueryRow(ctx, `SELECT `+pgMedCols+` FROM medications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("medication %s: %w", idOrPrefix, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get medication: %w", err)
	}
	return m, nil
}

// ListMedications returns medications ordered by name.
func (p *PG) ListMedications(ctx context.Context, filter MedicationFilter) ([]*models.Medication, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+pgMedCols+` FROM medications
		WHERE ($1 = '' OR recipient_id = $1) AND (NOT $2 OR active)
		ORDER BY lower(name), created_at`,
		filter.RecipientID, filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()

	var meds []*models.Medication
	for rows.Next() {
		m, err := scanPGMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		meds = append(meds, m)
	}
	return meds, rows.Err()
}

// UpdateMedication writes only the fields set in c. A times change carries a
// NOT EXISTS guard so it cannot race with dose log inserts.
func (p *PG) UpdateMedication(ctx context.Context, id uuid.UUID, c MedicationChanges) error {
	args := []any{id, c.UpdatedAt}
	set := []string{"updated_at = $2"}
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
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
		add("end_date", *c.EndDate)
	}
	if c.Notes != nil {
		add("notes", *c.Notes)
	}
	where := "id = $1"
	if c.Times != nil {
		add("times", c.Times)
		where += " AND NOT EXISTS (SELECT 1 FROM dose_logs WHERE medication_id = medications.id)"
	}

	tag, err := p.pool.Exec(ctx, "UPDATE medications SET "+strings.Join(set, ", ")+" WHERE "+where, args...)
	if err != nil {
		return fmt.Errorf("update medication: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM medications WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("update medication: %w", err)
	}
	if !exists {
		return fmt.Errorf("medication %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("medication %s has scheduled doses: %w", id, ErrConflict)
}

// UpdateMedicationStock sets the current stock.
func (p *PG) UpdateMedicationStock(ctx context.Context, id uuid.UUID, stock int) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE medications SET current_stock = $2, initial_stock = COALESCE(initial_stock, $2), updated_at = now()
		WHERE id = $1`, id, stock)
	if err != nil {
		return fmt.Errorf("update medication stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("medication %s: %w", id, ErrNotFound)
	}
	return nil
}

// DecrementMedicationStock lowers tracked stock by one in a single statement.
func (p *PG) DecrementMedicationStock(ctx context.Context, id uuid.UUID) (*int, error) {
	var stock int
	err := p.pool.QueryRow(ctx, `
		UPDATE medications SET current_stock = GREATEST(current_stock - 1, 0), updated_at = now()
		WHERE id = $1 AND current_stock IS NOT NULL
		RETURNING current_stock`, id).Scan(&stock)
	if err == nil {
		return &stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("decrement medication stock: %w", err)
	}

	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM medications WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("decrement medication stock: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("medication %s: %w", id, ErrNotFound)
	}
	return nil, nil
}

// DeactivateMedication soft-deletes a medication.
func (p *PG) DeactivateMedication(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `UPDATE medications SET active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate medication: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("medication %s: %w", id, ErrNotFound)
	}
	return nil
}

// InsertDoseInstances sends all inserts as one batch inside a transaction.
func (p *PG) InsertDoseInstances(ctx context.Context, logs []*models.DoseLog) (int, error) {
	if len(logs) == 0 {
		return 0, nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin insert dose logs: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted, err := sendDoseBatch(ctx, tx, logs)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit dose logs: %w", err)
	}
	return inserted, nil
}

func sendDoseBatch(ctx context.Context, tx pgx.Tx, logs []*models.DoseLog) (int, error) {
	if len(logs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, l := range logs {
		batch.Queue(`
			INSERT INTO dose_logs (id, medication_id, recipient_id, scheduled_time, status, taken_at, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (medication_id, scheduled_time) DO NOTHING`,
			l.ID, l.MedicationID, l.RecipientID, l.ScheduledTime, string(l.Status), l.TakenAt, l.CreatedAt)
	}

	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for range logs {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("insert dose log: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("insert dose logs: %w", err)
	}
	return inserted, nil
}

const pgDoseSelect = `
	SELECT d.id, d.medication_id, d.recipient_id, d.scheduled_time, d.status, d.taken_at, d.created_at, m.name
	FROM dose_logs d
	JOIN medications m ON m.id = d.medication_id
`

func scanPGDoseLog(row pgx.Row) (*models.DoseLog, error) {
	var l models.DoseLog
	var status string
	err := row.Scan(&l.ID, &l.MedicationID, &l.RecipientID, &l.ScheduledTime, &status, &l.TakenAt,
		&l.CreatedAt, &l.MedicationName)
	l.Status = models.DoseStatus(status)
	return &l, err
}

// GetDoseLog retrieves a dose log by ID or ID prefix.
func (p *PG) GetDoseLog(ctx context.Context, idOrPrefix string) (*models.DoseLog, error) {
	id, err := p.resolveID(ctx, "dose_logs", idOrPrefix)
	if err != nil {
		return nil, err
	}
	l, err := scanPGDoseLog(p.pool.QueryRow(ctx, pgDoseSelect+` WHERE d.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("dose log %s: %w", idOrPrefix, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get dose log: %w", err)
	}
	return l, nil
}

// UpdateDoseLogStatus changes status only while the row still holds expected.
func (p *PG) UpdateDoseLogStatus(ctx context.Context, id uuid.UUID, expected, next models.DoseStatus, takenAt *time.Time) (*models.DoseLog, error) {
	var updated uuid.UUID
	err := p.pool.QueryRow(ctx, `
		UPDATE dose_logs SET status = $1, taken_at = $2
		WHERE id = $3 AND status = $4
		RETURNING id`,
		string(next), takenAt, id, string(expected)).Scan(&updated)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update dose log status: %w", err)
	}

	current, getErr := p.GetDoseLog(ctx, id.String())
	if getErr != nil {
		return nil, getErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return current, fmt.Errorf("dose log %s is %s: %w", id, current.Status, ErrConflict)
	}
	return current, nil
}

// QueryDoseLogs returns logs scheduled in [start, end], oldest first.
func (p *PG) QueryDoseLogs(ctx context.Context, recipientID string, start, end time.Time) ([]*models.DoseLog, error) {
	var startArg, endArg *time.Time
	if !start.IsZero() {
		startArg = &start
	}
	if !end.IsZero() {
		endArg = &end
	}

	rows, err := p.pool.Query(ctx, pgDoseSelect+`
		WHERE ($1 = '' OR d.recipient_id = $1)
			AND ($2::timestamptz IS NULL OR d.scheduled_time >= $2)
			AND ($3::timestamptz IS NULL OR d.scheduled_time <= $3)
		ORDER BY d.scheduled_time, m.name`,
		recipientID, startArg, endArg)
	if err != nil {
		return nil, fmt.Errorf("query dose logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.DoseLog
	for rows.Next() {
		l, err := scanPGDoseLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dose log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// CountDoseLogs returns how many logs reference a medication.
func (p *PG) CountDoseLogs(ctx context.Context, medicationID uuid.UUID) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dose_logs WHERE medication_id = $1`, medicationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dose logs: %w", err)
	}
	return n, nil
}

// CreateReading stores a new health reading.
func (p *PG) CreateReading(ctx context.Context, r *models.Reading) error {
	var value, systolic, diastolic *float64
	if r.IsBloodPressure() && r.Pressure != nil {
		systolic, diastolic = &r.Pressure.Systolic, &r.Pressure.Diastolic
	} else {
		value = &r.Value
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO health_readings (id, recipient_id, reading_type, value, systolic, diastolic, unit, recorded_at, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.RecipientID, string(r.Type), value, systolic, diastolic, r.Unit, r.RecordedAt, r.Notes, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create reading: %w", err)
	}
	return nil
}

// QueryHealthReadings returns readings matching q, newest first.
func (p *PG) QueryHealthReadings(ctx context.Context, q ReadingQuery) ([]*models.Reading, error) {
	var readingType string
	if q.Type != nil {
		readingType = string(*q.Type)
	}
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, recipient_id, reading_type, value, systolic, diastolic, unit, recorded_at, notes, created_at
		FROM health_readings
		WHERE ($1 = '' OR recipient_id = $1)
			AND ($2 = '' OR reading_type = $2)
			AND ($3::timestamptz IS NULL OR recorded_at >= $3)
			AND ($4::timestamptz IS NULL OR recorded_at <= $4)
		ORDER BY recorded_at DESC
		LIMIT $5`,
		q.RecipientID, readingType, q.Start, q.End, limit)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var readings []*models.Reading
	for rows.Next() {
		var r models.Reading
		var rt string
		var value, systolic, diastolic *float64
		if err := rows.Scan(&r.ID, &r.RecipientID, &rt, &value, &systolic, &diastolic,
			&r.Unit, &r.RecordedAt, &r.Notes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.Type = models.ReadingType(rt)
		if r.IsBloodPressure() && systolic != nil && diastolic != nil {
			r.Pressure = &models.BloodPressure{Systolic: *systolic, Diastolic: *diastolic}
		} else if value != nil {
			r.Value = *value
		}
		readings = append(readings, &r)
	}
	return readings, rows.Err()
}

// resolveID finds the full UUID in table from a unique text prefix.
func (p *PG) resolveID(ctx context.Context, table, idOrPrefix string) (uuid.UUID, error) {
	if looksLikeUUID(idOrPrefix) {
		return uuid.MustParse(idOrPrefix), nil
	}
	if idOrPrefix == "" {
		return uuid.Nil, fmt.Errorf("empty id: %w", ErrNotFound)
	}

	// table is always one of our own constants.
	rows, err := p.pool.Query(ctx, `SELECT id FROM `+table+` WHERE id::text LIKE $1 || '%' LIMIT 2`, idOrPrefix)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve %s id: %w", table, err)
	}
	defer rows.Close()

	var matches []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return uuid.Nil, fmt.Errorf("scan %s id: %w", table, err)
		}
		matches = append(matches, id)
	}
	if err := rows.Err(); err != nil {
		return uuid.Nil, err
	}

	switch len(matches) {
	case 0:
		return uuid.Nil, fmt.Errorf("%s %s: %w", table, idOrPrefix, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return uuid.Nil, fmt.Errorf("%s %s: %w", table, idOrPrefix, ErrAmbiguousID)
	}
}
