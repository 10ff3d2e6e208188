// ABOUTME: SQLite schema definition and initialization.
// ABOUTME: Defines tables for medications, dose_logs, and health_readings.
package storage

// initSchema creates or updates the database schema.
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS medications (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		name TEXT NOT NULL,
		dosage REAL NOT NULL,
		dosage_unit TEXT NOT NULL,
		frequency TEXT,
		times TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		initial_stock INTEGER,
		current_stock INTEGER CHECK (current_stock IS NULL OR current_stock >= 0),
		active INTEGER NOT NULL DEFAULT 1,
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dose_logs (
		id TEXT PRIMARY KEY,
		medication_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		scheduled_time TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'taken', 'skipped')),
		taken_at TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (medication_id, scheduled_time),
		FOREIGN KEY (medication_id) REFERENCES medications(id)
	);

	CREATE TABLE IF NOT EXISTS health_readings (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		reading_type TEXT NOT NULL,
		value REAL,
		systolic REAL,
		diastolic REAL,
		unit TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_medications_recipient ON medications(recipient_id, active);
	CREATE INDEX IF NOT EXISTS idx_dose_logs_recipient_time ON dose_logs(recipient_id, scheduled_time);
	CREATE INDEX IF NOT EXISTS idx_readings_recipient_type ON health_readings(recipient_id, reading_type, recorded_at DESC);
	CREATE INDEX IF NOT EXISTS idx_readings_recorded ON health_readings(recorded_at DESC);
	`

	_, err := d.db.Exec(schema)
	return err
}
