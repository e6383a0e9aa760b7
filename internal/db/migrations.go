package db

import (
	"fmt"
)

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Bills own an ordered sequence of line items
CREATE TABLE bills (
    id TEXT PRIMARY KEY,
    bill_number TEXT NOT NULL UNIQUE,
    stage TEXT NOT NULL DEFAULT 'keying'
        CHECK (stage IN ('keying', 'billReview', 'quote', 'adjudicated')),
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Line items; column names match the field table
CREATE TABLE bill_line_items (
    id TEXT PRIMARY KEY,
    bill_id TEXT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
    line_number INTEGER NOT NULL,
    service_start_date TEXT NOT NULL DEFAULT '',
    service_end_date TEXT NOT NULL DEFAULT '',
    revenue_code TEXT NOT NULL DEFAULT '',
    place_of_service TEXT NOT NULL DEFAULT '',
    procedure_code TEXT NOT NULL DEFAULT '',
    modifier TEXT NOT NULL DEFAULT '',
    remark_code_1 TEXT NOT NULL DEFAULT '',
    remark_code_2 TEXT NOT NULL DEFAULT '',
    remark_code_3 TEXT NOT NULL DEFAULT '',
    remark_code_4 TEXT NOT NULL DEFAULT '',
    quantity REAL,
    description TEXT NOT NULL DEFAULT '',
    charge REAL,
    other_ins_allowed REAL,
    other_ins_paid REAL,
    approved_amount REAL,
    third_party REAL,
    patient_responsibility REAL,
    account TEXT NOT NULL DEFAULT '',
    medicare_status TEXT NOT NULL DEFAULT 'TBD',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Audit trail for field edits
CREATE TABLE line_item_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    line_item_id TEXT NOT NULL,
    bill_id TEXT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
    field_name TEXT NOT NULL,
    old_value TEXT,
    new_value TEXT,
    change_reason TEXT,
    changed_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Code catalogue used for search and descriptions
CREATE TABLE codes (
    id TEXT PRIMARY KEY,
    code_type TEXT NOT NULL,
    code_name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    UNIQUE (code_type, code_name)
);

-- Indexes
CREATE INDEX idx_line_items_bill ON bill_line_items(bill_id, line_number);
CREATE INDEX idx_history_line ON line_item_history(line_item_id);
CREATE INDEX idx_codes_name ON codes(code_name);
CREATE INDEX idx_bills_stage ON bills(stage);
`,
	},
	{
		version: 2,
		sql: `
-- Cross-bill duplicate lookups
CREATE INDEX idx_line_items_service ON bill_line_items(procedure_code, service_start_date);
`,
	},
}

// RunMigrations applies all pending database migrations
func (db *DB) RunMigrations() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	currentVersion, err := db.SchemaVersion()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		if _, err := tx.Exec(m.sql); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}

	return nil
}

// SchemaVersion returns the highest applied migration
func (db *DB) SchemaVersion() (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get current schema version: %w", err)
	}
	return v, nil
}

// LatestVersion returns the version the schema will be at after migrating
func LatestVersion() int {
	return migrations[len(migrations)-1].version
}
