package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens/creates a SQLite DB file and ensures tables exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// one connection: serializes writers and keeps ":memory:" databases alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA journal_mode=WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA foreign_keys=ON: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA busy_timeout=5000: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

const schemaAssignees = `
CREATE TABLE IF NOT EXISTS assignees (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT 1
);
`

const schemaUnitModels = `
CREATE TABLE IF NOT EXISTS unit_models (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL
);
`

const schemaStatuses = `
CREATE TABLE IF NOT EXISTS statuses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    status TEXT UNIQUE NOT NULL,
    color TEXT NOT NULL DEFAULT '',
    is_ending_status BOOLEAN NOT NULL DEFAULT 0,
    can_use_for_order BOOLEAN NOT NULL DEFAULT 0,
    can_use_for_machine BOOLEAN NOT NULL DEFAULT 0,
    can_use_for_hashboard BOOLEAN NOT NULL DEFAULT 0
);
`

// Timestamps are RFC3339Nano UTC text.
const schemaRepairOrders = `
CREATE TABLE IF NOT EXISTS repair_orders (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    status_id INTEGER NOT NULL REFERENCES statuses(id),
    summary TEXT NOT NULL DEFAULT '',
    color TEXT NOT NULL DEFAULT '',
    created TEXT NOT NULL,
    received TEXT,
    received_quantity INTEGER,
    started TEXT,
    finished TEXT
);
`

const schemaRepairUnits = `
CREATE TABLE IF NOT EXISTS repair_units (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    serial TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL CHECK (type IN ('machine', 'hashboard')),
    model_id INTEGER REFERENCES unit_models(id),
    current_status_id INTEGER NOT NULL REFERENCES statuses(id),
    current_assignee_id INTEGER REFERENCES assignees(id),
    repair_order_id INTEGER NOT NULL REFERENCES repair_orders(id),
    created TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    events_json TEXT NOT NULL DEFAULT '[]'
);
`

const indexUnitsByOrder = `
CREATE INDEX IF NOT EXISTS idx_repair_units_order ON repair_units (repair_order_id);
`

const indexUnitsByStatus = `
CREATE INDEX IF NOT EXISTS idx_repair_units_status ON repair_units (current_status_id);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaAssignees,
		schemaUnitModels,
		schemaStatuses,
		schemaRepairOrders,
		schemaRepairUnits,
		indexUnitsByOrder,
		indexUnitsByStatus,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
