package persistence

import (
	"database/sql"
	"errors"
	"fmt"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 1

// InitializeDatabase creates and initializes a standalone SQLite database
// with the required schema. Used by tests; production code goes through
// Initialize and the singleton.
func InitializeDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_foreign_keys=ON&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initializeSchemaWithMigrations ensures the database schema is at the current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Empty database: create fresh schema.
	if currentVersion == 0 {
		return createSchema(db)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies database migrations from current version to target version.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}

		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

// runMigration applies a specific version migration. Version 1 is the
// initial schema, created whole by createSchema; later versions ALTER
// from here.
func runMigration(_ *sql.DB, version int) error {
	switch version {
	case 1:
		return nil
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// createSchema creates all required tables and indices.
func createSchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	tables := []string{
		// Schema version tracking
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// One row per agent run
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			task TEXT NOT NULL,
			model TEXT,
			state TEXT NOT NULL CHECK (state IN ('running','completed','error','cancelled')),
			success INTEGER NOT NULL DEFAULT 0,
			final_result TEXT,
			error_kind TEXT,
			error_message TEXT,
			prompt_tokens BIGINT NOT NULL DEFAULT 0,
			completion_tokens BIGINT NOT NULL DEFAULT 0,
			total_tokens BIGINT NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		// One row per step; re-queued attempts overwrite the row while the
		// retries column keeps the attempt count
		`CREATE TABLE IF NOT EXISTS steps (
			execution_id TEXT NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
			number INTEGER NOT NULL,
			id TEXT NOT NULL,
			state TEXT NOT NULL CHECK (state IN ('pending','thinking','calling_tool','reflecting','completed','error','skipped')),
			response TEXT,
			reflection TEXT,
			retries INTEGER NOT NULL DEFAULT 0,
			error_kind TEXT,
			error_message TEXT,
			started_at DATETIME,
			ended_at DATETIME,
			PRIMARY KEY (execution_id, number)
		)`,

		// One row per executed action; call ids are unique within a step
		`CREATE TABLE IF NOT EXISTS action_results (
			execution_id TEXT NOT NULL,
			step_number INTEGER NOT NULL,
			call_id TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			tool TEXT NOT NULL,
			args TEXT,
			success INTEGER NOT NULL DEFAULT 0,
			content TEXT,
			error_message TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			PRIMARY KEY (execution_id, step_number, call_id),
			FOREIGN KEY (execution_id, step_number) REFERENCES steps(execution_id, number) ON DELETE CASCADE
		)`,
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_executions_state ON executions(state)",
		"CREATE INDEX IF NOT EXISTS idx_executions_started ON executions(started_at)",
		"CREATE INDEX IF NOT EXISTS idx_steps_execution ON steps(execution_id)",
		"CREATE INDEX IF NOT EXISTS idx_steps_state ON steps(state)",
		"CREATE INDEX IF NOT EXISTS idx_actions_step ON action_results(execution_id, step_number)",
		"CREATE INDEX IF NOT EXISTS idx_actions_tool ON action_results(tool)",
	}

	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, ddl := range indices {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := setSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return nil
}

// setSchemaVersion records the current schema version.
func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO schema_version (version) VALUES (?)
	`, version)
	if err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}
