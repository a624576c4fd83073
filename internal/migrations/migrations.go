package migrations

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// AllMigrations contains all journal migrations in order
var AllMigrations = []Migration{
	{
		Version: 1,
		Name:    "Add outcome indices for phase and bucket queries",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_outcomes_phase ON outcomes(run_id, phase);
			CREATE INDEX IF NOT EXISTS idx_outcomes_bucket ON outcomes(run_id, bucket);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_outcomes_phase;
			DROP INDEX IF EXISTS idx_outcomes_bucket;
		`,
	},
	{
		Version: 2,
		Name:    "Add run_phases table",
		Up: `
			CREATE TABLE IF NOT EXISTS run_phases (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id INTEGER NOT NULL,
				position INTEGER NOT NULL,
				name TEXT NOT NULL,
				tag TEXT NOT NULL,
				tasks INTEGER NOT NULL DEFAULT 0,
				elapsed_ms INTEGER NOT NULL DEFAULT 0,
				FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id, position);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_run_phases_run_id;
			DROP TABLE IF EXISTS run_phases;
		`,
	},
	{
		Version: 3,
		Name:    "Add verdict_reasons column to runs",
		Up: `
			ALTER TABLE runs ADD COLUMN verdict_reasons TEXT NOT NULL DEFAULT '';
		`,
		Down: `
			-- SQLite does not support DROP COLUMN easily
		`,
	},
}

// InitSchema creates the base journal tables.
// This must be called before running migrations to ensure all tables exist
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		seed INTEGER NOT NULL DEFAULT 0,
		max_concurrency INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		status TEXT NOT NULL,
		total_requests INTEGER DEFAULT 0,
		setup_requests INTEGER DEFAULT 0,
		runtime_requests INTEGER DEFAULT 0,
		runtime_errors INTEGER DEFAULT 0,
		runtime_error_rate REAL DEFAULT 0,
		runtime_p50_ms REAL DEFAULT 0,
		runtime_p95_ms REAL DEFAULT 0,
		runtime_p99_ms REAL DEFAULT 0,
		passed INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		phase TEXT NOT NULL,
		bucket TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		latency_us INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failure_reason TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_run_id ON outcomes(run_id);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Run executes all pending migrations on the database
func Run(db *sql.DB) error {
	// Initialize schema first to ensure all tables exist
	if err := InitSchema(db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := GetCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for _, migration := range AllMigrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}
		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version,
			migration.Name,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// GetCurrentVersion returns the current database schema version
func GetCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_migrations
	`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return version, nil
}

// Truncate empties every journal table, keeping the schema
func Truncate(db *sql.DB) error {
	_, err := db.Exec(`
		DELETE FROM run_phases;
		DELETE FROM outcomes;
		DELETE FROM runs;
	`)
	if err != nil {
		return fmt.Errorf("failed to truncate journal: %w", err)
	}
	return nil
}
