package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration is one schema step. Up and Down run inside a transaction in order.
type Migration struct {
	Version     int
	Description string
	Up          []string
	Down        []string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Create schema_version table",
		Up: []string{`
			CREATE TABLE IF NOT EXISTS schema_version (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				version INTEGER NOT NULL UNIQUE,
				description TEXT NOT NULL,
				applied_at DATETIME NOT NULL
			)`,
		},
		Down: []string{`DROP TABLE IF EXISTS schema_version`},
	},
	{
		Version:     2,
		Description: "Create search_runs table",
		Up: []string{`
			CREATE TABLE IF NOT EXISTS search_runs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL UNIQUE,
				state TEXT NOT NULL,
				templates TEXT NOT NULL,
				monitor_count INTEGER NOT NULL,
				threshold REAL NOT NULL,
				retry_ms INTEGER NOT NULL,
				timeout_ms INTEGER NOT NULL,
				iterations INTEGER NOT NULL DEFAULT 0,
				best_score REAL,
				best_template TEXT,
				monitor_index INTEGER,
				center_x INTEGER,
				center_y INTEGER,
				action_error TEXT,
				started_at DATETIME NOT NULL,
				finished_at DATETIME
			)`,
			`CREATE INDEX IF NOT EXISTS idx_search_runs_started ON search_runs(started_at)`,
		},
		Down: []string{
			`DROP INDEX IF EXISTS idx_search_runs_started`,
			`DROP TABLE IF EXISTS search_runs`,
		},
	},
	{
		Version:     3,
		Description: "Create search_iterations table",
		Up: []string{`
			CREATE TABLE IF NOT EXISTS search_iterations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL REFERENCES search_runs(run_id) ON DELETE CASCADE,
				number INTEGER NOT NULL,
				best_score REAL,
				template TEXT,
				monitor_index INTEGER,
				center_x INTEGER,
				center_y INTEGER,
				captured INTEGER NOT NULL,
				capture_failures INTEGER NOT NULL,
				accepted INTEGER NOT NULL DEFAULT 0,
				elapsed_ms INTEGER NOT NULL,
				UNIQUE(run_id, number)
			)`,
		},
		Down: []string{`DROP TABLE IF EXISTS search_iterations`},
	},
	{
		Version:     4,
		Description: "Create run_outcomes view",
		Up: []string{`
			CREATE VIEW IF NOT EXISTS run_outcomes AS
			SELECT
				state,
				COUNT(*) AS runs,
				AVG(iterations) AS avg_iterations,
				MAX(best_score) AS max_score
			FROM search_runs
			WHERE finished_at IS NOT NULL
			GROUP BY state`,
		},
		Down: []string{`DROP VIEW IF EXISTS run_outcomes`},
	},
}

// LatestVersion is the schema version after all migrations
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

func execAll(tx *sql.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RunMigrations applies pending migrations, one transaction each
func (db *DB) RunMigrations() error {
	current, err := db.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		err := db.ExecTx(func(tx *sql.Tx) error {
			if err := execAll(tx, m.Up); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
			}
			_, err := tx.Exec(`INSERT INTO schema_version (version, description, applied_at) VALUES (?, ?, ?)`,
				m.Version, m.Description, time.Now())
			return err
		})
		if err != nil {
			return err
		}
		applied++
	}

	if applied > 0 {
		db.logger.InfoWithContext("journal schema migrated", map[string]interface{}{
			"from":    current,
			"to":      LatestVersion(),
			"applied": applied,
		})
	}
	return nil
}

// RollbackTo undoes migrations above version, newest first
func (db *DB) RollbackTo(version int) error {
	current, err := db.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		if m.Version <= version || m.Version > current {
			continue
		}
		err := db.ExecTx(func(tx *sql.Tx) error {
			if err := execAll(tx, m.Down); err != nil {
				return fmt.Errorf("rollback %d failed: %w", m.Version, err)
			}
			if m.Version == 1 {
				// schema_version itself is gone
				return nil
			}
			_, err := tx.Exec(`DELETE FROM schema_version WHERE version = ?`, m.Version)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) getCurrentVersion() (int, error) {
	exists, err := db.tableExists("schema_version")
	if err != nil || !exists {
		return 0, err
	}

	var version int
	err = db.conn.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	return version, err
}
