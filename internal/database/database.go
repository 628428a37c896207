package database

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"jordanella.com/autoclick-go/internal/logging"
)

// DB is the run journal. A single connection serialises the loop's writes
// with readers such as the history command and GET /runs.
type DB struct {
	conn   *sql.DB
	path   string
	logger *logging.Logger
}

// dsn builds the go-sqlite3 connection string for a journal file
func dsn(path string) string {
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", "5000")
	q.Set("_journal_mode", "WAL")
	return "file:" + filepath.ToSlash(path) + "?" + q.Encode()
}

// Open opens or creates the journal at path
func Open(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := Wrap(conn)
	db.path = path
	return db, nil
}

// Wrap uses an existing connection, e.g. a sqlmock one in tests
func Wrap(conn *sql.DB) *DB {
	return &DB{conn: conn, logger: logging.NewLogger("database")}
}

// SetLogger replaces the migration and journal logger
func (db *DB) SetLogger(logger *logging.Logger) *DB {
	db.logger = logger
	return db
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the journal file path; empty for wrapped connections
func (db *DB) Path() string {
	return db.path
}

// ExecTx executes a function within a transaction
func (db *DB) ExecTx(fn func(*sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// GetVersion returns the current database schema version
func (db *DB) GetVersion() (int, error) {
	return db.getCurrentVersion()
}

// Stats summarises the journal contents
type Stats struct {
	Version    int
	Runs       int64
	Iterations int64
}

// GetStats counts journal rows. Tables missing after a rollback count as empty.
func (db *DB) GetStats() (Stats, error) {
	var stats Stats
	version, err := db.getCurrentVersion()
	if err != nil {
		return stats, err
	}
	stats.Version = version

	counts := []struct {
		table string
		dst   *int64
	}{
		{"search_runs", &stats.Runs},
		{"search_iterations", &stats.Iterations},
	}
	for _, c := range counts {
		exists, err := db.tableExists(c.table)
		if err != nil {
			return stats, err
		}
		if !exists {
			continue
		}
		if err := db.conn.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dst); err != nil {
			return stats, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}
	return stats, nil
}

func (db *DB) tableExists(name string) (bool, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	return n > 0, err
}
