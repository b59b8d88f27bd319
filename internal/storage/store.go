// Package storage persists macro run history in an embedded SQLite
// database. The engine treats it as an optional sink; everything here
// also works standalone for inspecting past runs.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite database connection
type Store struct {
	conn *sql.DB
	path string
}

// Open opens or creates a SQLite database at the specified path
func Open(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite works best with a single connection
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	return &Store{
		conn: conn,
		path: dbPath,
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Conn returns the underlying sql.DB connection
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// ExecTx executes a function within a transaction
func (s *Store) ExecTx(fn func(*sql.Tx) error) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// GetVersion returns the current database schema version
func (s *Store) GetVersion() (int, error) {
	var version int
	err := s.conn.QueryRow("SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Backup creates a file copy of the database
func (s *Store) Backup(backupPath string) error {
	dir := filepath.Dir(backupPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	sourceData, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read database: %w", err)
	}

	if err := os.WriteFile(backupPath, sourceData, 0644); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	return nil
}

// Vacuum optimizes the database
func (s *Store) Vacuum() error {
	_, err := s.conn.Exec("VACUUM")
	return err
}

// Stats returns row counts per table
func (s *Store) Stats() (map[string]int64, error) {
	stats := make(map[string]int64)

	tables := []string{
		"runs",
		"run_steps",
	}

	for _, table := range tables {
		var count int64
		err := s.conn.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			// Table might not exist yet, skip
			continue
		}
		stats[table] = count
	}

	return stats, nil
}

// Migration represents a database schema migration
type Migration struct {
	Version     int
	Description string
	Up          func(*sql.Tx) error
	Down        func(*sql.Tx) error
}

// migrations is the ordered list of all database migrations
var migrations = []Migration{
	{
		Version:     1,
		Description: "Create schema_version table",
		Up:          migration001Up,
		Down:        migration001Down,
	},
	{
		Version:     2,
		Description: "Create runs and run_steps tables",
		Up:          migration002Up,
		Down:        migration002Down,
	},
}

// RunMigrations runs all pending database migrations
func (s *Store) RunMigrations() error {
	currentVersion, err := s.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		fmt.Printf("Running migration %d: %s\n", migration.Version, migration.Description)

		err := s.ExecTx(func(tx *sql.Tx) error {
			if err := migration.Up(tx); err != nil {
				return fmt.Errorf("migration %d failed: %w", migration.Version, err)
			}

			_, err := tx.Exec(`
				INSERT INTO schema_version (version, description, applied_at)
				VALUES (?, ?, ?)
			`, migration.Version, migration.Description, time.Now())

			return err
		})

		if err != nil {
			return err
		}
	}

	return nil
}

// getCurrentVersion returns the current schema version
func (s *Store) getCurrentVersion() (int, error) {
	var tableExists bool
	err := s.conn.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)

	if err != nil {
		return 0, err
	}

	if !tableExists {
		return 0, nil
	}

	var version int
	err = s.conn.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_version
	`).Scan(&version)

	if err != nil {
		return 0, err
	}

	return version, nil
}

// Migration 001: Schema version tracking table
func migration001Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			description TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	return err
}

func migration001Down(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS schema_version`)
	return err
}

// Migration 002: Run history tables
func migration002Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sequence_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'started',
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			duration_ms INTEGER,
			steps_executed INTEGER DEFAULT 0,
			total_steps INTEGER DEFAULT 0,
			error_message TEXT,
			failed_action_id TEXT
		);

		CREATE INDEX idx_runs_sequence ON runs(sequence_name);
		CREATE INDEX idx_runs_started ON runs(started_at);
		CREATE INDEX idx_runs_status ON runs(status);
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE run_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			action_id TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			executed_at DATETIME NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		);

		CREATE INDEX idx_run_steps_run ON run_steps(run_id);
	`)
	return err
}

func migration002Down(tx *sql.Tx) error {
	_, err := tx.Exec(`
		DROP INDEX IF EXISTS idx_run_steps_run;
		DROP TABLE IF EXISTS run_steps;

		DROP INDEX IF EXISTS idx_runs_status;
		DROP INDEX IF EXISTS idx_runs_started;
		DROP INDEX IF EXISTS idx_runs_sequence;
		DROP TABLE IF EXISTS runs;
	`)
	return err
}
