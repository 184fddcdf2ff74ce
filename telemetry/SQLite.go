package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLite is a Sink which stores recorded scalars in a SQLite database.
// Each SQLite sink records under its own run ID, so that many runs can
// share a database.
type SQLite struct {
	path  string
	runID string

	mu sync.Mutex
	db *sql.DB
}

// OpenSQLite opens the SQLite database at path, creating its tables if
// needed, and registers a new run described by description
func OpenSQLite(ctx context.Context, path, description string) (*SQLite,
	error) {
	if path == "" {
		return nil, errors.New("openSQLite: sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("openSQLite: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("openSQLite: %v", err)
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("openSQLite: %v", err)
	}

	s := &SQLite{path: path, runID: uuid.New().String(), db: db}
	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, description)
		VALUES (?, ?, ?)
	`, s.runID, time.Now().UTC().Format(time.RFC3339), description)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("openSQLite: could not register run: %v", err)
	}
	return s, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			description TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scalars (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			name TEXT NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (run_id, step, name)
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RunID returns the ID under which scalars are recorded
func (s *SQLite) RunID() string { return s.runID }

func (s *SQLite) getDB() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errors.New("sqlite store is closed")
	}
	return s.db, nil
}

// Record implements the Sink interface. Scalars recorded twice at the
// same step overwrite the earlier values.
func (s *SQLite) Record(ctx context.Context, step int,
	scalars map[string]float64) error {
	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("record: %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record: %v", err)
	}
	for name, v := range scalars {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scalars (run_id, step, name, value)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(run_id, step, name) DO UPDATE SET
				value = excluded.value
		`, s.runID, step, name, v)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record: %v", err)
	}
	return nil
}

// Series returns the points recorded under name by this run, ordered
// by step
func (s *SQLite) Series(ctx context.Context, name string) ([]Point, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, fmt.Errorf("series: %v", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT step, value FROM scalars
		WHERE run_id = ? AND name = ?
		ORDER BY step
	`, s.runID, name)
	if err != nil {
		return nil, fmt.Errorf("series: %v", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Step, &p.Value); err != nil {
			return nil, fmt.Errorf("series: %v", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Close closes the database
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
