// Package sqlite implements store.Store on top of SQLite, giving the
// Reporter (C10) a durable append log of cycle snapshots independent of
// the in-memory state the daemon holds between restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arcyd/arcyd/internal/store"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if necessary) a SQLite-backed history store at
// dbPath. Use ":memory:" for an in-memory database, useful for testing.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cycles (
		cycle_id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		status TEXT NOT NULL,
		cycle_seconds REAL NOT NULL,
		repo_statuses TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cycles_timestamp ON cycles(timestamp DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordCycle appends one cycle's outcome to the history log.
func (s *Store) RecordCycle(ctx context.Context, cycle store.CycleRecord) error {
	repoStatuses, err := json.Marshal(cycle.RepoStatuses)
	if err != nil {
		return fmt.Errorf("failed to marshal repo statuses: %w", err)
	}

	cycleID := store.GenerateCycleID(cycle.Timestamp)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cycles (cycle_id, timestamp, status, cycle_seconds, repo_statuses)
		VALUES (?, ?, ?, ?, ?)
	`, cycleID, cycle.Timestamp.Unix(), cycle.Status, cycle.CycleSeconds, string(repoStatuses))
	if err != nil {
		return fmt.Errorf("failed to record cycle: %w", err)
	}
	return nil
}

// ListCycles retrieves the most recent cycle records, newest first.
func (s *Store) ListCycles(ctx context.Context, limit int) ([]store.CycleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, status, cycle_seconds, repo_statuses
		FROM cycles
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	return scanCycles(rows)
}

// ListCyclesForRepo retrieves the most recent cycles in which the named
// repo appears in the recorded repo statuses, newest first.
func (s *Store) ListCyclesForRepo(ctx context.Context, repo string, limit int) ([]store.CycleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, status, cycle_seconds, repo_statuses
		FROM cycles
		WHERE repo_statuses LIKE '%' || ? || '%'
		ORDER BY timestamp DESC
		LIMIT ?
	`, `"name":"`+repo+`"`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles for repo: %w", err)
	}
	defer rows.Close()

	all, err := scanCycles(rows)
	if err != nil {
		return nil, err
	}

	// LIKE is a coarse pre-filter (avoids a full table scan doing the
	// exact match in Go); confirm the repo is genuinely present.
	filtered := make([]store.CycleRecord, 0, len(all))
	for _, c := range all {
		for _, rs := range c.RepoStatuses {
			if rs.Name == repo {
				filtered = append(filtered, c)
				break
			}
		}
	}
	return filtered, nil
}

func scanCycles(rows *sql.Rows) ([]store.CycleRecord, error) {
	var cycles []store.CycleRecord
	for rows.Next() {
		var c store.CycleRecord
		var timestamp int64
		var repoStatuses string

		if err := rows.Scan(&timestamp, &c.Status, &c.CycleSeconds, &repoStatuses); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		c.Timestamp = time.Unix(timestamp, 0)
		if err := json.Unmarshal([]byte(repoStatuses), &c.RepoStatuses); err != nil {
			return nil, fmt.Errorf("failed to unmarshal repo statuses: %w", err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycles: %w", err)
	}
	return cycles, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
