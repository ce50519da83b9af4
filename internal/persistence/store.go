// Package persistence stores orchestration state in SQLite: run snapshots
// for crash recovery and the append-only progress journal.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/overseer-dev/overseer/internal/scheduler"
	_ "modernc.org/sqlite"
)

// RunSnapshot is the recoverable state of one orchestration run: supervisor
// state, budget counters, and the last task graph. Written at minimum after
// every supervisor iteration so a crashed run resumes from the last
// completed iteration rather than the beginning.
type RunSnapshot struct {
	RunID        string
	Goal         string
	Iteration    int
	Verdict      string
	SessionLimit float64
	SessionUsed  float64
	DailyLimit   float64
	DailyUsed    float64
	Tasks        []*scheduler.Task
	SavedAt      time.Time
}

// Store is the persistence interface the orchestration core writes to.
type Store interface {
	SaveRun(ctx context.Context, snap RunSnapshot) error
	LoadRun(ctx context.Context, runID string) (*RunSnapshot, error)
	AppendProgress(ctx context.Context, role scheduler.Role, summary string, at time.Time) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite store at the given path.
// Enables WAL mode and a busy timeout; creates parent directories.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return openStore(ctx, connStr)
}

// NewMemoryStore creates an in-memory store for testing. A shared cache
// lets multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	return openStore(ctx, "file::memory:?mode=memory&cache=shared")
}

func openStore(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite ignores _foreign_keys in the connection string.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
