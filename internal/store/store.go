// Package store provides the SQLite storage layer for tasksift.
//
// All data lives in a single SQLite database file:
// - Todos produced by extraction or created by hand
// - A log of extraction runs (mode, input size, sources, attempt outcomes)
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hurttlocker/tasksift/internal/extract"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.tasksift/tasksift.db"

// DefaultListLimit caps ListTasks and ListRuns when no limit is given.
const DefaultListLimit = 100

// ErrNotFound is returned when a todo or run id does not exist.
var ErrNotFound = errors.New("not found")

// ListOpts filters ListTasks. Empty fields match everything.
type ListOpts struct {
	Category  string
	Priority  string
	Completed *bool
	Limit     int
	Offset    int
}

// TaskPatch is a partial update; nil fields are left unchanged.
// DueDate set to a pointer to "" clears the due date.
type TaskPatch struct {
	Title     *string
	Category  *string
	Priority  *string
	DueDate   *string
	Completed *bool
}

// Run is one logged extraction.
type Run struct {
	ID         string       `json:"id"`
	Mode       string       `json:"mode"`
	InputChars int          `json:"inputChars"`
	TaskCount  int          `json:"taskCount"`
	Sources    []string     `json:"sources"`
	Attempts   []RunAttempt `json:"attempts"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// RunAttempt summarizes one provider stage of a run.
type RunAttempt struct {
	Provider  string `json:"provider"`
	Reason    string `json:"reason,omitempty"`
	ParseHit  bool   `json:"parseHit"`
	LatencyMS int64  `json:"latencyMs"`
}

// Stats holds counts for the stats command.
type Stats struct {
	TodoCount      int64            `json:"todoCount"`
	OpenCount      int64            `json:"openCount"`
	CompletedCount int64            `json:"completedCount"`
	RunCount       int64            `json:"runCount"`
	ByCategory     map[string]int64 `json:"byCategory"`
	BySource       map[string]int64 `json:"bySource"`
	DBSizeBytes    int64            `json:"dbSizeBytes"`
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the persistence interface.
type Store interface {
	// Todos
	SaveTasks(ctx context.Context, tasks []extract.Task) error
	GetTask(ctx context.Context, id string) (*extract.Task, error)
	ListTasks(ctx context.Context, opts ListOpts) ([]extract.Task, error)
	UpdateTask(ctx context.Context, id string, patch TaskPatch) (*extract.Task, error)
	SetCompleted(ctx context.Context, id string, completed bool) error
	DeleteTask(ctx context.Context, id string) error

	// Extraction runs
	RecordRun(ctx context.Context, res *extract.Result, input string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Observability
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every new connection to ":memory:" is a fresh, empty database.
	if cfg.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath, now: time.Now}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Stats returns todo and run counts.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByCategory: map[string]int64{}, BySource: map[string]int64{}}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM todos", &stats.TodoCount},
		{"SELECT COUNT(*) FROM todos WHERE completed = 0", &stats.OpenCount},
		{"SELECT COUNT(*) FROM todos WHERE completed = 1", &stats.CompletedCount},
		{"SELECT COUNT(*) FROM extraction_runs", &stats.RunCount},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("querying stats (%s): %w", q.query, err)
		}
	}

	groups := []struct {
		query string
		dest  map[string]int64
	}{
		{"SELECT category, COUNT(*) FROM todos GROUP BY category", stats.ByCategory},
		{"SELECT source, COUNT(*) FROM todos GROUP BY source", stats.BySource},
	}
	for _, g := range groups {
		if err := s.countGroups(ctx, g.query, g.dest); err != nil {
			return nil, err
		}
	}

	// Get DB size (only works for file-based DBs)
	if s.dbPath != ":memory:" {
		var pageCount, pageSize int64
		s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
		s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.DBSizeBytes = pageCount * pageSize
	}

	return stats, nil
}

func (s *SQLiteStore) countGroups(ctx context.Context, query string, dest map[string]int64) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("querying stats (%s): %w", query, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scanning stats: %w", err)
		}
		dest[key] = n
	}
	return rows.Err()
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
