package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// schemaVersion is bumped whenever a migration step is appended.
const schemaVersion = "3"

// migrate creates all tables if they don't exist and applies schema evolution.
func (s *SQLiteStore) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS todos (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			category   TEXT NOT NULL,
			priority   TEXT NOT NULL,
			due_date   TEXT,
			completed  INTEGER NOT NULL DEFAULT 0,
			source     TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_todos_category ON todos(category)`,
		`CREATE INDEX IF NOT EXISTS idx_todos_completed ON todos(completed)`,

		`CREATE TABLE IF NOT EXISTS extraction_runs (
			id          TEXT PRIMARY KEY,
			mode        TEXT NOT NULL,
			input_chars INTEGER NOT NULL,
			task_count  INTEGER NOT NULL,
			sources     TEXT NOT NULL DEFAULT '',
			attempts    TEXT NOT NULL DEFAULT '[]',
			created_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON extraction_runs(created_at)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing DDL: %w\nStatement: %s", err, stmt)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}

	// Schema evolution (v2): updated_at on todos, maintained by UpdateTask.
	if err := s.addTodoColumn("updated_at", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("migrating updated_at column: %w", err)
	}
	// v3: context on todos.
	if err := s.addTodoColumn("context", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("migrating context column: %w", err)
	}

	_, err = s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion)
	return err
}

// addTodoColumn adds a column to todos on databases created before it existed.
func (s *SQLiteStore) addTodoColumn(name, decl string) error {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('todos') WHERE name = ?", name).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking %s column: %w", name, err)
	}
	if count > 0 {
		return nil
	}
	if _, err := s.db.Exec("ALTER TABLE todos ADD COLUMN " + name + " " + decl); err != nil && !isDuplicateColumnError(err) {
		return err
	}
	return nil
}

func (s *SQLiteStore) getMetaValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
