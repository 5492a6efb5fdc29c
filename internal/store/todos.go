package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hurttlocker/tasksift/internal/extract"
)

// ErrInvalid is returned when a patch carries a value outside its closed set.
var ErrInvalid = errors.New("invalid value")

const todoColumns = "id, title, category, priority, due_date, completed, source, created_at, context"

// maxIDSuffix bounds the renaming attempts for one colliding id.
const maxIDSuffix = 1000

// SaveTasks inserts tasks in one transaction. Stored todos are never
// overwritten: a task whose id is already taken is stored as <id>_<n> and
// tasks[i].ID is rewritten in place so callers report the stored id.
// Edits go through UpdateTask.
func (s *SQLiteStore) SaveTasks(ctx context.Context, tasks []extract.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO todos (id, title, category, priority, due_date, completed, source, created_at, updated_at, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC().Format(time.RFC3339)
	for i := range tasks {
		t := &tasks[i]
		id := t.ID
		for n := 0; ; n++ {
			if n > maxIDSuffix {
				return fmt.Errorf("inserting todo %s: no free id", t.ID)
			}
			if n > 0 {
				id = fmt.Sprintf("%s_%d", t.ID, n)
			}
			res, err := stmt.ExecContext(ctx,
				id, t.Title, t.Category, t.Priority, nullableString(t.DueDate),
				boolToInt(t.Completed), t.Source, t.CreatedAt, now, t.Context,
			)
			if err != nil {
				return fmt.Errorf("inserting todo %s: %w", id, err)
			}
			if affected, err := res.RowsAffected(); err != nil {
				return fmt.Errorf("inserting todo %s: %w", id, err)
			} else if affected == 1 {
				break
			}
		}
		t.ID = id
	}
	return tx.Commit()
}

// GetTask returns one todo or ErrNotFound.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*extract.Task, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+todoColumns+" FROM todos WHERE id = ?", id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("todo %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting todo: %w", err)
	}
	return t, nil
}

// ListTasks returns todos newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, opts ListOpts) ([]extract.Task, error) {
	var where []string
	var args []any
	if opts.Category != "" {
		where = append(where, "category = ?")
		args = append(args, opts.Category)
	}
	if opts.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, opts.Priority)
	}
	if opts.Completed != nil {
		where = append(where, "completed = ?")
		args = append(args, boolToInt(*opts.Completed))
	}

	query := "SELECT " + todoColumns + " FROM todos"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query += " ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing todos: %w", err)
	}
	defer rows.Close()

	out := []extract.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning todo: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UpdateTask applies patch and returns the updated todo.
func (s *SQLiteStore) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*extract.Task, error) {
	var sets []string
	var args []any

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("title: %w", ErrInvalid)
		}
		sets = append(sets, "title = ?")
		args = append(args, title)
	}
	if patch.Category != nil {
		if !extract.IsValidCategory(*patch.Category) {
			return nil, fmt.Errorf("category %q: %w", *patch.Category, ErrInvalid)
		}
		sets = append(sets, "category = ?")
		args = append(args, *patch.Category)
	}
	if patch.Priority != nil {
		if !extract.IsValidPriority(*patch.Priority) {
			return nil, fmt.Errorf("priority %q: %w", *patch.Priority, ErrInvalid)
		}
		sets = append(sets, "priority = ?")
		args = append(args, *patch.Priority)
	}
	if patch.DueDate != nil {
		switch {
		case *patch.DueDate == "":
			sets = append(sets, "due_date = NULL")
		case extract.ValidDate(*patch.DueDate):
			sets = append(sets, "due_date = ?")
			args = append(args, *patch.DueDate)
		default:
			return nil, fmt.Errorf("due date %q: %w", *patch.DueDate, ErrInvalid)
		}
	}
	if patch.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, boolToInt(*patch.Completed))
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, s.now().UTC().Format(time.RFC3339), id)
		res, err := s.db.ExecContext(ctx, "UPDATE todos SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			return nil, fmt.Errorf("updating todo: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("todo %s: %w", id, ErrNotFound)
		}
	}
	return s.GetTask(ctx, id)
}

// SetCompleted marks a todo done or open.
func (s *SQLiteStore) SetCompleted(ctx context.Context, id string, completed bool) error {
	_, err := s.UpdateTask(ctx, id, TaskPatch{Completed: &completed})
	return err
}

// DeleteTask removes a todo.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM todos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting todo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("todo %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*extract.Task, error) {
	var t extract.Task
	var due sql.NullString
	var completed int
	if err := row.Scan(&t.ID, &t.Title, &t.Category, &t.Priority, &due, &completed, &t.Source, &t.CreatedAt, &t.Context); err != nil {
		return nil, err
	}
	if due.Valid && due.String != "" {
		d := due.String
		t.DueDate = &d
	}
	t.Completed = completed != 0
	return &t, nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
