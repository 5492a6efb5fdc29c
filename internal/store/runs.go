package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hurttlocker/tasksift/internal/extract"
)

// RecordRun logs one extraction result for input. InputChars counts runes,
// not bytes. Tasks are not saved here; callers that persist todos call
// SaveTasks as well.
func (s *SQLiteStore) RecordRun(ctx context.Context, res *extract.Result, input string) (*Run, error) {
	if res == nil {
		return nil, fmt.Errorf("recording run: nil result")
	}
	run := &Run{
		ID:         uuid.NewString(),
		Mode:       string(res.ExtractionMode),
		InputChars: utf8.RuneCountInString(input),
		TaskCount:  res.Count,
		Sources:    res.Sources(),
		CreatedAt:  s.now().UTC().Truncate(time.Second),
	}
	if run.Sources == nil {
		run.Sources = []string{}
	}
	for _, a := range res.Attempts {
		ra := RunAttempt{Provider: a.Provider, ParseHit: a.ParseHit, LatencyMS: a.Latency.Milliseconds()}
		if a.Failure != nil {
			ra.Reason = string(a.Failure.Reason)
		}
		run.Attempts = append(run.Attempts, ra)
	}
	if run.Attempts == nil {
		run.Attempts = []RunAttempt{}
	}

	attempts, err := json.Marshal(run.Attempts)
	if err != nil {
		return nil, fmt.Errorf("encoding attempts: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extraction_runs (id, mode, input_chars, task_count, sources, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.InputChars, run.TaskCount,
		strings.Join(run.Sources, ","), string(attempts), run.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, input_chars, task_count, sources, attempts, created_at
		 FROM extraction_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var sources, attempts, created string
		if err := rows.Scan(&r.ID, &r.Mode, &r.InputChars, &r.TaskCount, &sources, &attempts, &created); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Sources = []string{}
		if sources != "" {
			r.Sources = strings.Split(sources, ",")
		}
		if err := json.Unmarshal([]byte(attempts), &r.Attempts); err != nil {
			return nil, fmt.Errorf("decoding attempts for run %s: %w", r.ID, err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}
