package extract

import (
	"fmt"
	"strings"
	"time"
)

// Normalize validates one candidate and stamps identity and timestamps.
// ok=false means the candidate was dropped (blank title).
func Normalize(c Candidate, index int, source string, now time.Time) (Task, bool) {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return Task{}, false
	}

	category := strings.ToLower(strings.TrimSpace(c.Category))
	if !IsValidCategory(category) {
		category = CategoryOther
	}

	priority := strings.ToLower(strings.TrimSpace(c.Priority))
	if !IsValidPriority(priority) {
		priority = PriorityMedium
	}

	return Task{
		ID:        fmt.Sprintf("extracted_%d_%d", now.UnixMilli(), index),
		Title:     title,
		Category:  category,
		Priority:  priority,
		DueDate:   normalizeDate(c.DueDate),
		Completed: false,
		Source:    source,
		CreatedAt: now.Format(time.RFC3339),
		Context:   strings.TrimSpace(c.Context),
	}, true
}

// NormalizeBatch normalizes cands in order, dropping blank titles. The
// candidate's position is the id sequence index, so ids stay unique even
// when the whole batch shares one millisecond.
func NormalizeBatch(cands []Candidate, source string, now time.Time) []Task {
	tasks := make([]Task, 0, len(cands))
	for i, c := range cands {
		if t, ok := Normalize(c, i, source, now); ok {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

// ValidDate reports whether s is a real calendar date in YYYY-MM-DD form.
func ValidDate(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

func normalizeDate(raw string) *string {
	s := strings.TrimSpace(raw)
	if !ValidDate(s) {
		return nil
	}
	return &s
}
