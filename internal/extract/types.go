// Package extract turns free-form text (notes, emails, pasted messages)
// into structured todo items.
//
// The pipeline tries each configured text-generation provider in order,
// parses the JSON array embedded in the reply, and falls back to a local
// keyword classifier when every provider fails:
//
//	text + mode -> provider attempt(s) -> ParseReply -> NormalizeBatch -> []Task
//	text        -> ExtractLocal                      -> NormalizeBatch -> []Task
//
// Every Task records in Source which path produced it.
package extract

import (
	"errors"
	"strings"
	"time"
)

// ErrEmptyText is returned when the input is blank. No provider is called.
var ErrEmptyText = errors.New("text to extract is required")

// Provenance tags that are not provider names.
const (
	SourceLocal  = "local"  // local fallback extractor
	SourceManual = "manual" // created by hand through the API, CLI or MCP
)

// Category names. CategoryOther is the catch-all and never scores.
const (
	CategoryWork     = "work"
	CategoryPersonal = "personal"
	CategoryHealth   = "health"
	CategoryLearning = "learning"
	CategoryShopping = "shopping"
	CategoryOther    = "other"
)

// Priority levels.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// DateLayout is the only accepted due date format.
const DateLayout = "2006-01-02"

// Mode selects the prompt template.
type Mode string

const (
	ModeGeneral Mode = "general"
	ModeEmail   Mode = "email"
)

// ParseMode maps a request value to a Mode. Anything but "email" is general.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeEmail)) {
		return ModeEmail
	}
	return ModeGeneral
}

// Task is a normalized, actionable todo item.
type Task struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Category  string  `json:"category"`
	Priority  string  `json:"priority"`
	DueDate   *string `json:"dueDate"`
	Completed bool    `json:"completed"`
	Source    string  `json:"source"`
	CreatedAt string  `json:"createdAt"`
	Context   string  `json:"context,omitempty"`
}

// Candidate is an unvalidated task-like record, either decoded from a
// provider reply or produced by the local extractor.
type Candidate struct {
	Title    string
	Category string
	Priority string
	DueDate  string
	Context  string // surrounding sentence; email mode asks for it
}

// Result is the envelope returned by Extractor.Extract.
type Result struct {
	Todos          []Task `json:"todos"`
	Count          int    `json:"count"`
	ExtractionMode Mode   `json:"extractionMode"`
	Timestamp      string `json:"timestamp"`

	// Attempts records each provider stage in order. Not serialized; the
	// per-task Source is the public provenance.
	Attempts []Attempt `json:"-"`
}

// Attempt is the trace of one provider stage.
type Attempt struct {
	Provider string
	Failure  *Failure // nil when the provider answered
	ParseHit bool     // reply carried a decodable JSON array
	Latency  time.Duration
}

// Sources returns the distinct task sources in first-seen order.
func (r *Result) Sources() []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range r.Todos {
		if !seen[t.Source] {
			seen[t.Source] = true
			out = append(out, t.Source)
		}
	}
	return out
}
