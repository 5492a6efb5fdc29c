package extract

import (
	"encoding/json"
	"regexp"
)

// jsonArrayRE spans the leftmost '[' to the last ']' across lines.
var jsonArrayRE = regexp.MustCompile(`(?s)\[.*\]`)

// ParseReply decodes the JSON array embedded in a provider reply.
// ok=false is a parse miss: no bracketed span, or the span is not a JSON
// array. Records are returned as-is; NormalizeBatch does the coercion.
func ParseReply(raw string) (cands []Candidate, ok bool) {
	span := jsonArrayRE.FindString(raw)
	if span == "" {
		return nil, false
	}

	var items []any
	if err := json.Unmarshal([]byte(span), &items); err != nil {
		return nil, false
	}

	cands = make([]Candidate, 0, len(items))
	for _, item := range items {
		rec, isObj := item.(map[string]any)
		if !isObj {
			continue
		}
		cands = append(cands, Candidate{
			Title:    stringField(rec, "title"),
			Category: stringField(rec, "category"),
			Priority: stringField(rec, "priority"),
			DueDate:  stringField(rec, "dueDate"),
			Context:  stringField(rec, "context"),
		})
	}
	return cands, true
}

// stringField returns rec[key] when it is a JSON string, else "".
func stringField(rec map[string]any, key string) string {
	if s, ok := rec[key].(string); ok {
		return s
	}
	return ""
}
