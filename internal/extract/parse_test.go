package extract

import "testing"

func TestParseReply_EmbeddedArray(t *testing.T) {
	raw := "Sure! Here are your tasks:\n```json\n" +
		`[{"title":"Schedule dentist","category":"health","priority":"medium","dueDate":"2099-01-01"},` + "\n" +
		`{"title":"Email Bob","category":"work","priority":"high","dueDate":null,"context":"re: invoice"}]` +
		"\n```\nLet me know if you need more."

	cands, ok := ParseReply(raw)
	if !ok {
		t.Fatal("expected parse hit")
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	if cands[0].Title != "Schedule dentist" || cands[0].Category != "health" || cands[0].DueDate != "2099-01-01" {
		t.Errorf("unexpected first candidate: %+v", cands[0])
	}
	if cands[1].DueDate != "" || cands[1].Context != "re: invoice" {
		t.Errorf("unexpected second candidate: %+v", cands[1])
	}
}

func TestParseReply_LooseRecords(t *testing.T) {
	raw := `[{"title": 42, "priority": 1}, "just a string", null, {"title":"  Buy milk ","category":"SHOPPING"}]`
	cands, ok := ParseReply(raw)
	if !ok {
		t.Fatal("expected parse hit")
	}
	// non-object elements are skipped, non-string fields read as empty
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(cands), cands)
	}
	if cands[0].Title != "" || cands[0].Priority != "" {
		t.Errorf("non-string fields should be empty: %+v", cands[0])
	}
	if cands[1].Title != "  Buy milk " || cands[1].Category != "SHOPPING" {
		t.Errorf("records must not be normalized here: %+v", cands[1])
	}
}

func TestParseReply_Miss(t *testing.T) {
	tests := map[string]string{
		"no brackets":       "1. Call John\n2. Buy milk",
		"object not array":  `{"tasks": "none"}`,
		"broken json":       `[{"title": "Call John",]`,
		"greedy to last ]":  `[{"title":"a"}] see also [note]`,
		"reversed brackets": "] nothing [",
		"empty reply":       "",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if cands, ok := ParseReply(raw); ok {
				t.Errorf("expected parse miss, got %+v", cands)
			}
		})
	}
}

func TestParseReply_EmptyArray(t *testing.T) {
	cands, ok := ParseReply("No actionable tasks found: []")
	if !ok {
		t.Fatal("empty array is a valid parse")
	}
	if len(cands) != 0 {
		t.Errorf("expected no candidates, got %d", len(cands))
	}
}
