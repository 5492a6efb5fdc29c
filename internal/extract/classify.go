package extract

import (
	"strings"
	"time"
)

// CategoryRule maps a category to the keywords that vote for it and its
// display metadata.
type CategoryRule struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Color    string   `json:"color"`
	Icon     string   `json:"icon"`
}

// PriorityRule maps a priority level to its signal phrases.
type PriorityRule struct {
	Level    string
	Keywords []string
}

// datePhrase maps a phrase to a day offset. hasOffset=false entries are
// recognized but never resolved.
type datePhrase struct {
	phrase    string
	offset    int
	hasOffset bool
}

// categoryRules is ordered: ties in keyword score go to the earlier rule.
var categoryRules = []CategoryRule{
	{
		Name:     CategoryWork,
		Keywords: []string{"meeting", "call", "email", "project", "deadline", "client", "presentation", "report", "conference", "office"},
		Color:    "#667eea",
		Icon:     "💼",
	},
	{
		Name:     CategoryPersonal,
		Keywords: []string{"home", "family", "personal", "clean", "organize", "birthday", "anniversary", "friend"},
		Color:    "#f093fb",
		Icon:     "👤",
	},
	{
		Name:     CategoryHealth,
		Keywords: []string{"doctor", "dentist", "gym", "exercise", "medicine", "appointment", "health", "fitness", "workout"},
		Color:    "#4facfe",
		Icon:     "🏃",
	},
	{
		Name:     CategoryLearning,
		Keywords: []string{"learn", "study", "read", "course", "book", "tutorial", "practice", "skill", "education"},
		Color:    "#43e97b",
		Icon:     "📚",
	},
	{
		Name:     CategoryShopping,
		Keywords: []string{"buy", "purchase", "store", "shop", "get", "order", "groceries", "online"},
		Color:    "#fa709a",
		Icon:     "🛒",
	},
	{
		Name:  CategoryOther,
		Color: "#a8edea",
		Icon:  "📝",
	},
}

// priorityRules is evaluated in order; the first tier with a match wins.
var priorityRules = []PriorityRule{
	{Level: PriorityHigh, Keywords: []string{"urgent", "asap", "important", "critical", "deadline", "immediately", "priority"}},
	{Level: PriorityMedium, Keywords: []string{"soon", "next week", "this week", "moderate"}},
	{Level: PriorityLow, Keywords: []string{"later", "sometime", "maybe", "consider", "eventually", "when possible"}},
}

// datePhrases is scanned in order. Weekday names are declared without an
// offset and so never produce a hint.
var datePhrases = []datePhrase{
	{phrase: "today", offset: 0, hasOffset: true},
	{phrase: "tomorrow", offset: 1, hasOffset: true},
	{phrase: "next week", offset: 7, hasOffset: true},
	{phrase: "monday"},
	{phrase: "tuesday"},
	{phrase: "wednesday"},
	{phrase: "thursday"},
	{phrase: "friday"},
	{phrase: "saturday"},
	{phrase: "sunday"},
}

var (
	validCategories = map[string]bool{}
	validPriorities = map[string]bool{}
)

func init() {
	for _, r := range categoryRules {
		validCategories[r.Name] = true
	}
	for _, r := range priorityRules {
		validPriorities[r.Level] = true
	}
}

// CategoryRules returns a copy of the category table in declaration order.
func CategoryRules() []CategoryRule {
	out := make([]CategoryRule, len(categoryRules))
	for i, r := range categoryRules {
		r.Keywords = append([]string(nil), r.Keywords...)
		out[i] = r
	}
	return out
}

// IsValidCategory reports whether name is one of the closed category set.
func IsValidCategory(name string) bool { return validCategories[name] }

// IsValidPriority reports whether level is one of high, medium, low.
func IsValidPriority(level string) bool { return validPriorities[level] }

// Classification is the lexical classifier's verdict for one line.
type Classification struct {
	Category string
	Priority string
	DueDate  string // YYYY-MM-DD, or "" when no phrase resolved
}

// Classifier assigns category, priority and a due date hint by substring
// matching. The zero value uses time.Now.
type Classifier struct {
	Now func() time.Time
}

// Classify runs the default classifier against line.
func Classify(line string) Classification {
	return Classifier{}.Classify(line)
}

// Classify returns the category, priority and due date hint for line.
func (c Classifier) Classify(line string) Classification {
	lower := strings.ToLower(line)
	return Classification{
		Category: categorize(lower),
		Priority: prioritize(lower),
		DueDate:  c.dueDate(lower),
	}
}

func categorize(lower string) string {
	best, bestScore := CategoryOther, 0
	for _, rule := range categoryRules {
		if rule.Name == CategoryOther {
			continue
		}
		score := 0
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		// Strictly greater keeps the earliest rule on ties.
		if score > bestScore {
			best, bestScore = rule.Name, score
		}
	}
	return best
}

func prioritize(lower string) string {
	for _, rule := range priorityRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule.Level
			}
		}
	}
	return PriorityMedium
}

func (c Classifier) dueDate(lower string) string {
	for _, dp := range datePhrases {
		if !dp.hasOffset || !strings.Contains(lower, dp.phrase) {
			continue
		}
		now := time.Now
		if c.Now != nil {
			now = c.Now
		}
		return now().AddDate(0, 0, dp.offset).Format(DateLayout)
	}
	return ""
}
