package extract

import (
	"fmt"
	"strings"
)

const extractSystemPrompt = `You are a helpful assistant that extracts actionable tasks from text. Always respond with valid JSON arrays.
Categories: work, personal, health, learning, shopping, other
Priorities: high, medium, low
Date format: YYYY-MM-DD or null`

const generalExamples = `Examples of good task extraction:
- "Call John about the project" -> title: "Call John about the project", category: "work", priority: "medium"
- "Buy groceries for dinner tonight" -> title: "Buy groceries for dinner", category: "shopping", priority: "high"
- "Schedule dentist appointment next week" -> title: "Schedule dentist appointment", category: "health", priority: "medium"`

// BuildPrompt returns the user prompt for mode wrapped around text.
func BuildPrompt(text string, mode Mode) string {
	var sb strings.Builder
	if mode == ModeEmail {
		sb.WriteString("Analyze the following email/message content and extract actionable tasks.\n\n")
		sb.WriteString(fmt.Sprintf("Email content:\n---\n%s\n---\n\n", text))
		sb.WriteString("Respond with a JSON array of tasks. Each task has these fields:\n")
		sb.WriteString(taskFields)
		sb.WriteString("- context: string (optional additional information)\n\n")
		sb.WriteString("Only extract clear, actionable tasks. Ignore pleasantries, signatures, and non-actionable content.\n")
		return sb.String()
	}

	sb.WriteString("Analyze the following text and extract actionable tasks/todos.\n\n")
	sb.WriteString(fmt.Sprintf("Text to analyze:\n---\n%s\n---\n\n", text))
	sb.WriteString("Respond with a JSON array of tasks. Each task has these fields:\n")
	sb.WriteString(taskFields)
	sb.WriteString("\n")
	sb.WriteString(generalExamples)
	sb.WriteString("\n")
	return sb.String()
}

const taskFields = `- title: string (clear and concise)
- category: string (work, personal, health, learning, shopping, other)
- priority: string (high, medium, low)
- dueDate: string (YYYY-MM-DD format, null if not specified)
`
