package llm

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when a provider answers 2xx but the reply
// carries no generated text.
var ErrEmptyResponse = errors.New("empty response")

// StatusError is a non-2xx HTTP answer from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, truncate(e.Body, 300))
}

// APIError is an error object embedded in an otherwise successful response body.
type APIError struct {
	Provider string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
