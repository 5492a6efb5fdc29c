package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hurttlocker/tasksift/internal/llm"
)

// DefaultProviderTimeout bounds a provider call when its attempt sets none.
const DefaultProviderTimeout = 30 * time.Second

// FailureReason classifies why a provider stage did not produce a reply.
// The chain treats all reasons the same; they exist for logs and run records.
type FailureReason string

const (
	ReasonTransport   FailureReason = "transport"
	ReasonStatus      FailureReason = "status"
	ReasonTimeout     FailureReason = "timeout"
	ReasonMalformed   FailureReason = "malformed"
	ReasonCredentials FailureReason = "credentials"
	ReasonConfig      FailureReason = "config"
)

// Failure is the single failure outcome of a provider stage.
type Failure struct {
	Provider string
	Reason   FailureReason
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("provider %s failed (%s): %v", f.Provider, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// CallProvider sends the mode's prompt for text to p in one bounded request
// and returns the raw reply text.
func CallProvider(ctx context.Context, p llm.Provider, name, text string, mode Mode, timeout time.Duration) (string, *Failure) {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := p.Complete(callCtx, BuildPrompt(text, mode), llm.CompletionOpts{
		Temperature: 0.1,
		MaxTokens:   2048,
		System:      extractSystemPrompt,
	})
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", &Failure{Provider: name, Reason: ReasonTimeout, Err: err}
		}
		return "", &Failure{Provider: name, Reason: classifyError(err), Err: err}
	}
	return reply, nil
}

func classifyError(err error) FailureReason {
	var (
		statusErr *llm.StatusError
		apiErr    *llm.APIError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		netErr    net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ReasonTimeout
	case errors.As(err, &statusErr):
		return ReasonStatus
	case errors.As(err, &apiErr), errors.Is(err, llm.ErrEmptyResponse),
		errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return ReasonMalformed
	default:
		return ReasonTransport
	}
}
