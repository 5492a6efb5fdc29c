package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hurttlocker/tasksift/internal/llm"
)

// fakeProvider is a scripted llm.Provider.
type fakeProvider struct {
	name    string
	reply   string
	err     error
	block   bool // wait for ctx cancellation
	prompts []string
	system  string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, prompt string, opts llm.CompletionOpts) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.system = opts.System
	if f.block {
		<-ctx.Done()
		return "", fmt.Errorf("sending request: %w", ctx.Err())
	}
	return f.reply, f.err
}

func TestCallProvider_Success(t *testing.T) {
	p := &fakeProvider{name: "fake", reply: `[{"title":"x"}]`}
	reply, fail := CallProvider(context.Background(), p, "fake", "Call John", ModeGeneral, time.Second)
	if fail != nil {
		t.Fatalf("unexpected failure: %v", fail)
	}
	if reply != `[{"title":"x"}]` {
		t.Errorf("reply = %q", reply)
	}
	if !strings.Contains(p.prompts[0], "Call John") || !strings.Contains(p.prompts[0], "Examples of good task extraction") {
		t.Errorf("general prompt missing text or examples: %q", p.prompts[0])
	}
	if p.system == "" {
		t.Error("system prompt not sent")
	}
}

func TestCallProvider_EmailPrompt(t *testing.T) {
	p := &fakeProvider{name: "fake", reply: "[]"}
	if _, fail := CallProvider(context.Background(), p, "fake", "Hi team, please send the report. Cheers", ModeEmail, time.Second); fail != nil {
		t.Fatalf("unexpected failure: %v", fail)
	}
	prompt := p.prompts[0]
	if !strings.Contains(prompt, "Ignore pleasantries, signatures") {
		t.Errorf("email prompt missing instructions: %q", prompt)
	}
	if strings.Contains(prompt, "Examples of good task extraction") {
		t.Error("email prompt should not carry general examples")
	}
}

func TestCallProvider_Timeout(t *testing.T) {
	p := &fakeProvider{name: "slow", block: true}
	start := time.Now()
	_, fail := CallProvider(context.Background(), p, "slow", "text", ModeGeneral, 30*time.Millisecond)
	if fail == nil {
		t.Fatal("expected failure")
	}
	if fail.Reason != ReasonTimeout {
		t.Errorf("reason = %s, want timeout", fail.Reason)
	}
	if time.Since(start) > time.Second {
		t.Errorf("timeout not enforced: %v", time.Since(start))
	}
}

func TestCallProvider_FailureReasons(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureReason
	}{
		{"status", &llm.StatusError{Provider: "openai", StatusCode: 503, Body: "down"}, ReasonStatus},
		{"api error", &llm.APIError{Provider: "openai", Message: "bad"}, ReasonMalformed},
		{"missing content", fmt.Errorf("openai: %w", llm.ErrEmptyResponse), ReasonMalformed},
		{"transport", errors.New("sending request: connection refused"), ReasonTransport},
		{"deadline", fmt.Errorf("sending request: %w", context.DeadlineExceeded), ReasonTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{name: "fake", err: tt.err}
			_, fail := CallProvider(context.Background(), p, "fake", "text", ModeGeneral, time.Second)
			if fail == nil {
				t.Fatal("expected failure")
			}
			if fail.Reason != tt.want {
				t.Errorf("reason = %s, want %s", fail.Reason, tt.want)
			}
			if fail.Provider != "fake" {
				t.Errorf("provider = %q", fail.Provider)
			}
			if !errors.Is(fail, tt.err) {
				t.Error("failure should unwrap to the provider error")
			}
		})
	}
}
