// Package llm provides a provider-agnostic text-generation adapter for tasksift.
// Used by the extraction chain to turn free-form notes into task JSON.
// Uses net/http directly; each provider owns an http.Client with a hard timeout.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider is the interface for LLM completions.
type Provider interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error)
	// Name returns a human-readable provider name (e.g., "openrouter/moonshotai/kimi-k2:free").
	Name() string
}

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int     // Max tokens to generate (0 = provider default)
	Temperature float64 // 0.0-2.0 (0 = deterministic)
	Model       string  // Override model for this request (empty = use provider default)
	System      string  // System prompt (optional)
}

// Config holds provider configuration.
type Config struct {
	Provider string        // "openrouter", "openai", "google"
	Model    string        // e.g., "moonshotai/kimi-k2:free", "gpt-3.5-turbo"
	APIKey   string        // required; resolution happens before NewProvider
	BaseURL  string        // Optional URL override
	Timeout  time.Duration // per-request HTTP timeout (0 = DefaultTimeout)
}

// DefaultTimeout bounds a request when the caller sets no timeout.
const DefaultTimeout = 30 * time.Second

// Supported provider identifiers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderGoogle     = "google"
)

// DefaultModel returns the model used when a config names none.
func DefaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderOpenRouter:
		return "moonshotai/kimi-k2:free"
	case ProviderOpenAI:
		return "gpt-3.5-turbo"
	case ProviderGoogle:
		return "gemini-2.5-flash"
	}
	return ""
}

// NewProvider creates an LLM provider from the given config.
func NewProvider(cfg Config) (Provider, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s provider requires an API key", provider)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel(provider)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	switch provider {
	case ProviderGoogle:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://generativelanguage.googleapis.com/v1beta"
		}
		p := &googleProvider{
			apiKey:  cfg.APIKey,
			model:   model,
			baseURL: baseURL,
		}
		p.client.Timeout = timeout
		return p, nil

	case ProviderOpenRouter:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
		p := &chatProvider{
			label:   ProviderOpenRouter,
			apiKey:  cfg.APIKey,
			model:   model,
			baseURL: baseURL,
			headers: map[string]string{
				"HTTP-Referer": "https://github.com/hurttlocker/tasksift",
				"X-Title":      "tasksift",
			},
		}
		p.client.Timeout = timeout
		return p, nil

	case ProviderOpenAI:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		p := &chatProvider{
			label:   ProviderOpenAI,
			apiKey:  cfg.APIKey,
			model:   model,
			baseURL: baseURL,
		}
		p.client.Timeout = timeout
		return p, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: openrouter, openai, google)", cfg.Provider)
	}
}

// ParseLLMFlag parses a "provider/model" value into a Config.
// Format: "openrouter/moonshotai/kimi-k2:free", "openai/gpt-3.5-turbo", "google/gemini-2.5-flash".
// A bare provider name selects that provider's default model.
func ParseLLMFlag(flag string) (Config, error) {
	flag = strings.TrimSpace(flag)
	if flag == "" {
		return Config{}, fmt.Errorf("empty provider spec")
	}

	parts := strings.SplitN(flag, "/", 2)
	provider := strings.ToLower(parts[0])
	model := ""
	if len(parts) == 2 {
		model = parts[1]
	}

	switch provider {
	case ProviderOpenRouter, ProviderOpenAI, ProviderGoogle:
		if model == "" {
			model = DefaultModel(provider)
		}
		return Config{Provider: provider, Model: model}, nil
	default:
		return Config{}, fmt.Errorf("unknown provider %q (supported: openrouter, openai, google)", provider)
	}
}
