package extract

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hurttlocker/tasksift/internal/llm"
)

// KeySource looks up named secrets (API keys) from an external store.
type KeySource interface {
	Get(ctx context.Context, name string) (string, error)
}

// ProviderAttempt configures one provider stage of the chain.
type ProviderAttempt struct {
	// Name is the provenance tag stamped on tasks from this stage.
	Name string
	// LLM selects provider, model and endpoint. A non-empty APIKey is the
	// explicit runtime credential and wins over SecretName.
	LLM        llm.Config
	SecretName string
	Timeout    time.Duration
}

// Extractor runs the provider chain: each attempt in order, then the local
// fallback. It holds no per-call state and is safe for concurrent use.
type Extractor struct {
	attempts    []ProviderAttempt
	secrets     KeySource
	newProvider func(llm.Config) (llm.Provider, error)
	classifier  Classifier
	now         func() time.Time
	logger      *log.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSecrets sets the secret store consulted when an attempt has no explicit key.
func WithSecrets(ks KeySource) Option {
	return func(e *Extractor) { e.secrets = ks }
}

// WithLogger sets the logger; nil discards.
func WithLogger(l *log.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides time.Now for ids, timestamps and due date hints.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
		e.classifier = Classifier{Now: now}
	}
}

// WithProviderFactory overrides llm.NewProvider (tests, custom transports).
func WithProviderFactory(f func(llm.Config) (llm.Provider, error)) Option {
	return func(e *Extractor) { e.newProvider = f }
}

// NewExtractor builds an Extractor over attempts, tried in slice order.
func NewExtractor(attempts []ProviderAttempt, opts ...Option) *Extractor {
	e := &Extractor{
		attempts:    append([]ProviderAttempt(nil), attempts...),
		newProvider: llm.NewProvider,
		now:         time.Now,
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attempts returns the configured provider stages in order.
func (e *Extractor) Attempts() []ProviderAttempt {
	return append([]ProviderAttempt(nil), e.attempts...)
}

// stageOutcome tags what a stage did: produce the final task list, or hand
// over to the next stage.
type stageOutcome int

const (
	stageAdvance stageOutcome = iota
	stageDone
)

// Extract turns text into tasks. The only error is ErrEmptyText; every
// provider fault degrades to the next stage and the local stage cannot fail.
func (e *Extractor) Extract(ctx context.Context, text string, mode Mode) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if mode != ModeEmail {
		mode = ModeGeneral
	}

	res := &Result{ExtractionMode: mode}
	done := false
	for _, a := range e.attempts {
		tasks, outcome, trace := e.runProvider(ctx, a, text, mode)
		res.Attempts = append(res.Attempts, trace)
		if outcome == stageDone {
			res.Todos = tasks
			done = true
			break
		}
	}
	if !done {
		res.Todos = e.runLocal(text)
	}

	res.Count = len(res.Todos)
	res.Timestamp = e.now().Format(time.RFC3339)
	return res, nil
}

func (e *Extractor) runProvider(ctx context.Context, a ProviderAttempt, text string, mode Mode) ([]Task, stageOutcome, Attempt) {
	start := time.Now()
	trace := Attempt{Provider: a.Name}

	p, fail := e.resolveProvider(ctx, a)
	if fail == nil {
		var reply string
		reply, fail = CallProvider(ctx, p, a.Name, text, mode, a.Timeout)
		if fail == nil {
			cands, ok := ParseReply(reply)
			if !ok {
				e.logger.Debug("provider reply had no JSON array, segmenting lines", "provider", a.Name)
				cands = e.classifier.ExtractLocal(reply)
			}
			tasks := NormalizeBatch(cands, a.Name, e.now())
			trace.ParseHit = ok
			trace.Latency = time.Since(start)
			e.logger.Info("extracted tasks", "provider", a.Name, "count", len(tasks), "latency", trace.Latency.Round(time.Millisecond))
			return tasks, stageDone, trace
		}
	}

	trace.Failure = fail
	trace.Latency = time.Since(start)
	e.logger.Warn("provider failed, advancing", "provider", a.Name, "reason", string(fail.Reason), "err", fail.Err)
	return nil, stageAdvance, trace
}

func (e *Extractor) runLocal(text string) []Task {
	tasks := NormalizeBatch(e.classifier.ExtractLocal(text), SourceLocal, e.now())
	e.logger.Info("extracted tasks", "provider", SourceLocal, "count", len(tasks))
	return tasks
}

// resolveProvider applies credential precedence (explicit key, then named
// secret) and builds the client. Any miss is a credentials failure.
func (e *Extractor) resolveProvider(ctx context.Context, a ProviderAttempt) (llm.Provider, *Failure) {
	cfg := a.LLM
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.Timeout <= 0 {
		cfg.Timeout = a.Timeout
	}

	if cfg.APIKey == "" {
		if a.SecretName == "" || e.secrets == nil {
			return nil, &Failure{Provider: a.Name, Reason: ReasonCredentials, Err: fmt.Errorf("no API key or secret configured")}
		}
		key, err := e.secrets.Get(ctx, a.SecretName)
		if err != nil {
			return nil, &Failure{Provider: a.Name, Reason: ReasonCredentials, Err: err}
		}
		cfg.APIKey = strings.TrimSpace(key)
		if cfg.APIKey == "" {
			return nil, &Failure{Provider: a.Name, Reason: ReasonCredentials, Err: fmt.Errorf("secret %q is empty", a.SecretName)}
		}
	}

	p, err := e.newProvider(cfg)
	if err != nil {
		return nil, &Failure{Provider: a.Name, Reason: ReasonConfig, Err: err}
	}
	return p, nil
}
