// Package secrets resolves named API keys: an environment override first,
// then a backend, with results cached for the life of the process.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no source holds the named secret.
var ErrNotFound = errors.New("secret not found")

// Backend is a secret store consulted after the environment.
type Backend interface {
	Lookup(ctx context.Context, name string) (string, error)
}

// EnvKey maps a secret name to its override variable:
// "openrouter-api-key" -> "OPENROUTER_API_KEY".
func EnvKey(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// Resolver implements extract.KeySource.
type Resolver struct {
	backend   Backend
	lookupEnv func(string) (string, bool)

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver creates a resolver over backend. A nil backend means
// environment only.
func NewResolver(backend Backend) *Resolver {
	return &Resolver{
		backend:   backend,
		lookupEnv: os.LookupEnv,
		cache:     make(map[string]string),
	}
}

// Get returns the secret value. A set environment variable wins even when
// empty; callers decide whether an empty key is usable.
func (r *Resolver) Get(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache[name]; ok {
		return v, nil
	}
	if v, ok := r.lookupEnv(EnvKey(name)); ok {
		r.cache[name] = v
		return v, nil
	}
	if r.backend == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	v, err := r.backend.Lookup(ctx, name)
	if err != nil {
		return "", fmt.Errorf("resolving secret %s: %w", name, err)
	}
	r.cache[name] = v
	return v, nil
}

// FileBackend reads secrets from a flat YAML mapping of name to value.
type FileBackend struct {
	values map[string]string
}

// LoadFile reads a secrets file. A missing file yields an empty backend.
func LoadFile(path string) (*FileBackend, error) {
	fb := &FileBackend{values: map[string]string{}}
	if path == "" {
		return fb, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fb, nil
		}
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fb.values); err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", path, err)
	}
	if fb.values == nil {
		fb.values = map[string]string{}
	}
	return fb, nil
}

// Lookup implements Backend.
func (f *FileBackend) Lookup(_ context.Context, name string) (string, error) {
	v, ok := f.values[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Names lists the secrets present in the file in sorted order. Values are
// never exposed.
func (f *FileBackend) Names() []string {
	names := make([]string, 0, len(f.values))
	for k := range f.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
