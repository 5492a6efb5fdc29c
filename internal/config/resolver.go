// Package config resolves tasksift settings from the YAML config file,
// the environment and CLI flags, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/tasksift/internal/extract"
	"github.com/hurttlocker/tasksift/internal/llm"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath   string
	CLIDBPath    string
	CLIPrimary   string
	CLISecondary string
	CLILogLevel  string
	CLIHTTPAddr  string
}

// ProviderConfig is one stage of the extraction chain.
type ProviderConfig struct {
	Name        string        `json:"name"`
	Spec        ResolvedValue `json:"spec"` // provider/model
	BaseURL     string        `json:"base_url,omitempty"`
	ExplicitKey ResolvedValue `json:"-"`
	SecretName  string        `json:"secret_name,omitempty"`
	Timeout     time.Duration `json:"timeout"`
}

// HasExplicitKey reports whether a runtime key bypasses the secret store.
func (p ProviderConfig) HasExplicitKey() bool {
	return strings.TrimSpace(p.ExplicitKey.Value) != ""
}

type GoogleTasksConfig struct {
	Credentials ResolvedValue `json:"credentials"`
	Token       ResolvedValue `json:"token"`
	List        ResolvedValue `json:"list"`
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath      ResolvedValue `json:"db_path"`
	SecretsFile ResolvedValue `json:"secrets_file"`
	LogLevel    ResolvedValue `json:"log_level"`
	LogFormat   ResolvedValue `json:"log_format"`
	HTTPAddr    ResolvedValue `json:"http_addr"`

	Providers   []ProviderConfig  `json:"providers"`
	GoogleTasks GoogleTasksConfig `json:"google_tasks"`
}

type fileProvider struct {
	Name         string `yaml:"name"`
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	APIKeySecret string `yaml:"api_key_secret"`
	Timeout      string `yaml:"timeout"`
}

type fileConfig struct {
	DBPath      string `yaml:"db_path"`
	SecretsFile string `yaml:"secrets_file"`
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Providers   []fileProvider `yaml:"providers"`
	GoogleTasks struct {
		Credentials string `yaml:"credentials"`
		Token       string `yaml:"token"`
		List        string `yaml:"list"`
	} `yaml:"google_tasks"`
}

// Built-in provider defaults.
const (
	DefaultPrimary          = "openrouter/moonshotai/kimi-k2:free"
	DefaultSecondary        = "openai/gpt-3.5-turbo"
	DefaultPrimaryTimeout   = 10 * time.Second
	DefaultSecondaryTimeout = 30 * time.Second
	DefaultHTTPAddr         = ":8080"
	DefaultTaskList         = "tasksift"
)

// explicitKeyEnv maps provider ids to the env vars holding runtime keys.
var explicitKeyEnv = []struct{ env, provider string }{
	{"OPENROUTER_API_KEY", llm.ProviderOpenRouter},
	{"OPENAI_API_KEY", llm.ProviderOpenAI},
	{"GEMINI_API_KEY", llm.ProviderGoogle},
}

func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tasksift")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	dir := DefaultDir()
	out := ResolvedConfig{ConfigPath: path}
	applyDefault(&out.DBPath, filepath.Join(dir, "tasksift.db"))
	applyDefault(&out.SecretsFile, filepath.Join(dir, "secrets.yaml"))
	applyDefault(&out.LogLevel, "info")
	applyDefault(&out.LogFormat, "text")
	applyDefault(&out.HTTPAddr, DefaultHTTPAddr)
	applyDefault(&out.GoogleTasks.Credentials, filepath.Join(dir, "google-credentials.json"))
	applyDefault(&out.GoogleTasks.Token, filepath.Join(dir, "google-token.json"))
	applyDefault(&out.GoogleTasks.List, DefaultTaskList)
	out.Providers = []ProviderConfig{
		defaultProvider(DefaultPrimary, SourceDefault, "built-in default", DefaultPrimaryTimeout),
		defaultProvider(DefaultSecondary, SourceDefault, "built-in default", DefaultSecondaryTimeout),
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.SecretsFile, cfg.SecretsFile, SourceConfig, path)
		apply(&out.LogLevel, cfg.Log.Level, SourceConfig, path)
		apply(&out.LogFormat, cfg.Log.Format, SourceConfig, path)
		apply(&out.HTTPAddr, cfg.HTTP.Addr, SourceConfig, path)
		apply(&out.GoogleTasks.Credentials, cfg.GoogleTasks.Credentials, SourceConfig, path)
		apply(&out.GoogleTasks.Token, cfg.GoogleTasks.Token, SourceConfig, path)
		apply(&out.GoogleTasks.List, cfg.GoogleTasks.List, SourceConfig, path)

		if len(cfg.Providers) > 0 {
			providers := make([]ProviderConfig, 0, len(cfg.Providers))
			for i, fp := range cfg.Providers {
				p, err := fromFile(fp, path)
				if err != nil {
					return out, fmt.Errorf("providers[%d]: %w", i, err)
				}
				providers = append(providers, p)
			}
			out.Providers = providers
		}
	}

	applyEnv(&out.DBPath, "TASKSIFT_DB")
	applyEnv(&out.SecretsFile, "TASKSIFT_SECRETS_FILE")
	applyEnv(&out.LogLevel, "TASKSIFT_LOG_LEVEL")
	applyEnv(&out.LogFormat, "TASKSIFT_LOG_FORMAT")
	applyEnv(&out.HTTPAddr, "TASKSIFT_HTTP_ADDR")
	if err := overrideSlot(&out, 0, os.Getenv("TASKSIFT_PRIMARY"), SourceEnv, "TASKSIFT_PRIMARY"); err != nil {
		return out, err
	}
	if err := overrideSlot(&out, 1, os.Getenv("TASKSIFT_SECONDARY"), SourceEnv, "TASKSIFT_SECONDARY"); err != nil {
		return out, err
	}

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--verbose")
	apply(&out.HTTPAddr, opts.CLIHTTPAddr, SourceCLI, "--addr")
	if err := overrideSlot(&out, 0, opts.CLIPrimary, SourceCLI, "--primary"); err != nil {
		return out, err
	}
	if err := overrideSlot(&out, 1, opts.CLISecondary, SourceCLI, "--secondary"); err != nil {
		return out, err
	}
	applyExplicitKeys(&out)

	out.DBPath.Value = expandUserPath(out.DBPath.Value)
	out.SecretsFile.Value = expandUserPath(out.SecretsFile.Value)
	out.GoogleTasks.Credentials.Value = expandUserPath(out.GoogleTasks.Credentials.Value)
	out.GoogleTasks.Token.Value = expandUserPath(out.GoogleTasks.Token.Value)

	return out, nil
}

// Attempts converts the provider list into extraction chain stages.
func (r ResolvedConfig) Attempts() []extract.ProviderAttempt {
	attempts := make([]extract.ProviderAttempt, 0, len(r.Providers))
	for _, p := range r.Providers {
		cfg, err := llm.ParseLLMFlag(p.Spec.Value)
		if err != nil {
			continue
		}
		cfg.BaseURL = p.BaseURL
		cfg.APIKey = strings.TrimSpace(p.ExplicitKey.Value)
		cfg.Timeout = p.Timeout
		attempts = append(attempts, extract.ProviderAttempt{
			Name:       p.Name,
			LLM:        cfg,
			SecretName: p.SecretName,
			Timeout:    p.Timeout,
		})
	}
	return attempts
}

// applyExplicitKeys attaches runtime keys from the environment to every
// slot of the matching provider. It runs after all slot overrides so a
// slot switched by --primary/--secondary still picks up its key.
func applyExplicitKeys(out *ResolvedConfig) {
	for _, ek := range explicitKeyEnv {
		v := strings.TrimSpace(os.Getenv(ek.env))
		if v == "" {
			continue
		}
		for i := range out.Providers {
			if providerOf(out.Providers[i].Spec.Value) == ek.provider {
				out.Providers[i].ExplicitKey = ResolvedValue{Value: v, Source: SourceEnv, From: ek.env}
			}
		}
	}
}

func defaultProvider(spec string, source ValueSource, from string, timeout time.Duration) ProviderConfig {
	provider := providerOf(spec)
	return ProviderConfig{
		Name:       provider,
		Spec:       ResolvedValue{Value: spec, Source: source, From: from},
		SecretName: provider + "-api-key",
		Timeout:    timeout,
	}
}

func defaultTimeout(provider string) time.Duration {
	if provider == llm.ProviderOpenRouter {
		return DefaultPrimaryTimeout
	}
	return DefaultSecondaryTimeout
}

func fromFile(fp fileProvider, path string) (ProviderConfig, error) {
	spec := strings.TrimSpace(fp.Provider)
	if m := strings.TrimSpace(fp.Model); m != "" && !strings.Contains(spec, "/") {
		spec = spec + "/" + m
	}
	cfg, err := llm.ParseLLMFlag(spec)
	if err != nil {
		return ProviderConfig{}, err
	}
	p := defaultProvider(cfg.Provider+"/"+cfg.Model, SourceConfig, path, defaultTimeout(cfg.Provider))
	if name := strings.TrimSpace(fp.Name); name != "" {
		p.Name = name
	}
	p.BaseURL = strings.TrimSpace(fp.BaseURL)
	if s := strings.TrimSpace(fp.APIKeySecret); s != "" {
		p.SecretName = s
	}
	if k := strings.TrimSpace(fp.APIKey); k != "" {
		p.ExplicitKey = ResolvedValue{Value: k, Source: SourceConfig, From: path}
	}
	if t := strings.TrimSpace(fp.Timeout); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil || d <= 0 {
			return ProviderConfig{}, fmt.Errorf("invalid timeout %q", t)
		}
		p.Timeout = d
	}
	return p, nil
}

// overrideSlot replaces the provider at index with a provider/model spec.
// Same-provider overrides keep the slot's key, secret and timeout.
func overrideSlot(out *ResolvedConfig, index int, raw string, source ValueSource, from string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	cfg, err := llm.ParseLLMFlag(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", from, err)
	}
	spec := cfg.Provider + "/" + cfg.Model
	next := defaultProvider(spec, source, from, defaultTimeout(cfg.Provider))
	if index < len(out.Providers) {
		prev := out.Providers[index]
		if providerOf(prev.Spec.Value) == cfg.Provider {
			prev.Spec = next.Spec
			out.Providers[index] = prev
			return nil
		}
		out.Providers[index] = next
		return nil
	}
	out.Providers = append(out.Providers, next)
	return nil
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyDefault(dst *ResolvedValue, v string) {
	*dst = ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
