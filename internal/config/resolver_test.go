package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable the resolver reads so the host
// environment cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TASKSIFT_DB", "TASKSIFT_SECRETS_FILE", "TASKSIFT_LOG_LEVEL", "TASKSIFT_LOG_FORMAT",
		"TASKSIFT_HTTP_ADDR", "TASKSIFT_PRIMARY", "TASKSIFT_SECONDARY",
		"OPENROUTER_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestResolveConfig_Defaults(t *testing.T) {
	clearEnv(t)
	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if resolved.DBPath.Source != SourceDefault || !strings.HasSuffix(resolved.DBPath.Value, "tasksift.db") {
		t.Errorf("unexpected db path: %+v", resolved.DBPath)
	}
	if resolved.HTTPAddr.Value != DefaultHTTPAddr {
		t.Errorf("http addr = %q", resolved.HTTPAddr.Value)
	}
	if len(resolved.Providers) != 2 {
		t.Fatalf("expected 2 default providers, got %d", len(resolved.Providers))
	}
	primary, secondary := resolved.Providers[0], resolved.Providers[1]
	if primary.Name != "openrouter" || primary.SecretName != "openrouter-api-key" || primary.Timeout != 10*time.Second {
		t.Errorf("unexpected primary: %+v", primary)
	}
	if secondary.Name != "openai" || secondary.SecretName != "openai-api-key" || secondary.Timeout != 30*time.Second {
		t.Errorf("unexpected secondary: %+v", secondary)
	}
	if primary.HasExplicitKey() || secondary.HasExplicitKey() {
		t.Error("no explicit keys expected without env or config")
	}
}

func TestResolveConfig_Precedence_ConfigEnvCLI(t *testing.T) {
	clearEnv(t)
	cfgPath := writeConfig(t, `db_path: ~/.tasksift/from-config.db
log:
  level: warn
  format: json
http:
  addr: 127.0.0.1:9000
`)

	t.Setenv("TASKSIFT_DB", "~/from-env.db")
	t.Setenv("TASKSIFT_LOG_FORMAT", "logfmt")

	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath:  cfgPath,
		CLIDBPath:   "/tmp/from-cli.db",
		CLILogLevel: "debug",
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}

	if resolved.DBPath.Source != SourceCLI || resolved.DBPath.Value != "/tmp/from-cli.db" {
		t.Fatalf("expected DB path from cli, got %+v", resolved.DBPath)
	}
	if resolved.LogLevel.Source != SourceCLI || resolved.LogLevel.Value != "debug" {
		t.Fatalf("expected log level from cli, got %+v", resolved.LogLevel)
	}
	if resolved.LogFormat.Source != SourceEnv || resolved.LogFormat.Value != "logfmt" {
		t.Fatalf("expected log format from env, got %+v", resolved.LogFormat)
	}
	if resolved.HTTPAddr.Source != SourceConfig || resolved.HTTPAddr.From != cfgPath {
		t.Fatalf("expected http addr from config, got %+v", resolved.HTTPAddr)
	}
}

func TestResolveConfig_ProvidersFromFile(t *testing.T) {
	clearEnv(t)
	cfgPath := writeConfig(t, `providers:
  - name: gemini
    provider: google
    model: gemini-2.5-pro
    api_key_secret: team-gemini-key
    timeout: 15s
  - provider: openai/gpt-4o-mini
    api_key: sk-config
    base_url: http://localhost:4000/v1
`)
	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if len(resolved.Providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(resolved.Providers))
	}
	g := resolved.Providers[0]
	if g.Name != "gemini" || g.Spec.Value != "google/gemini-2.5-pro" || g.SecretName != "team-gemini-key" || g.Timeout != 15*time.Second {
		t.Errorf("unexpected google provider: %+v", g)
	}
	o := resolved.Providers[1]
	if o.Name != "openai" || o.ExplicitKey.Value != "sk-config" || o.BaseURL != "http://localhost:4000/v1" {
		t.Errorf("unexpected openai provider: %+v", o)
	}

	attempts := resolved.Attempts()
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].LLM.Provider != "google" || attempts[0].LLM.Model != "gemini-2.5-pro" || attempts[0].LLM.APIKey != "" {
		t.Errorf("unexpected first attempt: %+v", attempts[0])
	}
	if attempts[1].LLM.APIKey != "sk-config" || attempts[1].LLM.BaseURL != "http://localhost:4000/v1" || attempts[1].Timeout != 30*time.Second {
		t.Errorf("unexpected second attempt: %+v", attempts[1])
	}
}

func TestResolveConfig_InvalidProvider(t *testing.T) {
	clearEnv(t)
	cfgPath := writeConfig(t, "providers:\n  - provider: anthropic\n")
	if _, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath}); err == nil {
		t.Fatal("expected error for unknown provider")
	}

	cfgPath = writeConfig(t, "providers:\n  - provider: openai\n    timeout: soon\n")
	if _, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath}); err == nil {
		t.Fatal("expected error for bad timeout")
	}

	if _, err := ResolveConfig(ResolveOptions{ConfigPath: filepath.Join(t.TempDir(), "x.yaml"), CLIPrimary: "bogus/model"}); err == nil {
		t.Fatal("expected error for bad --primary")
	}
}

func TestResolveConfig_SlotOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TASKSIFT_PRIMARY", "openrouter/x-ai/grok-4.1-fast")
	t.Setenv("TASKSIFT_SECONDARY", "google")

	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: filepath.Join(t.TempDir(), "absent.yaml"),
		CLIPrimary: "openrouter/deepseek/deepseek-v3.2",
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	p := resolved.Providers[0]
	if p.Spec.Value != "openrouter/deepseek/deepseek-v3.2" || p.Spec.Source != SourceCLI {
		t.Errorf("primary spec = %+v", p.Spec)
	}
	if p.Timeout != DefaultPrimaryTimeout || p.SecretName != "openrouter-api-key" {
		t.Errorf("same-provider override should keep slot settings: %+v", p)
	}
	s := resolved.Providers[1]
	if s.Name != "google" || s.Spec.Value != "google/gemini-2.5-flash" || s.SecretName != "google-api-key" {
		t.Errorf("secondary = %+v", s)
	}
}

func TestResolveConfig_ExplicitKeyEnvOverridesConfig(t *testing.T) {
	clearEnv(t)
	cfgPath := writeConfig(t, `providers:
  - provider: openrouter/x-ai/grok-4.1-fast
    api_key: config-key
`)
	t.Setenv("OPENROUTER_API_KEY", "env-key")

	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	k := resolved.Providers[0].ExplicitKey
	if k.Value != "env-key" || k.Source != SourceEnv {
		t.Fatalf("expected env key, got %+v", k)
	}
	if got := resolved.Attempts()[0].LLM.APIKey; got != "env-key" {
		t.Fatalf("attempt key = %q", got)
	}
}

func TestResolveConfig_CLIProviderSwitchKeepsEnvKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "gem-key")

	for _, tc := range []struct {
		name string
		opts ResolveOptions
		env  string
	}{
		{name: "cli", opts: ResolveOptions{CLIPrimary: "google/gemini-2.5-flash"}},
		{name: "env", env: "google/gemini-2.5-flash"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TASKSIFT_PRIMARY", tc.env)
			tc.opts.ConfigPath = filepath.Join(t.TempDir(), "absent.yaml")
			resolved, err := ResolveConfig(tc.opts)
			if err != nil {
				t.Fatalf("ResolveConfig: %v", err)
			}
			p := resolved.Providers[0]
			if p.Name != "google" || p.ExplicitKey.Value != "gem-key" || p.ExplicitKey.From != "GEMINI_API_KEY" {
				t.Fatalf("primary = %+v", p)
			}
			if got := resolved.Attempts()[0].LLM.APIKey; got != "gem-key" {
				t.Fatalf("attempt key = %q", got)
			}
		})
	}
}

func TestResolveConfig_ParseError(t *testing.T) {
	clearEnv(t)
	cfgPath := writeConfig(t, "db_path: [unterminated\n")
	if _, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath}); err == nil {
		t.Fatal("expected YAML parse error")
	}
}
