package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hurttlocker/tasksift/internal/extract"
	"github.com/hurttlocker/tasksift/internal/store"
)

// ==================== parseGlobalFlags ====================

func resetGlobals() {
	globalDBPath = ""
	globalConfigPath = ""
	globalVerbose = false
}

func TestParseGlobalFlags_DBFlag(t *testing.T) {
	resetGlobals()

	args := parseGlobalFlags([]string{"--db", "/tmp/test.db", "list", "--json"})

	if globalDBPath != "/tmp/test.db" {
		t.Errorf("globalDBPath = %q, want %q", globalDBPath, "/tmp/test.db")
	}
	if len(args) != 2 || args[0] != "list" || args[1] != "--json" {
		t.Errorf("filtered args = %v, want [list --json]", args)
	}
}

func TestParseGlobalFlags_EqualsForms(t *testing.T) {
	resetGlobals()

	args := parseGlobalFlags([]string{"--db=/tmp/eq.db", "--config=/tmp/c.yaml", "stats"})

	if globalDBPath != "/tmp/eq.db" {
		t.Errorf("globalDBPath = %q", globalDBPath)
	}
	if globalConfigPath != "/tmp/c.yaml" {
		t.Errorf("globalConfigPath = %q", globalConfigPath)
	}
	if len(args) != 1 || args[0] != "stats" {
		t.Errorf("filtered args = %v, want [stats]", args)
	}
}

func TestParseGlobalFlags_VerboseAnywhere(t *testing.T) {
	resetGlobals()

	args := parseGlobalFlags([]string{"extract", "buy milk", "--verbose"})

	if !globalVerbose {
		t.Error("globalVerbose should be true")
	}
	if len(args) != 2 || args[1] != "buy milk" {
		t.Errorf("filtered args = %v, want [extract buy milk]", args)
	}
}

func TestParseGlobalFlags_DanglingDBIsKept(t *testing.T) {
	resetGlobals()

	args := parseGlobalFlags([]string{"list", "--db"})
	if globalDBPath != "" {
		t.Errorf("globalDBPath should be empty, got %q", globalDBPath)
	}
	if len(args) != 2 || args[1] != "--db" {
		t.Errorf("filtered args = %v", args)
	}
}

func TestParseGlobalFlags_Empty(t *testing.T) {
	resetGlobals()

	if args := parseGlobalFlags([]string{}); len(args) != 0 {
		t.Errorf("expected empty filtered args, got %v", args)
	}
}

func TestFlagValue(t *testing.T) {
	args := []string{"--mode", "email", "--file=notes.txt", "--json"}
	i := 0
	if v, ok := flagValue(args, &i, "--mode"); !ok || v != "email" || i != 1 {
		t.Fatalf("--mode: v=%q ok=%v i=%d", v, ok, i)
	}
	i = 2
	if v, ok := flagValue(args, &i, "--file"); !ok || v != "notes.txt" || i != 2 {
		t.Fatalf("--file: v=%q ok=%v i=%d", v, ok, i)
	}
	i = 3
	if _, ok := flagValue(args, &i, "--mode"); ok {
		t.Fatal("--json should not match --mode")
	}
}

func TestReadInputLimit(t *testing.T) {
	dir := t.TempDir()
	atLimit := filepath.Join(dir, "at-limit.txt")
	if err := os.WriteFile(atLimit, bytes.Repeat([]byte("a"), maxInputBytes), 0600); err != nil {
		t.Fatal(err)
	}
	b, err := readInput(atLimit)
	if err != nil || len(b) != maxInputBytes {
		t.Fatalf("readInput at limit: len=%d err=%v", len(b), err)
	}

	over := filepath.Join(dir, "over.txt")
	if err := os.WriteFile(over, bytes.Repeat([]byte("a"), maxInputBytes+1), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := readInput(over); err == nil || !strings.Contains(err.Error(), "input exceeds") {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestFormatTask(t *testing.T) {
	due := "2026-03-20"
	got := formatTask(extract.Task{ID: "x1", Title: "Email Bob", Category: "work", Priority: "high", DueDate: &due, Source: "openai"})
	want := "  [ ] x1  Email Bob (work/high, due 2026-03-20) via openai"
	if got != want {
		t.Errorf("formatTask = %q, want %q", got, want)
	}

	got = formatTask(extract.Task{ID: "x2", Title: "Send invoice", Category: "work", Priority: "high", Source: "openrouter", Context: "Anna asked by Friday"})
	want = "  [ ] x2  Send invoice (work/high) via openrouter\n        context: Anna asked by Friday"
	if got != want {
		t.Errorf("formatTask with context = %q, want %q", got, want)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		512:       "512 B",
		2048:      "2.0 KB",
		3 << 20:   "3.0 MB",
		1<<20 - 1: "1024.0 KB",
	}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

// ==================== subprocess ====================

// offlineEnv points every path at a temp dir and blanks all provider keys
// so extraction always takes the local path.
func offlineEnv(t *testing.T) map[string]string {
	t.Helper()
	dir := t.TempDir()
	return map[string]string{
		"HOME":                  dir,
		"TASKSIFT_DB":           filepath.Join(dir, "tasksift.db"),
		"TASKSIFT_SECRETS_FILE": filepath.Join(dir, "missing-secrets.yaml"),
		"TASKSIFT_PRIMARY":      "",
		"TASKSIFT_SECONDARY":    "",
		"TASKSIFT_LOG_LEVEL":    "error",
		"OPENROUTER_API_KEY":    "",
		"OPENAI_API_KEY":        "",
		"GEMINI_API_KEY":        "",
	}
}

func TestMain_NoArgsPrintsUsage(t *testing.T) {
	exitCode, out := runMainSubprocess(t)
	if exitCode != 0 {
		t.Fatalf("exit code = %d, want 0; output=%q", exitCode, out)
	}
	if !strings.Contains(out, "Usage:") || !strings.Contains(out, "export-google") {
		t.Fatalf("expected usage, got: %q", out)
	}
}

func TestMain_UnknownCommand(t *testing.T) {
	exitCode, out := runMainSubprocess(t, "not-a-command")
	if exitCode != 1 {
		t.Fatalf("exit code = %d, want 1", exitCode)
	}
	if !strings.Contains(out, "Unknown command: not-a-command") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestMain_Version(t *testing.T) {
	exitCode, out := runMainSubprocess(t, "version")
	if exitCode != 0 || strings.TrimSpace(out) != "tasksift "+version {
		t.Fatalf("exit=%d out=%q", exitCode, out)
	}
}

func TestMain_UnknownListFlag(t *testing.T) {
	exitCode, out := runMainSubprocessWithEnv(t, offlineEnv(t), "list", "--nope")
	if exitCode != 1 || !strings.Contains(out, "unknown flag: --nope") {
		t.Fatalf("exit=%d out=%q", exitCode, out)
	}
}

func TestMain_CategoriesJSON(t *testing.T) {
	exitCode, out := runMainSubprocess(t, "categories", "--json")
	if exitCode != 0 {
		t.Fatalf("exit=%d out=%q", exitCode, out)
	}
	var rules []extract.CategoryRule
	if err := json.Unmarshal([]byte(out), &rules); err != nil {
		t.Fatalf("decoding categories: %v (%q)", err, out)
	}
	if len(rules) != 6 || rules[0].Name != "work" || rules[5].Name != "other" {
		t.Fatalf("unexpected categories: %+v", rules)
	}
}

func TestMain_ConfigShowsDefaultChain(t *testing.T) {
	exitCode, out := runMainSubprocessWithEnv(t, offlineEnv(t), "config")
	if exitCode != 0 {
		t.Fatalf("exit=%d out=%q", exitCode, out)
	}
	for _, want := range []string{"openrouter/moonshotai/kimi-k2:free", "openai/gpt-3.5-turbo", "secret openrouter-api-key", "db_path:"} {
		if !strings.Contains(out, want) {
			t.Errorf("config output missing %q:\n%s", want, out)
		}
	}
}

func TestMain_ConfigReportsSecretLocations(t *testing.T) {
	env := offlineEnv(t)
	dir := t.TempDir()
	secretsPath := filepath.Join(dir, "secrets.yaml")
	if err := os.WriteFile(secretsPath, []byte("tasksift-cfgtest-primary: sk-hidden\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "providers:\n" +
		"  - provider: openrouter/moonshotai/kimi-k2:free\n    api_key_secret: tasksift-cfgtest-primary\n" +
		"  - provider: openai/gpt-3.5-turbo\n    api_key_secret: tasksift-cfgtest-secondary\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}
	env["TASKSIFT_SECRETS_FILE"] = secretsPath

	exitCode, out := runMainSubprocessWithEnv(t, env, "--config", cfgPath, "config")
	if exitCode != 0 {
		t.Fatalf("exit=%d out=%q", exitCode, out)
	}
	for _, want := range []string{"secret tasksift-cfgtest-primary (secrets file)", "secret tasksift-cfgtest-secondary (not set)"} {
		if !strings.Contains(out, want) {
			t.Errorf("config output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "sk-hidden") {
		t.Errorf("config output leaked a secret value:\n%s", out)
	}
}

func TestMain_ExtractOfflineSavesAndLists(t *testing.T) {
	env := offlineEnv(t)

	exitCode, out := runMainSubprocessWithEnv(t, env, "extract", "--json", "Call John about the project\nBuy groceries\nurgent: file taxes")
	if exitCode != 0 {
		t.Fatalf("extract exit=%d out=%q", exitCode, out)
	}
	var res extract.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decoding result: %v (%q)", err, out)
	}
	if res.Count != 3 || res.ExtractionMode != extract.ModeGeneral {
		t.Fatalf("unexpected result: %+v", res)
	}
	for _, todo := range res.Todos {
		if todo.Source != extract.SourceLocal {
			t.Errorf("todo %q source = %q, want local", todo.Title, todo.Source)
		}
	}

	exitCode, out = runMainSubprocessWithEnv(t, env, "list", "--json")
	if exitCode != 0 {
		t.Fatalf("list exit=%d out=%q", exitCode, out)
	}
	var listed []extract.Task
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decoding list: %v (%q)", err, out)
	}
	if len(listed) != 3 {
		t.Fatalf("listed %d todos, want 3", len(listed))
	}

	id := res.Todos[0].ID
	exitCode, out = runMainSubprocessWithEnv(t, env, "done", id)
	if exitCode != 0 || !strings.Contains(out, "Completed "+id) {
		t.Fatalf("done exit=%d out=%q", exitCode, out)
	}

	exitCode, out = runMainSubprocessWithEnv(t, env, "list", "--status", "done", "--json")
	if exitCode != 0 {
		t.Fatalf("list done exit=%d out=%q", exitCode, out)
	}
	listed = nil
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decoding done list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != id || !listed[0].Completed {
		t.Fatalf("unexpected done list: %+v", listed)
	}

	exitCode, out = runMainSubprocessWithEnv(t, env, "stats", "--json")
	if exitCode != 0 {
		t.Fatalf("stats exit=%d out=%q", exitCode, out)
	}
	var st store.Stats
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if st.TodoCount != 3 || st.CompletedCount != 1 || st.RunCount != 1 || st.BySource["local"] != 3 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	exitCode, out = runMainSubprocessWithEnv(t, env, "delete", id)
	if exitCode != 0 || !strings.Contains(out, "Deleted "+id) {
		t.Fatalf("delete exit=%d out=%q", exitCode, out)
	}
	exitCode, out = runMainSubprocessWithEnv(t, env, "delete", id)
	if exitCode != 1 || !strings.Contains(out, "not found") {
		t.Fatalf("second delete exit=%d out=%q", exitCode, out)
	}
}

func TestMain_ExtractDryRunSkipsStore(t *testing.T) {
	env := offlineEnv(t)
	dbPath := env["TASKSIFT_DB"]

	exitCode, out := runMainSubprocessWithEnv(t, env, "extract", "--dry-run", "Buy milk")
	if exitCode != 0 {
		t.Fatalf("exit=%d out=%q", exitCode, out)
	}
	if !strings.Contains(out, "Buy milk") || !strings.Contains(out, "Dry run") {
		t.Fatalf("unexpected output: %q", out)
	}
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatalf("dry run should not create the database, stat err = %v", err)
	}
}

func TestMain_ExtractFromFile(t *testing.T) {
	env := offlineEnv(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("- Read the Go book\n- Gym at 6"), 0600); err != nil {
		t.Fatal(err)
	}

	exitCode, out := runMainSubprocessWithEnv(t, env, "extract", "--dry-run", "--file", path)
	if exitCode != 0 {
		t.Fatalf("exit=%d out=%q", exitCode, out)
	}
	if !strings.Contains(out, "Extracted 2 todo(s) [local]") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestMain_ExtractBlankFileFails(t *testing.T) {
	env := offlineEnv(t)
	path := filepath.Join(t.TempDir(), "blank.txt")
	if err := os.WriteFile(path, []byte("   \n\t"), 0600); err != nil {
		t.Fatal(err)
	}

	exitCode, out := runMainSubprocessWithEnv(t, env, "extract", "--file", path)
	if exitCode != 1 || !strings.Contains(out, "text to extract is required") {
		t.Fatalf("exit=%d out=%q", exitCode, out)
	}
}

func TestMain_ExtractWithoutTextShowsUsage(t *testing.T) {
	exitCode, out := runMainSubprocessWithEnv(t, offlineEnv(t), "extract")
	if exitCode != 1 || !strings.Contains(out, "usage: tasksift extract") {
		t.Fatalf("exit=%d out=%q", exitCode, out)
	}
}

func TestMain_InvalidPrimaryFails(t *testing.T) {
	exitCode, out := runMainSubprocessWithEnv(t, offlineEnv(t), "extract", "--primary", "anthropic/claude", "Buy milk")
	if exitCode != 1 || !strings.Contains(out, "loading config") {
		t.Fatalf("exit=%d out=%q", exitCode, out)
	}
}

func TestMain_DBOpenFailureIncludesHint(t *testing.T) {
	env := offlineEnv(t)
	blockingPath := filepath.Join(t.TempDir(), "db-blocker")
	if err := os.WriteFile(blockingPath, []byte("x"), 0600); err != nil {
		t.Fatalf("write blocking file: %v", err)
	}
	env["TASKSIFT_DB"] = filepath.Join(blockingPath, "tasksift.db")

	exitCode, out := runMainSubprocessWithEnv(t, env, "list")
	if exitCode != 1 {
		t.Fatalf("exit code = %d, want 1; output=%q", exitCode, out)
	}
	if !strings.Contains(out, "opening store") {
		t.Fatalf("expected store-open error, got: %q", out)
	}
	if !strings.Contains(out, "Hint: Verify the DB path is valid and writable") {
		t.Fatalf("expected DB path remediation hint, got: %q", out)
	}
}

func TestMain_ExportGoogleWithoutTokenHints(t *testing.T) {
	env := offlineEnv(t)
	exitCode, out := runMainSubprocessWithEnv(t, env, "extract", "Buy milk")
	if exitCode != 0 {
		t.Fatalf("extract exit=%d out=%q", exitCode, out)
	}

	creds := filepath.Join(env["HOME"], ".tasksift", "google-credentials.json")
	if err := os.MkdirAll(filepath.Dir(creds), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(creds, []byte(`{"installed":{"client_id":"c","client_secret":"s","redirect_uris":["http://localhost"],"auth_uri":"https://a","token_uri":"https://t"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	exitCode, out = runMainSubprocessWithEnv(t, env, "export-google")
	if exitCode != 1 || !strings.Contains(out, "Hint: Run `tasksift auth-google`") {
		t.Fatalf("exit=%d out=%q", exitCode, out)
	}
}

func TestMainProcessHelper(t *testing.T) {
	if os.Getenv("TASKSIFT_TEST_MAIN_HELPER") != "1" {
		return
	}

	args := []string{"tasksift"}
	for i := 1; i < len(os.Args); i++ {
		if os.Args[i] == "--" {
			args = append(args, os.Args[i+1:]...)
			break
		}
	}
	os.Args = args
	main()
	os.Exit(0)
}

func runMainSubprocess(t *testing.T, args ...string) (int, string) {
	t.Helper()
	return runMainSubprocessWithEnv(t, nil, args...)
}

func runMainSubprocessWithEnv(t *testing.T, env map[string]string, args ...string) (int, string) {
	t.Helper()

	cmdArgs := []string{"-test.run=^TestMainProcessHelper$", "--"}
	cmdArgs = append(cmdArgs, args...)
	cmd := exec.Command(os.Args[0], cmdArgs...)
	cmd.Env = mergeEnv(os.Environ(), env)
	cmd.Env = append(cmd.Env, "TASKSIFT_TEST_MAIN_HELPER=1")

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return 0, out.String()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), out.String()
	}

	t.Fatalf("running subprocess main helper: %v", err)
	return -1, out.String()
}

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return append([]string{}, base...)
	}

	skip := make(map[string]struct{}, len(overrides))
	for k := range overrides {
		skip[k] = struct{}{}
	}

	merged := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			key = kv[:idx]
		}
		if _, shouldSkip := skip[key]; shouldSkip {
			continue
		}
		merged = append(merged, kv)
	}
	for k, v := range overrides {
		merged = append(merged, fmt.Sprintf("%s=%s", k, v))
	}
	return merged
}
