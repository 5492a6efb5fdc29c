package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/hurttlocker/tasksift/internal/config"
	"github.com/hurttlocker/tasksift/internal/extract"
	"github.com/hurttlocker/tasksift/internal/logging"
	"github.com/hurttlocker/tasksift/internal/secrets"
	"github.com/hurttlocker/tasksift/internal/store"
)

const version = "0.3.0"

// Global flags, stripped from os.Args before dispatch.
var (
	globalDBPath     string
	globalConfigPath string
	globalVerbose    bool
)

func main() {
	args := parseGlobalFlags(os.Args[1:])
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch args[0] {
	case "extract":
		err = runExtract(args[1:])
	case "list":
		err = runList(args[1:])
	case "done":
		err = runDone(args[1:])
	case "delete":
		err = runDelete(args[1:])
	case "stats":
		err = runStats(args[1:])
	case "serve":
		err = runServe(args[1:])
	case "mcp":
		err = runMCP(args[1:])
	case "export-google":
		err = runExportGoogle(args[1:])
	case "auth-google":
		err = runAuthGoogle(args[1:])
	case "config":
		err = runConfig(args[1:])
	case "categories":
		err = runCategories(args[1:])
	case "version", "--version", "-v":
		fmt.Printf("tasksift %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := errorHint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

// parseGlobalFlags extracts --db, --config and --verbose from anywhere in
// args and returns the rest in order.
func parseGlobalFlags(args []string) []string {
	var filtered []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--db" && i+1 < len(args):
			i++
			globalDBPath = args[i]
		case strings.HasPrefix(args[i], "--db="):
			globalDBPath = strings.TrimPrefix(args[i], "--db=")
		case args[i] == "--config" && i+1 < len(args):
			i++
			globalConfigPath = args[i]
		case strings.HasPrefix(args[i], "--config="):
			globalConfigPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--verbose" || args[i] == "-V":
			globalVerbose = true
		default:
			filtered = append(filtered, args[i])
		}
	}
	return filtered
}

// app is the wiring shared by every command that touches config.
type app struct {
	cfg    config.ResolvedConfig
	logger *log.Logger
}

type appOptions struct {
	primary   string
	secondary string
	httpAddr  string
}

func loadApp(opts appOptions) (*app, error) {
	level := ""
	if globalVerbose {
		level = "debug"
	}
	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:   globalConfigPath,
		CLIDBPath:    globalDBPath,
		CLIPrimary:   opts.primary,
		CLISecondary: opts.secondary,
		CLILogLevel:  level,
		CLIHTTPAddr:  opts.httpAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	lopts := logging.DefaultOptions()
	lopts.Level = cfg.LogLevel.Value
	lopts.Format = cfg.LogFormat.Value
	return &app{cfg: cfg, logger: logging.New(os.Stderr, lopts)}, nil
}

func (a *app) openStore() (store.Store, error) {
	s, err := store.NewStore(store.StoreConfig{DBPath: a.cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

func (a *app) extractor() (*extract.Extractor, error) {
	backend, err := secrets.LoadFile(a.cfg.SecretsFile.Value)
	if err != nil {
		return nil, err
	}
	return extract.NewExtractor(a.cfg.Attempts(),
		extract.WithSecrets(secrets.NewResolver(backend)),
		extract.WithLogger(a.logger),
	), nil
}

func errorHint(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "opening store"):
		return "Verify the DB path is valid and writable (--db or TASKSIFT_DB)."
	case strings.Contains(msg, "no google token"):
		return "Run `tasksift auth-google` once to store a Google token."
	case strings.Contains(msg, "reading google credentials"):
		return "Download an OAuth client (Desktop app) JSON and set google_tasks.credentials."
	}
	return ""
}

// flagValue handles both "--name value" and "--name=value". It reports
// whether args[*i] matched and advances *i past a separate value.
func flagValue(args []string, i *int, name string) (string, bool) {
	arg := args[*i]
	if arg == name && *i+1 < len(args) {
		*i++
		return args[*i], true
	}
	if v, ok := strings.CutPrefix(arg, name+"="); ok {
		return v, true
	}
	return "", false
}

func printUsage() {
	fmt.Printf(`tasksift %s - turn notes and emails into todo lists

Usage:
  tasksift [--db <path>] [--config <path>] [--verbose] <command> [arguments]

Commands:
  extract [text]        Extract todos from text (args, --file or stdin)
  list                  List stored todos
  done <id>             Mark a todo completed (--undo to reopen)
  delete <id>           Delete a todo
  stats                 Show todo and extraction run counts
  serve                 Run the HTTP API
  mcp                   Run the MCP server on stdio
  export-google         Export open todos to a Google Tasks list
  auth-google           Authorize Google Tasks access
  config                Show resolved configuration
  categories            List categories and their keywords
  version               Print version

Extract Flags:
  --mode general|email  Prompt template (default general)
  --file <path>         Read text from a file ("-" for stdin)
  --primary <p/model>   Override the first provider
  --secondary <p/model> Override the second provider
  --dry-run             Do not save todos or log the run
  --json                Print the full result envelope

List Flags:
  --category <name>     Filter by category
  --priority <level>    Filter by priority
  --status open|done|all (default open)
  --limit <n>           Max rows (default 100)
  --json                JSON output

Environment:
  TASKSIFT_DB, TASKSIFT_SECRETS_FILE, TASKSIFT_LOG_LEVEL, TASKSIFT_LOG_FORMAT,
  TASKSIFT_HTTP_ADDR, TASKSIFT_PRIMARY, TASKSIFT_SECONDARY,
  OPENROUTER_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY
`, version)
}
