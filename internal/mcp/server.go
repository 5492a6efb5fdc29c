// Package mcp provides a Model Context Protocol server for tasksift.
//
// It exposes extraction and the saved todo list as MCP tools, and the
// category table and recent extraction runs as MCP resources. Served over
// stdio (Claude Desktop, Cursor and similar clients).
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/tasksift/internal/extract"
	"github.com/hurttlocker/tasksift/internal/store"
)

// Extractor is the extraction pipeline behind tasksift_extract.
type Extractor interface {
	Extract(ctx context.Context, text string, mode extract.Mode) (*extract.Result, error)
}

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Extractor Extractor
	Store     store.Store
	Logger    *log.Logger
	Version   string // version string for MCP server info
}

// dbMu serializes tool calls that touch the database. mcp-go dispatches
// handlers concurrently and SQLite allows one writer at a time.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all tasksift tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	s := server.NewMCPServer(
		"tasksift",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerExtractTool(s, cfg.Extractor, cfg.Store, logger)
	registerListTool(s, cfg.Store)
	registerCompleteTool(s, cfg.Store)

	registerCategoriesResource(s)
	registerRunsResource(s, cfg.Store)

	return s
}

// ServeStdio runs the server on stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// --- Tools ---

func registerExtractTool(s *server.MCPServer, ex Extractor, st store.Store, logger *log.Logger) {
	tool := mcp.NewTool("tasksift_extract",
		mcp.WithDescription("Extract actionable todo items from free-form text (notes, emails, chat). Tries the configured LLM providers in order and falls back to a local keyword classifier, so it always returns a task list for non-blank text."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The text to extract tasks from"),
		),
		mcp.WithString("mode",
			mcp.Description("Extraction mode (default: general). Email mode ignores pleasantries and signatures."),
			mcp.Enum(string(extract.ModeGeneral), string(extract.ModeEmail)),
		),
		mcp.WithBoolean("save",
			mcp.Description("Save the extracted todos to the local store (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		if strings.TrimSpace(text) == "" {
			return mcp.NewToolResultError("Text to extract is required"), nil
		}
		mode := extract.ModeGeneral
		if m, err := req.RequireString("mode"); err == nil {
			mode = extract.ParseMode(m)
		}
		save := false
		if v, err := req.RequireBool("save"); err == nil {
			save = v
		}

		res, err := ex.Extract(ctx, text, mode)
		if err != nil {
			if errors.Is(err, extract.ErrEmptyText) {
				return mcp.NewToolResultError("Text to extract is required"), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("extract error: %v", err)), nil
		}

		dbMu.Lock()
		defer dbMu.Unlock()
		if _, err := st.RecordRun(ctx, res, text); err != nil {
			logger.Warn("recording run failed", "err", err)
		}
		if save {
			if err := st.SaveTasks(ctx, res.Todos); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("save error: %v", err)), nil
			}
		}

		data, _ := json.MarshalIndent(res, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerListTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("tasksift_list",
		mcp.WithDescription("List saved todos, newest first. Filter by category, priority and status."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("category",
			mcp.Description("Only todos in this category"),
			mcp.Enum(categoryNames()...),
		),
		mcp.WithString("priority",
			mcp.Description("Only todos with this priority"),
			mcp.Enum(extract.PriorityHigh, extract.PriorityMedium, extract.PriorityLow),
		),
		mcp.WithString("status",
			mcp.Description("open, done or all (default: open)"),
			mcp.Enum("open", "done", "all"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of todos (default: 50, max: 500)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		opts := store.ListOpts{Limit: 50}
		if c, err := req.RequireString("category"); err == nil && c != "" {
			opts.Category = c
		}
		if p, err := req.RequireString("priority"); err == nil && p != "" {
			opts.Priority = p
		}
		status := "open"
		if v, err := req.RequireString("status"); err == nil && v != "" {
			status = v
		}
		switch status {
		case "open":
			open := false
			opts.Completed = &open
		case "done":
			done := true
			opts.Completed = &done
		case "all":
		default:
			return mcp.NewToolResultError(fmt.Sprintf("invalid status: %q", status)), nil
		}
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			limit := int(limitVal)
			if limit > 500 {
				limit = 500
			}
			if limit > 0 {
				opts.Limit = limit
			}
		}

		todos, err := st.ListTasks(ctx, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list error: %v", err)), nil
		}
		data, _ := json.MarshalIndent(map[string]any{"todos": todos, "count": len(todos)}, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerCompleteTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("tasksift_complete",
		mcp.WithDescription("Mark a saved todo as done, or reopen it with completed=false."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Todo id"),
		),
		mcp.WithBoolean("completed",
			mcp.Description("New completion state (default: true)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireString("id")
		if err != nil || strings.TrimSpace(id) == "" {
			return mcp.NewToolResultError("id is required"), nil
		}
		completed := true
		if v, err := req.RequireBool("completed"); err == nil {
			completed = v
		}

		if err := st.SetCompleted(ctx, id, completed); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("todo %s not found", id)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("update error: %v", err)), nil
		}
		task, err := st.GetTask(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read error: %v", err)), nil
		}
		data, _ := json.MarshalIndent(task, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func categoryNames() []string {
	rules := extract.CategoryRules()
	names := make([]string, 0, len(rules))
	for _, r := range rules {
		names = append(names, r.Name)
	}
	return names
}
