package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/tasksift/internal/extract"
	"github.com/hurttlocker/tasksift/internal/store"
)

func registerCategoriesResource(s *server.MCPServer) {
	resource := mcp.NewResource(
		"tasksift://categories",
		"Task Categories",
		mcp.WithResourceDescription("Task categories with their keywords, display color and icon, in classification order."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		payload := map[string]any{"categories": extract.CategoryRules()}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func registerRunsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"tasksift://runs/recent",
		"Recent Extractions",
		mcp.WithResourceDescription("The 20 most recent extraction runs with the provider attempts each one made."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		runs, err := st.ListRuns(ctx, 20)
		if err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		if runs == nil {
			runs = []store.Run{}
		}
		data, _ := json.MarshalIndent(map[string]any{"runs": runs, "count": len(runs)}, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
