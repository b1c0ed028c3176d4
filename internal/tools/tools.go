// Package tools wires the memory service into MCP tools: add_memory,
// search_memory, get_memory, and delete_memory. The handlers translate
// structured tool arguments into service calls; all real semantics live in
// pkg/core.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kopertop/go-mem-mcp/pkg/core"
)

// Register attaches the memory tools to the supplied MCP server instance.
func Register(srv *server.MCPServer, svc *core.Service) {
	srv.AddTool(buildAddMemoryTool(), handleAddMemory(svc))
	srv.AddTool(buildSearchMemoryTool(), handleSearchMemory(svc))
	srv.AddTool(buildGetMemoryTool(), handleGetMemory(svc))
	srv.AddTool(buildDeleteMemoryTool(), handleDeleteMemory(svc))
}

// ---------------------------------------------------------------------------
// Tool builders (schema only, no execution logic)
// ---------------------------------------------------------------------------

func buildAddMemoryTool() mcp.Tool {
	return mcp.NewTool(
		"add_memory",
		mcp.WithDescription("Stores a new memory entry for retrieval later"),
		mcp.WithString("content",
			mcp.Description("Text content to store as a memory"),
			mcp.Required(),
		),
		mcp.WithString("sessionId",
			mcp.Description("Session identifier (optional)"),
		),
		mcp.WithString("agentId",
			mcp.Description("Agent identifier (optional)"),
		),
		mcp.WithObject("metadata",
			mcp.Description("Additional metadata to store with the memory (optional)"),
		),
	)
}

func buildSearchMemoryTool() mcp.Tool {
	return mcp.NewTool(
		"search_memory",
		mcp.WithDescription("Searches for memories based on semantic similarity to the query"),
		mcp.WithString("query",
			mcp.Description("The search query text to find relevant memories"),
			mcp.Required(),
		),
		mcp.WithString("sessionId",
			mcp.Description("Session identifier to filter memories by (optional)"),
		),
		mcp.WithString("agentId",
			mcp.Description("Agent identifier to filter memories by (optional)"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Similarity threshold between 0 and 1 (default: 0.7)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return (default: 10)"),
		),
	)
}

func buildGetMemoryTool() mcp.Tool {
	return mcp.NewTool(
		"get_memory",
		mcp.WithDescription("Retrieves a specific memory by ID"),
		mcp.WithString("memoryId",
			mcp.Description("ID of the memory to retrieve"),
			mcp.Required(),
		),
	)
}

func buildDeleteMemoryTool() mcp.Tool {
	return mcp.NewTool(
		"delete_memory",
		mcp.WithDescription("Deletes a specific memory by ID"),
		mcp.WithString("memoryId",
			mcp.Description("ID of the memory to delete"),
			mcp.Required(),
		),
	)
}

// ---------------------------------------------------------------------------
// Tool handlers
// ---------------------------------------------------------------------------

// searchResultItem is the wire shape for a single search hit.
type searchResultItem struct {
	ID         string        `json:"id"`
	Content    string        `json:"content"`
	Similarity float64       `json:"similarity"`
	Metadata   core.Metadata `json:"metadata,omitempty"`
	CreatedAt  string        `json:"createdAt"`
}

func handleAddMemory(svc *core.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var metadata core.Metadata
		if raw, ok := req.GetArguments()["metadata"]; ok {
			// Metadata may arrive as a map or as a JSON-encoded string
			// depending on how the caller built the argument object.
			switch v := raw.(type) {
			case map[string]any:
				metadata = core.Metadata(v)
			case string:
				if err := json.Unmarshal([]byte(v), &metadata); err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("invalid metadata: %v", err)), nil
				}
			}
		}

		m, err := svc.AddMemory(ctx, content,
			req.GetString("sessionId", ""),
			req.GetString("agentId", ""),
			metadata,
		)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]any{
			"success": true,
			"id":      m.ID,
			"message": "Memory stored successfully",
		})
	}
}

func handleSearchMemory(svc *core.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		opts := core.SearchOptions{
			Threshold: req.GetFloat("threshold", 0),
			Limit:     req.GetInt("limit", 0),
			Filter: core.Filter{
				SessionID: req.GetString("sessionId", ""),
				AgentID:   req.GetString("agentId", ""),
			},
		}

		results, err := svc.SearchMemories(ctx, query, opts)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		items := make([]searchResultItem, 0, len(results))
		for _, r := range results {
			items = append(items, searchResultItem{
				ID:         r.Memory.ID,
				Content:    r.Memory.Content,
				Similarity: r.Similarity,
				Metadata:   r.Memory.Metadata,
				CreatedAt:  r.Memory.CreatedAt.UTC().Format(time.RFC3339),
			})
		}

		return jsonResult(map[string]any{
			"success": true,
			"count":   len(items),
			"results": items,
		})
	}
}

func handleGetMemory(svc *core.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("memoryId")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		m, err := svc.GetMemory(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if m == nil {
			return mcp.NewToolResultError("Memory not found"), nil
		}

		return jsonResult(m)
	}
}

func handleDeleteMemory(svc *core.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("memoryId")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		// Verify the memory exists first so the caller gets a clear
		// not-found message rather than a bare false.
		m, err := svc.GetMemory(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if m == nil {
			return mcp.NewToolResultError("Memory not found"), nil
		}

		deleted, err := svc.DeleteMemory(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]any{
			"success": deleted,
			"message": "Memory deleted successfully",
		})
	}
}

// jsonResult marshals a payload into a text tool result.
func jsonResult(payload any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
