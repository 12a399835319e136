// Package tools provides the MCP tool implementations for finsight-engine.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/services"
)

// ResolveToolDeps contains dependencies for the resolution tools.
type ResolveToolDeps struct {
	Resolution services.ResolutionService
	Logger     *zap.Logger
}

// RegisterResolveTools registers the question-resolution MCP tools.
func RegisterResolveTools(s *server.MCPServer, deps *ResolveToolDeps) {
	registerResolveFinancialQueryTool(s, deps)
}

// registerResolveFinancialQueryTool exposes the full resolution pipeline:
// question in, parameterized retrieval (and rows, when execution is enabled)
// out.
func registerResolveFinancialQueryTool(s *server.MCPServer, deps *ResolveToolDeps) {
	tool := mcp.NewTool(
		"resolve_financial_query",
		mcp.WithDescription(
			"Resolve a natural-language financial question into a parameterized warehouse retrieval. "+
				"Identifies the company, the metric head, the fiscal period, and the consolidation basis, "+
				"verifies the warehouse actually holds matching rows, and returns the built SQL with its "+
				"arguments plus the retrieved rows when execution is enabled. "+
				"Recoverable failures come back as structured results with suggestions: close company "+
				"matches, accepted period phrasings, or the metric heads that were probed without data.",
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The financial question in plain English (e.g. 'What was UBL's net income in Q2 2023?')"),
		),
		mcp.WithString(
			"consolidation",
			mcp.Description("Optional consolidation override, 'consolidated' or 'unconsolidated'. Replaces whatever the question says."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return nil, err
		}

		question = strings.TrimSpace(question)
		if question == "" {
			return NewErrorResult("invalid_parameters", "question parameter cannot be empty"), nil
		}

		consolidation := ""
		if args, ok := req.Params.Arguments.(map[string]any); ok {
			if v, ok := args["consolidation"].(string); ok {
				consolidation = v
			}
		}

		res, err := deps.Resolution.Resolve(ctx, question, consolidation)
		if err != nil {
			if result := NewResolutionErrorResult(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("failed to resolve question: %w", err)
		}

		jsonResult, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
