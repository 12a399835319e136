package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
	"github.com/finsight-hq/finsight-engine/pkg/services"
)

// CompanyToolDeps contains dependencies for the company tools.
type CompanyToolDeps struct {
	Companies services.CompanyResolver
	Logger    *zap.Logger
}

// RegisterCompanyTools registers the company-listing MCP tools.
func RegisterCompanyTools(s *server.MCPServer, deps *CompanyToolDeps) {
	registerListCompaniesTool(s, deps)
}

// listCompaniesResult contains the ranked company matches.
type listCompaniesResult struct {
	Query      string                   `json:"query,omitempty"`
	Companies  []apperrors.CompanyMatch `json:"companies"`
	TotalCount int                      `json:"total_count"`
}

// registerListCompaniesTool exposes company coverage for question phrasing:
// the model can check what a company is called before asking about it.
func registerListCompaniesTool(s *server.MCPServer, deps *CompanyToolDeps) {
	tool := mcp.NewTool(
		"list_companies",
		mcp.WithDescription(
			"List the companies covered by the warehouse, optionally ranked against a search query. "+
				"Matches company names and ticker symbols. Use this to find the exact name or ticker "+
				"to use in resolve_financial_query when a company reference is ambiguous. "+
				"Example: list_companies(query='united bank') returns matching companies ordered by score.",
		),
		mcp.WithString(
			"query",
			mcp.Description("Optional search text matched against company names and tickers (e.g. 'united bank', 'UBL')"),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Maximum number of companies to return (default 25)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := ""
		limit := 0
		if args, ok := req.Params.Arguments.(map[string]any); ok {
			if v, ok := args["query"].(string); ok {
				query = strings.TrimSpace(v)
			}
			if v, ok := args["limit"].(float64); ok {
				limit = int(v)
			}
		}

		if limit < 0 {
			return NewErrorResult("invalid_parameters", "limit must be a positive integer"), nil
		}

		matches := deps.Companies.Search(query, limit)
		if matches == nil {
			matches = []apperrors.CompanyMatch{}
		}

		result := listCompaniesResult{
			Query:      query,
			Companies:  matches,
			TotalCount: len(matches),
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
