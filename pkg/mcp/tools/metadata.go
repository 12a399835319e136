package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/metadata"
)

// MetadataToolDeps contains dependencies for the metadata tools.
type MetadataToolDeps struct {
	Store  *metadata.Store
	Logger *zap.Logger
}

// RegisterMetadataTools registers the metadata-refresh MCP tools.
func RegisterMetadataTools(s *server.MCPServer, deps *MetadataToolDeps) {
	registerRefreshMetadataTool(s, deps)
}

// refreshMetadataResult summarizes the snapshot that was swapped in.
type refreshMetadataResult struct {
	Companies      int       `json:"companies"`
	RegularHeads   int       `json:"regular_heads"`
	RatioHeads     int       `json:"ratio_heads"`
	Terms          int       `json:"terms"`
	Consolidations int       `json:"consolidations"`
	LoadedAt       time.Time `json:"loaded_at"`
}

// registerRefreshMetadataTool reloads the warehouse reference tables on
// demand, e.g. after new companies or metric heads land in the warehouse.
func registerRefreshMetadataTool(s *server.MCPServer, deps *MetadataToolDeps) {
	tool := mcp.NewTool(
		"refresh_metadata",
		mcp.WithDescription(
			"Reload the warehouse reference tables (companies, metric heads, terms, consolidation "+
				"types) and swap in a fresh metadata snapshot. Resolutions already in flight keep the "+
				"snapshot they started with. Use this after new companies or metrics land in the "+
				"warehouse; it is not needed in normal operation.",
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := deps.Store.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("failed to refresh metadata: %w", err)
		}

		snap := deps.Store.Current()
		result := refreshMetadataResult{
			Companies:      len(snap.Companies()),
			RegularHeads:   len(snap.RegularHeads()),
			RatioHeads:     len(snap.RatioHeads()),
			Terms:          len(snap.Terms()),
			Consolidations: len(snap.Consolidations()),
			LoadedAt:       snap.LoadedAt(),
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
