package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewServer(t *testing.T) {
	logger := zap.NewNop()
	s := NewServer("finsight-engine", "1.0.0", logger)

	require.NotNil(t, s)
	require.NotNil(t, s.mcp)
	assert.Same(t, logger, s.logger)
}

func TestServer_MCP(t *testing.T) {
	s := NewServer("finsight-engine", "1.0.0", zap.NewNop())

	require.NotNil(t, s.MCP())
	assert.Same(t, s.mcp, s.MCP())
}

func TestServer_RegisterTool(t *testing.T) {
	s := NewServer("finsight-engine", "1.0.0", zap.NewNop())

	called := false
	tool := mcp.NewTool("echo", mcp.WithDescription("Echo test tool"))
	s.RegisterTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("ok"), nil
	})

	assert.False(t, called, "handler must not run at registration time")
}

// TestServer_ToolCallLogging drives a tool call through the server's JSON-RPC
// entry point and verifies the registered hooks record it.
func TestServer_ToolCallLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewServer("finsight-engine", "1.0.0", zap.New(core))

	called := false
	tool := mcp.NewTool("echo", mcp.WithDescription("Echo test tool"))
	s.RegisterTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("ok"), nil
	})

	request := map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      1,
		"params": map[string]any{
			"name":      "echo",
			"arguments": map[string]any{"value": "hello"},
		},
	}
	reqBytes, err := json.Marshal(request)
	require.NoError(t, err)

	s.MCP().HandleMessage(context.Background(), reqBytes)

	assert.True(t, called)
	entries := logs.FilterMessage("Tool call completed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "echo", entries[0].ContextMap()["tool"])
}

func TestServer_NewStreamableHTTPServer(t *testing.T) {
	s := NewServer("finsight-engine", "1.0.0", zap.NewNop())

	assert.NotNil(t, s.NewStreamableHTTPServer())
}
