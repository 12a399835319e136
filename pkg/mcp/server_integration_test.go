package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testContextKey string

// TestServer_HTTPContextPropagation verifies that values placed on the HTTP
// request context by middleware are visible to MCP tool handlers when the
// server is mounted over the streamable HTTP transport.
func TestServer_HTTPContextPropagation(t *testing.T) {
	const key testContextKey = "request-id"
	var receivedValue string
	var receivedArgs map[string]any

	s := NewServer("finsight-engine", "1.0.0", zap.NewNop())

	tool := mcp.NewTool("capture-context", mcp.WithDescription("Test tool that reads a context value"))
	s.RegisterTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if v, ok := ctx.Value(key).(string); ok {
			receivedValue = v
		}
		if args, ok := req.Params.Arguments.(map[string]any); ok {
			receivedArgs = args
		}
		return mcp.NewToolResultText("ok"), nil
	})

	httpServer := s.NewStreamableHTTPServer()

	toolCallRequest := map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"params": map[string]any{
			"name":      "capture-context",
			"arguments": map[string]any{"question": "UBL net income"},
		},
		"id": 1,
	}
	body, err := json.Marshal(toolCallRequest)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(context.WithValue(req.Context(), key, "req-42"))

	rec := httptest.NewRecorder()
	httpServer.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", receivedValue,
		"tool handler should see middleware-injected context values")
	require.NotNil(t, receivedArgs)
	assert.Equal(t, "UBL net income", receivedArgs["question"])
}
