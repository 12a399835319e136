package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
	"github.com/finsight-hq/finsight-engine/pkg/models"
	"github.com/finsight-hq/finsight-engine/pkg/services"
)

// mockResolutionService implements services.ResolutionService for tool testing.
type mockResolutionService struct {
	result *services.ResolutionResult
	err    error

	lastQuestion string
	lastOverride string
}

func (m *mockResolutionService) Resolve(_ context.Context, question, consolidationOverride string) (*services.ResolutionResult, error) {
	m.lastQuestion = question
	m.lastOverride = consolidationOverride
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockCompanyResolver implements services.CompanyResolver for tool testing.
type mockCompanyResolver struct {
	matches []apperrors.CompanyMatch

	lastQuery string
	lastLimit int
}

func (m *mockCompanyResolver) Resolve(_ string) (models.CompanyContext, error) {
	return models.CompanyContext{}, nil
}

func (m *mockCompanyResolver) Search(query string, limit int) []apperrors.CompanyMatch {
	m.lastQuery = query
	m.lastLimit = limit
	return m.matches
}

// newToolServer creates a bare MCP server for registering tools under test.
func newToolServer() *server.MCPServer {
	return server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
}

// callTool executes an MCP tool via the server's HandleMessage method.
func callTool(t *testing.T, s *server.MCPServer, toolName string, arguments map[string]any) *mcp.CallToolResult {
	t.Helper()

	callReq := map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      1,
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}

	reqBytes, err := json.Marshal(callReq)
	require.NoError(t, err)

	raw := s.HandleMessage(context.Background(), reqBytes)

	resultBytes, err := json.Marshal(raw)
	require.NoError(t, err)

	var response struct {
		Result *mcp.CallToolResult `json:"result,omitempty"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	err = json.Unmarshal(resultBytes, &response)
	require.NoError(t, err)
	require.Nil(t, response.Error, "unexpected JSON-RPC error")
	require.NotNil(t, response.Result)

	return response.Result
}

// listToolNames returns the registered tool names via tools/list.
func listToolNames(t *testing.T, s *server.MCPServer) map[string]bool {
	t.Helper()

	raw := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	resultBytes, err := json.Marshal(raw)
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	err = json.Unmarshal(resultBytes, &response)
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, tool := range response.Result.Tools {
		names[tool.Name] = true
	}
	return names
}

// textContent extracts the text payload of a tool result.
func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	require.Len(t, result.Content, 1)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}
