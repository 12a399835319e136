package mcp

import (
	"context"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/logging"
)

// maxLoggedArgLength bounds how much of a string argument lands in the log.
// Questions are short; anything longer is pasted context we don't need.
const maxLoggedArgLength = 200

// ToolCallLogger captures tool-call lifecycle events through mcp-go hooks and
// writes them to the engine log with durations. Resolution failures surfaced
// as structured tool results count as completed calls, not errors.
type ToolCallLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewToolCallLogger creates a ToolCallLogger that records MCP tool calls.
func NewToolCallLogger(logger *zap.Logger) *ToolCallLogger {
	return &ToolCallLogger{logger: logger.Named("mcp")}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (l *ToolCallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(l.beforeCallTool)
	hooks.AddAfterCallTool(l.afterCallTool)
	hooks.AddOnError(l.onError)
	return hooks
}

func (l *ToolCallLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	l.startTimes.Store(id, time.Now())
}

func (l *ToolCallLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	start, _ := l.loadAndDeleteStart(id)

	fields := []zap.Field{
		zap.String("tool", req.Params.Name),
		zap.Any("arguments", loggableArguments(req.Params.Arguments)),
		zap.Duration("duration", time.Since(start)),
	}
	if result != nil && result.IsError {
		// Structured failure result: the caller got suggestions back.
		l.logger.Info("Tool call returned failure result", fields...)
		return
	}
	l.logger.Info("Tool call completed", fields...)
}

func (l *ToolCallLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}

	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	start, _ := l.loadAndDeleteStart(id)
	l.logger.Warn("Tool call failed",
		zap.String("tool", req.Params.Name),
		zap.Any("arguments", loggableArguments(req.Params.Arguments)),
		zap.Duration("duration", time.Since(start)),
		zap.String("error", logging.SanitizeError(err)))
}

func (l *ToolCallLogger) loadAndDeleteStart(id any) (time.Time, bool) {
	if v, ok := l.startTimes.LoadAndDelete(id); ok {
		return v.(time.Time), true
	}
	return time.Now(), false
}

// loggableArguments truncates long string arguments so pasted questions or
// context blobs don't bloat the log.
func loggableArguments(args any) map[string]any {
	params, ok := args.(map[string]any)
	if !ok || len(params) == 0 {
		return nil
	}

	out := make(map[string]any, len(params))
	for k, v := range params {
		if s, ok := v.(string); ok {
			out[k] = logging.TruncateString(s, maxLoggedArgLength)
			continue
		}
		out[k] = v
	}
	return out
}
