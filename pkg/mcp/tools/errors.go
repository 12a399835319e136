package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// This is used to return actionable failure information to the model
// as a successful tool result, ensuring suggestion details are visible
// rather than being swallowed by the MCP client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for recoverable failures the model can act on (e.g. an
// unmatched company name, an invalid parameter).
//
// Do NOT use this for system failures (warehouse connection errors,
// internal server errors) - those should still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// NewErrorResultWithDetails creates an error result with additional context.
// The details field carries whatever the resolver can suggest: candidate
// companies, accepted period phrasings, probed metric heads.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// NewResolutionErrorResult creates an error result from a resolution failure
// if it is recoverable. Returns nil if the error is an infrastructure failure
// (caller should return a Go error instead).
//
// Example usage:
//
//	res, err := deps.Resolution.Resolve(ctx, question, "")
//	if err != nil {
//	    if errResult := NewResolutionErrorResult(err); errResult != nil {
//	        return errResult, nil
//	    }
//	    return nil, fmt.Errorf("resolution failed: %w", err)
//	}
func NewResolutionErrorResult(err error) *mcp.CallToolResult {
	var companyNotFound *apperrors.CompanyNotFoundError
	if errors.As(err, &companyNotFound) {
		return NewErrorResultWithDetails("company_not_found", err.Error(), map[string]any{
			"phrase":      companyNotFound.Phrase,
			"suggestions": companyNotFound.Suggestions,
		})
	}

	var ambiguous *apperrors.AmbiguousCompanyError
	if errors.As(err, &ambiguous) {
		return NewErrorResultWithDetails("ambiguous_company", err.Error(), map[string]any{
			"phrase":     ambiguous.Phrase,
			"candidates": ambiguous.Candidates,
		})
	}

	var unresolvable *apperrors.PeriodUnresolvableError
	if errors.As(err, &unresolvable) {
		return NewErrorResultWithDetails("period_unresolvable", err.Error(), map[string]any{
			"phrase":   unresolvable.Phrase,
			"examples": unresolvable.Examples,
		})
	}

	var metricNotFound *apperrors.MetricNotFoundError
	if errors.As(err, &metricNotFound) {
		return NewErrorResultWithDetails("metric_not_found", err.Error(), map[string]any{
			"phrase":      metricNotFound.Phrase,
			"suggestions": metricNotFound.Suggestions,
		})
	}

	var noData *apperrors.MetricNoDataError
	if errors.As(err, &noData) {
		return NewErrorResultWithDetails("metric_no_data", err.Error(), map[string]any{
			"phrase": noData.Phrase,
			"tried":  noData.Tried,
		})
	}

	return nil
}
