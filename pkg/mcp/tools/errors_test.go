package tools

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
)

func decodeErrorResult(t *testing.T, result *mcp.CallToolResult) ErrorResponse {
	t.Helper()

	require.NotNil(t, result)
	require.True(t, result.IsError)
	require.Len(t, result.Content, 1)

	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var resp ErrorResponse
	err := json.Unmarshal([]byte(tc.Text), &resp)
	require.NoError(t, err)
	return resp
}

func TestNewErrorResult(t *testing.T) {
	result := NewErrorResult("invalid_parameters", "question parameter cannot be empty")

	resp := decodeErrorResult(t, result)
	assert.True(t, resp.Error)
	assert.Equal(t, "invalid_parameters", resp.Code)
	assert.Equal(t, "question parameter cannot be empty", resp.Message)
	assert.Nil(t, resp.Details)
}

func TestNewErrorResultWithDetails(t *testing.T) {
	result := NewErrorResultWithDetails("period_unresolvable", "cannot resolve period", map[string]any{
		"examples": []string{"Q3 2023", "FY2021"},
	})

	resp := decodeErrorResult(t, result)
	assert.Equal(t, "period_unresolvable", resp.Code)

	details, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	examples, ok := details["examples"].([]any)
	require.True(t, ok)
	assert.Len(t, examples, 2)
}

func TestNewResolutionErrorResult(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{
			name: "company not found",
			err:  &apperrors.CompanyNotFoundError{Phrase: "zorbco"},
			code: "company_not_found",
		},
		{
			name: "ambiguous company",
			err: &apperrors.AmbiguousCompanyError{Phrase: "united", Candidates: []apperrors.CompanyMatch{
				{CompanyID: 123, Name: "United Bank Limited"},
				{CompanyID: 401, Name: "United Bread Holdings"},
			}},
			code: "ambiguous_company",
		},
		{
			name: "period unresolvable",
			err:  &apperrors.PeriodUnresolvableError{Phrase: "back then", Examples: []string{"Q3 2023"}},
			code: "period_unresolvable",
		},
		{
			name: "metric not found",
			err:  &apperrors.MetricNotFoundError{Phrase: "blorbitude"},
			code: "metric_not_found",
		},
		{
			name: "metric without data",
			err:  &apperrors.MetricNoDataError{Phrase: "total assets", Tried: []apperrors.HeadCandidate{{HeadID: 9, Name: "Total Assets", Kind: "regular"}}},
			code: "metric_no_data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewResolutionErrorResult(tt.err)
			resp := decodeErrorResult(t, result)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.err.Error(), resp.Message)
			assert.NotNil(t, resp.Details)
		})
	}
}

func TestNewResolutionErrorResult_InfrastructureError(t *testing.T) {
	assert.Nil(t, NewResolutionErrorResult(errors.New("dial tcp: connection refused")),
		"infrastructure failures surface as Go errors, not tool results")
	assert.Nil(t, NewResolutionErrorResult(nil))
}

func TestNewResolutionErrorResult_WrappedError(t *testing.T) {
	inner := &apperrors.CompanyNotFoundError{Phrase: "zorbco"}
	result := NewResolutionErrorResult(wrapError{inner: inner})

	resp := decodeErrorResult(t, result)
	assert.Equal(t, "company_not_found", resp.Code)
}

type wrapError struct {
	inner error
}

func (w wrapError) Error() string { return "resolve question: " + w.inner.Error() }
func (w wrapError) Unwrap() error { return w.inner }
