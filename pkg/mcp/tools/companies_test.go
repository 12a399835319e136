package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
)

func TestRegisterCompanyTools(t *testing.T) {
	s := newToolServer()
	RegisterCompanyTools(s, &CompanyToolDeps{
		Companies: &mockCompanyResolver{},
		Logger:    zap.NewNop(),
	})

	names := listToolNames(t, s)
	assert.True(t, names["list_companies"], "tool list_companies should be registered")
}

func TestListCompaniesTool_Search(t *testing.T) {
	svc := &mockCompanyResolver{matches: []apperrors.CompanyMatch{
		{CompanyID: 123, Name: "United Bank Limited", Ticker: "UBL", Score: 0.9},
		{CompanyID: 401, Name: "United Bank Holdings", Ticker: "UBH", Score: 0.8},
	}}
	s := newToolServer()
	RegisterCompanyTools(s, &CompanyToolDeps{Companies: svc, Logger: zap.NewNop()})

	result := callTool(t, s, "list_companies", map[string]any{
		"query": "united bank",
		"limit": float64(10),
	})
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	assert.Equal(t, "united bank", svc.lastQuery)
	assert.Equal(t, 10, svc.lastLimit)

	var res listCompaniesResult
	err := json.Unmarshal([]byte(textContent(t, result)), &res)
	require.NoError(t, err)

	assert.Equal(t, "united bank", res.Query)
	assert.Equal(t, 2, res.TotalCount)
	require.Len(t, res.Companies, 2)
	assert.Equal(t, "United Bank Limited", res.Companies[0].Name)
	assert.Equal(t, "UBH", res.Companies[1].Ticker)
}

func TestListCompaniesTool_NoArguments(t *testing.T) {
	svc := &mockCompanyResolver{}
	s := newToolServer()
	RegisterCompanyTools(s, &CompanyToolDeps{Companies: svc, Logger: zap.NewNop()})

	result := callTool(t, s, "list_companies", map[string]any{})
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	assert.Empty(t, svc.lastQuery)
	assert.Equal(t, 0, svc.lastLimit)

	var res listCompaniesResult
	err := json.Unmarshal([]byte(textContent(t, result)), &res)
	require.NoError(t, err)
	require.NotNil(t, res.Companies, "companies must be a JSON array, not null")
	assert.Empty(t, res.Companies)
	assert.Equal(t, 0, res.TotalCount)
}

func TestListCompaniesTool_NegativeLimit(t *testing.T) {
	svc := &mockCompanyResolver{}
	s := newToolServer()
	RegisterCompanyTools(s, &CompanyToolDeps{Companies: svc, Logger: zap.NewNop()})

	result := callTool(t, s, "list_companies", map[string]any{
		"limit": float64(-1),
	})
	require.NotNil(t, result)
	assert.True(t, result.IsError, "should return error result")

	var errorResp ErrorResponse
	err := json.Unmarshal([]byte(textContent(t, result)), &errorResp)
	require.NoError(t, err)
	assert.Equal(t, "invalid_parameters", errorResp.Code)
	assert.Empty(t, svc.lastQuery)
}
