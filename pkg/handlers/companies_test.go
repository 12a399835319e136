package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
	"github.com/finsight-hq/finsight-engine/pkg/models"
)

// mockCompanyResolver implements services.CompanyResolver for handler testing.
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

func TestCompaniesHandler_Search(t *testing.T) {
	svc := &mockCompanyResolver{matches: []apperrors.CompanyMatch{
		{CompanyID: 123, Name: "United Bank Limited", Ticker: "UBL", Score: 0.9},
		{CompanyID: 401, Name: "United Bank Holdings", Ticker: "UBH", Score: 0.8},
	}}
	handler := NewCompaniesHandler(svc, zap.NewNop())

	req := httptest.NewRequest("GET", "/api/companies?q=united+bank", nil)
	rr := httptest.NewRecorder()

	handler.Search(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "united bank", svc.lastQuery)
	assert.Equal(t, 0, svc.lastLimit)

	var resp ApiResponse
	err := json.NewDecoder(rr.Body).Decode(&resp)
	require.NoError(t, err)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	companies := data["companies"].([]any)
	require.Len(t, companies, 2)
	first := companies[0].(map[string]any)
	assert.Equal(t, "United Bank Limited", first["name"])
	assert.Equal(t, "UBL", first["ticker"])
	assert.Equal(t, 0.9, first["score"])
}

func TestCompaniesHandler_SearchWithLimit(t *testing.T) {
	svc := &mockCompanyResolver{}
	handler := NewCompaniesHandler(svc, zap.NewNop())

	req := httptest.NewRequest("GET", "/api/companies?q=bank&limit=3", nil)
	rr := httptest.NewRecorder()

	handler.Search(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "bank", svc.lastQuery)
	assert.Equal(t, 3, svc.lastLimit)
}

func TestCompaniesHandler_EmptyQueryListsAll(t *testing.T) {
	svc := &mockCompanyResolver{matches: []apperrors.CompanyMatch{
		{CompanyID: 123, Name: "United Bank Limited", Ticker: "UBL"},
	}}
	handler := NewCompaniesHandler(svc, zap.NewNop())

	req := httptest.NewRequest("GET", "/api/companies", nil)
	rr := httptest.NewRecorder()

	handler.Search(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, svc.lastQuery)
}

func TestCompaniesHandler_NoMatchesReturnsEmptyList(t *testing.T) {
	svc := &mockCompanyResolver{matches: nil}
	handler := NewCompaniesHandler(svc, zap.NewNop())

	req := httptest.NewRequest("GET", "/api/companies?q=zorbco", nil)
	rr := httptest.NewRecorder()

	handler.Search(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	err := json.NewDecoder(rr.Body).Decode(&resp)
	require.NoError(t, err)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	companies, ok := data["companies"].([]any)
	require.True(t, ok, "companies must be a JSON array, not null")
	assert.Empty(t, companies)
}

func TestCompaniesHandler_InvalidLimit(t *testing.T) {
	svc := &mockCompanyResolver{}
	handler := NewCompaniesHandler(svc, zap.NewNop())

	for _, limit := range []string{"abc", "0", "-5"} {
		req := httptest.NewRequest("GET", "/api/companies?q=bank&limit="+limit, nil)
		rr := httptest.NewRecorder()

		handler.Search(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "limit=%s", limit)

		var body map[string]string
		err := json.NewDecoder(rr.Body).Decode(&body)
		require.NoError(t, err)
		assert.Equal(t, "invalid_limit", body["error"])
	}
	assert.Empty(t, svc.lastQuery)
}

func TestCompaniesHandler_RegisterRoutes(t *testing.T) {
	svc := &mockCompanyResolver{}
	handler := NewCompaniesHandler(svc, zap.NewNop())

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := httptest.NewRequest("GET", "/api/companies?q=bank", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
