package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
	"github.com/finsight-hq/finsight-engine/pkg/services"
)

// CompaniesResponse wraps the ranked company matches for typeahead.
type CompaniesResponse struct {
	Companies []apperrors.CompanyMatch `json:"companies"`
}

// CompaniesHandler serves company search for typeahead.
type CompaniesHandler struct {
	companies services.CompanyResolver
	logger    *zap.Logger
}

// NewCompaniesHandler creates a new companies handler.
func NewCompaniesHandler(companies services.CompanyResolver, logger *zap.Logger) *CompaniesHandler {
	return &CompaniesHandler{
		companies: companies,
		logger:    logger,
	}
}

// RegisterRoutes registers the companies handler's routes on the given mux.
func (h *CompaniesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/companies", h.Search)
}

// Search handles GET /api/companies?q=<query>&limit=<n>. An empty query
// lists companies in snapshot order.
func (h *CompaniesHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		limit = parsed
	}

	matches := h.companies.Search(query, limit)
	if matches == nil {
		matches = []apperrors.CompanyMatch{}
	}

	response := ApiResponse{Success: true, Data: CompaniesResponse{Companies: matches}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
