package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
	"github.com/finsight-hq/finsight-engine/pkg/services"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse"
)

// ResolveRequest is the POST /api/resolve body.
type ResolveRequest struct {
	Question string `json:"question"`
	// Consolidation, when set, overrides whatever consolidation phrase the
	// question carries ("consolidated" or "unconsolidated").
	Consolidation string `json:"consolidation,omitempty"`
}

// ResolvedCompany carries the resolved company identity.
type ResolvedCompany struct {
	CompanyID  int    `json:"company_id"`
	Name       string `json:"name"`
	Ticker     string `json:"ticker"`
	SectorID   int    `json:"sector_id"`
	IndustryID int    `json:"industry_id"`
}

// ResolvedMetric carries the resolved metric head.
type ResolvedMetric struct {
	HeadID            int    `json:"head_id"`
	Name              string `json:"name"`
	Kind              string `json:"kind"`
	DissectionGroupID int    `json:"dissection_group_id,omitempty"`
}

// ResolveResponse is the successful resolution payload: resolved ids and
// names, the built retrieval, and rows when execution is enabled.
type ResolveResponse struct {
	RequestID       string                 `json:"request_id"`
	Question        string                 `json:"question"`
	Company         ResolvedCompany        `json:"company"`
	Metric          ResolvedMetric         `json:"metric"`
	Period          string                 `json:"period"`
	ConsolidationID int                    `json:"consolidation_id"`
	SQL             string                 `json:"sql"`
	Args            []any                  `json:"args"`
	Columns         []warehouse.ColumnInfo `json:"columns,omitempty"`
	Rows            []map[string]any       `json:"rows,omitempty"`
	RowCount        int                    `json:"row_count"`
	Executed        bool                   `json:"executed"`
	ElapsedMS       int64                  `json:"elapsed_ms"`
}

// ResolveFailure is the structured payload for recoverable resolution
// failures: the phrase that failed plus whatever the resolver can suggest.
type ResolveFailure struct {
	Phrase      string                    `json:"phrase,omitempty"`
	Suggestions []string                  `json:"suggestions,omitempty"`
	Candidates  []apperrors.CompanyMatch  `json:"candidates,omitempty"`
	Examples    []string                  `json:"examples,omitempty"`
	Tried       []apperrors.HeadCandidate `json:"tried,omitempty"`
}

// ResolveHandler serves natural-language resolution requests.
type ResolveHandler struct {
	resolution services.ResolutionService
	logger     *zap.Logger
}

// NewResolveHandler creates a new resolve handler.
func NewResolveHandler(resolution services.ResolutionService, logger *zap.Logger) *ResolveHandler {
	return &ResolveHandler{
		resolution: resolution,
		logger:     logger,
	}
}

// RegisterRoutes registers the resolve handler's routes on the given mux.
func (h *ResolveHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/resolve", h.Resolve)
}

// Resolve handles POST /api/resolve.
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_question", "Question is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	res, err := h.resolution.Resolve(r.Context(), req.Question, req.Consolidation)
	if err != nil {
		h.writeResolutionError(w, req.Question, err)
		return
	}

	response := ApiResponse{Success: true, Data: toResolveResponse(res)}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeResolutionError maps recoverable resolution failures to structured
// 422 payloads and infrastructure failures to 500s.
func (h *ResolveHandler) writeResolutionError(w http.ResponseWriter, question string, err error) {
	code, failure, recoverable := classifyResolutionError(err)
	if !recoverable {
		h.logger.Error("Resolution failed",
			zap.String("question", question),
			zap.Error(err))
		if werr := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to resolve question"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	response := ApiResponse{
		Success: false,
		Error:   code,
		Message: err.Error(),
		Data:    failure,
	}
	if werr := WriteJSON(w, http.StatusUnprocessableEntity, response); werr != nil {
		h.logger.Error("Failed to write response", zap.Error(werr))
	}
}

// classifyResolutionError maps the typed resolution errors to wire codes
// and their suggestion payloads.
func classifyResolutionError(err error) (string, *ResolveFailure, bool) {
	var companyNotFound *apperrors.CompanyNotFoundError
	if errors.As(err, &companyNotFound) {
		return "company_not_found", &ResolveFailure{
			Phrase:     companyNotFound.Phrase,
			Candidates: companyNotFound.Suggestions,
		}, true
	}

	var ambiguous *apperrors.AmbiguousCompanyError
	if errors.As(err, &ambiguous) {
		return "ambiguous_company", &ResolveFailure{
			Phrase:     ambiguous.Phrase,
			Candidates: ambiguous.Candidates,
		}, true
	}

	var unresolvable *apperrors.PeriodUnresolvableError
	if errors.As(err, &unresolvable) {
		return "period_unresolvable", &ResolveFailure{
			Phrase:   unresolvable.Phrase,
			Examples: unresolvable.Examples,
		}, true
	}

	var metricNotFound *apperrors.MetricNotFoundError
	if errors.As(err, &metricNotFound) {
		return "metric_not_found", &ResolveFailure{
			Phrase:      metricNotFound.Phrase,
			Suggestions: metricNotFound.Suggestions,
		}, true
	}

	var noData *apperrors.MetricNoDataError
	if errors.As(err, &noData) {
		return "metric_no_data", &ResolveFailure{
			Phrase: noData.Phrase,
			Tried:  noData.Tried,
		}, true
	}

	return "", nil, false
}

func toResolveResponse(res *services.ResolutionResult) ResolveResponse {
	company := res.Spec.Company
	head := res.Spec.Head
	return ResolveResponse{
		RequestID: res.RequestID,
		Question:  res.Question,
		Company: ResolvedCompany{
			CompanyID:  company.Company.CompanyID,
			Name:       company.Company.Name,
			Ticker:     company.Company.Ticker,
			SectorID:   company.SectorID,
			IndustryID: company.IndustryID,
		},
		Metric: ResolvedMetric{
			HeadID:            head.HeadID,
			Name:              head.Name,
			Kind:              string(head.Kind),
			DissectionGroupID: head.DissectionGroupID,
		},
		Period:          res.Spec.Period.String(),
		ConsolidationID: res.Spec.ConsolidationID,
		SQL:             res.SQL,
		Args:            res.Args,
		Columns:         res.Columns,
		Rows:            res.Rows,
		RowCount:        res.RowCount,
		Executed:        res.Executed,
		ElapsedMS:       res.ElapsedMS,
	}
}
