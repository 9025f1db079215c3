// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/immodesk/leadengine/internal/domain/enrichment"
	"github.com/immodesk/leadengine/internal/domain/predict"
	"github.com/immodesk/leadengine/internal/domain/scoring"
)

// LeadDependencies defines the interface for per-lead operations.
type LeadDependencies interface {
	ScoreLead(ctx context.Context, leadID string) (scoring.Result, error)
	EnrichLead(ctx context.Context, leadID, tenantID string) (enrichment.Result, error)
	PredictConversion(ctx context.Context, leadID, tenantID string) (predict.ConversionPrediction, error)
}

// LeadsHandler handles per-lead requests.
type LeadsHandler struct {
	deps LeadDependencies
}

// NewLeadsHandler creates a new leads handler.
func NewLeadsHandler(deps LeadDependencies) *LeadsHandler {
	return &LeadsHandler{deps: deps}
}

// HandleScore handles POST /leads/{id}/score requests.
func (h *LeadsHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("id")
	if leadID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	result, err := h.deps.ScoreLead(r.Context(), leadID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleEnrich handles POST /leads/{id}/enrich requests. The tenant is
// passed as the tenant_id query parameter.
func (h *LeadsHandler) HandleEnrich(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("id")
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if leadID == "" || tenantID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	result, err := h.deps.EnrichLead(r.Context(), leadID, tenantID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleConversion handles GET /leads/{id}/conversion requests.
func (h *LeadsHandler) HandleConversion(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("id")
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if leadID == "" || tenantID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	prediction, err := h.deps.PredictConversion(r.Context(), leadID, tenantID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}
