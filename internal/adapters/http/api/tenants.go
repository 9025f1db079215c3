// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/immodesk/leadengine/internal/domain/predict"
)

// TenantDependencies defines the interface for tenant-wide operations.
type TenantDependencies interface {
	RescoreTenant(ctx context.Context, tenantID string) (int, error)
	PredictContactTime(ctx context.Context, tenantID string) (predict.ContactTimePrediction, error)
	EstimatePrice(ctx context.Context, params predict.PriceParams) (predict.PriceEstimation, error)
}

// TenantsHandler handles tenant-wide requests.
type TenantsHandler struct {
	deps TenantDependencies
}

// NewTenantsHandler creates a new tenants handler.
func NewTenantsHandler(deps TenantDependencies) *TenantsHandler {
	return &TenantsHandler{deps: deps}
}

type rescoreResponse struct {
	Rescored int `json:"rescored"`
}

// HandleRescore handles POST /tenants/{id}/rescore requests.
func (h *TenantsHandler) HandleRescore(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	count, err := h.deps.RescoreTenant(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, rescoreResponse{Rescored: count})
}

// HandleContactTime handles GET /tenants/{id}/contact-time requests.
func (h *TenantsHandler) HandleContactTime(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	prediction, err := h.deps.PredictContactTime(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}

// priceEstimateRequest mirrors the JSON body of POST
// /tenants/{id}/price-estimate.
type priceEstimateRequest struct {
	City         string  `json:"city"`
	ZipCode      string  `json:"zip_code"`
	PropertyType string  `json:"property_type"`
	LivingArea   float64 `json:"living_area"`
	Rooms        float64 `json:"rooms"`
}

// HandlePriceEstimate handles POST /tenants/{id}/price-estimate
// requests.
func (h *TenantsHandler) HandlePriceEstimate(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	var req priceEstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid JSON body"))
		return
	}

	estimation, err := h.deps.EstimatePrice(r.Context(), predict.PriceParams{
		TenantID:     tenantID,
		City:         req.City,
		ZipCode:      req.ZipCode,
		PropertyType: req.PropertyType,
		LivingArea:   req.LivingArea,
		Rooms:        req.Rooms,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, estimation)
}
