// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/immodesk/leadengine/internal/domain/followup"
)

// FollowUpDependencies defines the interface for follow-up execution.
type FollowUpDependencies interface {
	ExecuteFollowUp(ctx context.Context, leadID, tenantID string, step int) (followup.StepResult, error)
}

// FollowUpsHandler handles the scheduler's execution webhook.
type FollowUpsHandler struct {
	deps FollowUpDependencies
}

// NewFollowUpsHandler creates a new follow-ups handler.
func NewFollowUpsHandler(deps FollowUpDependencies) *FollowUpsHandler {
	return &FollowUpsHandler{deps: deps}
}

// executeRequest mirrors the payload the scheduling transport delivers.
type executeRequest struct {
	LeadID   string `json:"lead_id"`
	TenantID string `json:"tenant_id"`
	Step     int    `json:"step"`
}

func (e executeRequest) validate() error {
	switch {
	case strings.TrimSpace(e.LeadID) == "":
		return errors.New("missing lead_id")
	case strings.TrimSpace(e.TenantID) == "":
		return errors.New("missing tenant_id")
	}
	return nil
}

// HandleExecute handles POST /followups/execute requests, the webhook
// the external scheduler calls when a step is due.
func (h *FollowUpsHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid JSON body"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	result, err := h.deps.ExecuteFollowUp(r.Context(), req.LeadID, req.TenantID, req.Step)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
