// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/immodesk/leadengine/internal/domain/abtest"
)

// ExperimentDependencies defines the interface for experiment
// operations.
type ExperimentDependencies interface {
	CreateExperiment(ctx context.Context, name, description, typ string, variants []abtest.VariantInput) (*abtest.Experiment, error)
	StartExperiment(ctx context.Context, id string) error
	EndExperiment(ctx context.Context, id string) error
	AssignVariant(ctx context.Context, experimentID, identifier string) (*abtest.Variant, error)
	TrackConversion(ctx context.Context, experimentID, identifier string) (bool, error)
	ExperimentResults(ctx context.Context, experimentID string) (abtest.Results, error)
	ListExperiments(ctx context.Context) ([]*abtest.Experiment, error)
}

// ExperimentsHandler handles experiment requests.
type ExperimentsHandler struct {
	deps ExperimentDependencies
}

// NewExperimentsHandler creates a new experiments handler.
func NewExperimentsHandler(deps ExperimentDependencies) *ExperimentsHandler {
	return &ExperimentsHandler{deps: deps}
}

// createExperimentRequest mirrors the JSON body of POST /experiments.
type createExperimentRequest struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Type        string                `json:"type"`
	Variants    []abtest.VariantInput `json:"variants"`
}

func (c createExperimentRequest) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("missing name")
	}
	if len(c.Variants) == 0 {
		return errors.New("missing variants")
	}
	return nil
}

// HandleCreate handles POST /experiments requests.
func (h *ExperimentsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid JSON body"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	exp, err := h.deps.CreateExperiment(r.Context(), req.Name, req.Description, req.Type, req.Variants)
	if err != nil {
		if errors.Is(err, abtest.ErrInvalidWeights) || errors.Is(err, abtest.ErrNoVariants) {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

// HandleList handles GET /experiments requests.
func (h *ExperimentsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	experiments, err := h.deps.ListExperiments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, experiments)
}

// HandleStart handles POST /experiments/{id}/start requests.
func (h *ExperimentsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.deps.StartExperiment)
}

// HandleEnd handles POST /experiments/{id}/end requests.
func (h *ExperimentsHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.deps.EndExperiment)
}

func (h *ExperimentsHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) error) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	if err := fn(r.Context(), id); err != nil {
		if errors.Is(err, abtest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// identifierRequest carries the population identifier for assignment
// and conversion calls.
type identifierRequest struct {
	Identifier string `json:"identifier"`
}

// assignResponse is nil-safe: a paused or completed experiment yields
// assigned=false with no variant.
type assignResponse struct {
	Assigned bool            `json:"assigned"`
	Variant  *abtest.Variant `json:"variant,omitempty"`
}

// HandleAssign handles POST /experiments/{id}/assign requests.
func (h *ExperimentsHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req identifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Identifier) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing identifier"))
		return
	}

	variant, err := h.deps.AssignVariant(r.Context(), id, req.Identifier)
	if err != nil {
		if errors.Is(err, abtest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, assignResponse{Assigned: variant != nil, Variant: variant})
}

type convertResponse struct {
	Tracked bool `json:"tracked"`
}

// HandleConvert handles POST /experiments/{id}/convert requests.
func (h *ExperimentsHandler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req identifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Identifier) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing identifier"))
		return
	}

	tracked, err := h.deps.TrackConversion(r.Context(), id, req.Identifier)
	if err != nil {
		if errors.Is(err, abtest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, convertResponse{Tracked: tracked})
}

// HandleResults handles GET /experiments/{id}/results requests.
func (h *ExperimentsHandler) HandleResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	results, err := h.deps.ExperimentResults(r.Context(), id)
	if err != nil {
		if errors.Is(err, abtest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
