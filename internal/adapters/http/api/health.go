// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/immodesk/leadengine/pkg/metrics"
)

// HealthHandler handles health check and metrics requests.
type HealthHandler struct{}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// HandleHealth handles GET /healthz requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MetricsHandler serves the Prometheus registry on GET /metrics.
func (h *HealthHandler) MetricsHandler() http.Handler {
	return metrics.Handler()
}
