// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/immodesk/leadengine/internal/adapters/cache"
	"github.com/immodesk/leadengine/internal/domain/abtest"
	"github.com/immodesk/leadengine/internal/domain/enrichment"
	"github.com/immodesk/leadengine/internal/domain/followup"
	"github.com/immodesk/leadengine/internal/domain/predict"
	"github.com/immodesk/leadengine/internal/domain/scoring"
)

// Dependencies required by HTTP handlers. Using an interface bundle
// keeps the handler layer loosely coupled to implementations in other
// packages.
type Dependencies interface {
	ScoreLead(ctx context.Context, leadID string) (scoring.Result, error)
	RescoreTenant(ctx context.Context, tenantID string) (int, error)
	EnrichLead(ctx context.Context, leadID, tenantID string) (enrichment.Result, error)

	PredictConversion(ctx context.Context, leadID, tenantID string) (predict.ConversionPrediction, error)
	PredictContactTime(ctx context.Context, tenantID string) (predict.ContactTimePrediction, error)
	EstimatePrice(ctx context.Context, params predict.PriceParams) (predict.PriceEstimation, error)

	ExecuteFollowUp(ctx context.Context, leadID, tenantID string, step int) (followup.StepResult, error)

	CreateExperiment(ctx context.Context, name, description, typ string, variants []abtest.VariantInput) (*abtest.Experiment, error)
	StartExperiment(ctx context.Context, id string) error
	EndExperiment(ctx context.Context, id string) error
	AssignVariant(ctx context.Context, experimentID, identifier string) (*abtest.Variant, error)
	TrackConversion(ctx context.Context, experimentID, identifier string) (bool, error)
	ExperimentResults(ctx context.Context, experimentID string) (abtest.Results, error)
	ListExperiments(ctx context.Context) ([]*abtest.Experiment, error)

	CheckRateLimit(ctx context.Context, identifier string) cache.RateLimitResult
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	leadsHandler       *LeadsHandler
	tenantsHandler     *TenantsHandler
	followUpsHandler   *FollowUpsHandler
	experimentsHandler *ExperimentsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		leadsHandler:       NewLeadsHandler(deps),
		tenantsHandler:     NewTenantsHandler(deps),
		followUpsHandler:   NewFollowUpsHandler(deps),
		experimentsHandler: NewExperimentsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux. Mutating routes go through
// the rate-limit middleware; everything goes through metrics.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux, deps Dependencies) {
	limited := func(endpoint string, next http.HandlerFunc) http.HandlerFunc {
		return MetricsMiddleware(RateLimitMiddleware(deps, next), endpoint)
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /leads/{id}/score", limited("lead_score", s.leadsHandler.HandleScore))
	mux.HandleFunc("POST /leads/{id}/enrich", limited("lead_enrich", s.leadsHandler.HandleEnrich))
	mux.HandleFunc("GET /leads/{id}/conversion", MetricsMiddleware(s.leadsHandler.HandleConversion, "lead_conversion"))

	mux.HandleFunc("POST /tenants/{id}/rescore", limited("tenant_rescore", s.tenantsHandler.HandleRescore))
	mux.HandleFunc("GET /tenants/{id}/contact-time", MetricsMiddleware(s.tenantsHandler.HandleContactTime, "tenant_contact_time"))
	mux.HandleFunc("POST /tenants/{id}/price-estimate", MetricsMiddleware(s.tenantsHandler.HandlePriceEstimate, "tenant_price_estimate"))

	mux.HandleFunc("POST /followups/execute", MetricsMiddleware(s.followUpsHandler.HandleExecute, "followup_execute"))

	mux.HandleFunc("POST /experiments", limited("experiment_create", s.experimentsHandler.HandleCreate))
	mux.HandleFunc("GET /experiments", MetricsMiddleware(s.experimentsHandler.HandleList, "experiment_list"))
	mux.HandleFunc("POST /experiments/{id}/start", limited("experiment_start", s.experimentsHandler.HandleStart))
	mux.HandleFunc("POST /experiments/{id}/end", limited("experiment_end", s.experimentsHandler.HandleEnd))
	mux.HandleFunc("POST /experiments/{id}/assign", MetricsMiddleware(s.experimentsHandler.HandleAssign, "experiment_assign"))
	mux.HandleFunc("POST /experiments/{id}/convert", MetricsMiddleware(s.experimentsHandler.HandleConvert, "experiment_convert"))
	mux.HandleFunc("GET /experiments/{id}/results", MetricsMiddleware(s.experimentsHandler.HandleResults, "experiment_results"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// isNotFound allows the API to translate upstream not-found errors to
// 404. This stays generic to avoid tight coupling with specific
// packages.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var notFound interface{ NotFound() bool }
	if errors.As(err, &notFound) {
		return notFound.NotFound()
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}
