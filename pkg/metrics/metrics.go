// Package metrics provides Prometheus metrics for the lead engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns all Prometheus collectors for the service.
type Manager struct {
	namespace string
	subsystem string
	registry  *prometheus.Registry

	// Scoring
	leadsScored       prometheus.Counter
	scoringFailures   prometheus.Counter
	scoreDistribution prometheus.Histogram

	// Enrichment
	enrichmentRuns       prometheus.Counter
	enrichmentDuplicates prometheus.Counter

	// Cache
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	cacheEvictions   prometheus.Counter
	cacheKeys        prometheus.Gauge
	rateLimitDenials prometheus.Counter

	// Follow-up
	followUpExecutions *prometheus.CounterVec
	followUpDowngrades prometheus.Counter

	// Predictions
	predictionsServed *prometheus.CounterVec

	// Experiments
	experimentAssignments prometheus.Counter
	experimentConversions prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace overrides the metric namespace.
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// WithSubsystem overrides the metric subsystem.
func WithSubsystem(sub string) Option {
	return func(m *Manager) {
		if sub != "" {
			m.subsystem = sub
		}
	}
}

// Global metrics manager on a custom registry, so the default Go
// collectors don't pollute the scrape output.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager()
}

// NewManager creates a metrics manager with its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "leadengine",
		subsystem: "core",
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initCollectors()
	return m
}

func (m *Manager) initCollectors() {
	factory := promauto.With(m.registry)
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		}
	}

	m.leadsScored = factory.NewCounter(opts("leads_scored_total", "Leads scored."))
	m.scoringFailures = factory.NewCounter(opts("scoring_failures_total", "Per-lead scoring failures."))
	m.scoreDistribution = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "lead_score", Help: "Distribution of computed lead scores.",
		Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	m.enrichmentRuns = factory.NewCounter(opts("enrichment_runs_total", "Lead enrichment runs."))
	m.enrichmentDuplicates = factory.NewCounter(opts("enrichment_duplicates_total", "Duplicate leads detected."))

	m.cacheHits = factory.NewCounter(opts("cache_hits_total", "Cache hits."))
	m.cacheMisses = factory.NewCounter(opts("cache_misses_total", "Cache misses."))
	m.cacheEvictions = factory.NewCounter(opts("cache_evictions_total", "Entries reclaimed by the sweep."))
	m.cacheKeys = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "cache_keys", Help: "Live cache entries.",
	})
	m.rateLimitDenials = factory.NewCounter(opts("rate_limit_denials_total", "Requests rejected by the rate limiter."))

	m.followUpExecutions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "followup_executions_total", Help: "Follow-up step executions by outcome.",
	}, []string{"outcome"})
	m.followUpDowngrades = factory.NewCounter(opts("followup_downgrades_total", "Leads auto-downgraded to LOST."))

	m.predictionsServed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "predictions_served_total", Help: "Predictions served by kind.",
	}, []string{"kind"})

	m.experimentAssignments = factory.NewCounter(opts("experiment_assignments_total", "Variant assignments."))
	m.experimentConversions = factory.NewCounter(opts("experiment_conversions_total", "Tracked conversions."))

	m.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_requests_total", Help: "HTTP requests by endpoint and status.",
	}, []string{"endpoint", "status"})
	m.httpRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_request_duration_ms", Help: "HTTP request latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"endpoint"})
}

// Handler returns the scrape endpoint for the global registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(globalManager.registry, promhttp.HandlerOpts{})
}

// Package-level record helpers on the global manager.

func RecordLeadScored(score int) {
	globalManager.leadsScored.Inc()
	globalManager.scoreDistribution.Observe(float64(score))
}
func RecordScoringFailure()     { globalManager.scoringFailures.Inc() }
func RecordEnrichmentRun()      { globalManager.enrichmentRuns.Inc() }
func RecordDuplicateDetected()  { globalManager.enrichmentDuplicates.Inc() }
func RecordCacheHit()           { globalManager.cacheHits.Inc() }
func RecordCacheMiss()          { globalManager.cacheMisses.Inc() }
func RecordRateLimitDenial()    { globalManager.rateLimitDenials.Inc() }
func RecordFollowUpDowngrade()  { globalManager.followUpDowngrades.Inc() }
func RecordAssignment()         { globalManager.experimentAssignments.Inc() }
func RecordConversionTracked()  { globalManager.experimentConversions.Inc() }
func UpdateCacheKeys(n int)     { globalManager.cacheKeys.Set(float64(n)) }
func RecordCacheEvictions(n int) {
	globalManager.cacheEvictions.Add(float64(n))
}

func RecordFollowUpExecution(outcome string) {
	globalManager.followUpExecutions.WithLabelValues(outcome).Inc()
}

func RecordPrediction(kind string) {
	globalManager.predictionsServed.WithLabelValues(kind).Inc()
}

func RecordHTTPRequest(endpoint, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, status).Inc()
}

func RecordHTTPRequestDuration(endpoint string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint).Observe(ms)
}
