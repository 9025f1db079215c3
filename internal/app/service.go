// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/immodesk/leadengine/internal/adapters/cache"
	"github.com/immodesk/leadengine/internal/adapters/notify"
	"github.com/immodesk/leadengine/internal/adapters/repository"
	"github.com/immodesk/leadengine/internal/adapters/scheduling"
	"github.com/immodesk/leadengine/internal/domain/abtest"
	"github.com/immodesk/leadengine/internal/domain/enrichment"
	"github.com/immodesk/leadengine/internal/domain/followup"
	"github.com/immodesk/leadengine/internal/domain/predict"
	"github.com/immodesk/leadengine/internal/domain/scoring"
	"github.com/immodesk/leadengine/pkg/logger"
)

// Service wires the record store, cache and domain engines together and
// implements the operations the HTTP API serves.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	cache      cache.Store
	scorer     *scoring.Scorer
	enricher   *enrichment.Enricher
	predictor  *predict.Predictor
	followUps  *followup.Engine
	experiment *abtest.Engine
	scheduler  scheduling.Scheduler
	notifier   notify.Notifier

	// Configuration
	sweepInterval   time.Duration
	rateLimitMax    int
	rateLimitWindow time.Duration
	predictionTTL   time.Duration
	followUpHour    int
	rescoreWorkers  int

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the record store. Required before Start.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithScheduler sets the outbound scheduling collaborator. Without it
// the service runs an in-process timer scheduler.
func WithScheduler(scheduler scheduling.Scheduler) Option {
	return func(s *Service) {
		s.scheduler = scheduler
	}
}

// WithNotifier sets the outbound notification collaborator.
func WithNotifier(notifier notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithCacheSweepInterval sets the cache's active expiry interval.
func WithCacheSweepInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithRateLimit bounds mutating API calls per identifier and window.
func WithRateLimit(maxRequests int, window time.Duration) Option {
	return func(s *Service) {
		if maxRequests > 0 && window > 0 {
			s.rateLimitMax = maxRequests
			s.rateLimitWindow = window
		}
	}
}

// WithPredictionTTL sets how long prediction results stay cached.
func WithPredictionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.predictionTTL = ttl
		}
	}
}

// WithFollowUpHour sets the local hour follow-up steps fire at.
func WithFollowUpHour(hour int) Option {
	return func(s *Service) {
		if hour >= 0 && hour <= 23 {
			s.followUpHour = hour
		}
	}
}

// WithRescoreWorkers bounds batch rescoring concurrency.
func WithRescoreWorkers(workers int) Option {
	return func(s *Service) {
		if workers > 0 {
			s.rescoreWorkers = workers
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		sweepInterval:   60 * time.Second,
		rateLimitMax:    120,
		rateLimitWindow: time.Minute,
		predictionTTL:   2 * time.Minute,
		followUpHour:    9,
		rescoreWorkers:  1,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the domain engines. A record store must have been
// provided; everything else gets a default.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.store == nil {
		return fmt.Errorf("service: no record store configured")
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting lead engine service...")

	s.cache = cache.NewMemoryStore(
		cache.WithSweepInterval(s.sweepInterval),
	)
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(s.logger.Named("notify"))
	}
	if s.scheduler == nil {
		s.scheduler = scheduling.NewTimerScheduler(s.executeScheduled,
			scheduling.WithLogger(s.logger.Named("scheduling")),
		)
	}

	s.scorer = scoring.New(s.store,
		scoring.WithRescoreWorkers(s.rescoreWorkers),
		scoring.WithLogger(s.logger.Named("scoring")),
	)
	s.enricher = enrichment.New(s.store,
		enrichment.WithLogger(s.logger.Named("enrichment")),
	)
	s.predictor = predict.New(s.store,
		predict.WithLogger(s.logger.Named("predict")),
	)
	s.followUps = followup.NewEngine(s.store, s.scheduler, s.notifier,
		followup.WithHour(s.followUpHour),
		followup.WithLogger(s.logger.Named("followup")),
	)
	s.experiment = abtest.NewEngine(abtest.NewMemoryStore(),
		abtest.WithLogger(s.logger.Named("abtest")),
	)

	s.started = true
	s.logger.Info(ctx, "lead engine service started",
		logger.Int("rescoreWorkers", s.rescoreWorkers),
		logger.Int("rateLimitMax", s.rateLimitMax),
		logger.Int("followUpHour", s.followUpHour),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping lead engine service...")

	if timer, ok := s.scheduler.(*scheduling.TimerScheduler); ok {
		timer.Stop()
	}
	if s.cache != nil {
		if closer, ok := s.cache.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
	if closer, ok := s.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	s.started = false
	s.logger.Info(context.Background(), "lead engine service stopped")
}

// executeScheduled is the timer scheduler's callback into the follow-up
// engine. Errors are logged; a scheduled run has no caller to report to.
func (s *Service) executeScheduled(ctx context.Context, req scheduling.ScheduleRequest) {
	if _, err := s.ExecuteFollowUp(ctx, req.LeadID, req.TenantID, req.Step); err != nil {
		s.logger.Error(ctx, "scheduled follow-up failed", logger.Error(err),
			logger.String("leadID", req.LeadID),
			logger.Int("step", req.Step),
		)
	}
}

// ScoreLead scores one lead and persists the result.
func (s *Service) ScoreLead(ctx context.Context, leadID string) (scoring.Result, error) {
	result, err := s.scorer.ScoreAndSave(ctx, leadID)
	if err != nil {
		return scoring.Result{}, err
	}
	// A fresh score invalidates cached predictions for this lead.
	s.cache.Del(ctx, cache.PredictionKey("conversion", leadID))
	return result, nil
}

// RescoreTenant rescores all active leads of a tenant and returns how
// many succeeded.
func (s *Service) RescoreTenant(ctx context.Context, tenantID string) (int, error) {
	return s.scorer.RescoreAll(ctx, tenantID)
}

// EnrichLead runs duplicate detection, phone normalization and
// completeness analysis on a lead.
func (s *Service) EnrichLead(ctx context.Context, leadID, tenantID string) (enrichment.Result, error) {
	return s.enricher.EnrichLead(ctx, leadID, tenantID)
}

// PredictConversion returns the cached conversion prediction for a
// lead, computing it on miss.
func (s *Service) PredictConversion(ctx context.Context, leadID, tenantID string) (predict.ConversionPrediction, error) {
	var prediction predict.ConversionPrediction
	err := s.cachedJSON(ctx, cache.PredictionKey("conversion", leadID), &prediction,
		func(ctx context.Context) (any, error) {
			return s.predictor.PredictConversion(ctx, leadID, tenantID)
		})
	return prediction, err
}

// PredictContactTime returns the cached contact-time prediction for a
// tenant, computing it on miss.
func (s *Service) PredictContactTime(ctx context.Context, tenantID string) (predict.ContactTimePrediction, error) {
	var prediction predict.ContactTimePrediction
	err := s.cachedJSON(ctx, cache.PredictionKey("contact_time", tenantID), &prediction,
		func(ctx context.Context) (any, error) {
			return s.predictor.PredictContactTime(ctx, tenantID)
		})
	return prediction, err
}

// EstimatePrice runs comparable analysis. Parameter combinations vary
// per call, so estimates are not cached.
func (s *Service) EstimatePrice(ctx context.Context, params predict.PriceParams) (predict.PriceEstimation, error) {
	return s.predictor.EstimatePrice(ctx, params)
}

// ScheduleFollowUps schedules the first follow-up step for a lead.
func (s *Service) ScheduleFollowUps(ctx context.Context, leadID string) error {
	return s.followUps.ScheduleSequence(ctx, leadID)
}

// ExecuteFollowUp runs one follow-up step, invoked by the scheduling
// transport.
func (s *Service) ExecuteFollowUp(ctx context.Context, leadID, tenantID string, step int) (followup.StepResult, error) {
	return s.followUps.ExecuteStep(ctx, leadID, tenantID, step)
}

// CreateExperiment creates a draft experiment.
func (s *Service) CreateExperiment(ctx context.Context, name, description, typ string, variants []abtest.VariantInput) (*abtest.Experiment, error) {
	return s.experiment.CreateExperiment(ctx, name, description, typ, variants)
}

// StartExperiment flips an experiment to running.
func (s *Service) StartExperiment(ctx context.Context, id string) error {
	return s.experiment.StartExperiment(ctx, id)
}

// EndExperiment completes an experiment.
func (s *Service) EndExperiment(ctx context.Context, id string) error {
	return s.experiment.EndExperiment(ctx, id)
}

// AssignVariant resolves the experiment variant for an identifier.
func (s *Service) AssignVariant(ctx context.Context, experimentID, identifier string) (*abtest.Variant, error) {
	return s.experiment.Assign(ctx, experimentID, identifier)
}

// TrackConversion credits a conversion to an identifier's variant.
func (s *Service) TrackConversion(ctx context.Context, experimentID, identifier string) (bool, error) {
	return s.experiment.TrackConversion(ctx, experimentID, identifier)
}

// ExperimentResults reports per-variant numbers and significance.
func (s *Service) ExperimentResults(ctx context.Context, experimentID string) (abtest.Results, error) {
	return s.experiment.GetResults(ctx, experimentID)
}

// ListExperiments returns all experiments.
func (s *Service) ListExperiments(ctx context.Context) ([]*abtest.Experiment, error) {
	return s.experiment.ListExperiments(ctx)
}

// CheckRateLimit enforces the configured sliding window for an API
// identifier.
func (s *Service) CheckRateLimit(ctx context.Context, identifier string) cache.RateLimitResult {
	return s.cache.CheckRateLimit(ctx, identifier, s.rateLimitMax, s.rateLimitWindow)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":        s.started,
		"rescoreWorkers": s.rescoreWorkers,
		"rateLimitMax":   s.rateLimitMax,
	}

	if s.started {
		cacheStats := s.cache.Stats()
		stats["cache"] = map[string]interface{}{
			"hits":    cacheStats.Hits,
			"misses":  cacheStats.Misses,
			"sets":    cacheStats.Sets,
			"deletes": cacheStats.Deletes,
			"hitRate": cacheStats.HitRate,
			"keys":    cacheStats.TotalKeys,
		}
	}

	return stats
}

// cachedJSON runs the cache-aside pattern with JSON marshalling: fetch
// computes the value on miss, the cached string is unmarshalled into
// out on hit.
func (s *Service) cachedJSON(ctx context.Context, key string, out any, fetch func(ctx context.Context) (any, error)) error {
	raw, err := s.cache.GetOrSet(ctx, key, func(ctx context.Context) (string, error) {
		value, err := fetch(ctx)
		if err != nil {
			return "", err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("encode cached value: %w", err)
		}
		return string(encoded), nil
	}, s.predictionTTL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode cached value: %w", err)
	}
	return nil
}
