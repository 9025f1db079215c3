// Package scoring computes the weighted 0-100 qualification score for
// leads. The six factors are independent, each capped at its own
// maximum, and the persisted breakdown justifies every automated
// decision to operators.
package scoring

import (
	"context"
	"fmt"
	"sync"

	"github.com/immodesk/leadengine/internal/adapters/batch"
	"github.com/immodesk/leadengine/internal/adapters/repository"
	"github.com/immodesk/leadengine/internal/domain/model"
	"github.com/immodesk/leadengine/pkg/logger"
	"github.com/immodesk/leadengine/pkg/metrics"
)

// Factor maxima. The six caps sum to 100.
const (
	maxTimeFrame    = 25
	maxFinancing    = 25
	maxBudget       = 15
	maxSource       = 15
	maxEngagement   = 10
	maxCompleteness = 10

	maxTotalScore = 100
)

// Result contains the computed score for a lead.
type Result struct {
	TotalScore int                 `json:"total_score"`
	Factors    []model.ScoreFactor `json:"factors"`
	Tier       model.Tier          `json:"tier"`
}

// Scorer computes and persists lead scores.
type Scorer struct {
	store repository.Store
	pool  *batch.Pool
	log   logger.Logger
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithRescoreWorkers bounds RescoreAll concurrency. The default of one
// keeps batches sequential with clear partial-failure reporting.
func WithRescoreWorkers(workers int) Option {
	return func(s *Scorer) {
		s.pool = batch.NewPool(workers)
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Scorer) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a Scorer reading and writing through store.
func New(store repository.Store, opts ...Option) *Scorer {
	s := &Scorer{
		store: store,
		pool:  batch.NewPool(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("scoring")
	}
	return s
}

// ScoreLead computes the score and breakdown for a lead without
// persisting anything.
func (s *Scorer) ScoreLead(ctx context.Context, leadID string) (Result, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return Result{}, fmt.Errorf("score lead %s: %w", leadID, err)
	}

	activityCount, err := s.store.CountActivities(ctx, leadID, nil)
	if err != nil {
		return Result{}, fmt.Errorf("count activities for %s: %w", leadID, err)
	}

	var propertyPrice float64
	if lead.PropertyID != "" {
		property, err := s.store.GetProperty(ctx, lead.PropertyID)
		if err == nil {
			propertyPrice = property.Price
		}
		// A dangling property link degrades to "no property" scoring.
	}

	factors := []model.ScoreFactor{
		scoreTimeFrame(lead.TimeFrame),
		scoreFinancing(lead.FinancingStatus, lead.HasDownPayment),
		scoreBudget(lead.BudgetMin, lead.BudgetMax, propertyPrice),
		scoreSource(lead.Source),
		scoreEngagement(lead.MessageCount, activityCount),
		scoreCompleteness(lead),
	}

	total := 0
	for _, f := range factors {
		total += f.Score
	}
	if total > maxTotalScore {
		total = maxTotalScore
	}
	if total < 0 {
		total = 0
	}

	return Result{
		TotalScore: total,
		Factors:    factors,
		Tier:       model.TierForScore(total),
	}, nil
}

// ScoreAndSave computes the score and persists it with its breakdown.
func (s *Scorer) ScoreAndSave(ctx context.Context, leadID string) (Result, error) {
	result, err := s.ScoreLead(ctx, leadID)
	if err != nil {
		return Result{}, err
	}

	score := result.TotalScore
	if err := s.store.UpdateLead(ctx, leadID, model.LeadUpdate{
		Score:        &score,
		ScoreFactors: result.Factors,
	}); err != nil {
		return Result{}, fmt.Errorf("persist score for %s: %w", leadID, err)
	}

	metrics.RecordLeadScored(result.TotalScore)
	return result, nil
}

// RescoreAll recomputes every non-LOST lead of a tenant. Per-lead
// failures are logged and skipped; the batch always completes and
// returns how many leads succeeded.
func (s *Scorer) RescoreAll(ctx context.Context, tenantID string) (int, error) {
	leads, err := s.store.ListLeads(ctx, repository.LeadFilter{
		TenantID:  tenantID,
		NotStatus: model.StatusLost,
	})
	if err != nil {
		return 0, fmt.Errorf("list leads for %s: %w", tenantID, err)
	}

	var succeeded int64
	var mu sync.Mutex
	s.pool.ForEach(ctx, len(leads), func(ctx context.Context, i int) {
		if _, err := s.ScoreAndSave(ctx, leads[i].ID); err != nil {
			metrics.RecordScoringFailure()
			s.log.Error(ctx, "rescore failed",
				logger.String("leadID", leads[i].ID),
				logger.Error(err),
			)
			return
		}
		mu.Lock()
		succeeded++
		mu.Unlock()
	})

	s.log.Info(ctx, "rescored tenant leads",
		logger.String("tenantID", tenantID),
		logger.Int("succeeded", int(succeeded)),
		logger.Int("total", len(leads)),
	)
	return int(succeeded), nil
}

func scoreTimeFrame(timeFrame model.LeadTimeFrame) model.ScoreFactor {
	factor := model.ScoreFactor{Name: "Time frame", MaxScore: maxTimeFrame}

	switch timeFrame {
	case model.TimeFrameImmediate:
		factor.Score, factor.Reason = 25, "Immediate — highest urgency"
	case model.TimeFrameThreeMonths:
		factor.Score, factor.Reason = 20, "1-3 months — actively searching"
	case model.TimeFrameSixMonths:
		factor.Score, factor.Reason = 15, "3-6 months — mid-term"
	case model.TimeFrameTwelveMonths:
		factor.Score, factor.Reason = 10, "6-12 months — planning"
	case model.TimeFrameLongTerm:
		factor.Score, factor.Reason = 5, ">12 months — not urgent yet"
	case "":
		factor.Score, factor.Reason = 5, "Not provided"
	default:
		factor.Score, factor.Reason = 5, "Unknown time frame"
	}
	return factor
}

func scoreFinancing(status model.FinancingStatus, hasDownPayment bool) model.ScoreFactor {
	base := map[model.FinancingStatus]int{
		model.FinancingNotClarified: 5,
		model.FinancingPreQualified: 15,
		model.FinancingApproved:     25,
		model.FinancingCashBuyer:    25,
	}

	score, ok := base[status]
	if !ok {
		score = 5
	}
	reason := "Financing: " + string(status)

	if hasDownPayment && score < maxFinancing {
		score += 5
		if score > maxFinancing {
			score = maxFinancing
		}
		reason += " + down payment confirmed"
	}

	return model.ScoreFactor{Name: "Financing", Score: score, MaxScore: maxFinancing, Reason: reason}
}

func scoreBudget(budgetMin, budgetMax, propertyPrice float64) model.ScoreFactor {
	factor := model.ScoreFactor{Name: "Budget", MaxScore: maxBudget}

	if budgetMin == 0 && budgetMax == 0 {
		factor.Score, factor.Reason = 3, "No budget provided"
		return factor
	}

	// A stated budget range is worth something on its own.
	factor.Score = 8
	factor.Reason = fmt.Sprintf("Budget: %.0f€ - %.0f€", budgetMin, budgetMax)

	if propertyPrice > 0 {
		max := budgetMax
		if max == 0 {
			max = propertyPrice // open-ended budget always matches upward
		}
		switch {
		case propertyPrice >= budgetMin && propertyPrice <= max:
			factor.Score = 15
			factor.Reason += " — matches the property"
		case propertyPrice <= max*1.1:
			factor.Score = 10
			factor.Reason += " — close match"
		default:
			factor.Score = 5
			factor.Reason += " — budget too low for the property"
		}
	}
	return factor
}

func scoreSource(source model.LeadSource) model.ScoreFactor {
	type entry struct {
		score  int
		reason string
	}
	table := map[model.LeadSource]entry{
		model.SourceReferral:    {15, "Referral — highest conversion"},
		model.SourceWebsite:     {12, "Own website — good quality"},
		model.SourceEvent:       {12, "Event — personal contact"},
		model.SourcePortal:      {10, "Listing portal — active search"},
		model.SourceSocialMedia: {7, "Social media — medium quality"},
		model.SourceColdCall:    {5, "Cold call — low conversion"},
		model.SourceOther:       {5, "Other source"},
	}

	e, ok := table[source]
	if !ok {
		e = entry{5, "Unknown source"}
	}
	return model.ScoreFactor{Name: "Source", Score: e.score, MaxScore: maxSource, Reason: e.reason}
}

func scoreEngagement(messageCount, activityCount int) model.ScoreFactor {
	if messageCount == 0 && activityCount <= 1 {
		return model.ScoreFactor{
			Name: "Engagement", Score: 1, MaxScore: maxEngagement,
			Reason: "No interaction yet",
		}
	}

	score := min(5, messageCount) + min(5, activityCount)
	if score > maxEngagement {
		score = maxEngagement
	}
	return model.ScoreFactor{
		Name: "Engagement", Score: score, MaxScore: maxEngagement,
		Reason: fmt.Sprintf("%d message(s), %d activity(ies)", messageCount, activityCount),
	}
}

func scoreCompleteness(lead model.Lead) model.ScoreFactor {
	const totalFields = 8
	filled := 0

	if lead.FirstName != "" && lead.LastName != "" {
		filled++
	}
	if lead.Email != "" {
		filled++
	}
	if lead.Phone != "" {
		filled++
	}
	if lead.BudgetMin > 0 || lead.BudgetMax > 0 {
		filled++
	}
	if lead.PreferredLocation != "" {
		filled++
	}
	if lead.PreferredType != "" {
		filled++
	}
	if lead.TimeFrame != "" {
		filled++
	}
	if lead.Notes != "" {
		filled++
	}

	score := int(float64(filled)/totalFields*maxCompleteness + 0.5)
	return model.ScoreFactor{
		Name: "Completeness", Score: score, MaxScore: maxCompleteness,
		Reason: fmt.Sprintf("%d/%d fields filled", filled, totalFields),
	}
}
