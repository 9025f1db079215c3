package predict

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/immodesk/leadengine/internal/adapters/repository"
	"github.com/immodesk/leadengine/internal/domain/model"
	"github.com/immodesk/leadengine/pkg/metrics"
)

// Probability clamp: never report certainty in either direction.
const (
	minProbability = 1
	maxProbability = 99

	// defaultBaseRate is assumed when a tenant has no history at all.
	defaultBaseRate = 15.0
)

// ConversionFactor is one adjustment applied on top of the tenant's
// base conversion rate, with its numeric impact and a human-readable
// description.
type ConversionFactor struct {
	Factor      string `json:"factor"`
	Impact      int    `json:"impact"`
	Description string `json:"description"`
}

// ConversionPrediction is the full conversion-probability report.
type ConversionPrediction struct {
	Probability            int                `json:"probability"`
	Factors                []ConversionFactor `json:"factors"`
	Recommendation         string             `json:"recommendation"`
	EstimatedDaysToConvert *int               `json:"estimated_days_to_convert"`
}

// PredictConversion estimates how likely a lead is to convert, starting
// from the tenant's historical conversion rate and adjusting it by the
// lead's individual signals.
func (p *Predictor) PredictConversion(ctx context.Context, leadID, tenantID string) (ConversionPrediction, error) {
	lead, err := p.store.GetLead(ctx, leadID)
	if err != nil {
		return ConversionPrediction{}, fmt.Errorf("predict conversion for %s: %w", leadID, err)
	}

	totalLeads, err := p.store.CountLeads(ctx, tenantID, "")
	if err != nil {
		return ConversionPrediction{}, fmt.Errorf("count leads: %w", err)
	}
	convertedLeads, err := p.store.CountLeads(ctx, tenantID, model.StatusBooked)
	if err != nil {
		return ConversionPrediction{}, fmt.Errorf("count converted leads: %w", err)
	}

	baseRate := defaultBaseRate
	if totalLeads > 0 {
		baseRate = float64(convertedLeads) / float64(totalLeads) * 100
	}

	var factors []ConversionFactor
	probability := baseRate

	addFactor := func(name string, impact float64, description string) {
		factors = append(factors, ConversionFactor{
			Factor:      name,
			Impact:      int(math.Round(impact)),
			Description: description,
		})
		probability += impact
	}

	// Lead score deviation from the neutral midpoint.
	if lead.Score > 0 {
		scoreImpact := float64(lead.Score-50) / 5
		addFactor("Lead score", scoreImpact, fmt.Sprintf("Score: %d/100", lead.Score))
	}

	// First-contact response latency.
	firstContact, err := p.store.FirstActivity(ctx, leadID, model.ContactTypes)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return ConversionPrediction{}, fmt.Errorf("first contact lookup: %w", err)
		}
		addFactor("Response time", -5, "Not contacted yet")
	} else {
		responseHours := firstContact.CreatedAt.Sub(lead.CreatedAt).Hours()
		switch {
		case responseHours < 1:
			addFactor("Response time", 15, "Contacted within 1 hour")
		case responseHours < 24:
			addFactor("Response time", 5, "Contacted within 24 hours")
		default:
			addFactor("Response time", -10,
				fmt.Sprintf("First contacted after %dh", int(math.Round(responseHours))))
		}
	}

	// Financing status.
	switch lead.FinancingStatus {
	case model.FinancingCashBuyer:
		addFactor("Financing", 15, "Cash buyer")
	case model.FinancingApproved:
		addFactor("Financing", 15, "Financing approved")
	case model.FinancingPreQualified:
		addFactor("Financing", 5, "Financing in progress")
	case model.FinancingNotClarified:
		addFactor("Financing", -10, "No financing arranged")
	}

	// Source quality.
	switch lead.Source {
	case model.SourceReferral:
		addFactor("Source", 15, "Referral")
	case model.SourceWebsite:
		addFactor("Source", 10, "Website inquiry")
	case model.SourcePortal:
		addFactor("Source", 0, "Portal inquiry")
	}

	// Overall engagement.
	activityCount, err := p.store.CountActivities(ctx, leadID, nil)
	if err != nil {
		return ConversionPrediction{}, fmt.Errorf("count activities: %w", err)
	}
	switch {
	case activityCount > 5:
		addFactor("Engagement", 10, fmt.Sprintf("%d activities", activityCount))
	case activityCount > 2:
		addFactor("Engagement", 5, fmt.Sprintf("%d activities", activityCount))
	}

	// A scheduled viewing dominates, so it is applied last and stays
	// additive on top of everything else.
	viewings, err := p.store.CountActivities(ctx, leadID, []model.ActivityType{model.ActivityViewingScheduled})
	if err != nil {
		return ConversionPrediction{}, fmt.Errorf("count viewings: %w", err)
	}
	if viewings > 0 {
		addFactor("Viewing", 20, fmt.Sprintf("%d viewing(s) scheduled", viewings))
	}

	probability = math.Max(minProbability, math.Min(maxProbability, probability))

	var estimatedDays *int
	if convertedLeads > 0 {
		if days, ok, err := p.store.MeanDaysToConvert(ctx, tenantID); err != nil {
			return ConversionPrediction{}, fmt.Errorf("mean days to convert: %w", err)
		} else if ok {
			d := int(math.Round(days))
			estimatedDays = &d
		}
	}

	metrics.RecordPrediction("conversion")
	return ConversionPrediction{
		Probability:            int(math.Round(probability)),
		Factors:                factors,
		Recommendation:         recommendationFor(probability),
		EstimatedDaysToConvert: estimatedDays,
	}, nil
}

func recommendationFor(probability float64) string {
	switch {
	case probability > 70:
		return "Hot lead — contact personally right away and offer a viewing"
	case probability > 40:
		return "Warm lead — send a follow-up and clear open questions"
	case probability > 20:
		return "Lukewarm lead — add to the nurture sequence"
	default:
		return "Cold lead — low priority, automatic follow-ups only"
	}
}
