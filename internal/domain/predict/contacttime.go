package predict

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/immodesk/leadengine/internal/adapters/repository"
	"github.com/immodesk/leadengine/internal/domain/model"
	"github.com/immodesk/leadengine/pkg/metrics"
)

// Defaults used when a tenant has no inbound history to learn from.
const (
	defaultBestHour = 10
	defaultBestDay  = time.Tuesday

	// minConfidentSamples is the sample size from which the
	// justification names the data instead of calling itself a
	// low-confidence default.
	minConfidentSamples = 20
)

// ContactTimePrediction reports when a tenant's prospects respond.
type ContactTimePrediction struct {
	BestHour           int         `json:"best_hour"`
	BestDay            string      `json:"best_day"`
	ResponseRateByHour map[int]int `json:"response_rate_by_hour"`
	Reason             string      `json:"reason"`
}

// PredictContactTime builds an hour-of-day and day-of-week histogram
// from the tenant's most recent inbound activity and picks the mode of
// each. The full per-hour distribution is returned so callers can
// render a heatmap.
func (p *Predictor) PredictContactTime(ctx context.Context, tenantID string) (ContactTimePrediction, error) {
	activities, err := p.store.ListActivities(ctx, repository.ActivityFilter{
		TenantID: tenantID,
		Types:    model.InboundTypes,
		Limit:    maxInboundSamples,
	})
	if err != nil {
		return ContactTimePrediction{}, fmt.Errorf("list inbound activities: %w", err)
	}

	var hourCounts [24]int
	var dayCounts [7]int
	for _, a := range activities {
		hourCounts[a.CreatedAt.Hour()]++
		dayCounts[int(a.CreatedAt.Weekday())]++
	}

	bestHour := defaultBestHour
	bestHourCount := 0
	for hour, count := range hourCounts {
		if count > bestHourCount {
			bestHour = hour
			bestHourCount = count
		}
	}

	bestDay := defaultBestDay
	bestDayCount := 0
	for day, count := range dayCounts {
		if count > bestDayCount {
			bestDay = time.Weekday(day)
			bestDayCount = count
		}
	}

	total := len(activities)
	divisor := total
	if divisor == 0 {
		divisor = 1
	}
	responseRateByHour := make(map[int]int, 24)
	for hour, count := range hourCounts {
		responseRateByHour[hour] = int(math.Round(float64(count) / float64(divisor) * 100))
	}

	reason := fmt.Sprintf(
		"Limited data (%d interactions). Default recommendation: Tuesday 10:00", total)
	if total >= minConfidentSamples {
		reason = fmt.Sprintf("Based on %d interactions: best time is %s at %d:00",
			total, bestDay, bestHour)
	}

	metrics.RecordPrediction("contact_time")
	return ContactTimePrediction{
		BestHour:           bestHour,
		BestDay:            strings.ToLower(bestDay.String()),
		ResponseRateByHour: responseRateByHour,
		Reason:             reason,
	}, nil
}
