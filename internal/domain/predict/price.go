package predict

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/immodesk/leadengine/internal/adapters/repository"
	"github.com/immodesk/leadengine/pkg/metrics"
)

// Estimation parameters and thresholds.
const (
	defaultLivingArea = 80.0 // m², assumed when the caller gives none

	minExactComparables = 3    // below this an exact zip filter is relaxed
	iqrFence            = 1.5  // Tukey fence multiplier
	maxConfidence       = 90
	minConfidence       = 5
	highVariancePenalty = 20
	highVarianceCV      = 0.3
)

// PriceParams filter the comparables pool. Zero values mean "any".
type PriceParams struct {
	TenantID     string  `json:"tenant_id"`
	City         string  `json:"city"`
	ZipCode      string  `json:"zip_code"`
	PropertyType string  `json:"property_type"`
	LivingArea   float64 `json:"living_area"`
	Rooms        float64 `json:"rooms"`
}

// PriceEstimation is the comparable-analysis result. A zero estimate
// with zero (or floor) confidence means the data was insufficient, not
// that the property is worthless.
type PriceEstimation struct {
	EstimatedPrice int      `json:"estimated_price"`
	PriceRangeMin  int      `json:"price_range_min"`
	PriceRangeMax  int      `json:"price_range_max"`
	PricePerSqm    int      `json:"price_per_sqm"`
	Comparables    int      `json:"comparables"`
	Confidence     int      `json:"confidence"`
	Factors        []string `json:"factors"`
}

// EstimatePrice estimates a property price from the tenant's sold
// comparables: price-per-sqm with an IQR outlier filter, averaged and
// scaled to the target living area.
func (p *Predictor) EstimatePrice(ctx context.Context, params PriceParams) (PriceEstimation, error) {
	comparables, err := p.store.ListProperties(ctx, repository.PropertyFilter{
		TenantID:     params.TenantID,
		City:         params.City,
		ZipCode:      params.ZipCode,
		PropertyType: params.PropertyType,
		SoldOnly:     true,
		Limit:        maxComparables,
	})
	if err != nil {
		return PriceEstimation{}, fmt.Errorf("list comparables: %w", err)
	}

	// Too few exact matches: drop the zip code and retry city-wide.
	if len(comparables) < minExactComparables && params.ZipCode != "" {
		comparables, err = p.store.ListProperties(ctx, repository.PropertyFilter{
			TenantID: params.TenantID,
			City:     params.City,
			SoldOnly: true,
			Limit:    maxComparables,
		})
		if err != nil {
			return PriceEstimation{}, fmt.Errorf("list relaxed comparables: %w", err)
		}
	}

	metrics.RecordPrediction("price")

	if len(comparables) == 0 {
		return PriceEstimation{
			Factors: []string{"No comparable properties found"},
		}, nil
	}

	var pricesPerSqm []float64
	for _, c := range comparables {
		if c.LivingArea > 0 && c.SalePrice > 0 {
			pricesPerSqm = append(pricesPerSqm, c.SalePrice/c.LivingArea)
		}
	}
	if len(pricesPerSqm) == 0 {
		return PriceEstimation{
			Comparables: len(comparables),
			Confidence:  10,
			Factors:     []string{"No living-area data among comparables"},
		}, nil
	}

	filtered := dropOutliers(pricesPerSqm)

	mean := 0.0
	for _, v := range filtered {
		mean += v
	}
	mean /= float64(len(filtered))

	variance := 0.0
	for _, v := range filtered {
		variance += (v - mean) * (v - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(filtered)))

	area := params.LivingArea
	if area <= 0 {
		area = defaultLivingArea
	}

	factors := []string{
		fmt.Sprintf("%d comparable properties analyzed", len(filtered)),
		fmt.Sprintf("Average: %d €/m²", int(math.Round(mean))),
	}
	if params.City != "" {
		factors = append(factors, "City: "+params.City)
	}
	if params.ZipCode != "" {
		factors = append(factors, "Zip code: "+params.ZipCode)
	}

	confidence := math.Min(maxConfidence, float64(len(filtered))*10)
	if mean > 0 && stdDev/mean > highVarianceCV {
		confidence -= highVariancePenalty
	}
	if confidence < minConfidence {
		confidence = minConfidence
	}

	return PriceEstimation{
		EstimatedPrice: int(math.Round(mean * area)),
		PriceRangeMin:  int(math.Round((mean - stdDev) * area)),
		PriceRangeMax:  int(math.Round((mean + stdDev) * area)),
		PricePerSqm:    int(math.Round(mean)),
		Comparables:    len(filtered),
		Confidence:     int(math.Round(confidence)),
		Factors:        factors,
	}, nil
}

// dropOutliers removes per-sqm prices outside the Tukey fences
// [Q1 - 1.5·IQR, Q3 + 1.5·IQR].
func dropOutliers(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1 := sorted[int(float64(len(sorted))*0.25)]
	q3 := sorted[int(float64(len(sorted))*0.75)]
	iqr := q3 - q1
	lower := q1 - iqrFence*iqr
	upper := q3 + iqrFence*iqr

	var filtered []float64
	for _, v := range sorted {
		if v >= lower && v <= upper {
			filtered = append(filtered, v)
		}
	}
	return filtered
}
