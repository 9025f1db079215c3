// Package abtest implements weighted split testing with deterministic
// identifier assignment and a two-proportion significance test over the
// collected impressions and conversions.
package abtest

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/immodesk/leadengine/pkg/idgen"
	"github.com/immodesk/leadengine/pkg/logger"
	"github.com/immodesk/leadengine/pkg/metrics"
)

// Statistical thresholds for GetResults.
const (
	// minSampleSize is the impression count below which a variant is
	// excluded from winner and significance consideration.
	minSampleSize = 30

	z99 = 2.58
	z95 = 1.96
	z90 = 1.645
)

// weightTolerance allows rounding slack when validating weight sums.
const weightTolerance = 1

// VariantInput describes one variant at creation time.
type VariantInput struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// Results is the analysis report for an experiment.
type Results struct {
	ExperimentID    string          `json:"experiment_id"`
	Name            string          `json:"name"`
	Status          Status          `json:"status"`
	Variants        []VariantResult `json:"variants"`
	Winner          *VariantResult  `json:"winner,omitempty"`
	IsSignificant   bool            `json:"is_significant"`
	ConfidenceLevel int             `json:"confidence_level"`
}

// Engine runs experiments on top of a Store. All mutations are
// serialized through an internal lock so read-modify-write cycles on
// shared experiment records stay consistent.
type Engine struct {
	store Store
	clock func() time.Time
	log   logger.Logger

	mu sync.Mutex
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEngine creates an experimentation engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get().Named("abtest")
	}
	return e
}

// CreateExperiment validates the variant set and stores a draft
// experiment with zeroed results.
func (e *Engine) CreateExperiment(ctx context.Context, name, description, typ string, variants []VariantInput) (*Experiment, error) {
	if len(variants) == 0 {
		return nil, ErrNoVariants
	}
	total := 0
	for _, v := range variants {
		total += v.Weight
	}
	if total < 100-weightTolerance || total > 100+weightTolerance {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWeights, total)
	}

	exp := &Experiment{
		ID:          idgen.New("exp"),
		Name:        name,
		Description: description,
		Type:        typ,
		Status:      StatusDraft,
		Results:     make(map[string]*VariantResult, len(variants)),
		CreatedAt:   e.clock(),
	}
	for i, v := range variants {
		variant := Variant{
			ID:     idgen.Variant(exp.ID, i),
			Name:   v.Name,
			Weight: v.Weight,
		}
		exp.Variants = append(exp.Variants, variant)
		exp.Results[variant.ID] = &VariantResult{VariantID: variant.ID, Name: variant.Name}
	}

	if err := e.store.PutExperiment(ctx, exp); err != nil {
		return nil, fmt.Errorf("store experiment: %w", err)
	}
	e.log.Info(ctx, "experiment created",
		logger.String("experimentID", exp.ID),
		logger.String("name", name),
		logger.Int("variants", len(variants)),
	)
	return exp, nil
}

// StartExperiment flips a draft experiment to running. Unknown ids are
// an error: starting is operator-triggered and a typo should surface
// immediately.
func (e *Engine) StartExperiment(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	exp, err := e.store.GetExperiment(ctx, id)
	if err != nil {
		return fmt.Errorf("start experiment %s: %w", id, err)
	}
	now := e.clock()
	exp.Status = StatusRunning
	exp.StartedAt = &now
	if err := e.store.PutExperiment(ctx, exp); err != nil {
		return fmt.Errorf("store experiment: %w", err)
	}
	e.log.Info(ctx, "experiment started", logger.String("experimentID", id))
	return nil
}

// EndExperiment marks a running experiment completed. Assignment stops;
// recorded results stay queryable.
func (e *Engine) EndExperiment(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	exp, err := e.store.GetExperiment(ctx, id)
	if err != nil {
		return fmt.Errorf("end experiment %s: %w", id, err)
	}
	now := e.clock()
	exp.Status = StatusCompleted
	exp.EndedAt = &now
	if err := e.store.PutExperiment(ctx, exp); err != nil {
		return fmt.Errorf("store experiment: %w", err)
	}
	e.log.Info(ctx, "experiment ended", logger.String("experimentID", id))
	return nil
}

// Assign resolves the variant for an identifier. Returns nil without
// error when the experiment is not running. The first call buckets the
// identifier deterministically and records the pair permanently; every
// successful call, repeated ones included, counts one impression.
func (e *Engine) Assign(ctx context.Context, experimentID, identifier string) (*Variant, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("assign %s: %w", experimentID, err)
	}
	if exp.Status != StatusRunning {
		return nil, nil
	}

	variantID, assigned, err := e.store.GetAssignment(ctx, experimentID, identifier)
	if err != nil {
		return nil, fmt.Errorf("assignment lookup: %w", err)
	}

	var variant *Variant
	if assigned {
		variant = findVariant(exp, variantID)
	} else {
		variant = pickVariant(exp, identifier)
		if variant == nil {
			return nil, nil
		}
		if err := e.store.PutAssignment(ctx, experimentID, identifier, variant.ID); err != nil {
			return nil, fmt.Errorf("record assignment: %w", err)
		}
	}
	if variant == nil {
		return nil, nil
	}

	result := exp.Results[variant.ID]
	result.Impressions++
	result.ConversionRate = conversionRate(result.Conversions, result.Impressions)
	if err := e.store.PutExperiment(ctx, exp); err != nil {
		return nil, fmt.Errorf("store experiment: %w", err)
	}

	metrics.RecordAssignment()
	return variant, nil
}

// TrackConversion credits a conversion to the identifier's assigned
// variant. Returns false when the identifier was never assigned.
func (e *Engine) TrackConversion(ctx context.Context, experimentID, identifier string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return false, fmt.Errorf("track conversion %s: %w", experimentID, err)
	}

	variantID, assigned, err := e.store.GetAssignment(ctx, experimentID, identifier)
	if err != nil {
		return false, fmt.Errorf("assignment lookup: %w", err)
	}
	if !assigned {
		return false, nil
	}

	result, ok := exp.Results[variantID]
	if !ok {
		return false, nil
	}
	result.Conversions++
	result.ConversionRate = conversionRate(result.Conversions, result.Impressions)
	if err := e.store.PutExperiment(ctx, exp); err != nil {
		return false, fmt.Errorf("store experiment: %w", err)
	}

	metrics.RecordConversionTracked()
	return true, nil
}

// GetResults reports per-variant numbers, the provisional winner among
// variants with enough impressions, and significance for two-variant
// experiments once both sides reach the minimum sample.
func (e *Engine) GetResults(ctx context.Context, experimentID string) (Results, error) {
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return Results{}, fmt.Errorf("results for %s: %w", experimentID, err)
	}

	results := Results{
		ExperimentID: exp.ID,
		Name:         exp.Name,
		Status:       exp.Status,
	}

	var qualified []*VariantResult
	for _, v := range exp.Variants {
		r := exp.Results[v.ID]
		results.Variants = append(results.Variants, *r)
		if r.Impressions >= minSampleSize {
			qualified = append(qualified, r)
		}
	}

	for _, r := range qualified {
		if results.Winner == nil || r.ConversionRate > results.Winner.ConversionRate {
			winner := *r
			results.Winner = &winner
		}
	}

	// The Z-test is pairwise: experiments with more than two variants
	// never report significance, regardless of how many reach the
	// minimum sample.
	if len(exp.Variants) == 2 && len(qualified) == 2 {
		results.IsSignificant, results.ConfidenceLevel = twoProportionTest(qualified[0], qualified[1])
	}
	return results, nil
}

// ListExperiments returns all experiments in creation order.
func (e *Engine) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	return e.store.ListExperiments(ctx)
}

// pickVariant buckets the identifier into [0,100) and walks variants in
// declaration order accumulating weight. The md5 over
// "experimentID:identifier" keeps assignment stable across processes
// with no stored state.
func pickVariant(exp *Experiment, identifier string) *Variant {
	sum := md5.Sum([]byte(exp.ID + ":" + identifier))
	bucket := int(binary.BigEndian.Uint32(sum[12:16]) % 100)

	cumulative := 0
	for i := range exp.Variants {
		cumulative += exp.Variants[i].Weight
		if bucket < cumulative {
			return &exp.Variants[i]
		}
	}
	// Weights summing to 99 can leave the top bucket uncovered; the
	// first variant takes it.
	if len(exp.Variants) > 0 {
		return &exp.Variants[0]
	}
	return nil
}

func findVariant(exp *Experiment, variantID string) *Variant {
	for i := range exp.Variants {
		if exp.Variants[i].ID == variantID {
			return &exp.Variants[i]
		}
	}
	return nil
}

// conversionRate is a percentage with basis-point precision.
func conversionRate(conversions, impressions int) float64 {
	if impressions == 0 {
		return 0
	}
	return math.Round(float64(conversions)/float64(impressions)*10000) / 100
}

// twoProportionTest runs a pooled-variance two-proportion Z-test and
// maps |Z| onto confidence levels.
func twoProportionTest(a, b *VariantResult) (significant bool, confidence int) {
	n1 := float64(a.Impressions)
	n2 := float64(b.Impressions)
	p1 := float64(a.Conversions) / n1
	p2 := float64(b.Conversions) / n2

	pooled := (float64(a.Conversions) + float64(b.Conversions)) / (n1 + n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/n1 + 1/n2))
	if se == 0 {
		return false, 0
	}
	z := math.Abs((p1 - p2) / se)

	switch {
	case z > z99:
		return true, 99
	case z > z95:
		return true, 95
	case z > z90:
		return false, 90
	default:
		return false, int(math.Round(z / z95 * 95))
	}
}
