package abtest

import (
	"context"
	"sync"
	"time"
)

// Status is the lifecycle state of an experiment.
type Status string

// Experiment lifecycle states.
const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// Variant is one arm of an experiment. Weight is a percentage share of
// traffic; weights across an experiment sum to 100.
type Variant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// VariantResult accumulates impressions and conversions for a variant.
// ConversionRate is a percentage with basis-point precision.
type VariantResult struct {
	VariantID      string  `json:"variant_id"`
	Name           string  `json:"name"`
	Impressions    int     `json:"impressions"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Experiment is a weighted split test over an identifier population.
type Experiment struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Type        string                    `json:"type"`
	Status      Status                    `json:"status"`
	Variants    []Variant                 `json:"variants"`
	Results     map[string]*VariantResult `json:"results"`
	CreatedAt   time.Time                 `json:"created_at"`
	StartedAt   *time.Time                `json:"started_at,omitempty"`
	EndedAt     *time.Time                `json:"ended_at,omitempty"`
}

// Store persists experiments and identifier assignments. The engine
// serializes mutations, so implementations only need to be safe for
// concurrent reads.
type Store interface {
	PutExperiment(ctx context.Context, exp *Experiment) error
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	GetAssignment(ctx context.Context, experimentID, identifier string) (string, bool, error)
	PutAssignment(ctx context.Context, experimentID, identifier, variantID string) error
}

// MemoryStore keeps experiments and assignments in process memory.
// Restart clears all experiments; durable storage is a caller concern.
type MemoryStore struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
	order       []string
	assignments map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]*Experiment),
		assignments: make(map[string]string),
	}
}

// PutExperiment inserts or replaces an experiment.
func (s *MemoryStore) PutExperiment(_ context.Context, exp *Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.experiments[exp.ID]; !exists {
		s.order = append(s.order, exp.ID)
	}
	s.experiments[exp.ID] = exp
	return nil
}

// GetExperiment returns the experiment or ErrNotFound.
func (s *MemoryStore) GetExperiment(_ context.Context, id string) (*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.experiments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return exp, nil
}

// ListExperiments returns experiments in creation order.
func (s *MemoryStore) ListExperiments(_ context.Context) ([]*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Experiment, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.experiments[id])
	}
	return out, nil
}

// GetAssignment returns the recorded variant id for the pair, if any.
func (s *MemoryStore) GetAssignment(_ context.Context, experimentID, identifier string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	variantID, ok := s.assignments[experimentID+":"+identifier]
	return variantID, ok, nil
}

// PutAssignment records a permanent pair assignment.
func (s *MemoryStore) PutAssignment(_ context.Context, experimentID, identifier, variantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[experimentID+":"+identifier] = variantID
	return nil
}
