package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/immodesk/leadengine/internal/domain/model"
)

// MemStore is a map-backed Store for tests and single-instance use.
// All methods are safe for concurrent use.
type MemStore struct {
	mu         sync.RWMutex
	leads      map[string]model.Lead
	activities map[string][]model.LeadActivity // leadID -> chronological
	properties map[string]model.Property
	clock      func() time.Time
}

// MemOption applies a configuration option to the MemStore.
type MemOption func(*MemStore)

// WithClock overrides the store's time source. Tests use this to pin
// CreatedAt/UpdatedAt stamps.
func WithClock(clock func() time.Time) MemOption {
	return func(s *MemStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		leads:      make(map[string]model.Lead),
		activities: make(map[string][]model.LeadActivity),
		properties: make(map[string]model.Property),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateLead inserts a new lead record.
func (s *MemStore) CreateLead(ctx context.Context, lead model.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.leads[lead.ID]; exists {
		return ErrDuplicate
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = s.clock()
	}
	if lead.UpdatedAt.IsZero() {
		lead.UpdatedAt = lead.CreatedAt
	}
	s.leads[lead.ID] = lead
	return nil
}

// GetLead returns the lead with the given id.
func (s *MemStore) GetLead(ctx context.Context, id string) (model.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, ok := s.leads[id]
	if !ok {
		return model.Lead{}, ErrNotFound
	}
	return lead, nil
}

// UpdateLead applies a partial update to a lead record.
func (s *MemStore) UpdateLead(ctx context.Context, id string, update model.LeadUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[id]
	if !ok {
		return ErrNotFound
	}
	if update.Email != nil {
		lead.Email = *update.Email
	}
	if update.Phone != nil {
		lead.Phone = *update.Phone
	}
	if update.FirstName != nil {
		lead.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		lead.LastName = *update.LastName
	}
	if update.Status != nil {
		lead.Status = *update.Status
	}
	if update.Score != nil {
		lead.Score = *update.Score
	}
	if update.ScoreFactors != nil {
		lead.ScoreFactors = update.ScoreFactors
	}
	lead.UpdatedAt = s.clock()
	s.leads[id] = lead
	return nil
}

// ListLeads returns leads matching the filter, newest first.
func (s *MemStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Lead
	for _, lead := range s.leads {
		if !leadMatches(lead, filter) {
			continue
		}
		out = append(out, lead)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func leadMatches(lead model.Lead, filter LeadFilter) bool {
	if filter.TenantID != "" && lead.TenantID != filter.TenantID {
		return false
	}
	if filter.Email != "" && lead.Email != filter.Email {
		return false
	}
	if filter.Status != "" && lead.Status != filter.Status {
		return false
	}
	if filter.NotStatus != "" && lead.Status == filter.NotStatus {
		return false
	}
	if filter.ExcludeID != "" && lead.ID == filter.ExcludeID {
		return false
	}
	return true
}

// CountLeads counts a tenant's leads, optionally restricted to a status.
func (s *MemStore) CountLeads(ctx context.Context, tenantID string, status model.LeadStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, lead := range s.leads {
		if lead.TenantID != tenantID {
			continue
		}
		if status != "" && lead.Status != status {
			continue
		}
		count++
	}
	return count, nil
}

// MeanDaysToConvert averages the created-to-updated age of booked leads.
func (s *MemStore) MeanDaysToConvert(ctx context.Context, tenantID string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum float64
	var n int
	for _, lead := range s.leads {
		if lead.TenantID != tenantID || lead.Status != model.StatusBooked {
			continue
		}
		sum += lead.UpdatedAt.Sub(lead.CreatedAt).Hours() / 24
		n++
	}
	if n == 0 {
		return 0, false, nil
	}
	return sum / float64(n), true, nil
}

// AppendActivity adds an activity to a lead's event log.
func (s *MemStore) AppendActivity(ctx context.Context, activity model.LeadActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leads[activity.LeadID]; !ok {
		return ErrNotFound
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = s.clock()
	}
	s.activities[activity.LeadID] = append(s.activities[activity.LeadID], activity)
	return nil
}

// ListActivities returns matching activities, newest first.
func (s *MemStore) ListActivities(ctx context.Context, filter ActivityFilter) ([]model.LeadActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.LeadActivity
	collect := func(leadID string) {
		for _, a := range s.activities[leadID] {
			if len(filter.Types) > 0 && !typeIn(a.Type, filter.Types) {
				continue
			}
			if !filter.Since.IsZero() && a.CreatedAt.Before(filter.Since) {
				continue
			}
			out = append(out, a)
		}
	}

	if filter.LeadID != "" {
		collect(filter.LeadID)
	} else if filter.TenantID != "" {
		for id, lead := range s.leads {
			if lead.TenantID == filter.TenantID {
				collect(id)
			}
		}
	} else {
		for id := range s.activities {
			collect(id)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CountActivities counts a lead's activities of the given types. An
// empty type list counts everything.
func (s *MemStore) CountActivities(ctx context.Context, leadID string, types []model.ActivityType) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, a := range s.activities[leadID] {
		if len(types) > 0 && !typeIn(a.Type, types) {
			continue
		}
		count++
	}
	return count, nil
}

// FirstActivity returns the earliest activity of the given types.
func (s *MemStore) FirstActivity(ctx context.Context, leadID string, types []model.ActivityType) (model.LeadActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var first model.LeadActivity
	found := false
	for _, a := range s.activities[leadID] {
		if len(types) > 0 && !typeIn(a.Type, types) {
			continue
		}
		if !found || a.CreatedAt.Before(first.CreatedAt) {
			first = a
			found = true
		}
	}
	if !found {
		return model.LeadActivity{}, ErrNotFound
	}
	return first, nil
}

// CreateProperty inserts a property record.
func (s *MemStore) CreateProperty(ctx context.Context, property model.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.properties[property.ID]; exists {
		return ErrDuplicate
	}
	if property.CreatedAt.IsZero() {
		property.CreatedAt = s.clock()
	}
	s.properties[property.ID] = property
	return nil
}

// GetProperty returns the property with the given id.
func (s *MemStore) GetProperty(ctx context.Context, id string) (model.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	property, ok := s.properties[id]
	if !ok {
		return model.Property{}, ErrNotFound
	}
	return property, nil
}

// ListProperties returns properties matching the filter.
func (s *MemStore) ListProperties(ctx context.Context, filter PropertyFilter) ([]model.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Property
	for _, p := range s.properties {
		if filter.TenantID != "" && p.TenantID != filter.TenantID {
			continue
		}
		if filter.City != "" && p.City != filter.City {
			continue
		}
		if filter.ZipCode != "" && p.ZipCode != filter.ZipCode {
			continue
		}
		if filter.PropertyType != "" && p.PropertyType != filter.PropertyType {
			continue
		}
		if filter.SoldOnly && p.SalePrice <= 0 {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func typeIn(t model.ActivityType, types []model.ActivityType) bool {
	for _, candidate := range types {
		if t == candidate {
			return true
		}
	}
	return false
}
