// Package repository defines the record store contract the engine runs
// against, plus in-memory and SQLite implementations.
package repository

import (
	"context"
	"time"

	"github.com/immodesk/leadengine/internal/domain/model"
)

// LeadFilter narrows ListLeads. Zero values mean "don't filter".
type LeadFilter struct {
	TenantID  string
	Email     string
	Status    model.LeadStatus
	NotStatus model.LeadStatus
	ExcludeID string
	Limit     int
}

// ActivityFilter narrows ListActivities. LeadID and TenantID are
// mutually exclusive scopes; TenantID spans all leads of a tenant.
type ActivityFilter struct {
	LeadID   string
	TenantID string
	Types    []model.ActivityType
	Since    time.Time
	Limit    int
}

// PropertyFilter narrows ListProperties. SoldOnly restricts to records
// with a positive sale price, i.e. usable comparables.
type PropertyFilter struct {
	TenantID     string
	City         string
	ZipCode      string
	PropertyType string
	SoldOnly     bool
	Limit        int
}

// Store provides read/write access to leads, activities and properties.
// Implementations must return ErrNotFound for unknown lead ids and keep
// activity order newest-first on list operations.
type Store interface {
	CreateLead(ctx context.Context, lead model.Lead) error
	GetLead(ctx context.Context, id string) (model.Lead, error)
	UpdateLead(ctx context.Context, id string, update model.LeadUpdate) error
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	CountLeads(ctx context.Context, tenantID string, status model.LeadStatus) (int, error)

	// MeanDaysToConvert reports the tenant's average lead age at the
	// time of conversion. ok is false when no lead has converted yet.
	MeanDaysToConvert(ctx context.Context, tenantID string) (days float64, ok bool, err error)

	AppendActivity(ctx context.Context, activity model.LeadActivity) error
	ListActivities(ctx context.Context, filter ActivityFilter) ([]model.LeadActivity, error)
	CountActivities(ctx context.Context, leadID string, types []model.ActivityType) (int, error)

	// FirstActivity returns the earliest activity of the given types
	// for a lead, or ErrNotFound when none exists.
	FirstActivity(ctx context.Context, leadID string, types []model.ActivityType) (model.LeadActivity, error)

	CreateProperty(ctx context.Context, property model.Property) error
	GetProperty(ctx context.Context, id string) (model.Property, error)
	ListProperties(ctx context.Context, filter PropertyFilter) ([]model.Property, error)
}
