// Package enrichment deduplicates and normalizes newly created leads
// against tenant history and computes a data-completeness score.
package enrichment

import (
	"context"
	"fmt"
	"strings"

	"github.com/immodesk/leadengine/internal/adapters/repository"
	"github.com/immodesk/leadengine/internal/domain/model"
	"github.com/immodesk/leadengine/pkg/logger"
	"github.com/immodesk/leadengine/pkg/metrics"
)

// Emails carrying this prefix are synthesized placeholders from the
// ingestion pipeline and never count as a real address.
const placeholderEmailPrefix = "unknown-"

const completenessFactorCount = 8

// Result reports what enrichment found and changed.
type Result struct {
	IsDuplicate         bool            `json:"is_duplicate"`
	DuplicateLeadID     string          `json:"duplicate_lead_id,omitempty"`
	NormalizedPhone     string          `json:"normalized_phone,omitempty"`
	CompletenessScore   int             `json:"completeness_score"`
	CompletenessFactors map[string]bool `json:"completeness_factors"`
	EnrichedFields      []string        `json:"enriched_fields"`
}

// Enricher runs the enrichment pipeline against the record store.
type Enricher struct {
	store repository.Store
	log   logger.Logger
}

// Option applies a configuration option to the Enricher.
type Option func(*Enricher)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Enricher) {
		if log != nil {
			e.log = log
		}
	}
}

// New creates an Enricher.
func New(store repository.Store, opts ...Option) *Enricher {
	e := &Enricher{store: store}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get().Named("enrichment")
	}
	return e
}

// EnrichLead runs duplicate detection, field backfill, phone
// normalization and completeness scoring for one lead. Only changed
// fields are persisted; an existing non-empty field is never
// overwritten.
func (e *Enricher) EnrichLead(ctx context.Context, leadID, tenantID string) (Result, error) {
	lead, err := e.store.GetLead(ctx, leadID)
	if err != nil {
		return Result{}, fmt.Errorf("enrich lead %s: %w", leadID, err)
	}

	metrics.RecordEnrichmentRun()

	var enrichedFields []string
	update := model.LeadUpdate{}

	// 1. Duplicate detection: same email within the tenant, the most
	// recent other lead wins.
	isDuplicate := false
	duplicateLeadID := ""
	if hasRealEmail(lead.Email) {
		matches, err := e.store.ListLeads(ctx, repository.LeadFilter{
			TenantID:  tenantID,
			Email:     lead.Email,
			ExcludeID: leadID,
			Limit:     1,
		})
		if err != nil {
			return Result{}, fmt.Errorf("duplicate lookup for %s: %w", leadID, err)
		}
		if len(matches) > 0 {
			existing := matches[0]
			isDuplicate = true
			duplicateLeadID = existing.ID
			metrics.RecordDuplicateDetected()
			e.log.Info(ctx, "duplicate detected",
				logger.String("leadID", leadID),
				logger.String("duplicateOf", existing.ID),
			)

			// 2. Backfill missing identity fields from the duplicate.
			if lead.Phone == "" && existing.Phone != "" {
				phone := existing.Phone
				update.Phone = &phone
				enrichedFields = append(enrichedFields, "phone (from duplicate)")
			}
			if lead.FirstName == "" && existing.FirstName != "" {
				firstName := existing.FirstName
				update.FirstName = &firstName
				enrichedFields = append(enrichedFields, "firstName (from duplicate)")
			}
			if lead.LastName == "" && existing.LastName != "" {
				lastName := existing.LastName
				update.LastName = &lastName
				enrichedFields = append(enrichedFields, "lastName (from duplicate)")
			}
		}
	}

	// 3. Normalize whichever phone we ended up with.
	phone := lead.Phone
	if update.Phone != nil {
		phone = *update.Phone
	}
	if phone != "" {
		normalized := NormalizePhone(phone)
		if normalized != phone {
			update.Phone = &normalized
			enrichedFields = append(enrichedFields, "phone (normalized)")
			phone = normalized
		}
	}

	// 4. Completeness over the 8 fixed factors.
	factors := map[string]bool{
		"hasEmail":     hasRealEmail(lead.Email),
		"hasFirstName": lead.FirstName != "" || update.FirstName != nil,
		"hasLastName":  lead.LastName != "" || update.LastName != nil,
		"hasPhone":     phone != "",
		"hasProperty":  lead.PropertyID != "",
		"hasSource":    lead.Source != "",
		"hasNotes":     len(lead.Notes) > 10,
		"hasBudget":    lead.BudgetMin > 0 || lead.BudgetMax > 0,
	}
	filled := 0
	for _, ok := range factors {
		if ok {
			filled++
		}
	}
	completeness := int(float64(filled)/completenessFactorCount*100 + 0.5)

	if len(enrichedFields) > 0 {
		if err := e.store.UpdateLead(ctx, leadID, update); err != nil {
			return Result{}, fmt.Errorf("persist enrichment for %s: %w", leadID, err)
		}
		e.log.Info(ctx, "lead enriched",
			logger.String("leadID", leadID),
			logger.String("fields", strings.Join(enrichedFields, ", ")),
		)
	}

	return Result{
		IsDuplicate:         isDuplicate,
		DuplicateLeadID:     duplicateLeadID,
		NormalizedPhone:     phone,
		CompletenessScore:   completeness,
		CompletenessFactors: factors,
		EnrichedFields:      enrichedFields,
	}, nil
}

func hasRealEmail(email string) bool {
	return email != "" && !strings.HasPrefix(email, placeholderEmailPrefix)
}
