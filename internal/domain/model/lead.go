// Package model contains the domain records shared across the engine.
package model

import "time"

// LeadStatus tracks where a lead sits in the sales lifecycle.
type LeadStatus string

// Lead lifecycle statuses.
const (
	StatusNew       LeadStatus = "NEW"
	StatusContacted LeadStatus = "CONTACTED"
	StatusQualified LeadStatus = "QUALIFIED"
	StatusBooked    LeadStatus = "BOOKED"
	StatusLost      LeadStatus = "LOST"
)

// LeadTimeFrame is the buyer's self-reported purchase horizon.
type LeadTimeFrame string

// Purchase time frames. The zero value means "not provided".
const (
	TimeFrameImmediate    LeadTimeFrame = "IMMEDIATE"
	TimeFrameThreeMonths  LeadTimeFrame = "THREE_MONTHS"
	TimeFrameSixMonths    LeadTimeFrame = "SIX_MONTHS"
	TimeFrameTwelveMonths LeadTimeFrame = "TWELVE_MONTHS"
	TimeFrameLongTerm     LeadTimeFrame = "LONGTERM"
)

// FinancingStatus describes how far the buyer's financing has progressed.
type FinancingStatus string

// Financing statuses.
const (
	FinancingNotClarified FinancingStatus = "NOT_CLARIFIED"
	FinancingPreQualified FinancingStatus = "PRE_QUALIFIED"
	FinancingApproved     FinancingStatus = "APPROVED"
	FinancingCashBuyer    FinancingStatus = "CASH_BUYER"
)

// LeadSource identifies where a lead entered the funnel.
type LeadSource string

// Lead sources, ordered roughly by historical conversion quality.
const (
	SourceReferral    LeadSource = "REFERRAL"
	SourceWebsite     LeadSource = "WEBSITE"
	SourcePortal      LeadSource = "PORTAL"
	SourceSocialMedia LeadSource = "SOCIAL_MEDIA"
	SourceColdCall    LeadSource = "COLD_CALL"
	SourceEvent       LeadSource = "EVENT"
	SourceOther       LeadSource = "OTHER"
)

// ScoreFactor is one entry of a lead's persisted score breakdown. The
// breakdown is surfaced to operators to justify automated decisions, so
// it is stored alongside the score rather than logged and forgotten.
type ScoreFactor struct {
	Name     string `json:"name"`
	Score    int    `json:"score"`
	MaxScore int    `json:"max_score"`
	Reason   string `json:"reason"`
}

// Lead is a prospective customer record with qualification attributes.
// Leads are created by ingestion, mutated by enrichment, scoring and
// follow-up, and only ever status-transitioned, never deleted.
type Lead struct {
	ID       string
	TenantID string

	Email     string
	Phone     string
	FirstName string
	LastName  string

	Source          LeadSource
	Status          LeadStatus
	TimeFrame       LeadTimeFrame
	FinancingStatus FinancingStatus
	HasDownPayment  bool
	BudgetMin       float64
	BudgetMax       float64

	PreferredLocation string
	PreferredType     string
	Notes             string

	// PropertyID links the zero-or-one property the lead asked about.
	PropertyID     string
	AssignedUserID string

	// MessageCount mirrors the number of conversation messages attached
	// to the lead by the (out of scope) inbox pipeline.
	MessageCount int

	Score        int
	ScoreFactors []ScoreFactor

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName joins first and last name, falling back to the email address
// so operator-facing messages never render an empty subject.
func (l Lead) FullName() string {
	switch {
	case l.FirstName != "" && l.LastName != "":
		return l.FirstName + " " + l.LastName
	case l.FirstName != "":
		return l.FirstName
	case l.LastName != "":
		return l.LastName
	default:
		return l.Email
	}
}

// LeadUpdate is a partial update applied to a lead record. Nil fields
// are left untouched by the store.
type LeadUpdate struct {
	Email     *string
	Phone     *string
	FirstName *string
	LastName  *string

	Status       *LeadStatus
	Score        *int
	ScoreFactors []ScoreFactor
}

// Tier is the coarse qualification bucket derived from a lead score.
type Tier string

// Qualification tiers.
const (
	TierHot         Tier = "HOT"
	TierWarm        Tier = "WARM"
	TierCold        Tier = "COLD"
	TierUnqualified Tier = "UNQUALIFIED"
)

// TierForScore maps a 0-100 score onto its tier.
func TierForScore(score int) Tier {
	switch {
	case score >= 75:
		return TierHot
	case score >= 50:
		return TierWarm
	case score >= 25:
		return TierCold
	default:
		return TierUnqualified
	}
}
