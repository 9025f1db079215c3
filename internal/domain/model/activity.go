package model

import "time"

// ActivityType classifies entries of the append-only lead event log.
type ActivityType string

// Activity types.
const (
	ActivityEmailSent        ActivityType = "EMAIL_SENT"
	ActivityEmailReceived    ActivityType = "EMAIL_RECEIVED"
	ActivityViewingScheduled ActivityType = "VIEWING_SCHEDULED"
	ActivityNoteAdded        ActivityType = "NOTE_ADDED"
	ActivityStatusChanged    ActivityType = "STATUS_CHANGED"
	ActivityPortalInquiry    ActivityType = "PORTAL_INQUIRY"
	ActivityCallLogged       ActivityType = "CALL_LOGGED"
)

// EngagementTypes are the activity types that count as active outreach
// work on a lead, as opposed to passive existence.
var EngagementTypes = []ActivityType{
	ActivityEmailSent,
	ActivityEmailReceived,
	ActivityViewingScheduled,
	ActivityNoteAdded,
}

// ContactTypes mark the first human touch on a lead; used for
// response-time measurement.
var ContactTypes = []ActivityType{
	ActivityEmailSent,
	ActivityViewingScheduled,
}

// InboundTypes are activities initiated by the lead; used to learn when
// prospects are responsive.
var InboundTypes = []ActivityType{
	ActivityEmailReceived,
	ActivityPortalInquiry,
}

// LeadActivity is one event in a lead's append-only history. Activities
// are created by scoring, follow-up and outreach actions and are never
// mutated or deleted.
type LeadActivity struct {
	ID          string
	LeadID      string
	Type        ActivityType
	Description string
	Metadata    map[string]any
	CreatedAt   time.Time
}
