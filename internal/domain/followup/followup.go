// Package followup drives the 3-step reminder sequence for leads that
// go quiet. Steps are executed by the scheduling collaborator, never
// self-triggered, so every outcome is a structured result rather than
// an error: an unattended run must not crash on a deleted lead.
package followup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/immodesk/leadengine/internal/adapters/notify"
	"github.com/immodesk/leadengine/internal/adapters/repository"
	"github.com/immodesk/leadengine/internal/adapters/scheduling"
	"github.com/immodesk/leadengine/internal/domain/model"
	"github.com/immodesk/leadengine/pkg/logger"
	"github.com/immodesk/leadengine/pkg/metrics"
)

// stepDays are day offsets from lead creation for steps 0..2.
var stepDays = [...]int{3, 7, 14}

// stepMessages escalate with each reminder.
var stepMessages = [...]string{
	"First follow-up: no activity on this lead for 3 days. Time to reach out.",
	"Second follow-up: the lead has been quiet for a week. Consider a phone call.",
	"Final follow-up: 14 days without a response. Last chance before the lead is closed.",
}

// defaultHour is the local hour every step fires at.
const defaultHour = 9

// Skip reasons reported in StepResult.
const (
	SkipLeadNotFound   = "lead_not_found"
	SkipTerminalStatus = "terminal_status"
	SkipInvalidStep    = "invalid_step"
)

// StepResult describes what a step execution did. Exactly one of
// Skipped / Engaged / ReminderLogged holds for a completed call.
type StepResult struct {
	Step           int    `json:"step"`
	Skipped        bool   `json:"skipped"`
	SkipReason     string `json:"skip_reason,omitempty"`
	Engaged        bool   `json:"engaged"`
	ReminderLogged bool   `json:"reminder_logged"`
	NextScheduled  bool   `json:"next_scheduled"`
	Downgraded     bool   `json:"downgraded"`
}

// Engine owns scheduling and execution of the follow-up sequence.
type Engine struct {
	store     repository.Store
	scheduler scheduling.Scheduler
	notifier  notify.Notifier
	clock     func() time.Time
	hour      int
	log       logger.Logger
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

// WithHour sets the local hour steps fire at.
func WithHour(hour int) Option {
	return func(e *Engine) {
		if hour >= 0 && hour <= 23 {
			e.hour = hour
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

// NewEngine creates a follow-up engine.
func NewEngine(store repository.Store, scheduler scheduling.Scheduler, notifier notify.Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		scheduler: scheduler,
		notifier:  notifier,
		clock:     time.Now,
		hour:      defaultHour,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get().Named("followup")
	}
	return e
}

// Steps returns the number of steps in the sequence.
func Steps() int { return len(stepDays) }

// ScheduleSequence schedules step 0 for a freshly created lead.
func (e *Engine) ScheduleSequence(ctx context.Context, leadID string) error {
	lead, err := e.store.GetLead(ctx, leadID)
	if err != nil {
		return fmt.Errorf("schedule follow-ups for %s: %w", leadID, err)
	}
	return e.scheduleStep(ctx, lead, 0)
}

// ExecuteStep runs step N for a lead. Invoked by the scheduling
// collaborator; never returns an error for a missing or already
// terminal lead.
func (e *Engine) ExecuteStep(ctx context.Context, leadID, tenantID string, step int) (StepResult, error) {
	result := StepResult{Step: step}

	if step < 0 || step >= len(stepDays) {
		result.Skipped = true
		result.SkipReason = SkipInvalidStep
		metrics.RecordFollowUpExecution("skipped")
		return result, nil
	}

	lead, err := e.store.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			e.log.Warn(ctx, "follow-up for missing lead",
				logger.String("leadID", leadID), logger.Int("step", step))
			result.Skipped = true
			result.SkipReason = SkipLeadNotFound
			metrics.RecordFollowUpExecution("skipped")
			return result, nil
		}
		return result, fmt.Errorf("execute follow-up step %d: %w", step, err)
	}

	// Converted or closed leads end the sequence.
	if lead.Status == model.StatusBooked || lead.Status == model.StatusLost {
		result.Skipped = true
		result.SkipReason = SkipTerminalStatus
		metrics.RecordFollowUpExecution("skipped")
		return result, nil
	}

	engaged, err := e.recentlyEngaged(ctx, lead.ID, step)
	if err != nil {
		return result, err
	}

	if engaged {
		// The lead is actively worked; keep the sequence alive but
		// stay silent.
		result.Engaged = true
		metrics.RecordFollowUpExecution("engaged")
	} else {
		if err := e.logReminder(ctx, lead, step); err != nil {
			return result, err
		}
		result.ReminderLogged = true
		e.notifyAssignee(ctx, lead, step)
		metrics.RecordFollowUpExecution("reminder")

		if step == len(stepDays)-1 && lead.Status == model.StatusNew {
			if err := e.downgrade(ctx, lead); err != nil {
				return result, err
			}
			result.Downgraded = true
		}
	}

	if next := step + 1; next < len(stepDays) {
		if err := e.scheduleStep(ctx, lead, next); err != nil {
			return result, err
		}
		result.NextScheduled = true
	}
	return result, nil
}

// recentlyEngaged reports whether any engagement-typed activity exists
// inside the step's window.
func (e *Engine) recentlyEngaged(ctx context.Context, leadID string, step int) (bool, error) {
	since := e.clock().AddDate(0, 0, -stepDays[step])
	activities, err := e.store.ListActivities(ctx, repository.ActivityFilter{
		LeadID: leadID,
		Types:  model.EngagementTypes,
		Since:  since,
		Limit:  1,
	})
	if err != nil {
		return false, fmt.Errorf("engagement check: %w", err)
	}
	return len(activities) > 0, nil
}

func (e *Engine) logReminder(ctx context.Context, lead model.Lead, step int) error {
	activity := model.LeadActivity{
		ID:          uuid.NewString(),
		LeadID:      lead.ID,
		Type:        model.ActivityNoteAdded,
		Description: stepMessages[step],
		Metadata: map[string]any{
			"followUpStep": step,
			"automated":    true,
		},
		CreatedAt: e.clock(),
	}
	if err := e.store.AppendActivity(ctx, activity); err != nil {
		return fmt.Errorf("log reminder: %w", err)
	}
	e.log.Info(ctx, "follow-up reminder logged",
		logger.String("leadID", lead.ID), logger.Int("step", step))
	return nil
}

// notifyAssignee is fire-and-forget: delivery failures never abort the
// step.
func (e *Engine) notifyAssignee(ctx context.Context, lead model.Lead, step int) {
	if lead.AssignedUserID == "" {
		return
	}
	err := e.notifier.Notify(ctx, notify.Event{
		TenantID: lead.TenantID,
		UserID:   lead.AssignedUserID,
		Type:     "follow_up_reminder",
		Data: map[string]any{
			"leadId":   lead.ID,
			"leadName": lead.FullName(),
			"step":     step,
			"message":  stepMessages[step],
		},
	})
	if err != nil {
		e.log.Error(ctx, "follow-up notification failed", logger.Error(err),
			logger.String("leadID", lead.ID), logger.Int("step", step))
	}
}

// downgrade closes out a lead that stayed NEW through the whole
// sequence.
func (e *Engine) downgrade(ctx context.Context, lead model.Lead) error {
	lost := model.StatusLost
	if err := e.store.UpdateLead(ctx, lead.ID, model.LeadUpdate{Status: &lost}); err != nil {
		return fmt.Errorf("downgrade lead: %w", err)
	}
	activity := model.LeadActivity{
		ID:          uuid.NewString(),
		LeadID:      lead.ID,
		Type:        model.ActivityStatusChanged,
		Description: "Status changed automatically: no response after the follow-up sequence",
		Metadata: map[string]any{
			"oldStatus": string(lead.Status),
			"newStatus": string(model.StatusLost),
			"automated": true,
		},
		CreatedAt: e.clock(),
	}
	if err := e.store.AppendActivity(ctx, activity); err != nil {
		return fmt.Errorf("log downgrade: %w", err)
	}
	metrics.RecordFollowUpDowngrade()
	e.log.Info(ctx, "lead downgraded after follow-up sequence",
		logger.String("leadID", lead.ID))
	return nil
}

// scheduleStep hands step N to the scheduling collaborator, due at the
// configured hour on creation day + offset.
func (e *Engine) scheduleStep(ctx context.Context, lead model.Lead, step int) error {
	due := lead.CreatedAt.AddDate(0, 0, stepDays[step])
	due = time.Date(due.Year(), due.Month(), due.Day(), e.hour, 0, 0, 0, due.Location())

	err := e.scheduler.ScheduleFollowUp(ctx, scheduling.ScheduleRequest{
		LeadID:         lead.ID,
		TenantID:       lead.TenantID,
		AssignedUserID: lead.AssignedUserID,
		Step:           step,
		ScheduleAt:     due,
	})
	if err != nil {
		return fmt.Errorf("schedule step %d: %w", step, err)
	}
	return nil
}
