// Package scheduling defines the contract to the external delayed-call
// collaborator, plus an in-process timer implementation used when no
// external scheduler is wired.
package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/immodesk/leadengine/pkg/logger"
)

// ScheduleRequest asks for a follow-up step execution at ScheduleAt.
type ScheduleRequest struct {
	LeadID         string    `json:"lead_id"`
	TenantID       string    `json:"tenant_id"`
	AssignedUserID string    `json:"assigned_user_id"`
	Step           int       `json:"step"`
	ScheduleAt     time.Time `json:"schedule_at"`
}

// Scheduler is the outbound scheduling collaborator. The delayed
// delivery mechanism itself lives outside this core; implementations
// only hand the request over.
type Scheduler interface {
	ScheduleFollowUp(ctx context.Context, req ScheduleRequest) error
}

// Executor is the entry point a schedule eventually calls back into.
type Executor func(ctx context.Context, req ScheduleRequest)

// TimerScheduler runs schedules on in-process timers. It stands in for
// the external one-shot scheduler in single-instance deployments and
// tests; pending timers are lost on restart.
type TimerScheduler struct {
	mu       sync.Mutex
	executor Executor
	timers   []*time.Timer
	clock    func() time.Time
	log      logger.Logger
}

// Option applies a configuration option to the TimerScheduler.
type Option func(*TimerScheduler)

// WithClock overrides the time source used to compute delays.
func WithClock(clock func() time.Time) Option {
	return func(s *TimerScheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(s *TimerScheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// NewTimerScheduler creates a scheduler dispatching to executor.
func NewTimerScheduler(executor Executor, opts ...Option) *TimerScheduler {
	s := &TimerScheduler{
		executor: executor,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("scheduling")
	}
	return s
}

// ScheduleFollowUp arms a timer for the request. Requests already due
// fire immediately.
func (s *TimerScheduler) ScheduleFollowUp(ctx context.Context, req ScheduleRequest) error {
	delay := req.ScheduleAt.Sub(s.clock())
	if delay < 0 {
		delay = 0
	}

	s.log.Info(ctx, "follow-up scheduled",
		logger.String("leadID", req.LeadID),
		logger.Int("step", req.Step),
		logger.String("at", req.ScheduleAt.Format(time.RFC3339)),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers = append(s.timers, time.AfterFunc(delay, func() {
		s.executor(context.Background(), req)
	}))
	return nil
}

// Stop cancels all pending timers.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}
