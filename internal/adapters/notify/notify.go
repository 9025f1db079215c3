// Package notify defines the outbound notification collaborator. The
// engine fires events at it and never depends on delivery succeeding.
package notify

import (
	"context"

	"github.com/immodesk/leadengine/pkg/logger"
)

// Event is a notification destined for a human operator.
type Event struct {
	TenantID string         `json:"tenant_id"`
	UserID   string         `json:"user_id"`
	Type     string         `json:"type"`
	Data     map[string]any `json:"data"`
}

// Notifier delivers events to operators (in-app, push, ...). Callers
// treat it as fire-and-forget; returned errors are logged, never
// propagated.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events to the log. It is the default sink when no
// real delivery channel is configured.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Get().Named("notify")
	}
	return &LogNotifier{log: log}
}

// Notify logs the event and always succeeds.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	n.log.Info(ctx, "notification",
		logger.String("tenantID", event.TenantID),
		logger.String("userID", event.UserID),
		logger.String("type", event.Type),
		logger.Any("data", event.Data),
	)
	return nil
}
