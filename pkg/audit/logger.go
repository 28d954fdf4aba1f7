package audit

import (
	"context"

	"github.com/platinummonkey/homestead/pkg/observability"
)

// Logger records audit events
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// NopLogger discards events
type NopLogger struct{}

// Log implements Logger
func (NopLogger) Log(context.Context, *Event) error { return nil }

// AppLogger writes events to the structured application log
type AppLogger struct {
	logger *observability.Logger
}

// NewAppLogger creates a logger that emits one "audit event" line per event
func NewAppLogger(logger *observability.Logger) *AppLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &AppLogger{logger: logger.WithField("component", "audit")}
}

// Log implements Logger
func (l *AppLogger) Log(_ context.Context, event *Event) error {
	fields := map[string]interface{}{
		"event_type":  string(event.EventType),
		"status":      string(event.Status),
		"request_id":  event.RequestID,
		"method":      event.Method,
		"path":        event.Path,
		"status_code": event.StatusCode,
	}
	if event.ActorID != nil {
		fields["actor_id"] = *event.ActorID
	}
	if event.TenantID != nil {
		fields["tenant_id"] = *event.TenantID
	}
	if event.ResourceType != "" {
		fields["resource_type"] = string(event.ResourceType)
		fields["resource_id"] = event.ResourceID
	}
	l.logger.WithFields(fields).Info("audit event")
	return nil
}
