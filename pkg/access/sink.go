package access

import (
	"context"

	"github.com/thermaleye/backoffice/pkg/observability"
)

// Decision captures the outcome of one access check.
type Decision struct {
	Kind      string
	Action    Action
	Principal *Principal
	Role      Role
	Allowed   bool
}

// AuditSink receives access decisions. Implementations must not block the
// request path for long; the service calls them synchronously.
type AuditSink interface {
	RecordDecision(ctx context.Context, d Decision)
}

// NotificationSink receives noteworthy security events (repeated denials,
// privilege changes). It is a separate capability so deployments can wire
// audit without notifications or vice versa.
type NotificationSink interface {
	Notify(ctx context.Context, subject, message string)
}

// NopSink discards everything. It is the default sink.
type NopSink struct{}

func (NopSink) RecordDecision(context.Context, Decision) {}
func (NopSink) Notify(context.Context, string, string)   {}

// LogSink writes denials to the structured logger. Grants are not logged;
// they dominate traffic and carry no signal.
type LogSink struct {
	Logger *observability.Logger
}

func (s LogSink) RecordDecision(ctx context.Context, d Decision) {
	if d.Allowed || s.Logger == nil {
		return
	}
	logger := s.Logger.WithFields(map[string]interface{}{
		"kind":   d.Kind,
		"action": string(d.Action),
		"role":   string(d.Role),
	})
	if d.Principal != nil && d.Principal.Authenticated {
		logger = logger.WithField("user_id", d.Principal.ID)
	}
	logger.Debug("access denied")
}
