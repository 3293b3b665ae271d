package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess         ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure         ActivityEventType = "auth.login.failure"
	ActivityEventRoleSwitch           ActivityEventType = "auth.role.switch"
	ActivityEventRefresh              ActivityEventType = "auth.refresh"
	ActivityEventLogout               ActivityEventType = "auth.logout"
	ActivityEventFingerprintMismatch  ActivityEventType = "auth.session.fingerprint_mismatch"
	ActivityEventUserRegistered       ActivityEventType = "auth.user.registered"
	ActivityEventPasswordResetRequest ActivityEventType = "auth.password.reset_requested"
)

// ActorRef identifies who performed an action.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Action     string
	Actor      ActorRef
	UserID     int64
	TenantID   int64
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing purposes. Sinks are
// write only and never consulted for authorization.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// RoleSwitchAction is the audit action name for a switch to target.
func RoleSwitchAction(target Role) string {
	return "role_switch_to_" + string(target)
}
