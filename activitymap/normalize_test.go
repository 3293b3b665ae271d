package activitymap_test

import (
	"testing"
	"time"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/activitymap"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeRoleSwitchEvent(t *testing.T) {
	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType:  auth.ActivityEventRoleSwitch,
		Action:     auth.RoleSwitchAction(auth.RoleEmployee),
		Actor:      auth.ActorRef{ID: "42", Type: "user"},
		UserID:     100,
		TenantID:   7,
		Metadata:   map[string]any{"from": "admin"},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	assert.Equal(t, activitymap.Normalized{
		ActorID:    "42",
		Verb:       "auth.role.switch",
		Action:     "role_switch_to_employee",
		ObjectType: activitymap.ObjectUser,
		ObjectID:   "100",
		TenantID:   7,
		Channel:    activitymap.ChannelAuth,
		Metadata:   map[string]any{"from": "admin", "actor_type": "user"},
		OccurredAt: ts,
	}, out)

	assert.Len(t, event.Metadata, 1, "source metadata must not be mutated")
}

func TestNormalizeLineageEventPointsAtSession(t *testing.T) {
	out := activitymap.Normalize(auth.ActivityEvent{
		EventType: auth.ActivityEventLogout,
		Action:    "logout",
		UserID:    200,
		TenantID:  7,
		Metadata:  map[string]any{activitymap.MetadataKeyLineage: "lin-1"},
	})

	assert.Equal(t, "200", out.ActorID)
	assert.Equal(t, activitymap.ObjectSession, out.ObjectType)
	assert.Equal(t, "lin-1", out.ObjectID)
	assert.Equal(t, activitymap.ChannelAuth, out.Channel)
}

func TestNormalizeSecurityChannel(t *testing.T) {
	for _, eventType := range []auth.ActivityEventType{
		auth.ActivityEventLoginFailure,
		auth.ActivityEventFingerprintMismatch,
	} {
		out := activitymap.Normalize(auth.ActivityEvent{EventType: eventType})
		assert.Equal(t, activitymap.ChannelSecurity, out.Channel, eventType)
		assert.Equal(t, string(eventType), out.Action, "action falls back to the verb")
	}
}

func TestNormalizeActorFallback(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		event  auth.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "actor id wins",
			event:  auth.ActivityEvent{Actor: auth.ActorRef{ID: "actor-1"}, UserID: 1},
			expect: "actor-1",
		},
		{
			name:   "user id when actor missing",
			event:  auth.ActivityEvent{UserID: 2},
			expect: "2",
		},
		{
			name:   "failed login with unknown user",
			event:  auth.ActivityEvent{EventType: auth.ActivityEventLoginFailure},
			expect: "system",
		},
		{
			name:   "configured fallback",
			event:  auth.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("authd"), activitymap.WithActorFallback(" ")},
			expect: "authd",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := append(tc.opts, activitymap.WithClock(func() time.Time { return fixed }))
			out := activitymap.Normalize(tc.event, opts...)
			assert.Equal(t, tc.expect, out.ActorID)
			assert.Equal(t, fixed, out.OccurredAt)
		})
	}
}
