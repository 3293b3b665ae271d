// Package activitymap flattens auth activity events into audit rows.
package activitymap

import (
	"strconv"
	"strings"
	"time"

	auth "github.com/goliatone/go-tenant-auth"
)

// Channels group audit rows for review.
const (
	ChannelAuth     = "auth"
	ChannelSecurity = "security"
)

// Object types an audit row can point at.
const (
	ObjectUser    = "user"
	ObjectSession = "session"
)

// MetadataKeyLineage is the metadata key carrying a session lineage id.
const MetadataKeyLineage = "lineage_id"

const defaultActor = "system"

// Normalized is one audit row ready for storage.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	Action     string         `json:"action"`
	ObjectType string         `json:"object_type"`
	ObjectID   string         `json:"object_id,omitempty"`
	TenantID   int64          `json:"tenant_id"`
	Channel    string         `json:"channel"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes Normalize.
type Option func(*options)

type options struct {
	actorFallback string
	now           func() time.Time
}

// WithActorFallback names the actor recorded when an event has neither an
// actor nor a user, e.g. a failed login for an unknown identifier.
func WithActorFallback(actor string) Option {
	return func(o *options) {
		if actor = strings.TrimSpace(actor); actor != "" {
			o.actorFallback = actor
		}
	}
}

// WithClock sets the time used for events without OccurredAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Normalize maps event onto an audit row. Events bound to a session lineage
// point at the session, everything else at the user. Failed logins and
// fingerprint mismatches go to the security channel.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	o := options{actorFallback: defaultActor, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	verb := string(event.EventType)
	action := strings.TrimSpace(event.Action)
	if action == "" {
		action = verb
	}

	actor := strings.TrimSpace(event.Actor.ID)
	if actor == "" {
		actor = idString(event.UserID)
	}
	if actor == "" {
		actor = o.actorFallback
	}

	objectType, objectID := ObjectUser, idString(event.UserID)
	if lineage, _ := event.Metadata[MetadataKeyLineage].(string); lineage != "" {
		objectType, objectID = ObjectSession, lineage
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = o.now()
	}

	return Normalized{
		ActorID:    actor,
		Verb:       verb,
		Action:     action,
		ObjectType: objectType,
		ObjectID:   objectID,
		TenantID:   event.TenantID,
		Channel:    channelOf(event.EventType),
		Metadata:   metadataOf(event),
		OccurredAt: occurredAt.UTC(),
	}
}

func channelOf(t auth.ActivityEventType) string {
	switch t {
	case auth.ActivityEventLoginFailure, auth.ActivityEventFingerprintMismatch:
		return ChannelSecurity
	default:
		return ChannelAuth
	}
}

// metadataOf copies event metadata and records the actor type. The event's
// own map is never modified.
func metadataOf(event auth.ActivityEvent) map[string]any {
	out := make(map[string]any, len(event.Metadata)+1)
	for k, v := range event.Metadata {
		out[k] = v
	}
	if t := strings.TrimSpace(event.Actor.Type); t != "" {
		if _, ok := out["actor_type"]; !ok {
			out["actor_type"] = t
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func idString(id int64) string {
	if id <= 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
