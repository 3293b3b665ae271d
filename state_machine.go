package auth

import (
	"context"
	"time"
)

// SwitchOutcome is the result of a role transition.
type SwitchOutcome struct {
	Token    string
	Identity *IdentityContext
}

// RoleSwitcherOption customizes role switcher construction.
type RoleSwitcherOption func(*RoleSwitcher)

// WithSwitcherClock injects a custom clock (useful for tests).
func WithSwitcherClock(clock func() time.Time) RoleSwitcherOption {
	return func(rs *RoleSwitcher) {
		if clock != nil {
			rs.now = clock
		}
	}
}

// WithSwitcherActivitySink sets the ActivitySink used to publish switch events.
func WithSwitcherActivitySink(sink ActivitySink) RoleSwitcherOption {
	return func(rs *RoleSwitcher) {
		rs.activitySink = normalizeActivitySink(sink)
	}
}

// WithSwitcherLogger overrides the logger used for sink failures.
func WithSwitcherLogger(logger Logger) RoleSwitcherOption {
	return func(rs *RoleSwitcher) {
		if logger != nil {
			rs.logger = logger
		}
	}
}

// WithSwitcherMetrics records switch outcomes.
func WithSwitcherMetrics(m *Metrics) RoleSwitcherOption {
	return func(rs *RoleSwitcher) {
		rs.metrics = m
	}
}

// RoleSwitcher moves an identity between active roles. The legal role, the
// subject and the tenant of a token are carried over unchanged.
type RoleSwitcher struct {
	tokens       *TokenService
	sessions     *SessionRegistry
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
	metrics      *Metrics
}

// NewRoleSwitcher creates a switcher that re-issues tokens with tokens and
// opens a session record per switch in sessions.
func NewRoleSwitcher(tokens *TokenService, sessions *SessionRegistry, opts ...RoleSwitcherOption) *RoleSwitcher {
	rs := &RoleSwitcher{
		tokens:       tokens,
		sessions:     sessions,
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       NopLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(rs)
		}
	}

	return rs
}

// Transition re-issues a token for current acting as target. The legal role
// must have an edge to target, otherwise ErrForbiddenTransition.
func (rs *RoleSwitcher) Transition(ctx context.Context, current *IdentityContext, target Role) (*SwitchOutcome, error) {
	if current == nil {
		return nil, ErrTokenMissing
	}

	parsed, ok := ParseRole(string(target))
	if !ok || !current.Role.CanSwitchTo(parsed) {
		rs.metrics.observeSwitch(metricRole(parsed, ok), OutcomeFailure)
		rs.logger.Info("role switch rejected",
			"user_id", current.UserID,
			"tenant_id", current.TenantID,
			"legal_role", current.Role,
			"target", target,
		)
		return nil, ErrForbiddenTransition
	}

	next := &IdentityContext{
		UserID:         current.UserID,
		Username:       current.Username,
		Role:           current.Role,
		ActiveRole:     parsed,
		IsRoleSwitched: parsed != current.Role,
		TenantID:       current.TenantID,
		Fingerprint:    current.Fingerprint,
		SessionID:      NewSessionID(),
	}

	if err := captureImmutableIdentity(current).validate(next); err != nil {
		rs.metrics.observeSwitch(parsed, OutcomeError)
		return nil, err
	}

	lineage := rs.lineageOf(ctx, current, next.SessionID)
	next.LineageID = lineage
	effect := rs.sessions.Open(ctx, SessionOpen{
		TenantID:    next.TenantID,
		UserID:      next.UserID,
		SessionID:   next.SessionID,
		LineageID:   lineage,
		Fingerprint: next.Fingerprint,
	})
	if effect.Failed() {
		rs.metrics.observeEffect(effect.Report(rs.logger))
		// without a record the new token is verified by signature only
		next.SessionID = ""
	}

	subject := TokenSubject{
		UserID:         next.UserID,
		Username:       next.Username,
		Role:           next.Role,
		TenantID:       next.TenantID,
		Fingerprint:    next.Fingerprint,
		SessionID:      next.SessionID,
		LineageID:      next.LineageID,
		ActiveRole:     next.ActiveRole,
		IsRoleSwitched: next.IsRoleSwitched,
	}

	token, err := rs.tokens.Issue(subject)
	if err != nil {
		rs.metrics.observeSwitch(parsed, OutcomeError)
		return nil, err
	}

	now := rs.now()
	next.IssuedAt = now
	next.ExpiresAt = now.Add(rs.tokens.TTL())

	rs.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventRoleSwitch,
		Action:    RoleSwitchAction(parsed),
		Actor:     ActorRef{ID: current.Subject(), Type: "user"},
		UserID:    current.UserID,
		TenantID:  current.TenantID,
		Metadata: map[string]any{
			"from":                 current.ActiveRole,
			"to":                   parsed,
			"legal_role":           current.Role,
			"was_already_switched": current.IsRoleSwitched,
			"lineage_id":           lineage,
		},
		OccurredAt: now,
	})

	rs.metrics.observeSwitch(parsed, OutcomeSuccess)

	return &SwitchOutcome{Token: token, Identity: next}, nil
}

// SwitchToOriginal returns current to its legal role.
func (rs *RoleSwitcher) SwitchToOriginal(ctx context.Context, current *IdentityContext) (*SwitchOutcome, error) {
	if current == nil {
		return nil, ErrTokenMissing
	}
	return rs.Transition(ctx, current, current.Role)
}

// Status is the non mutating view used by front ends.
func (rs *RoleSwitcher) Status(current *IdentityContext) RoleStatus {
	if current == nil {
		return RoleStatus{}
	}
	return current.Status()
}

func (rs *RoleSwitcher) lineageOf(ctx context.Context, current *IdentityContext, fallback string) string {
	if current.LineageID != "" {
		return current.LineageID
	}
	if current.SessionID == "" {
		return fallback
	}
	record, err := rs.sessions.Lookup(ctx, current)
	if err != nil || record == nil || record.LineageID == "" {
		return current.SessionID
	}
	return record.LineageID
}

func (rs *RoleSwitcher) recordActivity(ctx context.Context, event ActivityEvent) {
	if err := rs.activitySink.Record(ctx, event); err != nil {
		rs.metrics.observeEffect(effectOf("audit.role_switch", err).Report(rs.logger))
	}
}

func metricRole(r Role, ok bool) Role {
	if !ok {
		return Role("invalid")
	}
	return r
}
