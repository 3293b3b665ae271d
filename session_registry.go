package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// NewSessionID returns a random, process unique session correlator.
func NewSessionID() string {
	return uuid.NewString()
}

// SessionOpen describes a session record to persist.
type SessionOpen struct {
	TenantID    int64
	UserID      int64
	SessionID   string
	LineageID   string
	Fingerprint string
}

// SessionRegistry cross checks session correlators and device fingerprints.
type SessionRegistry struct {
	store   SessionStore
	enabled bool
	policy  string
	ttl     time.Duration
	logger  Logger
	sink    ActivitySink
	metrics *Metrics
	now     func() time.Time
}

// NewSessionRegistry builds a registry. Records live as long as a session
// token, ttl.
func NewSessionRegistry(store SessionStore, cfg Config) *SessionRegistry {
	policy := cfg.GetFingerprintPolicy()
	if policy != FingerprintPolicyBlock {
		policy = FingerprintPolicyLog
	}
	ttl := cfg.GetAccessTTL()
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}
	return &SessionRegistry{
		store:   store,
		enabled: cfg.GetSessionValidation() && store != nil,
		policy:  policy,
		ttl:     ttl,
		logger:  NopLogger(),
		sink:    noopActivitySink{},
		now:     time.Now,
	}
}

func (r *SessionRegistry) WithLogger(logger Logger) *SessionRegistry {
	r.logger = normalizeLogger(logger)
	return r
}

func (r *SessionRegistry) WithActivitySink(sink ActivitySink) *SessionRegistry {
	r.sink = normalizeActivitySink(sink)
	return r
}

func (r *SessionRegistry) WithMetrics(m *Metrics) *SessionRegistry {
	r.metrics = m
	return r
}

func (r *SessionRegistry) WithClock(now func() time.Time) *SessionRegistry {
	if now != nil {
		r.now = now
	}
	return r
}

// Enabled reports whether request verification consults the registry.
func (r *SessionRegistry) Enabled() bool {
	return r != nil && r.enabled
}

// Open persists a session record. It is best effort: the returned Effect
// carries the failure and the caller decides how to degrade.
func (r *SessionRegistry) Open(ctx context.Context, in SessionOpen) Effect {
	if r == nil || r.store == nil {
		return effectOf("session.open", goerrors.New("session store not configured", goerrors.CategoryInternal))
	}

	lineage := in.LineageID
	if lineage == "" {
		lineage = in.SessionID
	}

	record := &SessionRecord{
		ID:          uuid.New(),
		TenantID:    in.TenantID,
		UserID:      in.UserID,
		SessionID:   in.SessionID,
		LineageID:   lineage,
		Fingerprint: in.Fingerprint,
		ExpiresAt:   r.now().Add(r.ttl),
	}

	return effectOf("session.open", r.store.Save(ctx, record))
}

// Lookup finds the live record of identity regardless of whether request
// validation is enabled.
func (r *SessionRegistry) Lookup(ctx context.Context, identity *IdentityContext) (*SessionRecord, error) {
	if r == nil || r.store == nil || identity == nil || identity.SessionID == "" {
		return nil, ErrSessionNotFound
	}

	record, err := r.store.FindActive(ctx, identity.TenantID, identity.UserID, identity.SessionID, r.now())
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "session lookup failed")
	}
	if record == nil {
		return nil, ErrSessionNotFound
	}
	return record, nil
}

// Check validates the session of a verified token. A missing or expired
// record fails with ErrSessionNotFound. A fingerprint mismatch is logged and
// audited, and only rejected under the block policy.
func (r *SessionRegistry) Check(ctx context.Context, identity *IdentityContext, presented string) (*SessionRecord, error) {
	if !r.Enabled() || identity == nil || identity.SessionID == "" {
		return nil, nil
	}

	record, err := r.Lookup(ctx, identity)
	if err != nil {
		return nil, err
	}

	if presented == "" || record.Fingerprint == "" || presented == record.Fingerprint {
		return record, nil
	}

	r.metrics.observeFingerprintMismatch(r.policy)
	r.logger.Warn("session fingerprint mismatch",
		"user_id", identity.UserID,
		"tenant_id", identity.TenantID,
		"session_id", identity.SessionID,
		"policy", r.policy,
	)

	event := ActivityEvent{
		EventType: ActivityEventFingerprintMismatch,
		Action:    "fingerprint_mismatch",
		Actor:     ActorRef{ID: identity.Subject(), Type: "user"},
		UserID:    identity.UserID,
		TenantID:  identity.TenantID,
		Metadata: map[string]any{
			"session_id": identity.SessionID,
			"lineage_id": record.LineageID,
			"policy":     r.policy,
		},
		OccurredAt: r.now(),
	}
	if err := r.sink.Record(ctx, event); err != nil {
		r.metrics.observeEffect(effectOf("audit.fingerprint_mismatch", err).Report(r.logger))
	}

	if r.policy == FingerprintPolicyBlock {
		return nil, ErrFingerprintMismatch
	}
	return record, nil
}

// Close removes every record of a session lineage.
func (r *SessionRegistry) Close(ctx context.Context, tenantID, userID int64, lineageID string) Effect {
	if r == nil || r.store == nil || lineageID == "" {
		return Effect{Name: "session.close"}
	}
	_, err := r.store.DeleteLineage(ctx, tenantID, userID, lineageID)
	return effectOf("session.close", err)
}
