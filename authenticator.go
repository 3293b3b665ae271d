package auth

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

// Auther is the authentication facade. It is the only component the rest of
// the platform calls.
type Auther struct {
	cfg          Config
	credentials  CredentialStore
	tenants      TenantResolver
	attempts     LoginAttemptStore
	hasher       PasswordAuthenticator
	tokens       *TokenService
	sessions     *SessionRegistry
	ledger       *RefreshLedger
	sessionStore SessionStore
	refreshStore RefreshTokenStore
	switcher     *RoleSwitcher
	logger       Logger
	activitySink ActivitySink
	metrics      *Metrics
	resetHook    PasswordResetHook
	now          func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(stores Stores, cfg Config) *Auther {
	a := &Auther{
		cfg:          cfg,
		credentials:  stores.Credentials,
		tenants:      stores.Tenants,
		attempts:     stores.LoginAttempts,
		sessionStore: stores.Sessions,
		refreshStore: stores.RefreshTokens,
		hasher:       NewBcryptHasher(cfg.GetBcryptCost()),
		logger:       NopLogger(),
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
	a.rewire()
	return a
}

func (a *Auther) WithLogger(logger Logger) *Auther {
	a.logger = normalizeLogger(logger)
	a.rewire()
	return a
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (a *Auther) WithActivitySink(sink ActivitySink) *Auther {
	a.activitySink = normalizeActivitySink(sink)
	a.rewire()
	return a
}

// WithMetrics enables Prometheus instrumentation.
func (a *Auther) WithMetrics(m *Metrics) *Auther {
	a.metrics = m
	a.rewire()
	return a
}

// WithPasswordAuthenticator replaces the bcrypt hasher.
func (a *Auther) WithPasswordAuthenticator(hasher PasswordAuthenticator) *Auther {
	if hasher != nil {
		a.hasher = hasher
	}
	return a
}

// WithPasswordResetHook sets the hook that delivers reset requests.
func (a *Auther) WithPasswordResetHook(hook PasswordResetHook) *Auther {
	a.resetHook = hook
	return a
}

// WithClock injects a custom clock (useful for tests).
func (a *Auther) WithClock(now func() time.Time) *Auther {
	if now != nil {
		a.now = now
		a.rewire()
	}
	return a
}

// rewire rebuilds the collaborators so they share logger, sink, metrics and
// clock with the facade.
func (a *Auther) rewire() {
	a.tokens = NewTokenService(a.cfg, a.logger).WithClock(a.now)
	a.sessions = NewSessionRegistry(a.sessionStore, a.cfg).
		WithLogger(a.logger).
		WithActivitySink(a.activitySink).
		WithMetrics(a.metrics).
		WithClock(a.now)
	if a.refreshStore != nil {
		a.ledger = NewRefreshLedger(a.refreshStore, a.cfg.GetRefreshTTL()).WithClock(a.now)
	}
	a.switcher = NewRoleSwitcher(a.tokens, a.sessions,
		WithSwitcherClock(a.now),
		WithSwitcherLogger(a.logger),
		WithSwitcherActivitySink(a.activitySink),
		WithSwitcherMetrics(a.metrics),
	)
}

// TokenService returns the TokenService instance used by this Authenticator
func (a *Auther) TokenService() *TokenService {
	return a.tokens
}

// Sessions returns the session registry.
func (a *Auther) Sessions() *SessionRegistry {
	return a.sessions
}

// Login authenticates identifier and password and opens a session.
func (a *Auther) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	started := time.Now()
	identifier := strings.TrimSpace(req.Identifier)

	user, err := a.findIdentity(ctx, identifier)
	if err != nil {
		if IsAuthError(err, ErrUserNotFound) {
			a.burnPasswordCheck(req.Password)
		}
		return nil, a.loginFailed(ctx, req, nil, err, started)
	}

	if err := a.matchTenant(ctx, user, req.TenantHint, req.HostTenant); err != nil {
		a.burnPasswordCheck(req.Password)
		return nil, a.loginFailed(ctx, req, user, err, started)
	}

	if err := a.hasher.ComparePasswordAndHash(req.Password, user.PasswordHash); err != nil {
		return nil, a.loginFailed(ctx, req, user, err, started)
	}

	if !user.IsActive || user.IsArchived {
		return nil, a.loginFailed(ctx, req, user, ErrUserInactive, started)
	}

	session := a.openSession(ctx, user, "", req.Fingerprint)

	token, err := a.tokens.Issue(TokenSubject{
		UserID:      user.ID,
		Username:    user.Username,
		Role:        user.Role,
		TenantID:    user.Tenant(),
		Fingerprint: req.Fingerprint,
		SessionID:   session.sessionID,
		LineageID:   session.lineageID,
	})
	if err != nil {
		return nil, a.loginFailed(ctx, req, user, err, started)
	}

	refresh, err := a.mintRefresh(ctx, user, session.lineageID)
	if err != nil {
		return nil, a.loginFailed(ctx, req, user, err, started)
	}

	a.recordAttempt(ctx, req, true, "")
	a.emitAuthEvent(ctx, ActivityEventLoginSuccess, "login", user, map[string]any{
		"identifier":  identifier,
		"ip":          req.IP,
		"fingerprint": req.Fingerprint != "",
		"lineage_id":  session.lineageID,
	})
	a.metrics.observeLogin(OutcomeSuccess, "", started)

	public := user.Public()
	public.ActiveRole = user.Role

	return &AuthResult{
		Token:        token,
		RefreshToken: refresh,
		User:         public,
		RedirectTo:   LandingPage(user.Role),
	}, nil
}

// Verify validates a raw token and, when enabled, cross checks the session
// registry. fingerprint is the value presented with the current request.
func (a *Auther) Verify(ctx context.Context, raw, fingerprint string) (*IdentityContext, error) {
	identity, err := a.ValidateToken(raw)
	if err != nil {
		return nil, err
	}
	if err := a.CheckSession(ctx, identity, fingerprint); err != nil {
		return nil, err
	}
	return identity, nil
}

// ValidateToken checks signature and expiry only.
func (a *Auther) ValidateToken(raw string) (*IdentityContext, error) {
	identity, err := a.tokens.Validate(raw)
	if err != nil {
		a.metrics.ObserveVerification(textCodeOf(err))
		return nil, err
	}
	return identity, nil
}

// CheckSession runs the session registry cross check for a token that
// already passed ValidateToken.
func (a *Auther) CheckSession(ctx context.Context, identity *IdentityContext, fingerprint string) error {
	if _, err := a.sessions.Check(ctx, identity, fingerprint); err != nil {
		if !IsExpectedFailure(err) {
			err = a.unexpected("verify", err)
		}
		a.metrics.ObserveVerification(textCodeOf(err))
		return err
	}
	a.metrics.ObserveVerification("ok")
	return nil
}

// SwitchTo re-issues the token of identity acting as target.
func (a *Auther) SwitchTo(ctx context.Context, identity *IdentityContext, target Role) (*SwitchResult, error) {
	outcome, err := a.switcher.Transition(ctx, identity, target)
	if err != nil {
		if !IsExpectedFailure(err) {
			return nil, a.unexpected("switch", err)
		}
		return nil, err
	}
	return a.switchResult(ctx, outcome), nil
}

// SwitchToOriginal re-issues the token of identity acting as its legal role.
func (a *Auther) SwitchToOriginal(ctx context.Context, identity *IdentityContext) (*SwitchResult, error) {
	outcome, err := a.switcher.SwitchToOriginal(ctx, identity)
	if err != nil {
		if !IsExpectedFailure(err) {
			return nil, a.unexpected("switch_original", err)
		}
		return nil, err
	}
	return a.switchResult(ctx, outcome), nil
}

// Status reports the role switch state of identity.
func (a *Auther) Status(identity *IdentityContext) RoleStatus {
	return a.switcher.Status(identity)
}

// Refresh exchanges a refresh secret for a new token pair. The new session
// token carries the legal role only.
func (a *Auther) Refresh(ctx context.Context, secret, fingerprint string) (*AuthResult, error) {
	if a.ledger == nil {
		return nil, a.unexpected("refresh", goerrors.New("refresh token store not configured", goerrors.CategoryInternal))
	}

	entry, err := a.ledger.Consume(ctx, secret)
	if err != nil {
		if IsAuthError(err, ErrRefreshInvalidOrExpired) {
			a.metrics.observeRefresh(OutcomeFailure)
			return nil, err
		}
		a.metrics.observeRefresh(OutcomeError)
		return nil, a.unexpected("refresh", err)
	}

	user, err := a.credentials.FindByID(ctx, entry.TenantID, entry.UserID)
	if err != nil {
		if IsNotFound(err) {
			a.metrics.observeRefresh(OutcomeFailure)
			return nil, ErrRefreshInvalidOrExpired
		}
		a.metrics.observeRefresh(OutcomeError)
		return nil, a.unexpected("refresh", err)
	}

	if user == nil || !user.IsActive || user.IsArchived || user.Tenant() != entry.TenantID {
		a.metrics.observeRefresh(OutcomeFailure)
		return nil, ErrRefreshInvalidOrExpired
	}

	session := a.openSession(ctx, user, entry.LineageID, fingerprint)

	token, err := a.tokens.Issue(TokenSubject{
		UserID:      user.ID,
		Username:    user.Username,
		Role:        user.Role,
		TenantID:    user.Tenant(),
		Fingerprint: fingerprint,
		SessionID:   session.sessionID,
		LineageID:   session.lineageID,
	})
	if err != nil {
		a.metrics.observeRefresh(OutcomeError)
		return nil, a.unexpected("refresh", err)
	}

	refresh, err := a.mintRefresh(ctx, user, session.lineageID)
	if err != nil {
		a.metrics.observeRefresh(OutcomeError)
		return nil, a.unexpected("refresh", err)
	}

	a.emitAuthEvent(ctx, ActivityEventRefresh, "refresh", user, map[string]any{
		"lineage_id": session.lineageID,
	})
	a.metrics.observeRefresh(OutcomeSuccess)

	public := user.Public()
	public.ActiveRole = user.Role

	return &AuthResult{
		Token:        token,
		RefreshToken: refresh,
		User:         public,
		RedirectTo:   LandingPage(user.Role),
	}, nil
}

// Logout revokes whatever the presented credentials resolve to. It never
// fails from the caller's point of view; each revocation is best effort.
func (a *Auther) Logout(ctx context.Context, bearer, refreshSecret string) {
	if bearer != "" {
		if identity, err := a.tokens.Validate(bearer); err == nil {
			lineage := identity.LineageID
			if lineage == "" {
				lineage = identity.SessionID
				if record, err := a.sessions.Lookup(ctx, identity); err == nil && record.LineageID != "" {
					lineage = record.LineageID
				}
			}

			a.report(a.sessions.Close(ctx, identity.TenantID, identity.UserID, lineage))
			if a.ledger != nil {
				a.report(a.ledger.RevokeLineage(ctx, identity.TenantID, identity.UserID, lineage))
			}

			a.emitAuthEvent(ctx, ActivityEventLogout, "logout", &User{
				ID:       identity.UserID,
				TenantID: &identity.TenantID,
			}, map[string]any{
				"lineage_id":       lineage,
				"is_role_switched": identity.IsRoleSwitched,
			})
		}
	}

	if refreshSecret != "" && a.ledger != nil {
		a.report(a.ledger.Revoke(ctx, refreshSecret))
	}
}

// Register creates an identity inside the actor's tenant. The new role may
// not outrank the actor's active role.
func (a *Auther) Register(ctx context.Context, actor *IdentityContext, req RegisterRequest) (PublicUser, error) {
	if actor == nil {
		return PublicUser{}, ErrTokenMissing
	}

	if err := req.Validate(); err != nil {
		return PublicUser{}, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload").
			WithTextCode("INVALID_REGISTRATION").
			WithCode(goerrors.CodeBadRequest)
	}

	role, _ := ParseRole(string(req.Role))
	if !actor.ActiveRole.CanAssign(role) {
		return PublicUser{}, ErrRoleNotAssignable
	}

	if actor.TenantID == 0 {
		return PublicUser{}, ErrPermissionDenied
	}

	if err := a.ensureAvailable(ctx, req.Username, req.Email); err != nil {
		return PublicUser{}, err
	}

	hash, err := a.hasher.HashPassword(req.Password)
	if err != nil {
		return PublicUser{}, a.unexpected("register", err)
	}

	tenantID := actor.TenantID
	created, err := a.credentials.Create(ctx, &User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         role,
		TenantID:     &tenantID,
		DepartmentID: req.DepartmentID,
		IsActive:     true,
	})
	if err != nil {
		if IsAuthError(err, ErrIdentityConflict) {
			return PublicUser{}, err
		}
		return PublicUser{}, a.unexpected("register", err)
	}

	a.emitAuthEvent(ctx, ActivityEventUserRegistered, "register", created, map[string]any{
		"actor_id": actor.UserID,
		"role":     role,
	})

	return created.Public(), nil
}

// RequestPasswordReset hands the identity to the reset hook when it is
// active. The result never reveals whether the identity exists.
func (a *Auther) RequestPasswordReset(ctx context.Context, req PasswordResetRequest) {
	user, err := a.findIdentity(ctx, strings.TrimSpace(req.Identifier))
	if err != nil {
		if !IsAuthError(err, ErrUserNotFound) {
			a.logger.Error("password reset lookup failed", "error", err)
		}
		return
	}

	if err := a.matchTenant(ctx, user, req.TenantHint, req.HostTenant); err != nil {
		return
	}

	if !user.IsActive || user.IsArchived || a.resetHook == nil {
		return
	}

	a.report(effectOf("password_reset.hook", a.resetHook(ctx, user.Public())))
	a.emitAuthEvent(ctx, ActivityEventPasswordResetRequest, "password_reset_requested", user, nil)
}

// PruneResult counts rows removed by PruneExpired.
type PruneResult struct {
	Sessions      int64
	RefreshTokens int64
}

// PruneExpired deletes expired session records and ledger entries.
func (a *Auther) PruneExpired(ctx context.Context) (PruneResult, error) {
	var out PruneResult
	now := a.now()

	if a.sessionStore != nil {
		n, err := a.sessionStore.DeleteExpired(ctx, now)
		if err != nil {
			return out, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to prune sessions")
		}
		out.Sessions = n
	}

	if a.refreshStore != nil {
		n, err := a.refreshStore.DeleteExpired(ctx, now)
		if err != nil {
			return out, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to prune refresh tokens")
		}
		out.RefreshTokens = n
	}

	return out, nil
}

type openedSession struct {
	sessionID string
	lineageID string
}

// openSession persists a new session record. When that fails the token is
// issued without a correlator and is verified by signature only.
func (a *Auther) openSession(ctx context.Context, user *User, lineage, fingerprint string) openedSession {
	sessionID := NewSessionID()
	if lineage == "" {
		lineage = sessionID
	}

	effect := a.sessions.Open(ctx, SessionOpen{
		TenantID:    user.Tenant(),
		UserID:      user.ID,
		SessionID:   sessionID,
		LineageID:   lineage,
		Fingerprint: fingerprint,
	})
	if effect.Failed() {
		a.report(effect)
		return openedSession{lineageID: lineage}
	}

	return openedSession{sessionID: sessionID, lineageID: lineage}
}

func (a *Auther) mintRefresh(ctx context.Context, user *User, lineage string) (string, error) {
	if a.ledger == nil {
		return "", goerrors.New("refresh token store not configured", goerrors.CategoryInternal)
	}
	return a.ledger.Mint(ctx, MintRequest{
		TenantID:  user.Tenant(),
		UserID:    user.ID,
		LineageID: lineage,
	})
}

func (a *Auther) findIdentity(ctx context.Context, identifier string) (*User, error) {
	if identifier == "" {
		return nil, ErrUserNotFound
	}

	user, err := a.credentials.FindByUsername(ctx, identifier)
	if err == nil && user != nil {
		return user, nil
	}
	if err != nil && !IsNotFound(err) {
		return nil, err
	}

	user, err = a.credentials.FindByEmail(ctx, strings.ToLower(identifier))
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// matchTenant requires the identity to belong to the hinted tenant. An
// explicit hint is strict; a host label that names no tenant is ignored.
// Every mismatch looks like an unknown user.
func (a *Auther) matchTenant(ctx context.Context, user *User, explicit, host string) error {
	if hint := normalizeSubdomain(explicit); hint != "" {
		return a.matchTenantHint(ctx, user, hint, true)
	}
	if hint := normalizeSubdomain(host); hint != "" {
		return a.matchTenantHint(ctx, user, hint, false)
	}
	return nil
}

func (a *Auther) matchTenantHint(ctx context.Context, user *User, hint string, strict bool) error {
	if a.tenants == nil {
		if !strict {
			return nil
		}
		a.logger.Warn("tenant hint supplied but no tenant resolver configured", "hint", hint)
		return ErrUserNotFound
	}

	tenantID, err := a.tenants.ResolveSubdomain(ctx, hint)
	if err != nil {
		if !IsNotFound(err) {
			return err
		}
		if !strict {
			a.logger.Debug("host label is not a tenant", "label", hint)
			return nil
		}
		return ErrUserNotFound
	}

	if tenantID != user.Tenant() {
		return ErrUserNotFound
	}
	return nil
}

func normalizeSubdomain(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (a *Auther) ensureAvailable(ctx context.Context, username, email string) error {
	if u, err := a.credentials.FindByUsername(ctx, strings.TrimSpace(username)); err == nil && u != nil {
		return ErrIdentityConflict
	} else if err != nil && !IsNotFound(err) {
		return a.unexpected("register", err)
	}

	if u, err := a.credentials.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email))); err == nil && u != nil {
		return ErrIdentityConflict
	} else if err != nil && !IsNotFound(err) {
		return a.unexpected("register", err)
	}

	return nil
}

// burnPasswordCheck spends a hash comparison on failed lookups so response
// time does not reveal whether an identifier exists.
func (a *Auther) burnPasswordCheck(password string) {
	a.dummyOnce.Do(func() {
		a.dummyHash, _ = a.hasher.HashPassword(uuid.NewString())
	})
	if a.dummyHash != "" {
		_ = a.hasher.ComparePasswordAndHash(password, a.dummyHash)
	}
}

func (a *Auther) loginFailed(ctx context.Context, req LoginRequest, user *User, err error, started time.Time) error {
	if !IsExpectedFailure(err) {
		err = a.unexpected("login", err)
		a.metrics.observeLogin(OutcomeError, TextCodeServerError, started)
	} else {
		a.metrics.observeLogin(OutcomeFailure, textCodeOf(err), started)
		a.logger.Info("login rejected", "identifier", req.Identifier, "reason", textCodeOf(err))
	}

	a.recordAttempt(ctx, req, false, textCodeOf(err))
	a.emitAuthEvent(ctx, ActivityEventLoginFailure, "login_failed", user, map[string]any{
		"identifier": strings.TrimSpace(req.Identifier),
		"ip":         req.IP,
		"reason":     textCodeOf(err),
	})

	return err
}

func (a *Auther) recordAttempt(ctx context.Context, req LoginRequest, success bool, reason string) {
	if a.attempts == nil {
		return
	}
	err := a.attempts.RecordAttempt(ctx, &LoginAttempt{
		ID:          uuid.New(),
		Identifier:  strings.TrimSpace(req.Identifier),
		IP:          req.IP,
		Success:     success,
		Reason:      reason,
		AttemptedAt: a.now(),
	})
	a.report(effectOf("login_attempt.record", err))
}

func (a *Auther) switchResult(ctx context.Context, outcome *SwitchOutcome) *SwitchResult {
	identity := outcome.Identity
	public := PublicUser{
		ID:       identity.UserID,
		Username: identity.Username,
		Role:     identity.Role,
		TenantID: identity.TenantID,
		IsActive: true,
	}

	if user, err := a.credentials.FindByID(ctx, identity.TenantID, identity.UserID); err == nil && user != nil {
		public = user.Public()
	} else if err != nil && !IsNotFound(err) {
		a.logger.Debug("switch result user lookup failed", "error", err)
	}

	public.ActiveRole = identity.ActiveRole
	public.IsRoleSwitched = identity.IsRoleSwitched

	return &SwitchResult{
		Token:      outcome.Token,
		User:       public,
		RedirectTo: LandingPage(identity.ActiveRole),
	}
}

func (a *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, action string, user *User, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Action:     action,
		Actor:      ActorRef{Type: "unknown"},
		Metadata:   metadata,
		OccurredAt: a.now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if user != nil {
		event.UserID = user.ID
		event.TenantID = user.Tenant()
		event.Actor = ActorRef{ID: strconv.FormatInt(user.ID, 10), Type: "user"}
	}

	if err := a.activitySink.Record(ctx, event); err != nil {
		a.report(effectOf("audit."+action, err))
	}
}

func (a *Auther) report(e Effect) {
	a.metrics.observeEffect(e.Report(a.logger))
}

// unexpected logs err in full and returns the opaque server error.
func (a *Auther) unexpected(op string, err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		a.logger.Error("auth operation failed",
			"operation", op,
			"error", err,
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
	} else {
		a.logger.Error("auth operation failed", "operation", op, "error", err)
	}
	return ErrServer
}

func textCodeOf(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return richErr.TextCode
	}
	return TextCodeServerError
}
