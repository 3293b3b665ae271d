package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-tenant-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLoginIssuesVerifiableToken(t *testing.T) {
	f := newFixture(t)
	alice := f.users.add(t, "alice", auth.RoleAdmin, 7)

	res := f.login(t, "alice", "fp-1")

	assert.NotEmpty(t, res.Token)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "/admin-dashboard", res.RedirectTo)
	assert.Equal(t, alice.ID, res.User.ID)
	assert.Equal(t, auth.RoleAdmin, res.User.ActiveRole)
	assert.False(t, res.User.IsRoleSwitched)

	identity := f.verify(t, res.Token, "fp-1")
	assert.Equal(t, alice.ID, identity.UserID)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, auth.RoleAdmin, identity.Role)
	assert.Equal(t, auth.RoleAdmin, identity.ActiveRole)
	assert.Equal(t, int64(7), identity.TenantID)
	assert.Equal(t, "fp-1", identity.Fingerprint)
	require.NotEmpty(t, identity.SessionID)

	record, ok := f.sessions.get(identity.SessionID)
	require.True(t, ok)
	assert.Equal(t, identity.SessionID, record.LineageID)
	assert.Equal(t, "fp-1", record.Fingerprint)

	attempts := f.attempts.all()
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Success)
	assert.Equal(t, "10.0.0.1", attempts[0].IP)

	events := f.sink.byType(auth.ActivityEventLoginSuccess)
	require.Len(t, events, 1)
	assert.Equal(t, int64(7), events[0].TenantID)
}

func TestLoginByEmail(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "bob", auth.RoleEmployee, 7)

	res := f.login(t, "  BOB@example.com ", "")
	assert.Equal(t, "/employee-dashboard", res.RedirectTo)
	assert.Equal(t, "bob", res.User.Username)
}

func TestLoginFailuresCollapseToInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)

	tests := []struct {
		name       string
		identifier string
		password   string
		internal   string
	}{
		{name: "unknown identifier", identifier: "mallory", password: testPassword, internal: auth.TextCodeUserNotFound},
		{name: "wrong password", identifier: "alice", password: "not-the-password", internal: auth.TextCodeInvalidPassword},
		{name: "empty identifier", identifier: "   ", password: testPassword, internal: auth.TextCodeUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auther.Login(context.Background(), auth.LoginRequest{
				Identifier: tt.identifier,
				Password:   tt.password,
			})
			require.Error(t, err)
			assert.True(t, auth.HasTextCode(err, tt.internal))
			assert.Equal(t, auth.ErrInvalidCredentials, auth.PublicError(err))
		})
	}

	attempts := f.attempts.all()
	require.Len(t, attempts, len(tests))
	for _, a := range attempts {
		assert.False(t, a.Success)
	}
	assert.Len(t, f.sink.byType(auth.ActivityEventLoginFailure), len(tests))
	assert.Zero(t, f.sessions.count())
}

func TestLoginInactiveUser(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "dora", auth.RoleEmployee, 7, func(u *auth.User) { u.IsActive = false })
	f.users.add(t, "evan", auth.RoleEmployee, 7, func(u *auth.User) { u.IsArchived = true })

	for _, name := range []string{"dora", "evan"} {
		_, err := f.auther.Login(context.Background(), auth.LoginRequest{Identifier: name, Password: testPassword})
		require.Error(t, err)
		assert.True(t, auth.IsAuthError(err, auth.ErrUserInactive), name)
		assert.Equal(t, auth.ErrUserInactive, auth.PublicError(err))
	}

	// the inactive check runs after the password check
	_, err := f.auther.Login(context.Background(), auth.LoginRequest{Identifier: "dora", Password: "wrong-password"})
	assert.Equal(t, auth.ErrInvalidCredentials, auth.PublicError(err))
}

func TestLoginTenantHint(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)

	res, err := f.auther.Login(context.Background(), auth.LoginRequest{
		Identifier: "alice",
		Password:   testPassword,
		TenantHint: "ACME",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.User.TenantID)

	for _, hint := range []string{"globex", "unknown"} {
		_, err = f.auther.Login(context.Background(), auth.LoginRequest{
			Identifier: "alice",
			Password:   testPassword,
			TenantHint: hint,
		})
		require.Error(t, err, hint)
		assert.True(t, auth.IsAuthError(err, auth.ErrUserNotFound), hint)
	}
}

func TestLoginHostTenant(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)

	tests := []struct {
		name    string
		req     auth.LoginRequest
		wantErr bool
	}{
		{name: "own tenant host", req: auth.LoginRequest{HostTenant: "acme"}},
		{name: "api host is not a tenant", req: auth.LoginRequest{HostTenant: "auth"}},
		{name: "other tenant host", req: auth.LoginRequest{HostTenant: "globex"}, wantErr: true},
		{name: "explicit hint wins over host", req: auth.LoginRequest{TenantHint: "unknown", HostTenant: "acme"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Identifier = "alice"
			tt.req.Password = testPassword

			_, err := f.auther.Login(context.Background(), tt.req)
			if tt.wantErr {
				assert.True(t, auth.IsAuthError(err, auth.ErrUserNotFound))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoginHostTenantWithoutResolver(t *testing.T) {
	users := newMemUsers()
	users.add(t, "alice", auth.RoleAdmin, 7)

	auther := auth.NewAuthenticator(auth.Stores{
		Credentials:   users,
		Sessions:      newMemSessions(),
		RefreshTokens: newMemRefresh(),
	}, testOptions(t))

	_, err := auther.Login(context.Background(), auth.LoginRequest{Identifier: "alice", Password: testPassword, HostTenant: "acme"})
	assert.NoError(t, err)

	_, err = auther.Login(context.Background(), auth.LoginRequest{Identifier: "alice", Password: testPassword, TenantHint: "acme"})
	assert.True(t, auth.IsAuthError(err, auth.ErrUserNotFound))
}

func TestLoginDegradesWhenSessionSaveFails(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	f.sessions.saveErr = errors.New("disk full")

	res := f.login(t, "alice", "fp-1")

	identity := f.verify(t, res.Token, "fp-1")
	assert.Empty(t, identity.SessionID, "token without a record carries no session id")
	assert.Zero(t, f.sessions.count())

	// refresh still works because the ledger keys on the lineage
	_, err := f.auther.Refresh(context.Background(), res.RefreshToken, "fp-1")
	assert.NoError(t, err)
}

func TestLogoutRevokesLineageWithoutSessionRecord(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	f.sessions.saveErr = errors.New("disk full")

	res := f.login(t, "alice", "fp-1")

	identity := f.verify(t, res.Token, "fp-1")
	require.Empty(t, identity.SessionID)
	require.NotEmpty(t, identity.LineageID, "lineage stays resolvable from the token")

	f.auther.Logout(context.Background(), res.Token, "")

	_, err := f.auther.Refresh(context.Background(), res.RefreshToken, "fp-1")
	assert.True(t, auth.IsAuthError(err, auth.ErrRefreshInvalidOrExpired))
}

func TestLoginWithMockedSessionStore(t *testing.T) {
	store := new(MockSessionStore)
	store.On("Save", mock.Anything, mock.AnythingOfType("*auth.SessionRecord")).
		Return(errors.New("connection refused")).Once()

	users := newMemUsers()
	users.add(t, "alice", auth.RoleAdmin, 7)

	auther := auth.NewAuthenticator(auth.Stores{
		Credentials:   users,
		Sessions:      store,
		RefreshTokens: newMemRefresh(),
	}, testOptions(t))

	res, err := auther.Login(context.Background(), auth.LoginRequest{Identifier: "alice", Password: testPassword})
	require.NoError(t, err)

	identity, err := auther.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Empty(t, identity.SessionID)

	store.AssertExpectations(t)
}

func TestVerifyRejectsUnknownSession(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	res := f.login(t, "alice", "fp-1")

	identity := f.verify(t, res.Token, "fp-1")
	_, err := f.sessions.DeleteLineage(context.Background(), 7, identity.UserID, identity.SessionID)
	require.NoError(t, err)

	_, err = f.auther.Verify(context.Background(), res.Token, "fp-1")
	assert.True(t, auth.IsAuthError(err, auth.ErrSessionNotFound))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	f := newFixture(t)

	_, err := f.auther.Verify(context.Background(), "", "")
	assert.True(t, auth.IsAuthError(err, auth.ErrTokenMissing))

	_, err = f.auther.Verify(context.Background(), "not.a.token", "")
	assert.True(t, auth.IsAuthError(err, auth.ErrTokenInvalidOrExpired))
}

func TestVerifyExpiredToken(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	res := f.login(t, "alice", "")

	later := func() time.Time { return time.Now().Add(f.opts.AccessTTL + time.Minute) }
	_, err := f.auther.WithClock(later).Verify(context.Background(), res.Token, "")
	assert.True(t, auth.IsAuthError(err, auth.ErrTokenInvalidOrExpired))
}

func TestRoleSwitchChain(t *testing.T) {
	f := newFixture(t)
	alice := f.users.add(t, "alice", auth.RoleAdmin, 7)
	ctx := context.Background()

	a := f.login(t, "alice", "fp-1")
	idA := f.verify(t, a.Token, "fp-1")
	assert.Equal(t, auth.RoleAdmin, idA.ActiveRole)
	assert.False(t, idA.IsRoleSwitched)

	b, err := f.auther.SwitchTo(ctx, idA, auth.RoleEmployee)
	require.NoError(t, err)
	assert.Equal(t, "/employee-dashboard", b.RedirectTo)
	assert.True(t, b.User.IsRoleSwitched)
	assert.Equal(t, auth.RoleEmployee, b.User.ActiveRole)
	assert.Equal(t, auth.RoleAdmin, b.User.Role)

	idB := f.verify(t, b.Token, "fp-1")
	assert.Equal(t, alice.ID, idB.UserID)
	assert.Equal(t, auth.RoleAdmin, idB.Role)
	assert.Equal(t, auth.RoleEmployee, idB.ActiveRole)
	assert.True(t, idB.IsRoleSwitched)
	assert.Equal(t, int64(7), idB.TenantID)
	assert.NotEqual(t, idA.SessionID, idB.SessionID)

	recB, ok := f.sessions.get(idB.SessionID)
	require.True(t, ok)
	assert.Equal(t, idA.SessionID, recB.LineageID)

	c, err := f.auther.SwitchToOriginal(ctx, idB)
	require.NoError(t, err)
	assert.Equal(t, "/admin-dashboard", c.RedirectTo)

	idC := f.verify(t, c.Token, "fp-1")
	assert.Equal(t, auth.RoleAdmin, idC.Role)
	assert.Equal(t, auth.RoleAdmin, idC.ActiveRole)
	assert.False(t, idC.IsRoleSwitched)
	assert.Equal(t, int64(7), idC.TenantID)

	switches := f.sink.byType(auth.ActivityEventRoleSwitch)
	require.Len(t, switches, 2)
	assert.Equal(t, "role_switch_to_employee", switches[0].Action)
	assert.Equal(t, "role_switch_to_admin", switches[1].Action)
	assert.Equal(t, true, switches[1].Metadata["was_already_switched"])

	// token A is still valid; switching does not revoke the previous token
	f.verify(t, a.Token, "fp-1")
}

func TestRoleSwitchRootCanActAsAnyLowerRole(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "rita", auth.RoleRoot, 9)
	ctx := context.Background()

	id := f.verify(t, f.login(t, "rita", "").Token, "")

	asAdmin, err := f.auther.SwitchTo(ctx, id, auth.RoleAdmin)
	require.NoError(t, err)
	idAdmin := f.verify(t, asAdmin.Token, "")

	// switching from an already switched token is decided by the legal role
	asEmployee, err := f.auther.SwitchTo(ctx, idAdmin, auth.RoleEmployee)
	require.NoError(t, err)
	idEmployee := f.verify(t, asEmployee.Token, "")
	assert.Equal(t, auth.RoleRoot, idEmployee.Role)
	assert.Equal(t, auth.RoleEmployee, idEmployee.ActiveRole)
	assert.Equal(t, int64(9), idEmployee.TenantID)
}

func TestRoleSwitchForbiddenTransitions(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	f.users.add(t, "bob", auth.RoleEmployee, 7)
	ctx := context.Background()

	bob := f.verify(t, f.login(t, "bob", "").Token, "")
	_, err := f.auther.SwitchTo(ctx, bob, auth.RoleAdmin)
	assert.True(t, auth.IsAuthError(err, auth.ErrForbiddenTransition))
	_, err = f.auther.SwitchTo(ctx, bob, auth.RoleEmployee)
	assert.True(t, auth.IsAuthError(err, auth.ErrForbiddenTransition), "employee has no outgoing edges")

	alice := f.verify(t, f.login(t, "alice", "").Token, "")
	_, err = f.auther.SwitchTo(ctx, alice, auth.RoleRoot)
	assert.True(t, auth.IsAuthError(err, auth.ErrForbiddenTransition))
	_, err = f.auther.SwitchTo(ctx, alice, auth.Role("superuser"))
	assert.True(t, auth.IsAuthError(err, auth.ErrForbiddenTransition))

	assert.Empty(t, f.sink.byType(auth.ActivityEventRoleSwitch))
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	f.users.add(t, "bob", auth.RoleEmployee, 7)

	alice := f.verify(t, f.login(t, "alice", "").Token, "")
	status := f.auther.Status(alice)
	assert.Equal(t, auth.RoleAdmin, status.LegalRole)
	assert.Equal(t, auth.RoleAdmin, status.ActiveRole)
	assert.False(t, status.IsRoleSwitched)
	assert.True(t, status.CanSwitch)

	bob := f.verify(t, f.login(t, "bob", "").Token, "")
	assert.False(t, f.auther.Status(bob).CanSwitch)

	assert.Equal(t, auth.RoleStatus{}, f.auther.Status(nil))
}

func TestRefreshIsSingleUse(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	ctx := context.Background()

	login := f.login(t, "alice", "fp-1")

	refreshed, err := f.auther.Refresh(ctx, login.RefreshToken, "fp-1")
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	entry, ok := f.refresh.byHash(auth.HashRefreshSecret(login.RefreshToken))
	require.True(t, ok)
	assert.True(t, entry.Revoked)
	assert.NotNil(t, entry.RevokedAt)

	_, err = f.auther.Refresh(ctx, login.RefreshToken, "fp-1")
	assert.True(t, auth.IsAuthError(err, auth.ErrRefreshInvalidOrExpired))

	_, err = f.auther.Refresh(ctx, "", "")
	assert.True(t, auth.IsAuthError(err, auth.ErrRefreshInvalidOrExpired))

	_, err = f.auther.Refresh(ctx, "never-issued-secret-value", "")
	assert.True(t, auth.IsAuthError(err, auth.ErrRefreshInvalidOrExpired))
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	login := f.login(t, "alice", "")

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.auther.Refresh(context.Background(), login.RefreshToken, ""); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
}

func TestRefreshDropsImpersonation(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	ctx := context.Background()

	login := f.login(t, "alice", "fp-1")
	idA := f.verify(t, login.Token, "fp-1")
	_, err := f.auther.SwitchTo(ctx, idA, auth.RoleEmployee)
	require.NoError(t, err)

	refreshed, err := f.auther.Refresh(ctx, login.RefreshToken, "fp-1")
	require.NoError(t, err)

	id := f.verify(t, refreshed.Token, "fp-1")
	assert.Equal(t, auth.RoleAdmin, id.ActiveRole)
	assert.False(t, id.IsRoleSwitched)

	record, ok := f.sessions.get(id.SessionID)
	require.True(t, ok)
	assert.Equal(t, idA.SessionID, record.LineageID)
}

func TestRefreshRejectsDisabledUser(t *testing.T) {
	f := newFixture(t)
	alice := f.users.add(t, "alice", auth.RoleAdmin, 7)
	login := f.login(t, "alice", "")

	f.users.mu.Lock()
	f.users.rows[alice.ID].IsActive = false
	f.users.mu.Unlock()

	_, err := f.auther.Refresh(context.Background(), login.RefreshToken, "")
	assert.True(t, auth.IsAuthError(err, auth.ErrRefreshInvalidOrExpired))
}

func TestRefreshExpired(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	login := f.login(t, "alice", "")

	later := func() time.Time { return time.Now().Add(f.opts.RefreshTTL + time.Hour) }
	_, err := f.auther.WithClock(later).Refresh(context.Background(), login.RefreshToken, "")
	assert.True(t, auth.IsAuthError(err, auth.ErrRefreshInvalidOrExpired))
}

func TestLogoutClosesLineage(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	f.users.add(t, "bob", auth.RoleEmployee, 7)
	ctx := context.Background()

	login := f.login(t, "alice", "fp-1")
	idA := f.verify(t, login.Token, "fp-1")
	switched, err := f.auther.SwitchTo(ctx, idA, auth.RoleEmployee)
	require.NoError(t, err)

	other := f.login(t, "bob", "")

	f.auther.Logout(ctx, switched.Token, "")

	_, err = f.auther.Verify(ctx, login.Token, "fp-1")
	assert.True(t, auth.IsAuthError(err, auth.ErrSessionNotFound))
	_, err = f.auther.Verify(ctx, switched.Token, "fp-1")
	assert.True(t, auth.IsAuthError(err, auth.ErrSessionNotFound))
	_, err = f.auther.Refresh(ctx, login.RefreshToken, "fp-1")
	assert.True(t, auth.IsAuthError(err, auth.ErrRefreshInvalidOrExpired))

	// unrelated sessions survive
	f.verify(t, other.Token, "")

	require.Len(t, f.sink.byType(auth.ActivityEventLogout), 1)
}

func TestLogoutIsBestEffort(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	login := f.login(t, "alice", "")

	assert.NotPanics(t, func() {
		f.auther.Logout(context.Background(), "", "")
		f.auther.Logout(context.Background(), "garbage", "also-garbage")
	})

	// the refresh secret alone is enough to revoke it
	f.auther.Logout(context.Background(), "", login.RefreshToken)
	_, err := f.auther.Refresh(context.Background(), login.RefreshToken, "")
	assert.True(t, auth.IsAuthError(err, auth.ErrRefreshInvalidOrExpired))
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	f.users.add(t, "bob", auth.RoleEmployee, 7)
	ctx := context.Background()

	admin := f.verify(t, f.login(t, "alice", "").Token, "")

	created, err := f.auther.Register(ctx, admin, auth.RegisterRequest{
		Username: "carol",
		Email:    "Carol@Example.com",
		Password: "long-enough-password",
		Role:     auth.RoleEmployee,
	})
	require.NoError(t, err)
	assert.Equal(t, "carol", created.Username)
	assert.Equal(t, "carol@example.com", created.Email)
	assert.Equal(t, int64(7), created.TenantID)
	assert.True(t, created.IsActive)

	_, err = f.auther.Login(ctx, auth.LoginRequest{Identifier: "carol", Password: "long-enough-password"})
	assert.NoError(t, err)

	t.Run("role above actor", func(t *testing.T) {
		_, err := f.auther.Register(ctx, admin, auth.RegisterRequest{
			Username: "rooty", Email: "rooty@example.com", Password: "long-enough-password", Role: auth.RoleRoot,
		})
		assert.True(t, auth.IsAuthError(err, auth.ErrRoleNotAssignable))
	})

	t.Run("employee cannot register", func(t *testing.T) {
		employee := f.verify(t, f.login(t, "bob", "").Token, "")
		_, err := f.auther.Register(ctx, employee, auth.RegisterRequest{
			Username: "dave", Email: "dave@example.com", Password: "long-enough-password", Role: auth.RoleEmployee,
		})
		assert.True(t, auth.IsAuthError(err, auth.ErrRoleNotAssignable))
	})

	t.Run("switched admin acts as employee", func(t *testing.T) {
		switched, err := f.auther.SwitchTo(ctx, admin, auth.RoleEmployee)
		require.NoError(t, err)
		asEmployee := f.verify(t, switched.Token, "")
		_, err = f.auther.Register(ctx, asEmployee, auth.RegisterRequest{
			Username: "erin", Email: "erin@example.com", Password: "long-enough-password", Role: auth.RoleEmployee,
		})
		assert.True(t, auth.IsAuthError(err, auth.ErrRoleNotAssignable))
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := f.auther.Register(ctx, admin, auth.RegisterRequest{
			Username: "carol", Email: "other@example.com", Password: "long-enough-password", Role: auth.RoleEmployee,
		})
		assert.True(t, auth.IsAuthError(err, auth.ErrIdentityConflict))
		assert.Equal(t, auth.TextCodeIdentityConflict, auth.PublicError(err).TextCode)
	})

	t.Run("invalid payload", func(t *testing.T) {
		_, err := f.auther.Register(ctx, admin, auth.RegisterRequest{Username: "x", Email: "nope", Password: "short"})
		require.Error(t, err)
		assert.True(t, auth.HasTextCode(err, "INVALID_REGISTRATION"))
	})

	t.Run("legacy token without tenant", func(t *testing.T) {
		legacy := *admin
		legacy.TenantID = 0
		_, err := f.auther.Register(ctx, &legacy, auth.RegisterRequest{
			Username: "frank", Email: "frank@example.com", Password: "long-enough-password", Role: auth.RoleEmployee,
		})
		assert.True(t, auth.IsAuthError(err, auth.ErrPermissionDenied))
	})

	t.Run("no actor", func(t *testing.T) {
		_, err := f.auther.Register(ctx, nil, auth.RegisterRequest{})
		assert.True(t, auth.IsAuthError(err, auth.ErrTokenMissing))
	})
}

func TestRequestPasswordReset(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	f.users.add(t, "dora", auth.RoleEmployee, 7, func(u *auth.User) { u.IsActive = false })

	var delivered []string
	f.auther.WithPasswordResetHook(func(_ context.Context, user auth.PublicUser) error {
		delivered = append(delivered, user.Username)
		return nil
	})

	ctx := context.Background()
	f.auther.RequestPasswordReset(ctx, auth.PasswordResetRequest{Identifier: "alice"})
	f.auther.RequestPasswordReset(ctx, auth.PasswordResetRequest{Identifier: "alice", TenantHint: "globex"})
	f.auther.RequestPasswordReset(ctx, auth.PasswordResetRequest{Identifier: "alice", HostTenant: "globex"})
	f.auther.RequestPasswordReset(ctx, auth.PasswordResetRequest{Identifier: "alice", HostTenant: "auth"})
	f.auther.RequestPasswordReset(ctx, auth.PasswordResetRequest{Identifier: "dora"})
	f.auther.RequestPasswordReset(ctx, auth.PasswordResetRequest{Identifier: "nobody"})

	assert.Equal(t, []string{"alice", "alice"}, delivered)
	assert.Len(t, f.sink.byType(auth.ActivityEventPasswordResetRequest), 2)
}

func TestUnexpectedStoreErrorBecomesServerError(t *testing.T) {
	f := newFixture(t)
	f.users.err = errors.New("connection reset by peer")

	_, err := f.auther.Login(context.Background(), auth.LoginRequest{Identifier: "alice", Password: testPassword})
	require.Error(t, err)
	assert.True(t, auth.IsAuthError(err, auth.ErrServer))
	assert.NotContains(t, err.Error(), "connection reset")
}

func TestSideEffectFailuresDoNotFailLogin(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	f.attempts.err = errors.New("attempts table locked")
	f.sink.err = errors.New("audit unavailable")

	res := f.login(t, "alice", "")
	assert.NotEmpty(t, res.Token)
}

func TestPruneExpired(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "alice", auth.RoleAdmin, 7)
	f.login(t, "alice", "")
	f.login(t, "alice", "")

	res, err := f.auther.PruneExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Sessions)
	assert.Zero(t, res.RefreshTokens)

	later := func() time.Time { return time.Now().Add(f.opts.RefreshTTL + time.Hour) }
	res, err = f.auther.WithClock(later).PruneExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Sessions)
	assert.Equal(t, int64(2), res.RefreshTokens)
}
