package auth_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-tenant-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct-horse-battery"

var testSecret = strings.Repeat("s", auth.MinSigningSecretLength)

func testOptions(t *testing.T, configure ...func(*auth.Options)) *auth.Options {
	t.Helper()

	opts := auth.DefaultOptions()
	opts.SigningSecret = testSecret
	opts.BcryptCost = 4
	for _, fn := range configure {
		fn(opts)
	}
	require.NoError(t, opts.Validate(nil))
	return opts
}

// memUsers implements auth.CredentialStore.
type memUsers struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*auth.User
	err    error
}

func newMemUsers() *memUsers {
	return &memUsers{rows: map[int64]*auth.User{}}
}

func (m *memUsers) add(t *testing.T, username string, role auth.Role, tenantID int64, mutate ...func(*auth.User)) *auth.User {
	t.Helper()

	hash, err := auth.NewBcryptHasher(4).HashPassword(testPassword)
	require.NoError(t, err)

	tid := tenantID
	u := &auth.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		TenantID:     &tid,
		IsActive:     true,
	}
	for _, fn := range mutate {
		fn(u)
	}
	created, err := m.Create(context.Background(), u)
	require.NoError(t, err)
	return created
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	return m.find(func(u *auth.User) bool { return u.Username == username })
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	return m.find(func(u *auth.User) bool { return u.Email == email })
}

func (m *memUsers) FindByID(_ context.Context, tenantID, id int64) (*auth.User, error) {
	return m.find(func(u *auth.User) bool { return u.ID == id && u.Tenant() == tenantID })
}

func (m *memUsers) Create(_ context.Context, user *auth.User) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.rows {
		if u.Username == user.Username || u.Email == user.Email {
			return nil, auth.ErrIdentityConflict
		}
	}
	m.nextID++
	cp := *user
	cp.ID = m.nextID
	m.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memUsers) find(match func(*auth.User) bool) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.rows {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrRecordNotFound
}

// memTenants implements auth.TenantResolver.
type memTenants map[string]int64

func (m memTenants) ResolveSubdomain(_ context.Context, subdomain string) (int64, error) {
	if id, ok := m[subdomain]; ok {
		return id, nil
	}
	return 0, auth.ErrRecordNotFound
}

// memSessions implements auth.SessionStore.
type memSessions struct {
	mu      sync.Mutex
	rows    map[string]*auth.SessionRecord
	saveErr error
}

func newMemSessions() *memSessions {
	return &memSessions{rows: map[string]*auth.SessionRecord{}}
}

func (m *memSessions) Save(_ context.Context, record *auth.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *record
	m.rows[record.SessionID] = &cp
	return nil
}

func (m *memSessions) FindActive(_ context.Context, tenantID, userID int64, sessionID string, now time.Time) (*auth.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[sessionID]
	if !ok || r.TenantID != tenantID || r.UserID != userID || !r.ExpiresAt.After(now) {
		return nil, auth.ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memSessions) DeleteLineage(_ context.Context, tenantID, userID int64, lineageID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.rows {
		if r.TenantID == tenantID && r.UserID == userID && r.LineageID == lineageID {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.rows {
		if !r.ExpiresAt.After(now) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memSessions) get(sessionID string) (*auth.SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[sessionID]
	return r, ok
}

// memRefresh implements auth.RefreshTokenStore.
type memRefresh struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*auth.RefreshToken
}

func newMemRefresh() *memRefresh {
	return &memRefresh{rows: map[uuid.UUID]*auth.RefreshToken{}}
}

func (m *memRefresh) Create(_ context.Context, token *auth.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.rows[token.ID] = &cp
	return nil
}

func (m *memRefresh) FindActiveByHash(_ context.Context, hash string, now time.Time) (*auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.TokenHash == hash && !r.Revoked && r.ExpiresAt.After(now) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, auth.ErrRecordNotFound
}

func (m *memRefresh) RevokeIfActive(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.Revoked {
		return false, nil
	}
	r.Revoked = true
	r.RevokedAt = &at
	return true, nil
}

func (m *memRefresh) RevokeLineage(_ context.Context, tenantID, userID int64, lineageID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if r.TenantID == tenantID && r.UserID == userID && r.LineageID == lineageID && !r.Revoked {
			r.Revoked = true
			r.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memRefresh) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.rows {
		if !r.ExpiresAt.After(now) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memRefresh) byHash(hash string) (*auth.RefreshToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.TokenHash == hash {
			cp := *r
			return &cp, true
		}
	}
	return nil, false
}

// memAttempts implements auth.LoginAttemptStore.
type memAttempts struct {
	mu   sync.Mutex
	rows []auth.LoginAttempt
	err  error
}

func (m *memAttempts) RecordAttempt(_ context.Context, attempt *auth.LoginAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, *attempt)
	return nil
}

func (m *memAttempts) all() []auth.LoginAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]auth.LoginAttempt(nil), m.rows...)
}

// recordingSink collects activity events.
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
	err    error
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) byType(eventType auth.ActivityEventType) []auth.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.ActivityEvent
	for _, e := range s.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// MockSessionStore is a testify mock for failure injection.
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Save(ctx context.Context, record *auth.SessionRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockSessionStore) FindActive(ctx context.Context, tenantID, userID int64, sessionID string, now time.Time) (*auth.SessionRecord, error) {
	args := m.Called(ctx, tenantID, userID, sessionID, now)
	record, _ := args.Get(0).(*auth.SessionRecord)
	return record, args.Error(1)
}

func (m *MockSessionStore) DeleteLineage(ctx context.Context, tenantID, userID int64, lineageID string) (int64, error) {
	args := m.Called(ctx, tenantID, userID, lineageID)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MockSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return int64(args.Int(0)), args.Error(1)
}

// fixture wires an Auther over in-memory stores.
type fixture struct {
	users    *memUsers
	tenants  memTenants
	sessions *memSessions
	refresh  *memRefresh
	attempts *memAttempts
	sink     *recordingSink
	opts     *auth.Options
	auther   *auth.Auther
}

func newFixture(t *testing.T, configure ...func(*auth.Options)) *fixture {
	t.Helper()

	f := &fixture{
		users:    newMemUsers(),
		tenants:  memTenants{"acme": 7, "globex": 9},
		sessions: newMemSessions(),
		refresh:  newMemRefresh(),
		attempts: &memAttempts{},
		sink:     &recordingSink{},
		opts:     testOptions(t, configure...),
	}

	f.auther = auth.NewAuthenticator(auth.Stores{
		Credentials:   f.users,
		Tenants:       f.tenants,
		Sessions:      f.sessions,
		RefreshTokens: f.refresh,
		LoginAttempts: f.attempts,
	}, f.opts).WithActivitySink(f.sink)

	return f
}

func (f *fixture) login(t *testing.T, identifier, fingerprint string) *auth.AuthResult {
	t.Helper()

	res, err := f.auther.Login(context.Background(), auth.LoginRequest{
		Identifier:  identifier,
		Password:    testPassword,
		Fingerprint: fingerprint,
		IP:          "10.0.0.1",
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) verify(t *testing.T, token, fingerprint string) *auth.IdentityContext {
	t.Helper()

	identity, err := f.auther.Verify(context.Background(), token, fingerprint)
	require.NoError(t, err)
	return identity
}
