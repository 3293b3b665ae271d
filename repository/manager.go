package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/activitymap"
	"github.com/uptrace/bun"
)

// Manager groups the bun stores over one database handle.
type Manager struct {
	db            *bun.DB
	users         *Users
	tenants       *Tenants
	sessions      *Sessions
	refreshTokens *RefreshTokens
	loginAttempts *LoginAttempts
	auditLogs     *AuditLogs
}

// NewRepositoryManager builds every store over db. auditOpts tune how
// activity events are normalized before they are stored.
func NewRepositoryManager(db *bun.DB, auditOpts ...activitymap.Option) *Manager {
	return &Manager{
		db:            db,
		users:         NewUsers(db),
		tenants:       NewTenants(db),
		sessions:      NewSessions(db),
		refreshTokens: NewRefreshTokens(db),
		loginAttempts: NewLoginAttempts(db),
		auditLogs:     NewAuditLogs(db, auditOpts...),
	}
}

func (m *Manager) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.refreshTokens == nil {
		return errors.New("repository refresh tokens should be initialized")
	}

	return nil
}

func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// RunInTx runs f in a transaction unless ctx is already done.
func (m *Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

// Stores wires the bun stores into the auth facade.
func (m *Manager) Stores() auth.Stores {
	return auth.Stores{
		Credentials:   m.users,
		Tenants:       m.tenants,
		Sessions:      m.sessions,
		RefreshTokens: m.refreshTokens,
		LoginAttempts: m.loginAttempts,
	}
}

func (m *Manager) Users() *Users                 { return m.users }
func (m *Manager) Tenants() *Tenants             { return m.tenants }
func (m *Manager) Sessions() *Sessions           { return m.sessions }
func (m *Manager) RefreshTokens() *RefreshTokens { return m.refreshTokens }
func (m *Manager) LoginAttempts() *LoginAttempts { return m.loginAttempts }
func (m *Manager) AuditLogs() *AuditLogs         { return m.auditLogs }
