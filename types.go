package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger is the logging contract used across the package. Arguments after the
// message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// CredentialStore resolves identities. Implementations must return
// ErrRecordNotFound when no row matches.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, tenantID, id int64) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
}

// TenantResolver maps a tenant subdomain hint to a tenant id.
type TenantResolver interface {
	ResolveSubdomain(ctx context.Context, subdomain string) (int64, error)
}

// SessionStore persists session records used to cross check session
// correlators and device fingerprints.
type SessionStore interface {
	Save(ctx context.Context, record *SessionRecord) error
	FindActive(ctx context.Context, tenantID, userID int64, sessionID string, now time.Time) (*SessionRecord, error)
	DeleteLineage(ctx context.Context, tenantID, userID int64, lineageID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RefreshTokenStore is the refresh token ledger.
type RefreshTokenStore interface {
	Create(ctx context.Context, token *RefreshToken) error
	FindActiveByHash(ctx context.Context, hash string, now time.Time) (*RefreshToken, error)
	// RevokeIfActive flips the revoked flag only when it is still false. It
	// reports whether this call performed the revocation.
	RevokeIfActive(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	RevokeLineage(ctx context.Context, tenantID, userID int64, lineageID string, at time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// LoginAttemptStore records one row per login attempt.
type LoginAttemptStore interface {
	RecordAttempt(ctx context.Context, attempt *LoginAttempt) error
}

// AuditTrail reads back audit rows. Reads are always tenant scoped.
type AuditTrail interface {
	ListByUser(ctx context.Context, tenantID, userID int64, limit int) ([]AuditLog, error)
}

// PasswordAuthenticator hashes and compares passwords.
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// PasswordResetHook hands a reset request to an external delivery system.
type PasswordResetHook func(ctx context.Context, user PublicUser) error

// Stores groups the persistence collaborators of the Auther.
type Stores struct {
	Credentials   CredentialStore
	Tenants       TenantResolver
	Sessions      SessionStore
	RefreshTokens RefreshTokenStore
	LoginAttempts LoginAttemptStore
}

// LoginRequest is the input of Auther.Login.
type LoginRequest struct {
	Identifier  string
	Password    string
	Fingerprint string
	// TenantHint is an explicit tenant subdomain and must match.
	TenantHint string
	// HostTenant is the first label of the request host. It only applies
	// when it names a known tenant, so API hosts like auth.example.com
	// pass through.
	HostTenant string
	IP         string
}

// PasswordResetRequest asks for reset instructions. Hints follow the same
// rules as LoginRequest.
type PasswordResetRequest struct {
	Identifier string
	TenantHint string
	HostTenant string
}

// AuthResult is returned by login and refresh.
type AuthResult struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refreshToken"`
	User         PublicUser `json:"user"`
	RedirectTo   string     `json:"redirectTo,omitempty"`
}

// SwitchResult is returned by role switch operations.
type SwitchResult struct {
	Token      string     `json:"token"`
	User       PublicUser `json:"user"`
	RedirectTo string     `json:"redirectTo,omitempty"`
}

// RoleStatus is the non mutating view of the impersonation state.
type RoleStatus struct {
	UserID         int64 `json:"userId"`
	TenantID       int64 `json:"tenantId"`
	LegalRole      Role  `json:"legalRole"`
	ActiveRole     Role  `json:"activeRole"`
	IsRoleSwitched bool  `json:"isRoleSwitched"`
	CanSwitch      bool  `json:"canSwitch"`
}

// RegisterRequest is the input of Auther.Register.
type RegisterRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Role         Role   `json:"role"`
	DepartmentID *int64 `json:"departmentId,omitempty"`
}
