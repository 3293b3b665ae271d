package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the identity record owned by the credential store.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	Username      string     `bun:"username,notnull,unique" json:"username"`
	Email         string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Role          Role       `bun:"role,notnull" json:"role"`
	TenantID      *int64     `bun:"tenant_id" json:"tenant_id,omitempty"`
	DepartmentID  *int64     `bun:"department_id" json:"department_id,omitempty"`
	IsActive      bool       `bun:"is_active,notnull,default:true" json:"is_active"`
	IsArchived    bool       `bun:"is_archived,notnull,default:false" json:"is_archived"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Tenant returns the tenant id or 0 for identities not yet provisioned.
func (u *User) Tenant() int64 {
	if u == nil || u.TenantID == nil {
		return 0
	}
	return *u.TenantID
}

// Public strips the password hash.
func (u *User) Public() PublicUser {
	if u == nil {
		return PublicUser{}
	}
	return PublicUser{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
		TenantID:     u.Tenant(),
		DepartmentID: u.DepartmentID,
		IsActive:     u.IsActive,
		IsArchived:   u.IsArchived,
	}
}

// PublicUser is the user view returned to callers.
type PublicUser struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	Role           Role   `json:"role"`
	ActiveRole     Role   `json:"activeRole,omitempty"`
	IsRoleSwitched bool   `json:"isRoleSwitched"`
	TenantID       int64  `json:"tenant_id"`
	DepartmentID   *int64 `json:"department_id,omitempty"`
	IsActive       bool   `json:"is_active"`
	IsArchived     bool   `json:"is_archived"`
}

// Tenant maps a subdomain to a tenant id.
type Tenant struct {
	bun.BaseModel `bun:"table:tenants,alias:tnt"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	Subdomain     string     `bun:"subdomain,notnull,unique" json:"subdomain"`
	Name          string     `bun:"name" json:"name"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// SessionRecord binds a session correlator to a device fingerprint. Records
// minted by role switch or refresh share the LineageID of the login record.
type SessionRecord struct {
	bun.BaseModel `bun:"table:user_sessions,alias:uss"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	TenantID      int64      `bun:"tenant_id,notnull" json:"tenant_id"`
	UserID        int64      `bun:"user_id,notnull" json:"user_id"`
	SessionID     string     `bun:"session_id,notnull,unique" json:"session_id"`
	LineageID     string     `bun:"lineage_id,notnull" json:"lineage_id"`
	Fingerprint   string     `bun:"fingerprint" json:"fingerprint"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// RefreshToken is a ledger entry. The secret itself is never stored.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rft"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	TenantID      int64      `bun:"tenant_id,notnull" json:"tenant_id"`
	UserID        int64      `bun:"user_id,notnull" json:"user_id"`
	LineageID     string     `bun:"lineage_id" json:"lineage_id"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	Revoked       bool       `bun:"revoked,notnull,default:false" json:"revoked"`
	RevokedAt     *time.Time `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// LoginAttempt is the audit row written for every login.
type LoginAttempt struct {
	bun.BaseModel `bun:"table:login_attempts,alias:lat"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Identifier    string    `bun:"identifier,notnull" json:"identifier"`
	IP            string    `bun:"ip_address" json:"ip_address"`
	Success       bool      `bun:"success,notnull" json:"success"`
	Reason        string    `bun:"reason" json:"reason,omitempty"`
	AttemptedAt   time.Time `bun:"attempted_at,notnull" json:"attempted_at"`
}

// AuditLog is the write only audit table row.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:adl"`
	ID            uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	TenantID      int64          `bun:"tenant_id" json:"tenant_id"`
	UserID        int64          `bun:"user_id" json:"user_id"`
	ActorID       string         `bun:"actor_id" json:"actor_id"`
	Action        string         `bun:"action,notnull" json:"action"`
	ObjectType    string         `bun:"object_type" json:"object_type"`
	ObjectID      string         `bun:"object_id" json:"object_id,omitempty"`
	Channel       string         `bun:"channel" json:"channel,omitempty"`
	Details       map[string]any `bun:"details,type:jsonb" json:"details,omitempty"`
	CreatedAt     time.Time      `bun:"created_at,notnull" json:"created_at"`
}
