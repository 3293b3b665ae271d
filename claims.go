package auth

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim names on the wire.
const (
	ClaimUserID         = "id"
	ClaimUsername       = "username"
	ClaimRole           = "role"
	ClaimTenantID       = "tenant_id"
	ClaimFingerprint    = "fingerprint"
	ClaimSessionID      = "sessionId"
	ClaimLineageID      = "lineageId"
	ClaimActiveRole     = "activeRole"
	ClaimIsRoleSwitched = "isRoleSwitched"
)

// JWTClaims is the signed claim set. Impersonation fields are omitted for
// tokens issued at login and refresh.
type JWTClaims struct {
	jwt.RegisteredClaims
	UserID         int64  `json:"id"`
	Username       string `json:"username"`
	Role           Role   `json:"role"`
	TenantID       int64  `json:"tenant_id"`
	Fingerprint    string `json:"fingerprint,omitempty"`
	SessionID      string `json:"sessionId"`
	LineageID      string `json:"lineageId,omitempty"`
	ActiveRole     Role   `json:"activeRole,omitempty"`
	IsRoleSwitched bool   `json:"isRoleSwitched,omitempty"`
}

// TokenSubject is the input used to mint a session token.
type TokenSubject struct {
	UserID         int64
	Username       string
	Role           Role
	TenantID       int64
	Fingerprint    string
	SessionID      string
	LineageID      string
	ActiveRole     Role
	IsRoleSwitched bool
}

// IdentityContext is the normalized identity attached to a verified request.
type IdentityContext struct {
	UserID         int64     `json:"userId"`
	Username       string    `json:"username"`
	Role           Role      `json:"role"`
	ActiveRole     Role      `json:"activeRole"`
	IsRoleSwitched bool      `json:"isRoleSwitched"`
	TenantID       int64     `json:"tenantId"`
	Fingerprint    string    `json:"fingerprint,omitempty"`
	SessionID      string    `json:"sessionId,omitempty"`
	LineageID      string    `json:"lineageId,omitempty"`
	IssuedAt       time.Time `json:"issuedAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Subject returns the subject id as a string.
func (c *IdentityContext) Subject() string {
	return strconv.FormatInt(c.UserID, 10)
}

// TenantKey returns the tenant id as a string, used by the RBAC layer.
func (c *IdentityContext) TenantKey() string {
	return strconv.FormatInt(c.TenantID, 10)
}

// ActiveRoleName is the role used for authorization decisions.
func (c *IdentityContext) ActiveRoleName() string {
	return string(c.ActiveRole)
}

// SessionKey returns the session correlator, if any.
func (c *IdentityContext) SessionKey() string {
	return c.SessionID
}

// Status is the non mutating role switch view of the identity.
func (c *IdentityContext) Status() RoleStatus {
	return RoleStatus{
		UserID:         c.UserID,
		TenantID:       c.TenantID,
		LegalRole:      c.Role,
		ActiveRole:     c.ActiveRole,
		IsRoleSwitched: c.IsRoleSwitched,
		CanSwitch:      c.Role.CanSwitch(),
	}
}

// identityFromMapClaims normalizes decoded claims. Ids are accepted as
// numbers or numeric strings, activeRole defaults to role, isRoleSwitched to
// false and a missing tenant_id to 0.
func identityFromMapClaims(claims jwt.MapClaims) (*IdentityContext, error) {
	userID, ok, err := coerceInt64(claims[ClaimUserID])
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", ClaimUserID, err)
	}
	if !ok {
		return nil, fmt.Errorf("claim %s: missing", ClaimUserID)
	}

	role, valid := ParseRole(stringClaim(claims, ClaimRole))
	if !valid {
		return nil, fmt.Errorf("claim %s: invalid role", ClaimRole)
	}

	tenantID, _, err := coerceInt64(claims[ClaimTenantID])
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", ClaimTenantID, err)
	}

	activeRole := role
	if raw := stringClaim(claims, ClaimActiveRole); raw != "" {
		parsed, ok := ParseRole(raw)
		if !ok {
			return nil, fmt.Errorf("claim %s: invalid role", ClaimActiveRole)
		}
		activeRole = parsed
	}

	if activeRole != role && !role.CanSwitchTo(activeRole) {
		return nil, fmt.Errorf("claim %s: %s cannot act as %s", ClaimActiveRole, role, activeRole)
	}

	identity := &IdentityContext{
		UserID:         userID,
		Username:       stringClaim(claims, ClaimUsername),
		Role:           role,
		ActiveRole:     activeRole,
		IsRoleSwitched: coerceBool(claims[ClaimIsRoleSwitched]),
		TenantID:       tenantID,
		Fingerprint:    stringClaim(claims, ClaimFingerprint),
		SessionID:      stringClaim(claims, ClaimSessionID),
		LineageID:      stringClaim(claims, ClaimLineageID),
	}

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		identity.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		identity.ExpiresAt = exp.Time
	}

	return identity, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func coerceInt64(raw any) (int64, bool, error) {
	switch v := raw.(type) {
	case nil:
		return 0, false, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil || f != float64(int64(f)) {
				return 0, false, fmt.Errorf("not an integer: %s", v)
			}
			n = int64(f)
		}
		return n, true, nil
	case float64:
		if v != float64(int64(v)) {
			return 0, false, fmt.Errorf("not an integer: %v", v)
		}
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case int:
		return int64(v), true, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("not an integer: %q", v)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("unsupported type %T", raw)
	}
}

func coerceBool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	case json.Number:
		n, err := v.Int64()
		return err == nil && n != 0
	case float64:
		return v != 0
	default:
		return false
	}
}
