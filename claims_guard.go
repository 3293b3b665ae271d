package auth

import (
	"fmt"
)

// immutableIdentitySnapshot holds the fields a role switch must carry over
// unchanged.
type immutableIdentitySnapshot struct {
	userID      int64
	username    string
	role        Role
	tenantID    int64
	fingerprint string
}

func captureImmutableIdentity(identity *IdentityContext) immutableIdentitySnapshot {
	return immutableIdentitySnapshot{
		userID:      identity.UserID,
		username:    identity.Username,
		role:        identity.Role,
		tenantID:    identity.TenantID,
		fingerprint: identity.Fingerprint,
	}
}

func (snap immutableIdentitySnapshot) validate(next *IdentityContext) error {
	if next == nil {
		return immutableClaimViolation(ClaimUserID)
	}

	if next.UserID != snap.userID {
		return immutableClaimViolation(ClaimUserID)
	}

	if next.Username != snap.username {
		return immutableClaimViolation(ClaimUsername)
	}

	if next.Role != snap.role {
		return immutableClaimViolation(ClaimRole)
	}

	if next.TenantID != snap.tenantID {
		return immutableClaimViolation(ClaimTenantID)
	}

	if next.Fingerprint != snap.fingerprint {
		return immutableClaimViolation(ClaimFingerprint)
	}

	return nil
}

func immutableClaimViolation(field string) error {
	clone := ErrImmutableClaimMutation.Clone()
	if clone == nil {
		return ErrImmutableClaimMutation
	}
	clone.Message = fmt.Sprintf("immutable claim mutated: %s", field)
	clone.Source = ErrImmutableClaimMutation
	return clone.WithMetadata(map[string]any{"claim": field})
}
