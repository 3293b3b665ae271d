package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// refreshSecretBytes is 256 bits of entropy.
const refreshSecretBytes = 32

// RefreshLedger mints and consumes single use refresh secrets. Only the
// SHA-256 hash of a secret is stored.
type RefreshLedger struct {
	store RefreshTokenStore
	ttl   time.Duration
	now   func() time.Time
}

// MintRequest describes the owner of a new refresh secret.
type MintRequest struct {
	TenantID  int64
	UserID    int64
	LineageID string
}

// NewRefreshLedger builds a ledger with entries living ttl.
func NewRefreshLedger(store RefreshTokenStore, ttl time.Duration) *RefreshLedger {
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	return &RefreshLedger{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

func (l *RefreshLedger) WithClock(now func() time.Time) *RefreshLedger {
	if now != nil {
		l.now = now
	}
	return l
}

// HashRefreshSecret returns the hex SHA-256 digest stored in the ledger.
func HashRefreshSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func newRefreshSecret() (string, error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Mint creates a ledger entry and returns the secret. The secret is never
// persisted and cannot be recovered.
func (l *RefreshLedger) Mint(ctx context.Context, req MintRequest) (string, error) {
	secret, err := newRefreshSecret()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate refresh secret")
	}

	entry := &RefreshToken{
		ID:        uuid.New(),
		TenantID:  req.TenantID,
		UserID:    req.UserID,
		LineageID: req.LineageID,
		TokenHash: HashRefreshSecret(secret),
		ExpiresAt: l.now().Add(l.ttl),
	}

	if err := l.store.Create(ctx, entry); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store refresh token")
	}

	return secret, nil
}

// Consume looks the secret up among live entries and revokes it. Only the
// caller whose conditional revoke succeeds gets the entry back; every other
// outcome is ErrRefreshInvalidOrExpired.
func (l *RefreshLedger) Consume(ctx context.Context, secret string) (*RefreshToken, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrRefreshInvalidOrExpired
	}

	now := l.now()
	entry, err := l.store.FindActiveByHash(ctx, HashRefreshSecret(secret), now)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrRefreshInvalidOrExpired
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "refresh token lookup failed")
	}
	if entry == nil || entry.Revoked || !entry.ExpiresAt.After(now) {
		return nil, ErrRefreshInvalidOrExpired
	}

	won, err := l.store.RevokeIfActive(ctx, entry.ID, now)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "refresh token revoke failed")
	}
	if !won {
		return nil, ErrRefreshInvalidOrExpired
	}

	entry.Revoked = true
	entry.RevokedAt = &now
	return entry, nil
}

// Revoke revokes a presented secret if it is still live.
func (l *RefreshLedger) Revoke(ctx context.Context, secret string) Effect {
	_, err := l.Consume(ctx, secret)
	if IsAuthError(err, ErrRefreshInvalidOrExpired) {
		err = nil
	}
	return effectOf("refresh.revoke", err)
}

// RevokeLineage revokes every live entry of a session lineage.
func (l *RefreshLedger) RevokeLineage(ctx context.Context, tenantID, userID int64, lineageID string) Effect {
	if lineageID == "" {
		return Effect{Name: "refresh.revoke_lineage"}
	}
	_, err := l.store.RevokeLineage(ctx, tenantID, userID, lineageID, l.now())
	return effectOf("refresh.revoke_lineage", err)
}
