package repository

import (
	"context"
	"time"

	auth "github.com/goliatone/go-tenant-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RefreshTokens implements auth.RefreshTokenStore.
type RefreshTokens struct {
	db bun.IDB
}

func NewRefreshTokens(db bun.IDB) *RefreshTokens {
	return &RefreshTokens{db: db}
}

func (r *RefreshTokens) Create(ctx context.Context, token *auth.RefreshToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.ExpiresAt = token.ExpiresAt.UTC()

	if _, err := r.db.NewInsert().Model(token).Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store refresh token")
	}
	return nil
}

func (r *RefreshTokens) FindActiveByHash(ctx context.Context, hash string, now time.Time) (*auth.RefreshToken, error) {
	record := new(auth.RefreshToken)
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", hash).
		Where("?TableAlias.revoked = ?", false).
		Where("?TableAlias.expires_at > ?", now.UTC()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return record, nil
}

// RevokeIfActive is a conditional update: of two concurrent callers only one
// sees a row affected.
func (r *RefreshTokens) RevokeIfActive(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	at = at.UTC()
	res, err := r.db.NewUpdate().
		Model((*auth.RefreshToken)(nil)).
		Set("revoked = ?", true).
		Set("revoked_at = ?", at).
		Where("id = ?", id).
		Where("revoked = ?", false).
		Exec(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke refresh token")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read revocation result")
	}
	return n == 1, nil
}

func (r *RefreshTokens) RevokeLineage(ctx context.Context, tenantID, userID int64, lineageID string, at time.Time) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*auth.RefreshToken)(nil)).
		Set("revoked = ?", true).
		Set("revoked_at = ?", at.UTC()).
		Where("tenant_id = ?", tenantID).
		Where("user_id = ?", userID).
		Where("lineage_id = ?", lineageID).
		Where("revoked = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke refresh tokens")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteExpired removes expired entries. Revoked entries stay until they
// expire so replays keep failing as revoked rather than unknown.
func (r *RefreshTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*auth.RefreshToken)(nil)).
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete expired refresh tokens")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
