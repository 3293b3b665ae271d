package repository

import (
	"context"
	"time"

	auth "github.com/goliatone/go-tenant-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Sessions implements auth.SessionStore.
type Sessions struct {
	db bun.IDB
}

func NewSessions(db bun.IDB) *Sessions {
	return &Sessions{db: db}
}

func (s *Sessions) Save(ctx context.Context, record *auth.SessionRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.ExpiresAt = record.ExpiresAt.UTC()

	_, err := s.db.NewInsert().Model(record).Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save session record").
			WithMetadata(map[string]any{"session_id": record.SessionID})
	}
	return nil
}

// FindActive returns the unexpired record for sessionID scoped to tenant and
// user.
func (s *Sessions) FindActive(ctx context.Context, tenantID, userID int64, sessionID string, now time.Time) (*auth.SessionRecord, error) {
	record := new(auth.SessionRecord)
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.session_id = ?", sessionID).
		Where("?TableAlias.expires_at > ?", now.UTC()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return record, nil
}

func (s *Sessions) DeleteLineage(ctx context.Context, tenantID, userID int64, lineageID string) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*auth.SessionRecord)(nil)).
		Where("tenant_id = ?", tenantID).
		Where("user_id = ?", userID).
		Where("lineage_id = ?", lineageID).
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete sessions")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Sessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*auth.SessionRecord)(nil)).
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete expired sessions")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
