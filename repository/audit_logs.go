package repository

import (
	"context"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/activitymap"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuditLogs stores normalized activity events. It implements
// auth.ActivitySink and auth.AuditTrail.
type AuditLogs struct {
	db   bun.IDB
	opts []activitymap.Option
}

func NewAuditLogs(db bun.IDB, opts ...activitymap.Option) *AuditLogs {
	return &AuditLogs{db: db, opts: opts}
}

// Record implements auth.ActivitySink.
func (a *AuditLogs) Record(ctx context.Context, event auth.ActivityEvent) error {
	normalized := activitymap.Normalize(event, a.opts...)

	details := normalized.Metadata
	if details == nil {
		details = map[string]any{}
	}
	details["verb"] = normalized.Verb

	row := &auth.AuditLog{
		ID:         uuid.New(),
		TenantID:   normalized.TenantID,
		UserID:     event.UserID,
		ActorID:    normalized.ActorID,
		Action:     normalized.Action,
		ObjectType: normalized.ObjectType,
		ObjectID:   normalized.ObjectID,
		Channel:    normalized.Channel,
		Details:    details,
		CreatedAt:  normalized.OccurredAt,
	}

	if _, err := a.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write audit log").
			WithMetadata(map[string]any{"action": row.Action})
	}
	return nil
}

// ListByUser returns the audit trail of a user inside one tenant, newest
// first.
func (a *AuditLogs) ListByUser(ctx context.Context, tenantID, userID int64, limit int) ([]auth.AuditLog, error) {
	if limit <= 0 || limit > maxAuditPage {
		limit = maxAuditPage
	}
	var rows []auth.AuditLog
	err := a.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list audit logs")
	}
	return rows, nil
}

const maxAuditPage = 100
