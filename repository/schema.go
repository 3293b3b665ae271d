package repository

import (
	"context"

	auth "github.com/goliatone/go-tenant-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Models lists every table owned by this module.
func Models() []any {
	return []any{
		(*auth.Tenant)(nil),
		(*auth.User)(nil),
		(*auth.SessionRecord)(nil),
		(*auth.RefreshToken)(nil),
		(*auth.LoginAttempt)(nil),
		(*auth.AuditLog)(nil),
	}
}

// CreateSchema creates missing tables and indexes. It is safe to run on
// every start.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range Models() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create table")
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*auth.SessionRecord)(nil), "idx_user_sessions_lineage", []string{"tenant_id", "user_id", "lineage_id"}},
		{(*auth.SessionRecord)(nil), "idx_user_sessions_expires", []string{"expires_at"}},
		{(*auth.RefreshToken)(nil), "idx_refresh_tokens_lineage", []string{"tenant_id", "user_id", "lineage_id"}},
		{(*auth.RefreshToken)(nil), "idx_refresh_tokens_expires", []string{"expires_at"}},
		{(*auth.LoginAttempt)(nil), "idx_login_attempts_identifier", []string{"identifier", "attempted_at"}},
		{(*auth.AuditLog)(nil), "idx_audit_logs_user", []string{"tenant_id", "user_id", "created_at"}},
		{(*auth.AuditLog)(nil), "idx_audit_logs_object", []string{"tenant_id", "object_type", "object_id"}},
	}

	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create index").
				WithMetadata(map[string]any{"index": idx.name})
		}
	}

	return nil
}
