package repository

import (
	"context"
	"strings"

	auth "github.com/goliatone/go-tenant-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Tenants implements auth.TenantResolver.
type Tenants struct {
	db bun.IDB
}

func NewTenants(db bun.IDB) *Tenants {
	return &Tenants{db: db}
}

// ResolveSubdomain returns the id of the tenant owning subdomain.
func (t *Tenants) ResolveSubdomain(ctx context.Context, subdomain string) (int64, error) {
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if subdomain == "" {
		return 0, auth.ErrRecordNotFound
	}

	record := new(auth.Tenant)
	err := t.db.NewSelect().
		Model(record).
		Column("id").
		Where("?TableAlias.subdomain = ?", subdomain).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return record.ID, nil
}

func (t *Tenants) Create(ctx context.Context, tenant *auth.Tenant) (*auth.Tenant, error) {
	tenant.Subdomain = strings.ToLower(strings.TrimSpace(tenant.Subdomain))
	if tenant.Subdomain == "" {
		return nil, goerrors.New("tenant subdomain is required", goerrors.CategoryBadInput)
	}
	if _, err := t.db.NewInsert().Model(tenant).Returning("*").Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create tenant")
	}
	return tenant, nil
}
