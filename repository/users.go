package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	auth "github.com/goliatone/go-tenant-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Users implements auth.CredentialStore.
type Users struct {
	db bun.IDB
}

// NewUsers returns a credential store backed by db.
func NewUsers(db bun.IDB) *Users {
	return &Users{db: db}
}

func (u *Users) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	return u.findOne(ctx, "?TableAlias.username = ?", strings.TrimSpace(username))
}

func (u *Users) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return u.findOne(ctx, "?TableAlias.email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// FindByID scopes the lookup to tenantID. Tenant 0 matches identities that
// have no tenant assigned.
func (u *Users) FindByID(ctx context.Context, tenantID, id int64) (*auth.User, error) {
	record := new(auth.User)
	q := u.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id)
	if tenantID == 0 {
		q = q.Where("(?TableAlias.tenant_id IS NULL OR ?TableAlias.tenant_id = 0)")
	} else {
		q = q.Where("?TableAlias.tenant_id = ?", tenantID)
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, mapNotFound(err)
	}
	return record, nil
}

func (u *Users) Create(ctx context.Context, user *auth.User) (*auth.User, error) {
	if user == nil {
		return nil, goerrors.New("user is required", goerrors.CategoryBadInput)
	}

	now := time.Now().UTC()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = &now
	user.UpdatedAt = &now

	if _, err := u.db.NewInsert().Model(user).Returning("*").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, auth.ErrIdentityConflict
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create user")
	}
	return user, nil
}

func (u *Users) findOne(ctx context.Context, where string, value string) (*auth.User, error) {
	if value == "" {
		return nil, auth.ErrRecordNotFound
	}

	record := new(auth.User)
	err := u.db.NewSelect().
		Model(record).
		Where(where, value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return record, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrRecordNotFound
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "database query failed")
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
