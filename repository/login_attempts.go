package repository

import (
	"context"
	"time"

	auth "github.com/goliatone/go-tenant-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LoginAttempts implements auth.LoginAttemptStore.
type LoginAttempts struct {
	db bun.IDB
}

func NewLoginAttempts(db bun.IDB) *LoginAttempts {
	return &LoginAttempts{db: db}
}

func (l *LoginAttempts) RecordAttempt(ctx context.Context, attempt *auth.LoginAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now()
	}
	attempt.AttemptedAt = attempt.AttemptedAt.UTC()

	if _, err := l.db.NewInsert().Model(attempt).Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record login attempt")
	}
	return nil
}
