package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// DefaultContextKey is the fiber locals key holding the *IdentityContext.
const DefaultContextKey = "identity"

var identityCtxKey = &contextKey{"identity"}

type contextKey struct {
	name string
}

// WithIdentity sets the verified identity in the given context
func WithIdentity(ctx context.Context, identity *IdentityContext) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the verified identity in the context.
func IdentityFromContext(ctx context.Context) (*IdentityContext, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(identityCtxKey).(*IdentityContext)
	return raw, ok && raw != nil
}

// IdentityFromFiber extracts the identity stored by the JWT middleware.
func IdentityFromFiber(c *fiber.Ctx, key string) (*IdentityContext, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	raw, ok := c.Locals(key).(*IdentityContext)
	return raw, ok && raw != nil
}

// TenantFromContext returns the tenant every authorization decision of the
// request is scoped to.
func TenantFromContext(ctx context.Context) (int64, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return 0, false
	}
	return identity.TenantID, true
}
