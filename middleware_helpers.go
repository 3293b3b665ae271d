package auth

import (
	"context"

	"github.com/goliatone/go-tenant-auth/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use auth helpers directly.
type ValidationListener = jwtware.ValidationListener

// ContextEnricherAdapter stores the verified identity in the standard
// context for code below the HTTP layer.
func ContextEnricherAdapter(c context.Context, claims jwtware.AuthClaims) context.Context {
	identity, ok := claims.(*IdentityContext)
	if !ok {
		return c
	}
	return WithIdentity(c, identity)
}

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}
