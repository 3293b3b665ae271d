package auth

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-tenant-auth/middleware/jwtware"
)

const (
	// HeaderFingerprint carries the client device fingerprint.
	HeaderFingerprint = "X-Device-Fingerprint"
	// HeaderRequestedWith marks XHR requests as API style.
	HeaderRequestedWith = "X-Requested-With"

	rejectedRouteCookie = "login_redirect"
)

type RouteAuthenticator struct {
	auth              *Auther
	cfg               Config
	Logger            Logger
	FingerprintHeader string
	AuthErrorHandler  func(c *fiber.Ctx, err error) error
	ErrorHandler      func(c *fiber.Ctx, err error) error
	// Listeners run after the session cross check on every protected route.
	Listeners []ValidationListener
}

func NewHTTPAuthenticator(auther *Auther, cfg Config) (*RouteAuthenticator, error) {
	if auther == nil {
		return nil, errors.New("auther is required")
	}
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	a := &RouteAuthenticator{
		auth:              auther,
		cfg:               cfg,
		Logger:            NopLogger(),
		FingerprintHeader: HeaderFingerprint,
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

// WithLogger sets the logger.
func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	a.Logger = normalizeLogger(logger)
	return a
}

// ProtectedRoute verifies the token, runs the session cross check and
// attaches the identity to the request. With roles, only those active roles
// pass.
func (a *RouteAuthenticator) ProtectedRoute(roles ...Role) fiber.Handler {
	required := make([]string, 0, len(roles))
	for _, r := range roles {
		required = append(required, string(r))
	}

	cfg := a.middlewareConfig(false)
	cfg.RequiredRoles = required
	return jwtware.New(cfg)
}

// OptionalRoute attaches the identity when a valid token is present and
// lets anonymous requests through.
func (a *RouteAuthenticator) OptionalRoute() fiber.Handler {
	return jwtware.New(a.middlewareConfig(true))
}

func (a *RouteAuthenticator) middlewareConfig(optional bool) jwtware.Config {
	cfg := jwtware.Config{
		ErrorHandler: a.MakeClientRouteAuthErrorHandler(optional),
		TokenValidator: jwtware.TokenValidatorFunc(func(raw string) (jwtware.AuthClaims, error) {
			identity, err := a.auth.ValidateToken(raw)
			if err != nil {
				return nil, err
			}
			return identity, nil
		}),
		ContextEnricher: ContextEnricherAdapter,
		AuthScheme:      a.cfg.GetAuthScheme(),
		ContextKey:      a.cfg.GetContextKey(),
		TokenLookup:     a.cfg.GetTokenLookup(),
	}
	RegisterValidationListeners(&cfg, a.sessionListener)
	RegisterValidationListeners(&cfg, a.Listeners...)
	return cfg
}

func (a *RouteAuthenticator) sessionListener(c *fiber.Ctx, claims jwtware.AuthClaims) error {
	identity, ok := claims.(*IdentityContext)
	if !ok {
		return ErrTokenInvalidOrExpired
	}
	return a.auth.CheckSession(c.UserContext(), identity, a.fingerprint(c))
}

// RequireRole rejects requests whose active role is not listed.
func (a *RouteAuthenticator) RequireRole(roles ...Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromFiber(c, a.cfg.GetContextKey())
		if !ok {
			return a.ErrorHandler(c, ErrTokenMissing)
		}
		for _, r := range roles {
			if identity.ActiveRole == r {
				return c.Next()
			}
		}
		return a.ErrorHandler(c, ErrPermissionDenied)
	}
}

// RequirePermission checks obj/act for the active role. The resource tenant
// is read from the tenantId route parameter and defaults to the identity's
// own tenant.
func (a *RouteAuthenticator) RequirePermission(authz *Authorizer, obj, act string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromFiber(c, a.cfg.GetContextKey())
		if !ok {
			return a.ErrorHandler(c, ErrTokenMissing)
		}

		resourceTenant := identity.TenantID
		if raw := c.Params("tenantId"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return a.ErrorHandler(c, ErrPermissionDenied)
			}
			resourceTenant = parsed
		}

		if err := authz.Authorize(identity, resourceTenant, obj, act); err != nil {
			if !IsAuthError(err, ErrPermissionDenied) {
				a.Logger.Error("authorization check failed", "error", err)
				return a.ErrorHandler(c, ErrServer)
			}
			return a.ErrorHandler(c, err)
		}
		return c.Next()
	}
}

// MakeClientRouteAuthErrorHandler maps middleware failures onto the error
// taxonomy. Optional routes continue anonymously on failure.
func (a *RouteAuthenticator) MakeClientRouteAuthErrorHandler(optional bool) func(*fiber.Ctx, error) error {
	return func(c *fiber.Ctx, err error) error {
		switch {
		case errors.Is(err, jwtware.ErrJWTMissingOrMalformed):
			err = ErrTokenMissing
		case errors.Is(err, jwtware.ErrRoleNotAllowed):
			err = ErrPermissionDenied
		}

		if optional && IsExpectedFailure(err) {
			a.Logger.Debug("Optional auth failed, proceeding", "reason", textCodeOf(err))
			return c.Next()
		}

		return a.ErrorHandler(c, err)
	}
}

// WantsJSON reports whether the request is API style.
func WantsJSON(c *fiber.Ctx) bool {
	if strings.EqualFold(c.Get(HeaderRequestedWith), "XMLHttpRequest") {
		return true
	}
	return strings.Contains(strings.ToLower(c.Get(fiber.HeaderAccept)), fiber.MIMEApplicationJSON)
}

// SessionExpiredURL is the login page marked as session expired.
func (a *RouteAuthenticator) SessionExpiredURL() string {
	return a.cfg.GetLoginPath() + "?" + url.Values{"session": {"expired"}}.Encode()
}

// GetRedirect returns and clears the route rejected before login.
func (a *RouteAuthenticator) GetRedirect(c *fiber.Ctx, def string) string {
	r := c.Cookies(rejectedRouteCookie)
	if r == "" || !strings.HasPrefix(r, "/") || strings.HasPrefix(r, "//") {
		return def
	}
	a.cookieDel(c, rejectedRouteCookie)
	return r
}

// SetRedirect remembers the rejected route so login can return to it.
func (a *RouteAuthenticator) SetRedirect(c *fiber.Ctx) {
	if c.Method() != fiber.MethodGet {
		return
	}
	c.Cookie(&fiber.Cookie{
		Name:     rejectedRouteCookie,
		Value:    c.OriginalURL(),
		Path:     "/",
		Expires:  time.Now().Add(5 * time.Minute),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// SetTokenCookie stores the session token for browser page loads.
func (a *RouteAuthenticator) SetTokenCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     a.cfg.GetCookieName(),
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(a.cfg.GetAccessTTL()),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// ClearTokenCookie removes the session cookie.
func (a *RouteAuthenticator) ClearTokenCookie(c *fiber.Ctx) {
	a.cookieDel(c, a.cfg.GetCookieName())
}

// BearerToken returns the token presented with the request, header first.
func (a *RouteAuthenticator) BearerToken(c *fiber.Ctx) string {
	extractors := jwtware.GetExtractors(a.cfg.GetTokenLookup(), a.cfg.GetAuthScheme())
	raw, _ := jwtware.ExtractRawTokenFromContext(c, extractors)
	return raw
}

func (a *RouteAuthenticator) fingerprint(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get(a.FingerprintHeader))
}

func (a *RouteAuthenticator) cookieDel(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c *fiber.Ctx, err error) error {
	pub := PublicError(err)

	a.Logger.Info(
		"Authentication error, redirecting to login",
		"text_code", pub.TextCode,
		"path", c.OriginalURL(),
	)

	a.SetRedirect(c)

	statusCode := fiber.StatusSeeOther
	if c.Method() == fiber.MethodGet {
		statusCode = fiber.StatusFound
	}
	return c.Redirect(a.SessionExpiredURL(), statusCode)
}

// defaultErrHandler renders JSON for API style requests and redirects
// browser navigations that failed authentication.
func (a *RouteAuthenticator) defaultErrHandler(c *fiber.Ctx, err error) error {
	pub := PublicError(err)

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryInternal {
		a.Logger.Error(
			"Middleware error handler",
			"error", err,
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
	}

	if WantsJSON(c) {
		return WriteError(c, pub)
	}

	if pub.Category == goerrors.CategoryAuth {
		return a.AuthErrorHandler(c, pub)
	}

	return c.Status(statusOf(pub)).SendString(pub.Message)
}

// WriteError writes {"error":{"code","message"}}.
func WriteError(c *fiber.Ctx, pub *goerrors.Error) error {
	body := fiber.Map{
		"code":    pub.TextCode,
		"message": pub.Message,
	}
	if pub.Category == goerrors.CategoryValidation && len(pub.Metadata) > 0 {
		body["fields"] = pub.Metadata
	}
	return c.Status(statusOf(pub)).JSON(fiber.Map{"error": body})
}

func statusOf(pub *goerrors.Error) int {
	if pub == nil || pub.Code == 0 {
		return fiber.StatusInternalServerError
	}
	return pub.Code
}
