package auth

import (
	"errors"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

type AuthControllerRoutes struct {
	Login          string
	Refresh        string
	Logout         string
	Register       string
	PasswordReset  string
	RoleStatus     string
	RoleSwitch     string
	RoleSwitchBack string
	Verify         string
	AuditTrail     string
}

type AuthController struct {
	Debug  bool
	Logger Logger
	Auther *Auther
	HTTP   *RouteAuthenticator
	Routes *AuthControllerRoutes
	// Authz guards register and the audit trail with casbin permissions.
	// Without it those routes fall back to an admin/root role check.
	Authz *Authorizer
	Audit AuditTrail
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

// WithControllerDebug logs request payloads, passwords excluded.
func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

// WithControllerAuthorizer guards routes with permissions instead of roles.
func WithControllerAuthorizer(authz *Authorizer) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Authz = authz
		return c
	}
}

// WithControllerAuditTrail mounts the audit trail route.
func WithControllerAuditTrail(trail AuditTrail) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Audit = trail
		return c
	}
}

// WithControllerRoutes overrides the route paths.
func WithControllerRoutes(routes AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Routes = &routes
		return c
	}
}

func NewAuthController(auther *Auther, httpAuth *RouteAuthenticator, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: NopLogger(),
		Auther: auther,
		HTTP:   httpAuth,
		Routes: &AuthControllerRoutes{
			Login:          "/auth/login",
			Refresh:        "/auth/refresh",
			Logout:         "/auth/logout",
			Register:       "/auth/register",
			PasswordReset:  "/auth/password-reset",
			RoleStatus:     "/auth/role/status",
			RoleSwitch:     "/auth/role/switch",
			RoleSwitchBack: "/auth/role/switch/original",
			Verify:         "/auth/verify",
			AuditTrail:     "/auth/audit/users/:userId",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Auther in auth controller...")
	}

	if c.HTTP == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the auth endpoints on app.
func RegisterAuthRoutes(app fiber.Router, controller *AuthController) {
	routes := controller.Routes
	protected := controller.HTTP.ProtectedRoute()

	app.Post(routes.Login, controller.LoginPost).Name("auth.login")
	app.Post(routes.Refresh, controller.RefreshPost).Name("auth.refresh")
	app.Post(routes.Logout, controller.LogoutPost).Name("auth.logout")
	app.Post(routes.PasswordReset, controller.PasswordResetPost).Name("auth.password_reset")

	app.Post(routes.Register,
		controller.guard("users", "create", controller.RegisterPost)...,
	).Name("auth.register")

	if controller.Audit != nil {
		app.Get(routes.AuditTrail,
			controller.guard("audit", "read", controller.AuditTrailGet)...,
		).Name("auth.audit.user")
	}

	app.Get(routes.Verify, protected, controller.VerifyGet).Name("auth.verify")
	app.Get(routes.RoleStatus, protected, controller.RoleStatusGet).Name("auth.role.status")
	app.Post(routes.RoleSwitch, protected, controller.RoleSwitchPost).Name("auth.role.switch")
	app.Post(routes.RoleSwitchBack, protected, controller.RoleSwitchOriginalPost).Name("auth.role.switch_original")
}

// guard authenticates the request and checks obj/act on the active role,
// followed by handler.
func (a *AuthController) guard(obj, act string, handler fiber.Handler) []fiber.Handler {
	if a.Authz == nil {
		return []fiber.Handler{a.HTTP.ProtectedRoute(RoleAdmin, RoleRoot), handler}
	}
	return []fiber.Handler{
		a.HTTP.ProtectedRoute(),
		a.HTTP.RequirePermission(a.Authz, obj, act),
		handler,
	}
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginPayload)

	if err := c.BodyParser(payload); err != nil {
		return a.HTTP.ErrorHandler(c, badRequest("unable to parse login payload"))
	}

	if err := payload.Validate(); err != nil {
		return a.HTTP.ErrorHandler(c, validationFailed(err))
	}

	if a.Debug {
		a.Logger.Debug("login payload",
			"identifier", payload.GetIdentifier(),
			"tenant", payload.Tenant,
			"fingerprint", payload.Fingerprint != "",
		)
	}

	fingerprint := payload.Fingerprint
	if fingerprint == "" {
		fingerprint = a.HTTP.fingerprint(c)
	}

	result, err := a.Auther.Login(c.UserContext(), LoginRequest{
		Identifier:  payload.GetIdentifier(),
		Password:    payload.Password,
		Fingerprint: fingerprint,
		TenantHint:  payload.Tenant,
		HostTenant:  tenantFromHost(c.Hostname()),
		IP:          c.IP(),
	})
	if err != nil {
		return a.loginError(c, err)
	}

	a.HTTP.SetTokenCookie(c, result.Token)

	if !WantsJSON(c) && strings.Contains(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationForm) {
		return c.Redirect(a.HTTP.GetRedirect(c, result.RedirectTo), fiber.StatusSeeOther)
	}

	return c.JSON(result)
}

// loginError never redirects to the session expired page: a failed login
// is not an expired session.
func (a *AuthController) loginError(c *fiber.Ctx, err error) error {
	pub := PublicError(err)
	if pub.Category == goerrors.CategoryInternal {
		a.Logger.Error("login failed", "error", err)
	}
	return WriteError(c, pub)
}

func (a *AuthController) RefreshPost(c *fiber.Ctx) error {
	payload := new(RefreshPayload)
	if err := c.BodyParser(payload); err != nil {
		return WriteError(c, badRequest("unable to parse refresh payload"))
	}

	if err := payload.Validate(); err != nil {
		return WriteError(c, ErrRefreshInvalidOrExpired)
	}

	result, err := a.Auther.Refresh(c.UserContext(), payload.RefreshToken, a.HTTP.fingerprint(c))
	if err != nil {
		return WriteError(c, PublicError(err))
	}

	a.HTTP.SetTokenCookie(c, result.Token)
	return c.JSON(result)
}

func (a *AuthController) LogoutPost(c *fiber.Ctx) error {
	payload := new(RefreshPayload)
	if len(c.Body()) > 0 {
		if err := c.BodyParser(payload); err != nil {
			a.Logger.Debug("logout payload ignored", "error", err)
		}
	}

	a.Auther.Logout(c.UserContext(), a.HTTP.BearerToken(c), payload.RefreshToken)
	a.HTTP.ClearTokenCookie(c)

	if !WantsJSON(c) && c.Method() == fiber.MethodGet {
		return c.Redirect(a.HTTP.cfg.GetLoginPath(), fiber.StatusSeeOther)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (a *AuthController) RegisterPost(c *fiber.Ctx) error {
	actor, ok := IdentityFromFiber(c, a.HTTP.cfg.GetContextKey())
	if !ok {
		return a.HTTP.ErrorHandler(c, ErrTokenMissing)
	}

	payload := new(RegisterRequest)
	if err := c.BodyParser(payload); err != nil {
		return WriteError(c, badRequest("unable to parse registration payload"))
	}
	payload.Role = Role(strings.ToLower(strings.TrimSpace(string(payload.Role))))

	if err := payload.Validate(); err != nil {
		return WriteError(c, validationFailed(err))
	}

	user, err := a.Auther.Register(c.UserContext(), actor, *payload)
	if err != nil {
		return WriteError(c, PublicError(err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

// AuditTrailGet lists the audit rows of one user in the caller's tenant.
func (a *AuthController) AuditTrailGet(c *fiber.Ctx) error {
	actor, ok := IdentityFromFiber(c, a.HTTP.cfg.GetContextKey())
	if !ok {
		return a.HTTP.ErrorHandler(c, ErrTokenMissing)
	}

	userID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || userID <= 0 {
		return WriteError(c, badRequest("userId must be a positive integer"))
	}

	rows, err := a.Audit.ListByUser(c.UserContext(), actor.TenantID, userID, c.QueryInt("limit", 50))
	if err != nil {
		a.Logger.Error("audit trail lookup failed", "error", err, "user_id", userID)
		return WriteError(c, ErrServer)
	}

	return c.JSON(fiber.Map{"entries": rows})
}

func (a *AuthController) PasswordResetPost(c *fiber.Ctx) error {
	payload := new(PasswordResetPayload)
	if err := c.BodyParser(payload); err != nil {
		return WriteError(c, badRequest("unable to parse password reset payload"))
	}

	if err := payload.Validate(); err != nil {
		return WriteError(c, validationFailed(err))
	}

	a.Auther.RequestPasswordReset(c.UserContext(), PasswordResetRequest{
		Identifier: payload.Identifier,
		TenantHint: payload.Tenant,
		HostTenant: tenantFromHost(c.Hostname()),
	})

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "if the account exists, reset instructions have been sent",
	})
}

func (a *AuthController) VerifyGet(c *fiber.Ctx) error {
	identity, ok := IdentityFromFiber(c, a.HTTP.cfg.GetContextKey())
	if !ok {
		return a.HTTP.ErrorHandler(c, ErrTokenMissing)
	}
	return c.JSON(identity)
}

func (a *AuthController) RoleStatusGet(c *fiber.Ctx) error {
	identity, ok := IdentityFromFiber(c, a.HTTP.cfg.GetContextKey())
	if !ok {
		return a.HTTP.ErrorHandler(c, ErrTokenMissing)
	}
	return c.JSON(a.Auther.Status(identity))
}

func (a *AuthController) RoleSwitchPost(c *fiber.Ctx) error {
	identity, ok := IdentityFromFiber(c, a.HTTP.cfg.GetContextKey())
	if !ok {
		return a.HTTP.ErrorHandler(c, ErrTokenMissing)
	}

	payload := new(SwitchPayload)
	if err := c.BodyParser(payload); err != nil {
		return WriteError(c, badRequest("unable to parse role switch payload"))
	}

	if err := payload.Validate(); err != nil {
		return WriteError(c, validationFailed(err))
	}

	result, err := a.Auther.SwitchTo(c.UserContext(), identity, Role(payload.Target))
	if err != nil {
		return WriteError(c, PublicError(err))
	}

	a.HTTP.SetTokenCookie(c, result.Token)
	return c.JSON(result)
}

func (a *AuthController) RoleSwitchOriginalPost(c *fiber.Ctx) error {
	identity, ok := IdentityFromFiber(c, a.HTTP.cfg.GetContextKey())
	if !ok {
		return a.HTTP.ErrorHandler(c, ErrTokenMissing)
	}

	result, err := a.Auther.SwitchToOriginal(c.UserContext(), identity)
	if err != nil {
		return WriteError(c, PublicError(err))
	}

	if a.Debug {
		a.Logger.Debug("role switched back", "result", print.MaybePrettyJSON(result.User))
	}

	a.HTTP.SetTokenCookie(c, result.Token)
	return c.JSON(result)
}

// tenantFromHost returns the first label of a host with at least three
// labels, e.g. "acme" for acme.example.com. The label is only a candidate;
// Login ignores it when no tenant owns it.
func tenantFromHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || strings.Trim(host, "0123456789.:") == "" {
		return ""
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 || labels[0] == "www" {
		return ""
	}
	return labels[0]
}

func badRequest(msg string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryBadInput).
		WithTextCode("BAD_REQUEST").
		WithCode(goerrors.CodeBadRequest)
}

func validationFailed(err error) *goerrors.Error {
	return goerrors.New("validation failed", goerrors.CategoryValidation).
		WithTextCode("VALIDATION_FAILED").
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(FormatValidationErrorToMap(err))
}

// FormatValidationErrorToMap flattens ozzo errors into field -> message.
func FormatValidationErrorToMap(err error) map[string]any {
	out := map[string]any{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}
	if err != nil {
		out["payload"] = err.Error()
	}
	return out
}
