package auth

import (
	_ "embed"
	"fmt"
	"strconv"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

//go:embed authz_model.conf
var authzModelContent string

// Policy grants act on obj to a role. obj supports casbin keyMatch patterns.
type Policy struct {
	Role   Role
	Object string
	Action string
}

// DefaultPolicies is the baseline grant set. Higher roles inherit the
// grants of lower ones.
func DefaultPolicies() []Policy {
	return []Policy{
		{Role: RoleEmployee, Object: "profile", Action: "read"},
		{Role: RoleEmployee, Object: "profile", Action: "update"},
		{Role: RoleEmployee, Object: "documents", Action: "read"},
		{Role: RoleEmployee, Object: "calendar", Action: "read"},
		{Role: RoleEmployee, Object: "chat", Action: "*"},
		{Role: RoleAdmin, Object: "users", Action: "read"},
		{Role: RoleAdmin, Object: "users", Action: "create"},
		{Role: RoleAdmin, Object: "users", Action: "update"},
		{Role: RoleAdmin, Object: "documents", Action: "*"},
		{Role: RoleAdmin, Object: "calendar", Action: "*"},
		{Role: RoleAdmin, Object: "departments", Action: "*"},
		{Role: RoleAdmin, Object: "audit", Action: "read"},
		{Role: RoleRoot, Object: "users", Action: "*"},
		{Role: RoleRoot, Object: "tenant", Action: "*"},
		{Role: RoleRoot, Object: "billing", Action: "*"},
	}
}

// Authorizer evaluates permissions of the active role. Every decision is
// scoped to the tenant of the identity; a resource in another tenant is
// always denied.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewAuthorizer builds an in-memory enforcer. With no policies the defaults
// are loaded.
func NewAuthorizer(policies ...Policy) (*Authorizer, error) {
	m, err := model.NewModelFromString(authzModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	if len(policies) == 0 {
		policies = DefaultPolicies()
	}

	for _, p := range policies {
		if !p.Role.IsValid() {
			return nil, fmt.Errorf("policy for unknown role %q", p.Role)
		}
		if _, err := enforcer.AddPolicy(string(p.Role), p.Object, p.Action); err != nil {
			return nil, fmt.Errorf("add casbin policy: %w", err)
		}
	}

	// root inherits admin, admin inherits employee
	hierarchy := [][2]Role{{RoleRoot, RoleAdmin}, {RoleAdmin, RoleEmployee}}
	for _, edge := range hierarchy {
		if _, err := enforcer.AddGroupingPolicy(string(edge[0]), string(edge[1])); err != nil {
			return nil, fmt.Errorf("add casbin role link: %w", err)
		}
	}

	return &Authorizer{enforcer: enforcer}, nil
}

// Can reports whether identity, acting as its active role, may perform act
// on obj owned by resourceTenant.
func (a *Authorizer) Can(identity *IdentityContext, resourceTenant int64, obj, act string) (bool, error) {
	if identity == nil {
		return false, nil
	}
	return a.enforcer.Enforce(
		identity.ActiveRoleName(),
		identity.TenantKey(),
		strconv.FormatInt(resourceTenant, 10),
		obj,
		act,
	)
}

// Authorize is Can returning ErrPermissionDenied on refusal.
func (a *Authorizer) Authorize(identity *IdentityContext, resourceTenant int64, obj, act string) error {
	ok, err := a.Can(identity, resourceTenant, obj, act)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}
