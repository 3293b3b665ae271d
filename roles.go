package auth

import "strings"

// Role is one of the closed set of legal roles.
type Role string

const (
	// RoleEmployee is the base role; it cannot switch.
	RoleEmployee Role = "employee"
	// RoleAdmin manages a tenant and may act as an employee.
	RoleAdmin Role = "admin"
	// RoleRoot owns a tenant and may act as admin or employee.
	RoleRoot Role = "root"
)

// roleRank orders roles for assignment checks.
var roleRank = map[Role]int{
	RoleEmployee: 0,
	RoleAdmin:    1,
	RoleRoot:     2,
}

// roleTransitions is keyed by the legal role. A target equal to the legal
// role is the return edge.
var roleTransitions = map[Role]map[Role]bool{
	RoleRoot: {
		RoleAdmin:    true,
		RoleEmployee: true,
		RoleRoot:     true,
	},
	RoleAdmin: {
		RoleEmployee: true,
		RoleAdmin:    true,
	},
	RoleEmployee: {},
}

var landingPages = map[Role]string{
	RoleRoot:     "/root-dashboard",
	RoleAdmin:    "/admin-dashboard",
	RoleEmployee: "/employee-dashboard",
}

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	current, ok := roleRank[r]
	if !ok {
		return false
	}
	min, ok := roleRank[minRole]
	if !ok {
		return false
	}
	return current >= min
}

// CanAssign reports whether an identity holding r may create an identity
// with the target role.
func (r Role) CanAssign(target Role) bool {
	if !r.IsValid() || !target.IsValid() {
		return false
	}
	if r == RoleEmployee {
		return false
	}
	return r.IsAtLeast(target)
}

// CanSwitchTo reports whether the legal role has an edge to target.
func (r Role) CanSwitchTo(target Role) bool {
	return roleTransitions[r][target]
}

// CanSwitch is true iff the legal role has at least one outgoing edge.
func (r Role) CanSwitch() bool {
	return len(roleTransitions[r]) > 0
}

// SwitchTargets lists the roles r may switch to, return edge included.
func (r Role) SwitchTargets() []Role {
	out := make([]Role, 0, len(roleTransitions[r]))
	for _, role := range GetAllRoles() {
		if roleTransitions[r][role] {
			out = append(out, role)
		}
	}
	return out
}

// LandingPage is the default page for an active role.
func LandingPage(r Role) string {
	if page, ok := landingPages[r]; ok {
		return page
	}
	return landingPages[RoleEmployee]
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []Role {
	return []Role{
		RoleEmployee,
		RoleAdmin,
		RoleRoot,
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(roleStr)))
	return role, role.IsValid()
}
