package domain

import "fmt"

// Role represents a valid storefront role string.
// This is a domain primitive that enforces validity at parse time.
type Role string

// Supported roles. The exact spellings matter: the backend's bearer scheme
// embeds them verbatim in the Authorization header.
const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superAdmin"
)

// roleOrder defines the privilege ordering for sufficiency checks.
// Higher numbers represent broader privileges.
var roleOrder = map[Role]int{
	RoleUser:       1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

// ParseRole validates and returns a Role.
// Returns an error if the role is unknown.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleOrder[r]; !ok {
		return "", fmt.Errorf("unknown role: %s", s)
	}
	return r, nil
}

// IsValid reports whether the role is one of the supported values.
func (r Role) IsValid() bool {
	_, ok := roleOrder[r]
	return ok
}

// Satisfies reports whether a holder of r meets the given requirement.
// Admin and superAdmin always satisfy a user requirement; superAdmin
// satisfies an admin requirement.
func (r Role) Satisfies(required Role) bool {
	have, ok := roleOrder[r]
	if !ok {
		return false
	}
	want, ok := roleOrder[required]
	if !ok {
		return false
	}
	return have >= want
}

// IsAdmin reports whether the role grants access to administrative surfaces.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

func (r Role) String() string { return string(r) }
