package domain

import "fmt"

// Role identifies how an actor relates to complaints.
type Role string

const (
	// RoleResident raises complaints and owns them.
	RoleResident Role = "RESIDENT"
	// RoleHandler is maintenance staff that works assigned complaints.
	RoleHandler Role = "HANDLER"
	// RoleAdmin is building management with oversight of every complaint.
	RoleAdmin Role = "ADMIN"
)

// AllRoles lists every role.
var AllRoles = []Role{RoleResident, RoleHandler, RoleAdmin}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleResident, RoleHandler, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts a claim or header value into a Role.
func ParseRole(raw string) (Role, error) {
	r := Role(raw)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return r, nil
}
