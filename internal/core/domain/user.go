package domain

import (
	"strings"
	"time"
)

// Role is the closed set of privilege classes a local user can hold.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleModerator Role = "MODERATOR"
	RoleUser      Role = "USER"
)

// Roles lists every valid role in declaration order.
var Roles = []Role{RoleAdmin, RoleModerator, RoleUser}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole converts a role name (case-insensitive) into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// User is a local identity record. ExternalSubjectID correlates it with the
// account held by the external identity provider.
type User struct {
	ID                int64
	Email             string
	Username          string
	ExternalSubjectID string
	Role              Role
	CreatedAt         time.Time
}

// IsAdmin reports whether the user holds the ADMIN role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
