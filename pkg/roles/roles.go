// Package roles defines the platform's user roles and the hierarchy rules
// applied during session validation and role switching.
package roles

import "strings"

// Role is a platform role stamped onto a session at creation time.
type Role string

const (
	User       Role = "USER"
	Instructor Role = "INSTRUCTOR"
	Admin      Role = "ADMIN"
)

// Parse normalizes a role string. Returns false for unknown values.
func Parse(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case User:
		return User, true
	case Instructor:
		return Instructor, true
	case Admin:
		return Admin, true
	default:
		return "", false
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := Parse(string(r))
	return ok
}

func (r Role) String() string {
	return string(r)
}

// Satisfies reports whether a session holding role r meets the given
// requirement. Admin satisfies any requirement; every other role satisfies
// only itself, there is no implicit escalation between User and Instructor.
func (r Role) Satisfies(required Role) bool {
	if required == "" {
		return true
	}
	if r == Admin {
		return true
	}
	return r == required
}

// CanAssume reports whether a principal whose canonical role is r may create
// a session stamped with target. Admins may assume any role; everyone else
// may only assume their own canonical role.
func (r Role) CanAssume(target Role) bool {
	if !target.Valid() {
		return false
	}
	if r == Admin {
		return true
	}
	return r == target
}
