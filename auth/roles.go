package auth

import "fmt"

// Role is the access level attached to an API key or token.
type Role string

const (
	// RoleReviewer may start threads, resume gates, and read everything.
	RoleReviewer Role = "reviewer"

	// RoleObserver may read thread state and subscribe to streams, but
	// never mutate a thread.
	RoleObserver Role = "observer"
)

// ParseRole converts a string into a known role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleReviewer, RoleObserver:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Valid reports whether the role is one the server recognizes.
func (r Role) Valid() bool {
	return r == RoleReviewer || r == RoleObserver
}

// Allows reports whether a caller holding r may act at the required
// level. Reviewers are a superset of observers.
func (r Role) Allows(required Role) bool {
	if r == RoleReviewer {
		return required.Valid()
	}
	return r == required
}
