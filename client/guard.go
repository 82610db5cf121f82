package client

import "github.com/elimuconnect/elimu/core/user"

// Decision is the outcome of a route guard check.
type Decision int

const (
	// Granted lets the navigation proceed.
	Granted Decision = iota
	// Redirect sends an unauthenticated user to the login route.
	Redirect
	// Denied blocks an authenticated user whose role is not allowed.
	Denied
)

// Verdict carries the guard decision; Role is the caller's normalized role so
// an access-denied view can show it.
type Verdict struct {
	Decision Decision
	Role     string
}

// CheckAccess guards a route. An empty allow-list admits any authenticated
// user. Both the session role and the allow-list entries are normalized, so
// "ROLE_ADMIN" and "admin" are the same role; partial or prefix matches never
// grant access.
func CheckAccess(session *Session, allowedRoles ...string) Verdict {
	ident, ok := session.Identity()
	if !ok || !session.Authenticated() {
		return Verdict{Decision: Redirect}
	}

	role := user.NormalizeRole(ident.Role)
	if len(allowedRoles) == 0 {
		return Verdict{Decision: Granted, Role: role}
	}
	for _, allowed := range allowedRoles {
		if role == user.NormalizeRole(allowed) {
			return Verdict{Decision: Granted, Role: role}
		}
	}
	return Verdict{Decision: Denied, Role: role}
}
