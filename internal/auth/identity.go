// Package auth identifies callers: session users through locally signed JWTs
// and registered teachers and students through bearer tokens minted by the
// identity provider.
package auth

import "fmt"

// Role is the part a caller plays in their class
type Role string

const (
	RoleStudent    Role = "student"
	RoleSupervisor Role = "supervisor"
	RoleSiteAdmin  Role = "siteadmin"
)

// ParseRole validates a role claim
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleStudent, RoleSupervisor, RoleSiteAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Method records how a caller was authenticated
type Method string

const (
	MethodSession Method = "session"
	MethodOIDC    Method = "oidc"
)

// Identity is the authenticated caller of a request
type Identity struct {
	UserID  string
	ClassID string
	Role    Role
	Method  Method

	// SessionToken is set for session users and is checked against the
	// stored token on every request.
	SessionToken string
}

// IsSupervisor reports whether the caller may manage their class
func (i *Identity) IsSupervisor() bool {
	return i.Role == RoleSupervisor
}

// IsSiteAdmin reports whether the caller may manage shared resources
func (i *Identity) IsSiteAdmin() bool {
	return i.Role == RoleSiteAdmin
}
