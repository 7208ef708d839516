// Package guard decides whether a principal may see a page or perform an
// action, given the current authentication snapshot.
package guard

import (
	"net/url"
	"slices"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
)

// Snapshot is the read-only view of authentication state the guard needs.
type Snapshot interface {
	IsLoading() bool
	Principal() (identity.Identity, bool)
}

// Requirement lists what a page or action demands. Empty fields impose
// nothing; RequiredPermissions must all be held.
type Requirement struct {
	AllowedRoles        []authz.Role
	RequiredPermissions []authz.Permission
	RedirectTo          string
}

// Kind enumerates guard outcomes.
type Kind int

const (
	Pending Kind = iota
	Allow
	Redirect
	Deny
)

func (k Kind) String() string {
	switch k {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "deny"
	}
}

// Decision is the guard's verdict. Location is set for Redirect.
type Decision struct {
	Kind     Kind
	Location string
}

// Decide evaluates req against snap. Unauthenticated principals are sent to
// req.RedirectTo (or loginPath) with a from parameter; authenticated ones
// lacking a role or permission are denied in place.
func Decide(snap Snapshot, req Requirement, requestedPath, loginPath string) Decision {
	if snap == nil || snap.IsLoading() {
		return Decision{Kind: Pending}
	}
	id, ok := snap.Principal()
	if !ok {
		target := req.RedirectTo
		if target == "" {
			target = loginPath
		}
		return Decision{Kind: Redirect, Location: withFrom(target, requestedPath)}
	}
	if !Permits(id, req) {
		return Decision{Kind: Deny}
	}
	return Decision{Kind: Allow}
}

// Permits reports whether id satisfies req.
func Permits(id identity.Identity, req Requirement) bool {
	if len(req.AllowedRoles) > 0 && !slices.Contains(req.AllowedRoles, id.Role) {
		return false
	}
	return authz.HasAllPermissions(id.Role, req.RequiredPermissions...)
}

func withFrom(target, from string) string {
	if from == "" {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("from", from)
	u.RawQuery = q.Encode()
	return u.String()
}

// State is a fixed Snapshot, used server side where identity is resolved
// before handlers run.
type State struct {
	Loading  bool
	Identity *identity.Identity
}

// IsLoading implements Snapshot.
func (s State) IsLoading() bool { return s.Loading }

// Principal implements Snapshot.
func (s State) Principal() (identity.Identity, bool) {
	if s.Identity == nil {
		return identity.Identity{}, false
	}
	return *s.Identity, true
}
