package authz

import (
	"errors"
	"fmt"
	"strings"
)

// PathClass groups request paths by how the edge filter treats them.
type PathClass int

const (
	PathUnclassified PathClass = iota
	PathPublic
	PathAuthOnly
	PathProtected
)

func (c PathClass) String() string {
	switch c {
	case PathPublic:
		return "public"
	case PathAuthOnly:
		return "auth_only"
	case PathProtected:
		return "protected"
	default:
		return "unclassified"
	}
}

// Wildcard grants a role every path.
const Wildcard = "*"

// RoutePolicy is the single source of path classification and per-role
// path allow-lists.
type RoutePolicy struct {
	PublicPaths             []string
	AuthOnlyPaths           []string
	ProtectedPaths          []string
	RoleAllowedPathPrefixes map[Role][]string
	BypassPrefixes          []string

	LoginPath     string
	LandingPath   string
	ForbiddenPath string
}

// DefaultRoutePolicy returns the application's route table.
func DefaultRoutePolicy() RoutePolicy {
	return RoutePolicy{
		PublicPaths:    []string{"/auth/reset-password", "/auth/update-password", "/auth/callback"},
		AuthOnlyPaths:  []string{"/login", "/signup"},
		ProtectedPaths: []string{"/rfps", "/proposals", "/clients", "/prototypes", "/settings"},
		RoleAllowedPathPrefixes: map[Role][]string{
			RoleAdmin:    {Wildcard},
			RoleManager:  {"/rfps", "/proposals", "/clients", "/prototypes", "/settings"},
			RoleWriter:   {"/rfps", "/proposals", "/clients"},
			RoleReviewer: {"/rfps", "/proposals", "/clients"},
		},
		BypassPrefixes: []string{"/static", "/api"},
		LoginPath:      "/login",
		LandingPath:    "/rfps",
		ForbiddenPath:  "/403",
	}
}

// Bypassed reports whether the edge filter should ignore path entirely:
// asset and API prefixes, or anything that looks like a file.
func (p RoutePolicy) Bypassed(path string) bool {
	if strings.Contains(path, ".") {
		return true
	}
	return hasAnyPrefix(path, p.BypassPrefixes)
}

// Classify returns the class of path. Lists are checked public first, then
// auth-only, then protected.
func (p RoutePolicy) Classify(path string) PathClass {
	switch {
	case hasAnyPrefix(path, p.PublicPaths):
		return PathPublic
	case hasAnyPrefix(path, p.AuthOnlyPaths):
		return PathAuthOnly
	case hasAnyPrefix(path, p.ProtectedPaths):
		return PathProtected
	default:
		return PathUnclassified
	}
}

// RouteAllowed reports whether role may visit path. Roles without an
// allow-list are denied.
func (p RoutePolicy) RouteAllowed(path string, role Role) bool {
	for _, prefix := range p.RoleAllowedPathPrefixes[role] {
		if prefix == Wildcard || strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Validate checks the policy tables for overlaps and gaps.
func (p RoutePolicy) Validate() error {
	var errs []error
	lists := []struct {
		name  string
		paths []string
	}{
		{"public", p.PublicPaths},
		{"auth-only", p.AuthOnlyPaths},
		{"protected", p.ProtectedPaths},
	}
	for i := range lists {
		for j := i + 1; j < len(lists); j++ {
			for _, a := range lists[i].paths {
				for _, b := range lists[j].paths {
					if strings.HasPrefix(a, b) || strings.HasPrefix(b, a) {
						errs = append(errs, fmt.Errorf("authz: %s path %q overlaps %s path %q", lists[i].name, a, lists[j].name, b))
					}
				}
			}
		}
	}
	for _, role := range allRoles {
		if len(p.RoleAllowedPathPrefixes[role]) == 0 {
			errs = append(errs, fmt.Errorf("authz: role %s has no allowed paths", role))
		}
		if len(rolePermissions[role]) == 0 {
			errs = append(errs, fmt.Errorf("authz: role %s has no permissions", role))
		}
	}
	if p.LoginPath == "" || p.LandingPath == "" || p.ForbiddenPath == "" {
		errs = append(errs, errors.New("authz: login, landing and forbidden paths are required"))
	}
	return errors.Join(errs...)
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
