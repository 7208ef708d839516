package authz

var rolePermissions = map[Role]map[Permission]struct{}{
	RoleAdmin: setOf(allPermissions...),
	RoleManager: setOf(
		PermViewRFPs, PermCreateRFP, PermEditRFP, PermDeleteRFP, PermAnalyzeRFP,
		PermViewProposals, PermCreateProposal, PermEditProposal, PermDeleteProposal, PermSubmitProposal, PermApproveProposal,
		PermViewClients, PermCreateClient, PermEditClient,
		PermViewPrototypes, PermCreatePrototype, PermEditPrototype,
		PermViewUsers,
	),
	RoleWriter: setOf(
		PermViewRFPs,
		PermViewProposals, PermCreateProposal, PermEditProposal,
		PermViewClients,
		PermViewPrototypes, PermCreatePrototype, PermEditPrototype,
	),
	RoleReviewer: setOf(
		PermViewRFPs,
		PermViewProposals, PermApproveProposal,
		PermViewClients,
		PermViewPrototypes,
	),
}

func setOf(perms ...Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// RolePermissions returns the permissions granted to role in display order.
// Unknown roles have none.
func RolePermissions(role Role) []Permission {
	granted := rolePermissions[role]
	out := make([]Permission, 0, len(granted))
	for _, p := range allPermissions {
		if _, ok := granted[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	_, ok := rolePermissions[role][perm]
	return ok
}

// HasAnyPermission reports whether role grants at least one of perms.
// An empty list is never satisfied.
func HasAnyPermission(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether role grants every one of perms.
// An empty list is vacuously satisfied.
func HasAllPermissions(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}

// Matrix is a row per role, used to render the permission overview.
type Matrix struct {
	Roles       []Role
	Permissions []Permission
	Grants      map[Role]map[Permission]bool
}

// BuildMatrix snapshots the static table for display.
func BuildMatrix() Matrix {
	m := Matrix{Roles: AllRoles(), Permissions: AllPermissions(), Grants: make(map[Role]map[Permission]bool, len(allRoles))}
	for _, role := range allRoles {
		row := make(map[Permission]bool, len(allPermissions))
		for _, p := range allPermissions {
			row[p] = HasPermission(role, p)
		}
		m.Grants[role] = row
	}
	return m
}
