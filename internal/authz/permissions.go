// Package authz holds the static role and permission tables shared by the
// edge filter, the route guard and the session store.
package authz

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is one of the four fixed application roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleWriter   Role = "writer"
	RoleReviewer Role = "reviewer"
)

// Permission is an atomic capability checked by handlers and views.
type Permission string

// RFP permissions.
const (
	PermViewRFPs   Permission = "view_rfps"
	PermCreateRFP  Permission = "create_rfp"
	PermEditRFP    Permission = "edit_rfp"
	PermDeleteRFP  Permission = "delete_rfp"
	PermAnalyzeRFP Permission = "analyze_rfp"
)

// Proposal permissions.
const (
	PermViewProposals   Permission = "view_proposals"
	PermCreateProposal  Permission = "create_proposal"
	PermEditProposal    Permission = "edit_proposal"
	PermDeleteProposal  Permission = "delete_proposal"
	PermSubmitProposal  Permission = "submit_proposal"
	PermApproveProposal Permission = "approve_proposal"
)

// Client permissions.
const (
	PermViewClients  Permission = "view_clients"
	PermCreateClient Permission = "create_client"
	PermEditClient   Permission = "edit_client"
	PermDeleteClient Permission = "delete_client"
)

// Prototype permissions.
const (
	PermViewPrototypes  Permission = "view_prototypes"
	PermCreatePrototype Permission = "create_prototype"
	PermEditPrototype   Permission = "edit_prototype"
	PermDeletePrototype Permission = "delete_prototype"
)

// User administration permissions. Accounts are created through sign-up
// and never hard-deleted, so create_user and delete_user appear in the
// matrix without gating a route.
const (
	PermViewUsers      Permission = "view_users"
	PermCreateUser     Permission = "create_user"
	PermEditUser       Permission = "edit_user"
	PermDeleteUser     Permission = "delete_user"
	PermChangeUserRole Permission = "change_user_role"
)

var allRoles = []Role{RoleAdmin, RoleManager, RoleWriter, RoleReviewer}

var allPermissions = []Permission{
	PermViewRFPs, PermCreateRFP, PermEditRFP, PermDeleteRFP, PermAnalyzeRFP,
	PermViewProposals, PermCreateProposal, PermEditProposal, PermDeleteProposal, PermSubmitProposal, PermApproveProposal,
	PermViewClients, PermCreateClient, PermEditClient, PermDeleteClient,
	PermViewPrototypes, PermCreatePrototype, PermEditPrototype, PermDeletePrototype,
	PermViewUsers, PermCreateUser, PermEditUser, PermDeleteUser, PermChangeUserRole,
}

// AllRoles returns the known roles in display order.
func AllRoles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// AllPermissions returns every permission in display order.
func AllPermissions() []Permission {
	out := make([]Permission, len(allPermissions))
	copy(out, allPermissions)
	return out
}

// ParseRole converts a stored string into a Role. Unknown values are rejected.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range allRoles {
		if role == known {
			return role, true
		}
	}
	return "", false
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

var roleLabels = map[Role]string{
	RoleAdmin:    "Administrator",
	RoleManager:  "Manager",
	RoleWriter:   "Writer",
	RoleReviewer: "Reviewer",
}

var titleCaser = cases.Title(language.English)

// Label returns the human readable role name.
func (r Role) Label() string {
	if label, ok := roleLabels[r]; ok {
		return label
	}
	return titleCaser.String(string(r))
}

// Label renders the permission as words, e.g. "Approve Proposal".
func (p Permission) Label() string {
	return titleCaser.String(strings.ReplaceAll(string(p), "_", " "))
}
