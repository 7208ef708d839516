package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
)

func principal(role authz.Role) State {
	return State{Identity: &identity.Identity{Email: string(role) + "@example.com", Role: role}}
}

func TestDecidePendingWhileLoading(t *testing.T) {
	d := Decide(State{Loading: true}, Requirement{}, "/rfps", "/login")
	assert.Equal(t, Pending, d.Kind)

	d = Decide(nil, Requirement{}, "/rfps", "/login")
	assert.Equal(t, Pending, d.Kind)
}

func TestDecideRedirectsAnonymous(t *testing.T) {
	d := Decide(State{}, Requirement{}, "/rfps/42", "/login")
	assert.Equal(t, Redirect, d.Kind)
	assert.Equal(t, "/login?from=%2Frfps%2F42", d.Location)

	d = Decide(State{}, Requirement{RedirectTo: "/signup?plan=team"}, "/rfps", "/login")
	assert.Equal(t, "/signup?from=%2Frfps&plan=team", d.Location)
}

func TestDecideDeniesWrongRoleWithoutRedirect(t *testing.T) {
	d := Decide(principal(authz.RoleWriter), Requirement{AllowedRoles: []authz.Role{authz.RoleAdmin}}, "/settings/users", "/login")
	assert.Equal(t, Deny, d.Kind)
	assert.Empty(t, d.Location)
}

func TestDecideRequiresAllPermissions(t *testing.T) {
	req := Requirement{RequiredPermissions: []authz.Permission{authz.PermViewRFPs, authz.PermCreateRFP}}

	assert.Equal(t, Deny, Decide(principal(authz.RoleWriter), req, "/rfps/new", "/login").Kind)
	assert.Equal(t, Allow, Decide(principal(authz.RoleManager), req, "/rfps/new", "/login").Kind)
}

func TestDecideEmptyRequirementAllowsAnyPrincipal(t *testing.T) {
	for _, role := range authz.AllRoles() {
		assert.Equal(t, Allow, Decide(principal(role), Requirement{}, "/rfps", "/login").Kind)
	}
}

func TestDecideRoleAndPermission(t *testing.T) {
	req := Requirement{
		AllowedRoles:        []authz.Role{authz.RoleManager, authz.RoleReviewer},
		RequiredPermissions: []authz.Permission{authz.PermApproveProposal},
	}
	assert.Equal(t, Allow, Decide(principal(authz.RoleReviewer), req, "/proposals/1", "/login").Kind)
	assert.Equal(t, Deny, Decide(principal(authz.RoleAdmin), req, "/proposals/1", "/login").Kind)
}

func TestMiddleware(t *testing.T) {
	m := Middleware{Policy: authz.DefaultRoutePolicy()}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	handler := m.RequirePermissions(authz.PermCreateClient)(ok)

	t.Run("anonymous redirects to login", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clients/new", nil))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login?from=%2Fclients%2Fnew", rec.Header().Get("Location"))
	})

	t.Run("reviewer is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/clients/new", nil)
		req = req.WithContext(identity.WithIdentity(req.Context(), identity.Identity{Role: authz.RoleReviewer}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("manager passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/clients/new", nil)
		req = req.WithContext(identity.WithIdentity(req.Context(), identity.Identity{Role: authz.RoleManager}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})
}
