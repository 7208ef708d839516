package guard

import (
	"log/slog"
	"net/http"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/shared"
	"github.com/rfpdesk/rfpdesk/internal/view"
)

// Middleware wires guard decisions into chi route groups.
type Middleware struct {
	Policy    authz.RoutePolicy
	Templates *view.Engine
	CSRF      *shared.CSRFManager
	Logger    *slog.Logger
}

// Require blocks requests that do not satisfy req.
func (m Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := Decide(stateFromRequest(r), req, r.URL.RequestURI(), m.Policy.LoginPath)
			switch decision.Kind {
			case Allow:
				next.ServeHTTP(w, r)
			case Redirect:
				http.Redirect(w, r, decision.Location, http.StatusSeeOther)
			case Pending:
				m.render(w, r, http.StatusServiceUnavailable, "pages/loading.html", "Loading")
			default:
				if m.Logger != nil {
					id, _ := identity.FromContext(r.Context())
					m.Logger.Info("guard denied request", slog.String("path", r.URL.Path), slog.String("role", string(id.Role)))
				}
				m.Forbidden(w, r)
			}
		})
	}
}

// RequirePermissions is shorthand for a permission-only requirement.
func (m Middleware) RequirePermissions(perms ...authz.Permission) func(http.Handler) http.Handler {
	return m.Require(Requirement{RequiredPermissions: perms})
}

// RequireRoles is shorthand for a role-only requirement.
func (m Middleware) RequireRoles(roles ...authz.Role) func(http.Handler) http.Handler {
	return m.Require(Requirement{AllowedRoles: roles})
}

// Forbidden renders the access denied view with status 403.
func (m Middleware) Forbidden(w http.ResponseWriter, r *http.Request) {
	m.render(w, r, http.StatusForbidden, "pages/forbidden.html", "Access denied")
}

func (m Middleware) render(w http.ResponseWriter, r *http.Request, status int, name, title string) {
	if m.Templates == nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	data := view.BaseData(r, m.CSRF, title)
	if err := m.Templates.RenderStatus(w, status, name, data); err != nil && m.Logger != nil {
		m.Logger.Error("render guard page", slog.Any("error", err))
	}
}

func stateFromRequest(r *http.Request) State {
	if id, ok := identity.FromContext(r.Context()); ok {
		return State{Identity: &id}
	}
	return State{}
}
