package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/guard"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/shared"
	"github.com/rfpdesk/rfpdesk/internal/view"
)

// Handler manages profile and user administration pages under /settings.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     guard.Middleware
	audit     *shared.AuditLogger
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard guard.Middleware, audit *shared.AuditLogger) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, guard: guard, audit: audit}
}

// MountRoutes registers settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/settings/profile", http.StatusSeeOther)
	})
	r.Get("/profile", h.showProfile)
	r.Get("/profile/edit", h.editProfileForm)
	r.Post("/profile/edit", h.updateProfile)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermissions(authz.PermViewUsers))
		r.Get("/users", h.listUsers)
		r.Get("/permissions", h.showPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermissions(authz.PermChangeUserRole))
		r.Post("/users/{id}/role", h.changeRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermissions(authz.PermEditUser))
		r.Post("/users/{id}/activate", h.setActive(true))
		r.Post("/users/{id}/deactivate", h.setActive(false))
	})
}

type formErrors map[string]string

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	profile, err := h.service.GetProfile(r.Context(), id.ID)
	if err != nil || profile == nil {
		h.logger.Error("load profile", slog.Any("error", err))
		h.render(w, r, "pages/profile.html", "Profile", map[string]any{"Errors": formErrors{"general": "Profile could not be loaded"}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/profile.html", "Profile", map[string]any{
		"Profile":     profile,
		"Permissions": authz.RolePermissions(profile.Role),
	}, http.StatusOK)
}

func (h *Handler) editProfileForm(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	form := ProfileUpdate{Name: id.Name, Department: id.Department, Position: id.Position, Phone: id.Phone}
	h.render(w, r, "pages/profile_form.html", "Edit profile", map[string]any{"Form": form, "Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := ProfileUpdate{
		Name:       r.PostFormValue("name"),
		Department: r.PostFormValue("department"),
		Position:   r.PostFormValue("position"),
		Phone:      r.PostFormValue("phone"),
	}
	if _, err := h.service.UpdateProfile(r.Context(), id.ID, form); err != nil {
		h.render(w, r, "pages/profile_form.html", "Edit profile", map[string]any{"Form": form, "Errors": shared.FieldErrors(err)}, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/settings/profile", shared.FlashSuccess, "Profile updated")
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	filter := ListFilter{Search: r.URL.Query().Get("search"), Page: page, Limit: 20}
	if role, ok := authz.ParseRole(r.URL.Query().Get("role")); ok {
		filter.Role = role
	}
	switch r.URL.Query().Get("status") {
	case "active":
		active := true
		filter.IsActive = &active
	case "inactive":
		active := false
		filter.IsActive = &active
	}
	profiles, total, err := h.service.ListUsers(r.Context(), filter)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.render(w, r, "pages/users_list.html", "Users", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users_list.html", "Users", map[string]any{
		"Users":      profiles,
		"Filter":     filter,
		"Query":      r.URL.Query(),
		"Roles":      authz.AllRoles(),
		"Pagination": shared.NewPagination(page, filter.Limit, total),
	}, http.StatusOK)
}

func (h *Handler) showPermissions(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/permissions.html", "Permissions", map[string]any{"Matrix": authz.BuildMatrix()}, http.StatusOK)
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	actor, target, ok := h.actorAndTarget(w, r)
	if !ok {
		return
	}
	role, valid := authz.ParseRole(r.PostFormValue("role"))
	if !valid {
		h.redirectWithFlash(w, r, "/settings/users", shared.FlashError, "Unknown role")
		return
	}
	if err := h.service.SetRole(r.Context(), actor.ID, target, role); err != nil {
		h.redirectWithFlash(w, r, "/settings/users", shared.FlashError, userMessage(err))
		return
	}
	h.record(r, actor, "user.role_changed", target, map[string]any{"role": role})
	h.redirectWithFlash(w, r, "/settings/users", shared.FlashSuccess, "Role updated")
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, target, ok := h.actorAndTarget(w, r)
		if !ok {
			return
		}
		if err := h.service.SetActive(r.Context(), actor.ID, target, active); err != nil {
			h.redirectWithFlash(w, r, "/settings/users", shared.FlashError, userMessage(err))
			return
		}
		action, message := "user.deactivated", "User deactivated"
		if active {
			action, message = "user.activated", "User activated"
		}
		h.record(r, actor, action, target, nil)
		h.redirectWithFlash(w, r, "/settings/users", shared.FlashSuccess, message)
	}
}

func (h *Handler) actorAndTarget(w http.ResponseWriter, r *http.Request) (identity.Identity, uuid.UUID, bool) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return identity.Identity{}, uuid.Nil, false
	}
	target, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return identity.Identity{}, uuid.Nil, false
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return identity.Identity{}, uuid.Nil, false
	}
	return actor, target, true
}

func (h *Handler) record(r *http.Request, actor identity.Identity, action string, target uuid.UUID, meta map[string]any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(r.Context(), shared.AuditLog{ActorID: actor.ID, Action: action, Entity: "user", EntityID: target.String(), Meta: meta}); err != nil {
		h.logger.Warn("audit user change", slog.Any("error", err))
	}
}

func userMessage(err error) string {
	if errors.Is(err, ErrLastAdmin) {
		return "You cannot remove your own administrator access"
	}
	return shared.UserSafeMessage(err)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	viewData := view.BaseData(r, h.csrf, title)
	viewData.Data = data
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err), slog.String("template", template))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
