package prototypes

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/guard"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

// Handler serves the prototype gallery at /prototypes and the per-proposal
// routes under /proposals/{proposalID}/prototypes.
type Handler struct {
	shared.Pages
	service *Service
	guard   guard.Middleware
}

// NewHandler builds a Handler.
func NewHandler(pages shared.Pages, service *Service, guard guard.Middleware) *Handler {
	return &Handler{Pages: pages, service: service, guard: guard}
}

// MountIndex registers the cross-proposal gallery.
func (h *Handler) MountIndex(r chi.Router) {
	r.With(h.guard.RequirePermissions(authz.PermViewPrototypes)).Get("/", h.list)
}

// MountRoutes registers the routes for one proposal's prototypes.
func (h *Handler) MountRoutes(r chi.Router) {
	view := h.guard.RequirePermissions(authz.PermViewPrototypes)
	create := h.guard.RequirePermissions(authz.PermCreatePrototype)
	edit := h.guard.RequirePermissions(authz.PermEditPrototype)
	r.With(create).Get("/new", h.newForm)
	r.With(create).Post("/", h.create)
	r.Route("/{prototypeID}", func(r chi.Router) {
		r.With(view).Get("/", h.show)
		r.With(edit).Get("/edit", h.editForm)
		r.With(edit).Post("/", h.update)
		r.With(edit).Post("/status", h.setStatus)
		r.With(edit).Post("/move", h.move)
		r.With(h.guard.RequirePermissions(authz.PermDeletePrototype)).Post("/delete", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page := shared.FiltersFromQuery(q)
	filter := Filter{
		Type:        Type(q.Get("type")),
		Status:      Status(q.Get("status")),
		AIGenerated: q.Get("ai") != "",
	}
	items, total, err := h.service.List(r.Context(), actor, page, filter)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Render(w, r, "pages/prototypes.html", "Prototypes", map[string]any{
		"Prototypes": items,
		"Filters":    page,
		"Query":      q,
		"Types":      Types(),
		"Statuses":   Statuses(),
		"Pagination": internalShared.NewPagination(page.Page, page.Limit, total),
	}, http.StatusOK)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	proposalID, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	item, err := h.service.Get(r.Context(), proposalID, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Render(w, r, "pages/prototype_detail.html", item.Name, map[string]any{
		"Prototype":  item,
		"Next":       Next(item.Status),
		"CanApprove": CanMove(item.Status, StatusApproved),
	}, http.StatusOK)
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	proposalID, err := shared.IDParam(r, "proposalID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	form := PrototypeForm{Type: r.URL.Query().Get("type")}
	if !Type(form.Type).Valid() {
		form.Type = string(TypeWireframe)
	}
	h.renderForm(w, r, proposalID, nil, form, nil, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	proposalID, err := shared.IDParam(r, "proposalID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	form, err := parseForm(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	item, err := h.service.Create(r.Context(), actor, proposalID, form)
	if err != nil {
		h.renderForm(w, r, proposalID, nil, form, err, shared.StatusFor(err))
		return
	}
	h.RedirectWithFlash(w, r, prototypePath(proposalID, item.ID), "success", "Prototype added")
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	proposalID, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	item, err := h.service.Get(r.Context(), proposalID, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.renderForm(w, r, proposalID, &item, FormFrom(item), nil, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	proposalID, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	form, err := parseForm(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if _, err := h.service.Update(r.Context(), actor, proposalID, id, form); err != nil {
		h.renderForm(w, r, proposalID, &Prototype{ID: id, ProposalID: proposalID}, form, err, shared.StatusFor(err))
		return
	}
	h.RedirectWithFlash(w, r, prototypePath(proposalID, id), "success", "Prototype updated")
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, true, "Prototype status updated", func(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID) error {
		_, err := h.service.SetStatus(ctx, actor, proposalID, id, Status(r.PostFormValue("status")))
		return err
	})
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, false, "Prototype moved", func(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID) error {
		pos, err := strconv.Atoi(r.PostFormValue("position"))
		if err != nil {
			cur, err := h.service.Position(ctx, proposalID, id)
			if err != nil {
				return err
			}
			pos = shared.Step(cur, r.PostFormValue("direction"))
		}
		return h.service.Move(ctx, actor, proposalID, id, pos)
	})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, false, "Prototype deleted", func(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID) error {
		return h.service.Delete(ctx, actor, proposalID, id)
	})
}

// action runs a post-and-redirect operation on the prototype in the route.
// Successful status changes return to the prototype, everything else to the
// proposal.
func (h *Handler) action(w http.ResponseWriter, r *http.Request, stay bool, success string, fn func(context.Context, identity.Identity, uuid.UUID, uuid.UUID) error) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	proposalID, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	back := proposalPath(proposalID)
	if stay {
		back = prototypePath(proposalID, id)
	}
	if err := fn(r.Context(), actor, proposalID, id); err != nil {
		h.RedirectWithFlash(w, r, back, "error", internalShared.UserSafeMessage(err))
		return
	}
	h.RedirectWithFlash(w, r, back, "success", success)
}

func (h *Handler) ids(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	proposalID, err := shared.IDParam(r, "proposalID")
	if err != nil {
		h.Fail(w, r, err)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := shared.IDParam(r, "prototypeID")
	if err != nil {
		h.Fail(w, r, err)
		return uuid.Nil, uuid.Nil, false
	}
	return proposalID, id, true
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, proposalID uuid.UUID, item *Prototype, form PrototypeForm, err error, status int) {
	errs := map[string]string{}
	if err != nil {
		errs = internalShared.FieldErrors(err)
		if status != http.StatusBadRequest || len(errs) == 0 {
			errs = map[string]string{"general": internalShared.UserSafeMessage(err)}
		}
	}
	title := "New prototype"
	if item != nil {
		title = "Edit prototype"
	}
	h.Render(w, r, "pages/prototype_form.html", title, map[string]any{
		"ProposalID": proposalID,
		"Prototype":  item,
		"Form":       form,
		"Errors":     errs,
		"Types":      Types(),
	}, status)
}

func parseForm(r *http.Request) (PrototypeForm, error) {
	if err := r.ParseForm(); err != nil {
		return PrototypeForm{}, err
	}
	return PrototypeForm{
		Name:          r.PostFormValue("name"),
		Type:          r.PostFormValue("type"),
		Description:   r.PostFormValue("description"),
		ImageURL:      r.PostFormValue("image_url"),
		FigmaURL:      r.PostFormValue("figma_url"),
		HTMLCode:      r.PostFormValue("html_code"),
		IsAIGenerated: r.PostFormValue("is_ai_generated") != "",
		AIPrompt:      r.PostFormValue("ai_prompt"),
		GeneratedFrom: r.PostFormValue("generated_from"),
	}, nil
}

func proposalPath(id uuid.UUID) string { return "/proposals/" + id.String() }

func prototypePath(proposalID, id uuid.UUID) string {
	return "/proposals/" + proposalID.String() + "/prototypes/" + id.String()
}
