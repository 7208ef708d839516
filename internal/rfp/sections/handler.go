package sections

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

// Handler serves section forms. Routes are mounted under
// /proposals/{proposalID}/sections; the sections themselves are listed on
// the proposal page.
type Handler struct {
	shared.Pages
	service *Service
	guard   guard.Middleware
}

// NewHandler builds a Handler.
func NewHandler(pages shared.Pages, service *Service, guard guard.Middleware) *Handler {
	return &Handler{Pages: pages, service: service, guard: guard}
}

// MountRoutes registers section routes.
func (h *Handler) MountRoutes(r chi.Router) {
	edit := h.guard.RequirePermissions(authz.PermEditProposal)
	r.With(edit).Get("/new", h.newForm)
	r.With(edit).Post("/", h.create)
	r.Route("/{sectionID}", func(r chi.Router) {
		r.With(edit).Get("/edit", h.editForm)
		r.With(edit).Post("/", h.update)
		r.With(edit).Post("/review", h.requestReview)
		r.With(edit).Post("/move", h.move)
		r.With(edit).Post("/delete", h.delete)
		r.With(h.guard.RequirePermissions(authz.PermApproveProposal)).Post("/approve", h.approve)
	})
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	proposalID, err := shared.IDParam(r, "proposalID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	form := SectionForm{Type: r.URL.Query().Get("type")}
	if !Type(form.Type).Valid() {
		form.Type = string(TypeExecutiveSummary)
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
	if _, err := h.service.Create(r.Context(), actor, proposalID, form); err != nil {
		h.renderForm(w, r, proposalID, nil, form, err, shared.StatusFor(err))
		return
	}
	h.RedirectWithFlash(w, r, proposalPath(proposalID), "success", "Section added")
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
		h.renderForm(w, r, proposalID, &Section{ID: id, ProposalID: proposalID}, form, err, shared.StatusFor(err))
		return
	}
	h.RedirectWithFlash(w, r, proposalPath(proposalID), "success", "Section updated")
}

func (h *Handler) requestReview(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "Section sent for review", func(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID) error {
		_, err := h.service.RequestReview(ctx, actor, proposalID, id)
		return err
	})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "Section approved", func(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID) error {
		_, err := h.service.Approve(ctx, actor, proposalID, id)
		return err
	})
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "Section moved", func(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID) error {
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
	h.action(w, r, "Section deleted", func(ctx context.Context, actor identity.Identity, proposalID, id uuid.UUID) error {
		return h.service.Delete(ctx, actor, proposalID, id)
	})
}

// action runs a post-and-redirect operation on the section in the route.
func (h *Handler) action(w http.ResponseWriter, r *http.Request, success string, fn func(context.Context, identity.Identity, uuid.UUID, uuid.UUID) error) {
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
	id, err := shared.IDParam(r, "sectionID")
	if err != nil {
		h.Fail(w, r, err)
		return uuid.Nil, uuid.Nil, false
	}
	return proposalID, id, true
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, proposalID uuid.UUID, item *Section, form SectionForm, err error, status int) {
	errs := map[string]string{}
	if err != nil {
		errs = internalShared.FieldErrors(err)
		if status != http.StatusBadRequest || len(errs) == 0 {
			errs = map[string]string{"general": internalShared.UserSafeMessage(err)}
		}
	}
	title := "New section"
	if item != nil {
		title = "Edit section"
	}
	h.Render(w, r, "pages/section_form.html", title, map[string]any{
		"ProposalID": proposalID,
		"Section":    item,
		"Form":       form,
		"Errors":     errs,
		"Types":      Types(),
	}, status)
}

func parseForm(r *http.Request) (SectionForm, error) {
	if err := r.ParseForm(); err != nil {
		return SectionForm{}, err
	}
	return SectionForm{
		Type:          r.PostFormValue("type"),
		Title:         r.PostFormValue("title"),
		Content:       r.PostFormValue("content"),
		AIPrompt:      r.PostFormValue("ai_prompt"),
		IsAIGenerated: r.PostFormValue("is_ai_generated") != "",
	}, nil
}

func proposalPath(id uuid.UUID) string { return "/proposals/" + id.String() }
