package requirements

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/guard"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

// Handler serves requirement forms. Routes are mounted under
// /rfps/{rfpID}/requirements.
type Handler struct {
	shared.Pages
	service *Service
	guard   guard.Middleware
}

// NewHandler builds a Handler.
func NewHandler(pages shared.Pages, service *Service, guard guard.Middleware) *Handler {
	return &Handler{Pages: pages, service: service, guard: guard}
}

// MountRoutes registers requirement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.RequirePermissions(authz.PermEditRFP))
	r.Get("/new", h.newForm)
	r.Post("/", h.create)
	r.Post("/reorder", h.reorder)
	r.Get("/{id}/edit", h.editForm)
	r.Post("/{id}", h.update)
	r.Post("/{id}/delete", h.delete)
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	rfpID, err := shared.IDParam(r, "rfpID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.renderForm(w, r, rfpID, nil, RequirementForm{Category: string(CategoryFunctional), Priority: string(PriorityMust)}, nil, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	rfpID, err := shared.IDParam(r, "rfpID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	form, err := parseForm(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if _, err := h.service.Create(r.Context(), actor, rfpID, form); err != nil {
		h.renderForm(w, r, rfpID, nil, form, err, shared.StatusFor(err))
		return
	}
	h.RedirectWithFlash(w, r, rfpPath(rfpID), "success", "Requirement added")
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	rfpID, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	item, err := h.service.Get(r.Context(), rfpID, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	form := RequirementForm{
		Category:           string(item.Category),
		Priority:           string(item.Priority),
		Title:              item.Title,
		Description:        item.Description,
		AcceptanceCriteria: item.AcceptanceCriteria,
		Complexity:         string(item.Complexity),
		SuggestedSolution:  item.SuggestedSolution,
	}
	if item.EstimatedHours != nil {
		form.EstimatedHours = formatHours(*item.EstimatedHours)
	}
	h.renderForm(w, r, rfpID, &item, form, nil, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	rfpID, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	form, err := parseForm(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if _, err := h.service.Update(r.Context(), actor, rfpID, id, form); err != nil {
		h.renderForm(w, r, rfpID, &Requirement{ID: id, RFPID: rfpID}, form, err, shared.StatusFor(err))
		return
	}
	h.RedirectWithFlash(w, r, rfpPath(rfpID), "success", "Requirement updated")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	rfpID, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, rfpID, id); err != nil {
		h.RedirectWithFlash(w, r, rfpPath(rfpID), "error", internalShared.UserSafeMessage(err))
		return
	}
	h.RedirectWithFlash(w, r, rfpPath(rfpID), "success", "Requirement deleted")
}

func (h *Handler) reorder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	rfpID, err := shared.IDParam(r, "rfpID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ids := make([]uuid.UUID, 0, len(r.PostForm["order"]))
	for _, raw := range r.PostForm["order"] {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.RedirectWithFlash(w, r, rfpPath(rfpID), "error", "Invalid requirement order")
			return
		}
		ids = append(ids, id)
	}
	if err := h.service.Reorder(r.Context(), actor, rfpID, ids); err != nil {
		h.RedirectWithFlash(w, r, rfpPath(rfpID), "error", internalShared.UserSafeMessage(err))
		return
	}
	h.RedirectWithFlash(w, r, rfpPath(rfpID), "success", "Requirements reordered")
}

func (h *Handler) ids(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	rfpID, err := shared.IDParam(r, "rfpID")
	if err != nil {
		h.Fail(w, r, err)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := shared.IDParam(r, "id")
	if err != nil {
		h.Fail(w, r, err)
		return uuid.Nil, uuid.Nil, false
	}
	return rfpID, id, true
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, rfpID uuid.UUID, item *Requirement, form RequirementForm, err error, status int) {
	errs := map[string]string{}
	if err != nil {
		errs = internalShared.FieldErrors(err)
		if status != http.StatusBadRequest {
			errs = map[string]string{"general": internalShared.UserSafeMessage(err)}
		}
	}
	title := "New requirement"
	if item != nil {
		title = "Edit requirement"
	}
	h.Render(w, r, "pages/requirement_form.html", title, map[string]any{
		"RFPID":       rfpID,
		"Requirement": item,
		"Form":        form,
		"Errors":      errs,
		"Categories":  Categories(),
		"Priorities":  Priorities(),
	}, status)
}

func parseForm(r *http.Request) (RequirementForm, error) {
	if err := r.ParseForm(); err != nil {
		return RequirementForm{}, err
	}
	return RequirementForm{
		Category:           r.PostFormValue("category"),
		Priority:           r.PostFormValue("priority"),
		Title:              r.PostFormValue("title"),
		Description:        r.PostFormValue("description"),
		AcceptanceCriteria: r.PostFormValue("acceptance_criteria"),
		Complexity:         r.PostFormValue("complexity"),
		EstimatedHours:     r.PostFormValue("estimated_hours"),
		SuggestedSolution:  r.PostFormValue("suggested_solution"),
	}, nil
}

func rfpPath(id uuid.UUID) string { return "/rfps/" + id.String() }
