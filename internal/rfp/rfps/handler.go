package rfps

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/guard"
	"github.com/rfpdesk/rfpdesk/internal/rfp/clients"
	"github.com/rfpdesk/rfpdesk/internal/rfp/comments"
	"github.com/rfpdesk/rfpdesk/internal/rfp/requirements"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
	"github.com/rfpdesk/rfpdesk/internal/users"
)

// ClientOptions lists clients for the form's client picker.
type ClientOptions interface {
	Options(ctx context.Context) ([]clients.Client, error)
}

// People lists users an RFP can be assigned to.
type People interface {
	ListActive(ctx context.Context) ([]users.Profile, error)
}

// Handler serves the /rfps pages.
type Handler struct {
	shared.Pages
	service      *Service
	guard        guard.Middleware
	clients      ClientOptions
	people       People
	requirements *requirements.Handler
	comments     *comments.Handler
}

// NewHandler builds a Handler. The requirement and comment handlers are
// mounted under each RFP.
func NewHandler(pages shared.Pages, service *Service, guard guard.Middleware, clients ClientOptions, people People, reqs *requirements.Handler, comments *comments.Handler) *Handler {
	return &Handler{Pages: pages, service: service, guard: guard, clients: clients, people: people, requirements: reqs, comments: comments}
}

// MountRoutes registers RFP routes on a router mounted at /rfps.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.RequirePermissions(authz.PermViewRFPs))
	r.Get("/", h.list)
	r.With(h.guard.RequirePermissions(authz.PermCreateRFP)).Get("/new", h.newForm)
	r.With(h.guard.RequirePermissions(authz.PermCreateRFP)).Post("/", h.create)
	r.Route("/{rfpID}", func(r chi.Router) {
		r.Get("/", h.show)
		r.With(h.guard.RequirePermissions(authz.PermEditRFP)).Get("/edit", h.editForm)
		r.With(h.guard.RequirePermissions(authz.PermEditRFP)).Post("/", h.update)
		r.Post("/status", h.changeStatus)
		r.With(h.guard.RequirePermissions(authz.PermAnalyzeRFP)).Post("/analysis", h.saveAnalysis)
		r.With(h.guard.RequirePermissions(authz.PermDeleteRFP)).Post("/delete", h.delete)
		if h.requirements != nil {
			r.Route("/requirements", func(r chi.Router) {
				r.Group(h.requirements.MountRoutes)
				if h.comments != nil {
					r.Route("/{id}/comments", func(r chi.Router) {
						h.comments.Mount(r, comments.TargetRequirement, "id", backToRFP)
					})
				}
			})
		}
		if h.comments != nil {
			r.Route("/comments", func(r chi.Router) {
				h.comments.Mount(r, comments.TargetRFP, "rfpID", backToRFP)
			})
		}
	})
}

func backToRFP(r *http.Request) string {
	return "/rfps/" + chi.URLParam(r, "rfpID")
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.FiltersFromQuery(q)
	filters := filtersFromQuery(q)
	items, total, err := h.service.List(r.Context(), page, filters)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	options, _ := h.clients.Options(r.Context())
	h.Render(w, r, "pages/rfps_list.html", "RFPs", map[string]any{
		"RFPs":       items,
		"Filters":    page,
		"Query":      q,
		"Statuses":   Statuses(),
		"Clients":    options,
		"Now":        time.Now(),
		"Pagination": internalShared.NewPagination(page.Normalize().Page, page.Normalize().Limit, total),
	}, http.StatusOK)
}

func filtersFromQuery(q url.Values) ListFilters {
	var f ListFilters
	for _, s := range q["status"] {
		if st := Status(s); st.Valid() {
			f.Statuses = append(f.Statuses, st)
		}
	}
	if id, err := uuid.Parse(q.Get("client_id")); err == nil {
		f.ClientID = &id
	}
	if id, err := uuid.Parse(q.Get("assignee_id")); err == nil {
		f.AssigneeID = &id
	}
	if t, err := time.Parse(time.DateOnly, q.Get("due_from")); err == nil {
		f.DueFrom = &t
	}
	if t, err := time.Parse(time.DateOnly, q.Get("due_to")); err == nil {
		f.DueTo = &t
	}
	return f
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := shared.IDParam(r, "rfpID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	detail, err := h.service.Detail(r.Context(), id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Render(w, r, "pages/rfp_detail.html", detail.RFP.Title, map[string]any{
		"RFP":          detail.RFP,
		"Client":       detail.Client,
		"Requirements": detail.Requirements,
		"Comments":     detail.Comments,
		"Activity":     detail.Activity,
		"Statuses":     Statuses(),
		"Overdue":      detail.RFP.Overdue(time.Now()),
		"Analysis":     string(detail.RFP.AIAnalysis),
	}, http.StatusOK)
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	form := RFPForm{ReceivedDate: time.Now().Format(time.DateOnly)}
	if c := r.URL.Query().Get("client_id"); c != "" {
		form.ClientID = c
	}
	h.renderForm(w, r, nil, form, nil, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	form, err := parseForm(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	created, err := h.service.Create(r.Context(), actor, form)
	if err != nil {
		h.renderForm(w, r, nil, form, err, shared.StatusFor(err))
		return
	}
	h.RedirectWithFlash(w, r, "/rfps/"+created.ID.String(), "success", "RFP registered")
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	id, err := shared.IDParam(r, "rfpID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.renderForm(w, r, &item, FormFrom(item), nil, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := shared.IDParam(r, "rfpID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	form, err := parseForm(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if _, err := h.service.Update(r.Context(), actor, id, form); err != nil {
		h.renderForm(w, r, &RFP{ID: id, Title: form.Title}, form, err, shared.StatusFor(err))
		return
	}
	h.RedirectWithFlash(w, r, "/rfps/"+id.String(), "success", "RFP updated")
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := shared.IDParam(r, "rfpID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	back := "/rfps/" + id.String()
	if _, err := h.service.ChangeStatus(r.Context(), actor, id, Status(r.PostFormValue("status"))); err != nil {
		h.RedirectWithFlash(w, r, back, "error", internalShared.UserSafeMessage(err))
		return
	}
	h.RedirectWithFlash(w, r, back, "success", "Status updated")
}

func (h *Handler) saveAnalysis(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := shared.IDParam(r, "rfpID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	back := "/rfps/" + id.String() + "#analysis"
	if err := h.service.SaveAnalysis(r.Context(), actor, id, r.PostFormValue("analysis")); err != nil {
		h.RedirectWithFlash(w, r, back, "error", internalShared.UserSafeMessage(err))
		return
	}
	h.RedirectWithFlash(w, r, back, "success", "Analysis saved")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := shared.IDParam(r, "rfpID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.RedirectWithFlash(w, r, "/rfps/"+id.String(), "error", internalShared.UserSafeMessage(err))
		return
	}
	h.RedirectWithFlash(w, r, "/rfps", "success", "RFP deleted")
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, item *RFP, form RFPForm, err error, status int) {
	errs := map[string]string{}
	if err != nil {
		errs = internalShared.FieldErrors(err)
		if status != http.StatusBadRequest || len(errs) == 0 {
			errs = map[string]string{"general": internalShared.UserSafeMessage(err)}
		}
	}
	title := "New RFP"
	if item != nil {
		title = "Edit RFP"
	}
	options, optErr := h.clients.Options(r.Context())
	if optErr != nil {
		h.Logger.Warn("load client options", "error", optErr)
	}
	var people []users.Profile
	if h.people != nil {
		if people, optErr = h.people.ListActive(r.Context()); optErr != nil {
			h.Logger.Warn("load assignees", "error", optErr)
		}
	}
	h.Render(w, r, "pages/rfp_form.html", title, map[string]any{
		"RFP":       item,
		"Form":      form,
		"Errors":    errs,
		"Clients":   options,
		"Assignees": people,
	}, status)
}

func parseForm(r *http.Request) (RFPForm, error) {
	if err := r.ParseForm(); err != nil {
		return RFPForm{}, err
	}
	return RFPForm{
		Title:             r.PostFormValue("title"),
		ClientID:          r.PostFormValue("client_id"),
		ReceivedDate:      r.PostFormValue("received_date"),
		DueDate:           r.PostFormValue("due_date"),
		EstimatedBudget:   r.PostFormValue("estimated_budget"),
		EstimatedDuration: r.PostFormValue("estimated_duration"),
		Description:       r.PostFormValue("description"),
		AssigneeID:        r.PostFormValue("assignee_id"),
	}, nil
}
