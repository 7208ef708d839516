package clients

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/guard"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

// Handler serves the /clients pages.
type Handler struct {
	shared.Pages
	service *Service
	guard   guard.Middleware
}

// NewHandler builds a Handler.
func NewHandler(pages shared.Pages, service *Service, guard guard.Middleware) *Handler {
	return &Handler{Pages: pages, service: service, guard: guard}
}

// MountRoutes registers client routes on a router mounted at /clients.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.RequirePermissions(authz.PermViewClients))
	r.Get("/", h.list)
	r.With(h.guard.RequirePermissions(authz.PermCreateClient)).Get("/new", h.newForm)
	r.With(h.guard.RequirePermissions(authz.PermCreateClient)).Post("/", h.create)
	r.Get("/{id}", h.show)
	r.With(h.guard.RequirePermissions(authz.PermEditClient)).Get("/{id}/edit", h.editForm)
	r.With(h.guard.RequirePermissions(authz.PermEditClient)).Post("/{id}", h.update)
	r.With(h.guard.RequirePermissions(authz.PermDeleteClient)).Post("/{id}/delete", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := shared.FiltersFromQuery(r.URL.Query())
	clients, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Render(w, r, "pages/clients_list.html", "Clients", map[string]any{
		"Clients":    clients,
		"Filters":    filters,
		"Query":      r.URL.Query(),
		"Pagination": internalShared.NewPagination(filters.Page, filters.Limit, total),
	}, http.StatusOK)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := shared.IDParam(r, "id")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Render(w, r, "pages/client_detail.html", detail.Client.Name, map[string]any{"Client": detail.Client, "RFPs": detail.RFPs}, http.StatusOK)
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, nil, ClientForm{}, nil, http.StatusOK)
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
	h.RedirectWithFlash(w, r, "/clients/"+created.ID.String(), "success", "Client created")
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	id, err := shared.IDParam(r, "id")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.renderForm(w, r, &detail.Client, FormFrom(detail.Client), nil, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := shared.IDParam(r, "id")
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
		h.renderForm(w, r, &Client{ID: id, Name: form.Name}, form, err, shared.StatusFor(err))
		return
	}
	h.RedirectWithFlash(w, r, "/clients/"+id.String(), "success", "Client updated")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := shared.IDParam(r, "id")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		msg := internalShared.UserSafeMessage(err)
		if shared.StatusFor(err) == http.StatusConflict {
			msg = "Clients with RFPs cannot be deleted"
		}
		h.RedirectWithFlash(w, r, "/clients/"+id.String(), "error", msg)
		return
	}
	h.RedirectWithFlash(w, r, "/clients", "success", "Client deleted")
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, client *Client, form ClientForm, err error, status int) {
	errs := map[string]string{}
	if err != nil {
		errs = internalShared.FieldErrors(err)
		if status != http.StatusBadRequest {
			errs = map[string]string{"general": internalShared.UserSafeMessage(err)}
		}
	}
	title := "New client"
	if client != nil {
		title = "Edit client"
	}
	h.Render(w, r, "pages/client_form.html", title, map[string]any{
		"Client": client,
		"Form":   form,
		"Errors": errs,
	}, status)
}

func parseForm(r *http.Request) (ClientForm, error) {
	if err := r.ParseForm(); err != nil {
		return ClientForm{}, err
	}
	return ClientForm{
		Name:            r.PostFormValue("name"),
		BusinessNumber:  r.PostFormValue("business_number"),
		Industry:        r.PostFormValue("industry"),
		ContactName:     r.PostFormValue("contact_name"),
		ContactEmail:    r.PostFormValue("contact_email"),
		ContactPhone:    r.PostFormValue("contact_phone"),
		ContactPosition: r.PostFormValue("contact_position"),
		Address:         r.PostFormValue("address"),
		Website:         r.PostFormValue("website"),
		Notes:           r.PostFormValue("notes"),
	}, nil
}
