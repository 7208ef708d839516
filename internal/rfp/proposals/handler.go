package proposals

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/guard"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/rfp/comments"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
	"github.com/rfpdesk/rfpdesk/internal/users"
)

// People lists users for the assignee and reviewer pickers.
type People interface {
	ListActive(ctx context.Context) ([]users.Profile, error)
}

// Exporter renders a proposal as a PDF document.
type Exporter interface {
	ProposalPDF(ctx context.Context, d Detail) ([]byte, error)
}

// PartRoutes mounts the routes of a proposal part such as sections.
type PartRoutes interface {
	MountRoutes(r chi.Router)
}

// Handler serves the /proposals pages.
type Handler struct {
	shared.Pages
	service  *Service
	guard    guard.Middleware
	people   People
	comments *comments.Handler
	exporter Exporter
	parts    map[string]PartRoutes
}

// NewHandler builds a Handler. A nil exporter disables the PDF download.
func NewHandler(pages shared.Pages, service *Service, guard guard.Middleware, people People, comments *comments.Handler, exporter Exporter) *Handler {
	return &Handler{Pages: pages, service: service, guard: guard, people: people, comments: comments, exporter: exporter}
}

// Attach mounts part under /proposals/{proposalID}/{path}. Call it before
// MountRoutes.
func (h *Handler) Attach(path string, part PartRoutes) *Handler {
	if h.parts == nil {
		h.parts = map[string]PartRoutes{}
	}
	h.parts[path] = part
	return h
}

// MountRoutes registers proposal routes on a router mounted at /proposals.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.RequirePermissions(authz.PermViewProposals))
	r.Get("/", h.list)
	r.With(h.guard.RequirePermissions(authz.PermCreateProposal)).Get("/new", h.newForm)
	r.With(h.guard.RequirePermissions(authz.PermCreateProposal)).Post("/", h.create)
	r.Route("/{proposalID}", func(r chi.Router) {
		r.Get("/", h.show)
		if h.exporter != nil {
			r.Get("/pdf", h.exportPDF)
		}
		r.With(h.guard.RequirePermissions(authz.PermEditProposal)).Get("/edit", h.editForm)
		r.With(h.guard.RequirePermissions(authz.PermEditProposal)).Post("/", h.update)
		r.Post("/status", h.changeStatus)
		r.With(h.guard.RequirePermissions(authz.PermSubmitProposal)).Post("/submit", h.submit)
		r.With(h.guard.RequirePermissions(authz.PermApproveProposal)).Post("/approve", h.approve)
		r.With(h.guard.RequirePermissions(authz.PermEditProposal)).Post("/reviewers", h.addReviewer)
		r.With(h.guard.RequirePermissions(authz.PermEditProposal)).Post("/reviewers/{reviewerID}/delete", h.removeReviewer)
		r.With(h.guard.RequirePermissions(authz.PermDeleteProposal)).Post("/delete", h.delete)
		if h.comments != nil {
			r.Route("/comments", func(r chi.Router) {
				h.comments.Mount(r, comments.TargetProposal, "proposalID", func(r *http.Request) string {
					return "/proposals/" + chi.URLParam(r, "proposalID")
				})
			})
		}
		for path, part := range h.parts {
			r.Route("/"+path, part.MountRoutes)
		}
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.FiltersFromQuery(q)
	var statuses []Status
	for _, raw := range q["status"] {
		if s := Status(raw); s.Valid() {
			statuses = append(statuses, s)
		}
	}
	items, total, err := h.service.List(r.Context(), page, statuses)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	page = page.Normalize()
	h.Render(w, r, "pages/proposals_list.html", "Proposals", map[string]any{
		"Proposals":  items,
		"Filters":    page,
		"Query":      q,
		"Statuses":   Statuses(),
		"Pagination": internalShared.NewPagination(page.Page, page.Limit, total),
	}, http.StatusOK)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := shared.IDParam(r, "proposalID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	detail, err := h.service.Detail(r.Context(), id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	var next []Status
	for _, s := range transitions[detail.Proposal.Status] {
		if s != StatusApproved && s != StatusDelivered {
			next = append(next, s)
		}
	}
	h.Render(w, r, "pages/proposal_detail.html", detail.Proposal.Title, map[string]any{
		"Proposal":   detail.Proposal,
		"Reviewers":  detail.Reviewers,
		"Comments":   detail.Comments,
		"Sections":   detail.Sections,
		"Prototypes": detail.Prototypes,
		"Next":       next,
		"CanApprove": detail.Proposal.Status == StatusReviewing,
		"CanSubmit":  detail.Proposal.Status == StatusApproved,
		"People":     h.activePeople(r),
		"CanExport":  h.exporter != nil,
	}, http.StatusOK)
}

func (h *Handler) exportPDF(w http.ResponseWriter, r *http.Request) {
	id, err := shared.IDParam(r, "proposalID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	detail, err := h.service.Detail(r.Context(), id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	pdf, err := h.exporter.ProposalPDF(r.Context(), detail)
	if err != nil {
		h.Logger.Error("export proposal pdf", "error", err, "proposal_id", id.String())
		h.Fail(w, r, internalShared.ErrUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "proposal-"+id.String()+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	form := ProposalForm{RFPID: r.URL.Query().Get("rfp_id"), Version: defaultVersion, AssigneeID: actor.ID.String()}
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
	h.RedirectWithFlash(w, r, "/proposals/"+created.ID.String(), "success", "Proposal created")
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	id, err := shared.IDParam(r, "proposalID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.renderForm(w, r, &p, FormFrom(p), nil, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := shared.IDParam(r, "proposalID")
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
		h.renderForm(w, r, &Proposal{ID: id, Title: form.Title}, form, err, shared.StatusFor(err))
		return
	}
	h.RedirectWithFlash(w, r, "/proposals/"+id.String(), "success", "Proposal updated")
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Status updated", func(ctx context.Context, actor identity.Identity, id uuid.UUID) error {
		_, err := h.service.ChangeStatus(ctx, actor, id, Status(r.PostFormValue("status")))
		return err
	})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Proposal delivered", func(ctx context.Context, actor identity.Identity, id uuid.UUID) error {
		_, err := h.service.Submit(ctx, actor, id)
		return err
	})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Proposal approved", func(ctx context.Context, actor identity.Identity, id uuid.UUID) error {
		_, err := h.service.Approve(ctx, actor, id)
		return err
	})
}

func (h *Handler) addReviewer(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Reviewer added", func(ctx context.Context, actor identity.Identity, id uuid.UUID) error {
		reviewer, err := uuid.Parse(r.PostFormValue("reviewer_id"))
		if err != nil {
			return internalShared.ErrValidation
		}
		return h.service.AddReviewer(ctx, actor, id, reviewer)
	})
}

func (h *Handler) removeReviewer(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Reviewer removed", func(ctx context.Context, actor identity.Identity, id uuid.UUID) error {
		reviewer, err := shared.IDParam(r, "reviewerID")
		if err != nil {
			return err
		}
		return h.service.RemoveReviewer(ctx, actor, id, reviewer)
	})
}

// transition runs a post-and-redirect action against the proposal in the
// route.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, success string, action func(context.Context, identity.Identity, uuid.UUID) error) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := shared.IDParam(r, "proposalID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	back := "/proposals/" + id.String()
	if err := action(r.Context(), actor, id); err != nil {
		h.RedirectWithFlash(w, r, back, "error", internalShared.UserSafeMessage(err))
		return
	}
	h.RedirectWithFlash(w, r, back, "success", success)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Actor(w, r)
	if !ok {
		return
	}
	id, err := shared.IDParam(r, "proposalID")
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.RedirectWithFlash(w, r, "/proposals/"+id.String(), "error", internalShared.UserSafeMessage(err))
		return
	}
	h.RedirectWithFlash(w, r, "/proposals", "success", "Proposal deleted")
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, item *Proposal, form ProposalForm, err error, status int) {
	errs := map[string]string{}
	if err != nil {
		errs = internalShared.FieldErrors(err)
		if status != http.StatusBadRequest || len(errs) == 0 {
			errs = map[string]string{"general": internalShared.UserSafeMessage(err)}
		}
	}
	title := "New proposal"
	if item != nil {
		title = "Edit proposal"
	}
	h.Render(w, r, "pages/proposal_form.html", title, map[string]any{
		"Proposal":  item,
		"Form":      form,
		"Errors":    errs,
		"Assignees": h.activePeople(r),
	}, status)
}

func (h *Handler) activePeople(r *http.Request) []users.Profile {
	if h.people == nil {
		return nil
	}
	people, err := h.people.ListActive(r.Context())
	if err != nil {
		h.Logger.Warn("load people", "error", err)
	}
	return people
}

func parseForm(r *http.Request) (ProposalForm, error) {
	if err := r.ParseForm(); err != nil {
		return ProposalForm{}, err
	}
	return ProposalForm{
		RFPID:             r.PostFormValue("rfp_id"),
		Title:             r.PostFormValue("title"),
		Version:           r.PostFormValue("version"),
		AssigneeID:        r.PostFormValue("assignee_id"),
		ExecutiveSummary:  r.PostFormValue("executive_summary"),
		TotalPrice:        r.PostFormValue("total_price"),
		EstimatedDuration: r.PostFormValue("estimated_duration"),
		StartDate:         r.PostFormValue("start_date"),
		EndDate:           r.PostFormValue("end_date"),
		WinProbability:    r.PostFormValue("win_probability"),
	}, nil
}
