package comments

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
)

// Handler accepts comment form posts from RFP, requirement and proposal
// pages and redirects back to them.
type Handler struct {
	shared.Pages
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(pages shared.Pages, service *Service) *Handler {
	return &Handler{Pages: pages, service: service}
}

// Mount registers comment routes for one target type. targetParam names the
// route parameter carrying the target ID and back builds the page to return
// to.
func (h *Handler) Mount(r chi.Router, target TargetType, targetParam string, back func(*http.Request) string) {
	t := binding{h: h, target: target, param: targetParam, back: back}
	r.Post("/", t.create)
	r.Post("/{commentID}", t.update)
	r.Post("/{commentID}/delete", t.delete)
	r.Post("/{commentID}/resolve", t.resolve)
}

type binding struct {
	h      *Handler
	target TargetType
	param  string
	back   func(*http.Request) string
}

func (b binding) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := b.h.Actor(w, r)
	if !ok {
		return
	}
	targetID, err := shared.IDParam(r, b.param)
	if err != nil {
		b.h.Fail(w, r, err)
		return
	}
	form, ok := b.form(w, r)
	if !ok {
		return
	}
	if _, err := b.h.service.Create(r.Context(), actor, b.target, targetID, form); err != nil {
		b.done(w, r, err, "")
		return
	}
	b.done(w, r, nil, "Comment posted")
}

func (b binding) update(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := b.actorAndID(w, r)
	if !ok {
		return
	}
	form, ok := b.form(w, r)
	if !ok {
		return
	}
	_, err := b.h.service.Update(r.Context(), actor, id, form)
	b.done(w, r, err, "Comment updated")
}

func (b binding) delete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := b.actorAndID(w, r)
	if !ok {
		return
	}
	_, err := b.h.service.Delete(r.Context(), actor, id)
	b.done(w, r, err, "Comment deleted")
}

func (b binding) resolve(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := b.actorAndID(w, r)
	if !ok {
		return
	}
	c, err := b.h.service.ToggleResolved(r.Context(), actor, id)
	msg := "Comment reopened"
	if c.IsResolved {
		msg = "Comment resolved"
	}
	b.done(w, r, err, msg)
}

func (b binding) actorAndID(w http.ResponseWriter, r *http.Request) (identity.Identity, uuid.UUID, bool) {
	actor, ok := b.h.Actor(w, r)
	if !ok {
		return actor, uuid.Nil, false
	}
	id, err := shared.IDParam(r, "commentID")
	if err != nil {
		b.h.Fail(w, r, err)
		return actor, uuid.Nil, false
	}
	return actor, id, true
}

func (b binding) form(w http.ResponseWriter, r *http.Request) (CommentForm, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return CommentForm{}, false
	}
	return CommentForm{
		Content:  r.PostFormValue("content"),
		Type:     r.PostFormValue("type"),
		ParentID: r.PostFormValue("parent_id"),
	}, true
}

func (b binding) done(w http.ResponseWriter, r *http.Request, err error, success string) {
	location := b.back(r) + "#comments"
	if err != nil {
		msg := internalShared.UserSafeMessage(err)
		if fields := internalShared.FieldErrors(err); fields["content"] != "" {
			msg = "Comment: " + fields["content"]
		}
		b.h.RedirectWithFlash(w, r, location, "error", msg)
		return
	}
	b.h.RedirectWithFlash(w, r, location, "success", success)
}
