package shared

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rfpdesk/rfpdesk/internal/identity"
	internalShared "github.com/rfpdesk/rfpdesk/internal/shared"
	"github.com/rfpdesk/rfpdesk/internal/view"
)

// Auditor records audit entries.
type Auditor interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// HistoryReader lists recorded entries for one entity. Auditors that also
// implement it feed the activity panels.
type HistoryReader interface {
	History(ctx context.Context, entity, entityID string, limit int) ([]internalShared.AuditLog, error)
}

// Pages renders templates and flashes for workspace handlers.
type Pages struct {
	Logger    *slog.Logger
	Templates *view.Engine
	CSRF      *internalShared.CSRFManager
}

// Render writes template with the common page data.
func (p Pages) Render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	viewData := view.BaseData(r, p.CSRF, title)
	viewData.Data = data
	if err := p.Templates.RenderStatus(w, status, template, viewData); err != nil {
		p.Logger.Error("render template", slog.Any("error", err), slog.String("template", template))
	}
}

// RedirectWithFlash queues a flash message and redirects with 303.
func (p Pages) RedirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := internalShared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(internalShared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// Fail renders the error page for err with a matching status.
func (p Pages) Fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		p.Logger.Error("request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
	}
	p.Render(w, r, "pages/error.html", http.StatusText(status), map[string]any{
		"Status":  status,
		"Message": internalShared.UserSafeMessage(err),
	}, status)
}

// StatusFor maps sentinel errors to HTTP statuses.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, internalShared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, internalShared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, internalShared.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, internalShared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, internalShared.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Actor returns the signed-in identity. Handlers only run behind the edge
// filter, so a missing identity redirects to sign in.
func (p Pages) Actor(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
	return id, ok
}

// IDParam parses the named UUID route parameter.
func IDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, internalShared.ErrNotFound
	}
	return id, nil
}

// Record writes an audit entry, logging failures.
func Record(ctx context.Context, audit Auditor, logger *slog.Logger, entry internalShared.AuditLog) {
	if audit == nil {
		return
	}
	if err := audit.Record(ctx, entry); err != nil {
		logger.Warn("audit record", slog.Any("error", err), slog.String("action", entry.Action))
	}
}
