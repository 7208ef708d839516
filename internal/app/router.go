package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rfpdesk/rfpdesk/internal/auth"
	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/edge"
	"github.com/rfpdesk/rfpdesk/internal/guard"
	"github.com/rfpdesk/rfpdesk/internal/observability"
	"github.com/rfpdesk/rfpdesk/internal/rfp/clients"
	"github.com/rfpdesk/rfpdesk/internal/rfp/proposals"
	"github.com/rfpdesk/rfpdesk/internal/rfp/prototypes"
	"github.com/rfpdesk/rfpdesk/internal/rfp/rfps"
	"github.com/rfpdesk/rfpdesk/internal/shared"
	"github.com/rfpdesk/rfpdesk/internal/users"
	"github.com/rfpdesk/rfpdesk/internal/view"
	"github.com/rfpdesk/rfpdesk/jobs"
	"github.com/rfpdesk/rfpdesk/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Policy            authz.RoutePolicy
	Templates         *view.Engine
	SessionManager    *shared.SessionManager
	CSRFManager       *shared.CSRFManager
	Guard             guard.Middleware
	Edge              *edge.Filter
	Metrics           *observability.Metrics
	AuthHandler       *auth.Handler
	AuthAPI           *auth.API
	UsersHandler      *users.Handler
	ClientsHandler    *clients.Handler
	RFPsHandler       *rfps.Handler
	ProposalsHandler  *proposals.Handler
	PrototypesHandler *prototypes.Handler
}

// NewRouter constructs the chi.Router with the application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		Edge:           params.Edge,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	// The edge filter redirects "/" before it gets here.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, params.Policy.LandingPath, http.StatusSeeOther)
	})

	params.AuthHandler.MountRoutes(r)
	if params.AuthAPI != nil {
		r.Route("/api/auth", params.AuthAPI.MountRoutes)
	}
	r.Route("/settings", func(r chi.Router) {
		if params.UsersHandler != nil {
			params.UsersHandler.MountRoutes(r)
		}
		params.AuthHandler.MountSettingsRoutes(r)
	})
	if params.ClientsHandler != nil {
		r.Route("/clients", params.ClientsHandler.MountRoutes)
	}
	if params.RFPsHandler != nil {
		r.Route("/rfps", params.RFPsHandler.MountRoutes)
	}
	if params.ProposalsHandler != nil {
		r.Route("/proposals", params.ProposalsHandler.MountRoutes)
	}
	if params.PrototypesHandler != nil {
		r.Route("/prototypes", params.PrototypesHandler.MountIndex)
	}
	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(web.Static())))
	r.Handle("/static/*", staticCacheHandler(fileServer))

	return r
}

// AdminParams groups dependencies for the operator listener.
type AdminParams struct {
	Metrics    *observability.Metrics
	JobHandler *jobs.Handler
}

// NewAdminRouter serves metrics and job health. It runs on ADMIN_ADDR, away
// from the edge filter, and should not be exposed publicly.
func NewAdminRouter(params AdminParams) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/healthz/jobs", params.JobHandler.MountRoutes)
	}
	return r
}

// staticCacheHandler caches static assets in the browser for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
