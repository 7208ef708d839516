package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/rfpdesk/rfpdesk/internal/app"
	"github.com/rfpdesk/rfpdesk/internal/auth"
	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/edge"
	"github.com/rfpdesk/rfpdesk/internal/guard"
	"github.com/rfpdesk/rfpdesk/internal/observability"
	"github.com/rfpdesk/rfpdesk/internal/platform/cache"
	"github.com/rfpdesk/rfpdesk/internal/platform/db"
	"github.com/rfpdesk/rfpdesk/internal/rfp/clients"
	"github.com/rfpdesk/rfpdesk/internal/rfp/comments"
	"github.com/rfpdesk/rfpdesk/internal/rfp/proposals"
	"github.com/rfpdesk/rfpdesk/internal/rfp/prototypes"
	"github.com/rfpdesk/rfpdesk/internal/rfp/requirements"
	"github.com/rfpdesk/rfpdesk/internal/rfp/rfps"
	"github.com/rfpdesk/rfpdesk/internal/rfp/sections"
	rfpshared "github.com/rfpdesk/rfpdesk/internal/rfp/shared"
	"github.com/rfpdesk/rfpdesk/internal/shared"
	"github.com/rfpdesk/rfpdesk/internal/users"
	"github.com/rfpdesk/rfpdesk/internal/view"
	"github.com/rfpdesk/rfpdesk/jobs"
	"github.com/rfpdesk/rfpdesk/migrations"
	"github.com/rfpdesk/rfpdesk/report"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	if cfg.DBAutoMigrate {
		version, err := db.Migrate(cfg.PGDSN, migrations.FS)
		if err != nil {
			return err
		}
		logger.Info("database migrated", slog.Uint64("version", uint64(version)))
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions("rfpdesk"))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	templates, err := view.NewEngine()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	policy := authz.DefaultRoutePolicy()
	secure := cfg.IsProduction()
	sessionManager := shared.NewSessionManager(redisClient, "rfpdesk_session", cfg.SessionSecret, cfg.SessionTTL, secure)
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	redisOpts, err := jobs.RedisOpt(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("jobs redis options: %w", err)
	}
	mailQueue, err := jobs.NewClient(redisOpts)
	if err != nil {
		return fmt.Errorf("jobs client: %w", err)
	}
	defer func() {
		if err := mailQueue.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	profiles := users.NewService(users.NewRepository(pool), users.NewRedisCache(redisClient, cfg.ProfileTTL), logger)

	authService := auth.NewService(
		auth.NewRepository(pool),
		profiles,
		auth.NewRedisTokenStore(redisClient),
		mailQueue,
		auth.Config{
			JWTSecret:        []byte(cfg.JWTSecret),
			AccessTokenTTL:   cfg.AccessTokenTTL,
			RefreshTokenTTL:  cfg.RefreshTokenTTL,
			RefreshReuse:     cfg.RefreshReuse,
			SiteURL:          cfg.SiteURL,
			AutoConfirmEmail: cfg.AutoConfirmEmail,
		},
		logger,
	)
	defer authService.OnAuthStateChange(auth.AuditObserver(auditLogger, logger))()
	defer authService.OnAuthStateChange(auth.LastLoginObserver(profiles, logger))()
	defer authService.OnAuthStateChange(auth.MetricsObserver(metrics))()

	cookies := auth.CookieOptions{Secure: secure, RefreshTTL: cfg.RefreshTokenTTL}
	edgeFilter := edge.New(authService, policy, cookies,
		edge.WithRefreshThreshold(cfg.RefreshThreshold),
		edge.WithTimeout(cfg.AuthTimeout),
		edge.WithCounter(metrics),
		edge.WithLogger(logger))
	guardMW := guard.Middleware{Policy: policy, Templates: templates, CSRF: csrfManager, Logger: logger}

	pages := rfpshared.Pages{Logger: logger, Templates: templates, CSRF: csrfManager}

	clientService := clients.NewService(clients.NewRepository(pool), auditLogger, logger)
	requirementService := requirements.NewService(requirements.NewRepository(pool), auditLogger, logger)
	commentService := comments.NewService(comments.NewRepository(pool), auditLogger, logger)
	rfpService := rfps.NewService(rfps.NewRepository(pool), clientService, requirementService, commentService, auditLogger, logger)
	proposalRepo := proposals.NewRepository(pool)
	proposalGate := proposals.NewGate(proposalRepo)
	sectionService := sections.NewService(sections.NewRepository(pool), proposalGate, auditLogger, logger)
	prototypeService := prototypes.NewService(prototypes.NewRepository(pool), proposalGate, auditLogger, logger)
	proposalService := proposals.NewService(proposals.Deps{
		Repo:       proposalRepo,
		RFPs:       rfpService,
		Profiles:   profiles,
		Comments:   commentService,
		Sections:   sectionService,
		Prototypes: prototypeService,
		Mailer:     mailQueue,
		Audit:      auditLogger,
		Logger:     logger,
		SiteURL:    cfg.SiteURL,
	})
	prototypeHandler := prototypes.NewHandler(pages, prototypeService, guardMW)

	commentHandler := comments.NewHandler(pages, commentService)

	var exporter proposals.Exporter
	if cfg.GotenbergURL != "" {
		exporter = report.NewProposalExporter(templates, report.NewClient(cfg.GotenbergURL, cfg.GotenbergTimeout))
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Policy:         policy,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Guard:          guardMW,
		Edge:           edgeFilter,
		Metrics:        metrics,
		AuthHandler:    auth.NewHandler(logger, authService, templates, csrfManager, policy, cookies),
		AuthAPI:        auth.NewAPI(logger, authService, cfg.TokenRateLimit),
		UsersHandler:   users.NewHandler(logger, profiles, templates, csrfManager, guardMW, auditLogger),
		ClientsHandler: clients.NewHandler(pages, clientService, guardMW),
		RFPsHandler: rfps.NewHandler(pages, rfpService, guardMW, clientService, profiles,
			requirements.NewHandler(pages, requirementService, guardMW), commentHandler),
		ProposalsHandler: proposals.NewHandler(pages, proposalService, guardMW, profiles, commentHandler, exporter).
			Attach("sections", sections.NewHandler(pages, sectionService, guardMW)).
			Attach("prototypes", prototypeHandler),
		PrototypesHandler: prototypeHandler,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	adminServer := &http.Server{
		Addr: cfg.AdminAddr,
		Handler: app.NewAdminRouter(app.AdminParams{
			Metrics:    metrics,
			JobHandler: jobs.NewHandler(inspector, logger),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if cfg.AdminAddr != "" {
		go func() {
			logger.Info("starting admin server", slog.String("addr", cfg.AdminAddr))
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("admin server", slog.Any("error", err))
			}
		}()
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cfg.AdminAddr != "" {
		_ = adminServer.Shutdown(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
