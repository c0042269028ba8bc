package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcanepa/sendero/internal/bounce"
	"github.com/mcanepa/sendero/internal/campaign"
	"github.com/mcanepa/sendero/internal/metrics"
	"github.com/mcanepa/sendero/internal/repository"
	"github.com/mcanepa/sendero/internal/tick"
	"github.com/mcanepa/sendero/internal/unsubscribe"
)

// Options configures the HTTP API server
type Options struct {
	ListenAddr string
	APIKey     string
	SigningKey string
	Metrics    bool
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	opts       Options

	campaigns *campaign.Service
	ticks     *tick.Processor
	bounces   *bounce.Service
	unsubs    *unsubscribe.Service
	settings  *repository.SettingsRepository
	metrics   *metrics.Metrics

	logger    *slog.Logger
	startTime time.Time
}

// NewServer creates a new API server
func NewServer(
	opts Options,
	campaigns *campaign.Service,
	ticks *tick.Processor,
	bounces *bounce.Service,
	unsubs *unsubscribe.Service,
	settings *repository.SettingsRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		opts:      opts,
		campaigns: campaigns,
		ticks:     ticks,
		bounces:   bounces,
		unsubs:    unsubs,
		settings:  settings,
		metrics:   m,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.HTTPMiddleware)
	}

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	if s.opts.Metrics && s.metrics != nil {
		s.router.Method("GET", "/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	// Tick callbacks authenticate via HMAC signature, not the API key.
	s.router.Post("/api/jobs/send-tick", s.handleSendTick)

	// Opt-out links from recipients' inboxes; the signed token is the
	// only credential.
	s.router.Get("/api/unsubscribe", s.handleUnsubscribe)
	s.router.Post("/api/unsubscribe", s.handleUnsubscribe)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.handleListCampaigns)
			r.Post("/", s.handleCreateCampaign)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetCampaign)
				r.Put("/", s.handleUpdateCampaign)
				r.Delete("/", s.handleDeleteCampaign)

				r.Post("/snapshot", s.handleSnapshot)
				r.Post("/start", s.handleStart)
				r.Post("/pause", s.handlePause)
				r.Post("/resume", s.handleResume)
				r.Post("/cancel", s.handleCancel)
				r.Post("/test-send", s.handleTestSend)
				r.Post("/include-contact", s.handleIncludeContact)

				r.Get("/drafts", s.handleListDrafts)
				r.Post("/drafts/{draftID}/exclude", s.handleExcludeDraft)
				r.Post("/drafts/{draftID}/include", s.handleIncludeDraft)

				r.Get("/test-sends", s.handleListTestSends)
			})
		})

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)

		r.Get("/bounces", s.handleListBounces)
		r.Post("/bounces/scan", s.handleScanBounces)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.opts.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.opts.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
