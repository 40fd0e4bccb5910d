package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/outreach/internal/campaign"
	"github.com/foxzi/outreach/internal/config"
	"github.com/foxzi/outreach/internal/ipfilter"
	"github.com/foxzi/outreach/internal/metrics"
	"github.com/foxzi/outreach/internal/ratelimit"
	"github.com/foxzi/outreach/internal/sandbox"
	"github.com/foxzi/outreach/internal/testsend"
	"github.com/foxzi/outreach/internal/verify"
)

// Options holds the components served by the API. Verifier, TestSend,
// Sandbox and RateLimiter may be nil, their endpoints then answer 503.
type Options struct {
	Session     *campaign.Session
	Verifier    *verify.Runner
	TestSend    *testsend.Service
	Sandbox     *sandbox.Storage
	RateLimiter *ratelimit.Limiter
	Version     string
}

// Server is the HTTP API server
type Server struct {
	router      *chi.Mux
	httpServer  *http.Server
	config      *config.ServerConfig
	filter      *ipfilter.Filter
	session     *campaign.Session
	verifier    *verify.Runner
	testSend    *testsend.Service
	sandbox     *sandbox.Storage
	rateLimiter *ratelimit.Limiter
	version     string
	logger      *slog.Logger
	startTime   time.Time
}

// NewServer creates a new API server
func NewServer(cfg *config.ServerConfig, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Session == nil {
		opts.Session = campaign.NewSession()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		router:      chi.NewRouter(),
		config:      cfg,
		filter:      ipfilter.New(cfg.AllowedIPs, logger),
		session:     opts.Session,
		verifier:    opts.Verifier,
		testSend:    opts.TestSend,
		sandbox:     opts.Sandbox,
		rateLimiter: opts.RateLimiter,
		version:     opts.Version,
		logger:      logger,
		startTime:   time.Now(),
	}

	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no IP filter)
	s.router.Get("/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(s.filter.HTTPMiddleware)

		// Submission endpoint answers every method itself
		r.HandleFunc("/api/campaign", s.handleCampaignSubmission)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/locations", s.handleLocations)
			r.Get("/locations/{code}", s.handleLocation)
			r.Get("/placeholders", s.handlePlaceholders)

			r.Post("/validate", s.handleValidate)
			r.Post("/render", s.handleRender)

			r.Route("/session", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Put("/", s.handleReplaceSession)
				r.Post("/reset", s.handleResetSession)
				r.Put("/industry", s.handleSetIndustry)
				r.Put("/location", s.handleSetLocation)
				r.Put("/ab-testing", s.handleSetABTesting)
				r.Put("/limits", s.handleSetLimits)
				r.Put("/window", s.handleSetWindow)
				r.Put("/schedule", s.handleSetSchedule)
				r.Post("/templates", s.handleAddTemplate)
				r.Put("/templates/{id}", s.handleUpdateTemplate)
				r.Delete("/templates/{id}", s.handleRemoveTemplate)
				r.Get("/validate", s.handleValidateSession)
				r.Post("/submit", s.handleSubmitSession)
			})

			r.Post("/test-email", s.handleTestEmail)

			r.Post("/verify", s.handleStartVerify)
			r.Get("/verify/{id}", s.handleGetVerify)

			r.Route("/sandbox", func(r chi.Router) {
				r.Get("/", s.handleSandboxList)
				r.Delete("/", s.handleSandboxClear)
				r.Get("/stats", s.handleSandboxStats)
				r.Get("/{id}", s.handleSandboxGet)
				r.Delete("/{id}", s.handleSandboxDelete)
			})

			r.Get("/ratelimits", s.handleRateLimitsGet)
			r.Get("/ratelimits/{level}/{key}", s.handleRateLimitStats)
			r.Delete("/ratelimits/{level}/{key}", s.handleRateLimitReset)
		})
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server",
		"addr", s.config.ListenAddr,
		"ip_filter", s.filter.Enabled(),
	)
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
