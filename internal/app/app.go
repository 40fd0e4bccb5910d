package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/outreach/internal/api"
	"github.com/foxzi/outreach/internal/campaign"
	"github.com/foxzi/outreach/internal/config"
	"github.com/foxzi/outreach/internal/metrics"
	"github.com/foxzi/outreach/internal/ratelimit"
	"github.com/foxzi/outreach/internal/sandbox"
	"github.com/foxzi/outreach/internal/smtp"
	"github.com/foxzi/outreach/internal/storage"
	"github.com/foxzi/outreach/internal/testsend"
	"github.com/foxzi/outreach/internal/verify"
)

// App is the main application
type App struct {
	config           *config.Config
	db               *bolt.DB
	session          *campaign.Session
	apiServer        *api.Server
	metricsServer    *metrics.Server
	metricsCollector *metrics.Collector
	rateLimiter      *ratelimit.Limiter
	verifier         *verify.Runner
	logger           *slog.Logger
}

// New creates a new application
func New(cfg *config.Config, version string) (*App, error) {
	// Setup logger
	logger := setupLogger(cfg.Logging)

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	a := &App{
		config: cfg,
		db:     db,
		logger: logger,
	}
	if err := a.init(version); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(version string) error {
	cfg := a.config
	logger := a.logger

	// Metrics
	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)

		collector, err := metrics.NewCollector(a.db, m, cfg.Storage.Path, cfg.Metrics.FlushInterval)
		if err != nil {
			return fmt.Errorf("failed to create metrics collector: %w", err)
		}
		a.metricsCollector = collector
		a.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path,
			cfg.Metrics.AllowedIPs, logger.With("component", "metrics"))
		logger.Info("metrics enabled", "addr", cfg.Metrics.ListenAddr, "path", cfg.Metrics.Path)
	}

	// Create rate limiter if enabled
	if rlConfig := cfg.RateLimiter(); rlConfig != nil {
		limiter, err := ratelimit.NewLimiter(a.db, rlConfig)
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
		a.rateLimiter = limiter
		logger.Info("test email rate limiting enabled")
	}

	sandboxStorage, err := sandbox.NewStorage(a.db)
	if err != nil {
		return fmt.Errorf("failed to create sandbox storage: %w", err)
	}

	var relay sandbox.Relay
	if cfg.TestSend.Mode != sandbox.ModeSandbox {
		client, err := smtp.NewClient(cfg.SMTPOptions(), logger.With("component", "smtp_client"))
		if err != nil {
			return fmt.Errorf("failed to create SMTP client: %w", err)
		}
		relay = client
		logger.Info("SMTP relay configured", "addr", client.Addr(), "security", cfg.Mail.Security)
	}

	sender, err := sandbox.NewSender(cfg.TestSend.Mode, relay, sandboxStorage, logger.With("component", "sandbox_sender"))
	if err != nil {
		return fmt.Errorf("failed to create sender: %w", err)
	}
	if cfg.TestSend.SimulateErrors {
		sender.SetErrorSimulation(true, cfg.TestSend.ErrorProbability)
		logger.Info("sandbox error simulation enabled", "probability", cfg.TestSend.ErrorProbability)
	}

	var limiter testsend.Limiter
	if a.rateLimiter != nil {
		limiter = a.rateLimiter
	}
	testSend, err := testsend.NewService(sender, limiter, testsend.Options{
		From:          cfg.Mail.From,
		Subject:       cfg.TestSend.Subject,
		Delay:         cfg.TestSend.Delay,
		PreviewLength: cfg.TestSend.PreviewLength,
	}, logger.With("component", "testsend"))
	if err != nil {
		return fmt.Errorf("failed to create test email service: %w", err)
	}

	a.verifier = verify.NewRunner(
		verify.DefaultChecks(verify.SimulationOptions{
			StepDelay:   cfg.Verify.StepDelay,
			SuccessRate: cfg.Verify.Rate(),
		}),
		verify.Options{
			Pause:   cfg.Verify.Pause,
			History: cfg.Verify.History,
		},
		logger.With("component", "verify"),
	)

	a.session = campaign.NewSession()
	if cfg.CampaignFile != "" {
		initial, err := campaign.LoadFile(cfg.CampaignFile)
		if err != nil {
			return err
		}
		if err := a.session.Replace(initial); err != nil {
			return fmt.Errorf("invalid campaign file: %w", err)
		}
		logger.Info("campaign loaded", "file", cfg.CampaignFile)
	}

	a.apiServer = api.NewServer(&cfg.Server, api.Options{
		Session:     a.session,
		Verifier:    a.verifier,
		TestSend:    testSend,
		Sandbox:     sandboxStorage,
		RateLimiter: a.rateLimiter,
		Version:     version,
	}, logger.With("component", "api"))

	return nil
}

// Handler returns the API handler
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting outreach",
		"api_addr", a.config.Server.ListenAddr,
		"test_send_mode", a.config.TestSend.Mode,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)

	if a.metricsCollector != nil {
		a.metricsCollector.Start(ctx)
	}
	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("server error", "error", runErr)
		cancel()
	}

	// Graceful shutdown
	if err := a.Shutdown(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	a.close()
	a.logger.Info("shutdown complete")
	return nil
}

// close stops background work and closes storage
func (a *App) close() {
	if a.verifier != nil {
		a.verifier.Close()
	}

	// Stop rate limiter (persists counters)
	if a.rateLimiter != nil {
		if err := a.rateLimiter.Stop(); err != nil {
			a.logger.Error("rate limiter stop error", "error", err)
		}
	}

	if a.metricsCollector != nil {
		if err := a.metricsCollector.Stop(); err != nil {
			a.logger.Error("metrics collector stop error", "error", err)
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
