package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/handywriterz/handywriterz/config"
	core "github.com/handywriterz/handywriterz/internal/agent/core"
	"github.com/handywriterz/handywriterz/internal/agent/search"
	"github.com/handywriterz/handywriterz/internal/agent/telemetry"
	"github.com/handywriterz/handywriterz/internal/agent/verify"
	"github.com/handywriterz/handywriterz/internal/store"
)

// App bundles the wired pipeline and its persistence for the HTTP layer and
// the one-shot CLI.
type App struct {
	Cfg       *config.Config
	Telemetry *telemetry.Telemetry
	Orch      *core.Orchestrator
	Store     *store.Store          // nil when running on the in-memory store
	Progress  *store.ProgressPublisher // nil when redis is not configured
	Library   *search.Library       // nil when no library index is configured
}

// Build wires the full pipeline from configuration. Postgres and Redis are
// optional: without Postgres the run state lives in process memory, without
// Redis progress is log-only.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := log.New(log.Writer(), "[APP] ", log.LstdFlags)
	tele := telemetry.NewTelemetry(cfg.Telemetry)

	var (
		checkpoints  core.CheckpointStore
		fingerprints core.FingerprintStore
		pg           *store.Store
	)
	if cfg.Storage.Postgres.Host != "" || cfg.Storage.Postgres.URL != "" {
		var err error
		pg, err = store.New(ctx, cfg.Storage.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connecting postgres: %w", err)
		}
		if err := store.Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
			return nil, fmt.Errorf("applying migrations: %w", err)
		}
		checkpoints, fingerprints = pg, pg
	} else {
		logger.Printf("postgres not configured; using in-memory state store")
		mem := store.NewMemoryStore()
		checkpoints, fingerprints = mem, mem
	}

	var progress *store.ProgressPublisher
	if cfg.Storage.Redis.Host != "" {
		var err error
		progress, err = store.NewProgressPublisher(ctx, cfg.Storage.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting redis: %w", err)
		}
	}

	var library *search.Library
	if cfg.Search.LibraryIndexPath != "" {
		if lib, err := search.NewLibrary(cfg.Search.LibraryIndexPath, cfg.Search.MaxResults); err == nil {
			library = lib
		} else {
			logger.Printf("warn: library index unavailable: %v", err)
		}
	}
	family := search.NewFamily(cfg.Search, library, tele)

	deps := core.Deps{
		Search:       family,
		Verifier:     verify.NewVerifier(cfg.Verify, tele),
		Fallback:     verify.NewFallbackController(cfg.Workflow.MaxFallbackAttempts, tele),
		Checkpoints:  checkpoints,
		Fingerprints: fingerprints,
		Telemetry:    tele,
	}
	if progress != nil {
		deps.Progress = progress
	}
	orch, err := core.NewOrchestrator(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("building orchestrator: %w", err)
	}

	return &App{
		Cfg:       cfg,
		Telemetry: tele,
		Orch:      orch,
		Store:     pg,
		Progress:  progress,
		Library:   library,
	}, nil
}

// Close releases the app's external connections.
func (a *App) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
	if a.Progress != nil {
		_ = a.Progress.Close()
	}
	if a.Library != nil {
		_ = a.Library.Close()
	}
}

// Run builds the pipeline and serves the HTTP API until the context ends.
func Run(ctx context.Context, cfg *config.Config) error {
	app, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	e := NewEcho(app)

	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(cfg.Server.Address) }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.General.DefaultTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

// NewEcho assembles the router with middleware and routes.
func NewEcho(app *App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	// Unified HTTP error handler with structured JSON and logging.
	httpLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		httpLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{
				"error":      http.StatusText(code),
				"message":    msg,
				"request_id": requestID,
			})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	wh := NewWorkflowsHandler(app)
	wh.Register(e.Group("/api/v1"))
	return e
}
