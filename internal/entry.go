// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/minto/internal/api"
	"github.com/starford/minto/internal/diagramservice"
	"github.com/starford/minto/internal/generation"
	"github.com/starford/minto/internal/history"
	"github.com/starford/minto/internal/imports"
	"github.com/starford/minto/internal/layout"
	"github.com/starford/minto/internal/sse"
	"github.com/starford/minto/internal/storage"
)

// historyThrottle bounds how often history.updated is broadcast.
const historyThrottle = 2 * time.Second

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// logger initializes the structured JSON logger.
func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// services opens the history store and builds the diagram service.
func (a *application) services(logger *slog.Logger, publisher diagramservice.Publisher) (*diagramservice.Service, *history.DB, error) {
	cfg := a.config

	db, err := history.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init history: %w", err)
	}

	opts := []diagramservice.Option{
		diagramservice.WithEngine(layout.New(cfg.Layout.Options())),
		diagramservice.WithDirection(cfg.Layout.DefaultDirection()),
		diagramservice.WithLogger(logger),
	}
	if publisher != nil {
		opts = append(opts, diagramservice.WithPublisher(publisher))
	}
	svc := diagramservice.New(db, newGenerator(cfg.Generation, logger), opts...)
	return svc, db, nil
}

func newGenerator(cfg GenerationConfig, logger *slog.Logger) generation.Generator {
	if cfg.Provider == ProviderOpenAI {
		return generation.NewOpenAI(cfg.OpenAI(), logger)
	}
	logger.Warn("generation disabled; only the example, imports and layout are available")
	return generation.Disabled{}
}

// importer prepares the import directory. It returns nil when imports are
// disabled.
func (a *application) importer(svc *diagramservice.Service, db *history.DB, logger *slog.Logger) (*imports.Importer, string, error) {
	cfg := a.config.Imports
	if !cfg.Enabled {
		return nil, "", nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create imports dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Dir)
	if err != nil {
		return nil, "", fmt.Errorf("init imports storage: %w", err)
	}
	return imports.New(svc, db, store, logger), store.Root(), nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("generation_provider", cfg.Generation.Provider),
		slog.String("layout_direction", string(cfg.Layout.DefaultDirection())),
		slog.Bool("imports_enabled", cfg.Imports.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(historyThrottle)
	defer broker.Close()

	svc, db, err := app.services(logger, broker)
	if err != nil {
		return err
	}
	defer db.Close()
	defer svc.Close()

	importer, importRoot, err := app.importer(svc, db, logger)
	if err != nil {
		return err
	}
	if importer != nil {
		if err := importer.Sync(ctx); err != nil {
			logger.Warn("initial import sync failed", slog.String("error", err.Error()))
		}
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(cfg.App.HTTP.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.App.HTTP.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := db.List(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api; the broker serves /api/events.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the import directory.
	if importer != nil {
		g.Go(func() error {
			return importer.Watch(gCtx, importRoot, func(kind, path, id string) {
				logger.Info("import directory changed",
					slog.String("kind", kind),
					slog.String("path", path),
					slog.String("id", id))
			})
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Close SSE streams first so Shutdown does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
