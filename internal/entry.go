// Package internal wires the notebook server together: note store, settings,
// versioning, renderer, SSE broker and the HTTP surface.
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
	"golang.org/x/sync/errgroup"

	"github.com/hverdal/quire/internal/api"
	"github.com/hverdal/quire/internal/markdown"
	"github.com/hverdal/quire/internal/notebook"
	"github.com/hverdal/quire/internal/notestore"
	"github.com/hverdal/quire/internal/settings"
	"github.com/hverdal/quire/internal/sse"
	"github.com/hverdal/quire/internal/vcs"
)

// Run starts the notebook server and blocks until shutdown.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("notebook server starting",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("notebook_path", cfg.Notebook.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// The store creates the notebook directory on first run.
	store, err := notestore.NewDir(cfg.Notebook.Path)
	if err != nil {
		return fmt.Errorf("init note store: %w", err)
	}

	settingsStore, err := settings.NewStore(store)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	svc := notebook.NewService(
		store,
		markdown.NewRenderer(),
		settingsStore,
		vcs.NewManager(store.Root(), logger),
		logger,
	)

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// The terminal client probes /health before connecting.
	r.Get("/health", api.Health(app.version))
	r.Mount("/api", api.NewRouter(svc, broker))

	// Raw image files referenced from note previews.
	r.Get("/files/*", api.NewHandler(svc).ServeImage)

	// Optional frontend assets at the site root.
	if cfg.Notebook.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.Notebook.StaticDir)))
	}

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// External edits reach connected clients through the watcher.
	g.Go(func() error {
		if err := notestore.Watch(gCtx, store, logger, broker.PublishChange); err != nil {
			logger.Warn("file watcher unavailable", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("listening", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")
	return nil
}
