// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/codewiki/internal/api"
	"github.com/starford/codewiki/internal/corpus"
	"github.com/starford/codewiki/internal/index"
	"github.com/starford/codewiki/internal/pageservice"
	"github.com/starford/codewiki/internal/sse"
	"github.com/starford/codewiki/internal/storage"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  *storage.FS
	db     *index.DB
	syncer *index.Syncer
	svc    *pageservice.Service
	out    io.Writer
}

func (rt *runtime) Close() error {
	return rt.db.Close()
}

// newApplication applies opts over defaults. logOut is the log writer used
// when no WithLogOutput option is given.
func newApplication(logOut io.Writer, opts ...Option) (*application, error) {
	app := &application{
		version: "dev",
		out:     os.Stdout,
		logOut:  logOut,
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// bootstrap opens the corpus and index and runs the initial sync.
func bootstrap(ctx context.Context, app *application) (*runtime, error) {
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("corpus_path", cfg.Corpus.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure corpus directory exists.
	if err := os.MkdirAll(cfg.Corpus.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create corpus dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Corpus.Path, cfg.Corpus.Exclude...)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	syncer := index.NewSyncer(db, store, cfg.Corpus.URLPrefix, logger)
	if _, err := syncer.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	svc := pageservice.NewService(corpus.NewFSRepository(store, logger), db, syncer, pageservice.Options{
		RootPage:       cfg.Corpus.RootPage,
		URLPrefix:      cfg.Corpus.URLPrefix,
		Workers:        cfg.Linker.Workers,
		PersistRelated: cfg.Linker.PersistRelated,
	}, logger)

	return &runtime{
		cfg:    cfg,
		logger: logger,
		store:  store,
		db:     db,
		syncer: syncer,
		svc:    svc,
		out:    app.out,
	}, nil
}

// newHTTPHandler builds the root router: middleware, health probes and the
// API mounted under /api.
func newHTTPHandler(rt *runtime, broker *sse.Broker) http.Handler {
	cfg := rt.cfg
	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, cfg.App.HTTP.CORSOrigins, api.WithEvents(broker))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := rt.db.PingContext(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)
	return r
}

// Run starts the HTTP server and the corpus watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(os.Stdout, opts...)
	if err != nil {
		return err
	}
	rt, err := bootstrap(ctx, app)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger := rt.logger
	cfg := rt.cfg

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(rt, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the index in step with edits made outside the API.
	g.Go(func() error {
		err := rt.syncer.Watch(gCtx, rt.store.Root(), func(kind, path string) {
			logger.Debug("page changed", slog.String("kind", kind), slog.String("path", path))
			broker.PublishPageEvent(kind, path)
		})
		if err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
