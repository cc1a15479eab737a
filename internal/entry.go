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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/lattice/internal/api"
	"github.com/starford/lattice/internal/engine"
	"github.com/starford/lattice/internal/index"
	"github.com/starford/lattice/internal/mcpserver"
	"github.com/starford/lattice/internal/noteservice"
	"github.com/starford/lattice/internal/sse"
	"github.com/starford/lattice/internal/storage"
)

// stack is the storage, index and engine shared by every run mode.
type stack struct {
	logger *slog.Logger
	store  storage.Provider
	db     *index.DB
	engine *engine.Engine
}

func (s *stack) Close() {
	_ = s.engine.Close()
	_ = s.db.Close()
}

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

// open builds the logger, storage, SQLite index and engine. The engine
// indexes the whole vault before open returns.
func (a *application) open(ctx context.Context, onEvent func(engine.Event)) (*stack, error) {
	cfg := a.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	opts := []engine.Option{
		engine.WithStore(store),
		engine.WithIndexDB(db),
		engine.WithLogger(logger),
		engine.WithTTLs(cfg.Graph.CacheTTL.TTLs()),
		engine.WithWorkers(cfg.Graph.Workers),
	}
	if onEvent != nil {
		opts = append(opts, engine.WithEventHandler(onEvent))
	}
	eng, err := engine.Open(ctx, opts...)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}

	return &stack{logger: logger, store: store, db: db, engine: eng}, nil
}

// Run starts the HTTP server and the vault watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// SSE broker, fed by the engine after every applied change.
	broker := sse.NewBroker(cfg.Graph.SSEThrottle)
	defer broker.Close()

	st, err := app.open(ctx, func(ev engine.Event) {
		if ev.Rebuild {
			broker.PublishRebuild()
			return
		}
		broker.PublishChange(string(ev.Change.Kind), ev.Change.Path, ev.Change.OldPath, ev.Affected)
	})
	if err != nil {
		return err
	}
	defer st.Close()
	logger := st.logger

	svc := noteservice.NewService(st.store, st.db, st.engine)
	apiRouter := api.NewRouter(svc, st.engine, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, cfg.Graph.DefaultDepth)

	// Build chi router.
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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Forward external vault edits to the engine.
	g.Go(func() error {
		if err := index.Watch(gCtx, st.store, st.engine, logger, cfg.Graph.WatchDebounce); err != nil {
			logger.Error("watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		st.engine.Janitor(gCtx, cfg.Graph.CacheTTL.Graph)
		return nil
	})

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup context so the watcher stops with the
// HTTP server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. The vault watcher keeps the
// graph current while the session is open.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	cfg := app.config

	st, err := app.open(ctx, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := index.Watch(watchCtx, st.store, st.engine, st.logger, cfg.Graph.WatchDebounce); err != nil {
			st.logger.Error("watcher failed", slog.String("error", err.Error()))
		}
	}()

	svc := noteservice.NewService(st.store, st.db, st.engine)
	srv := mcpserver.New(svc, st.engine, cfg.Graph.DefaultDepth)
	st.logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}

// RunRebuild indexes the vault once, bringing the SQLite index in line with
// the files, and returns the rebuild statistics.
func RunRebuild(ctx context.Context, opts ...Option) (engine.Stats, error) {
	app, err := newApplication(opts)
	if err != nil {
		return engine.Stats{}, err
	}
	var stats engine.Stats
	st, err := app.open(ctx, func(ev engine.Event) {
		if ev.Rebuild {
			stats = ev.Stats
		}
	})
	if err != nil {
		return engine.Stats{}, err
	}
	st.Close()
	return stats, nil
}
