// Dispatch Trainer - support-dispatcher chat quiz server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/dispatch-trainer/internal/api"
	"github.com/ashureev/dispatch-trainer/internal/catalog"
	"github.com/ashureev/dispatch-trainer/internal/chat"
	"github.com/ashureev/dispatch-trainer/internal/config"
	"github.com/ashureev/dispatch-trainer/internal/game"
	"github.com/ashureev/dispatch-trainer/internal/identity"
	"github.com/ashureev/dispatch-trainer/internal/middleware"
	"github.com/ashureev/dispatch-trainer/internal/random"
	"github.com/ashureev/dispatch-trainer/internal/store"
	"github.com/ashureev/dispatch-trainer/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

const (
	sessionSweepInterval = time.Minute
	retentionInterval    = time.Hour
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "db_driver", cfg.DBDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	driver, err := store.ParseDriver(cfg.DBDriver)
	if err != nil {
		slog.Error("Invalid database driver", "error", err)
		os.Exit(1)
	}
	dsn := cfg.DBPath
	if driver == store.DriverPostgres {
		dsn = cfg.DBDSN
	}
	repo, err := store.Open(ctx, driver, dsn)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	slog.Info("Database connected")

	scenarios, err := catalog.Bootstrap(ctx, repo, cfg.CatalogPath)
	if err != nil {
		slog.Error("Failed to load scenario catalog", "error", err)
		os.Exit(1)
	}
	// An empty catalog still starts the server; session creation reports it.
	pool, err := game.NewScenarioPool(scenarios)
	if err != nil {
		slog.Warn("Scenario catalog unavailable", "error", err)
	} else {
		slog.Info("Scenario catalog loaded", "scenarios", pool.Len())
	}

	seed := cfg.RandomSeed
	if seed == 0 {
		if seed, err = random.NewSeed(); err != nil {
			slog.Error("Failed to seed scenario selection", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Info("Using fixed random seed", "seed", seed)
	}

	// Initialize services.
	reg := game.NewRegistry(pool, seed, game.WithMaxLives(cfg.MaxLives), game.WithLogger(logger))
	conns := chat.NewConnManager()
	reg.OnRemove(conns.CloseSession)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, reg, cfg.HistoryLimit)
	sessionHandler := api.NewSessionHandler(baseHandler)
	healthHandler := api.NewHealthHandler(repo, pool, reg)
	wsHandler := chat.NewWebSocketHandler(reg, conns, repo, cfg.Pacing, cfg.AllowedOrigins, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Player routes carry an anonymous identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		sessionHandler.RegisterRoutes(r)
		r.Get("/ws/play", wsHandler.ServeHTTP)
	})

	// Chat client.
	r.Handle("/*", web.Handler())

	// Create server.
	// No WriteTimeout: websocket chats are long-lived.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start background workers.
	reg.StartSweeper(ctx, sessionSweepInterval, cfg.SessionTTL)
	store.StartRetentionWorker(ctx, repo, cfg.TurnRetention, retentionInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
