// Living case study: personal microsite with a server-side chat assistant.
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/vakosile/living-case-study/internal/analytics"
	"github.com/vakosile/living-case-study/internal/api"
	"github.com/vakosile/living-case-study/internal/assistant"
	"github.com/vakosile/living-case-study/internal/config"
	"github.com/vakosile/living-case-study/internal/content"
	"github.com/vakosile/living-case-study/internal/events"
	"github.com/vakosile/living-case-study/internal/gemini"
	"github.com/vakosile/living-case-study/internal/identity"
	"github.com/vakosile/living-case-study/internal/metrics"
	"github.com/vakosile/living-case-study/internal/middleware"
	"github.com/vakosile/living-case-study/internal/page"
	"github.com/vakosile/living-case-study/internal/store"
	"github.com/vakosile/living-case-study/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"container", config.IsContainer(),
		"assistant_enabled", cfg.AIEnabled(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	slog.Info("Database connected", "path", cfg.DBPath)

	doc, err := loadContent(cfg.ContentPath)
	if err != nil {
		slog.Error("Failed to load content", "error", err, "path", cfg.ContentPath)
		os.Exit(1)
	}

	hasher, err := identity.NewIPHasher()
	if err != nil {
		slog.Error("Failed to initialize IP hasher", "error", err)
		os.Exit(1)
	}

	publisher, err := events.Connect(ctx, cfg.NATS.URL, cfg.NATS.Token, logger)
	if err != nil {
		slog.Warn("Failed to connect to NATS, events disabled", "error", err)
		publisher = events.Noop{}
	}
	defer publisher.Close()

	m := metrics.New()
	recorder := analytics.NewRecorder(analytics.Options{
		Store:     repo,
		Metrics:   m,
		Publisher: publisher,
		Hasher:    hasher,
		Enabled:   cfg.Tracking.Enabled,
		Retention: cfg.Tracking.Retention,
		Logger:    logger.With("component", "analytics"),
	})

	gen := newGenerator(ctx, cfg)
	registry := assistant.NewRegistry(gen, assistant.TextsFromContent(doc.Assistant), recorder, logger.With("component", "assistant"))
	m.RegisterGaugeFunc("casestudy_assistant_sessions", "Assistant widget sessions held in memory.", func() float64 {
		return float64(registry.Len())
	})
	limiter := assistant.NewRateLimiter(cfg.Assistant.RateLimit, cfg.Assistant.RateWindow)
	defer limiter.Close()

	assistant.StartSweeper(ctx, registry, cfg.Assistant.SweepInterval, cfg.Assistant.SessionTTL, recorder.Prune)

	renderer, err := page.NewRenderer(web.Templates())
	if err != nil {
		slog.Error("Failed to parse templates", "error", err)
		os.Exit(1)
	}

	// Initialize handlers.
	pageHandler := page.NewHandler(doc, renderer, recorder)
	assistantHandler := assistant.NewHandler(registry, limiter, assistant.HandlerConfig{
		MaxBodySize:       cfg.Assistant.MaxBodySize,
		KeepaliveInterval: cfg.SSE.KeepaliveInterval,
		RetryDelay:        cfg.SSE.RetryDelay,
		AllowedOrigin:     cfg.FrontendURL,
		IsDev:             cfg.IsDevelopment(),
	})
	healthHandler := api.NewHealthHandler(repo, cfg.AIEnabled())
	adminHandler := api.NewAdminHandler(repo, cfg.AdminToken)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(middleware.Origins(cfg.FrontendURL)))

	// Public routes.
	healthHandler.RegisterHealth(r)
	adminHandler.RegisterRoutes(r)
	r.Handle("/metrics", m.Handler())
	r.Handle("/static/*", http.StripPrefix("/static/", web.StaticHandler()))
	r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.Dir(cfg.AssetsDir))))

	// Visitor routes carry anonymous identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment(), cfg.Tracking.Enabled))
		pageHandler.RegisterRoutes(r)
		assistantHandler.RegisterRoutes(r)
	})

	// Note: SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

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
	}
	recorder.Wait()

	slog.Info("Server stopped successfully")
}

func loadContent(path string) (*content.Document, error) {
	if path == "" {
		return content.Default()
	}
	return content.Load(path)
}

// newGenerator returns the Gemini client, or a generator that always fails
// over to the unavailable reply when no API key is configured.
func newGenerator(ctx context.Context, cfg *config.Config) assistant.Generator {
	if !cfg.AIEnabled() {
		slog.Info("Assistant replies disabled (GEMINI_API_KEY not set)")
		return gemini.Unavailable{Reason: "GEMINI_API_KEY not set"}
	}
	client, err := gemini.New(ctx, gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		Timeout: cfg.Gemini.Timeout,
	})
	if err != nil {
		slog.Warn("Failed to create Gemini client, assistant replies disabled", "error", err)
		return gemini.Unavailable{Reason: err.Error()}
	}
	slog.Info("Gemini client ready", "model", cfg.Gemini.Model)
	return client
}
