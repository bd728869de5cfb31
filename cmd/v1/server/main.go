package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pier0x/bottel/internal/v1/api"
	"github.com/pier0x/bottel/internal/v1/auth"
	"github.com/pier0x/bottel/internal/v1/config"
	"github.com/pier0x/bottel/internal/v1/health"
	"github.com/pier0x/bottel/internal/v1/logging"
	"github.com/pier0x/bottel/internal/v1/middleware"
	"github.com/pier0x/bottel/internal/v1/ratelimit"
	"github.com/pier0x/bottel/internal/v1/registry"
	"github.com/pier0x/bottel/internal/v1/socket"
	"github.com/pier0x/bottel/internal/v1/store"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Load .env file for local development; deployed environments set
	// real environment variables instead.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded environment from .env")
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.IsDevelopment()); err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pg.Close()
	st := store.NewBreaker(pg)

	reg := registry.New(st, registry.Options{
		CanonicalSlug: cfg.CanonicalSlug,
		HistoryLimit:  cfg.HistoryLimit,
		MessageMaxLen: cfg.MessageMaxLen,
		WalkSpeed:     cfg.WalkSpeed,
	})
	if err := reg.EnsureCanonical(context.Background()); err != nil {
		slog.Error("failed to ensure canonical room", "error", err)
		os.Exit(1)
	}

	commands, err := ratelimit.NewCommandLimiter(cfg.RateLimitChat, cfg.RateLimitMove)
	if err != nil {
		slog.Error("invalid command rate limits", "error", err)
		os.Exit(1)
	}
	connects, err := ratelimit.NewConnectLimiter(cfg.RateLimitWsIP)
	if err != nil {
		slog.Error("invalid connect rate limit", "error", err)
		os.Exit(1)
	}

	allowedOrigins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	validator := auth.NewValidator(cfg.TokenSecret)
	ws := socket.NewServer(reg, st, validator, commands, connects, allowedOrigins)

	// --- Set up Server ---
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins
	router.Use(cors.New(corsConfig))

	// Routing
	router.GET("/ws", ws.ServeWs)

	api.NewHandler(reg).Register(router.Group("/api"))

	healthHandler := health.NewHandler(st)
	router.GET("/healthz", healthHandler.Healthz)
	router.GET("/readyz", healthHandler.Readyz)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		slog.Info("presence server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to run server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := reg.Shutdown(shutdownCtx); err != nil {
		slog.Error("room engines forced to shutdown", "error", err)
	}

	slog.Info("server exiting")
}
