// Rangeops API
//
// Standalone binary serving the token-authenticated HTTP surface freshly
// provisioned instances call during boot: cloud-init VPN config fetch,
// license blob/slot endpoints, and the Mailer delivery-status webhook.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"go.redcell.dev/rangeops/internal/api"
	"go.redcell.dev/rangeops/internal/common/health"
	commonmongo "go.redcell.dev/rangeops/internal/common/mongo"
	"go.redcell.dev/rangeops/internal/config"
	"go.redcell.dev/rangeops/internal/mailer"
	"go.redcell.dev/rangeops/internal/platform/instance"
	"go.redcell.dev/rangeops/internal/platform/license"
	"go.redcell.dev/rangeops/internal/platform/participant"
	"go.redcell.dev/rangeops/internal/ratelimit"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("RANGEOPS_DEV") == "true" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("starting rangeops api", "version", version, "build_time", buildTime)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthChecker := health.NewChecker()

	mongoClient, err := commonmongo.Connect(ctx, cfg.MongoDB)
	if err != nil {
		slog.Error("failed to connect to mongodb", "error", err)
		os.Exit(1)
	}
	defer mongoClient.Disconnect(ctx)
	healthChecker.AddReadinessCheck(health.MongoDBCheck(func() error {
		return mongoClient.Ping(ctx)
	}))

	instanceRepo := instance.NewMongoRepository(mongoClient)
	licenseRepo := license.NewMongoRepository(mongoClient)
	participantRepo := participant.NewMongoRepository(mongoClient)

	licenseSvc := license.NewService(licenseRepo)
	webhookVerifier := mailer.NewWebhookVerifier(cfg.Mailer.WebhookSecret)

	var redisClient *redis.Client
	if cfg.RateLimit.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RateLimit.RedisURL)
		if err != nil {
			slog.Error("failed to parse rate limiter redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}
	acquireLimiter := ratelimit.NewService(ctx, redisClient, ratelimit.Config{
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Window:      cfg.RateLimit.Window,
	}, "ratelimit:license_acquire:")

	router := api.NewRouter(api.Dependencies{
		Instances:       instanceRepo,
		Licenses:        licenseSvc,
		Users:           participantRepo,
		WebhookVerifier: webhookVerifier,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		AcquireLimiter:  acquireLimiter,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api server starting", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down api gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api server forced to shutdown", "error", err)
	}
	slog.Info("rangeops api stopped")
}
