// Rangeops Worker
//
// Standalone background-processing binary: runs the Batch Worker, Identity
// Sync Worker, and Instance Reconciler on the Scheduler's interval triggers,
// plus the Reminder Job on the active event. The token-authenticated HTTP
// surface lives in cmd/api, not here.
package main

import (
	"context"
	"encoding/hex"
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

	"go.redcell.dev/rangeops/internal/common/health"
	"go.redcell.dev/rangeops/internal/common/leader"
	commonmongo "go.redcell.dev/rangeops/internal/common/mongo"
	"go.redcell.dev/rangeops/internal/common/secrets"
	"go.redcell.dev/rangeops/internal/config"
	"go.redcell.dev/rangeops/internal/crypto"
	"go.redcell.dev/rangeops/internal/jobs/reminder"
	"go.redcell.dev/rangeops/internal/mailer"
	"go.redcell.dev/rangeops/internal/platform/audit"
	"go.redcell.dev/rangeops/internal/platform/emailqueue"
	"go.redcell.dev/rangeops/internal/platform/identity"
	"go.redcell.dev/rangeops/internal/platform/instance"
	"go.redcell.dev/rangeops/internal/platform/participant"
	"go.redcell.dev/rangeops/internal/platform/workflow"
	"go.redcell.dev/rangeops/internal/scheduler"
	"go.redcell.dev/rangeops/internal/worker/batchworker"
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

	slog.Info("starting rangeops worker", "version", version, "build_time", buildTime)

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

	masterKey, err := loadMasterKey(ctx, cfg)
	if err != nil {
		slog.Error("failed to load master encryption key", "error", err)
		os.Exit(1)
	}
	decrypt := func(ciphertext string) (string, error) {
		return crypto.Decrypt(masterKey, ciphertext)
	}

	queueRepo := emailqueue.NewMongoRepository(mongoClient)
	participantRepo := participant.NewMongoRepository(mongoClient)
	workflowRepo := workflow.NewMongoRepository(mongoClient)
	identityRepo := identity.NewMongoRepository(mongoClient)
	instanceRepo := instance.NewMongoRepository(mongoClient)

	auditSvc := audit.NewService(audit.NewRepository(mongoClient.Database()))
	dispatcher := workflow.NewDispatcher(workflowRepo, queueRepo, participantRepo, auditSvc)

	registry := mailer.NewRegistry()
	registerDefaultTemplates(registry)
	mailerClient := mailer.New(&mailer.Config{
		SMTPHost:    cfg.Mailer.SMTPHost,
		SMTPPort:    cfg.Mailer.SMTPPort,
		Username:    cfg.Mailer.SMTPUsername,
		Password:    cfg.Mailer.SMTPPassword,
		FromAddress: cfg.Mailer.FromAddress,
	}, registry)

	batchWorker := batchworker.New(queueRepo, mailerClient, &batchworker.Config{
		WorkerID:  hostnameOrDefault(),
		BatchSize: cfg.Mailer.BatchSize,
	})

	downstreamClient := identity.NewHTTPDownstreamClient(cfg.Identity.BaseURL, cfg.Identity.APIKey)
	identityWorker := identity.NewWorker(identityRepo, downstreamClient, decrypt, nil)

	providers := buildInstanceProviders(cfg.Instance)
	reconciler := instance.NewReconciler(instanceRepo, providers)

	reminderJob := reminder.New(participantRepo, dispatcher, reminder.DefaultConfig())

	var leaderElector *leader.LeaderElector
	if cfg.Leader.Enabled {
		electorCfg := leader.DefaultElectorConfig("rangeops:scheduler:leader")
		electorCfg.TTL = cfg.Leader.TTL
		electorCfg.RefreshInterval = cfg.Leader.RefreshInterval
		leaderElector = leader.NewLeaderElector(mongoClient.Database(), electorCfg)
	}

	statusRepo := scheduler.NewMongoStatusRepository(mongoClient)

	sched := scheduler.New(cfg.Leader.InstanceID, statusRepo, nil, leaderElector)

	mustRegister(sched, scheduler.Job{
		ID:      "batch_worker:email",
		Name:    "email batch processor",
		Trigger: scheduler.Trigger{Kind: scheduler.TriggerInterval, Interval: 15 * time.Minute},
		Fn: func(ctx context.Context) error {
			_, err := batchWorker.RunBatch(ctx, cfg.Mailer.BatchSize)
			return err
		},
	})

	mustRegister(sched, scheduler.Job{
		ID:      "identity_sync:worker",
		Name:    "identity sync worker",
		Trigger: scheduler.Trigger{Kind: scheduler.TriggerInterval, Interval: cfg.Identity.PollInterval},
		Fn: func(ctx context.Context) error {
			_, err := identityWorker.RunBatch(ctx, 50)
			return err
		},
	})

	mustRegister(sched, scheduler.Job{
		ID:      "instance:reconcile",
		Name:    "instance status reconciler",
		Trigger: scheduler.Trigger{Kind: scheduler.TriggerInterval, Interval: cfg.Instance.PollInterval},
		Fn: func(ctx context.Context) error {
			_, err := reconciler.Run(ctx)
			return err
		},
	})

	mustRegister(sched, scheduler.Job{
		ID:      "reminder:scan",
		Name:    "reminder job",
		Trigger: scheduler.Trigger{Kind: scheduler.TriggerInterval, Interval: time.Hour},
		Fn: func(ctx context.Context) error {
			event, err := participantRepo.FindActiveEvent(ctx)
			if err != nil {
				if errors.Is(err, participant.ErrNotFound) {
					return nil
				}
				return err
			}
			return reminderJob.Run(ctx, event.ID)
		},
	})

	sched.Start(ctx)
	defer sched.Stop()

	slog.Info("worker scheduler started", "registered_jobs", len(sched.Jobs()))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/q/health", healthChecker.HandleHealth)
	r.Get("/q/health/live", healthChecker.HandleLive)
	r.Get("/q/health/ready", healthChecker.HandleReady)
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("worker health/metrics server starting", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker http server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("worker http server forced to shutdown", "error", err)
	}
	slog.Info("rangeops worker stopped")
}

func mustRegister(s *scheduler.Scheduler, job scheduler.Job) {
	if err := s.Register(job); err != nil {
		slog.Error("failed to register scheduler job", "job_id", job.ID, "error", err)
		os.Exit(1)
	}
}

func buildInstanceProviders(cfg config.InstanceConfig) map[instance.Provider]instance.CloudProvider {
	providers := map[instance.Provider]instance.CloudProvider{
		instance.ProviderNoop: instance.NewNoopProvider(),
	}
	switch cfg.Provider {
	case "openstack":
		providers[instance.ProviderOpenStack] = instance.NewOpenStackProvider(os.Getenv("OPENSTACK_BASE_URL"), os.Getenv("OPENSTACK_AUTH_TOKEN"))
	case "digitalocean":
		providers[instance.ProviderDigitalOcean] = instance.NewDigitalOceanProvider(os.Getenv("DIGITALOCEAN_BASE_URL"), os.Getenv("DIGITALOCEAN_BEARER_TOKEN"))
	}
	return providers
}

func registerDefaultTemplates(r *mailer.Registry) {
	r.Register(&mailer.Template{Key: "invitation", Subject: "You're invited to {{event_name}}", BodyHTML: "<p>Hi {{display_name}}, you've been invited.</p>"})
	r.Register(&mailer.Template{Key: "reminder_stage_1", Subject: "Reminder: {{event_name}} is coming up", BodyHTML: "<p>Hi {{display_name}}, don't forget to register.</p>"})
	r.Register(&mailer.Template{Key: "reminder_stage_2", Subject: "Second reminder: {{event_name}}", BodyHTML: "<p>Hi {{display_name}}, time is running out.</p>"})
	r.Register(&mailer.Template{Key: "reminder_stage_3", Subject: "Final reminder: {{event_name}}", BodyHTML: "<p>Hi {{display_name}}, the event starts soon.</p>"})
}

func hostnameOrDefault() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "worker"
	}
	return h
}

// loadMasterKey fetches the 32-byte AES key used by internal/crypto from the
// configured secrets provider. The key is stored hex-encoded.
func loadMasterKey(ctx context.Context, cfg *config.Config) ([]byte, error) {
	provider, err := secrets.NewProvider(&secrets.Config{
		Source:    secrets.SourceType(cfg.Secrets.Source),
		DataDir:   cfg.Secrets.DataDir,
		AWSRegion: cfg.Secrets.AWSRegion,
		AWSPrefix: cfg.Secrets.AWSSecretID,
		VaultAddr: cfg.Secrets.VaultAddr,
		VaultPath: cfg.Secrets.VaultPath,
	})
	if err != nil {
		return nil, fmt.Errorf("build secrets provider: %w", err)
	}

	encoded, err := provider.Get(ctx, "master-key")
	if err != nil {
		return nil, fmt.Errorf("fetch master key: %w", err)
	}

	key, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	return key, nil
}
