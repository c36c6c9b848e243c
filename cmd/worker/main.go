package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/chalkboard-sms/chalkboard/internal/app"
	"github.com/chalkboard-sms/chalkboard/internal/identity"
	"github.com/chalkboard-sms/chalkboard/internal/platform/db"
	"github.com/chalkboard-sms/chalkboard/internal/registry"
	"github.com/chalkboard-sms/chalkboard/internal/shared"
	"github.com/chalkboard-sms/chalkboard/internal/tenant"
	"github.com/chalkboard-sms/chalkboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	registryPool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect registry database", slog.Any("error", err))
		os.Exit(1)
	}
	defer registryPool.Close()

	auditLogger := shared.NewAuditLogger(registryPool)
	registryRepo := registry.NewRepository(registryPool)
	registryService := registry.NewService(registryRepo, logger, auditLogger, cfg.RegistryLegacyLiteralCodes)

	manager := tenant.NewManager(
		tenant.PostgresDialer{DSNTemplate: cfg.TenantDSNTemplate},
		logger,
		nil,
		tenant.ManagerConfig{
			DialTimeout:  cfg.TenantDialTimeout,
			ProbeTimeout: cfg.TenantProbeTimeout,
		},
	)
	defer manager.Close()

	identityStore := identity.NewPGStore(manager)

	warmupJob := jobs.NewTenantWarmupJob(registryService, manager, logger, nil)
	evictJob := jobs.NewTenantEvictJob(registryService, manager, logger, nil)
	scrubJob := jobs.NewCredentialEchoScrubJob(registryService, identityStore, cfg.CredentialEchoTTL, logger, nil)

	warmupTask, err := jobs.NewTenantWarmupTask(jobs.TenantWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	evictTask, err := jobs.NewTenantEvictTask(jobs.TenantEvictPayload{})
	if err != nil {
		logger.Error("build evict task", slog.Any("error", err))
		os.Exit(1)
	}
	scrubTask, err := jobs.NewCredentialEchoScrubTask(jobs.CredentialEchoScrubPayload{})
	if err != nil {
		logger.Error("build scrub task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTenantWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskTenantEvict, Handler: evictJob.Handle},
			{Type: jobs.TaskCredentialEchoScrub, Handler: scrubJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every 1h", Task: warmupTask},
			{Spec: "@every 1h", Task: evictTask},
			{Spec: "@daily", Task: scrubTask},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
