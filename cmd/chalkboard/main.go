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

	"github.com/hibiken/asynq"

	"github.com/chalkboard-sms/chalkboard/internal/access"
	"github.com/chalkboard-sms/chalkboard/internal/app"
	"github.com/chalkboard-sms/chalkboard/internal/identity"
	"github.com/chalkboard-sms/chalkboard/internal/observability"
	"github.com/chalkboard-sms/chalkboard/internal/platform/cache"
	"github.com/chalkboard-sms/chalkboard/internal/platform/db"
	"github.com/chalkboard-sms/chalkboard/internal/registry"
	"github.com/chalkboard-sms/chalkboard/internal/shared"
	"github.com/chalkboard-sms/chalkboard/internal/tenant"
	"github.com/chalkboard-sms/chalkboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// The sequence allocator degrades to store scans without Redis.
		logger.Warn("redis unavailable", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	tenantMetrics := observability.NewTenantCacheMetrics(metrics.Registerer())

	auditLogger := shared.NewAuditLogger(registryPool)

	registryRepo := registry.NewRepository(registryPool)
	registryService := registry.NewService(registryRepo, logger, auditLogger, cfg.RegistryLegacyLiteralCodes)
	registryHandler := registry.NewHandler(logger, registryService)

	manager := tenant.NewManager(
		tenant.PostgresDialer{DSNTemplate: cfg.TenantDSNTemplate},
		logger,
		tenantMetrics,
		tenant.ManagerConfig{
			DialTimeout:  cfg.TenantDialTimeout,
			ProbeTimeout: cfg.TenantProbeTimeout,
		},
	)
	defer manager.Close()

	overrideRepo := access.NewOverrideRepository(manager)
	resolver := access.NewResolver(overrideRepo, registryService)
	accessMiddleware := access.Middleware{
		Registry: registryService,
		Resolver: resolver,
		Logger:   logger,
	}
	permissionsHandler := access.NewPermissionsHandler(logger, overrideRepo, resolver)

	identityStore := identity.NewPGStore(manager)
	sequences := identity.NewSequenceAllocator(redisClient, logger)
	issuer := identity.NewIssuer(identityStore, sequences, logger, cfg.CredentialLength)
	identityHandler := identity.NewHandler(logger, issuer, auditLogger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("build job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		RegistryHandler:    registryHandler,
		PermissionsHandler: permissionsHandler,
		IdentityHandler:    identityHandler,
		AccessMiddleware:   accessMiddleware,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
