package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/fleetline/fleetline/internal/app"
	"github.com/fleetline/fleetline/internal/catalog"
	"github.com/fleetline/fleetline/internal/drivers"
	"github.com/fleetline/fleetline/internal/integration"
	"github.com/fleetline/fleetline/internal/inventory"
	"github.com/fleetline/fleetline/internal/observability"
	"github.com/fleetline/fleetline/internal/orders"
	"github.com/fleetline/fleetline/internal/platform/cache"
	"github.com/fleetline/fleetline/internal/platform/db"
	"github.com/fleetline/fleetline/internal/settlement"
	"github.com/fleetline/fleetline/internal/shared"
	"github.com/fleetline/fleetline/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	catalogRepo := catalog.NewRepository(pool)
	orderRepo := orders.NewRepository(pool)
	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, catalogRepo, orderRepo)
	driverRepo := drivers.NewRepository(pool)

	settlementRepo := settlement.NewRepository(pool)
	settlementCache := settlement.NewCache(redisClient, cfg.EarningsCacheTTL)
	orderFacts := integration.NewOrderFactSource(orderRepo)
	settlementService := settlement.NewService(settlementRepo, orderFacts, settlementCache, approvalRecorder, auditLogger, metrics)

	scanJob := jobs.NewInventoryScanJob(inventoryService, metrics, logger)
	warmupJob := jobs.NewEarningsWarmupJob(settlementService, driverRepo, logger)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, cfg.IdempotencyRetention, logger)

	warmupTask, err := jobs.NewEarningsWarmupTask(jobs.EarningsWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInventoryScan, Handler: scanJob.Handle},
			{Type: jobs.TaskEarningsWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: jobs.NewInventoryScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 1 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
