package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleetline/fleetline/internal/app"
	"github.com/fleetline/fleetline/internal/businessday"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	dayRepo := businessday.NewRepository(dbpool)
	dayService := businessday.NewService(dayRepo)
	dayHandler := businessday.NewHandler(logger, dayService)

	orderRepo := orders.NewRepository(dbpool)

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, catalogRepo, orderRepo)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	driverRepo := drivers.NewRepository(dbpool)
	driverService := drivers.NewService(driverRepo, inventoryService)
	driverHandler := drivers.NewHandler(logger, driverService)

	settlementRepo := settlement.NewRepository(dbpool)
	settlementCache := settlement.NewCache(redisClient, cfg.EarningsCacheTTL)
	orderFacts := integration.NewOrderFactSource(orderRepo)
	settlementService := settlement.NewService(settlementRepo, orderFacts, settlementCache, approvalRecorder, auditLogger, metrics)
	settlementHandler := settlement.NewHandler(logger, settlementService)

	orderService := orders.NewService(orderRepo, inventoryService, dayService, idempotencyStore, settlementService, metrics)
	orderHandler := orders.NewHandler(logger, orderService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		Metrics:     metrics,
		Catalog:     catalogHandler,
		Drivers:     driverHandler,
		Inventory:   inventoryHandler,
		Orders:      orderHandler,
		Settlement:  settlementHandler,
		BusinessDay: dayHandler,
		Jobs:        jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
