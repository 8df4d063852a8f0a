package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/tidebill/tidebill/internal/app"
	"github.com/tidebill/tidebill/internal/billing"
	"github.com/tidebill/tidebill/internal/catalog"
	jobmetrics "github.com/tidebill/tidebill/internal/jobs"
	"github.com/tidebill/tidebill/internal/platform/cache"
	"github.com/tidebill/tidebill/internal/platform/db"
	"github.com/tidebill/tidebill/internal/settings"
	"github.com/tidebill/tidebill/jobs"
)

func main() {
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
		logger.Warn("redis unavailable, price cache disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	settingsService := settings.NewService(settings.NewRepository(pool), logger)
	catalogRepo := catalog.NewRepository(pool)
	priceLookup := catalog.NewPriceLookup(catalogRepo, redisClient, logger)
	billingRepo := billing.NewRepository(pool)

	metrics := jobmetrics.NewMetrics(nil)
	totalsJob := jobs.NewTotalsIntegrityChecker(pool, billingRepo, priceLookup, settingsService, logger, metrics)
	retentionJob := jobs.NewAuditRetentionPruner(pool, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTotalsIntegrity, Handler: totalsJob.Handle},
			{Type: jobs.TaskAuditRetention, Handler: retentionJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: jobs.NewTotalsIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * 0", Task: jobs.NewAuditRetentionTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
