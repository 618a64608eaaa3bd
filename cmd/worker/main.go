package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-crm/internal/app"
	"github.com/odyssey-erp/odyssey-crm/internal/documents"
	"github.com/odyssey-erp/odyssey-crm/internal/observability"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-crm/internal/summary"
	"github.com/odyssey-erp/odyssey-crm/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns, MaxConnIdleTime: cfg.PGMaxConnIdleTime})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	versioned := cache.New(redisClient, cfg.CacheTTL)
	jobMetrics := observability.NewMetrics().Jobs()

	summaryService := summary.NewService(documents.NewRepository(pool), versioned, nil, logger, nil)
	warmupJob := &jobs.SummaryWarmupJob{Summary: summaryService, Logger: logger, Metrics: jobMetrics, Timeout: time.Minute}
	rolloverJob := &jobs.CacheRolloverJob{Cache: versioned, Logger: logger, Metrics: jobMetrics}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSummaryWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskCacheRollover, Handler: rolloverJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RolloverCron, Task: jobs.NewCacheRolloverTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
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
