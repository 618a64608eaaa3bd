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

	"github.com/odyssey-erp/odyssey-crm/internal/app"
	"github.com/odyssey-erp/odyssey-crm/internal/catalog"
	"github.com/odyssey-erp/odyssey-crm/internal/documents"
	"github.com/odyssey-erp/odyssey-crm/internal/format"
	"github.com/odyssey-erp/odyssey-crm/internal/observability"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-crm/internal/summary"
	"github.com/odyssey-erp/odyssey-crm/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns, MaxConnIdleTime: cfg.PGMaxConnIdleTime})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	versioned := cache.New(redisClient, cfg.CacheTTL)
	if err := versioned.ListenForInvalidation(ctx, cache.BumpChannel); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	formatter, err := format.New(cfg.Locale)
	if err != nil {
		logger.Error("init formatter", slog.Any("error", err), slog.String("locale", cfg.Locale))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	catalogReader := catalog.NewCachedReader(catalog.NewRepository(pool), versioned)
	documentRepo := documents.NewRepository(pool)
	documentService := documents.NewService(documentRepo, documents.Options{
		Catalog:  catalogReader,
		Logger:   logger,
		Metrics:  metrics,
		Notifier: jobs.NewChangeNotifier(versioned, jobClient, logger, metrics.Jobs()),
	})
	summaryService := summary.NewService(documentRepo, versioned, nil, logger, metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Pool:             pool,
		DocumentsHandler: documents.NewHandler(logger, documentService, formatter),
		SummaryHandler:   summary.NewHandler(logger, summaryService),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
