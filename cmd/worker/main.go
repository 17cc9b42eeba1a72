package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/conformapro/conformapro/internal/app"
	jobmetrics "github.com/conformapro/conformapro/internal/jobs"
	"github.com/conformapro/conformapro/internal/platform/cache"
	"github.com/conformapro/conformapro/internal/platform/db"
	"github.com/conformapro/conformapro/internal/rbac"
	"github.com/conformapro/conformapro/internal/roles"
	"github.com/conformapro/conformapro/jobs"
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

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	rbacService := rbac.NewService(rbac.NewRepository(pool), rbac.ServiceConfig{
		Cache: rbac.NewCache(redisClient, cfg.AccessCacheTTL),
		Retry: db.RetryPolicy{
			Base:       cfg.DBRetryBase,
			Cap:        cfg.DBRetryCap,
			MaxRetries: cfg.DBRetryMax,
		},
		Logger: logger,
	})

	mailJob := &jobs.SendEmailJob{
		Mailer:  jobs.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass),
		Logger:  logger,
		Metrics: metrics,
	}
	warmupJob := &jobs.AccessWarmupJob{
		Members:  roles.NewRepository(pool),
		Resolver: rbacService,
		Logger:   logger,
		Metrics:  metrics,
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.AsynqRedis(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
			{Type: jobs.TaskTypeAccessWarmup, Handler: warmupJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
