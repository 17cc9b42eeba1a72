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

	"github.com/conformapro/conformapro/internal/app"
	"github.com/conformapro/conformapro/internal/auth"
	"github.com/conformapro/conformapro/internal/observability"
	"github.com/conformapro/conformapro/internal/platform/cache"
	"github.com/conformapro/conformapro/internal/platform/db"
	"github.com/conformapro/conformapro/internal/preferences"
	"github.com/conformapro/conformapro/internal/rbac"
	"github.com/conformapro/conformapro/internal/roles"
	"github.com/conformapro/conformapro/internal/shared"
	"github.com/conformapro/conformapro/internal/sitemodules"
	"github.com/conformapro/conformapro/internal/users"
	"github.com/conformapro/conformapro/jobs"
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

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	redisOpts := cfg.AsynqRedis()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	rbacService := rbac.NewService(rbac.NewRepository(dbpool), rbac.ServiceConfig{
		Cache: rbac.NewCache(redisClient, cfg.AccessCacheTTL),
		Retry: db.RetryPolicy{
			Base:       cfg.DBRetryBase,
			Cap:        cfg.DBRetryCap,
			MaxRetries: cfg.DBRetryMax,
		},
		Logger:   logger,
		Observer: metrics,
	})
	rbacMiddleware := rbac.Middleware{Resolver: rbacService, Logger: logger, Recorder: metrics}

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authService := auth.NewService(auth.NewRepository(dbpool), tokens)
	authHandler := auth.NewHandler(logger, authService, cfg.LoginPerMinute)

	prefStore := preferences.NewStore(redisClient)
	prefHandler := preferences.NewHandler(logger, prefStore)

	siteService := sitemodules.NewService(sitemodules.NewRepository(dbpool), prefStore, logger)
	siteHandler := sitemodules.NewHandler(logger, siteService, rbacMiddleware)

	usersService := users.NewService(users.NewRepository(dbpool), users.ServiceConfig{
		Mailer:    jobClient,
		Access:    rbacService,
		Audit:     auditLogger,
		Logger:    logger,
		PublicURL: cfg.AppPublicURL,
	})
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	rolesService := roles.NewService(roles.NewRepository(dbpool), roles.ServiceConfig{
		Access: rbacService,
		Warmup: jobClient,
		Audit:  auditLogger,
		Logger: logger,
	})
	rolesHandler := roles.NewHandler(logger, rolesService, rbacMiddleware)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Tokens:             tokens,
		RBACMiddleware:     rbacMiddleware,
		Metrics:            metrics,
		AuthHandler:        authHandler,
		AccessHandler:      rbac.NewHandler(logger, rbacMiddleware),
		SiteModulesHandler: siteHandler,
		PreferencesHandler: prefHandler,
		UsersHandler:       usersHandler,
		RolesHandler:       rolesHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
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
