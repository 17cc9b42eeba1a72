package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/conformapro/conformapro/internal/app"
	"github.com/conformapro/conformapro/migrations"
)

func main() {
	command := flag.String("command", "up", "goose command: up, down, status, version, reset")
	flag.Parse()

	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping migrations")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadMigrateConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	db, err := goose.OpenDBWithDriver("pgx", cfg.PGDSN)
	if err != nil {
		logger.Error("open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("close database", slog.Any("error", err))
		}
	}()

	goose.SetBaseFS(migrations.FS)
	goose.SetTableName("schema_migrations")
	goose.SetLogger(slogGooseLogger{logger: logger})

	if err := goose.RunContext(ctx, *command, db, ".", flag.Args()...); err != nil {
		logger.Error("goose", slog.String("command", *command), slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("migrations complete", slog.String("command", *command))
}
