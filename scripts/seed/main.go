package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"

	"github.com/conformapro/conformapro/internal/app"
	"github.com/conformapro/conformapro/internal/platform/db"
	"github.com/conformapro/conformapro/internal/shared"
)

type seedConfig struct {
	AdminEmail    string `envconfig:"SEED_ADMIN_EMAIL" default:"admin@conformapro.local"`
	AdminPassword string `envconfig:"SEED_ADMIN_PASSWORD" default:"changeme-admin"`
	AdminNom      string `envconfig:"SEED_ADMIN_NOM" default:"Admin"`
	AdminPrenom   string `envconfig:"SEED_ADMIN_PRENOM" default:"Plateforme"`
	DemoClient    string `envconfig:"SEED_DEMO_CLIENT"`
	DemoSite      string `envconfig:"SEED_DEMO_SITE" default:"Site principal"`
}

func main() {
	ctx := context.Background()
	cfg, err := app.LoadMigrateConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	var seed seedConfig
	if err := envconfig.Process("", &seed); err != nil {
		logger.Error("load seed config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.IsProduction() && seed.AdminPassword == "changeme-admin" {
		logger.Error("refusing to seed the default admin password in production")
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("seeding super admin", slog.String("email", seed.AdminEmail))
	if err := db.WithTx(ctx, pool, func(tx pgx.Tx) error { return seedSuperAdmin(ctx, tx, seed) }); err != nil {
		logger.Error("seed super admin", slog.Any("error", err))
		os.Exit(1)
	}

	if strings.TrimSpace(seed.DemoClient) != "" {
		logger.Info("seeding demo client", slog.String("client", seed.DemoClient))
		if err := db.WithTx(ctx, pool, func(tx pgx.Tx) error { return seedDemoClient(ctx, tx, seed) }); err != nil {
			logger.Error("seed demo client", slog.Any("error", err))
			os.Exit(1)
		}
	}
	logger.Info("seed complete")
}

func seedSuperAdmin(ctx context.Context, tx pgx.Tx, seed seedConfig) error {
	var roleID string
	err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE type = 'team' AND name = $1 AND is_system LIMIT 1`,
		shared.RoleSuperAdmin).Scan(&roleID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("role %q missing, run migrations first", shared.RoleSuperAdmin)
	}
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seed.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	var userID string
	err = tx.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, nom, prenom, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT ((lower(email))) DO UPDATE SET updated_at = now()
		RETURNING id`, strings.ToLower(seed.AdminEmail), string(hash), seed.AdminNom, seed.AdminPrenom).Scan(&userID)
	if err != nil {
		return fmt.Errorf("upsert admin: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID)
	return err
}

func seedDemoClient(ctx context.Context, tx pgx.Tx, seed seedConfig) error {
	var clientID string
	err := tx.QueryRow(ctx, `SELECT id FROM clients WHERE name = $1 LIMIT 1`, seed.DemoClient).Scan(&clientID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx, `INSERT INTO clients (name) VALUES ($1) RETURNING id`, seed.DemoClient).Scan(&clientID)
	}
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}

	var siteID string
	err = tx.QueryRow(ctx, `SELECT id FROM sites WHERE client_id = $1 AND name = $2 LIMIT 1`, clientID, seed.DemoSite).Scan(&siteID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx, `INSERT INTO sites (client_id, name) VALUES ($1, $2) RETURNING id`, clientID, seed.DemoSite).Scan(&siteID)
	}
	if err != nil {
		return fmt.Errorf("site: %w", err)
	}

	// Every module listed in the client catalogue starts enabled on the demo site.
	_, err = tx.Exec(ctx, `
		INSERT INTO site_modules (site_id, module_id, enabled, enabled_at)
		SELECT $1, m.id, TRUE, now()
		FROM modules_systeme m
		WHERE m.actif AND m.code = ANY($2)
		ON CONFLICT (site_id, module_id) DO NOTHING`, siteID, shared.ClientModules())
	return err
}
