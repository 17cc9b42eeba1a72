package sitemodules

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conformapro/conformapro/internal/platform/db"
	"github.com/conformapro/conformapro/internal/platform/httpx"
)

// RepositoryPort defines persistence operations for site module visibility.
type RepositoryPort interface {
	ListActiveModules(ctx context.Context) ([]Module, error)
	ListSiteModules(ctx context.Context, siteID string, enabledOnly bool) ([]SiteModule, error)
	EnableModule(ctx context.Context, siteID, moduleID string) (SiteModule, error)
	DisableModule(ctx context.Context, siteID, moduleID string) (SiteModule, error)
	SetSiteModules(ctx context.Context, siteID string, moduleIDs []string) error
	SiteClient(ctx context.Context, siteID string) (string, error)
	UserClient(ctx context.Context, userID string) (string, error)
	UserSitePermissions(ctx context.Context, userID, siteID string) (SitePermissions, error)
	ReplaceUserSitePermissions(ctx context.Context, userID, clientID, siteID string, perms []UserPermission) error
}

// Repository implements RepositoryPort on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActiveModules returns the active catalogue ordered by label.
func (r *Repository) ListActiveModules(ctx context.Context) ([]Module, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, code, libelle, COALESCE(description, ''), actif
		FROM modules_systeme WHERE actif ORDER BY libelle`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Code, &m.Libelle, &m.Description, &m.Actif); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const siteModuleSelect = `SELECT sm.site_id::text, sm.module_id::text, sm.enabled, sm.enabled_at, sm.disabled_at, sm.created_at,
		m.id::text, m.code, m.libelle, COALESCE(m.description, ''), m.actif
	FROM site_modules sm
	JOIN modules_systeme m ON m.id = sm.module_id`

func scanSiteModule(row pgx.Row) (SiteModule, error) {
	var sm SiteModule
	err := row.Scan(&sm.SiteID, &sm.ModuleID, &sm.Enabled, &sm.EnabledAt, &sm.DisabledAt, &sm.CreatedAt,
		&sm.Module.ID, &sm.Module.Code, &sm.Module.Libelle, &sm.Module.Description, &sm.Module.Actif)
	return sm, err
}

// ListSiteModules returns a site's module rows, optionally enabled and active only.
func (r *Repository) ListSiteModules(ctx context.Context, siteID string, enabledOnly bool) ([]SiteModule, error) {
	query := siteModuleSelect + ` WHERE sm.site_id = $1`
	if enabledOnly {
		query += ` AND sm.enabled AND m.actif`
	}
	query += ` ORDER BY sm.created_at`
	rows, err := r.pool.Query(ctx, query, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SiteModule
	for rows.Next() {
		sm, err := scanSiteModule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (r *Repository) getSiteModule(ctx context.Context, q pgx.Tx, siteID, moduleID string) (SiteModule, error) {
	sm, err := scanSiteModule(q.QueryRow(ctx, siteModuleSelect+` WHERE sm.site_id = $1 AND sm.module_id = $2`, siteID, moduleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return SiteModule{}, fmt.Errorf("site module %s/%s: %w", siteID, moduleID, httpx.ErrNotFound)
	}
	return sm, err
}

// EnableModule upserts the row as enabled and clears disabled_at.
func (r *Repository) EnableModule(ctx context.Context, siteID, moduleID string) (SiteModule, error) {
	var sm SiteModule
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO site_modules (site_id, module_id, enabled, enabled_at, disabled_at)
			VALUES ($1, $2, TRUE, NOW(), NULL)
			ON CONFLICT (site_id, module_id) DO UPDATE
			SET enabled = TRUE, enabled_at = NOW(), disabled_at = NULL`, siteID, moduleID); err != nil {
			return err
		}
		var err error
		sm, err = r.getSiteModule(ctx, tx, siteID, moduleID)
		return err
	})
	return sm, err
}

// DisableModule marks an existing row disabled.
func (r *Repository) DisableModule(ctx context.Context, siteID, moduleID string) (SiteModule, error) {
	var sm SiteModule
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE site_modules SET enabled = FALSE, disabled_at = NOW()
			WHERE site_id = $1 AND module_id = $2`, siteID, moduleID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("site module %s/%s: %w", siteID, moduleID, httpx.ErrNotFound)
		}
		sm, err = r.getSiteModule(ctx, tx, siteID, moduleID)
		return err
	})
	return sm, err
}

// SetSiteModules enables exactly moduleIDs for the site and disables the rest.
func (r *Repository) SetSiteModules(ctx context.Context, siteID string, moduleIDs []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE site_modules SET enabled = FALSE, disabled_at = NOW()
			WHERE site_id = $1 AND enabled AND NOT (module_id::text = ANY($2))`, siteID, moduleIDs); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO site_modules (site_id, module_id, enabled, enabled_at, disabled_at)
			SELECT $1, m::uuid, TRUE, NOW(), NULL FROM unnest($2::text[]) AS m
			ON CONFLICT (site_id, module_id) DO UPDATE
			SET enabled = TRUE, enabled_at = NOW(), disabled_at = NULL
			WHERE NOT site_modules.enabled`, siteID, moduleIDs)
		return err
	})
}

// SiteClient returns the owning client of a site.
func (r *Repository) SiteClient(ctx context.Context, siteID string) (string, error) {
	var clientID string
	err := r.pool.QueryRow(ctx, `SELECT client_id::text FROM sites WHERE id = $1`, siteID).Scan(&clientID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("site %s: %w", siteID, httpx.ErrNotFound)
	}
	return clientID, err
}

// UserClient returns the client a user belongs to, or "" for staff.
func (r *Repository) UserClient(ctx context.Context, userID string) (string, error) {
	var clientID string
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(tenant_id::text, '') FROM users WHERE id = $1`, userID).Scan(&clientID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("user %s: %w", userID, httpx.ErrNotFound)
	}
	return clientID, err
}

// UserSitePermissions returns the grants a user holds at a site.
func (r *Repository) UserSitePermissions(ctx context.Context, userID, siteID string) (SitePermissions, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, user_id::text, COALESCE(client_id::text, ''), COALESCE(site_id::text, ''),
			module, action, decision, scope
		FROM user_permissions WHERE user_id = $1 AND site_id = $2
		ORDER BY created_at, id`, userID, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out SitePermissions
	for rows.Next() {
		var p UserPermission
		if err := rows.Scan(&p.ID, &p.UserID, &p.ClientID, &p.SiteID, &p.Module, &p.Action, &p.Decision, &p.Scope); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceUserSitePermissions swaps a user's grants at one site in a single transaction.
func (r *Repository) ReplaceUserSitePermissions(ctx context.Context, userID, clientID, siteID string, perms []UserPermission) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND site_id = $2`, userID, siteID); err != nil {
			return err
		}
		for _, p := range perms {
			if _, err := tx.Exec(ctx, `INSERT INTO user_permissions (id, user_id, client_id, site_id, module, action, decision, scope)
				VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8)`,
				p.ID, userID, clientID, siteID, p.Module, p.Action, string(p.Decision), string(p.Scope)); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ RepositoryPort = (*Repository)(nil)
