package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads the data needed to resolve a user's access.
type Repository interface {
	ListAssignments(ctx context.Context, userID string) ([]Assignment, error)
	UserTenant(ctx context.Context, userID string) (string, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListAssignments returns the user's assignments ordered by assignment time,
// each joined to its non-archived role and that role's permissions.
func (r *PGRepository) ListAssignments(ctx context.Context, userID string) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT ur.id::text, ur.user_id::text, COALESCE(ur.client_id::text, ''),
			COALESCE(ur.site_scope::text[], '{}'), ur.created_at,
			ro.id::text, ro.type, ro.name, COALESCE(ro.description, ''), ro.is_system,
			COALESCE(ro.tenant_id::text, ''), ro.created_at, ro.updated_at
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1 AND ro.archived_at IS NULL
		ORDER BY ur.created_at, ur.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []Assignment
	roleIDs := make([]string, 0)
	seen := make(map[string]struct{})
	for rows.Next() {
		var a Assignment
		var roleType string
		if err := rows.Scan(&a.ID, &a.UserID, &a.ClientID, &a.SiteScope, &a.CreatedAt,
			&a.Role.ID, &roleType, &a.Role.Name, &a.Role.Description, &a.Role.IsSystem,
			&a.Role.TenantID, &a.Role.CreatedAt, &a.Role.UpdatedAt); err != nil {
			return nil, err
		}
		a.Role.Type = RoleType(roleType)
		assignments = append(assignments, a)
		if _, ok := seen[a.Role.ID]; !ok {
			seen[a.Role.ID] = struct{}{}
			roleIDs = append(roleIDs, a.Role.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(roleIDs) == 0 {
		return assignments, nil
	}

	perms, err := r.permissionsByRole(ctx, roleIDs)
	if err != nil {
		return nil, err
	}
	for i := range assignments {
		assignments[i].Role.Permissions = perms[assignments[i].Role.ID]
	}
	return assignments, nil
}

func (r *PGRepository) permissionsByRole(ctx context.Context, roleIDs []string) (map[string][]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, role_id::text, module, action, decision, scope
		FROM role_permissions
		WHERE role_id::text = ANY($1)
		ORDER BY created_at, id`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]Permission, len(roleIDs))
	for rows.Next() {
		var p Permission
		var decision, scope string
		if err := rows.Scan(&p.ID, &p.RoleID, &p.Module, &p.Action, &decision, &scope); err != nil {
			return nil, err
		}
		p.Decision = Decision(decision)
		p.Scope = Scope(scope)
		out[p.RoleID] = append(out[p.RoleID], p)
	}
	return out, rows.Err()
}

// UserTenant returns the client organisation attached to the user, if any.
func (r *PGRepository) UserTenant(ctx context.Context, userID string) (string, error) {
	var tenant string
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(tenant_id::text, '') FROM users WHERE id = $1`, userID).Scan(&tenant)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return tenant, err
}

var _ Repository = (*PGRepository)(nil)
