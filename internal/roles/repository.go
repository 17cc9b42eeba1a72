package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conformapro/conformapro/internal/platform/db"
	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/rbac"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListRoles(ctx context.Context, typ rbac.RoleType, tenantID string) ([]Summary, error)
	GetRole(ctx context.Context, id string) (rbac.Role, error)
	CountUsers(ctx context.Context, roleID string) (int, error)
	Permissions(ctx context.Context, roleID string) ([]rbac.Permission, error)
	Members(ctx context.Context, roleID string) ([]Member, error)
	UserIDsByRole(ctx context.Context, roleID string) ([]string, error)
}

// TxRepository exposes the writes performed inside one transaction.
type TxRepository interface {
	InsertRole(ctx context.Context, role rbac.Role) (rbac.Role, error)
	UpdateRole(ctx context.Context, id, name, description string) (rbac.Role, error)
	SetArchived(ctx context.Context, id string, archived bool) (rbac.Role, error)
	DeleteRole(ctx context.Context, id string) error
	ReplacePermissions(ctx context.Context, roleID string, perms []rbac.Permission) ([]rbac.Permission, error)
	AssignUsers(ctx context.Context, roleID string, userIDs []string, clientID string, siteScope []string) (int64, error)
	RemoveUsers(ctx context.Context, roleID string, userIDs []string) (int64, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps fn in a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const roleColumns = `r.id::text, r.type, r.name, COALESCE(r.description, ''), r.is_system,
	COALESCE(r.tenant_id::text, ''), r.created_at, r.updated_at, r.archived_at`

func scanRole(row pgx.Row, extra ...any) (rbac.Role, error) {
	var role rbac.Role
	var typ string
	dest := append([]any{&role.ID, &typ, &role.Name, &role.Description, &role.IsSystem, &role.TenantID,
		&role.CreatedAt, &role.UpdatedAt, &role.ArchivedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return rbac.Role{}, err
	}
	role.Type = rbac.RoleType(typ)
	return role, nil
}

func notFound(id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("role %s: %w", id, httpx.ErrNotFound)
	}
	return err
}

// ListRoles returns non-archived roles of one type, newest first, with their
// permissions and assigned user count. tenantID filters client roles only.
func (r *Repository) ListRoles(ctx context.Context, typ rbac.RoleType, tenantID string) ([]Summary, error) {
	if typ != rbac.RoleTypeClient {
		tenantID = ""
	}
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+`,
			(SELECT count(*) FROM user_roles ur WHERE ur.role_id = r.id)
		FROM roles r
		WHERE r.type = $1 AND r.archived_at IS NULL
		  AND ($2 = '' OR r.tenant_id = NULLIF($2, '')::uuid)
		ORDER BY r.created_at DESC`, string(typ), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Summary
	var ids []string
	for rows.Next() {
		var count int
		role, err := scanRole(rows, &count)
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{Role: role, UserCount: count})
		ids = append(ids, role.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}
	perms, err := r.permissionsByRole(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Permissions = perms[out[i].ID]
	}
	return out, nil
}

// GetRole loads one role with its permissions.
func (r *Repository) GetRole(ctx context.Context, id string) (rbac.Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.id = $1`, id))
	if err != nil {
		return rbac.Role{}, notFound(id, err)
	}
	perms, err := r.Permissions(ctx, id)
	if err != nil {
		return rbac.Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

// CountUsers returns the number of assignments of a role.
func (r *Repository) CountUsers(ctx context.Context, roleID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM user_roles WHERE role_id = $1`, roleID).Scan(&n)
	return n, err
}

// Permissions returns a role's permissions in insertion order.
func (r *Repository) Permissions(ctx context.Context, roleID string) ([]rbac.Permission, error) {
	perms, err := r.permissionsByRole(ctx, []string{roleID})
	if err != nil {
		return nil, err
	}
	return perms[roleID], nil
}

func (r *Repository) permissionsByRole(ctx context.Context, roleIDs []string) (map[string][]rbac.Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, role_id::text, module, action, decision, scope
		FROM role_permissions
		WHERE role_id = ANY($1::uuid[])
		ORDER BY created_at, id`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]rbac.Permission, len(roleIDs))
	for rows.Next() {
		var p rbac.Permission
		var decision, scope string
		if err := rows.Scan(&p.ID, &p.RoleID, &p.Module, &p.Action, &decision, &scope); err != nil {
			return nil, err
		}
		p.Decision, p.Scope = rbac.Decision(decision), rbac.Scope(scope)
		out[p.RoleID] = append(out[p.RoleID], p)
	}
	return out, rows.Err()
}

// Members lists the users assigned to a role.
func (r *Repository) Members(ctx context.Context, roleID string) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT ur.id::text, u.id::text, u.email, COALESCE(u.nom, ''), COALESCE(u.prenom, ''),
			COALESCE(ur.client_id::text, ''), COALESCE(ur.site_scope::text[], '{}'), ur.created_at
		FROM user_roles ur
		JOIN users u ON u.id = ur.user_id
		WHERE ur.role_id = $1
		ORDER BY ur.created_at, ur.id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.AssignmentID, &m.UserID, &m.Email, &m.Nom, &m.Prenom, &m.ClientID, &m.SiteScope, &m.AssignedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UserIDsByRole lists the ids of users holding a role.
func (r *Repository) UserIDsByRole(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT user_id::text FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) InsertRole(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	out, err := scanRole(t.tx.QueryRow(ctx, `INSERT INTO roles AS r (id, type, name, description, is_system, tenant_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, '')::uuid)
		RETURNING `+roleColumns,
		role.ID, string(role.Type), role.Name, role.Description, role.IsSystem, role.TenantID))
	if db.IsUniqueViolation(err) {
		return rbac.Role{}, fmt.Errorf("role %s: %w", role.Name, httpx.ErrDuplicate)
	}
	return out, err
}

func (t *txRepo) UpdateRole(ctx context.Context, id, name, description string) (rbac.Role, error) {
	out, err := scanRole(t.tx.QueryRow(ctx, `UPDATE roles AS r
		SET name = $2, description = NULLIF($3, ''), updated_at = now()
		WHERE r.id = $1
		RETURNING `+roleColumns, id, name, description))
	if db.IsUniqueViolation(err) {
		return rbac.Role{}, fmt.Errorf("role %s: %w", name, httpx.ErrDuplicate)
	}
	return out, notFound(id, err)
}

func (t *txRepo) SetArchived(ctx context.Context, id string, archived bool) (rbac.Role, error) {
	out, err := scanRole(t.tx.QueryRow(ctx, `UPDATE roles AS r
		SET archived_at = CASE WHEN $2 THEN now() ELSE NULL END, updated_at = now()
		WHERE r.id = $1
		RETURNING `+roleColumns, id, archived))
	return out, notFound(id, err)
}

func (t *txRepo) DeleteRole(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("role %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func (t *txRepo) ReplacePermissions(ctx context.Context, roleID string, perms []rbac.Permission) ([]rbac.Permission, error) {
	if _, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return nil, err
	}
	out := make([]rbac.Permission, 0, len(perms))
	for _, p := range perms {
		p.RoleID = roleID
		err := t.tx.QueryRow(ctx, `INSERT INTO role_permissions (role_id, module, action, decision, scope)
			VALUES ($1, $2, $3, $4, $5) RETURNING id::text`,
			roleID, p.Module, p.Action, string(p.Decision), string(p.Scope)).Scan(&p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *txRepo) AssignUsers(ctx context.Context, roleID string, userIDs []string, clientID string, siteScope []string) (int64, error) {
	if siteScope == nil {
		siteScope = []string{}
	}
	tag, err := t.tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id, client_id, site_scope)
		SELECT u, $2, NULLIF($3, '')::uuid, $4::uuid[] FROM unnest($1::uuid[]) AS u
		ON CONFLICT (user_id, role_id) DO NOTHING`, userIDs, roleID, clientID, siteScope)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) RemoveUsers(ctx context.Context, roleID string, userIDs []string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1 AND user_id = ANY($2::uuid[])`, roleID, userIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
