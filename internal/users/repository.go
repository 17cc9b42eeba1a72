package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conformapro/conformapro/internal/platform/db"
	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/rbac"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListUsers(ctx context.Context, tenantID string) ([]User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	RoleByID(ctx context.Context, roleID string) (rbac.Role, error)
}

// TxRepository exposes the writes performed inside one transaction.
type TxRepository interface {
	InsertUser(ctx context.Context, u NewUser) (User, error)
	InsertAssignment(ctx context.Context, userID, roleID, clientID string, siteScope []string) error
	DeleteAssignments(ctx context.Context, userID string) error
	DeleteUser(ctx context.Context, userID string) error
	TeamRoleHolders(ctx context.Context) (map[string][]string, error)
	UpdateUser(ctx context.Context, userID string, in UpdateInput) (User, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps fn in a serializable transaction, rerun on serialization
// failures, so checks on role holders stay valid until commit.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const selectUsers = `SELECT u.id::text, u.email, COALESCE(u.nom, ''), COALESCE(u.prenom, ''),
		COALESCE(u.telephone, ''), COALESCE(u.tenant_id::text, ''), u.is_active, u.created_at, u.updated_at,
		COALESCE(array_agg(r.name ORDER BY ur.created_at) FILTER (WHERE r.id IS NOT NULL), '{}')
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.id
	LEFT JOIN roles r ON r.id = ur.role_id`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Nom, &u.Prenom, &u.Telephone, &u.TenantID, &u.IsActive,
		&u.CreatedAt, &u.UpdatedAt, &u.Roles)
	return u, err
}

// ListUsers returns users with their role names. A non-empty tenantID keeps
// only that client's users.
func (r *Repository) ListUsers(ctx context.Context, tenantID string) ([]User, error) {
	rows, err := r.pool.Query(ctx, selectUsers+`
		WHERE $1 = '' OR u.tenant_id = NULLIF($1, '')::uuid
		GROUP BY u.id
		ORDER BY u.email`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUser loads one user with its role names.
func (r *Repository) GetUser(ctx context.Context, userID string) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, selectUsers+`
		WHERE u.id = $1
		GROUP BY u.id`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("user %s: %w", userID, httpx.ErrNotFound)
	}
	return u, err
}

// RoleByID loads a role header.
func (r *Repository) RoleByID(ctx context.Context, roleID string) (rbac.Role, error) {
	var role rbac.Role
	var typ string
	err := r.pool.QueryRow(ctx, `SELECT id::text, type, name, COALESCE(description, ''), is_system,
			COALESCE(tenant_id::text, ''), created_at, updated_at, archived_at
		FROM roles WHERE id = $1`, roleID).
		Scan(&role.ID, &typ, &role.Name, &role.Description, &role.IsSystem, &role.TenantID,
			&role.CreatedAt, &role.UpdatedAt, &role.ArchivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.Role{}, fmt.Errorf("role %s: %w", roleID, httpx.ErrNotFound)
	}
	role.Type = rbac.RoleType(typ)
	return role, err
}

// TeamRoleHolders maps each active team role name to the users holding it.
func (t *txRepo) TeamRoleHolders(ctx context.Context) (map[string][]string, error) {
	rows, err := t.tx.Query(ctx, `SELECT DISTINCT r.name, ur.user_id::text
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE r.type = 'team' AND r.archived_at IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]string{}
	for rows.Next() {
		var name, userID string
		if err := rows.Scan(&name, &userID); err != nil {
			return nil, err
		}
		out[name] = append(out[name], userID)
	}
	return out, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) InsertUser(ctx context.Context, u NewUser) (User, error) {
	out := User{Email: strings.ToLower(u.Email), Nom: u.Nom, Prenom: u.Prenom, Telephone: u.Telephone, TenantID: u.TenantID}
	err := t.tx.QueryRow(ctx, `INSERT INTO users (email, password_hash, nom, prenom, telephone, tenant_id, is_active)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, '')::uuid, TRUE)
		RETURNING id::text, is_active, created_at, updated_at`,
		out.Email, u.PasswordHash, u.Nom, u.Prenom, u.Telephone, u.TenantID).
		Scan(&out.ID, &out.IsActive, &out.CreatedAt, &out.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return User{}, fmt.Errorf("email %s: %w", out.Email, httpx.ErrDuplicate)
	}
	return out, err
}

func (t *txRepo) InsertAssignment(ctx context.Context, userID, roleID, clientID string, siteScope []string) error {
	if siteScope == nil {
		siteScope = []string{}
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id, client_id, site_scope)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4::uuid[])`, userID, roleID, clientID, siteScope)
	return err
}

func (t *txRepo) DeleteAssignments(ctx context.Context, userID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID)
	return err
}

func (t *txRepo) DeleteUser(ctx context.Context, userID string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, httpx.ErrNotFound)
	}
	return nil
}

func (t *txRepo) UpdateUser(ctx context.Context, userID string, in UpdateInput) (User, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE users SET
			nom = CASE WHEN $2::text IS NULL THEN nom ELSE NULLIF($2, '') END,
			prenom = CASE WHEN $3::text IS NULL THEN prenom ELSE NULLIF($3, '') END,
			telephone = CASE WHEN $4::text IS NULL THEN telephone ELSE NULLIF($4, '') END,
			is_active = COALESCE($5, is_active),
			updated_at = now()
		WHERE id = $1`, userID, in.Nom, in.Prenom, in.Telephone, in.IsActive)
	if err != nil {
		return User{}, err
	}
	if tag.RowsAffected() == 0 {
		return User{}, fmt.Errorf("user %s: %w", userID, httpx.ErrNotFound)
	}
	u, err := scanUser(t.tx.QueryRow(ctx, selectUsers+`
		WHERE u.id = $1
		GROUP BY u.id`, userID))
	return u, err
}
