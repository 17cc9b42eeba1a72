package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/conformapro/conformapro/internal/optimistic"
	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/rbac"
	"github.com/conformapro/conformapro/internal/shared"
)

const defaultAuditLimit = 50

// AccessInvalidator drops cached access contexts after role changes.
type AccessInvalidator interface {
	Invalidate(ctx context.Context, userID string)
	InvalidateAll(ctx context.Context)
}

// WarmupEnqueuer schedules re-resolution of a role's members.
type WarmupEnqueuer interface {
	EnqueueAccessWarmup(ctx context.Context, roleID string) error
}

// AuditStore records and lists role audit entries.
type AuditStore interface {
	shared.AuditRecorder
	List(ctx context.Context, entityID string, limit int) ([]shared.AuditLog, error)
}

// ServiceConfig groups the optional collaborators of Service.
type ServiceConfig struct {
	Access AccessInvalidator
	Warmup WarmupEnqueuer
	Audit  AuditStore
	Logger *slog.Logger
}

// Service handles role administration.
type Service struct {
	repo   RepositoryPort
	access AccessInvalidator
	warmup WarmupEnqueuer
	audit  AuditStore
	logger *slog.Logger
	lists  *optimistic.Cache[Summary]
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		access: cfg.Access,
		warmup: cfg.Warmup,
		audit:  cfg.Audit,
		logger: logger,
		lists:  optimistic.New[Summary](),
	}
}

func listKey(typ rbac.RoleType, tenantID string) string {
	if typ != rbac.RoleTypeClient {
		return string(typ)
	}
	return string(typ) + ":" + tenantID
}

// listKeys returns every cached list a role can appear in.
func listKeys(role rbac.Role) []string {
	if role.Type != rbac.RoleTypeClient || role.TenantID == "" {
		return []string{listKey(role.Type, "")}
	}
	return []string{listKey(role.Type, ""), listKey(role.Type, role.TenantID)}
}

// patchLists applies fn to each cached list holding role and returns the snapshots.
func (s *Service) patchLists(role rbac.Role, fn func(key string) optimistic.Snapshot[Summary]) []optimistic.Snapshot[Summary] {
	var snaps []optimistic.Snapshot[Summary]
	for _, key := range listKeys(role) {
		if _, ok := s.lists.Get(key); !ok {
			continue
		}
		snaps = append(snaps, fn(key))
	}
	return snaps
}

// settle rolls the lists back when err is set, otherwise drops them so the next
// read reflects the database.
func (s *Service) settle(role rbac.Role, snaps []optimistic.Snapshot[Summary], err error) {
	if err != nil {
		for i := len(snaps) - 1; i >= 0; i-- {
			s.lists.Rollback(snaps[i])
		}
		return
	}
	for _, key := range listKeys(role) {
		s.lists.Delete(key)
	}
}

// ListByType returns non-archived roles of typ. tenantID only filters client roles.
func (s *Service) ListByType(ctx context.Context, typ rbac.RoleType, tenantID string) ([]Summary, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown role type %q: %w", typ, httpx.ErrValidation)
	}
	if typ != rbac.RoleTypeClient {
		tenantID = ""
	}
	key := listKey(typ, tenantID)
	if cached, ok := s.lists.Get(key); ok {
		return cached, nil
	}
	out, err := s.repo.ListRoles(ctx, typ, tenantID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Summary{}
	}
	s.lists.Set(key, out)
	return out, nil
}

// Get returns a role with its permissions and user count.
func (s *Service) Get(ctx context.Context, id string) (Summary, error) {
	if err := validateID(id); err != nil {
		return Summary{}, err
	}
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	count, err := s.repo.CountUsers(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Role: role, UserCount: count}, nil
}

// Create inserts a custom role.
func (s *Service) Create(ctx context.Context, actor string, in CreateInput) (rbac.Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	if !in.Type.Valid() || in.Name == "" {
		return rbac.Role{}, fmt.Errorf("type and name are required: %w", httpx.ErrValidation)
	}
	if in.Type == rbac.RoleTypeTeam {
		in.TenantID = ""
	}
	role := rbac.Role{
		ID:          uuid.NewString(),
		Type:        in.Type,
		Name:        in.Name,
		Description: in.Description,
		TenantID:    in.TenantID,
		Permissions: []rbac.Permission{},
	}
	snaps := s.patchLists(role, func(key string) optimistic.Snapshot[Summary] {
		return s.lists.Apply(key, func(old []Summary) []Summary {
			return append([]Summary{{Role: role}}, old...)
		})
	})
	var created rbac.Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertRole(ctx, role)
		return err
	})
	s.settle(role, snaps, err)
	if err != nil {
		return rbac.Role{}, err
	}
	s.record(ctx, actor, "create_role", created.ID, created.TenantID, map[string]any{
		"type": created.Type, "name": created.Name, "description": created.Description,
	})
	return created, nil
}

// Update renames or redescribes a role. The type cannot change.
func (s *Service) Update(ctx context.Context, actor, id string, in UpdateInput) (rbac.Role, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return rbac.Role{}, err
	}
	if in.Type != nil && *in.Type != current.Type {
		return rbac.Role{}, fmt.Errorf("role type is immutable: %w", httpx.ErrValidation)
	}
	name, description := current.Name, current.Description
	changes := map[string]any{}
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
		if name == "" {
			return rbac.Role{}, fmt.Errorf("name cannot be empty: %w", httpx.ErrValidation)
		}
		changes["name"] = name
	}
	if in.Description != nil {
		description = *in.Description
		changes["description"] = description
	}

	snaps := s.patchLists(current, func(key string) optimistic.Snapshot[Summary] {
		return s.lists.UpdateItem(key, id, func(item Summary) Summary {
			item.Name, item.Description = name, description
			return item
		})
	})
	var updated rbac.Role
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		updated, err = tx.UpdateRole(ctx, id, name, description)
		return err
	})
	s.settle(current, snaps, err)
	if err != nil {
		return rbac.Role{}, err
	}
	if name != current.Name {
		s.invalidateAll(ctx, id)
	}
	s.record(ctx, actor, "update_role", id, updated.TenantID, changes)
	return updated, nil
}

// Archive hides a role from listings and from access resolution.
func (s *Service) Archive(ctx context.Context, actor, id string) (rbac.Role, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return rbac.Role{}, err
	}
	if current.IsSystem {
		return rbac.Role{}, fmt.Errorf("cannot archive system role: %w", httpx.ErrForbidden)
	}
	return s.setArchived(ctx, actor, current, true)
}

// Restore brings an archived role back.
func (s *Service) Restore(ctx context.Context, actor, id string) (rbac.Role, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return rbac.Role{}, err
	}
	return s.setArchived(ctx, actor, current, false)
}

func (s *Service) setArchived(ctx context.Context, actor string, current rbac.Role, archived bool) (rbac.Role, error) {
	var snaps []optimistic.Snapshot[Summary]
	if archived {
		snaps = s.patchLists(current, func(key string) optimistic.Snapshot[Summary] {
			return s.lists.RemoveItem(key, current.ID)
		})
	}
	var out rbac.Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.SetArchived(ctx, current.ID, archived)
		return err
	})
	s.settle(current, snaps, err)
	if err != nil {
		return rbac.Role{}, err
	}
	s.invalidateAll(ctx, current.ID)
	action, changes := "archive_role", map[string]any{"archived_at": out.ArchivedAt}
	if !archived {
		action, changes = "restore_role", map[string]any{"archived_at": nil}
	}
	s.record(ctx, actor, action, current.ID, current.TenantID, changes)
	return out, nil
}

// Clone copies a role and its permissions under a new name.
func (s *Service) Clone(ctx context.Context, actor, id, newName string) (rbac.Role, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return rbac.Role{}, fmt.Errorf("name is required: %w", httpx.ErrValidation)
	}
	original, err := s.load(ctx, id)
	if err != nil {
		return rbac.Role{}, err
	}
	clone := rbac.Role{
		ID:          uuid.NewString(),
		Type:        original.Type,
		Name:        newName,
		Description: "Cloned from " + original.Name,
		TenantID:    original.TenantID,
		IsSystem:    false,
	}
	perms := make([]rbac.Permission, 0, len(original.Permissions))
	for _, p := range original.Permissions {
		perms = append(perms, rbac.Permission{Module: p.Module, Action: p.Action, Decision: p.Decision, Scope: p.Scope})
	}
	snaps := s.patchLists(clone, func(key string) optimistic.Snapshot[Summary] {
		return s.lists.Apply(key, func(old []Summary) []Summary {
			item := clone
			item.Permissions = perms
			return append([]Summary{{Role: item}}, old...)
		})
	})
	var created rbac.Role
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if created, err = tx.InsertRole(ctx, clone); err != nil {
			return err
		}
		created.Permissions, err = tx.ReplacePermissions(ctx, created.ID, perms)
		return err
	})
	s.settle(clone, snaps, err)
	if err != nil {
		return rbac.Role{}, err
	}
	s.record(ctx, actor, "clone_role", created.ID, created.TenantID, map[string]any{
		"cloned_from": id, "original_name": original.Name,
	})
	return created, nil
}

// Delete removes a custom role without assigned users.
func (s *Service) Delete(ctx context.Context, actor, id string) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if current.IsSystem {
		return fmt.Errorf("cannot delete system role: %w", httpx.ErrForbidden)
	}
	count, err := s.repo.CountUsers(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("cannot delete role with %d assigned users: %w", count, httpx.ErrConflict)
	}
	snaps := s.patchLists(current, func(key string) optimistic.Snapshot[Summary] {
		return s.lists.RemoveItem(key, id)
	})
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteRole(ctx, id)
	})
	s.settle(current, snaps, err)
	if err != nil {
		return err
	}
	s.record(ctx, actor, "delete_role", id, current.TenantID, map[string]any{})
	return nil
}

// Permissions returns a role's permissions.
func (s *Service) Permissions(ctx context.Context, roleID string) ([]rbac.Permission, error) {
	if _, err := s.load(ctx, roleID); err != nil {
		return nil, err
	}
	perms, err := s.repo.Permissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []rbac.Permission{}
	}
	return perms, nil
}

// SetPermissions replaces every permission of a role in one transaction.
// A missing scope defaults to tenant.
func (s *Service) SetPermissions(ctx context.Context, actor, roleID string, in []PermissionInput) ([]rbac.Permission, error) {
	perms, err := normalizePermissions(in)
	if err != nil {
		return nil, err
	}
	return s.replacePermissions(ctx, actor, roleID, perms, "update_permissions", map[string]any{"permissions": perms})
}

// ApplyTemplate replaces a role's permissions with a predefined template.
func (s *Service) ApplyTemplate(ctx context.Context, actor, roleID string, templateIDs ...string) ([]rbac.Permission, error) {
	if len(templateIDs) == 0 {
		return nil, fmt.Errorf("template id is required: %w", httpx.ErrValidation)
	}
	for _, id := range templateIDs {
		if _, ok := rbac.TemplateByID(id); !ok {
			return nil, fmt.Errorf("template %s: %w", id, httpx.ErrNotFound)
		}
	}
	if len(templateIDs) == 1 {
		perms := rbac.ApplyTemplate(templateIDs[0], nil)
		return s.replacePermissions(ctx, actor, roleID, perms, "apply_template", map[string]any{"template_id": templateIDs[0]})
	}
	perms := rbac.MergeTemplates(templateIDs...)
	return s.replacePermissions(ctx, actor, roleID, perms, "apply_template", map[string]any{"template_ids": templateIDs})
}

func (s *Service) replacePermissions(ctx context.Context, actor, roleID string, perms []rbac.Permission, action string, changes map[string]any) ([]rbac.Permission, error) {
	current, err := s.load(ctx, roleID)
	if err != nil {
		return nil, err
	}
	snaps := s.patchLists(current, func(key string) optimistic.Snapshot[Summary] {
		return s.lists.UpdateItem(key, roleID, func(item Summary) Summary {
			item.Permissions = perms
			return item
		})
	})
	var stored []rbac.Permission
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		stored, err = tx.ReplacePermissions(ctx, roleID, perms)
		return err
	})
	s.settle(current, snaps, err)
	if err != nil {
		return nil, err
	}
	s.invalidateAll(ctx, roleID)
	s.record(ctx, actor, action, roleID, current.TenantID, changes)
	return stored, nil
}

func normalizePermissions(in []PermissionInput) ([]rbac.Permission, error) {
	out := make([]rbac.Permission, 0, len(in))
	for i, p := range in {
		module := strings.ToLower(strings.TrimSpace(p.Module))
		action := strings.ToLower(strings.TrimSpace(p.Action))
		if !shared.IsKnownModule(module) {
			return nil, fmt.Errorf("permission %d: unknown module %q: %w", i, p.Module, httpx.ErrValidation)
		}
		if !shared.IsKnownAction(action) {
			return nil, fmt.Errorf("permission %d: unknown action %q: %w", i, p.Action, httpx.ErrValidation)
		}
		if !p.Decision.Valid() {
			return nil, fmt.Errorf("permission %d: unknown decision %q: %w", i, p.Decision, httpx.ErrValidation)
		}
		scope := p.Scope
		if scope == "" {
			scope = rbac.ScopeTenant
		}
		if !scope.Valid() {
			return nil, fmt.Errorf("permission %d: unknown scope %q: %w", i, p.Scope, httpx.ErrValidation)
		}
		out = append(out, rbac.Permission{Module: module, Action: action, Decision: p.Decision, Scope: scope})
	}
	return out, nil
}

// Members lists the users assigned to a role.
func (s *Service) Members(ctx context.Context, roleID string) ([]Member, error) {
	if _, err := s.load(ctx, roleID); err != nil {
		return nil, err
	}
	out, err := s.repo.Members(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Member{}
	}
	return out, nil
}

// AssignUsers attaches users to a role. Existing assignments are left as is.
func (s *Service) AssignUsers(ctx context.Context, actor, roleID string, in AssignInput) (int64, error) {
	if len(in.UserIDs) == 0 {
		return 0, fmt.Errorf("user_ids is required: %w", httpx.ErrValidation)
	}
	for _, id := range in.UserIDs {
		if err := validateID(id); err != nil {
			return 0, err
		}
	}
	current, err := s.load(ctx, roleID)
	if err != nil {
		return 0, err
	}
	if current.ArchivedAt != nil {
		return 0, fmt.Errorf("role %s is archived: %w", current.Name, httpx.ErrConflict)
	}
	if current.Type == rbac.RoleTypeClient && in.ClientID == "" {
		in.ClientID = current.TenantID
	}
	if current.Type == rbac.RoleTypeClient && in.ClientID == "" {
		return 0, fmt.Errorf("client role requires client_id: %w", httpx.ErrValidation)
	}
	if current.Type == rbac.RoleTypeTeam {
		in.ClientID, in.SiteScope = "", nil
	}

	var added int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		added, err = tx.AssignUsers(ctx, roleID, in.UserIDs, in.ClientID, in.SiteScope)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.patchCount(current, added)
	s.invalidateUsers(ctx, in.UserIDs)
	s.record(ctx, actor, "assign_users", roleID, in.ClientID, map[string]any{
		"user_ids": in.UserIDs, "client_id": in.ClientID, "site_scope": in.SiteScope,
	})
	return added, nil
}

// RemoveUsers detaches users from a role.
func (s *Service) RemoveUsers(ctx context.Context, actor, roleID string, userIDs []string) (int64, error) {
	if len(userIDs) == 0 {
		return 0, fmt.Errorf("user_ids is required: %w", httpx.ErrValidation)
	}
	current, err := s.load(ctx, roleID)
	if err != nil {
		return 0, err
	}
	var removed int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		removed, err = tx.RemoveUsers(ctx, roleID, userIDs)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.patchCount(current, -removed)
	s.invalidateUsers(ctx, userIDs)
	s.record(ctx, actor, "remove_users", roleID, current.TenantID, map[string]any{"user_ids": userIDs})
	return removed, nil
}

func (s *Service) patchCount(role rbac.Role, delta int64) {
	if delta == 0 {
		return
	}
	s.patchLists(role, func(key string) optimistic.Snapshot[Summary] {
		return s.lists.UpdateItem(key, role.ID, func(item Summary) Summary {
			item.UserCount += int(delta)
			if item.UserCount < 0 {
				item.UserCount = 0
			}
			return item
		})
	})
}

// AuditLogs returns the latest audit entries, optionally for one entity.
func (s *Service) AuditLogs(ctx context.Context, entityID string, limit int) ([]shared.AuditLog, error) {
	if s.audit == nil {
		return []shared.AuditLog{}, nil
	}
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	logs, err := s.audit.List(ctx, entityID, limit)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []shared.AuditLog{}
	}
	return logs, nil
}

func (s *Service) load(ctx context.Context, id string) (rbac.Role, error) {
	if err := validateID(id); err != nil {
		return rbac.Role{}, err
	}
	return s.repo.GetRole(ctx, id)
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid id %q: %w", id, httpx.ErrValidation)
	}
	return nil
}

func (s *Service) invalidateAll(ctx context.Context, roleID string) {
	if s.access != nil {
		s.access.InvalidateAll(ctx)
	}
	if s.warmup == nil {
		return
	}
	if err := s.warmup.EnqueueAccessWarmup(ctx, roleID); err != nil {
		s.logger.Warn("enqueue access warmup", slog.String("role_id", roleID), slog.Any("error", err))
	}
}

func (s *Service) invalidateUsers(ctx context.Context, userIDs []string) {
	if s.access == nil {
		return
	}
	for _, id := range userIDs {
		s.access.Invalidate(ctx, id)
	}
}

func (s *Service) record(ctx context.Context, actor, action, roleID, tenantID string, changes map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:    actor,
		Action:     action,
		EntityType: "role",
		EntityID:   roleID,
		Changes:    changes,
		TenantID:   tenantID,
	})
	if err != nil {
		s.logger.Warn("audit role change", slog.String("action", action), slog.Any("error", err))
	}
}
