package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/rbac"
	"github.com/conformapro/conformapro/internal/shared"
	"github.com/conformapro/conformapro/jobs"
)

// Mailer enqueues outgoing mail.
type Mailer interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) error
}

// AccessInvalidator drops a user's cached access context.
type AccessInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// ServiceConfig groups the optional collaborators of Service.
type ServiceConfig struct {
	Mailer     Mailer
	Access     AccessInvalidator
	Audit      shared.AuditRecorder
	Logger     *slog.Logger
	PublicURL  string
	BcryptCost int
}

// Service handles user provisioning.
type Service struct {
	repo       RepositoryPort
	mailer     Mailer
	access     AccessInvalidator
	audit      shared.AuditRecorder
	logger     *slog.Logger
	publicURL  string
	bcryptCost int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		repo:       repo,
		mailer:     cfg.Mailer,
		access:     cfg.Access,
		audit:      cfg.Audit,
		logger:     logger,
		publicURL:  strings.TrimRight(cfg.PublicURL, "/"),
		bcryptCost: cost,
	}
}

// ListUsers returns every user to staff and only the caller's tenant to
// client users.
func (s *Service) ListUsers(ctx context.Context, caller rbac.AccessState) ([]User, error) {
	if caller.IsTeamUser() {
		return s.repo.ListUsers(ctx, "")
	}
	tenant, err := callerTenant(caller)
	if err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx, tenant)
}

func callerTenant(caller rbac.AccessState) (string, error) {
	if caller.Status != rbac.StatusLoaded || caller.Context.TenantID == "" {
		return "", fmt.Errorf("caller has no tenant: %w", httpx.ErrForbidden)
	}
	return caller.Context.TenantID, nil
}

// authorizeTarget lets staff reach any user and client users reach their own
// tenant only.
func authorizeTarget(caller rbac.AccessState, target User) error {
	if caller.IsTeamUser() {
		return nil
	}
	tenant, err := callerTenant(caller)
	if err != nil {
		return err
	}
	if target.TenantID != tenant {
		return fmt.Errorf("user %s outside tenant: %w", target.ID, httpx.ErrForbidden)
	}
	return nil
}

// Get returns one user visible to the caller.
func (s *Service) Get(ctx context.Context, caller rbac.AccessState, userID string) (User, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if err := authorizeTarget(caller, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Update changes profile fields and activation. Staff edits require Super
// Admin; client administrators may edit users of their own tenant. The last
// Super Admin cannot be deactivated.
func (s *Service) Update(ctx context.Context, caller rbac.AccessState, userID string, in UpdateInput) (User, error) {
	if in.Empty() {
		return User{}, fmt.Errorf("nothing to update: %w", httpx.ErrValidation)
	}
	if caller.IsTeamUser() {
		if err := requireSuperAdmin(caller); err != nil {
			return User{}, err
		}
	}
	current, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if err := authorizeTarget(caller, current); err != nil {
		return User{}, err
	}

	var updated User
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.IsActive != nil && !*in.IsActive {
			holders, err := tx.TeamRoleHolders(ctx)
			if err != nil {
				return err
			}
			if isLastSuperAdmin(holders, userID) {
				return fmt.Errorf("cannot deactivate the last super admin: %w", httpx.ErrForbidden)
			}
		}
		u, err := tx.UpdateUser(ctx, userID, in)
		if err != nil {
			return err
		}
		updated = u
		return nil
	})
	if err != nil {
		return User{}, err
	}
	if s.access != nil {
		s.access.Invalidate(ctx, userID)
	}
	s.record(ctx, caller, "update_user", userID, updateChanges(in))
	return updated, nil
}

func updateChanges(in UpdateInput) map[string]any {
	changes := map[string]any{}
	if in.Nom != nil {
		changes["nom"] = *in.Nom
	}
	if in.Prenom != nil {
		changes["prenom"] = *in.Prenom
	}
	if in.Telephone != nil {
		changes["telephone"] = *in.Telephone
	}
	if in.IsActive != nil {
		changes["is_active"] = *in.IsActive
	}
	return changes
}

func requireSuperAdmin(caller rbac.AccessState) error {
	if !caller.IsSuperAdmin() {
		return fmt.Errorf("super admin role required: %w", httpx.ErrForbidden)
	}
	return nil
}

// Create provisions a user and its first role assignment.
func (s *Service) Create(ctx context.Context, caller rbac.AccessState, in CreateInput) (User, error) {
	if err := requireSuperAdmin(caller); err != nil {
		return User{}, err
	}
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" || in.Password == "" || in.RoleID == "" {
		return User{}, fmt.Errorf("email, password and role are required: %w", httpx.ErrValidation)
	}
	role, err := s.repo.RoleByID(ctx, in.RoleID)
	if err != nil {
		return User{}, err
	}
	if role.ArchivedAt != nil {
		return User{}, fmt.Errorf("role %s is archived: %w", role.Name, httpx.ErrValidation)
	}
	if role.Type == rbac.RoleTypeClient && in.ClientID == "" {
		return User{}, fmt.Errorf("client role requires client_id: %w", httpx.ErrValidation)
	}
	if role.Type == rbac.RoleTypeTeam {
		in.ClientID = ""
		in.SiteScope = nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	var created User
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		u, err := tx.InsertUser(ctx, NewUser{
			Email:        in.Email,
			PasswordHash: string(hash),
			Nom:          in.Nom,
			Prenom:       in.Prenom,
			Telephone:    in.Telephone,
			TenantID:     in.ClientID,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertAssignment(ctx, u.ID, role.ID, in.ClientID, in.SiteScope); err != nil {
			return err
		}
		u.Roles = []string{role.Name}
		created = u
		return nil
	})
	if err != nil {
		return User{}, err
	}

	s.record(ctx, caller, "create_user", created.ID, map[string]any{"email": created.Email, "role_id": role.ID})
	s.invite(ctx, created, role)
	return created, nil
}

func (s *Service) invite(ctx context.Context, u User, role rbac.Role) {
	if s.mailer == nil {
		return
	}
	name := strings.TrimSpace(u.Prenom + " " + u.Nom)
	if name == "" {
		name = u.Email
	}
	body := fmt.Sprintf("Bonjour %s,\n\nUn compte ConformaPro a été créé pour vous avec le rôle %s.\nConnectez-vous sur %s/login.\n",
		name, role.Name, s.publicURL)
	err := s.mailer.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      u.Email,
		Subject: "Invitation ConformaPro",
		Body:    body,
	})
	if err != nil {
		s.logger.Warn("enqueue invitation", slog.String("user_id", u.ID), slog.Any("error", err))
	}
}

// Delete removes a user and its role assignments.
func (s *Service) Delete(ctx context.Context, caller rbac.AccessState, userID string) error {
	if err := requireSuperAdmin(caller); err != nil {
		return err
	}
	if userID == "" {
		return fmt.Errorf("user id is required: %w", httpx.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		holders, err := tx.TeamRoleHolders(ctx)
		if err != nil {
			return err
		}
		if isLastSuperAdmin(holders, userID) {
			return fmt.Errorf("cannot delete the last super admin: %w", httpx.ErrForbidden)
		}
		if err := tx.DeleteAssignments(ctx, userID); err != nil {
			return err
		}
		return tx.DeleteUser(ctx, userID)
	})
	if err != nil {
		return err
	}
	if s.access != nil {
		s.access.Invalidate(ctx, userID)
	}
	s.record(ctx, caller, "delete_user", userID, nil)
	return nil
}

// isLastSuperAdmin reports whether userID is the only holder of a team role
// whose name slugifies to the Super Admin slug.
func isLastSuperAdmin(holders map[string][]string, userID string) bool {
	admins := map[string]struct{}{}
	superAdmin := rbac.Slugify(shared.RoleSuperAdmin)
	for name, ids := range holders {
		if rbac.Slugify(name) != superAdmin {
			continue
		}
		for _, id := range ids {
			admins[id] = struct{}{}
		}
	}
	_, ok := admins[userID]
	return ok && len(admins) <= 1
}

func (s *Service) record(ctx context.Context, caller rbac.AccessState, action, userID string, changes map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:    caller.Context.UserID,
		Action:     action,
		EntityType: "user",
		EntityID:   userID,
		Changes:    changes,
	})
	if err != nil {
		s.logger.Warn("audit user change", slog.String("action", action), slog.Any("error", err))
	}
}
