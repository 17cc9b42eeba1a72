package sitemodules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/rbac"
	"github.com/conformapro/conformapro/internal/shared"
)

// SiteSelector returns the site a user last selected, or "" when none.
type SiteSelector interface {
	SelectedSite(ctx context.Context, userID string) (string, error)
}

// Service computes module visibility and administers site modules.
type Service struct {
	repo   RepositoryPort
	sites  SiteSelector
	logger *slog.Logger
}

// NewService builds the service. sites may be nil.
func NewService(repo RepositoryPort, sites SiteSelector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, sites: sites, logger: logger}
}

// ModulesForUser lists the modules visible to the caller. Super admins see the
// whole active catalogue; team users see modules they hold a view allow on,
// without site scoping; client users see the modules enabled for the site that
// they may view there.
func (s *Service) ModulesForUser(ctx context.Context, state rbac.AccessState, siteID string) ([]Module, error) {
	if state.Status != rbac.StatusLoaded {
		return []Module{}, nil
	}
	ac := state.Context
	switch {
	case state.IsSuperAdmin():
		mods, err := s.repo.ListActiveModules(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active modules: %w", err)
		}
		return nonNil(mods), nil
	case state.IsTeamUser():
		codes := ac.ViewableModules()
		if len(codes) == 0 {
			return []Module{}, nil
		}
		mods, err := s.repo.ListActiveModules(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active modules: %w", err)
		}
		return VisibleModules(mods, codes), nil
	}

	siteID = strings.TrimSpace(siteID)
	if siteID == "" && s.sites != nil {
		selected, err := s.sites.SelectedSite(ctx, ac.UserID)
		if err != nil {
			s.logger.Warn("selected site lookup", slog.String("user_id", ac.UserID), slog.Any("error", err))
		}
		siteID = selected
	}
	if siteID == "" {
		return []Module{}, nil
	}
	if _, err := s.authorizeSite(ctx, state, siteID); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListSiteModules(ctx, siteID, true)
	if err != nil {
		return nil, fmt.Errorf("list site modules: %w", err)
	}
	perms, err := s.repo.UserSitePermissions(ctx, ac.UserID, siteID)
	if err != nil {
		return nil, fmt.Errorf("user site permissions: %w", err)
	}
	enabled := make([]Module, 0, len(rows))
	for _, r := range rows {
		enabled = append(enabled, r.Module)
	}
	return VisibleModules(enabled, perms.ViewCodes()), nil
}

// authorizeSite resolves the site's client. Staff reach every site; anyone
// else is confined to the sites of their own tenant.
func (s *Service) authorizeSite(ctx context.Context, caller rbac.AccessState, siteID string) (string, error) {
	clientID, err := s.repo.SiteClient(ctx, siteID)
	if err != nil {
		return "", err
	}
	if caller.IsTeamUser() {
		return clientID, nil
	}
	tenant := caller.Context.TenantID
	if caller.Status != rbac.StatusLoaded || tenant == "" || clientID != tenant {
		return "", fmt.Errorf("site %s outside tenant: %w", siteID, httpx.ErrForbidden)
	}
	return clientID, nil
}

// authorizeUserSite additionally requires the target user to belong to the
// site's client.
func (s *Service) authorizeUserSite(ctx context.Context, caller rbac.AccessState, userID, siteID string) (string, error) {
	clientID, err := s.authorizeSite(ctx, caller, siteID)
	if err != nil {
		return "", err
	}
	userClient, err := s.repo.UserClient(ctx, userID)
	if err != nil {
		return "", err
	}
	if userClient != clientID {
		return "", fmt.Errorf("user %s outside site %s client: %w", userID, siteID, httpx.ErrForbidden)
	}
	return clientID, nil
}

// Catalogue lists the active module catalogue.
func (s *Service) Catalogue(ctx context.Context) ([]Module, error) {
	mods, err := s.repo.ListActiveModules(ctx)
	return nonNil(mods), err
}

// SiteModules lists a site's module rows.
func (s *Service) SiteModules(ctx context.Context, caller rbac.AccessState, siteID string, enabledOnly bool) ([]SiteModule, error) {
	if _, err := s.authorizeSite(ctx, caller, siteID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListSiteModules(ctx, siteID, enabledOnly)
	if rows == nil {
		rows = []SiteModule{}
	}
	return rows, err
}

// Enable turns a module on for a site.
func (s *Service) Enable(ctx context.Context, caller rbac.AccessState, siteID, moduleID string) (SiteModule, error) {
	if _, err := s.authorizeSite(ctx, caller, siteID); err != nil {
		return SiteModule{}, err
	}
	sm, err := s.repo.EnableModule(ctx, siteID, moduleID)
	if err != nil {
		return SiteModule{}, err
	}
	s.logger.Info("site module enabled", slog.String("site_id", siteID), slog.String("module", sm.Module.Code), slog.String("actor", shared.ActorID(ctx)))
	return sm, nil
}

// Disable turns a module off for a site.
func (s *Service) Disable(ctx context.Context, caller rbac.AccessState, siteID, moduleID string) (SiteModule, error) {
	if _, err := s.authorizeSite(ctx, caller, siteID); err != nil {
		return SiteModule{}, err
	}
	sm, err := s.repo.DisableModule(ctx, siteID, moduleID)
	if err != nil {
		return SiteModule{}, err
	}
	s.logger.Info("site module disabled", slog.String("site_id", siteID), slog.String("module", sm.Module.Code), slog.String("actor", shared.ActorID(ctx)))
	return sm, nil
}

// SetModules enables exactly moduleIDs for a site.
func (s *Service) SetModules(ctx context.Context, caller rbac.AccessState, siteID string, moduleIDs []string) error {
	if _, err := s.authorizeSite(ctx, caller, siteID); err != nil {
		return err
	}
	ids := make([]string, 0, len(moduleIDs))
	for _, id := range moduleIDs {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("module id %q: %w", id, httpx.ErrValidation)
		}
		ids = append(ids, id)
	}
	return s.repo.SetSiteModules(ctx, siteID, ids)
}

// UserPermissions returns the grants a user holds at a site.
func (s *Service) UserPermissions(ctx context.Context, caller rbac.AccessState, userID, siteID string) (SitePermissions, error) {
	if _, err := s.authorizeUserSite(ctx, caller, userID, siteID); err != nil {
		return nil, err
	}
	perms, err := s.repo.UserSitePermissions(ctx, userID, siteID)
	if perms == nil {
		perms = SitePermissions{}
	}
	return perms, err
}

// SetUserPermissions replaces a user's grants at a site. Inherit entries are
// dropped since they carry no decision of their own.
func (s *Service) SetUserPermissions(ctx context.Context, caller rbac.AccessState, userID, siteID string, perms []UserPermission) error {
	clientID, err := s.authorizeUserSite(ctx, caller, userID, siteID)
	if err != nil {
		return err
	}
	keep := make([]UserPermission, 0, len(perms))
	for _, p := range perms {
		if !p.Decision.Valid() || !shared.IsKnownAction(strings.ToLower(p.Action)) || !shared.IsKnownModule(strings.ToLower(p.Module)) {
			return fmt.Errorf("permission %s:%s: %w", p.Module, p.Action, httpx.ErrValidation)
		}
		if p.Decision == rbac.DecisionInherit {
			continue
		}
		if p.Scope == "" {
			p.Scope = rbac.ScopeSite
		}
		if !p.Scope.Valid() {
			return fmt.Errorf("scope %q: %w", p.Scope, httpx.ErrValidation)
		}
		p.ID = uuid.NewString()
		p.Module = strings.ToLower(p.Module)
		p.Action = strings.ToLower(p.Action)
		keep = append(keep, p)
	}
	return s.repo.ReplaceUserSitePermissions(ctx, userID, clientID, siteID, keep)
}

func nonNil(mods []Module) []Module {
	if mods == nil {
		return []Module{}
	}
	return mods
}
