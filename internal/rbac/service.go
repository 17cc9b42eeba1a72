package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/conformapro/conformapro/internal/platform/db"
)

// Service resolves and caches users' access contexts.
type Service struct {
	repo     Repository
	cache    *Cache
	retry    db.RetryPolicy
	logger   *slog.Logger
	observer ResolutionObserver
	group    singleflight.Group
}

// ResolutionObserver is told the status of every resolution.
type ResolutionObserver interface {
	ObserveAccessResolution(status string)
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Cache    *Cache
	Retry    db.RetryPolicy
	Logger   *slog.Logger
	Observer ResolutionObserver
}

// NewService constructs a Service backed by the provided repository.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cfg.Cache, retry: cfg.Retry, logger: logger, observer: cfg.Observer}
}

// Resolve loads the user's assignments and flattens them. Fetch failures are
// logged and reported as a FetchFailed state rather than an error.
func (s *Service) Resolve(ctx context.Context, userID string) AccessState {
	state := s.resolve(ctx, userID)
	if s.observer != nil {
		s.observer.ObserveAccessResolution(state.Status.String())
	}
	return state
}

func (s *Service) resolve(ctx context.Context, userID string) AccessState {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return FetchFailed("", errors.New("rbac: user id required"))
	}

	stamp, err := s.cache.Stamp(ctx, userID)
	cacheable := err == nil
	if err != nil {
		s.logger.Warn("rbac cache stamp", slog.String("user_id", userID), slog.Any("error", err))
	} else if ac, ok, err := s.cache.Get(ctx, stamp, userID); err != nil {
		s.logger.Warn("rbac cache get", slog.String("user_id", userID), slog.Any("error", err))
	} else if ok {
		return Loaded(ac)
	}

	key := fmt.Sprintf("%s:%d:%d", userID, stamp.Global, stamp.User)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.load(context.WithoutCancel(ctx), userID, stamp, cacheable)
	})
	select {
	case <-ctx.Done():
		return FetchFailed(userID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			s.logger.Error("rbac resolve access", slog.String("user_id", userID), slog.Any("error", res.Err))
			return FetchFailed(userID, res.Err)
		}
		return Loaded(res.Val.(AccessContext))
	}
}

// load fetches and flattens the user's access. The result is cached under the
// stamp read before the fetch, so an invalidation racing the fetch wins.
func (s *Service) load(ctx context.Context, userID string, stamp Stamp, cacheable bool) (AccessContext, error) {
	var (
		assignments []Assignment
		tenantID    string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.retry.Do(gctx, func(ctx context.Context) error {
			var err error
			assignments, err = s.repo.ListAssignments(ctx, userID)
			return err
		})
	})
	g.Go(func() error {
		return s.retry.Do(gctx, func(ctx context.Context) error {
			var err error
			tenantID, err = s.repo.UserTenant(ctx, userID)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return AccessContext{}, err
	}

	ac := Flatten(userID, assignments)
	ac.TenantID = tenantID
	if !cacheable {
		return ac, nil
	}
	if err := s.cache.Set(ctx, stamp, ac); err != nil {
		s.logger.Warn("rbac cache set", slog.String("user_id", userID), slog.Any("error", err))
	}
	return ac, nil
}

// Invalidate drops one user's cached context, e.g. after their assignments change.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("rbac cache delete", slog.String("user_id", userID), slog.Any("error", err))
	}
}

// InvalidateAll drops every cached context, e.g. after a role's permissions change.
func (s *Service) InvalidateAll(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("rbac cache bump", slog.Any("error", err))
	}
}
