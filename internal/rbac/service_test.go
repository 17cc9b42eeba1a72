package rbac

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	mu          sync.Mutex
	assignments map[string][]Assignment
	tenants     map[string]string
	err         error
	calls       atomic.Int32
	gate        chan struct{}
}

func (s *stubRepo) ListAssignments(ctx context.Context, userID string) ([]Assignment, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.assignments[userID], nil
}

func (s *stubRepo) UserTenant(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenants[userID], nil
}

func (s *stubRepo) setAssignments(userID string, a []Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[userID] = a
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		assignments: map[string][]Assignment{
			"u1": {assign("Chef de Site", RoleTypeClient, allow("incidents", "view"))},
		},
		tenants: map[string]string{"u1": "client-1"},
	}
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestResolveLoadsContext(t *testing.T) {
	svc := NewService(newStubRepo(), ServiceConfig{})

	state := svc.Resolve(context.Background(), "u1")

	require.Equal(t, StatusLoaded, state.Status)
	assert.Equal(t, "client-1", state.Context.TenantID)
	assert.True(t, state.HasPermission("incidents", "view"))
	assert.True(t, state.HasRole("chef-site"))
}

func TestResolveFetchFailure(t *testing.T) {
	repo := newStubRepo()
	repo.err = errors.New("connection refused")
	svc := NewService(repo, ServiceConfig{})

	state := svc.Resolve(context.Background(), "u1")

	assert.Equal(t, StatusFetchFailed, state.Status)
	assert.ErrorContains(t, state.Err, "connection refused")
	assert.False(t, state.HasPermission("incidents", "view"))
	assert.Equal(t, "u1", state.Context.UserID)
}

func TestResolveRejectsBlankUser(t *testing.T) {
	svc := NewService(newStubRepo(), ServiceConfig{})
	assert.Equal(t, StatusFetchFailed, svc.Resolve(context.Background(), "  ").Status)
}

func TestResolveUsesCacheUntilInvalidated(t *testing.T) {
	repo := newStubRepo()
	cache, _ := newTestCache(t)
	svc := NewService(repo, ServiceConfig{Cache: cache})
	ctx := context.Background()

	require.Equal(t, StatusLoaded, svc.Resolve(ctx, "u1").Status)
	require.Equal(t, StatusLoaded, svc.Resolve(ctx, "u1").Status)
	assert.Equal(t, int32(1), repo.calls.Load())

	repo.setAssignments("u1", []Assignment{assign("Super Admin", RoleTypeTeam)})
	assert.False(t, svc.Resolve(ctx, "u1").IsSuperAdmin())

	svc.Invalidate(ctx, "u1")
	assert.True(t, svc.Resolve(ctx, "u1").IsSuperAdmin())
	assert.Equal(t, int32(2), repo.calls.Load())
}

func TestInvalidateAllBumpsVersion(t *testing.T) {
	repo := newStubRepo()
	repo.assignments["u2"] = []Assignment{assign("Auditeur", RoleTypeClient)}
	cache, mr := newTestCache(t)
	svc := NewService(repo, ServiceConfig{Cache: cache})
	ctx := context.Background()

	svc.Resolve(ctx, "u1")
	svc.Resolve(ctx, "u2")
	assert.Equal(t, int32(2), repo.calls.Load())

	svc.InvalidateAll(ctx)
	ver, err := mr.Get(cacheVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "1", ver)

	svc.Resolve(ctx, "u1")
	svc.Resolve(ctx, "u2")
	assert.Equal(t, int32(4), repo.calls.Load())
}

func TestResolveCollapsesConcurrentCalls(t *testing.T) {
	repo := newStubRepo()
	repo.gate = make(chan struct{})
	svc := NewService(repo, ServiceConfig{})

	var wg sync.WaitGroup
	results := make([]AccessState, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Resolve(context.Background(), "u1")
		}(i)
	}
	require.Eventually(t, func() bool { return repo.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(repo.gate)
	wg.Wait()

	assert.Equal(t, int32(1), repo.calls.Load())
	for _, s := range results {
		assert.Equal(t, StatusLoaded, s.Status)
	}
}

func TestInvalidationDuringLoadIsNotOverwritten(t *testing.T) {
	invalidations := map[string]func(*Service, context.Context){
		"all":  func(svc *Service, ctx context.Context) { svc.InvalidateAll(ctx) },
		"user": func(svc *Service, ctx context.Context) { svc.Invalidate(ctx, "u1") },
	}
	for name, invalidate := range invalidations {
		t.Run(name, func(t *testing.T) {
			repo := newStubRepo()
			repo.setAssignments("u1", []Assignment{assign("Chef de Site", RoleTypeClient, allow("incidents", "delete"))})
			repo.gate = make(chan struct{})
			cache, _ := newTestCache(t)
			svc := NewService(repo, ServiceConfig{Cache: cache})
			ctx := context.Background()

			done := make(chan AccessState, 1)
			go func() { done <- svc.Resolve(ctx, "u1") }()
			require.Eventually(t, func() bool { return repo.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

			repo.setAssignments("u1", []Assignment{assign("Chef de Site", RoleTypeClient, allow("incidents", "view"))})
			invalidate(svc, ctx)
			close(repo.gate)
			<-done

			state := svc.Resolve(ctx, "u1")
			require.Equal(t, StatusLoaded, state.Status)
			assert.False(t, state.HasPermission("incidents", "delete"))
			assert.True(t, state.HasPermission("incidents", "view"))
			assert.Equal(t, int32(2), repo.calls.Load())
		})
	}
}

func TestCacheDisabledWithoutClient(t *testing.T) {
	cache := NewCache(nil, time.Minute)
	ctx := context.Background()

	st, err := cache.Stamp(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, st, AccessContext{UserID: "u1"}))
	_, ok, err := cache.Get(ctx, st, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, cache.Bump(ctx))
	assert.NoError(t, cache.Delete(ctx, "u1"))
}
