package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/conformapro/conformapro/internal/jobs"
	"github.com/conformapro/conformapro/internal/rbac"
)

// RoleMembers lists the users holding a role.
type RoleMembers interface {
	UserIDsByRole(ctx context.Context, roleID string) ([]string, error)
}

// AccessResolver refreshes cached access contexts.
type AccessResolver interface {
	Invalidate(ctx context.Context, userID string)
	Resolve(ctx context.Context, userID string) rbac.AccessState
}

// AccessWarmupJob re-resolves the access context of every member of a role
// whose permissions changed, so their next request hits a warm cache.
type AccessWarmupJob struct {
	Members  RoleMembers
	Resolver AccessResolver
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle processes TaskTypeAccessWarmup tasks.
func (j *AccessWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Members == nil || j.Resolver == nil {
		return errors.New("access warmup: handler not configured")
	}
	var payload AccessWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.RoleID == "" {
		return fmt.Errorf("access warmup: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskTypeAccessWarmup)
	logger := j.logger().With(slog.String("role_id", payload.RoleID))
	start := time.Now()

	users, err := j.Members.UserIDsByRole(ctx, payload.RoleID)
	if err != nil {
		logger.Error("load role members", slog.Any("error", err))
		return tracker.End(err)
	}
	warmed, failed := 0, 0
	for _, userID := range users {
		j.Resolver.Invalidate(ctx, userID)
		if state := j.Resolver.Resolve(ctx, userID); state.Status == rbac.StatusLoaded {
			warmed++
		} else {
			failed++
		}
	}
	j.Metrics.AddWarmed(warmed)
	logger.Info("access warmup complete",
		slog.Int("warmed", warmed),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)))
	if failed > 0 {
		return tracker.End(fmt.Errorf("access warmup: %d of %d users failed", failed, len(users)))
	}
	return tracker.End(nil)
}

func (j *AccessWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeAccessWarmup))
	}
	return slog.Default().With(slog.String("job", TaskTypeAccessWarmup))
}
