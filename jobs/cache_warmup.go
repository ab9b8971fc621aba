package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/netpanel/netpanel/internal/rbac"
	"github.com/netpanel/netpanel/internal/users"
)

// TaskEffectiveCacheWarmup pre-resolves effective permission sets so the first
// request after a cache version bump does not pay the resolution cost.
const TaskEffectiveCacheWarmup = "rbac:cache_warmup"

// NewEffectiveCacheWarmupTask constructs the warmup task.
func NewEffectiveCacheWarmupTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskEffectiveCacheWarmup, nil), nil
}

// EffectiveCacheWarmupJob walks every principal and resolves its effective
// permission set through the read-through cache.
type EffectiveCacheWarmupJob struct {
	principals *users.Service
	resolver   *rbac.Resolver
	logger     *slog.Logger
}

// NewEffectiveCacheWarmupJob constructs the job.
func NewEffectiveCacheWarmupJob(principals *users.Service, resolver *rbac.Resolver, logger *slog.Logger) *EffectiveCacheWarmupJob {
	return &EffectiveCacheWarmupJob{principals: principals, resolver: resolver, logger: logger}
}

// Handle processes TaskEffectiveCacheWarmup tasks.
func (j *EffectiveCacheWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	all, err := j.principals.List(ctx)
	if err != nil {
		return fmt.Errorf("jobs: cache warmup: %w", err)
	}

	warmed := 0
	for _, u := range all {
		if !u.IsActive {
			continue
		}
		if _, err := j.resolver.EffectivePermissions(ctx, u.ID); err != nil {
			if j.logger != nil {
				j.logger.Warn("cache warmup skipped principal",
					slog.Int64("user_id", u.ID),
					slog.Any("error", err))
			}
			continue
		}
		warmed++
	}

	if j.logger != nil {
		j.logger.Info("cache warmup finished",
			slog.String("job", TaskEffectiveCacheWarmup),
			slog.Int("warmed", warmed),
			slog.Int("principals", len(all)))
	}
	return nil
}
