package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/netpanel/netpanel/internal/rbac"
)

// GrantIntegrityJob verifies that no grant-graph row outlived its catalog
// side. The cascading foreign keys make orphans impossible under normal
// operation, so any hit points at out-of-band writes.
type GrantIntegrityJob struct {
	repo   rbac.Repository
	logger *slog.Logger
}

// NewGrantIntegrityJob constructs the job.
func NewGrantIntegrityJob(repo rbac.Repository, logger *slog.Logger) *GrantIntegrityJob {
	return &GrantIntegrityJob{repo: repo, logger: logger}
}

// Handle processes TaskGrantIntegrityScan tasks.
func (j *GrantIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload GrantIntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	orphans, err := j.repo.CountOrphanedGrants(ctx)
	if err != nil {
		return fmt.Errorf("jobs: grant integrity scan: %w", err)
	}
	if orphans == 0 {
		if j.logger != nil {
			j.logger.Info("grant integrity scan clean", slog.String("job", TaskGrantIntegrityScan))
		}
		return nil
	}

	if j.logger != nil {
		j.logger.Error("orphaned grant rows detected",
			slog.String("job", TaskGrantIntegrityScan),
			slog.Int64("orphans", orphans))
	}
	if payload.FailOnOrphans {
		return fmt.Errorf("jobs: %d orphaned grant rows", orphans)
	}
	return nil
}
