package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGrantIntegrityScan is the task type for the nightly grant-graph
	// integrity scan.
	TaskGrantIntegrityScan = "rbac:integrity_scan"
)

// GrantIntegrityScanPayload configures one integrity scan run.
type GrantIntegrityScanPayload struct {
	// FailOnOrphans makes the task return an error (and thus retry) when
	// orphaned grant rows are detected instead of just logging them.
	FailOnOrphans bool `json:"fail_on_orphans"`
}

// NewGrantIntegrityScanTask constructs an Asynq task.
func NewGrantIntegrityScanTask(payload GrantIntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGrantIntegrityScan, data), nil
}
