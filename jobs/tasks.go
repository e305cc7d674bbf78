package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryScan checks every driver ledger for negative remaining quantities.
	TaskInventoryScan = "integrity:inventory_scan"
	// TaskEarningsWarmup pre-computes settlement summaries for active drivers.
	TaskEarningsWarmup = "earnings:warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// EarningsWarmupPayload narrows the warmup to one driver when DriverID is set.
type EarningsWarmupPayload struct {
	DriverID int64 `json:"driver_id,omitempty"`
}

// NewInventoryScanTask constructs an inventory integrity scan task.
func NewInventoryScanTask() *asynq.Task {
	return asynq.NewTask(TaskInventoryScan, nil)
}

// NewEarningsWarmupTask constructs a settlement cache warmup task.
func NewEarningsWarmupTask(payload EarningsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEarningsWarmup, data), nil
}

// NewIdempotencyCleanupTask constructs a key cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
