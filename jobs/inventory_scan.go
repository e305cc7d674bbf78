package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/fleetline/fleetline/internal/inventory"
	"github.com/fleetline/fleetline/internal/observability"
)

// InventoryScanJob counts ledger lines whose derived remaining quantity went
// negative. A non-zero count means a movement bypassed the availability
// checks and needs manual reconciliation.
type InventoryScanJob struct {
	Inventory *inventory.Service
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

func NewInventoryScanJob(inv *inventory.Service, metrics *observability.Metrics, logger *slog.Logger) *InventoryScanJob {
	return &InventoryScanJob{Inventory: inv, Metrics: metrics, Logger: logger}
}

// Handle processes TaskInventoryScan tasks.
func (j *InventoryScanJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Inventory == nil {
		return errors.New("inventory scan: handler not configured")
	}
	logger := j.logger()

	count, err := j.Inventory.NegativeLineCount(ctx)
	if err != nil {
		logger.Error("inventory integrity scan", slog.Any("error", err))
		return err
	}
	if j.Metrics != nil {
		j.Metrics.SetNegativeInventoryLines(int(count))
	}
	if count > 0 {
		logger.Warn("negative inventory lines detected", slog.Int64("lines", count))
	} else {
		logger.Info("inventory ledger clean")
	}
	return nil
}

func (j *InventoryScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInventoryScan))
	}
	return slog.Default().With(slog.String("job", TaskInventoryScan))
}
