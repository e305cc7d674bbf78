package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleetline/fleetline/internal/drivers"
	"github.com/fleetline/fleetline/internal/settlement"
)

// EarningsWarmupJob pre-computes settlement summaries so the first dashboard
// hit after an invalidation does not pay the recompute cost.
type EarningsWarmupJob struct {
	Settlement *settlement.Service
	Drivers    drivers.Repository
	Logger     *slog.Logger
	clock      func() time.Time
}

func NewEarningsWarmupJob(settlementSvc *settlement.Service, driverRepo drivers.Repository, logger *slog.Logger) *EarningsWarmupJob {
	return &EarningsWarmupJob{
		Settlement: settlementSvc,
		Drivers:    driverRepo,
		Logger:     logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskEarningsWarmup tasks.
func (j *EarningsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Settlement == nil {
		return errors.New("earnings warmup: handler not configured")
	}
	var payload EarningsWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	logger := j.logger()
	now := j.now()

	ids, err := j.driverIDs(ctx, payload)
	if err != nil {
		logger.Error("load warmup drivers", slog.Any("error", err))
		return err
	}

	warmed := 0
	for _, id := range ids {
		// warm each driver with its own timeout so one slow recompute
		// cannot stall the whole batch
		driverCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := j.warmDriver(driverCtx, id, now)
		cancel()
		if err != nil {
			logger.Error("warm driver earnings", slog.Int64("driver_id", id), slog.Any("error", err))
			return err
		}
		warmed++
	}
	logger.Info("completed earnings warmup", slog.Int("drivers", warmed))
	return nil
}

func (j *EarningsWarmupJob) warmDriver(ctx context.Context, driverID int64, now time.Time) error {
	if _, err := j.Settlement.DriverEarnings(ctx, driverID, "", now); err != nil {
		return err
	}
	_, err := j.Settlement.DriverEarnings(ctx, driverID, "day", now)
	return err
}

func (j *EarningsWarmupJob) driverIDs(ctx context.Context, payload EarningsWarmupPayload) ([]int64, error) {
	if payload.DriverID > 0 {
		return []int64{payload.DriverID}, nil
	}
	if j.Drivers == nil {
		return nil, errors.New("earnings warmup: driver repository not configured")
	}
	all, err := j.Drivers.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(all))
	for _, d := range all {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (j *EarningsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskEarningsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskEarningsWarmup))
}

func (j *EarningsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
