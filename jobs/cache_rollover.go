package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-crm/internal/jobs"
)

// Bumper invalidates every cached entry.
type Bumper interface {
	Bump(ctx context.Context) error
}

// CacheRolloverJob bumps the cache version once a day. Cached dashboards
// embed display statuses, which change when deadlines pass.
type CacheRolloverJob struct {
	Cache   Bumper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskCacheRollover tasks.
func (j *CacheRolloverJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Cache == nil {
		return errors.New("cache rollover: handler not configured")
	}
	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskCacheRollover)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if err := j.Cache.Bump(ctx); err != nil {
		loggerOrDefault(j.Logger, TaskCacheRollover).Error("bump cache", slog.Any("error", err))
		return err
	}
	metrics.Invalidated("rollover")
	loggerOrDefault(j.Logger, TaskCacheRollover).Info("cache rolled over")
	return nil
}
