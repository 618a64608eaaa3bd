package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-crm/internal/jobs"
	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Warmer populates the dashboard cache of one client.
type Warmer interface {
	Warm(ctx context.Context, scope tenant.Scope, clientID int64) error
}

// SummaryWarmupJob rebuilds client dashboards after document changes.
type SummaryWarmupJob struct {
	Summary Warmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// Handle processes TaskSummaryWarmup tasks.
func (j *SummaryWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Summary == nil {
		return errors.New("summary warmup: handler not configured")
	}
	var payload SummaryWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := payload.Validate(); err != nil {
		return asynq.SkipRetry
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskSummaryWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := loggerOrDefault(j.Logger, TaskSummaryWarmup).With(
		slog.Int64("tenant", int64(payload.Tenant)),
		slog.Int64("client_id", payload.ClientID),
		slog.String("request_id", payload.RequestID),
	)

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	warmCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := j.Summary.Warm(warmCtx, payload.Tenant, payload.ClientID); err != nil {
		logger.Error("warm summary", slog.Any("error", err))
		return err
	}
	logger.Info("summary warmed", slog.Duration("duration", time.Since(start)))
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func loggerOrDefault(l *slog.Logger, job string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("job", job))
}
