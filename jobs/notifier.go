package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-crm/internal/jobs"
	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
)

// WarmupEnqueuer schedules dashboard warm-ups.
type WarmupEnqueuer interface {
	EnqueueSummaryWarmup(ctx context.Context, payload SummaryWarmupPayload) (*asynq.TaskInfo, error)
}

// ChangeNotifier invalidates cached dashboards when documents change and
// schedules a warm-up for the affected client.
type ChangeNotifier struct {
	cache   Bumper
	queue   WarmupEnqueuer
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewChangeNotifier wires the notifier. A nil queue only invalidates.
func NewChangeNotifier(cache Bumper, queue WarmupEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ChangeNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeNotifier{cache: cache, queue: queue, logger: logger, metrics: metrics}
}

// DocumentChanged implements documents.ChangeNotifier. Failures are logged;
// the document write has already succeeded.
func (n *ChangeNotifier) DocumentChanged(ctx context.Context, scope tenant.Scope, clientID int64) {
	if n.cache != nil {
		if err := n.cache.Bump(ctx); err != nil {
			n.logger.WarnContext(ctx, "invalidate summary cache", slog.Any("error", err))
		} else {
			metricsOrDefault(n.metrics).Invalidated("change")
		}
	}
	if n.queue == nil {
		return
	}
	_, err := n.queue.EnqueueSummaryWarmup(ctx, SummaryWarmupPayload{Tenant: scope, ClientID: clientID})
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		n.logger.WarnContext(ctx, "enqueue summary warmup",
			slog.Any("error", err),
			slog.Int64("tenant", int64(scope)),
			slog.Int64("client_id", clientID),
		)
	}
}
