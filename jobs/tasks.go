package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSummaryWarmup rebuilds the cached dashboard of one client.
	TaskSummaryWarmup = "summary:warmup"
	// TaskCacheRollover bumps the cache version so display statuses are
	// recomputed against the new day.
	TaskCacheRollover = "summary:rollover"
)

// DefaultRolloverCron runs the rollover shortly after midnight UTC.
const DefaultRolloverCron = "5 0 * * *"

// warmupUniqueTTL collapses bursts of edits on one client into one warm-up.
const warmupUniqueTTL = 30 * time.Second

// ErrInvalidPayload indicates a task payload that can never succeed.
var ErrInvalidPayload = errors.New("jobs: invalid payload")

// SummaryWarmupPayload identifies the client dashboard to rebuild.
type SummaryWarmupPayload struct {
	Tenant    tenant.Scope `json:"tenant_id"`
	ClientID  int64        `json:"client_id"`
	RequestID string       `json:"request_id"`
}

// Validate reports whether the payload names a tenant and client.
func (p SummaryWarmupPayload) Validate() error {
	if p.Tenant.Validate() != nil || p.ClientID <= 0 {
		return ErrInvalidPayload
	}
	return nil
}

// NewSummaryWarmupTask constructs an Asynq task.
func NewSummaryWarmupTask(payload SummaryWarmupPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if payload.RequestID == "" {
		payload.RequestID = uuid.NewString()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSummaryWarmup, data, asynq.Queue(QueueDefault), asynq.Unique(warmupUniqueTTL), asynq.MaxRetry(3)), nil
}

// NewCacheRolloverTask constructs the rollover task.
func NewCacheRolloverTask() *asynq.Task {
	return asynq.NewTask(TaskCacheRollover, nil, asynq.Queue(QueueDefault))
}
