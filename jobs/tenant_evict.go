package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/chalkboard-sms/chalkboard/internal/jobs"
	"github.com/chalkboard-sms/chalkboard/internal/registry"
	"github.com/chalkboard-sms/chalkboard/internal/tenant"
)

// TenantEvictJob drops cached connection handles for deactivated schools so
// their resources are released without a process restart.
type TenantEvictJob struct {
	Registry *registry.Service
	Manager  *tenant.Manager
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewTenantEvictJob wires dependencies for the eviction handler.
func NewTenantEvictJob(reg *registry.Service, manager *tenant.Manager, logger *slog.Logger, metrics *jobmetrics.Metrics) *TenantEvictJob {
	return &TenantEvictJob{Registry: reg, Manager: manager, Logger: logger, Metrics: metrics}
}

// Handle processes tenant eviction tasks.
func (j *TenantEvictJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Registry == nil || j.Manager == nil {
		return errors.New("tenant evict: handler not configured")
	}
	var payload TenantEvictPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTenantEvict)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	codes := payload.Codes
	if len(codes) == 0 {
		schools, err := j.Registry.List(ctx, false)
		if err != nil {
			resultErr = err
			return resultErr
		}
		for _, school := range schools {
			if !school.Active {
				codes = append(codes, school.Code)
			}
		}
	}

	for _, code := range codes {
		if j.Manager.Cached(code) {
			j.Manager.Evict(code)
			j.logger().Info("tenant evicted", slog.String("code", code))
		}
	}
	return nil
}

func (j *TenantEvictJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *TenantEvictJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
