package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/chalkboard-sms/chalkboard/internal/jobs"
	"github.com/chalkboard-sms/chalkboard/internal/registry"
	"github.com/chalkboard-sms/chalkboard/internal/tenant"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// TenantWarmupJob pre-dials tenant store handles so the first request after
// a deploy does not pay the connection setup cost.
type TenantWarmupJob struct {
	Registry *registry.Service
	Manager  *tenant.Manager
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewTenantWarmupJob wires dependencies for the warmup handler.
func NewTenantWarmupJob(reg *registry.Service, manager *tenant.Manager, logger *slog.Logger, metrics *jobmetrics.Metrics) *TenantWarmupJob {
	return &TenantWarmupJob{Registry: reg, Manager: manager, Logger: logger, Metrics: metrics}
}

// Handle processes tenant warmup tasks.
func (j *TenantWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Registry == nil || j.Manager == nil {
		return errors.New("tenant warmup: handler not configured")
	}
	var payload TenantWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTenantWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	codes := payload.Codes
	if len(codes) == 0 {
		schools, err := j.Registry.List(ctx, true)
		if err != nil {
			resultErr = err
			return resultErr
		}
		for _, school := range schools {
			codes = append(codes, school.Code)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, code := range codes {
		g.Go(func() error {
			if _, err := j.Manager.Handle(gctx, code); err != nil {
				// Warmup is best-effort; an unreachable tenant is logged,
				// not fatal for the rest of the run.
				j.logger().Warn("tenant warmup dial failed",
					slog.String("code", code), slog.Any("error", err))
			}
			return nil
		})
	}
	resultErr = g.Wait()
	return resultErr
}

func (j *TenantWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *TenantWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
