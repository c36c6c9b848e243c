package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/chalkboard-sms/chalkboard/internal/identity"
	jobmetrics "github.com/chalkboard-sms/chalkboard/internal/jobs"
	"github.com/chalkboard-sms/chalkboard/internal/registry"
)

var scrubRoles = []string{"admin", "teacher", "student", "parent"}

// CredentialEchoScrubJob clears plaintext credential echoes that outlived
// their one-time-display purpose.
type CredentialEchoScrubJob struct {
	Registry *registry.Service
	Store    identity.Store
	MaxAge   time.Duration
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewCredentialEchoScrubJob wires dependencies for the scrub handler.
func NewCredentialEchoScrubJob(reg *registry.Service, store identity.Store, maxAge time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *CredentialEchoScrubJob {
	if maxAge <= 0 {
		maxAge = 72 * time.Hour
	}
	return &CredentialEchoScrubJob{Registry: reg, Store: store, MaxAge: maxAge, Logger: logger, Metrics: metrics}
}

// Handle processes credential echo scrub tasks.
func (j *CredentialEchoScrubJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Registry == nil || j.Store == nil {
		return errors.New("credential echo scrub: handler not configured")
	}
	var payload CredentialEchoScrubPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskCredentialEchoScrub)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	maxAge := j.MaxAge
	if payload.MaxAge != "" {
		if parsed, err := time.ParseDuration(payload.MaxAge); err == nil && parsed > 0 {
			maxAge = parsed
		}
	}
	cutoff := time.Now().UTC().Add(-maxAge)

	schools, err := j.Registry.List(ctx, true)
	if err != nil {
		resultErr = err
		return resultErr
	}

	var scrubbed int64
	for _, school := range schools {
		for _, role := range scrubRoles {
			n, err := j.Store.ScrubEchoes(ctx, school.Code, role, cutoff)
			if err != nil {
				j.logger().Warn("credential echo scrub failed",
					slog.String("code", school.Code),
					slog.String("role", role),
					slog.Any("error", err))
				continue
			}
			scrubbed += n
		}
	}
	j.logger().Info("credential echo scrub finished", slog.Int64("scrubbed", scrubbed))
	return nil
}

func (j *CredentialEchoScrubJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CredentialEchoScrubJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
