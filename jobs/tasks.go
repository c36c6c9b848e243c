package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTenantWarmup pre-dials tenant store handles for active schools.
	TaskTenantWarmup = "tenant:warmup"
	// TaskTenantEvict drops cached handles of deactivated schools.
	TaskTenantEvict = "tenant:evict"
	// TaskCredentialEchoScrub clears expired plaintext credential echoes.
	TaskCredentialEchoScrub = "identity:scrub_echo"
)

// TenantWarmupPayload scopes a warmup run.
type TenantWarmupPayload struct {
	// Codes limits the run to specific schools; empty means all active.
	Codes []string `json:"codes,omitempty"`
}

// NewTenantWarmupTask constructs an Asynq task.
func NewTenantWarmupTask(payload TenantWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTenantWarmup, data), nil
}

// TenantEvictPayload scopes an eviction run.
type TenantEvictPayload struct {
	// Codes limits the run to specific schools; empty means all inactive.
	Codes []string `json:"codes,omitempty"`
}

// NewTenantEvictTask constructs an Asynq task.
func NewTenantEvictTask(payload TenantEvictPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTenantEvict, data), nil
}

// CredentialEchoScrubPayload scopes an echo scrub run.
type CredentialEchoScrubPayload struct {
	// MaxAge overrides the configured retention when non-empty, e.g. "72h".
	MaxAge string `json:"max_age,omitempty"`
}

// NewCredentialEchoScrubTask constructs an Asynq task.
func NewCredentialEchoScrubTask(payload CredentialEchoScrubPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCredentialEchoScrub, data), nil
}
