package dlq

import (
	"time"

	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
)

// Entry is the diagnostic view of a dead-letter job.
type Entry struct {
	JobID             id.JobID  `json:"job_id"`
	HandlerType       string    `json:"handler_type"`
	HandlerConfig     []byte    `json:"handler_config,omitempty"`
	ProcessInstanceID string    `json:"process_instance_id,omitempty"`
	ExecutionID       string    `json:"execution_id,omitempty"`
	TenantID          string    `json:"tenant_id,omitempty"`
	Exclusive         bool      `json:"exclusive"`
	Error             string    `json:"error"`
	Stack             string    `json:"stack,omitempty"`
	FailedAt          time.Time `json:"failed_at"`
	CreatedAt         time.Time `json:"created_at"`
	Version           int64     `json:"version"`
}

// entryOf projects a dead-letter job. The last update of a dead-letter
// job is the move into the dead letter state.
func entryOf(j *job.Job) *Entry {
	return &Entry{
		JobID:             j.ID,
		HandlerType:       j.HandlerType,
		HandlerConfig:     j.HandlerConfig,
		ProcessInstanceID: j.ProcessInstanceID,
		ExecutionID:       j.ExecutionID,
		TenantID:          j.TenantID,
		Exclusive:         j.Exclusive,
		Error:             j.ExceptionMessage,
		Stack:             j.ExceptionStack,
		FailedAt:          j.UpdatedAt,
		CreatedAt:         j.CreatedAt,
		Version:           j.Version,
	}
}
