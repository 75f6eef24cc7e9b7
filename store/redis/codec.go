package redis

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
)

// record is the MessagePack form of a job.
type record struct {
	ID                  string     `msgpack:"id"`
	State               string     `msgpack:"state"`
	SuspendedFrom       string     `msgpack:"suspended_from,omitempty"`
	ProcessInstanceID   string     `msgpack:"process_instance_id,omitempty"`
	ExecutionID         string     `msgpack:"execution_id,omitempty"`
	ProcessDefinitionID string     `msgpack:"process_definition_id,omitempty"`
	TenantID            string     `msgpack:"tenant_id,omitempty"`
	DueDate             *time.Time `msgpack:"due_date,omitempty"`
	LockOwner           string     `msgpack:"lock_owner,omitempty"`
	LockExpiration      *time.Time `msgpack:"lock_expiration,omitempty"`
	Retries             int        `msgpack:"retries"`
	ExceptionMessage    string     `msgpack:"exception_message,omitempty"`
	ExceptionStack      string     `msgpack:"exception_stack,omitempty"`
	HandlerType         string     `msgpack:"handler_type"`
	HandlerConfig       []byte     `msgpack:"handler_config,omitempty"`
	Exclusive           bool       `msgpack:"exclusive"`
	Interrupting        bool       `msgpack:"interrupting,omitempty"`
	Repeat              string     `msgpack:"repeat,omitempty"`
	EndDate             *time.Time `msgpack:"end_date,omitempty"`
	MaxIterations       int        `msgpack:"max_iterations,omitempty"`
	Version             int64      `msgpack:"version"`
	CreatedAt           time.Time  `msgpack:"created_at"`
	UpdatedAt           time.Time  `msgpack:"updated_at"`
}

func encodeJob(j *job.Job) ([]byte, error) {
	return msgpack.Marshal(&record{
		ID:                  j.ID.String(),
		State:               string(j.State),
		SuspendedFrom:       string(j.SuspendedFrom),
		ProcessInstanceID:   j.ProcessInstanceID,
		ExecutionID:         j.ExecutionID,
		ProcessDefinitionID: j.ProcessDefinitionID,
		TenantID:            j.TenantID,
		DueDate:             j.DueDate,
		LockOwner:           j.LockOwner,
		LockExpiration:      j.LockExpiration,
		Retries:             j.Retries,
		ExceptionMessage:    j.ExceptionMessage,
		ExceptionStack:      j.ExceptionStack,
		HandlerType:         j.HandlerType,
		HandlerConfig:       j.HandlerConfig,
		Exclusive:           j.Exclusive,
		Interrupting:        j.Interrupting,
		Repeat:              j.Repeat,
		EndDate:             j.EndDate,
		MaxIterations:       j.MaxIterations,
		Version:             j.Version,
		CreatedAt:           j.CreatedAt,
		UpdatedAt:           j.UpdatedAt,
	})
}

func decodeJob(data []byte) (*job.Job, error) {
	var r record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("asyncexec/redis: decode job: %w", err)
	}
	jobID, err := id.ParseJobID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("asyncexec/redis: parse job id %q: %w", r.ID, err)
	}

	return &job.Job{
		Entity: asyncexec.Entity{
			CreatedAt: r.CreatedAt.UTC(),
			UpdatedAt: r.UpdatedAt.UTC(),
		},
		ID:                  jobID,
		State:               job.State(r.State),
		SuspendedFrom:       job.State(r.SuspendedFrom),
		ProcessInstanceID:   r.ProcessInstanceID,
		ExecutionID:         r.ExecutionID,
		ProcessDefinitionID: r.ProcessDefinitionID,
		TenantID:            r.TenantID,
		DueDate:             utc(r.DueDate),
		LockOwner:           r.LockOwner,
		LockExpiration:      utc(r.LockExpiration),
		Retries:             r.Retries,
		ExceptionMessage:    r.ExceptionMessage,
		ExceptionStack:      r.ExceptionStack,
		HandlerType:         r.HandlerType,
		HandlerConfig:       r.HandlerConfig,
		Exclusive:           r.Exclusive,
		Interrupting:        r.Interrupting,
		Repeat:              r.Repeat,
		EndDate:             utc(r.EndDate),
		MaxIterations:       r.MaxIterations,
		Version:             r.Version,
	}, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// dueScore is the state index score of j.
func dueScore(j *job.Job) float64 {
	if j.DueDate == nil {
		return 0
	}
	return float64(j.DueDate.UnixMilli())
}
