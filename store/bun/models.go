package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
)

type jobModel struct {
	bun.BaseModel `bun:"table:asyncexec_jobs"`

	ID                  string     `bun:"id,pk"`
	State               string     `bun:"state,notnull"`
	SuspendedFrom       string     `bun:"suspended_from,notnull"`
	ProcessInstanceID   string     `bun:"process_instance_id,notnull"`
	ExecutionID         string     `bun:"execution_id,notnull"`
	ProcessDefinitionID string     `bun:"process_definition_id,notnull"`
	TenantID            string     `bun:"tenant_id,notnull"`
	DueDate             *time.Time `bun:"due_date"`
	LockOwner           string     `bun:"lock_owner,notnull"`
	LockExpiration      *time.Time `bun:"lock_expiration"`
	Retries             int        `bun:"retries,notnull"`
	ExceptionMessage    string     `bun:"exception_message,notnull"`
	ExceptionStack      string     `bun:"exception_stack,notnull"`
	HandlerType         string     `bun:"handler_type,notnull"`
	HandlerConfig       []byte     `bun:"handler_config,type:bytea"`
	Exclusive           bool       `bun:"exclusive,notnull"`
	Interrupting        bool       `bun:"interrupting,notnull"`
	Repeat              string     `bun:"repeat,notnull"`
	EndDate             *time.Time `bun:"end_date"`
	MaxIterations       int        `bun:"max_iterations,notnull"`
	Version             int64      `bun:"version,notnull"`
	CreatedAt           time.Time  `bun:"created_at,notnull"`
	UpdatedAt           time.Time  `bun:"updated_at,notnull"`
}

type scopeLockModel struct {
	bun.BaseModel `bun:"table:asyncexec_scope_locks"`

	ProcessInstanceID string    `bun:"process_instance_id,pk"`
	Owner             string    `bun:"owner,notnull"`
	ExpiresAt         time.Time `bun:"expires_at,notnull"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
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
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("asyncexec/bun: parse job id %q: %w", m.ID, err)
	}

	return &job.Job{
		Entity: asyncexec.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:                  parsedID,
		State:               job.State(m.State),
		SuspendedFrom:       job.State(m.SuspendedFrom),
		ProcessInstanceID:   m.ProcessInstanceID,
		ExecutionID:         m.ExecutionID,
		ProcessDefinitionID: m.ProcessDefinitionID,
		TenantID:            m.TenantID,
		DueDate:             utc(m.DueDate),
		LockOwner:           m.LockOwner,
		LockExpiration:      utc(m.LockExpiration),
		Retries:             m.Retries,
		ExceptionMessage:    m.ExceptionMessage,
		ExceptionStack:      m.ExceptionStack,
		HandlerType:         m.HandlerType,
		HandlerConfig:       m.HandlerConfig,
		Exclusive:           m.Exclusive,
		Interrupting:        m.Interrupting,
		Repeat:              m.Repeat,
		EndDate:             utc(m.EndDate),
		MaxIterations:       m.MaxIterations,
		Version:             m.Version,
	}, nil
}

func fromJobModels(models []jobModel) ([]*job.Job, error) {
	if len(models) == 0 {
		return nil, nil
	}
	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
