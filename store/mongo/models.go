package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
)

// jobModel stores optional timestamps as BSON null so that equality
// filters on nil match them and ascending sorts put them first.
type jobModel struct {
	ID                  string     `bson:"_id"`
	State               string     `bson:"state"`
	SuspendedFrom       string     `bson:"suspended_from"`
	ProcessInstanceID   string     `bson:"process_instance_id"`
	ExecutionID         string     `bson:"execution_id"`
	ProcessDefinitionID string     `bson:"process_definition_id"`
	TenantID            string     `bson:"tenant_id"`
	DueDate             *time.Time `bson:"due_date"`
	LockOwner           string     `bson:"lock_owner"`
	LockExpiration      *time.Time `bson:"lock_expiration"`
	Retries             int        `bson:"retries"`
	ExceptionMessage    string     `bson:"exception_message"`
	ExceptionStack      string     `bson:"exception_stack"`
	HandlerType         string     `bson:"handler_type"`
	HandlerConfig       []byte     `bson:"handler_config"`
	Exclusive           bool       `bson:"exclusive"`
	Interrupting        bool       `bson:"interrupting"`
	Repeat              string     `bson:"repeat"`
	EndDate             *time.Time `bson:"end_date"`
	MaxIterations       int        `bson:"max_iterations"`
	Version             int64      `bson:"version"`
	CreatedAt           time.Time  `bson:"created_at"`
	UpdatedAt           time.Time  `bson:"updated_at"`
}

type scopeLockModel struct {
	ProcessInstanceID string    `bson:"_id"`
	Owner             string    `bson:"owner"`
	ExpiresAt         time.Time `bson:"expires_at"`
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
		return nil, fmt.Errorf("asyncexec/mongo: parse job id %q: %w", m.ID, err)
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

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
