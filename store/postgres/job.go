package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
)

const jobColumns = `
	id, state, suspended_from,
	process_instance_id, execution_id, process_definition_id, tenant_id,
	due_date, lock_owner, lock_expiration,
	retries, exception_message, exception_stack,
	handler_type, handler_config, exclusive,
	interrupting, repeat, end_date, max_iterations,
	version, created_at, updated_at`

// InsertJob persists a new job record.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if j.Version == 0 {
		j.Version = 1
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO asyncexec_jobs (`+jobColumns+`
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15, $16,
			$17, $18, $19, $20,
			$21, $22, $23
		)`,
		j.ID.String(), string(j.State), string(j.SuspendedFrom),
		j.ProcessInstanceID, j.ExecutionID, j.ProcessDefinitionID, j.TenantID,
		j.DueDate, j.LockOwner, j.LockExpiration,
		j.Retries, j.ExceptionMessage, j.ExceptionStack,
		j.HandlerType, j.HandlerConfig, j.Exclusive,
		j.Interrupting, j.Repeat, j.EndDate, j.MaxIterations,
		j.Version, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return asyncexec.ErrJobAlreadyExists
		}
		return fmt.Errorf("asyncexec/postgres: insert job: %w", err)
	}
	return nil
}

// UpdateJob writes every field of j when the stored version equals
// j.Version.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) (job.Outcome, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE asyncexec_jobs SET
			state = $3, suspended_from = $4,
			process_instance_id = $5, execution_id = $6,
			process_definition_id = $7, tenant_id = $8,
			due_date = $9, lock_owner = $10, lock_expiration = $11,
			retries = $12, exception_message = $13, exception_stack = $14,
			handler_type = $15, handler_config = $16, exclusive = $17,
			interrupting = $18, repeat = $19, end_date = $20,
			max_iterations = $21,
			version = version + 1, updated_at = $22
		WHERE id = $1 AND version = $2`,
		j.ID.String(), j.Version,
		string(j.State), string(j.SuspendedFrom),
		j.ProcessInstanceID, j.ExecutionID,
		j.ProcessDefinitionID, j.TenantID,
		j.DueDate, j.LockOwner, j.LockExpiration,
		j.Retries, j.ExceptionMessage, j.ExceptionStack,
		j.HandlerType, j.HandlerConfig, j.Exclusive,
		j.Interrupting, j.Repeat, j.EndDate,
		j.MaxIterations,
		now,
	)
	if err != nil {
		return job.Conflict, fmt.Errorf("asyncexec/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return job.Conflict, nil
	}
	j.Version++
	j.UpdatedAt = now
	return job.Applied, nil
}

// DeleteJob removes j when the stored version equals j.Version.
func (s *Store) DeleteJob(ctx context.Context, j *job.Job) (job.Outcome, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM asyncexec_jobs WHERE id = $1 AND version = $2`,
		j.ID.String(), j.Version,
	)
	if err != nil {
		return job.Conflict, fmt.Errorf("asyncexec/postgres: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return job.Conflict, nil
	}
	return job.Applied, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM asyncexec_jobs WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, asyncexec.ErrJobNotFound
		}
		return nil, fmt.Errorf("asyncexec/postgres: get job: %w", err)
	}
	return j, nil
}

// FindAcquirableJobs returns due jobs of the category that are unlocked or
// whose lock expired, oldest due date first.
func (s *Store) FindAcquirableJobs(ctx context.Context, category job.Category, now time.Time, limit int) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM asyncexec_jobs
		WHERE state = $1
		  AND (lock_expiration IS NULL OR lock_expiration <= $2)`
	if category == job.CategoryTimer {
		query += ` AND due_date IS NOT NULL AND due_date <= $2`
	} else {
		query += ` AND (due_date IS NULL OR due_date <= $2)`
	}
	query += ` ORDER BY due_date ASC NULLS FIRST, created_at ASC, id ASC LIMIT $3`

	rows, err := s.pool.Query(ctx, query, string(category.State()), now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("asyncexec/postgres: find acquirable jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// FindExpiredLockJobs returns jobs whose lock expired before now.
func (s *Store) FindExpiredLockJobs(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM asyncexec_jobs
		WHERE lock_expiration IS NOT NULL AND lock_expiration < $1
		ORDER BY lock_expiration ASC
		LIMIT $2`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("asyncexec/postgres: find expired lock jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListJobs returns jobs matching q ordered by creation time.
func (s *Store) ListJobs(ctx context.Context, q job.Query) ([]*job.Job, error) {
	where, args := whereClause(q, 1)
	query := `SELECT ` + jobColumns + ` FROM asyncexec_jobs` + where +
		` ORDER BY created_at ASC, id ASC`
	argIdx := len(args) + 1

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, q.Limit)
		argIdx++
	}
	if q.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, q.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("asyncexec/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching q.
func (s *Store) CountJobs(ctx context.Context, q job.Query) (int64, error) {
	where, args := whereClause(q, 1)
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM asyncexec_jobs`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("asyncexec/postgres: count jobs: %w", err)
	}
	return n, nil
}

// scanJob scans a single row into a job.Job.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j             job.Job
		idStr         string
		stateStr      string
		suspendedFrom string
	)
	err := row.Scan(
		&idStr, &stateStr, &suspendedFrom,
		&j.ProcessInstanceID, &j.ExecutionID, &j.ProcessDefinitionID, &j.TenantID,
		&j.DueDate, &j.LockOwner, &j.LockExpiration,
		&j.Retries, &j.ExceptionMessage, &j.ExceptionStack,
		&j.HandlerType, &j.HandlerConfig, &j.Exclusive,
		&j.Interrupting, &j.Repeat, &j.EndDate, &j.MaxIterations,
		&j.Version, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("asyncexec/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID
	j.State = job.State(stateStr)
	j.SuspendedFrom = job.State(suspendedFrom)
	j.DueDate = utc(j.DueDate)
	j.LockExpiration = utc(j.LockExpiration)
	j.EndDate = utc(j.EndDate)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("asyncexec/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("asyncexec/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
