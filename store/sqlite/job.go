package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
)

// timeLayout is fixed width so that TEXT comparison orders instants.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const jobColumns = `
	id, state, suspended_from,
	process_instance_id, execution_id, process_definition_id, tenant_id,
	due_date, lock_owner, lock_expiration,
	retries, exception_message, exception_stack,
	handler_type, handler_config, exclusive,
	interrupting, repeat, end_date, max_iterations,
	version, created_at, updated_at`

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO asyncexec_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID.String(), string(j.State), string(j.SuspendedFrom),
		j.ProcessInstanceID, j.ExecutionID, j.ProcessDefinitionID, j.TenantID,
		formatTimePtr(j.DueDate), j.LockOwner, formatTimePtr(j.LockExpiration),
		j.Retries, j.ExceptionMessage, j.ExceptionStack,
		j.HandlerType, j.HandlerConfig, j.Exclusive,
		j.Interrupting, j.Repeat, formatTimePtr(j.EndDate), j.MaxIterations,
		j.Version, formatTime(j.CreatedAt), formatTime(j.UpdatedAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return asyncexec.ErrJobAlreadyExists
		}
		return fmt.Errorf("asyncexec/sqlite: insert job: %w", err)
	}
	return nil
}

// UpdateJob writes every field of j when the stored version equals
// j.Version.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) (job.Outcome, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE asyncexec_jobs SET
			state = ?, suspended_from = ?,
			process_instance_id = ?, execution_id = ?,
			process_definition_id = ?, tenant_id = ?,
			due_date = ?, lock_owner = ?, lock_expiration = ?,
			retries = ?, exception_message = ?, exception_stack = ?,
			handler_type = ?, handler_config = ?, exclusive = ?,
			interrupting = ?, repeat = ?, end_date = ?, max_iterations = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(j.State), string(j.SuspendedFrom),
		j.ProcessInstanceID, j.ExecutionID,
		j.ProcessDefinitionID, j.TenantID,
		formatTimePtr(j.DueDate), j.LockOwner, formatTimePtr(j.LockExpiration),
		j.Retries, j.ExceptionMessage, j.ExceptionStack,
		j.HandlerType, j.HandlerConfig, j.Exclusive,
		j.Interrupting, j.Repeat, formatTimePtr(j.EndDate), j.MaxIterations,
		formatTime(now),
		j.ID.String(), j.Version,
	)
	if err != nil {
		return job.Conflict, fmt.Errorf("asyncexec/sqlite: update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports changes
		return job.Conflict, nil
	}
	j.Version++
	j.UpdatedAt = now
	return job.Applied, nil
}

// DeleteJob removes j when the stored version equals j.Version.
func (s *Store) DeleteJob(ctx context.Context, j *job.Job) (job.Outcome, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM asyncexec_jobs WHERE id = ? AND version = ?`,
		j.ID.String(), j.Version,
	)
	if err != nil {
		return job.Conflict, fmt.Errorf("asyncexec/sqlite: delete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports changes
		return job.Conflict, nil
	}
	return job.Applied, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM asyncexec_jobs WHERE id = ?`, jobID.String())
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, asyncexec.ErrJobNotFound
		}
		return nil, fmt.Errorf("asyncexec/sqlite: get job: %w", err)
	}
	return j, nil
}

// FindAcquirableJobs returns due jobs of the category that are unlocked or
// whose lock expired, oldest due date first. NULL due dates sort first.
func (s *Store) FindAcquirableJobs(ctx context.Context, category job.Category, now time.Time, limit int) ([]*job.Job, error) {
	ts := formatTime(now)
	query := `SELECT ` + jobColumns + `
		FROM asyncexec_jobs
		WHERE state = ?
		  AND (lock_expiration IS NULL OR lock_expiration <= ?)`
	if category == job.CategoryTimer {
		query += ` AND due_date IS NOT NULL AND due_date <= ?`
	} else {
		query += ` AND (due_date IS NULL OR due_date <= ?)`
	}
	query += ` ORDER BY due_date ASC, created_at ASC, id ASC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, string(category.State()), ts, ts, limit)
	if err != nil {
		return nil, fmt.Errorf("asyncexec/sqlite: find acquirable jobs: %w", err)
	}
	return collectJobs(rows)
}

// FindExpiredLockJobs returns jobs whose lock expired before now.
func (s *Store) FindExpiredLockJobs(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM asyncexec_jobs
		WHERE lock_expiration IS NOT NULL AND lock_expiration < ?
		ORDER BY lock_expiration ASC
		LIMIT ?`,
		formatTime(now), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("asyncexec/sqlite: find expired lock jobs: %w", err)
	}
	return collectJobs(rows)
}

// ListJobs returns jobs matching q ordered by creation time.
func (s *Store) ListJobs(ctx context.Context, q job.Query) ([]*job.Job, error) {
	where, args := whereClause(q)
	query := `SELECT ` + jobColumns + ` FROM asyncexec_jobs` + where +
		` ORDER BY created_at ASC, id ASC`
	switch {
	case q.Limit > 0:
		query += ` LIMIT ? OFFSET ?`
		args = append(args, q.Limit, q.Offset)
	case q.Offset > 0:
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("asyncexec/sqlite: list jobs: %w", err)
	}
	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching q.
func (s *Store) CountJobs(ctx context.Context, q job.Query) (int64, error) {
	where, args := whereClause(q)
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM asyncexec_jobs`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("asyncexec/sqlite: count jobs: %w", err)
	}
	return n, nil
}

func whereClause(q job.Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		conds = append(conds, cond)
		args = append(args, v)
	}
	if q.State != "" {
		add("state = ?", string(q.State))
	}
	if q.ProcessInstanceID != "" {
		add("process_instance_id = ?", q.ProcessInstanceID)
	}
	if q.ExecutionID != "" {
		add("execution_id = ?", q.ExecutionID)
	}
	if q.TenantID != "" {
		add("tenant_id = ?", q.TenantID)
	}
	if q.HandlerType != "" {
		add("handler_type = ?", q.HandlerType)
	}
	if q.DueBefore != nil {
		add("due_date <= ?", formatTime(*q.DueBefore))
	}
	if q.DueAfter != nil {
		add("due_date > ?", formatTime(*q.DueAfter))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*job.Job, error) {
	var (
		j                              job.Job
		idStr, stateStr, suspendedFrom string
		due, lockExp, endDate          sql.NullString
		createdAt, updatedAt           string
	)
	err := row.Scan(
		&idStr, &stateStr, &suspendedFrom,
		&j.ProcessInstanceID, &j.ExecutionID, &j.ProcessDefinitionID, &j.TenantID,
		&due, &j.LockOwner, &lockExp,
		&j.Retries, &j.ExceptionMessage, &j.ExceptionStack,
		&j.HandlerType, &j.HandlerConfig, &j.Exclusive,
		&j.Interrupting, &j.Repeat, &endDate, &j.MaxIterations,
		&j.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if j.ID, err = id.ParseJobID(idStr); err != nil {
		return nil, fmt.Errorf("asyncexec/sqlite: parse job id %q: %w", idStr, err)
	}
	j.State = job.State(stateStr)
	j.SuspendedFrom = job.State(suspendedFrom)

	if j.DueDate, err = parseTimePtr(due); err != nil {
		return nil, fmt.Errorf("asyncexec/sqlite: parse due_date: %w", err)
	}
	if j.LockExpiration, err = parseTimePtr(lockExp); err != nil {
		return nil, fmt.Errorf("asyncexec/sqlite: parse lock_expiration: %w", err)
	}
	if j.EndDate, err = parseTimePtr(endDate); err != nil {
		return nil, fmt.Errorf("asyncexec/sqlite: parse end_date: %w", err)
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("asyncexec/sqlite: parse created_at: %w", err)
	}
	if j.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("asyncexec/sqlite: parse updated_at: %w", err)
	}
	return &j, nil
}

func collectJobs(rows *sql.Rows) ([]*job.Job, error) {
	defer rows.Close()
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("asyncexec/sqlite: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("asyncexec/sqlite: iterate job rows: %w", err)
	}
	return jobs, nil
}
