package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
)

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

	_, err := s.db.NewInsert().Model(toJobModel(j)).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return asyncexec.ErrJobAlreadyExists
		}
		return fmt.Errorf("asyncexec/bun: insert job: %w", err)
	}
	return nil
}

// UpdateJob writes every field of j when the stored version equals
// j.Version.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) (job.Outcome, error) {
	m := toJobModel(j)
	m.Version = j.Version + 1
	m.UpdatedAt = time.Now().UTC()

	res, err := s.db.NewUpdate().Model(m).
		ExcludeColumn("id", "created_at").
		Where("id = ?", m.ID).
		Where("version = ?", j.Version).
		Exec(ctx)
	if err != nil {
		return job.Conflict, fmt.Errorf("asyncexec/bun: update job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return job.Conflict, nil
	}
	j.Version = m.Version
	j.UpdatedAt = m.UpdatedAt
	return job.Applied, nil
}

// DeleteJob removes j when the stored version equals j.Version.
func (s *Store) DeleteJob(ctx context.Context, j *job.Job) (job.Outcome, error) {
	res, err := s.db.NewDelete().
		TableExpr("asyncexec_jobs").
		Where("id = ?", j.ID.String()).
		Where("version = ?", j.Version).
		Exec(ctx)
	if err != nil {
		return job.Conflict, fmt.Errorf("asyncexec/bun: delete job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return job.Conflict, nil
	}
	return job.Applied, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, asyncexec.ErrJobNotFound
		}
		return nil, fmt.Errorf("asyncexec/bun: get job: %w", err)
	}
	return fromJobModel(m)
}

// FindAcquirableJobs returns due jobs of the category that are unlocked or
// whose lock expired, oldest due date first.
func (s *Store) FindAcquirableJobs(ctx context.Context, category job.Category, now time.Time, limit int) ([]*job.Job, error) {
	now = now.UTC()
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("state = ?", string(category.State())).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("lock_expiration IS NULL").WhereOr("lock_expiration <= ?", now)
		})
	if category == job.CategoryTimer {
		q = q.Where("due_date IS NOT NULL").Where("due_date <= ?", now)
	} else {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("due_date IS NULL").WhereOr("due_date <= ?", now)
		})
	}

	err := q.OrderExpr("due_date ASC NULLS FIRST, created_at ASC, id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("asyncexec/bun: find acquirable jobs: %w", err)
	}
	return fromJobModels(models)
}

// FindExpiredLockJobs returns jobs whose lock expired before now.
func (s *Store) FindExpiredLockJobs(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	var models []jobModel
	err := s.db.NewSelect().Model(&models).
		Where("lock_expiration IS NOT NULL").
		Where("lock_expiration < ?", now.UTC()).
		Order("lock_expiration ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("asyncexec/bun: find expired lock jobs: %w", err)
	}
	return fromJobModels(models)
}

// ListJobs returns jobs matching q ordered by creation time.
func (s *Store) ListJobs(ctx context.Context, q job.Query) ([]*job.Job, error) {
	var models []jobModel
	sel := applyQuery(s.db.NewSelect().Model(&models), q).
		Order("created_at ASC", "id ASC")
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}
	if q.Offset > 0 {
		sel = sel.Offset(q.Offset)
	}

	if err := sel.Scan(ctx); err != nil {
		return nil, fmt.Errorf("asyncexec/bun: list jobs: %w", err)
	}
	return fromJobModels(models)
}

// CountJobs returns the number of jobs matching q.
func (s *Store) CountJobs(ctx context.Context, q job.Query) (int64, error) {
	count, err := applyQuery(s.db.NewSelect().TableExpr("asyncexec_jobs"), q).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("asyncexec/bun: count jobs: %w", err)
	}
	return int64(count), nil
}
