package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
)

// InsertJob stores a new job and adds it to the indexes.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if j.Version == 0 {
		j.Version = 1
	}

	data, err := encodeJob(j)
	if err != nil {
		return fmt.Errorf("asyncexec/redis: encode job: %w", err)
	}

	jID := j.ID.String()
	key := jobKey(jID)
	err = s.client.Watch(ctx, func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return asyncexec.ErrJobAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, jobIDsKey, jID)
			index(ctx, pipe, nil, j)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, asyncexec.ErrJobAlreadyExists), errors.Is(err, goredis.TxFailedErr):
		return asyncexec.ErrJobAlreadyExists
	default:
		return fmt.Errorf("asyncexec/redis: insert job: %w", err)
	}
}

// UpdateJob writes every field of j when the stored version equals
// j.Version.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) (job.Outcome, error) {
	next := j.Clone()
	next.Version = j.Version + 1
	next.UpdatedAt = time.Now().UTC()
	data, err := encodeJob(next)
	if err != nil {
		return job.Conflict, fmt.Errorf("asyncexec/redis: encode job: %w", err)
	}

	key := jobKey(j.ID.String())
	out := job.Conflict
	err = s.client.Watch(ctx, func(tx *goredis.Tx) error {
		stored, err := s.getGuarded(ctx, tx, key, j.Version)
		if err != nil || stored == nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			index(ctx, pipe, stored, next)
			return nil
		})
		if err == nil {
			out = job.Applied
		}
		return err
	}, key)

	if errors.Is(err, goredis.TxFailedErr) {
		return job.Conflict, nil
	}
	if err != nil {
		return job.Conflict, fmt.Errorf("asyncexec/redis: update job: %w", err)
	}
	if out == job.Applied {
		j.Version = next.Version
		j.UpdatedAt = next.UpdatedAt
	}
	return out, nil
}

// DeleteJob removes j when the stored version equals j.Version.
func (s *Store) DeleteJob(ctx context.Context, j *job.Job) (job.Outcome, error) {
	jID := j.ID.String()
	key := jobKey(jID)
	out := job.Conflict
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		stored, err := s.getGuarded(ctx, tx, key, j.Version)
		if err != nil || stored == nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, jobIDsKey, jID)
			pipe.ZRem(ctx, stateKey(string(stored.State)), jID)
			pipe.ZRem(ctx, locksKey, jID)
			return nil
		})
		if err == nil {
			out = job.Applied
		}
		return err
	}, key)

	if errors.Is(err, goredis.TxFailedErr) {
		return job.Conflict, nil
	}
	if err != nil {
		return job.Conflict, fmt.Errorf("asyncexec/redis: delete job: %w", err)
	}
	return out, nil
}

// getGuarded reads the watched record and returns it only when its version
// equals want. A missing or newer record yields nil without error.
func (s *Store) getGuarded(ctx context.Context, tx *goredis.Tx, key string, want int64) (*job.Job, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	stored, err := decodeJob(raw)
	if err != nil {
		return nil, err
	}
	if stored.Version != want {
		return nil, nil
	}
	return stored, nil
}

// index moves the job's index entries from prev (nil on insert) to next.
func index(ctx context.Context, pipe goredis.Pipeliner, prev, next *job.Job) {
	jID := next.ID.String()
	if prev != nil && prev.State != next.State {
		pipe.ZRem(ctx, stateKey(string(prev.State)), jID)
	}
	pipe.ZAdd(ctx, stateKey(string(next.State)), goredis.Z{Score: dueScore(next), Member: jID})

	if next.LockExpiration != nil {
		pipe.ZAdd(ctx, locksKey, goredis.Z{Score: float64(next.LockExpiration.UnixMilli()), Member: jID})
	} else if prev != nil && prev.LockExpiration != nil {
		pipe.ZRem(ctx, locksKey, jID)
	}
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	raw, err := s.client.Get(ctx, jobKey(jobID.String())).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, asyncexec.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("asyncexec/redis: get job: %w", err)
	}
	return decodeJob(raw)
}

// FindAcquirableJobs returns due jobs of the category that are unlocked or
// whose lock expired, oldest due date first. The state index is read in
// score order; exact due and lock checks run on the decoded records.
func (s *Store) FindAcquirableJobs(ctx context.Context, category job.Category, now time.Time, limit int) ([]*job.Job, error) {
	out, err := s.scanScores(ctx, stateKey(string(category.State())), now, limit, func(j *job.Job) bool {
		return job.Acquirable(j, category, now)
	})
	if err != nil {
		return nil, fmt.Errorf("asyncexec/redis: find acquirable jobs: %w", err)
	}
	sort.Slice(out, func(a, b int) bool {
		da, db := job.DueKey(out[a]), job.DueKey(out[b])
		if !da.Equal(db) {
			return da.Before(db)
		}
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID.String() < out[b].ID.String()
	})
	return job.Query{Limit: limit}.Page(out), nil
}

// FindExpiredLockJobs returns jobs whose lock expired before now.
func (s *Store) FindExpiredLockJobs(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	out, err := s.scanScores(ctx, locksKey, now, limit, func(j *job.Job) bool {
		return j.LockExpired(now)
	})
	if err != nil {
		return nil, fmt.Errorf("asyncexec/redis: find expired lock jobs: %w", err)
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].LockExpiration.Before(*out[b].LockExpiration)
	})
	return job.Query{Limit: limit}.Page(out), nil
}

// scanScores pages through a Sorted Set up to now in Unix milliseconds and
// keeps the jobs accepted by keep, stopping once limit jobs are kept.
func (s *Store) scanScores(ctx context.Context, key string, now time.Time, limit int, keep func(*job.Job) bool) ([]*job.Job, error) {
	maxScore := strconv.FormatInt(now.UnixMilli(), 10)
	var out []*job.Job
	for offset := int64(0); ; offset += int64(s.batch) {
		ids, err := s.client.ZRangeByScore(ctx, key, &goredis.ZRangeBy{
			Min:    "-inf",
			Max:    maxScore,
			Offset: offset,
			Count:  int64(s.batch),
		}).Result()
		if err != nil {
			return nil, err
		}

		jobs, err := s.load(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, j := range jobs {
			if keep(j) {
				out = append(out, j)
			}
		}
		if len(ids) < s.batch || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
	}
}

// ListJobs returns jobs matching q ordered by creation time.
func (s *Store) ListJobs(ctx context.Context, q job.Query) ([]*job.Job, error) {
	out, err := s.filter(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("asyncexec/redis: list jobs: %w", err)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID.String() < out[b].ID.String()
	})
	return q.Page(out), nil
}

// CountJobs returns the number of jobs matching q.
func (s *Store) CountJobs(ctx context.Context, q job.Query) (int64, error) {
	out, err := s.filter(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("asyncexec/redis: count jobs: %w", err)
	}
	return int64(len(out)), nil
}

// filter loads the candidate set for q, narrowed by the state index when
// q names a state, and applies the remaining filters in memory.
func (s *Store) filter(ctx context.Context, q job.Query) ([]*job.Job, error) {
	var (
		ids []string
		err error
	)
	if q.State != "" {
		ids, err = s.client.ZRange(ctx, stateKey(string(q.State)), 0, -1).Result()
	} else {
		ids, err = s.client.SMembers(ctx, jobIDsKey).Result()
	}
	if err != nil {
		return nil, err
	}

	var out []*job.Job
	for start := 0; start < len(ids); start += s.batch {
		end := min(start+s.batch, len(ids))
		jobs, err := s.load(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		for _, j := range jobs {
			if q.Matches(j) {
				out = append(out, j)
			}
		}
	}
	return out, nil
}

// load fetches and decodes jobs by ID, skipping IDs deleted since they
// were read from an index.
func (s *Store) load(ctx context.Context, ids []string) ([]*job.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, jID := range ids {
		keys[i] = jobKey(jID)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*job.Job, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		j, err := decodeJob([]byte(raw))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
