package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

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

	if _, err := s.jobs().InsertOne(ctx, toJobModel(j)); err != nil {
		if isDuplicateKey(err) {
			return asyncexec.ErrJobAlreadyExists
		}
		return fmt.Errorf("asyncexec/mongo: insert job: %w", err)
	}
	return nil
}

// UpdateJob replaces the document when its version equals j.Version.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) (job.Outcome, error) {
	m := toJobModel(j)
	m.Version = j.Version + 1
	m.UpdatedAt = time.Now().UTC()

	res, err := s.jobs().ReplaceOne(ctx, bson.M{"_id": m.ID, "version": j.Version}, m)
	if err != nil {
		return job.Conflict, fmt.Errorf("asyncexec/mongo: update job: %w", err)
	}
	if res.MatchedCount == 0 {
		return job.Conflict, nil
	}
	j.Version = m.Version
	j.UpdatedAt = m.UpdatedAt
	return job.Applied, nil
}

// DeleteJob removes the document when its version equals j.Version.
func (s *Store) DeleteJob(ctx context.Context, j *job.Job) (job.Outcome, error) {
	res, err := s.jobs().DeleteOne(ctx, bson.M{"_id": j.ID.String(), "version": j.Version})
	if err != nil {
		return job.Conflict, fmt.Errorf("asyncexec/mongo: delete job: %w", err)
	}
	if res.DeletedCount == 0 {
		return job.Conflict, nil
	}
	return job.Applied, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.jobs().FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, asyncexec.ErrJobNotFound
		}
		return nil, fmt.Errorf("asyncexec/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

// FindAcquirableJobs returns due jobs of the category that are unlocked or
// whose lock expired, oldest due date first.
func (s *Store) FindAcquirableJobs(ctx context.Context, category job.Category, now time.Time, limit int) ([]*job.Job, error) {
	now = now.UTC()
	unlocked := bson.M{"$or": bson.A{
		bson.M{"lock_expiration": nil},
		bson.M{"lock_expiration": bson.M{"$lte": now}},
	}}
	var due bson.M
	if category == job.CategoryTimer {
		due = bson.M{"due_date": bson.M{"$ne": nil, "$lte": now}}
	} else {
		due = bson.M{"$or": bson.A{
			bson.M{"due_date": nil},
			bson.M{"due_date": bson.M{"$lte": now}},
		}}
	}
	filter := bson.M{
		"state": string(category.State()),
		"$and":  bson.A{unlocked, due},
	}

	opts := options.Find().
		SetSort(bson.D{
			{Key: "due_date", Value: 1},
			{Key: "created_at", Value: 1},
			{Key: "_id", Value: 1},
		}).
		SetLimit(int64(limit))
	jobs, err := s.find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("asyncexec/mongo: find acquirable jobs: %w", err)
	}
	return jobs, nil
}

// FindExpiredLockJobs returns jobs whose lock expired before now.
func (s *Store) FindExpiredLockJobs(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	filter := bson.M{"lock_expiration": bson.M{"$ne": nil, "$lt": now.UTC()}}
	opts := options.Find().
		SetSort(bson.D{{Key: "lock_expiration", Value: 1}}).
		SetLimit(int64(limit))
	jobs, err := s.find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("asyncexec/mongo: find expired lock jobs: %w", err)
	}
	return jobs, nil
}

// ListJobs returns jobs matching q ordered by creation time.
func (s *Store) ListJobs(ctx context.Context, q job.Query) ([]*job.Job, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	if q.Limit > 0 {
		opts = opts.SetLimit(int64(q.Limit))
	}
	if q.Offset > 0 {
		opts = opts.SetSkip(int64(q.Offset))
	}

	jobs, err := s.find(ctx, queryFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("asyncexec/mongo: list jobs: %w", err)
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching q.
func (s *Store) CountJobs(ctx context.Context, q job.Query) (int64, error) {
	n, err := s.jobs().CountDocuments(ctx, queryFilter(q))
	if err != nil {
		return 0, fmt.Errorf("asyncexec/mongo: count jobs: %w", err)
	}
	return n, nil
}

func queryFilter(q job.Query) bson.M {
	filter := bson.M{}
	if q.State != "" {
		filter["state"] = string(q.State)
	}
	if q.ProcessInstanceID != "" {
		filter["process_instance_id"] = q.ProcessInstanceID
	}
	if q.ExecutionID != "" {
		filter["execution_id"] = q.ExecutionID
	}
	if q.TenantID != "" {
		filter["tenant_id"] = q.TenantID
	}
	if q.HandlerType != "" {
		filter["handler_type"] = q.HandlerType
	}
	if q.DueBefore != nil || q.DueAfter != nil {
		due := bson.M{"$ne": nil}
		if q.DueBefore != nil {
			due["$lte"] = q.DueBefore.UTC()
		}
		if q.DueAfter != nil {
			due["$gt"] = q.DueAfter.UTC()
		}
		filter["due_date"] = due
	}
	return filter
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*job.Job, error) {
	cursor, err := s.jobs().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, err
	}

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

