package dlq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
	"github.com/xraph/asyncexec/manager"
)

// purgeBatch is the page size used while scanning for purgeable entries.
const purgeBatch = 500

// ListOpts filters dead-letter listings.
type ListOpts struct {
	TenantID          string
	ProcessInstanceID string
	HandlerType       string
	Limit             int
	Offset            int
}

func (o ListOpts) query() job.Query {
	return job.Query{
		State:             job.StateDeadLetter,
		TenantID:          o.TenantID,
		ProcessInstanceID: o.ProcessInstanceID,
		HandlerType:       o.HandlerType,
		Limit:             o.Limit,
		Offset:            o.Offset,
	}
}

// Service provides administrative operations over dead-letter jobs.
type Service struct {
	manager *manager.Manager
	logger  *slog.Logger
}

// NewService creates a DLQ service on top of the job manager.
func NewService(m *manager.Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{manager: m, logger: logger}
}

// List returns dead-letter entries ordered by creation time.
func (s *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	jobs, err := s.manager.Store().ListJobs(ctx, opts.query())
	if err != nil {
		return nil, fmt.Errorf("list dead-letter jobs: %w", err)
	}
	entries := make([]*Entry, 0, len(jobs))
	for _, j := range jobs {
		entries = append(entries, entryOf(j))
	}
	return entries, nil
}

// Count returns the number of dead-letter entries matching opts, ignoring
// paging.
func (s *Service) Count(ctx context.Context, opts ListOpts) (int64, error) {
	n, err := s.manager.Store().CountJobs(ctx, opts.query())
	if err != nil {
		return 0, fmt.Errorf("count dead-letter jobs: %w", err)
	}
	return n, nil
}

// Get returns one dead-letter entry. A job in any other state is reported
// as asyncexec.ErrJobNotFound.
func (s *Service) Get(ctx context.Context, jobID id.JobID) (*Entry, error) {
	j, err := s.deadLetter(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return entryOf(j), nil
}

// Replay makes a dead-letter job executable again with a fresh retry
// budget. The job keeps its ID, handler configuration and correlation
// IDs. A conflict means the job was changed concurrently; re-read and try
// again.
func (s *Service) Replay(ctx context.Context, jobID id.JobID, retries int) (*job.Job, job.Outcome, error) {
	j, err := s.deadLetter(ctx, jobID)
	if err != nil {
		return nil, job.Conflict, err
	}
	out, err := s.manager.MoveDeadLetterJobToExecutableJob(ctx, j, retries)
	if err != nil {
		return nil, out, err
	}
	return j, out, nil
}

// ReplayAll replays every entry matching opts and returns how many were
// reactivated. Entries changed concurrently are skipped.
func (s *Service) ReplayAll(ctx context.Context, opts ListOpts, retries int) (int, error) {
	if retries <= 0 {
		return 0, fmt.Errorf("%w: got %d", asyncexec.ErrInvalidRetries, retries)
	}
	jobs, err := s.manager.Store().ListJobs(ctx, opts.query())
	if err != nil {
		return 0, fmt.Errorf("list dead-letter jobs: %w", err)
	}

	replayed := 0
	for _, j := range jobs {
		out, err := s.manager.MoveDeadLetterJobToExecutableJob(ctx, j, retries)
		if err != nil {
			return replayed, err
		}
		if out == job.Applied {
			replayed++
		}
	}
	return replayed, nil
}

// Purge deletes dead-letter jobs that failed before the given time and
// returns how many were removed.
func (s *Service) Purge(ctx context.Context, before time.Time) (int, error) {
	purged, offset := 0, 0
	for {
		page, err := s.manager.Store().ListJobs(ctx, job.Query{
			State:  job.StateDeadLetter,
			Limit:  purgeBatch,
			Offset: offset,
		})
		if err != nil {
			return purged, fmt.Errorf("list dead-letter jobs: %w", err)
		}

		for _, j := range page {
			if !j.UpdatedAt.Before(before) {
				offset++
				continue
			}
			out, err := s.manager.DeleteJob(ctx, j)
			if err != nil {
				return purged, err
			}
			if out == job.Applied {
				purged++
			} else {
				offset++
			}
		}

		if len(page) < purgeBatch {
			break
		}
	}

	if purged > 0 {
		s.logger.Info("purged dead-letter jobs",
			slog.Int("purged", purged),
			slog.Time("before", before),
		)
	}
	return purged, nil
}

func (s *Service) deadLetter(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := s.manager.Store().GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.State != job.StateDeadLetter {
		return nil, fmt.Errorf("%w: %s is %s", asyncexec.ErrJobNotFound, jobID, j.State)
	}
	return j, nil
}
