package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/asyncexec/job"
)

// LockScope leases the process instance's exclusive scope to owner. The
// upsert only overwrites a lease that has already expired.
func (s *Store) LockScope(ctx context.Context, processInstanceID, owner string, until time.Time) (job.Outcome, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO asyncexec_scope_locks (process_instance_id, owner, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (process_instance_id) DO UPDATE
			SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
			WHERE asyncexec_scope_locks.expires_at <= NOW()`,
		processInstanceID, owner, until.UTC(),
	)
	if err != nil {
		return job.Conflict, fmt.Errorf("asyncexec/postgres: lock scope: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return job.Conflict, nil
	}
	return job.Applied, nil
}

// UnlockScope releases a lease held by owner.
func (s *Store) UnlockScope(ctx context.Context, processInstanceID, owner string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM asyncexec_scope_locks WHERE process_instance_id = $1 AND owner = $2`,
		processInstanceID, owner,
	)
	if err != nil {
		return fmt.Errorf("asyncexec/postgres: unlock scope: %w", err)
	}
	return nil
}
