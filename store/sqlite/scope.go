package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/asyncexec/job"
)

// LockScope leases the process instance's exclusive scope to owner. The
// upsert only overwrites a lease that has already expired.
func (s *Store) LockScope(ctx context.Context, processInstanceID, owner string, until time.Time) (job.Outcome, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO asyncexec_scope_locks (process_instance_id, owner, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (process_instance_id) DO UPDATE
			SET owner = excluded.owner, expires_at = excluded.expires_at
			WHERE asyncexec_scope_locks.expires_at <= ?`,
		processInstanceID, owner, formatTime(until), formatTime(time.Now()),
	)
	if err != nil {
		return job.Conflict, fmt.Errorf("asyncexec/sqlite: lock scope: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports changes
		return job.Conflict, nil
	}
	return job.Applied, nil
}

// UnlockScope releases a lease held by owner.
func (s *Store) UnlockScope(ctx context.Context, processInstanceID, owner string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM asyncexec_scope_locks WHERE process_instance_id = ? AND owner = ?`,
		processInstanceID, owner,
	)
	if err != nil {
		return fmt.Errorf("asyncexec/sqlite: unlock scope: %w", err)
	}
	return nil
}
