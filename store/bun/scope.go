package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/asyncexec/job"
)

// LockScope leases the process instance's exclusive scope to owner. The
// upsert only overwrites a lease that has already expired.
func (s *Store) LockScope(ctx context.Context, processInstanceID, owner string, until time.Time) (job.Outcome, error) {
	m := &scopeLockModel{
		ProcessInstanceID: processInstanceID,
		Owner:             owner,
		ExpiresAt:         until.UTC(),
	}
	res, err := s.db.NewInsert().Model(m).
		On("CONFLICT (process_instance_id) DO UPDATE").
		Set("owner = EXCLUDED.owner").
		Set("expires_at = EXCLUDED.expires_at").
		Where("?TableAlias.expires_at <= NOW()").
		Exec(ctx)
	if err != nil {
		return job.Conflict, fmt.Errorf("asyncexec/bun: lock scope: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return job.Conflict, nil
	}
	return job.Applied, nil
}

// UnlockScope releases a lease held by owner.
func (s *Store) UnlockScope(ctx context.Context, processInstanceID, owner string) error {
	_, err := s.db.NewDelete().
		TableExpr("asyncexec_scope_locks").
		Where("process_instance_id = ?", processInstanceID).
		Where("owner = ?", owner).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("asyncexec/bun: unlock scope: %w", err)
	}
	return nil
}
