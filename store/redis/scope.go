package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/asyncexec/job"
)

// unlockScript deletes a scope lease only when owner still holds it.
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockScope leases the process instance's exclusive scope to owner. The
// key expires at until, so an expired lease is free for the next SET NX.
func (s *Store) LockScope(ctx context.Context, processInstanceID, owner string, until time.Time) (job.Outcome, error) {
	err := s.client.Do(ctx, "SET", scopeKey(processInstanceID), owner, "NX", "PXAT", until.UnixMilli()).Err()
	if errors.Is(err, goredis.Nil) {
		return job.Conflict, nil
	}
	if err != nil {
		return job.Conflict, fmt.Errorf("asyncexec/redis: lock scope: %w", err)
	}
	return job.Applied, nil
}

// UnlockScope releases a lease held by owner.
func (s *Store) UnlockScope(ctx context.Context, processInstanceID, owner string) error {
	if err := unlockScript.Run(ctx, s.client, []string{scopeKey(processInstanceID)}, owner).Err(); err != nil {
		return fmt.Errorf("asyncexec/redis: unlock scope: %w", err)
	}
	return nil
}
