package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/asyncexec/job"
)

// LockScope leases the process instance's exclusive scope to owner. The
// upsert matches only an expired lease; a live one makes the insert fail
// on _id, which is reported as a conflict.
func (s *Store) LockScope(ctx context.Context, processInstanceID, owner string, until time.Time) (job.Outcome, error) {
	filter := bson.M{
		"_id":        processInstanceID,
		"expires_at": bson.M{"$lte": time.Now().UTC()},
	}
	update := bson.M{"$set": bson.M{
		"owner":      owner,
		"expires_at": until.UTC(),
	}}

	_, err := s.db.Collection(colScopeLocks).UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		if isDuplicateKey(err) {
			return job.Conflict, nil
		}
		return job.Conflict, fmt.Errorf("asyncexec/mongo: lock scope: %w", err)
	}
	return job.Applied, nil
}

// UnlockScope releases a lease held by owner.
func (s *Store) UnlockScope(ctx context.Context, processInstanceID, owner string) error {
	_, err := s.db.Collection(colScopeLocks).DeleteOne(ctx, bson.M{"_id": processInstanceID, "owner": owner})
	if err != nil {
		return fmt.Errorf("asyncexec/mongo: unlock scope: %w", err)
	}
	return nil
}
