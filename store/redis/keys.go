package redis

// Redis key naming conventions. All keys are prefixed with "asyncexec:" to
// avoid collisions.

const keyPrefix = "asyncexec:"

// jobKey returns the key holding an encoded job: asyncexec:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// stateKey returns the Sorted Set of jobs in a state, scored by due date
// in Unix milliseconds (0 when the job has none): asyncexec:state:{state}
func stateKey(state string) string { return keyPrefix + "state:" + state }

// locksKey is the Sorted Set of locked jobs scored by lock expiration in
// Unix milliseconds.
const locksKey = keyPrefix + "locks"

// scopeKey returns the key of an exclusive scope lease:
// asyncexec:scope:{processInstanceID}
func scopeKey(processInstanceID string) string { return keyPrefix + "scope:" + processInstanceID }

// schemaKey records the key layout version written by Migrate.
const schemaKey = keyPrefix + "schema"

const schemaVersion = "1"
