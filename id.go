package asyncexec

import "github.com/xraph/asyncexec/id"

// JobID identifies a job record.
type JobID = id.JobID

// ParseJobID parses the string form of a JobID.
func ParseJobID(s string) (JobID, error) { return id.ParseJobID(s) }
