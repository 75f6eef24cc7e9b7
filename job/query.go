package job

import "time"

// Matches reports whether j satisfies every filter of q. Backends without
// a query language (memory, redis) filter with it.
func (q Query) Matches(j *Job) bool {
	if q.State != "" && j.State != q.State {
		return false
	}
	if q.ProcessInstanceID != "" && j.ProcessInstanceID != q.ProcessInstanceID {
		return false
	}
	if q.ExecutionID != "" && j.ExecutionID != q.ExecutionID {
		return false
	}
	if q.TenantID != "" && j.TenantID != q.TenantID {
		return false
	}
	if q.HandlerType != "" && j.HandlerType != q.HandlerType {
		return false
	}
	if q.DueBefore != nil && (j.DueDate == nil || j.DueDate.After(*q.DueBefore)) {
		return false
	}
	if q.DueAfter != nil && (j.DueDate == nil || !j.DueDate.After(*q.DueAfter)) {
		return false
	}
	return true
}

// Page applies q.Offset and q.Limit to an already ordered slice.
func (q Query) Page(jobs []*Job) []*Job {
	if q.Offset > 0 {
		if q.Offset >= len(jobs) {
			return nil
		}
		jobs = jobs[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(jobs) {
		jobs = jobs[:q.Limit]
	}
	return jobs
}

// Acquirable reports whether j is eligible for acquisition in category c
// at now: right state, due, and unlocked or with an expired lock.
func Acquirable(j *Job, c Category, now time.Time) bool {
	if j.State != c.State() {
		return false
	}
	if c == CategoryTimer && j.DueDate == nil {
		return false
	}
	if !j.IsDue(now) {
		return false
	}
	return !j.IsLocked(now)
}

// DueKey orders acquisition candidates: jobs without a due date first,
// then by due date, then by creation time.
func DueKey(j *Job) time.Time {
	if j.DueDate == nil {
		return time.Time{}
	}
	return *j.DueDate
}
