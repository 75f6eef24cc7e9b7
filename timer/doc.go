// Package timer computes due dates for timer jobs.
//
// A [Definition] is one of three kinds:
//
//   - Date: an absolute RFC 3339 timestamp ("2026-03-01T09:00:00Z").
//   - Duration: an ISO 8601 duration ("PT15M", "P1DT2H") or a Go
//     duration ("90s"), counted from creation.
//   - Cycle: a repeating schedule, either ISO 8601 repeat notation
//     ("R3/PT10M", "R/2026-01-01T00:00:00Z/P1D") or a cron expression
//     ("0 9 * * 1-5", "@every 30s").
//
// Cycles produce repeating timer jobs. The job stores the cycle expression
// in Repeat and the remaining iteration count in MaxIterations; completing
// one iteration schedules the next through [Next] until the count or the
// end date runs out.
package timer
