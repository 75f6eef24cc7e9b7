// Package dlq is the administrative view of dead-letter jobs: jobs that
// exhausted their retries and wait, inert, for an operator.
//
// Dead-letter jobs are ordinary job records in the dead letter state, so
// the package stores nothing of its own. [Service] lists and counts them,
// exposes the last exception summary and detail for diagnosis, replays
// them with a fresh retry budget and purges old ones.
//
//	svc := dlq.NewService(mgr, logger)
//
//	entries, _ := svc.List(ctx, dlq.ListOpts{TenantID: "acme", Limit: 50})
//	j, out, err := svc.Replay(ctx, entries[0].JobID, 3)
//	n, _ := svc.Purge(ctx, time.Now().Add(-30*24*time.Hour))
package dlq
