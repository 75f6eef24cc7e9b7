// Package queue throttles job execution per handler type and per tenant.
//
// The worker pool asks the [Manager] for a slot after a job was claimed and
// before it runs. A denied job is released back to acquisition and picked
// up again by a later cycle, on this node or another.
//
// # Handler Limits
//
//	queue.Limit{
//	    HandlerType:    "send-email",
//	    MaxConcurrency: 5,  // at most 5 concurrent email jobs on this node
//	    RateLimit:      10, // at most 10 starts per second
//	    RateBurst:      20,
//	}
//
// # Tenant Limits
//
// A [TenantLimit] caps one tenant (job.TenantID). An empty HandlerType
// applies the limit across all handler types of the tenant.
//
// Limits use a token-bucket rate limiter (golang.org/x/time/rate) and an
// active-count gate for concurrency. Handler types and tenants without a
// limit are never throttled.
package queue
