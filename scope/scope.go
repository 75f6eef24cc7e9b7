// Package scope carries the identity of the execution a job belongs to
// (tenant, process instance, execution) through context.Context, so
// handlers and nested job creation see the same identity as the code that
// created the job.
package scope

import "context"

// Scope identifies the execution context of a job.
type Scope struct {
	TenantID          string
	ProcessInstanceID string
	ExecutionID       string
}

// IsZero reports whether no identity is set.
func (s Scope) IsZero() bool {
	return s == Scope{}
}

type ctxKey struct{}

// With attaches s to ctx. A zero scope returns ctx unchanged.
func With(ctx context.Context, s Scope) context.Context {
	if s.IsZero() {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, s)
}

// From returns the scope attached to ctx.
func From(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(ctxKey{}).(Scope)
	return s, ok
}

// WithTenant attaches a tenant, keeping any other identity already in ctx.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	s, _ := From(ctx)
	s.TenantID = tenantID
	return With(ctx, s)
}

// Tenant returns the tenant in ctx, or "".
func Tenant(ctx context.Context) string {
	s, _ := From(ctx)
	return s.TenantID
}
