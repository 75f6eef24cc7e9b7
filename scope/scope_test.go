package scope_test

import (
	"context"
	"testing"

	"github.com/xraph/asyncexec/scope"
)

func TestWithAndFrom(t *testing.T) {
	t.Parallel()
	ctx := scope.With(context.Background(), scope.Scope{TenantID: "acme", ProcessInstanceID: "p1"})

	s, ok := scope.From(ctx)
	if !ok || s.TenantID != "acme" || s.ProcessInstanceID != "p1" {
		t.Fatalf("From = %+v, %v", s, ok)
	}

	ctx = scope.WithTenant(ctx, "globex")
	s, _ = scope.From(ctx)
	if s.TenantID != "globex" || s.ProcessInstanceID != "p1" {
		t.Errorf("WithTenant lost identity: %+v", s)
	}
}

func TestZeroScopeIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	if scope.With(ctx, scope.Scope{}) != ctx {
		t.Error("zero scope changed the context")
	}
	if _, ok := scope.From(ctx); ok {
		t.Error("empty context reported a scope")
	}
	if scope.Tenant(ctx) != "" {
		t.Error("empty context reported a tenant")
	}
}
