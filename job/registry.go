package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerFunc is a type-erased handler that interprets the job's raw
// handler configuration itself.
type HandlerFunc func(ctx context.Context, j *Job) error

// Registry maps handler types to handler functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a type-erased handler to a handler type.
func (r *Registry) Register(handlerType string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handlerType] = h
}

// RegisterDefinition registers a typed definition. The handler is wrapped
// in a closure that JSON-unmarshals HandlerConfig into T.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	r.Register(def.Type, func(ctx context.Context, j *Job) error {
		var cfg T
		if len(j.HandlerConfig) > 0 {
			if err := json.Unmarshal(j.HandlerConfig, &cfg); err != nil {
				return fmt.Errorf("unmarshal config for handler %q: %w", def.Type, err)
			}
		}
		return def.Handler(ctx, j, cfg)
	})
}

// Get returns the handler for the given type.
func (r *Registry) Get(handlerType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[handlerType]
	return h, ok
}

// Types returns all registered handler types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
