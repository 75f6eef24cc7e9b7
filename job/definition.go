package job

import "context"

// Definition is a typed handler for one handler type. T is the handler
// configuration type and must be JSON-serializable.
type Definition[T any] struct {
	// Type is the handler type this definition serves.
	Type string

	// Handler runs the job. Returning an error counts as a failed attempt.
	Handler func(ctx context.Context, j *Job, config T) error
}

// NewDefinition creates a typed handler definition.
func NewDefinition[T any](handlerType string, handler func(ctx context.Context, j *Job, config T) error) *Definition[T] {
	return &Definition[T]{
		Type:    handlerType,
		Handler: handler,
	}
}
