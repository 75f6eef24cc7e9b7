package job

import "time"

// Options configures a job at creation time.
type Options struct {
	// Retries is the retry budget. Zero means the manager's default.
	Retries int

	// HandlerType names the execution-core handler that runs the job.
	HandlerType string

	// HandlerConfig is the opaque configuration passed to the handler.
	HandlerConfig []byte

	// DueDate delays an executable job. Zero means immediately.
	DueDate time.Time
}

// Option is a functional option for job creation.
type Option func(*Options)

// WithRetries sets the retry budget.
func WithRetries(n int) Option {
	return func(o *Options) {
		o.Retries = n
	}
}

// WithHandler sets the handler type and its configuration.
func WithHandler(handlerType string, config []byte) Option {
	return func(o *Options) {
		o.HandlerType = handlerType
		o.HandlerConfig = config
	}
}

// WithDueDate delays execution until t.
func WithDueDate(t time.Time) Option {
	return func(o *Options) {
		o.DueDate = t
	}
}

// Apply folds opts over o.
func (o Options) Apply(opts ...Option) Options {
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
