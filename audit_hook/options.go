package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithActions records only the listed actions. Unknown names are ignored.
func WithActions(actions ...string) Option {
	return func(e *Extension) {
		e.actions = set(actions)
	}
}

// WithHandlerTypes records events only for jobs whose HandlerType is one
// of types.
func WithHandlerTypes(types ...string) Option {
	return func(e *Extension) {
		e.handlerTypes = set(types)
	}
}

// WithMinSeverity drops events below severity. Order is info, warning,
// critical; an unknown value records everything.
func WithMinSeverity(severity string) Option {
	return func(e *Extension) { e.minSeverity = severityRank[severity] }
}

// WithLogger sets the logger used to report recorder failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}

var severityRank = map[string]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityCritical: 2,
}

func set(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}
