package compiler

import "log/slog"

// Option configures a Compiler.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	history int
	trace   *Trace
}

func defaultOptions() options {
	return options{history: defaultHistory}
}

// WithLogger sets the logger used by the compiler. By default the
// package-wide vecsync logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithHistory sets how many emitted generations can still be acknowledged.
// Acknowledging a generation that fell out of the history is an error and
// the consumer has to resync. Values below 1 mean one.
func WithHistory(n int) Option {
	return func(o *options) {
		o.history = max(n, 1)
	}
}

// WithTrace makes the compiler record phase timings into t instead of a
// private Trace.
func WithTrace(t *Trace) Option {
	return func(o *options) {
		o.trace = t
	}
}
