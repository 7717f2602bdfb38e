package sandbox

import "log/slog"

type Option func(*Loader)

// WithLogHandler sets the log handler for the loader.
func WithLogHandler(handler slog.Handler) Option {
	return func(l *Loader) {
		l.logger = slog.New(handler).WithGroup("sandbox.Loader")
	}
}

// WithRuntime registers a runtime at construction.
func WithRuntime(rt Runtime) Option {
	return func(l *Loader) {
		l.runtimes[rt.Name()] = rt
	}
}
