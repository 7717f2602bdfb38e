package playlist

import (
	"log/slog"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/clock"
	"github.com/atlanticdynamic/lumenwall/internal/geometry"
)

type Option func(*Runner)

// WithLogHandler sets a custom slog handler for the Runner instance.
func WithLogHandler(handler slog.Handler) Option {
	return func(r *Runner) {
		if handler != nil {
			r.logger = slog.New(handler).WithGroup("playlist.Runner")
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithGeometry sets the wall polygon sent with every assignment.
func WithGeometry(p geometry.Polygon) Option {
	return func(r *Runner) {
		r.geometry = p
	}
}

// WithLeadTime sets how far ahead of its deadline an assignment is sent.
func WithLeadTime(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.leadTime = d
		}
	}
}

// WithDefaultDuration is used for entries without a duration.
func WithDefaultDuration(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.defaultDuration = d
		}
	}
}

// WithPublishedLimit sets how many recent identities Published keeps.
func WithPublishedLimit(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.publishedLimit = n
		}
	}
}

func WithShuffle(enabled bool) Option {
	return func(r *Runner) {
		r.shuffle = enabled
	}
}
