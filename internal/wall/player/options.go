package player

import (
	"log/slog"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/clock"
	"github.com/atlanticdynamic/lumenwall/internal/geometry"
	"github.com/atlanticdynamic/lumenwall/internal/wall/monitor"
	"github.com/atlanticdynamic/lumenwall/internal/wall/network"
	"github.com/atlanticdynamic/lumenwall/internal/wall/sandbox"
	"github.com/atlanticdynamic/lumenwall/internal/wall/surface"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogHandler sets a custom slog handler for the Runner and the modules
// it plays.
func WithLogHandler(handler slog.Handler) Option {
	return func(r *Runner) {
		if handler != nil {
			r.logHandler = handler
		}
	}
}

// WithNode names this display node and the part of the wall it shows.
func WithNode(id string, rect geometry.Rect) Option {
	return func(r *Runner) {
		r.node = id
		r.nodeRect = rect
	}
}

// WithGeometry sets the wall polygon used when an assignment carries none.
func WithGeometry(p geometry.Polygon) Option {
	return func(r *Runner) {
		r.geometry = p
	}
}

// WithLoader sets the sandbox loader. Without one the Runner builds a loader
// with the lua and native runtimes.
func WithLoader(l *sandbox.Loader) Option {
	return func(r *Runner) {
		r.loader = l
	}
}

func WithClock(c clock.Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

func WithHub(h *network.Hub) Option {
	return func(r *Runner) {
		r.hub = h
	}
}

func WithSurfaces(f surface.Factory) Option {
	return func(r *Runner) {
		r.surfaces = f
	}
}

// WithServer controls whether modules played here also run their server
// behavior.
func WithServer(enabled bool) Option {
	return func(r *Runner) {
		r.runServer = enabled
	}
}

// WithSink sets where playback snapshots go. The sink is called from a
// separate goroutine and never blocks playback.
func WithSink(s monitor.Sink) Option {
	return func(r *Runner) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithTickInterval sets how often the visible module is ticked.
func WithTickInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.tickInterval = d
		}
	}
}

// WithSnapshotInterval sets how often an unchanged snapshot is republished.
func WithSnapshotInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.snapshotInterval = d
		}
	}
}

// WithSkewTolerance is passed to every module instance.
func WithSkewTolerance(d time.Duration) Option {
	return func(r *Runner) {
		r.skew = d
	}
}
