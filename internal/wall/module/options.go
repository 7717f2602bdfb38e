package module

import (
	"log/slog"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/clock"
	"github.com/atlanticdynamic/lumenwall/internal/geometry"
	"github.com/atlanticdynamic/lumenwall/internal/wall/network"
	"github.com/atlanticdynamic/lumenwall/internal/wall/sandbox"
	"github.com/atlanticdynamic/lumenwall/internal/wall/surface"
)

type Option func(*RunningModule)

// WithLogHandler sets the handler that receives the instance's logs.
func WithLogHandler(handler slog.Handler) Option {
	return func(m *RunningModule) {
		m.logHandler = handler
	}
}

// WithLoader sets the loader that executes the module source.
func WithLoader(l *sandbox.Loader) Option {
	return func(m *RunningModule) {
		m.loader = l
	}
}

// WithPlaceholder marks the instance as the node's stand-in for missing or
// failed content.
func WithPlaceholder() Option {
	return func(m *RunningModule) {
		m.placeholder = true
	}
}

// WithOnVisible sets a callback run as the instance turns Visible, while the
// transition holds the instance lock. fn must not call back into the
// instance's locking methods.
func WithOnVisible(fn func(*RunningModule)) Option {
	return func(m *RunningModule) {
		m.onVisible = fn
	}
}

// WithClock sets the wall clock.
func WithClock(c clock.Clock) Option {
	return func(m *RunningModule) {
		m.clock = c
	}
}

// WithHub sets the hub used for the instance's network channels.
func WithHub(h *network.Hub) Option {
	return func(m *RunningModule) {
		m.hub = h
	}
}

// WithSurfaces sets the factory for the instance's drawing surface.
func WithSurfaces(f surface.Factory) Option {
	return func(m *RunningModule) {
		m.surfaces = f
	}
}

// WithGeometry sets the wall outline.
func WithGeometry(p geometry.Polygon) Option {
	return func(m *RunningModule) {
		m.geometry = p
	}
}

// WithNodeRect sets the part of the wall this node displays.
func WithNodeRect(r geometry.Rect) Option {
	return func(m *RunningModule) {
		m.nodeRect = r
	}
}

// WithNode names the display node running the instance.
func WithNode(id string) Option {
	return func(m *RunningModule) {
		m.node = id
	}
}

// WithServer controls whether this instance also runs the server behavior.
// Exactly one node per wall should run it.
func WithServer(enabled bool) Option {
	return func(m *RunningModule) {
		m.runServer = enabled
	}
}

// WithSkewTolerance sets how far in the past a deadline may be before it is
// reported as late.
func WithSkewTolerance(d time.Duration) Option {
	return func(m *RunningModule) {
		if d >= 0 {
			m.skew = d
		}
	}
}
