// Package behavior defines the two halves a module provides: a server
// behavior that runs once per wall and a client behavior that runs on every
// display node. Module runtimes adapt their code to these interfaces.
package behavior

import (
	"context"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/wall/capability"
	"github.com/atlanticdynamic/lumenwall/internal/wall/surface"
)

// Client is the per-node half of a module.
type Client interface {
	// WillBeShownSoon prepares the module to draw into s. It may take a long
	// time; ctx is cancelled when the instance is disposed before it returns.
	WillBeShownSoon(ctx context.Context, s surface.Surface, deadline time.Time) error
	// WillBeHiddenSoon warns that a fade-out is coming.
	WillBeHiddenSoon() error
	BeginFadeIn(deadline time.Time) error
	FinishFadeIn() error
	BeginFadeOut(deadline time.Time) error
	FinishFadeOut() error
	// Draw renders one frame. t is the wall time in milliseconds and delta
	// the milliseconds since the previous frame.
	Draw(t, delta float64) error
}

// Server is the per-wall half of a module.
type Server interface {
	Tick(t, delta float64) error
	Dispose() error
}

// ClientFactory builds a client behavior for one instance.
type ClientFactory func(config map[string]any, services capability.Locator) (Client, error)

// ServerFactory builds a server behavior for one instance.
type ServerFactory func(config map[string]any, services capability.Locator) (Server, error)

// BaseClient implements every client hook as a no-op. Embed it to override
// only the hooks a module cares about.
type BaseClient struct{}

func (BaseClient) WillBeShownSoon(context.Context, surface.Surface, time.Time) error { return nil }
func (BaseClient) WillBeHiddenSoon() error                                         { return nil }
func (BaseClient) BeginFadeIn(time.Time) error                                     { return nil }
func (BaseClient) FinishFadeIn() error                                             { return nil }
func (BaseClient) BeginFadeOut(time.Time) error                                    { return nil }
func (BaseClient) FinishFadeOut() error                                            { return nil }
func (BaseClient) Draw(float64, float64) error                                     { return nil }

// BaseServer implements every server hook as a no-op.
type BaseServer struct{}

func (BaseServer) Tick(float64, float64) error { return nil }
func (BaseServer) Dispose() error              { return nil }

var (
	_ Client = BaseClient{}
	_ Server = BaseServer{}
)

// NoServer is the factory used when a module registers no server behavior.
func NoServer(map[string]any, capability.Locator) (Server, error) {
	return BaseServer{}, nil
}
