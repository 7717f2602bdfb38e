// Package sandbox executes module source in isolated execution contexts and
// hands back the server and client behaviors the module registered.
//
// A Loader owns a set of runtimes keyed by name. Each Load runs the source
// in a fresh interpreter bound to a caller-chosen context id; nothing is
// shared between contexts, so two instances of the same module (an outgoing
// and an incoming one during a cross-fade) never see each other's globals.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/atlanticdynamic/lumenwall/internal/wall/behavior"
)

// Loaded is what a runtime produces from one execution of module source.
type Loaded struct {
	Server behavior.ServerFactory
	Client behavior.ClientFactory
	// Close releases the interpreter. May be nil.
	Close func() error
}

// Runtime executes module source in a new interpreter.
type Runtime interface {
	Name() string
	// Load runs code for the context id. Returning an error wrapping
	// ErrMalformedModule reports a contract violation; any other error is a
	// load failure.
	Load(ctx context.Context, id string, code string) (*Loaded, error)
}

// Context is a live execution context.
type Context struct {
	id      string
	runtime string
	server  behavior.ServerFactory
	client  behavior.ClientFactory

	closeFn   func() error
	closeOnce sync.Once
	closeErr  error
}

func (c *Context) ID() string                     { return c.id }
func (c *Context) Runtime() string                { return c.runtime }
func (c *Context) Server() behavior.ServerFactory { return c.server }
func (c *Context) Client() behavior.ClientFactory { return c.client }

func (c *Context) close() error {
	c.closeOnce.Do(func() {
		if c.closeFn != nil {
			c.closeErr = c.closeFn()
		}
	})
	return c.closeErr
}

// Loader tracks runtimes and live execution contexts.
type Loader struct {
	logger *slog.Logger

	mu       sync.Mutex
	runtimes map[string]Runtime
	live     map[string]*Context
}

// New creates a loader with the given options.
func New(opts ...Option) *Loader {
	l := &Loader{
		logger:   slog.Default().WithGroup("sandbox.Loader"),
		runtimes: make(map[string]Runtime),
		live:     make(map[string]*Context),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register adds or replaces a runtime.
func (l *Loader) Register(rt Runtime) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runtimes[rt.Name()] = rt
}

// Runtimes lists registered runtime names.
func (l *Loader) Runtimes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.runtimes))
	for name := range l.runtimes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load executes src in a new context named id. The id must not belong to a
// live context. On any failure the context is torn down before returning.
func (l *Loader) Load(ctx context.Context, src Source, id string) (*Context, error) {
	if id == "" {
		return nil, ErrEmptyContextID
	}

	l.mu.Lock()
	if _, exists := l.live[id]; exists {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrContextInUse, id)
	}
	rt, ok := l.runtimes[src.RuntimeName()]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %w: %s", ErrLoadFailure, ErrUnknownRuntime, src.RuntimeName())
	}
	// reserve the id while the source runs
	placeholder := &Context{id: id, runtime: rt.Name()}
	l.live[id] = placeholder
	l.mu.Unlock()

	execCtx, err := l.execute(ctx, rt, src, id)
	if err != nil {
		l.mu.Lock()
		delete(l.live, id)
		l.mu.Unlock()
		l.logger.Warn("Module load failed", "context", id, "runtime", rt.Name(), "error", err)
		return nil, err
	}

	l.mu.Lock()
	l.live[id] = execCtx
	l.mu.Unlock()
	l.logger.Debug("Module loaded", "context", id, "runtime", rt.Name())
	return execCtx, nil
}

func (l *Loader) execute(ctx context.Context, rt Runtime, src Source, id string) (_ *Context, err error) {
	code, err := src.Resolve()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailure, err)
	}

	var loaded *Loaded
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrLoadFailure, r)
		}
		if err != nil && loaded != nil && loaded.Close != nil {
			if closeErr := loaded.Close(); closeErr != nil {
				l.logger.Warn("Failed to close context after load failure", "context", id, "error", closeErr)
			}
		}
	}()

	loaded, err = rt.Load(ctx, id, code)
	if err != nil {
		if errors.Is(err, ErrMalformedModule) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrLoadFailure, err)
	}
	if loaded == nil || loaded.Client == nil {
		return nil, fmt.Errorf("%w: no client behavior registered", ErrMalformedModule)
	}

	server := loaded.Server
	if server == nil {
		server = behavior.NoServer
	}
	return &Context{
		id:      id,
		runtime: rt.Name(),
		server:  server,
		client:  loaded.Client,
		closeFn: loaded.Close,
	}, nil
}

// Unload tears down the context. Unknown or already unloaded ids are not an
// error.
func (l *Loader) Unload(id string) error {
	l.mu.Lock()
	c, ok := l.live[id]
	delete(l.live, id)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if err := c.close(); err != nil {
		return fmt.Errorf("failed to close context %s: %w", id, err)
	}
	l.logger.Debug("Module unloaded", "context", id)
	return nil
}

// Live lists the ids of live contexts.
func (l *Loader) Live() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.live))
	for id := range l.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
