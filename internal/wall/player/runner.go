// Package player is the playback scheduler of one display node. It holds the
// module on screen, prepares the next one when an assignment arrives and
// cross-fades between them at the assignment deadline.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/clock"
	"github.com/atlanticdynamic/lumenwall/internal/geometry"
	"github.com/atlanticdynamic/lumenwall/internal/server/finitestate"
	"github.com/atlanticdynamic/lumenwall/internal/wall/module"
	"github.com/atlanticdynamic/lumenwall/internal/wall/monitor"
	"github.com/atlanticdynamic/lumenwall/internal/wall/network"
	"github.com/atlanticdynamic/lumenwall/internal/wall/sandbox"
	"github.com/atlanticdynamic/lumenwall/internal/wall/sandbox/natives"
	"github.com/atlanticdynamic/lumenwall/internal/wall/surface"
	"github.com/robbyt/go-supervisor/supervisor"
)

var _ supervisor.Runnable = (*Runner)(nil)

const (
	DefaultTickInterval     = 16 * time.Millisecond
	DefaultSnapshotInterval = time.Second

	// MaxLive is the most instances a node holds at once: the outgoing one
	// and the incoming one.
	MaxLive = 2
)

type assignRequest struct {
	assignment module.Assignment
	reply      chan error
}

type eventKind int

const (
	eventLoaded eventKind = iota
	eventPrepared
	eventRetire
)

type event struct {
	kind eventKind
	inst *module.RunningModule
	err  error
}

// Runner plays modules on one node. Every lifecycle call and tick happens on
// the goroutine running Run; the exported readers only see copies.
type Runner struct {
	node      string
	nodeRect  geometry.Rect
	geometry  geometry.Polygon
	runServer bool
	skew      time.Duration

	loader   *sandbox.Loader
	clock    clock.Clock
	hub      *network.Hub
	surfaces surface.Factory

	tickInterval     time.Duration
	snapshotInterval time.Duration
	sink             monitor.Sink
	async            *monitor.Async

	logHandler slog.Handler
	logger     *slog.Logger
	fsm        finitestate.Machine

	siphon chan assignRequest
	events chan event

	ctxMu     sync.Mutex
	runCtx    context.Context
	runCancel context.CancelFunc

	mu       sync.RWMutex
	current  *module.RunningModule
	incoming *module.RunningModule
	outgoing *module.RunningModule
	active   string
	failures int
	lastErr  error

	// owned by the Run goroutine
	parked       *module.Assignment
	lastDeadline map[string]time.Time
	lastTick     time.Time
	lastSnap     monitor.Snapshot
	lastSnapAt   time.Time
}

// NewRunner creates a player for one node.
func NewRunner(opts ...Option) (*Runner, error) {
	r := &Runner{
		node:             "node",
		runServer:        true,
		skew:             module.DefaultSkewTolerance,
		clock:            clock.Real{},
		tickInterval:     DefaultTickInterval,
		snapshotInterval: DefaultSnapshotInterval,
		sink:             monitor.Nop{},
		logHandler:       slog.Default().Handler(),
		siphon:           make(chan assignRequest),
		events:           make(chan event),
		lastDeadline:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.logger = slog.New(r.logHandler).WithGroup("player.Runner").With("node", r.node)

	if r.hub == nil {
		r.hub = network.NewHub(network.WithLogHandler(r.logHandler))
	}
	if r.loader == nil {
		r.loader = DefaultLoader(r.logHandler)
	}
	if r.surfaces == nil {
		rect := r.nodeRect
		if rect == (geometry.Rect{}) {
			rect = r.geometry.Extents()
		}
		r.surfaces = surface.NewHeadless(rect)
	}
	r.async = monitor.NewAsync(r.sink, 0, r.logger)

	fsm, err := finitestate.New(r.logger.WithGroup("fsm").Handler())
	if err != nil {
		return nil, fmt.Errorf("failed to create state machine: %w", err)
	}
	r.fsm = fsm
	return r, nil
}

// DefaultLoader returns a loader with every runtime and the built-in native
// modules.
func DefaultLoader(handler slog.Handler) *sandbox.Loader {
	native := sandbox.NewNative()
	natives.RegisterAll(native)
	return sandbox.New(
		sandbox.WithLogHandler(handler),
		sandbox.WithRuntime(native),
		sandbox.WithRuntime(sandbox.NewLua(sandbox.WithLuaLogHandler(handler))),
		sandbox.WithRuntime(sandbox.NewRisor(sandbox.WithScriptLogHandler(handler))),
		sandbox.WithRuntime(sandbox.NewStarlark(sandbox.WithScriptLogHandler(handler))),
	)
}

func (r *Runner) String() string {
	return fmt.Sprintf("player.Runner[%s]", r.node)
}

// Hub is the network hub modules on this node talk over.
func (r *Runner) Hub() *network.Hub {
	return r.hub
}

// Run shows the empty module, then plays assignments until ctx is cancelled
// or Stop is called. It returns an error only when the empty module cannot
// be shown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Debug("Starting Runner")

	if err := r.fsm.Transition(finitestate.StatusBooting); err != nil {
		return fmt.Errorf("failed to transition to booting state: %w", err)
	}

	runCtx, runCancel := context.WithCancel(ctx)
	r.ctxMu.Lock()
	r.runCtx, r.runCancel = runCtx, runCancel
	r.ctxMu.Unlock()
	defer runCancel()

	if err := r.boot(); err != nil {
		if stateErr := r.fsm.Transition(finitestate.StatusError); stateErr != nil {
			r.logger.Error("Failed to transition to error state", "error", stateErr)
		}
		r.async.Close()
		return err
	}

	if err := r.fsm.Transition(finitestate.StatusRunning); err != nil {
		return fmt.Errorf("failed to transition to running state: %w", err)
	}

	loopErr := r.loop(runCtx)
	runCancel()

	r.logger.Info("Runner shutting down")
	if r.fsm.GetState() != finitestate.StatusStopping {
		if err := r.fsm.Transition(finitestate.StatusStopping); err != nil {
			r.logger.Error("Failed to transition to stopping state", "error", err)
		}
	}
	r.disposeAll()
	r.async.Close()

	if loopErr != nil {
		if err := r.fsm.Transition(finitestate.StatusError); err != nil {
			r.logger.Error("Failed to transition to error state", "error", err)
		}
		return loopErr
	}
	if err := r.fsm.Transition(finitestate.StatusStopped); err != nil {
		return fmt.Errorf("failed to transition to stopped state: %w", err)
	}
	return nil
}

// Stop ends playback and disposes every live instance.
func (r *Runner) Stop() {
	r.logger.Debug("Stopping Runner")
	if err := r.fsm.Transition(finitestate.StatusStopping); err != nil {
		r.logger.Error("Failed to transition to stopping state", "error", err)
	}
	r.ctxMu.Lock()
	cancel := r.runCancel
	r.ctxMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Assign hands an assignment to the playback loop. It returns once the loop
// has accepted or rejected it; loading happens afterwards.
func (r *Runner) Assign(ctx context.Context, a module.Assignment) error {
	r.ctxMu.Lock()
	runCtx := r.runCtx
	r.ctxMu.Unlock()
	if runCtx == nil || !r.IsRunning() {
		return ErrNotRunning
	}

	req := assignRequest{assignment: a, reply: make(chan error, 1)}
	select {
	case r.siphon <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-runCtx.Done():
		return ErrNotRunning
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// boot makes the empty module visible right away.
func (r *Runner) boot() error {
	inst, err := r.build(module.EmptyDefinition(), r.clock.Now(), r.geometry, module.WithPlaceholder())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPlaceholder, err)
	}
	if err := inst.Load(r.runCtx); err != nil {
		return fmt.Errorf("%w: %w", ErrPlaceholder, err)
	}
	if err := <-inst.WillBeShownSoon(r.runCtx); err != nil {
		_ = inst.Dispose()
		return fmt.Errorf("%w: %w", ErrPlaceholder, err)
	}
	inst.BeginFadeIn(inst.Deadline())

	r.mu.Lock()
	r.current = inst
	r.mu.Unlock()
	r.publish(r.clock.Now())
	return nil
}

func (r *Runner) loop(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-r.siphon:
			if err := r.handleAssignment(ctx, req); err != nil {
				return err
			}
		case ev := <-r.events:
			if err := r.handleEvent(ctx, ev); err != nil {
				return err
			}
		case now := <-ticker.C():
			r.tick(now)
			continue
		}
		r.publish(r.clock.Now())
	}
}

// handleAssignment answers the caller through req.reply. The returned error
// is fatal and ends playback.
func (r *Runner) handleAssignment(ctx context.Context, req assignRequest) error {
	a := req.assignment
	if err := a.Definition.Validate(); err != nil {
		req.reply <- err
		return nil
	}
	name := a.Definition.Name
	if last, ok := r.lastDeadline[name]; ok && !a.Deadline.After(last) {
		req.reply <- fmt.Errorf("%w: %s at %d, previous %d",
			ErrDeadlineRewind, name, a.Deadline.UnixMilli(), last.UnixMilli())
		return nil
	}
	r.lastDeadline[name] = a.Deadline
	req.reply <- nil

	if r.liveCount() >= MaxLive {
		if r.parked != nil {
			r.logger.Info("Replacing parked assignment", "dropped", r.parked.Identity(), "parked", a.Identity())
		} else {
			r.logger.Debug("Two instances live, parking assignment", "parked", a.Identity())
		}
		r.parked = &a
		return nil
	}
	return r.start(ctx, a)
}

func (r *Runner) handleEvent(ctx context.Context, ev event) error {
	switch ev.kind {
	case eventLoaded:
		r.mu.RLock()
		stale := ev.inst != r.incoming
		r.mu.RUnlock()
		if stale {
			// dropped while loading
			_ = ev.inst.Dispose()
			return nil
		}
		if ev.err != nil {
			r.setIncoming(nil)
			r.recordFailure(ev.inst.Identity(), ev.err)
			return r.startPlaceholder(ctx, ev.inst.Deadline())
		}
		r.prepare(ctx, ev.inst)
		return nil

	case eventPrepared:
		r.mu.RLock()
		stale := ev.inst != r.incoming
		r.mu.RUnlock()
		if stale {
			return nil
		}
		if ev.err == nil {
			r.handoff(ev.inst)
			return nil
		}

		r.setIncoming(nil)
		if errors.Is(ev.err, module.ErrAbandoned) {
			return nil
		}
		if ev.inst.Placeholder() {
			return fmt.Errorf("%w: %w", ErrPlaceholder, ev.err)
		}
		r.recordFailure(ev.inst.Identity(), ev.err)
		return r.startPlaceholder(ctx, ev.inst.Deadline())

	case eventRetire:
		r.mu.Lock()
		if ev.inst != r.outgoing {
			r.mu.Unlock()
			return nil
		}
		r.outgoing = nil
		r.mu.Unlock()

		if err := ev.inst.Dispose(); err != nil {
			r.logger.Warn("Outgoing module did not dispose cleanly", "identity", ev.inst.Identity(), "error", err)
		}
		if r.parked != nil {
			a := *r.parked
			r.parked = nil
			return r.start(ctx, a)
		}
	}
	return nil
}

// start builds the next instance and loads it off the loop goroutine; the
// outcome comes back as an eventLoaded. The returned error is fatal.
func (r *Runner) start(ctx context.Context, a module.Assignment) error {
	geo := a.Geometry
	if geo.Len() == 0 {
		geo = r.geometry
	}
	inst, err := r.build(a.Definition, a.Deadline, geo)
	if err != nil {
		r.recordFailure(a.Identity(), err)
		return r.startPlaceholder(ctx, a.Deadline)
	}
	r.setIncoming(inst)
	go func() {
		err := inst.Load(ctx)
		r.post(ctx, event{kind: eventLoaded, inst: inst, err: err})
	}()
	return nil
}

// startPlaceholder loads the built-in empty module in place. It runs no
// module code, so it stays on the loop goroutine.
func (r *Runner) startPlaceholder(ctx context.Context, deadline time.Time) error {
	inst, err := r.build(module.EmptyDefinition(), deadline, r.geometry, module.WithPlaceholder())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPlaceholder, err)
	}
	if err := inst.Load(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPlaceholder, err)
	}
	r.prepare(ctx, inst)
	return nil
}

func (r *Runner) prepare(ctx context.Context, inst *module.RunningModule) {
	r.setIncoming(inst)
	result := inst.WillBeShownSoon(ctx)
	go func() {
		err := <-result
		r.post(ctx, event{kind: eventPrepared, inst: inst, err: err})
	}()
}

// handoff fades the current instance out and in toward the same deadline.
// The outgoing one is disposed once the deadline passes.
func (r *Runner) handoff(in *module.RunningModule) {
	deadline := in.Deadline()

	r.mu.RLock()
	out := r.current
	r.mu.RUnlock()

	if out != nil {
		out.WillBeHiddenSoon()
		out.BeginFadeOut(deadline)
	}
	in.BeginFadeIn(deadline)

	r.mu.Lock()
	r.outgoing = out
	r.current = in
	r.incoming = nil
	r.mu.Unlock()

	r.logger.Debug("Cross-fade scheduled", "incoming", in.Identity(), "deadline", deadline.UnixMilli())
	if out == nil {
		return
	}

	r.ctxMu.Lock()
	ctx := r.runCtx
	r.ctxMu.Unlock()
	wait := max(clock.Until(r.clock, deadline), 0)
	r.clock.AfterFunc(wait, func() {
		r.post(ctx, event{kind: eventRetire, inst: out})
	})
}

// post delivers ev to the loop without ever blocking the caller, which may
// be a clock callback running on the loop goroutine itself.
func (r *Runner) post(ctx context.Context, ev event) {
	go func() {
		select {
		case r.events <- ev:
		case <-ctx.Done():
		}
	}()
}

// tick runs the visible instance's hooks with the tick time and the
// milliseconds since the previous tick.
func (r *Runner) tick(now time.Time) {
	var delta float64
	if !r.lastTick.IsZero() {
		delta = clock.Millis(now) - clock.Millis(r.lastTick)
	}
	r.lastTick = now

	r.mu.RLock()
	cur := r.current
	r.mu.RUnlock()

	if cur != nil && cur.State() == module.StateVisible {
		cur.Tick(clock.Millis(now), delta)
	}
	r.publish(now)
}

// becameVisible runs inside the instance's FadingIn to Visible transition,
// so the surface changes owner at that moment.
func (r *Runner) becameVisible(inst *module.RunningModule) {
	r.mu.Lock()
	r.active = inst.Identity()
	r.mu.Unlock()
	r.logger.Info("Module visible", "identity", inst.Identity())
}

// publish sends a snapshot when playback changed or the interval elapsed.
func (r *Runner) publish(now time.Time) {
	snap, ok := r.snapshot(now)
	if !ok {
		return
	}
	if !snap.Changed(r.lastSnap) && now.Sub(r.lastSnapAt) < r.snapshotInterval {
		return
	}
	r.lastSnap = snap
	r.lastSnapAt = now
	r.async.Update(snap)
}

func (r *Runner) snapshot(now time.Time) (monitor.Snapshot, bool) {
	r.mu.RLock()
	cur := r.current
	failures := r.failures
	lastErr := r.lastErr
	r.mu.RUnlock()
	if cur == nil {
		return monitor.Snapshot{}, false
	}

	snap := monitor.Snapshot{
		Node:       r.node,
		ModuleName: cur.Name(),
		Identity:   cur.Identity(),
		Deadline:   cur.Deadline(),
		State:      cur.State(),
		Failures:   failures + cur.Failures(),
		Time:       now,
	}
	if err := cur.LastError(); err != nil {
		lastErr = err
	}
	if lastErr != nil {
		snap.LastError = lastErr.Error()
	}
	return snap, true
}

func (r *Runner) build(def module.Definition, deadline time.Time, geo geometry.Polygon, extra ...module.Option) (*module.RunningModule, error) {
	opts := []module.Option{
		module.WithLogHandler(r.logHandler),
		module.WithLoader(r.loader),
		module.WithClock(r.clock),
		module.WithHub(r.hub),
		module.WithSurfaces(r.surfaces),
		module.WithGeometry(geo),
		module.WithNode(r.node),
		module.WithNodeRect(r.nodeRect),
		module.WithServer(r.runServer),
		module.WithSkewTolerance(r.skew),
		module.WithOnVisible(r.becameVisible),
	}
	return module.New(def, deadline, append(opts, extra...)...)
}

func (r *Runner) recordFailure(identity string, err error) {
	r.mu.Lock()
	r.failures++
	r.lastErr = err
	r.mu.Unlock()
	r.logger.Warn("Module could not be shown, substituting the empty module", "identity", identity, "error", err)
}

func (r *Runner) setIncoming(inst *module.RunningModule) {
	r.mu.Lock()
	r.incoming = inst
	r.mu.Unlock()
}

func (r *Runner) liveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, inst := range []*module.RunningModule{r.current, r.incoming, r.outgoing} {
		if inst != nil {
			n++
		}
	}
	return n
}

func (r *Runner) disposeAll() {
	r.mu.Lock()
	live := []*module.RunningModule{r.incoming, r.outgoing, r.current}
	r.current, r.incoming, r.outgoing = nil, nil, nil
	r.active = ""
	r.mu.Unlock()

	for _, inst := range live {
		if inst == nil {
			continue
		}
		if err := inst.Dispose(); err != nil {
			r.logger.Warn("Module did not dispose cleanly", "identity", inst.Identity(), "error", err)
		}
	}
	r.parked = nil
}

// Active is the identity of the instance that owns the visible surface.
func (r *Runner) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Current is the identity of the instance being faded in or shown.
func (r *Runner) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return ""
	}
	return r.current.Identity()
}

// Live lists the identities of every instance the node holds.
func (r *Runner) Live() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, inst := range []*module.RunningModule{r.outgoing, r.current, r.incoming} {
		if inst != nil {
			out = append(out, inst.Identity())
		}
	}
	return out
}

// Failures is the number of assignments replaced by the empty module.
func (r *Runner) Failures() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failures
}
