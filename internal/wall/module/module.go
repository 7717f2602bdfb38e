package module

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
	"github.com/atlanticdynamic/lumenwall/internal/wall/behavior"
	"github.com/atlanticdynamic/lumenwall/internal/wall/capability"
	"github.com/atlanticdynamic/lumenwall/internal/wall/network"
	"github.com/atlanticdynamic/lumenwall/internal/wall/sandbox"
	"github.com/atlanticdynamic/lumenwall/internal/wall/statestore"
	"github.com/atlanticdynamic/lumenwall/internal/wall/surface"
	"github.com/atlanticdynamic/lumenwall/internal/wall/titlecard"
	"github.com/gofrs/uuid/v5"
	"github.com/robbyt/go-loglater"
)

// DefaultSkewTolerance is the assumed bound on clock disagreement between
// nodes.
const DefaultSkewTolerance = 50 * time.Millisecond

// RunningModule is one instance of a module bound to a deadline.
//
// Every exported operation is safe to call from any goroutine. Module code is
// only ever entered through runHook, so a panic or error in the module is
// logged and reported as false instead of escaping.
type RunningModule struct {
	def       Definition
	deadline  time.Time
	identity  string
	contextID string
	node      string
	runServer bool
	skew      time.Duration

	placeholder bool
	onVisible   func(*RunningModule)

	loader   *sandbox.Loader
	clock    clock.Clock
	hub      *network.Hub
	surfaces surface.Factory
	geometry geometry.Polygon
	nodeRect geometry.Rect

	logHandler slog.Handler
	logs       *loglater.LogCollector
	logger     *slog.Logger
	fsm        finitestate.Machine

	mu         sync.Mutex
	execCtx    *sandbox.Context
	server     behavior.Server
	client     behavior.Client
	clientCh   *network.Channel
	serverCh   *network.Channel
	peerCh     *network.Channel
	title      *titlecard.Card
	surf       surface.Surface
	fadeTimer  clock.Timer
	fadeGen    uint64
	cancelShow context.CancelFunc
	prepared   bool
	showing    bool
	abandoned  bool
	tickable   bool
	released   bool
	failures   int
	lastErr    error
}

// New creates an instance of def that becomes visible at deadline.
func New(def Definition, deadline time.Time, opts ...Option) (*RunningModule, error) {
	m := &RunningModule{
		def:        def.Clone(),
		deadline:   deadline,
		identity:   Identity(def.Name, deadline),
		runServer:  true,
		skew:       DefaultSkewTolerance,
		clock:      clock.Real{},
		logHandler: slog.Default().Handler(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.loader == nil {
		return nil, errors.New("module needs a loader")
	}
	if m.hub == nil {
		m.hub = network.NewHub()
	}
	if m.surfaces == nil {
		m.surfaces = surface.NewHeadless(m.geometry.Extents())
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate context id: %w", err)
	}
	m.contextID = fmt.Sprintf("module-%d-%s", deadline.UnixMilli(), id)

	m.logs = loglater.NewLogCollector(m.logHandler)
	m.logger = slog.New(m.logs).With(
		"module", def.Name,
		"deadline", deadline.UnixMilli(),
		"node", m.node,
	).WithGroup("module.RunningModule")

	machine, err := finitestate.NewMachine(m.logger.WithGroup("fsm").Handler(), StateConstructed, lifecycle)
	if err != nil {
		return nil, fmt.Errorf("failed to create state machine: %w", err)
	}
	m.fsm = machine
	m.title = titlecard.New(def.Title, m.logger)
	return m, nil
}

func (m *RunningModule) String() string {
	return m.identity
}

// Name is the module definition name.
func (m *RunningModule) Name() string { return m.def.Name }

// Placeholder reports whether the instance was created as the empty
// stand-in, regardless of its name.
func (m *RunningModule) Placeholder() bool { return m.placeholder }

// Definition returns the definition the instance was built from.
func (m *RunningModule) Definition() Definition { return m.def.Clone() }

// Deadline is the time the instance becomes fully visible.
func (m *RunningModule) Deadline() time.Time { return m.deadline }

// Identity is name@deadline.
func (m *RunningModule) Identity() string { return m.identity }

// ContextID names the execution context of the instance.
func (m *RunningModule) ContextID() string { return m.contextID }

// State is the current lifecycle state.
func (m *RunningModule) State() string { return m.fsm.GetState() }

// GetStateChan emits the lifecycle state on every change.
func (m *RunningModule) GetStateChan(ctx context.Context) <-chan string {
	return m.fsm.GetStateChan(ctx)
}

// Surface returns the drawing surface once WillBeShownSoon has been called.
func (m *RunningModule) Surface() surface.Surface {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.surf
}

// TitleCard returns the instance's title card.
func (m *RunningModule) TitleCard() *titlecard.Card { return m.title }

// Failures is the number of failed hooks so far.
func (m *RunningModule) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// LastError is the most recent failure, if any.
func (m *RunningModule) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// PlaybackLogs replays every log line the instance produced into handler.
func (m *RunningModule) PlaybackLogs(handler slog.Handler) error {
	return m.logs.PlayLogs(handler)
}

// Load executes the module source and builds its behaviors. On failure the
// instance ends in StateFailed and the error wraps sandbox.ErrLoadFailure or
// sandbox.ErrMalformedModule.
func (m *RunningModule) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state := m.fsm.GetState(); state != StateConstructed {
		return fmt.Errorf("%w: load in %s", ErrInvalidState, state)
	}

	topic := network.InstanceTopic(m.geometry.Extents(), m.deadline)
	m.clientCh = m.hub.Open(topic)
	m.peerCh = m.hub.Open(network.PeerTopic(topic))
	if m.runServer {
		m.serverCh = m.hub.Open(topic)
	}

	execCtx, err := m.loader.Load(ctx, m.def.Source, m.contextID)
	if err != nil {
		m.failLocked("load", err)
		return err
	}
	m.execCtx = execCtx

	if m.runServer {
		var server behavior.Server
		err := m.runHook("server constructor", func() error {
			var err error
			server, err = execCtx.Server()(m.def.Config, m.serverServices())
			return err
		})
		if err != nil {
			err = fmt.Errorf("%w: %w", sandbox.ErrLoadFailure, err)
			m.failLocked("load", err)
			return err
		}
		m.server = server
	}

	var client behavior.Client
	err = m.runHook("client constructor", func() error {
		var err error
		client, err = execCtx.Client()(m.def.Config, m.clientServices())
		return err
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", sandbox.ErrLoadFailure, err)
		m.failLocked("load", err)
		return err
	}
	m.client = client

	if err := m.fsm.Transition(StateLoaded); err != nil {
		return err
	}
	m.logger.Debug("Module loaded", "context", m.contextID)
	return nil
}

// WillBeShownSoon creates the surface and asks the client to prepare. It
// returns at once; the channel yields the outcome when preparation settles.
// Cancelling ctx, or disposing the instance, cancels the context handed to
// the client. An instance disposed while preparing reports ErrAbandoned.
func (m *RunningModule) WillBeShownSoon(ctx context.Context) <-chan error {
	result := make(chan error, 1)

	m.mu.Lock()
	if state := m.fsm.GetState(); state != StateLoaded {
		m.mu.Unlock()
		result <- fmt.Errorf("%w: willBeShownSoon in %s", ErrInvalidState, state)
		return result
	}

	surf, err := m.surfaces.Create(m.def.Name)
	if err != nil {
		err = fmt.Errorf("failed to create surface: %w", err)
		m.failLocked("willBeShownSoon", err)
		m.mu.Unlock()
		result <- err
		return result
	}
	m.surf = surf

	if err := m.fsm.Transition(StateWillShow); err != nil {
		m.mu.Unlock()
		result <- err
		return result
	}

	hookCtx, cancel := context.WithCancel(ctx)
	m.cancelShow = cancel
	m.showing = true
	client := m.client
	m.mu.Unlock()

	go func() {
		defer cancel()
		err := m.runHook("willBeShownSoon", func() error {
			return client.WillBeShownSoon(hookCtx, surf, m.deadline)
		})

		m.mu.Lock()
		defer m.mu.Unlock()
		m.showing = false
		m.cancelShow = nil

		if m.abandoned {
			m.logger.Debug("Preparation finished after dispose, releasing")
			if relErr := m.releaseLocked(); relErr != nil {
				m.logger.Warn("Deferred release failed", "error", relErr)
			}
			result <- ErrAbandoned
			return
		}
		if err != nil {
			m.failLocked("willBeShownSoon", err)
			result <- err
			return
		}
		m.prepared = true
		result <- nil
	}()

	return result
}

// WillBeHiddenSoon tells the client a fade-out is coming. It is advisory and
// never changes state.
func (m *RunningModule) WillBeHiddenSoon() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.fsm.GetState()
	if state != StateFadingIn && state != StateVisible {
		return false
	}
	return m.hookLocked("willBeHiddenSoon", m.client.WillBeHiddenSoon)
}

// BeginFadeIn starts fading the surface in so that it is fully opaque at
// deadline. At the deadline the instance becomes Visible and starts ticking.
// A deadline already in the past makes the cut immediate.
func (m *RunningModule) BeginFadeIn(deadline time.Time) bool {
	m.mu.Lock()
	if state := m.fsm.GetState(); state != StateWillShow || !m.prepared {
		m.mu.Unlock()
		m.logger.Warn("Fade in requested before preparation finished", "state", state)
		return false
	}
	if err := m.fsm.Transition(StateFadingIn); err != nil {
		m.mu.Unlock()
		m.logger.Error("Failed to enter fading in", "error", err)
		return false
	}

	ok := m.hookLocked("beginFadeIn", func() error { return m.client.BeginFadeIn(deadline) })
	wait := m.untilLocked(deadline)
	if err := m.surf.FadeTo(1, wait); err != nil {
		m.logger.Warn("Surface fade in failed", "error", err)
	}
	m.fadeGen++
	gen := m.fadeGen
	m.mu.Unlock()

	// scheduled without the lock held: a clock may run due callbacks inline
	timer := m.clock.AfterFunc(wait, func() { m.completeFadeIn(gen) })

	m.mu.Lock()
	if m.fadeGen == gen && m.fsm.GetState() == StateFadingIn {
		m.fadeTimer = timer
	}
	m.mu.Unlock()
	return ok
}

func (m *RunningModule) completeFadeIn(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.fadeGen || m.fsm.GetState() != StateFadingIn {
		return
	}
	m.fadeTimer = nil

	m.title.Enter()
	m.hookLocked("finishFadeIn", m.client.FinishFadeIn)
	m.tickable = true
	if err := m.fsm.Transition(StateVisible); err != nil {
		m.logger.Error("Failed to enter visible", "error", err)
		return
	}
	if m.onVisible != nil {
		m.onVisible(m)
	}
	m.logger.Debug("Module visible")
}

// BeginFadeOut stops ticking and starts fading the surface out so that it is
// transparent at deadline.
func (m *RunningModule) BeginFadeOut(deadline time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.fsm.GetState()
	if state != StateFadingIn && state != StateVisible {
		return false
	}

	m.title.Exit()
	m.tickable = false
	m.stopFadeTimerLocked()
	if err := m.fsm.Transition(StateFadingOut); err != nil {
		m.logger.Error("Failed to enter fading out", "error", err)
		return false
	}

	ok := m.hookLocked("beginFadeOut", func() error { return m.client.BeginFadeOut(deadline) })
	if err := m.surf.FadeTo(0, m.untilLocked(deadline)); err != nil {
		m.logger.Warn("Surface fade out failed", "error", err)
	}
	return ok
}

// Tick runs the server tick and client draw hooks. It does nothing unless
// the instance is Visible. t and delta are in milliseconds.
func (m *RunningModule) Tick(t, delta float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.tickable || m.fsm.GetState() != StateVisible {
		return false
	}
	ok := true
	if m.server != nil {
		ok = m.hookLocked("tick", func() error { return m.server.Tick(t, delta) })
	}
	return m.hookLocked("draw", func() error { return m.client.Draw(t, delta) }) && ok
}

// Dispose releases every resource of the instance. It is safe to call more
// than once and from any state. Release failures are logged and returned
// joined under ErrDisposalFailure; they never stop later release steps.
func (m *RunningModule) Dispose() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.fsm.GetState()
	if Terminal(state) {
		return nil
	}
	if err := m.fsm.Transition(StateDisposed); err != nil {
		m.logger.Error("Failed to enter disposed", "error", err)
		_ = m.fsm.SetState(StateDisposed)
	}

	if m.showing {
		// the preparation goroutine releases once the hook settles
		m.abandoned = true
		m.tickable = false
		m.stopFadeTimerLocked()
		if m.cancelShow != nil {
			m.cancelShow()
		}
		m.logger.Debug("Dispose requested during preparation")
		return nil
	}
	return m.releaseLocked()
}

func (m *RunningModule) untilLocked(deadline time.Time) time.Duration {
	wait := clock.Until(m.clock, deadline)
	if wait < -m.skew {
		m.logger.Warn("Deadline already passed, cutting immediately", "late", -wait)
	}
	return max(wait, 0)
}

func (m *RunningModule) stopFadeTimerLocked() {
	m.fadeGen++
	if m.fadeTimer != nil {
		m.fadeTimer.Stop()
		m.fadeTimer = nil
	}
}

func (m *RunningModule) failLocked(stage string, err error) {
	m.recordLocked(stage, err)
	if relErr := m.releaseLocked(); relErr != nil {
		m.logger.Warn("Release after failure incomplete", "error", relErr)
	}
	if tErr := m.fsm.Transition(StateFailed); tErr != nil {
		_ = m.fsm.SetState(StateFailed)
	}
}

func (m *RunningModule) recordLocked(stage string, err error) {
	m.failures++
	m.lastErr = err
	m.logger.Warn("Module failure", "stage", stage, "error", err)
}

func (m *RunningModule) hookLocked(name string, fn func() error) bool {
	if err := m.runHook(name, fn); err != nil {
		m.recordLocked(name, err)
		return false
	}
	return true
}

// runHook calls into module code, turning panics and errors into
// ErrHookFailure.
func (m *RunningModule) runHook(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrHookFailure, name, r)
		}
	}()
	if hookErr := fn(); hookErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrHookFailure, name, hookErr)
	}
	return nil
}

// releaseLocked runs every release step once. Steps are independent: a
// failure is recorded and the next step still runs.
func (m *RunningModule) releaseLocked() error {
	if m.released {
		return nil
	}
	m.released = true
	m.tickable = false
	m.stopFadeTimerLocked()
	m.title.Exit()

	var errs []error
	step := func(name string, fn func() error) {
		if err := m.runHook(name, fn); err != nil {
			m.logger.Warn("Release step failed", "step", name, "error", err)
			errs = append(errs, err)
		}
	}

	if m.client != nil {
		step("finishFadeOut", m.client.FinishFadeOut)
	}
	if m.server != nil {
		step("server dispose", m.server.Dispose)
	}
	for _, ch := range []*network.Channel{m.clientCh, m.serverCh, m.peerCh} {
		if ch != nil {
			step("close channel", ch.Close)
		}
	}
	step("unload context", func() error { return m.loader.Unload(m.contextID) })
	if m.surf != nil {
		step("remove surface", m.surf.Remove)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrDisposalFailure, errors.Join(errs...))
	}
	m.logger.Debug("Module released")
	return nil
}

func (m *RunningModule) clientServices() *capability.Registry {
	r := m.baseServices()
	ch, peer := m.clientCh, m.peerCh
	r.RegisterValue(capability.Network, ch)
	r.RegisterValue(capability.PeerNetwork, peer)
	r.Register(capability.State, stateFactory(ch))
	r.RegisterValue(capability.TitleCard, m.title.ModuleAPI())
	return r
}

func (m *RunningModule) serverServices() *capability.Registry {
	r := m.baseServices()
	ch := m.serverCh
	r.RegisterValue(capability.Network, ch)
	r.Register(capability.State, stateFactory(ch))
	return r
}

func (m *RunningModule) baseServices() *capability.Registry {
	r := capability.NewRegistry()
	r.RegisterValue(capability.Debug, m.logger.WithGroup("debug"))
	r.RegisterValue(capability.Clock, m.clock)
	r.RegisterValue(capability.WallGeometry, m.localGeometry())
	r.RegisterValue(capability.GlobalWallGeometry, m.geometry)
	return r
}

// localGeometry is the wall polygon in the node's coordinates. Without a
// node rectangle the polygon's own extents are the origin.
func (m *RunningModule) localGeometry() geometry.Polygon {
	if m.nodeRect == (geometry.Rect{}) {
		return m.geometry.Local()
	}
	return m.geometry.Translate(-m.nodeRect.X, -m.nodeRect.Y)
}

func stateFactory(ch *network.Channel) capability.Factory {
	return func() (any, error) {
		store := statestore.New(ch)
		ch.On(statestore.Event, store.Apply)
		return store, nil
	}
}
