// Package playlist is the server half of the wall: it cycles through the
// configured modules and publishes one assignment per entry for every node
// to play at the same deadline.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/clock"
	"github.com/atlanticdynamic/lumenwall/internal/geometry"
	"github.com/atlanticdynamic/lumenwall/internal/server/finitestate"
	"github.com/atlanticdynamic/lumenwall/internal/wall/module"
	"github.com/atlanticdynamic/lumenwall/internal/wall/network"
	"github.com/robbyt/go-supervisor/supervisor"
)

var (
	_ supervisor.Runnable   = (*Runner)(nil)
	_ supervisor.Reloadable = (*Runner)(nil)
	_ supervisor.Stateable  = (*Runner)(nil)
)

const (
	DefaultLeadTime = 2 * time.Second
	DefaultDuration = 30 * time.Second

	// DefaultPublishedLimit is how many recent identities Published keeps.
	DefaultPublishedLimit = 64
)

var ErrEmptyPlaylist = errors.New("playlist has no modules")

// Provider returns the current playlist. It is called at boot and on every
// Reload.
type Provider func() ([]module.Definition, error)

type Runner struct {
	provider        Provider
	hub             *network.Hub
	clock           clock.Clock
	geometry        geometry.Polygon
	leadTime        time.Duration
	defaultDuration time.Duration
	shuffle         bool
	publishedLimit  int

	logger *slog.Logger
	fsm    finitestate.Machine

	runCtx    context.Context
	runCancel context.CancelFunc
	ctxMu     sync.Mutex

	mu        sync.Mutex
	entries   []module.Definition
	order     []int
	next      int
	published []string
	reloaded  chan struct{}
}

func NewRunner(provider Provider, hub *network.Hub, opts ...Option) (*Runner, error) {
	if provider == nil {
		return nil, errors.New("playlist needs a provider")
	}
	if hub == nil {
		return nil, errors.New("playlist needs a hub")
	}
	r := &Runner{
		provider:        provider,
		hub:             hub,
		clock:           clock.Real{},
		leadTime:        DefaultLeadTime,
		defaultDuration: DefaultDuration,
		publishedLimit:  DefaultPublishedLimit,
		logger:          slog.Default().WithGroup("playlist.Runner"),
		reloaded:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}

	fsm, err := finitestate.New(r.logger.WithGroup("fsm").Handler())
	if err != nil {
		return nil, fmt.Errorf("failed to create state machine: %w", err)
	}
	r.fsm = fsm
	return r, nil
}

func (r *Runner) String() string {
	return "playlist.Runner"
}

// Run publishes assignments until ctx is cancelled or Stop is called.
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

	if err := r.load(); err != nil {
		if stateErr := r.fsm.Transition(finitestate.StatusError); stateErr != nil {
			r.logger.Error("Failed to transition to error state", "error", stateErr)
		}
		return fmt.Errorf("failed to load playlist: %w", err)
	}

	out := r.hub.Open(network.AssignmentTopic)
	defer func() { _ = out.Close() }()

	if err := r.fsm.Transition(finitestate.StatusRunning); err != nil {
		return fmt.Errorf("failed to transition to running state: %w", err)
	}

	for {
		wait := r.publishNext(out)
		if !r.sleep(runCtx, wait) {
			break
		}
	}

	r.logger.Info("Runner shutting down")
	if r.fsm.GetState() != finitestate.StatusStopping {
		if err := r.fsm.Transition(finitestate.StatusStopping); err != nil {
			r.logger.Error("Failed to transition to stopping state", "error", err)
		}
	}
	if err := r.fsm.Transition(finitestate.StatusStopped); err != nil {
		return fmt.Errorf("failed to transition to stopped state: %w", err)
	}
	return nil
}

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

// Reload re-reads the playlist. A failed read keeps the current one; a
// successful one cuts the current entry short and starts from the top.
func (r *Runner) Reload() {
	r.logger.Debug("Starting Reload...")
	if err := r.load(); err != nil {
		r.logger.Error("Failed to reload playlist", "error", err)
		return
	}
	select {
	case r.reloaded <- struct{}{}:
	default:
	}
	r.logger.Debug("Reload completed")
}

// Published lists the most recently published identities, oldest first.
func (r *Runner) Published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.published...)
}

func (r *Runner) load() error {
	defs, err := r.provider()
	if err != nil {
		return err
	}
	var errs []error
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if len(defs) == 0 {
		return ErrEmptyPlaylist
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = defs
	r.order = r.newOrder(len(defs))
	r.next = 0
	r.logger.Info("Playlist loaded", "modules", len(defs), "shuffle", r.shuffle)
	return nil
}

func (r *Runner) newOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if r.shuffle {
		rand.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	return order
}

// publishNext emits the next entry and returns how long it plays.
func (r *Runner) publishNext(out *network.Channel) time.Duration {
	r.mu.Lock()
	if r.next >= len(r.order) {
		r.order = r.newOrder(len(r.entries))
		r.next = 0
	}
	def := r.entries[r.order[r.next]]
	r.next++
	r.mu.Unlock()

	duration := def.Duration
	if duration <= 0 {
		duration = r.defaultDuration
	}

	a := module.Assignment{
		Definition: def,
		Deadline:   r.clock.Now().Add(r.leadTime),
		Geometry:   r.geometry,
	}
	payload, err := module.EncodeAssignment(a)
	if err != nil {
		r.logger.Error("Failed to encode assignment, skipping", "module", def.Name, "error", err)
		return duration
	}
	if !out.Emit(network.AssignmentEvent, payload) {
		r.logger.Warn("Assignment channel closed", "identity", a.Identity())
		return duration
	}

	r.mu.Lock()
	r.published = append(r.published, a.Identity())
	if over := len(r.published) - r.publishedLimit; over > 0 {
		r.published = slices.Delete(r.published, 0, over)
	}
	r.mu.Unlock()
	r.logger.Debug("Published assignment", "identity", a.Identity(), "duration", duration)
	return duration
}

// sleep waits d on the wall clock. It returns false when the runner should
// stop, and returns early after a reload.
func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	wake := make(chan struct{})
	timer := r.clock.AfterFunc(d, func() { close(wake) })
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-wake:
		return true
	case <-r.reloaded:
		return true
	}
}
