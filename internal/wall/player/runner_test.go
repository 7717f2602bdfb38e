package player

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/clock"
	"github.com/atlanticdynamic/lumenwall/internal/geometry"
	"github.com/atlanticdynamic/lumenwall/internal/server/finitestate"
	"github.com/atlanticdynamic/lumenwall/internal/wall/behavior"
	"github.com/atlanticdynamic/lumenwall/internal/wall/capability"
	"github.com/atlanticdynamic/lumenwall/internal/wall/module"
	"github.com/atlanticdynamic/lumenwall/internal/wall/monitor"
	"github.com/atlanticdynamic/lumenwall/internal/wall/network"
	"github.com/atlanticdynamic/lumenwall/internal/wall/sandbox"
	"github.com/atlanticdynamic/lumenwall/internal/wall/sandbox/natives"
	"github.com/atlanticdynamic/lumenwall/internal/wall/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	poll    = 2 * time.Millisecond
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var wall = geometry.NewPolygon([]geometry.Point{
	{X: 0, Y: 0}, {X: 1920, Y: 0}, {X: 1920, Y: 1080}, {X: 0, Y: 1080},
})

type drawCall struct {
	label    string
	t, delta float64
}

type recorder struct {
	mu    sync.Mutex
	calls []string
	draws []drawCall
}

func (r *recorder) draw(label string, t, delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, label+":draw")
	r.draws = append(r.draws, drawCall{label: label, t: t, delta: delta})
}

func (r *recorder) hasDraw(want drawCall) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.draws, want)
}

func (r *recorder) add(label, call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, label+":"+call)
}

func (r *recorder) count(label, call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == label+":"+call {
			n++
		}
	}
	return n
}

func (r *recorder) index(label, call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Index(r.calls, label+":"+call)
}

type probeClient struct {
	behavior.BaseClient
	label string
	rec   *recorder
}

func (p *probeClient) WillBeShownSoon(context.Context, surface.Surface, time.Time) error {
	p.rec.add(p.label, "willBeShownSoon")
	return nil
}

func (p *probeClient) WillBeHiddenSoon() error {
	p.rec.add(p.label, "willBeHiddenSoon")
	return nil
}

func (p *probeClient) BeginFadeIn(time.Time) error {
	p.rec.add(p.label, "beginFadeIn")
	return nil
}

func (p *probeClient) BeginFadeOut(time.Time) error {
	p.rec.add(p.label, "beginFadeOut")
	return nil
}

func (p *probeClient) FinishFadeOut() error {
	p.rec.add(p.label, "finishFadeOut")
	return nil
}

func (p *probeClient) Draw(t, delta float64) error {
	p.rec.draw(p.label, t, delta)
	return nil
}

type snapshots struct {
	mu   sync.Mutex
	seen []monitor.Snapshot
}

func (s *snapshots) Update(snap monitor.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, snap)
}

func (s *snapshots) has(pred func(monitor.Snapshot) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.ContainsFunc(s.seen, pred)
}

type harness struct {
	runner   *Runner
	clock    *clock.Manual
	hub      *network.Hub
	loader   *sandbox.Loader
	surfaces *surface.Headless
	rec      *recorder
	sink     *snapshots
	done     chan error
}

func newLoader(rec *recorder, withNatives bool) *sandbox.Loader {
	native := sandbox.NewNative()
	if withNatives {
		natives.RegisterAll(native)
	}
	native.Register("probe", sandbox.Pair{
		Client: func(config map[string]any, _ capability.Locator) (behavior.Client, error) {
			label, _ := config["label"].(string)
			return &probeClient{label: label, rec: rec}, nil
		},
	})
	return sandbox.New(sandbox.WithRuntime(native), sandbox.WithRuntime(sandbox.NewLua()))
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:    clock.NewManual(epoch),
		hub:      network.NewHub(),
		surfaces: surface.NewHeadless(wall.Extents()),
		rec:      &recorder{},
		sink:     &snapshots{},
		done:     make(chan error, 1),
	}
	h.loader = newLoader(h.rec, true)

	opts = append([]Option{
		WithNode("left", wall.Extents()),
		WithGeometry(wall),
		WithClock(h.clock),
		WithHub(h.hub),
		WithLoader(h.loader),
		WithSurfaces(h.surfaces),
		WithSink(h.sink),
		WithTickInterval(time.Millisecond),
	}, opts...)
	r, err := NewRunner(opts...)
	require.NoError(t, err)
	h.runner = r
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	go func() { h.done <- h.runner.Run(t.Context()) }()
	require.Eventually(t, h.runner.IsRunning, waitFor, poll)
	t.Cleanup(func() {
		h.runner.Stop()
		select {
		case <-h.done:
		case <-time.After(waitFor):
			t.Error("runner did not stop")
		}
	})
}

func probe(label string, deadline time.Time) module.Assignment {
	return module.Assignment{
		Definition: module.Definition{
			Name:   label,
			Config: map[string]any{"label": label},
			Source: sandbox.Source{Runtime: sandbox.RuntimeNative, Code: "probe"},
		},
		Deadline: deadline,
	}
}

func placeholder(deadline time.Time) string {
	return module.Identity(natives.EmptyModuleName, deadline)
}

func TestBootShowsPlaceholder(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t)

	assert.Equal(t, placeholder(epoch), h.runner.Current())
	assert.Eventually(t, func() bool {
		return h.runner.Active() == placeholder(epoch)
	}, waitFor, poll)
	assert.Eventually(t, func() bool {
		return h.sink.has(func(s monitor.Snapshot) bool {
			return s.Node == "left" && s.ModuleName == natives.EmptyModuleName && s.State == module.StateVisible
		})
	}, waitFor, poll)
	assert.Equal(t, "player.Runner[left]", h.runner.String())
}

func TestCrossFade(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t)

	first := epoch.Add(5 * time.Second)
	require.NoError(t, h.runner.Assign(t.Context(), probe("a", first)))
	require.Eventually(t, func() bool {
		return h.runner.Current() == module.Identity("a", first)
	}, waitFor, poll)
	assert.Equal(t, []string{placeholder(epoch), module.Identity("a", first)}, h.runner.Live())
	assert.Equal(t, placeholder(epoch), h.runner.Active(), "placeholder keeps the surface while a fades in")

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, h.rec.count("a", "draw"), "no ticks before the deadline")

	h.clock.Advance(5 * time.Second)
	assert.Equal(t, module.Identity("a", first), h.runner.Active(), "surface changes owner at the transition")
	require.Eventually(t, func() bool {
		return slices.Equal(h.runner.Live(), []string{module.Identity("a", first)})
	}, waitFor, poll)
	assert.Eventually(t, func() bool {
		h.clock.Advance(time.Millisecond)
		return h.rec.count("a", "draw") > 0
	}, waitFor, poll)

	second := first.Add(5 * time.Second)
	require.NoError(t, h.runner.Assign(t.Context(), probe("b", second)))
	require.Eventually(t, func() bool {
		return h.runner.Current() == module.Identity("b", second)
	}, waitFor, poll)

	hidden := h.rec.index("a", "willBeHiddenSoon")
	fadeOut := h.rec.index("a", "beginFadeOut")
	fadeIn := h.rec.index("b", "beginFadeIn")
	require.NotEqual(t, -1, hidden)
	assert.Less(t, hidden, fadeOut)
	assert.Less(t, fadeOut, fadeIn)

	h.clock.Advance(5 * time.Second)
	assert.Eventually(t, func() bool {
		return h.rec.count("a", "finishFadeOut") == 1 && len(h.runner.Live()) == 1
	}, waitFor, poll)
}

func TestFailedLoadSubstitutesPlaceholder(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t)

	deadline := epoch.Add(time.Second)
	bad := module.Assignment{
		Definition: module.Definition{
			Name:   "silent",
			Source: sandbox.Source{Runtime: sandbox.RuntimeLua, Code: "local x = 1"},
		},
		Deadline: deadline,
	}
	require.NoError(t, h.runner.Assign(t.Context(), bad))

	require.Eventually(t, func() bool {
		return h.runner.Current() == placeholder(deadline)
	}, waitFor, poll)
	assert.Equal(t, 1, h.runner.Failures())

	h.clock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		return h.runner.Active() == placeholder(deadline)
	}, waitFor, poll)
	assert.Eventually(t, func() bool {
		return h.sink.has(func(s monitor.Snapshot) bool {
			return s.Failures == 1 && s.LastError != ""
		})
	}, waitFor, poll)
}

func TestDeadlineRewindRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t)

	d := epoch.Add(time.Second)
	require.NoError(t, h.runner.Assign(t.Context(), probe("a", d)))
	require.ErrorIs(t, h.runner.Assign(t.Context(), probe("a", d)), ErrDeadlineRewind)
	require.ErrorIs(t, h.runner.Assign(t.Context(), probe("a", d.Add(-time.Millisecond))), ErrDeadlineRewind)
	require.NoError(t, h.runner.Assign(t.Context(), probe("b", d)))
}

func TestInvalidAssignmentRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t)

	err := h.runner.Assign(t.Context(), module.Assignment{Deadline: epoch.Add(time.Second)})
	require.ErrorIs(t, err, module.ErrInvalidDefinition)
}

func TestAtMostTwoLiveAndLatestParkedWins(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t)

	d1 := epoch.Add(time.Second)
	require.NoError(t, h.runner.Assign(t.Context(), probe("a", d1)))
	require.Eventually(t, func() bool {
		return h.runner.Current() == module.Identity("a", d1)
	}, waitFor, poll)

	require.NoError(t, h.runner.Assign(t.Context(), probe("b", d1.Add(time.Second))))
	require.NoError(t, h.runner.Assign(t.Context(), probe("c", d1.Add(2*time.Second))))
	assert.Len(t, h.runner.Live(), MaxLive)
	assert.Zero(t, h.rec.count("b", "willBeShownSoon"))

	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return h.runner.Current() == module.Identity("c", d1.Add(2*time.Second))
	}, waitFor, poll)
	assert.LessOrEqual(t, len(h.runner.Live()), MaxLive)
	assert.Zero(t, h.rec.count("b", "willBeShownSoon"), "parked assignment was replaced")
}

func TestSubscribeFeedsAssignments(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t)

	sub := h.runner.Subscribe(t.Context(), h.hub)
	t.Cleanup(func() { _ = sub.Close() })
	pub := h.hub.Open(network.AssignmentTopic)
	t.Cleanup(func() { _ = pub.Close() })

	d := epoch.Add(3 * time.Second)
	b, err := module.EncodeAssignment(probe("wired", d))
	require.NoError(t, err)

	assert.True(t, pub.Emit(network.AssignmentEvent, "not json"))
	assert.True(t, pub.Emit(network.AssignmentEvent, b))
	assert.Eventually(t, func() bool {
		return h.runner.Current() == module.Identity("wired", d)
	}, waitFor, poll)
}

func TestStopDisposesEverything(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	go func() { h.done <- h.runner.Run(t.Context()) }()
	require.Eventually(t, h.runner.IsRunning, waitFor, poll)

	d := epoch.Add(time.Second)
	require.NoError(t, h.runner.Assign(t.Context(), probe("a", d)))
	require.Eventually(t, func() bool {
		return h.runner.Current() == module.Identity("a", d)
	}, waitFor, poll)

	h.runner.Stop()
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("runner did not stop")
	}

	assert.Equal(t, finitestate.StatusStopped, h.runner.GetState())
	assert.Empty(t, h.runner.Live())
	assert.Empty(t, h.loader.Live())
	assert.Empty(t, h.surfaces.Live())
	assert.Equal(t, 1, h.rec.count("a", "finishFadeOut"))
	require.ErrorIs(t, h.runner.Assign(t.Context(), probe("a", d.Add(time.Second))), ErrNotRunning)
}

func TestPlaceholderFailureIsFatal(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	r, err := NewRunner(
		WithGeometry(wall),
		WithClock(clock.NewManual(epoch)),
		WithLoader(newLoader(rec, false)),
	)
	require.NoError(t, err)

	err = r.Run(t.Context())
	require.ErrorIs(t, err, ErrPlaceholder)
	assert.Equal(t, finitestate.StatusError, r.GetState())
}

func TestPanickingSinkDoesNotStopPlayback(t *testing.T) {
	t.Parallel()

	h := newHarness(t, WithSink(monitor.SinkFunc(func(monitor.Snapshot) {
		panic("sink down")
	})))
	h.start(t)

	d := epoch.Add(time.Second)
	require.NoError(t, h.runner.Assign(t.Context(), probe("a", d)))
	h.clock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		return h.runner.Active() == module.Identity("a", d)
	}, waitFor, poll)
}

func TestManyAssignmentsNeverExceedTwoLive(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t)

	var maxLive int
	var mu sync.Mutex
	stop := make(chan struct{})
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		for {
			select {
			case <-stop:
				return
			default:
			}
			n := len(h.runner.Live())
			mu.Lock()
			maxLive = max(maxLive, n)
			mu.Unlock()
			time.Sleep(100 * time.Microsecond)
		}
	}()

	for i := range 6 {
		d := epoch.Add(time.Duration(i+1) * time.Second)
		require.NoError(t, h.runner.Assign(t.Context(), probe(fmt.Sprintf("m%d", i), d)))
		h.clock.Advance(time.Second)
	}
	close(stop)
	<-watched

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxLive, MaxLive)
}

func TestTickDeltaBetweenTicks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, WithTickInterval(16*time.Millisecond))
	h.start(t)

	d := epoch.Add(160 * time.Millisecond)
	require.NoError(t, h.runner.Assign(t.Context(), probe("a", d)))
	require.Eventually(t, func() bool {
		return h.runner.Current() == module.Identity("a", d)
	}, waitFor, poll)

	h.clock.Advance(160 * time.Millisecond)
	require.Equal(t, module.Identity("a", d), h.runner.Active())
	h.clock.Advance(16 * time.Millisecond)
	h.clock.Advance(16 * time.Millisecond)

	for _, at := range []time.Duration{176 * time.Millisecond, 192 * time.Millisecond} {
		want := drawCall{label: "a", t: clock.Millis(epoch.Add(at)), delta: 16}
		assert.Eventually(t, func() bool { return h.rec.hasDraw(want) }, waitFor, poll, "draw at %s", at)
	}
}

func TestReservedNameFailureKeepsPlaying(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t)

	deadline := epoch.Add(time.Second)
	impostor := module.Assignment{
		Definition: module.Definition{
			Name: natives.EmptyModuleName,
			Source: sandbox.Source{Runtime: sandbox.RuntimeLua, Code: `
local interface = require("module_interface")
local C = interface.Client.extend()
function C:willBeShownSoon() error("not ready") end
register(nil, C)
`},
		},
		Deadline: deadline,
	}
	require.NoError(t, h.runner.Assign(t.Context(), impostor))

	require.Eventually(t, func() bool { return h.runner.Failures() == 1 }, waitFor, poll)
	require.Eventually(t, func() bool {
		return h.runner.Current() == placeholder(deadline)
	}, waitFor, poll)
	assert.True(t, h.runner.IsRunning())

	next := deadline.Add(time.Second)
	require.NoError(t, h.runner.Assign(t.Context(), probe("a", next)))
	h.clock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		return h.runner.Current() == module.Identity("a", next)
	}, waitFor, poll)
}

func TestSpinningModuleDoesNotStallNode(t *testing.T) {
	t.Parallel()

	native := sandbox.NewNative()
	natives.RegisterAll(native)
	h := newHarness(t, WithLoader(sandbox.New(
		sandbox.WithRuntime(native),
		sandbox.WithRuntime(sandbox.NewLua(sandbox.WithLuaHookTimeout(200*time.Millisecond))),
	)))
	h.start(t)

	spin := module.Assignment{
		Definition: module.Definition{
			Name:   "spin",
			Source: sandbox.Source{Runtime: sandbox.RuntimeLua, Code: "while true do end"},
		},
		Deadline: epoch.Add(time.Second),
	}
	require.NoError(t, h.runner.Assign(t.Context(), spin))

	// the loop keeps answering while the module spins
	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	require.NoError(t, h.runner.Assign(ctx, module.Assignment{
		Definition: module.EmptyDefinition(),
		Deadline:   epoch.Add(2 * time.Second),
	}))

	require.Eventually(t, func() bool { return h.runner.Failures() == 1 }, waitFor, poll)
	assert.Eventually(t, func() bool {
		return h.runner.Current() == placeholder(epoch.Add(time.Second))
	}, waitFor, poll)
}
