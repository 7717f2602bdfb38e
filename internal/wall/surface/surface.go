// Package surface describes the drawable region a module renders into.
// Rendering itself belongs to the display process; the playback engine only
// creates surfaces, fades them and removes them.
package surface

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/geometry"
)

var ErrRemoved = errors.New("surface already removed")

// Surface is a drawing region owned by exactly one module instance.
type Surface interface {
	ID() string
	ModuleName() string
	Rect() geometry.Rect
	// FadeTo starts an opacity transition that completes after duration. A
	// non-positive duration applies the opacity at once.
	FadeTo(opacity float64, duration time.Duration) error
	Opacity() float64
	Remove() error
	Removed() bool
}

// Factory creates surfaces for module instances.
type Factory interface {
	Create(moduleName string) (Surface, error)
}

// Headless is a Factory whose surfaces only record their state. It backs
// nodes without a display and is what tests inspect.
type Headless struct {
	rect geometry.Rect
	seq  atomic.Uint64

	mu   sync.Mutex
	live map[string]*HeadlessSurface
}

// NewHeadless returns a factory producing surfaces that cover rect.
func NewHeadless(rect geometry.Rect) *Headless {
	return &Headless{rect: rect, live: make(map[string]*HeadlessSurface)}
}

// Create returns a new transparent surface.
func (h *Headless) Create(moduleName string) (Surface, error) {
	s := &HeadlessSurface{
		id:         fmt.Sprintf("s-%d", h.seq.Add(1)),
		moduleName: moduleName,
		rect:       h.rect,
		owner:      h,
	}
	h.mu.Lock()
	h.live[s.id] = s
	h.mu.Unlock()
	return s, nil
}

// Live returns surfaces that have not been removed, ordered by creation.
func (h *Headless) Live() []*HeadlessSurface {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*HeadlessSurface, 0, len(h.live))
	for _, s := range h.live {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seqNum() < out[j].seqNum() })
	return out
}

// Opaque returns live surfaces whose target opacity is 1.
func (h *Headless) Opaque() []*HeadlessSurface {
	var out []*HeadlessSurface
	for _, s := range h.Live() {
		if s.Target() >= 1 {
			out = append(out, s)
		}
	}
	return out
}

func (h *Headless) forget(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.live, id)
}

// HeadlessSurface is the Surface produced by Headless.
type HeadlessSurface struct {
	id         string
	moduleName string
	rect       geometry.Rect
	owner      *Headless

	mu       sync.Mutex
	opacity  float64
	target   float64
	duration time.Duration
	fades    int
	removed  bool
}

func (s *HeadlessSurface) ID() string          { return s.id }
func (s *HeadlessSurface) ModuleName() string  { return s.moduleName }
func (s *HeadlessSurface) Rect() geometry.Rect { return s.rect }

// FadeTo records the transition. The headless surface has no animation, so
// the target opacity is applied immediately.
func (s *HeadlessSurface) FadeTo(opacity float64, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return ErrRemoved
	}
	s.target = opacity
	s.opacity = opacity
	s.duration = max(duration, 0)
	s.fades++
	return nil
}

func (s *HeadlessSurface) Opacity() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opacity
}

// Target is the opacity of the last requested fade.
func (s *HeadlessSurface) Target() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// LastFade returns the duration of the last requested fade and how many
// fades were requested in total.
func (s *HeadlessSurface) LastFade() (time.Duration, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration, s.fades
}

func (s *HeadlessSurface) Remove() error {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return ErrRemoved
	}
	s.removed = true
	s.mu.Unlock()
	s.owner.forget(s.id)
	return nil
}

func (s *HeadlessSurface) Removed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removed
}

func (s *HeadlessSurface) seqNum() int {
	var n int
	_, _ = fmt.Sscanf(s.id, "s-%d", &n)
	return n
}
