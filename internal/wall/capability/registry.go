// Package capability implements the per-instance service registry that a
// module uses to reach host services. Each running module gets its own
// Registry so no two modules ever share a located value.
package capability

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnknownCapability = errors.New("unknown capability")
	ErrCapabilityType    = errors.New("capability has unexpected type")
)

// Well-known capability names.
const (
	Debug              = "debug"
	Clock              = "clock"
	Network            = "network"
	PeerNetwork        = "peerNetwork"
	State              = "state"
	TitleCard          = "titleCard"
	WallGeometry       = "wallGeometry"
	GlobalWallGeometry = "globalWallGeometry"
)

// Factory builds a capability value the first time it is located.
type Factory func() (any, error)

type entry struct {
	factory Factory
	once    sync.Once
	value   any
	err     error
}

// Registry maps capability names to lazily built values.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register binds name to factory. Registering a name again replaces the
// factory and discards any value already built from the old one.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{factory: factory}
}

// RegisterValue binds name to a value that needs no construction.
func (r *Registry) RegisterValue(name string, value any) {
	r.Register(name, func() (any, error) { return value, nil })
}

// Locate returns the value for name, building it on first use. The factory
// runs at most once per registry; its error is remembered as well.
func (r *Registry) Locate(name string) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}

	e.once.Do(func() {
		if e.factory == nil {
			e.err = fmt.Errorf("%w: %s has no factory", ErrUnknownCapability, name)
			return
		}
		e.value, e.err = e.factory()
	})
	if e.err != nil {
		return nil, fmt.Errorf("capability %s: %w", name, e.err)
	}
	return e.value, nil
}

// Names lists the registered capability names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Locator is the read side of a Registry.
type Locator interface {
	Locate(name string) (any, error)
}

// As locates name and asserts the value to T.
func As[T any](l Locator, name string) (T, error) {
	var zero T
	v, err := l.Locate(name)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", ErrCapabilityType, name, v)
	}
	return typed, nil
}
