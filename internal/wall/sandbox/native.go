package sandbox

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/atlanticdynamic/lumenwall/internal/wall/behavior"
)

// Pair is a server and client factory compiled into the binary.
type Pair struct {
	Server behavior.ServerFactory
	Client behavior.ClientFactory
}

// Native is the runtime for modules written in Go. The module source is the
// name the pair was registered under.
type Native struct {
	mu    sync.RWMutex
	pairs map[string]Pair
}

// NewNative returns a native runtime with no modules.
func NewNative() *Native {
	return &Native{pairs: make(map[string]Pair)}
}

func (n *Native) Name() string {
	return RuntimeNative
}

// Register makes a module available under name.
func (n *Native) Register(name string, p Pair) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pairs[name] = p
}

// Names lists the registered modules.
func (n *Native) Names() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, 0, len(n.pairs))
	for name := range n.pairs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load looks up the pair named by code. Factories are expected to return a
// fresh value on every call, which is what isolates native instances.
func (n *Native) Load(_ context.Context, _ string, code string) (*Loaded, error) {
	name := strings.TrimSpace(code)
	n.mu.RLock()
	p, ok := n.pairs[name]
	n.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no native module named %q", ErrMalformedModule, name)
	}
	return &Loaded{Server: p.Server, Client: p.Client}, nil
}
