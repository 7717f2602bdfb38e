package monitor

import (
	"slices"
	"strings"
	"sync"
)

// Store keeps the latest snapshot of every node.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]Snapshot
}

func NewStore() *Store {
	return &Store{nodes: make(map[string]Snapshot)}
}

func (s *Store) Update(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[snap.Node] = snap
}

// Get returns the latest snapshot of node.
func (s *Store) Get(node string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.nodes[node]
	return snap, ok
}

// All returns the latest snapshots ordered by node.
func (s *Store) All() []Snapshot {
	s.mu.RLock()
	out := make([]Snapshot, 0, len(s.nodes))
	for _, snap := range s.nodes {
		out = append(out, snap)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Snapshot) int {
		return strings.Compare(a.Node, b.Node)
	})
	return out
}
