// Package statestore provides the "state" capability: a small key/value map
// shared by the server and client halves of one module instance and kept in
// step over the instance's network channel.
package statestore

import (
	"sort"
	"sync"
)

// Event is the network event name used to replicate writes.
const Event = "_state"

// Emitter is the send side of a network channel.
type Emitter interface {
	Emit(event string, payload any) bool
}

// Update is the payload of a replicated write.
type Update struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Store is a replicated key/value map.
type Store struct {
	out Emitter

	mu     sync.RWMutex
	values map[string]any
}

// New creates a store that replicates writes through out. A nil emitter
// keeps the store local.
func New(out Emitter) *Store {
	return &Store{out: out, values: make(map[string]any)}
}

// Set stores the value locally and replicates it.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	if s.out != nil {
		s.out.Emit(Event, Update{Key: key, Value: value})
	}
}

// Get returns the current value for key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Keys lists the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply merges a replicated write. Payloads of any other shape are ignored.
func (s *Store) Apply(payload any) {
	u, ok := payload.(Update)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[u.Key] = u.Value
}
