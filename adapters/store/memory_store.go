package store

import (
	"sync"

	"github.com/layer-3/reach/core"
	"github.com/layer-3/reach/ports"
)

// MemoryRegistry is an in-memory implementation of the RegistryStore interface.
// Expired entries are kept until overwritten or deregistered.
type MemoryRegistry struct {
	entries map[string]core.RegistryEntry
	mu      sync.RWMutex
}

var _ ports.RegistryStore = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty registry store
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]core.RegistryEntry),
	}
}

// Register replaces any prior entry for the same DID
func (s *MemoryRegistry) Register(entry *core.RegistryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.DID] = *entry
}

// Lookup returns a copy of the stored entry
func (s *MemoryRegistry) Lookup(did string) (*core.RegistryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[did]
	if !ok {
		return nil, false
	}
	return &entry, true
}

// Deregister removes the entry if present
func (s *MemoryRegistry) Deregister(did string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[did]
	delete(s.entries, did)
	return ok
}

// Len returns the number of stored entries, expired ones included
func (s *MemoryRegistry) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}
