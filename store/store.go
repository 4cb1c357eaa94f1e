// Package store provides retention of completed invocation outcomes so
// callers can inspect past conversations and their execution histories. The
// in-memory implementation is safe for concurrent access and best suited for
// tests or ephemeral demo servers.
package store

import (
	"sort"
	"sync"

	"github.com/hupe1980/agentnet/router"
)

// Store persists completed invocation responses keyed by invocation id.
type Store interface {
	// Save retains a completed response. Saving an existing id replaces it.
	Save(resp *router.Response) error

	// Get returns a retained response by invocation id.
	Get(invocationID string) (*router.Response, bool)

	// List returns the retained invocation ids in sorted order.
	List() []string
}

// InMemoryStore is a volatile Store implementation keeping responses in a
// process-local map.
type InMemoryStore struct {
	mu        sync.RWMutex
	responses map[string]*router.Response
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{responses: map[string]*router.Response{}}
}

// Save implements Store.
func (s *InMemoryStore) Save(resp *router.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[resp.InvocationID] = resp
	return nil
}

// Get implements Store.
func (s *InMemoryStore) Get(invocationID string) (*router.Response, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp, ok := s.responses[invocationID]
	return resp, ok
}

// List implements Store.
func (s *InMemoryStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.responses))
	for id := range s.responses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
