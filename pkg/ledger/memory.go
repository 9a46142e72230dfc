package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. It is injected like any other
// store; nothing in the package holds a global instance.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Create stores a new entry.
func (s *MemoryStore) Create(ctx context.Context, entry Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.ID]; exists {
		return Entry{}, fmt.Errorf("%w: %s", ErrExists, entry.ID)
	}
	s.entries[entry.ID] = cloneEntry(entry)
	return cloneEntry(entry), nil
}

// Get returns a copy of the entry.
func (s *MemoryStore) Get(ctx context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneEntry(entry), nil
}

// Update merges patch into the entry under the store lock.
func (s *MemoryStore) Update(ctx context.Context, id string, patch Patch, now time.Time) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	updated, err := applyPatch(cloneEntry(entry), patch, now)
	if err != nil {
		return Entry{}, err
	}
	s.entries[id] = updated
	return cloneEntry(updated), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IDs returns the stored entry ids sorted.
func (s *MemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
