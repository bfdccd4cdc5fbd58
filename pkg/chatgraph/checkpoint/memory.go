package checkpoint

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory checkpoint store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]storedCheckpoint
	closed bool
}

// storedCheckpoint holds checkpoint data with its version.
type storedCheckpoint struct {
	data      []byte
	version   int64
	updatedAt time.Time
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]storedCheckpoint),
	}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, conversationID string) ([]byte, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, 0, ErrStoreClosed
	}

	cp, ok := m.data[conversationID]
	if !ok {
		return nil, 0, ErrNotFound
	}

	// Return a copy to prevent modification
	result := make([]byte, len(cp.data))
	copy(result, cp.data)
	return result, cp.version, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, conversationID string, data []byte, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	current, exists := m.data[conversationID]
	switch {
	case expectedVersion == 0 && exists:
		return 0, ErrVersionConflict
	case expectedVersion > 0 && !exists:
		return 0, ErrNotFound
	case expectedVersion > 0 && current.version != expectedVersion:
		return 0, ErrVersionConflict
	}

	// Copy data to avoid retaining caller's slice
	stored := make([]byte, len(data))
	copy(stored, data)

	next := expectedVersion + 1
	m.data[conversationID] = storedCheckpoint{
		data:      stored,
		version:   next,
		updatedAt: time.Now().UTC(),
	}
	return next, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.data, conversationID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the number of stored conversations. Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
