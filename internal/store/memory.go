package store

import (
	"context"
	"sync"

	"github.com/voidworks/venting-vault/backend/internal/model/chat"
)

// MemoryStore keeps the log in process memory. It backs tests and the
// degraded mode entered when the sqlite file cannot be opened: the
// conversation then simply stops surviving restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	payload []byte
	set     bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the last saved log, or ErrNotFound before any save.
func (s *MemoryStore) Load(_ context.Context) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return nil, ErrNotFound
	}
	return decodeLog(s.payload)
}

// Save overwrites the stored log. Round-tripping through the same codec
// as the sqlite store keeps the two interchangeable in tests.
func (s *MemoryStore) Save(_ context.Context, messages []chat.Message) error {
	payload, err := encodeLog(messages)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.payload = payload
	s.set = true
	s.mu.Unlock()
	return nil
}

// Remove clears the stored log.
func (s *MemoryStore) Remove(_ context.Context) error {
	s.mu.Lock()
	s.payload = nil
	s.set = false
	s.mu.Unlock()
	return nil
}
