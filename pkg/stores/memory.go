package stores

import (
	"context"
	"fmt"
	"sync"

	"github.com/veriflow/veriflow/pkg/engine"
)

type storeKey struct {
	runID      string
	artifactID string
}

// MemoryStore is an in-memory artifact store. Writes to different keys are
// serialised by a single mutex; writing the same key twice fails.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[storeKey]engine.Message
	order    map[string][]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[storeKey]engine.Message),
		order:    make(map[string][]string),
	}
}

// Save persists a message under (runID, artifactID), enforcing write-once.
func (s *MemoryStore) Save(_ context.Context, runID, artifactID string, msg engine.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey{runID: runID, artifactID: artifactID}
	if _, exists := s.messages[key]; exists {
		return fmt.Errorf("artifact %q already written for run %q", artifactID, runID)
	}
	s.messages[key] = msg
	s.order[runID] = append(s.order[runID], artifactID)
	return nil
}

// Get retrieves the message stored under (runID, artifactID).
func (s *MemoryStore) Get(_ context.Context, runID, artifactID string) (engine.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[storeKey{runID: runID, artifactID: artifactID}]
	if !ok {
		return engine.Message{}, fmt.Errorf("artifact %q not found for run %q", artifactID, runID)
	}
	return msg, nil
}

// List returns the artifact IDs stored for a run in insertion order.
func (s *MemoryStore) List(_ context.Context, runID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.order[runID]))
	copy(ids, s.order[runID])
	return ids, nil
}
