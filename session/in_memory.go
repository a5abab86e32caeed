package session

import (
	"context"
	"sync"

	"github.com/hupe1980/convomesh/core"
)

// InMemoryStore is a volatile Store implementation keeping history in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Returned slices are copies to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]Message
}

// NewInMemoryStore constructs an empty in-memory history store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{messages: make(map[string][]Message)}
}

// Append implements Store.
func (s *InMemoryStore) Append(_ context.Context, key core.ConversationKey, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[key.String()] = append(s.messages[key.String()], msg)
	return nil
}

// History implements Store.
func (s *InMemoryStore) History(_ context.Context, key core.ConversationKey, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.messages[key.String()]
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]Message, len(history))
	copy(out, history)
	return out, nil
}

// Clear implements Store.
func (s *InMemoryStore) Clear(_ context.Context, key core.ConversationKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, key.String())
	return nil
}

var _ Store = (*InMemoryStore)(nil)
