package memory

import (
	"context"
	"sync"
	"time"

	"github.com/deskd-io/deskd/pkg/protocol"
)

// maxHistory bounds how many messages a session keeps. Older messages are
// dropped oldest-first.
const maxHistory = 50

// Store keeps per-session conversation history so follow-up queries can be
// resolved against earlier exchanges.
type Store interface {
	// Append adds messages to a session's history.
	Append(ctx context.Context, sessionID string, msgs ...protocol.ChatMessage) error
	// History returns a session's messages, oldest first. A missing
	// session yields an empty slice, not an error.
	History(ctx context.Context, sessionID string) ([]protocol.ChatMessage, error)
	// Clear forgets a session.
	Clear(ctx context.Context, sessionID string) error
}

// InMemoryStore is the default Store: process-local, bounded, safe for
// concurrent use. History does not survive a restart.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]protocol.ChatMessage
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]protocol.ChatMessage)}
}

func (s *InMemoryStore) Append(_ context.Context, sessionID string, msgs ...protocol.ChatMessage) error {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	hist := s.sessions[sessionID]
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		hist = append(hist, m)
	}
	if len(hist) > maxHistory {
		hist = hist[len(hist)-maxHistory:]
	}
	s.sessions[sessionID] = hist
	return nil
}

func (s *InMemoryStore) History(_ context.Context, sessionID string) ([]protocol.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.sessions[sessionID]
	out := make([]protocol.ChatMessage, len(hist))
	copy(out, hist)
	return out, nil
}

func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
