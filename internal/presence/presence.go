// Package presence tracks which participants are connected to each conversation.
package presence

import (
	"context"
	"slices"
	"sync"
	"time"
)

// RefreshInterval is how often a live session renews its entry. Backends
// with leases keep entries for three intervals.
const RefreshInterval = 20 * time.Second

// Store holds one entry per connected session, keyed by handle and session
// ID. A handle is present while at least one of its sessions is.
type Store interface {
	// Add records the session as present. Calling it again for the same
	// session is a no-op apart from renewing the entry's lease.
	Add(ctx context.Context, conversationID int64, username, sessionID string) error
	// Remove drops the session's entry. Removing an unknown entry is a no-op.
	Remove(ctx context.Context, conversationID int64, username, sessionID string) error
	// List returns the distinct handles present in a conversation, sorted.
	List(ctx context.Context, conversationID int64) ([]string, error)
	// Count returns the number of distinct handles present.
	Count(ctx context.Context, conversationID int64) (int, error)
}

// Memory is an in-process Store. Its entries die with the process.
type Memory struct {
	mu sync.RWMutex
	// conversation -> handle -> session IDs
	convs map[int64]map[string]map[string]struct{}
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-process presence store.
func NewMemory() *Memory {
	return &Memory{convs: make(map[int64]map[string]map[string]struct{})}
}

func (m *Memory) Add(_ context.Context, conversationID int64, username, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	handles, ok := m.convs[conversationID]
	if !ok {
		handles = make(map[string]map[string]struct{})
		m.convs[conversationID] = handles
	}
	sessions, ok := handles[username]
	if !ok {
		sessions = make(map[string]struct{})
		handles[username] = sessions
	}
	sessions[sessionID] = struct{}{}
	return nil
}

func (m *Memory) Remove(_ context.Context, conversationID int64, username, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	handles, ok := m.convs[conversationID]
	if !ok {
		return nil
	}
	sessions, ok := handles[username]
	if !ok {
		return nil
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(handles, username)
	}
	if len(handles) == 0 {
		delete(m.convs, conversationID)
	}
	return nil
}

func (m *Memory) List(_ context.Context, conversationID int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]string, 0, len(m.convs[conversationID]))
	for u := range m.convs[conversationID] {
		users = append(users, u)
	}
	slices.Sort(users)
	return users, nil
}

func (m *Memory) Count(_ context.Context, conversationID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.convs[conversationID]), nil
}
