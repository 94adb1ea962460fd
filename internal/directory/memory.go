package directory

import (
	"context"
	"sync"
)

// Memory is a process-local directory.
type Memory struct {
	mu    sync.RWMutex
	conns map[string]string
}

// NewMemory creates an empty directory.
func NewMemory() *Memory {
	return &Memory{conns: make(map[string]string)}
}

// Register binds playerID to connID, replacing any earlier binding.
func (m *Memory) Register(_ context.Context, playerID, connID string) error {
	m.mu.Lock()
	m.conns[playerID] = connID
	m.mu.Unlock()
	return nil
}

// Unregister removes the binding only if it still points at connID, so a
// stale close cannot evict a newer connection.
func (m *Memory) Unregister(_ context.Context, playerID, connID string) error {
	m.mu.Lock()
	if m.conns[playerID] == connID {
		delete(m.conns, playerID)
	}
	m.mu.Unlock()
	return nil
}

// Refresh only reports a missing binding. Memory bindings never expire.
func (m *Memory) Refresh(_ context.Context, playerID, _ string) error {
	m.mu.RLock()
	_, ok := m.conns[playerID]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Resolve returns the connection bound to playerID.
func (m *Memory) Resolve(_ context.Context, playerID string) (string, error) {
	m.mu.RLock()
	conn, ok := m.conns[playerID]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return conn, nil
}

// Len returns the number of bound players.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}
