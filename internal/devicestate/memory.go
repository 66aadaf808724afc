// Package devicestate holds per-device celebration memory: the last board
// count each device has already celebrated. It is never synchronized with
// the counter store.
package devicestate

import "sync"

// Memory is an in-process celebration memory.
type Memory struct {
	mu       sync.Mutex
	lastSeen map[string]int
}

// NewMemory creates an empty memory
func NewMemory() *Memory {
	return &Memory{lastSeen: make(map[string]int)}
}

// LastSeen returns the remembered count for boardID and whether one exists.
func (m *Memory) LastSeen(boardID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.lastSeen[boardID]
	return n, ok, nil
}

// SetLastSeen records count as celebrated for boardID.
func (m *Memory) SetLastSeen(boardID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeen[boardID] = count
	return nil
}

// Forget drops the entry for boardID.
func (m *Memory) Forget(boardID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lastSeen, boardID)
	return nil
}
