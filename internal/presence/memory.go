package presence

import (
	"context"
	"sync"
)

// Memory keeps connection counts in process.
type Memory struct {
	mu     sync.RWMutex
	counts map[int64]int
}

func NewMemory() *Memory {
	return &Memory{counts: make(map[int64]int)}
}

func (m *Memory) Connect(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[userID]++
	return m.counts[userID] == 1, nil
}

func (m *Memory) Disconnect(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.counts[userID]
	if !ok {
		return false, nil
	}
	if n <= 1 {
		delete(m.counts, userID)
		return true, nil
	}
	m.counts[userID] = n - 1
	return false, nil
}

func (m *Memory) IsOnline(_ context.Context, userID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[userID] > 0, nil
}

var _ Tracker = (*Memory)(nil)
