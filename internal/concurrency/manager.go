// Package concurrency tracks work that must not overlap for the same key.
package concurrency

import "sync"

// Manager hands out non-blocking per-key locks.
// Released keys are dropped, so the map only holds work in flight.
type Manager struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewManager creates a new concurrency manager
func NewManager() *Manager {
	return &Manager{active: make(map[string]struct{})}
}

// TryAcquire reports whether the caller now owns key.
// Key format is up to the caller, e.g. "chat:<user-id>".
func (m *Manager) TryAcquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[key]; busy {
		return false
	}
	m.active[key] = struct{}{}
	return true
}

// Release frees key. Releasing a key that is not held is a no-op.
func (m *Manager) Release(key string) {
	m.mu.Lock()
	delete(m.active, key)
	m.mu.Unlock()
}

// InFlight returns how many keys are currently held
func (m *Manager) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
