// internal/store/memory.go
package store

import "sync"

// Memory is a volatile store, used by tests and the emulator.
type Memory struct {
	mu     sync.Mutex
	values map[string]uint32
}

// NewMemory returns a store holding defaults overlaid with overrides.
func NewMemory(overrides map[string]uint32) *Memory {
	return &Memory{values: withDefaults(overrides)}
}

func (m *Memory) Get(key string) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

func (m *Memory) Set(key string, value uint32) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}
