package settings

import (
	"context"
	"sync"
)

// Memory keeps settings in process.
type Memory struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]map[string]string)}
}

func (m *Memory) Get(ctx context.Context, scope, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[scope][key]
	return value, ok, nil
}

func (m *Memory) Set(ctx context.Context, scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	values, ok := m.values[scope]
	if !ok {
		values = make(map[string]string)
		m.values[scope] = values
	}
	values[key] = value
	return nil
}
