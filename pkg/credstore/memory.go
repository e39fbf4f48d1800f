package credstore

import (
	"context"
	"maps"
	"sync"
)

// Memory is a process-local Backend. It does not survive restarts.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
	closed bool
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// NewMemoryStore is shorthand for New(NewMemory(), opts...).
func NewMemoryStore(opts ...Option) *Store {
	return New(NewMemory(), opts...)
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) SetMany(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	maps.Copy(m.values, values)
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
