package store

import (
	"context"
	"sync"
)

// MemoryBackend is an in-process Backend guarded by a single mutex.
// It is the fallback when the shared backend is unreachable and the default
// for single-instance deployments.
type MemoryBackend struct {
	mu     sync.Mutex
	lists  map[string][]string
	values map[string]string
}

// NewMemory creates an empty in-process backend.
func NewMemory() *MemoryBackend {
	return &MemoryBackend{
		lists:  make(map[string][]string),
		values: make(map[string]string),
	}
}

// Append pushes value and trims the list to its newest maxLen entries.
func (m *MemoryBackend) Append(_ context.Context, key, value string, maxLen int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append(m.lists[key], value)
	if maxLen > 0 && len(list) > maxLen {
		list = append([]string(nil), list[len(list)-maxLen:]...)
	}
	m.lists[key] = list
	return nil
}

// Range returns a copy of the list.
func (m *MemoryBackend) Range(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.lists[key]...), nil
}

// Replace overwrites the list.
func (m *MemoryBackend) Replace(_ context.Context, key string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(values) == 0 {
		delete(m.lists, key)
		return nil
	}
	m.lists[key] = append([]string(nil), values...)
	return nil
}

// ReplaceIfEmpty stores values if the list at key is empty.
func (m *MemoryBackend) ReplaceIfEmpty(_ context.Context, key string, values []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(values) == 0 || len(m.lists[key]) > 0 {
		return false, nil
	}
	m.lists[key] = append([]string(nil), values...)
	return true, nil
}

// SetIfAbsent stores value if key is unset.
func (m *MemoryBackend) SetIfAbsent(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	return true, nil
}

// Get returns the value at key.
func (m *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value at key.
func (m *MemoryBackend) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// Ping always succeeds.
func (m *MemoryBackend) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryBackend) Close() error { return nil }
