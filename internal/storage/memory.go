package storage

import (
	"sort"
	"sync"
)

// MemoryMedium keeps slots in a map. A positive quota caps the total size of
// keys plus values in bytes.
type MemoryMedium struct {
	mu    sync.RWMutex
	data  map[string]string
	quota int
	used  int
}

// NewMemoryMedium creates an empty in-memory medium.
func NewMemoryMedium(quota int) *MemoryMedium {
	return &MemoryMedium{data: make(map[string]string), quota: quota}
}

// Get returns the value stored under key.
func (m *MemoryMedium) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set stores value under key, failing with ErrQuotaExceeded when the write
// would exceed the quota.
func (m *MemoryMedium) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used + len(key) + len(value)
	if old, ok := m.data[key]; ok {
		used -= len(key) + len(old)
	}
	if m.quota > 0 && used > m.quota {
		return ErrQuotaExceeded
	}
	m.data[key] = value
	m.used = used
	return nil
}

// Remove deletes key.
func (m *MemoryMedium) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.used -= len(key) + len(old)
		delete(m.data, key)
	}
	return nil
}

// Keys lists every key in ascending order.
func (m *MemoryMedium) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op.
func (m *MemoryMedium) Close() error { return nil }
