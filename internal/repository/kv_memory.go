package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryKV is an in-process stand-in for Redis used in single-node mode and
// in tests. TTLs are honored lazily on read.
type MemoryKV struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Time

	Now func() time.Time
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		values:  make(map[string]string),
		expires: make(map[string]time.Time),
		Now:     time.Now,
	}
}

func (m *MemoryKV) expired(key string) bool {
	exp, ok := m.expires[key]
	return ok && !m.Now().Before(exp)
}

func (m *MemoryKV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.values[key]; ok && !m.expired(key) {
		return false, nil
	}
	m.values[key] = value
	if ttl > 0 {
		m.expires[key] = m.Now().Add(ttl)
	} else {
		delete(m.expires, key)
	}
	return true, nil
}

func (m *MemoryKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	if ttl > 0 {
		m.expires[key] = m.Now().Add(ttl)
	} else {
		delete(m.expires, key)
	}
	return nil
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		delete(m.values, key)
		delete(m.expires, key)
		return "", nil
	}
	return m.values[key], nil
}

func (m *MemoryKV) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.expires, key)
	return nil
}
