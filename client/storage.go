// Package client is the client side of the session: a durable identity
// cache, a persisted cookie jar, the session API and the Store that keeps
// them consistent with the server.
package client

import (
	"context"
	"errors"
	"sync"
)

const (
	// IdentityKey is the durable cache key holding the identity JSON
	IdentityKey = "user"

	// CookiesKey is the durable cache key holding the persisted cookie jar
	CookiesKey = "cookies"
)

// ErrStorageClosed is returned by storage used after Close
var ErrStorageClosed = errors.New("storage closed")

// Storage is a small durable key/value cache
type Storage interface {
	// Get returns the value and whether the key exists
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryStorage is a process-local Storage
type MemoryStorage struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryStorage creates an empty MemoryStorage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (m *MemoryStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrStorageClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryStorage) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStorageClosed
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStorageClosed
	}
	delete(m.data, key)
	return nil
}

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
