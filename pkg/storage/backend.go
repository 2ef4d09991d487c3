// Package storage wraps a key/value backend (the browser's localStorage in the
// original deployment) with availability probing, capacity accounting against
// an application-level soft quota, and fail-fast quota checks on write.
//
// The persistence codec is the only intended caller; it never talks to a
// Backend directly.
package storage

import (
	"errors"
	"sync"
)

// ErrBackendDisabled is returned by backends that are switched off.
var ErrBackendDisabled = errors.New("storage: backend disabled")

// Backend is the minimal key/value surface the adapter needs.
type Backend interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
	RemoveItem(key string) error
	Keys() ([]string, error)
}

// MemoryBackend is an in-process Backend preserving insertion order. It is
// safe for concurrent use. Disabled and FailWrites simulate sandboxed or
// full storage in tests.
type MemoryBackend struct {
	mu    sync.RWMutex
	keys  []string
	items map[string]string

	disabled   bool
	failWrites error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: map[string]string{}}
}

// SetDisabled makes every call fail with ErrBackendDisabled.
func (b *MemoryBackend) SetDisabled(disabled bool) {
	b.mu.Lock()
	b.disabled = disabled
	b.mu.Unlock()
}

// FailWrites makes SetItem return err until called again with nil.
func (b *MemoryBackend) FailWrites(err error) {
	b.mu.Lock()
	b.failWrites = err
	b.mu.Unlock()
}

func (b *MemoryBackend) GetItem(key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.disabled {
		return "", false, ErrBackendDisabled
	}
	v, ok := b.items[key]
	return v, ok, nil
}

func (b *MemoryBackend) SetItem(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disabled {
		return ErrBackendDisabled
	}
	if b.failWrites != nil {
		return b.failWrites
	}
	if _, ok := b.items[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.items[key] = value
	return nil
}

func (b *MemoryBackend) RemoveItem(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disabled {
		return ErrBackendDisabled
	}
	if _, ok := b.items[key]; !ok {
		return nil
	}
	delete(b.items, key)
	for i, k := range b.keys {
		if k == key {
			b.keys = append(b.keys[:i], b.keys[i+1:]...)
			break
		}
	}
	return nil
}

func (b *MemoryBackend) Keys() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.disabled {
		return nil, ErrBackendDisabled
	}
	return append([]string(nil), b.keys...), nil
}
