package state

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and examples. It keys records by
// Ref.Identifier() and issues a fresh revision ETag on every save.
type MemoryStore[T any] struct {
	mu       sync.RWMutex
	records  map[string]memoryRecord[T]
	revision int
}

type memoryRecord[T any] struct {
	snapshot T
	meta     Meta
}

func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{records: map[string]memoryRecord[T]{}}
}

func (s *MemoryStore[T]) Load(_ context.Context, ref Ref) (T, Meta, bool, error) {
	var zero T
	key, err := ref.Identifier()
	if err != nil {
		return zero, Meta{}, false, err
	}

	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return zero, Meta{}, false, nil
	}
	return record.snapshot, CloneMeta(record.meta), true, nil
}

func (s *MemoryStore[T]) Save(_ context.Context, ref Ref, snapshot T, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, exists := s.records[key]
	if meta.ETag != "" && exists && prev.meta.ETag != meta.ETag {
		return Meta{}, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, prev.meta.ETag)
	}
	s.revision++
	saved := mergeMeta(prev.meta, meta)
	saved.SnapshotID = key
	saved.ETag = fmt.Sprintf("r%d", s.revision)
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = time.Now().UTC()
	}
	s.records[key] = memoryRecord[T]{snapshot: snapshot, meta: CloneMeta(saved)}
	return CloneMeta(saved), nil
}
