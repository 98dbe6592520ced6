package store

import (
	"context"
	"sync"

	"github.com/viant/movegate/service/dao"
)

// MemoryStore is a generic in-memory implementation of dao.Service.
// It keeps entities of type *T mapped by a comparable key K obtained from
// keySelector. When a cloner is supplied every Save stores a copy and every
// read returns a copy, so callers can never mutate stored state in place.
type MemoryStore[K comparable, T any] struct {
	mu          sync.RWMutex
	records     map[K]*T
	keySelector func(*T) K
	cloner      func(*T) *T
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore[K comparable, T any](keySelector func(*T) K) *MemoryStore[K, T] {
	return &MemoryStore[K, T]{
		records:     make(map[K]*T),
		keySelector: keySelector,
		cloner:      func(v *T) *T { return v },
	}
}

// NewCloningStore creates a MemoryStore that copies values on the way in and out.
func NewCloningStore[K comparable, T any](keySelector func(*T) K, cloner func(*T) *T) *MemoryStore[K, T] {
	ret := NewMemoryStore[K, T](keySelector)
	if cloner != nil {
		ret.cloner = cloner
	}
	return ret
}

// Save stores or overwrites a record.
func (s *MemoryStore[K, T]) Save(_ context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.keySelector(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = s.cloner(v)
	return nil
}

// Load returns a record by key, or (nil, nil) when absent.
func (s *MemoryStore[K, T]) Load(_ context.Context, key K) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return s.cloner(v), nil
}

// Delete removes a record; deleting an absent key is not an error.
func (s *MemoryStore[K, T]) Delete(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// List returns all stored records in no particular order.
func (s *MemoryStore[K, T]) List(_ context.Context, _ ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*T, 0, len(s.records))
	for _, v := range s.records {
		out = append(out, s.cloner(v))
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStore[K, T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ dao.Service[string, struct{}] = (*MemoryStore[string, struct{}])(nil)
