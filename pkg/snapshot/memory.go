package snapshot

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryStoreConfig holds configuration for the in-memory store.
type MemoryStoreConfig struct {
	// TTL is the freshness window for stored entries. Defaults to DefaultTTL.
	TTL time.Duration
	// MaxEntries bounds the number of held snapshots; the least recently
	// read or written entry is evicted when the bound is exceeded.
	// Zero means unbounded.
	MaxEntries int
}

// memoryItem is the internal structure stored in the recency list.
type memoryItem[T any] struct {
	key   Key
	entry Entry[T]
}

// MemoryStore is a thread-safe, in-memory Store with lazy TTL validity and
// an optional LRU size bound. It is the default store for a single-process
// client session.
type MemoryStore[T any] struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu    sync.Mutex
	ll    *list.List // recency order, most recent at the front
	index map[Key]*list.Element
}

// NewMemoryStore creates a new in-memory snapshot store.
func NewMemoryStore[T any](cfg MemoryStoreConfig) *MemoryStore[T] {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &MemoryStore[T]{
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
		ll:         list.New(),
		index:      make(map[Key]*list.Element),
	}
}

// Get retrieves the entry for a key, fresh or stale, or ErrNotFound.
// Stale entries are not removed here; replacement happens on the next Set.
func (s *MemoryStore[T]) Get(_ context.Context, key Key) (Entry[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.index[key]
	if !ok {
		var zero Entry[T]
		return zero, ErrNotFound
	}
	s.ll.MoveToFront(elem)
	return elem.Value.(*memoryItem[T]).entry, nil
}

// IsValid reports whether the entry's age is strictly inside the TTL window.
// An entry aged exactly TTL is already stale.
func (s *MemoryStore[T]) IsValid(entry Entry[T]) bool {
	return s.now().Sub(entry.Timestamp) < s.ttl
}

// Set overwrites the entry for a key, stamping the current time.
func (s *MemoryStore[T]) Set(_ context.Context, key Key, data T) error {
	stamped := Entry[T]{Data: data, Timestamp: s.now()}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.index[key]; ok {
		elem.Value.(*memoryItem[T]).entry = stamped
		s.ll.MoveToFront(elem)
		return nil
	}

	elem := s.ll.PushFront(&memoryItem[T]{key: key, entry: stamped})
	s.index[key] = elem

	if s.maxEntries > 0 && s.ll.Len() > s.maxEntries {
		s.evict()
	}
	return nil
}

// Invalidate removes every entry belonging to the given scope.
func (s *MemoryStore[T]) Invalidate(_ context.Context, scopeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, elem := range s.index {
		if key.ScopeID == scopeID {
			s.ll.Remove(elem)
			delete(s.index, key)
		}
	}
	return nil
}

// evict removes the least recently used entry. Callers must hold the mutex.
func (s *MemoryStore[T]) evict() {
	back := s.ll.Back()
	if back != nil {
		item := s.ll.Remove(back).(*memoryItem[T])
		delete(s.index, item.key)
	}
}

// Close is a no-op for the in-memory store but satisfies the Store interface.
func (s *MemoryStore[T]) Close() error {
	return nil
}
