package snapshot

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Get when no entry exists for a key.
// Check it with errors.Is.
var ErrNotFound = errors.New("snapshot: entry not found")

// DefaultTTL is how long a stored snapshot is considered fresh.
const DefaultTTL = 60 * time.Second

// Entry is one stored snapshot and the instant it was fetched. Entries are
// immutable once written; a later fetch replaces the whole entry.
type Entry[T any] struct {
	Data      T         `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the contract for a time-bounded snapshot store keyed by
// (scope, resource type). It is read-through: Get returns whatever is held,
// fresh or stale, and callers must consult IsValid before trusting it.
// Writers never merge, only replace. There is no background eviction;
// staleness is judged lazily at read time.
type Store[T any] interface {
	// Get retrieves the entry for a key, or ErrNotFound.
	Get(ctx context.Context, key Key) (Entry[T], error)
	// IsValid reports whether an entry is still within the store's TTL.
	IsValid(entry Entry[T]) bool
	// Set overwrites the entry for a key, stamping the current time.
	Set(ctx context.Context, key Key, data T) error
	// Invalidate removes every entry whose key belongs to the given scope,
	// across all resource types.
	Invalidate(ctx context.Context, scopeID string) error
	// Closer releases any resources held by the implementation.
	io.Closer
}
