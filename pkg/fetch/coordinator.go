package fetch

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-stocksync/pkg/snapshot"
)

// Operation is the underlying network call the coordinator wraps.
type Operation[T any] func(ctx context.Context) (T, error)

// RequestOptions modifies a single Request call.
type RequestOptions struct {
	// ForceRefresh bypasses cache validity and always fetches, though it
	// still attaches to an in-flight call for the same key rather than
	// issuing a second one.
	ForceRefresh bool
}

// KeyState is the authoritative per-key state the coordinator tracks,
// replacing scattered "is a fetch running" flags.
type KeyState int

const (
	// StateIdle means no fetch is running and no fresh snapshot is held.
	StateIdle KeyState = iota
	// StateInFlight means a fetch for the key is currently running.
	StateInFlight
	// StateCached means a fresh snapshot is held and no fetch is running.
	StateCached
)

// call is one in-flight fetch that late callers can attach to.
type call[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Coordinator wraps fetch operations with cache-aware short-circuiting and
// single-flight de-duplication: at most one underlying fetch is ever in
// flight per key, and concurrent callers for the same key share its
// outcome. Failures are propagated unmodified; classification and retry
// policy belong to the call site.
type Coordinator[T any] struct {
	store  snapshot.Store[T]
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[snapshot.Key]*call[T]
}

// NewCoordinator creates a Coordinator backed by the given snapshot store.
func NewCoordinator[T any](store snapshot.Store[T], logger zerolog.Logger) *Coordinator[T] {
	return &Coordinator[T]{
		store:   store,
		logger:  logger.With().Str("component", "Coordinator").Logger(),
		pending: make(map[snapshot.Key]*call[T]),
	}
}

// Request returns data for a key, consulting the snapshot store first.
//
// With a fresh cached entry and no ForceRefresh, the cached value is
// returned with no network activity. If a fetch for the key is already in
// flight, the caller attaches to it and resolves with its eventual outcome.
// Otherwise the operation runs; on success the result is written back to
// the store before being returned.
func (c *Coordinator[T]) Request(ctx context.Context, key snapshot.Key, op Operation[T], opts RequestOptions) (T, error) {
	if !opts.ForceRefresh {
		entry, err := c.store.Get(ctx, key)
		if err == nil && c.store.IsValid(entry) {
			c.logger.Debug().Stringer("key", key).Msg("Cache hit.")
			return entry.Data, nil
		}
		if err != nil && !errors.Is(err, snapshot.ErrNotFound) {
			c.logger.Warn().Err(err).Stringer("key", key).Msg("Snapshot store read failed; falling through to fetch.")
		}
	}

	c.mu.Lock()
	if existing, ok := c.pending[key]; ok {
		c.mu.Unlock()
		c.logger.Debug().Stringer("key", key).Msg("Attaching to in-flight fetch.")
		return c.wait(ctx, existing)
	}

	cl := &call[T]{done: make(chan struct{})}
	c.pending[key] = cl
	c.mu.Unlock()

	cl.value, cl.err = op(ctx)
	if cl.err == nil {
		if writeErr := c.store.Set(ctx, key, cl.value); writeErr != nil {
			// The fetched value is still good; only the write-back failed.
			c.logger.Error().Err(writeErr).Stringer("key", key).Msg("Failed to write snapshot back to store.")
		}
	}

	// The pending entry is removed only once the fetch has settled, so a
	// failed fetch never leaves a key stuck in flight.
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
	close(cl.done)

	return cl.value, cl.err
}

// wait blocks until an in-flight call settles or the waiter's context ends.
// A waiter abandoning the call does not cancel the underlying fetch.
func (c *Coordinator[T]) wait(ctx context.Context, cl *call[T]) (T, error) {
	select {
	case <-cl.done:
		return cl.value, cl.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// State reports the authoritative state for a key: in flight, freshly
// cached, or idle.
func (c *Coordinator[T]) State(ctx context.Context, key snapshot.Key) KeyState {
	c.mu.Lock()
	_, inFlight := c.pending[key]
	c.mu.Unlock()
	if inFlight {
		return StateInFlight
	}

	entry, err := c.store.Get(ctx, key)
	if err == nil && c.store.IsValid(entry) {
		return StateCached
	}
	return StateIdle
}
