package stocksync

import (
	"context"

	"github.com/rs/zerolog"
)

// scopeInvalidator is the slice of the snapshot store contract the
// invalidator needs. Every snapshot.Store implementation satisfies it
// regardless of its value type.
type scopeInvalidator interface {
	Invalidate(ctx context.Context, scopeID string) error
}

// Invalidator evicts, across every registered store, the cache entries a
// successful write can affect. A single stock mutation changes the
// inventory snapshot, the addition log, the withdrawal log, and the
// dashboard summary at once, so all of them are cleared together: the
// next read for the scope is a guaranteed miss. No re-fetch is triggered.
type Invalidator struct {
	stores []scopeInvalidator
	logger zerolog.Logger
}

// NewInvalidator creates an Invalidator over the given stores.
func NewInvalidator(logger zerolog.Logger, stores ...scopeInvalidator) *Invalidator {
	return &Invalidator{
		stores: stores,
		logger: logger.With().Str("component", "Invalidator").Logger(),
	}
}

// InvalidateScope removes every cached entry for the scope from every
// store. Failures are logged and do not stop the remaining stores from
// being cleared; a partially warm cache is worse than a slow one.
func (i *Invalidator) InvalidateScope(ctx context.Context, scopeID string) {
	for _, store := range i.stores {
		if err := store.Invalidate(ctx, scopeID); err != nil {
			i.logger.Error().Err(err).Str("scope_id", scopeID).Msg("Failed to invalidate store for scope.")
		}
	}
	i.logger.Debug().Str("scope_id", scopeID).Msg("Invalidated scope caches after write.")
}
