// Package stocksync is the orchestration layer of the synchronization
// core: it owns the snapshot stores, fetch coordinators, and per-scope
// streams, gates every fetch on the caller's authentication-readiness
// signal, and invalidates caches when a write succeeds.
package stocksync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/illmade-knight/go-stocksync/pkg/debounce"
	"github.com/illmade-knight/go-stocksync/pkg/fetch"
	"github.com/illmade-knight/go-stocksync/pkg/pagestream"
	"github.com/illmade-knight/go-stocksync/pkg/resource"
	"github.com/illmade-knight/go-stocksync/pkg/snapshot"
)

// scopeSelectChannel is the debounce channel coalescing rapid scope
// switches into a single load.
const scopeSelectChannel = "scope-select"

// ReadinessFunc reports whether the session is ready for network I/O.
// While it returns false the service issues zero fetches and fails
// synchronously with an auth-required error. It is trusted unconditionally.
type ReadinessFunc func() bool

// ServiceConfig holds configuration for the sync service.
type ServiceConfig struct {
	// SnapshotTTL is the freshness window for cached snapshots.
	// Defaults to snapshot.DefaultTTL.
	SnapshotTTL time.Duration
	// DebounceDelay is the coalescing window for rapid scope switches.
	// Defaults to debounce.DefaultDelay.
	DebounceDelay time.Duration
	// MaxRetries is the automatic retry budget per logical operation.
	// Defaults to fetch.DefaultMaxRetries.
	MaxRetries int
}

// Service is the UI-facing entry point of the synchronization core. It is
// constructed once per application session; tests construct fresh,
// isolated instances.
type Service struct {
	cfg       ServiceConfig
	api       resource.API
	ready     ReadinessFunc
	logger    zerolog.Logger
	scheduler *debounce.Scheduler

	inventoryStore *snapshot.MemoryStore[pagestream.Page[resource.InventoryItem]]
	movementStore  *snapshot.MemoryStore[pagestream.Page[resource.StockMovement]]
	scopeStore     *snapshot.MemoryStore[pagestream.Page[resource.Scope]]
	summaryStore   *snapshot.MemoryStore[resource.Summary]

	inventoryCoordinator *fetch.Coordinator[pagestream.Page[resource.InventoryItem]]
	movementCoordinator  *fetch.Coordinator[pagestream.Page[resource.StockMovement]]
	scopeCoordinator     *fetch.Coordinator[pagestream.Page[resource.Scope]]
	summaryCoordinator   *fetch.Coordinator[resource.Summary]

	invalidator   *Invalidator
	scopes        *pagestream.Stream[resource.Scope]
	summaryPolicy *fetch.RetryPolicy

	mu          sync.Mutex
	scopeID     string
	inventory   *pagestream.Stream[resource.InventoryItem]
	additions   *pagestream.Stream[resource.StockMovement]
	withdrawals *pagestream.Stream[resource.StockMovement]

	dashboard dashboardState
}

// NewService creates a Service over the given resource API.
func NewService(cfg ServiceConfig, api resource.API, ready ReadinessFunc, logger zerolog.Logger) (*Service, error) {
	if api == nil {
		return nil, fmt.Errorf("resource API cannot be nil")
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = snapshot.DefaultTTL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = fetch.DefaultMaxRetries
	}

	logger = logger.With().Str("component", "SyncService").Logger()
	storeCfg := snapshot.MemoryStoreConfig{TTL: cfg.SnapshotTTL}

	s := &Service{
		cfg:            cfg,
		api:            api,
		ready:          ready,
		logger:         logger,
		scheduler:      debounce.NewScheduler(cfg.DebounceDelay, logger),
		inventoryStore: snapshot.NewMemoryStore[pagestream.Page[resource.InventoryItem]](storeCfg),
		movementStore:  snapshot.NewMemoryStore[pagestream.Page[resource.StockMovement]](storeCfg),
		scopeStore:     snapshot.NewMemoryStore[pagestream.Page[resource.Scope]](storeCfg),
		summaryStore:   snapshot.NewMemoryStore[resource.Summary](storeCfg),
	}
	s.inventoryCoordinator = fetch.NewCoordinator[pagestream.Page[resource.InventoryItem]](s.inventoryStore, logger)
	s.movementCoordinator = fetch.NewCoordinator[pagestream.Page[resource.StockMovement]](s.movementStore, logger)
	s.scopeCoordinator = fetch.NewCoordinator[pagestream.Page[resource.Scope]](s.scopeStore, logger)
	s.summaryCoordinator = fetch.NewCoordinator[resource.Summary](s.summaryStore, logger)
	s.invalidator = NewInvalidator(logger, s.inventoryStore, s.movementStore, s.summaryStore)
	s.summaryPolicy = fetch.NewRetryPolicy(cfg.MaxRetries)
	s.dashboard = dashboardState{summary: resource.EmptySummary()}

	s.scopes = pagestream.NewStream(s.scopeFetcher(), fetch.NewRetryPolicy(cfg.MaxRetries), logger)
	return s, nil
}

// checkReady is the synchronous auth gate. No network I/O happens past a
// failing readiness signal.
func (s *Service) checkReady() error {
	if s.ready != nil && !s.ready() {
		return fetch.ErrAuthRequired
	}
	return nil
}

// Scopes is the stream over the available scopes (the flat scope list
// endpoint). It exists independently of any selection.
func (s *Service) Scopes() *pagestream.Stream[resource.Scope] {
	return s.scopes
}

// SelectedScope returns the currently selected scope ID, empty if none.
func (s *Service) SelectedScope() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scopeID
}

// Inventory returns the selected scope's inventory stream, nil before the
// first SelectScope.
func (s *Service) Inventory() *pagestream.Stream[resource.InventoryItem] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inventory
}

// Additions returns the selected scope's restock log stream.
func (s *Service) Additions() *pagestream.Stream[resource.StockMovement] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.additions
}

// Withdrawals returns the selected scope's withdrawal log stream.
func (s *Service) Withdrawals() *pagestream.Stream[resource.StockMovement] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withdrawals
}

// SelectScope switches the active scope. The previous scope's streams are
// discarded wholesale, immediately, so no stale items can render under the
// new selection; the new scope's load is debounced so rapid switching
// costs one fetch, not one per hop.
func (s *Service) SelectScope(ctx context.Context, scopeID string) {
	s.mu.Lock()
	if s.scopeID == scopeID {
		s.mu.Unlock()
		return
	}
	if s.inventory != nil {
		s.inventory.Discard()
		s.additions.Discard()
		s.withdrawals.Discard()
	}

	s.scopeID = scopeID
	s.inventory = pagestream.NewStream(s.inventoryFetcher(scopeID), fetch.NewRetryPolicy(s.cfg.MaxRetries), s.logger)
	s.additions = pagestream.NewStream(s.movementFetcher(scopeID, snapshot.ResourceAdditions), fetch.NewRetryPolicy(s.cfg.MaxRetries), s.logger)
	s.withdrawals = pagestream.NewStream(s.movementFetcher(scopeID, snapshot.ResourceWithdrawals), fetch.NewRetryPolicy(s.cfg.MaxRetries), s.logger)
	s.dashboard = dashboardState{summary: resource.EmptySummary()}
	s.summaryPolicy.Reset()
	inventory, additions, withdrawals := s.inventory, s.additions, s.withdrawals
	s.mu.Unlock()

	s.logger.Info().Str("scope_id", scopeID).Msg("Scope selected.")

	s.scheduler.Schedule(scopeSelectChannel, func() {
		if err := s.loadStreams(ctx, inventory, additions, withdrawals); err != nil {
			s.logger.Warn().Err(err).Str("scope_id", scopeID).Msg("Initial scope load failed.")
		}
	})
}

// RefreshAll force-refreshes the selected scope's three streams
// concurrently, bypassing cached snapshots.
func (s *Service) RefreshAll(ctx context.Context) error {
	s.mu.Lock()
	inventory, additions, withdrawals := s.inventory, s.additions, s.withdrawals
	s.mu.Unlock()
	if inventory == nil {
		return fmt.Errorf("no scope selected")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return inventory.Refresh(gctx) })
	g.Go(func() error { return additions.Refresh(gctx) })
	g.Go(func() error { return withdrawals.Refresh(gctx) })
	return g.Wait()
}

// AddStock records a restock. On success the scope's cached views are
// invalidated synchronously before this returns, so the next read is a
// guaranteed miss. A rejected payload is surfaced verbatim and never
// invalidates anything.
func (s *Service) AddStock(ctx context.Context, scopeID string, mutation resource.Mutation) error {
	return s.mutate(ctx, scopeID, mutation, s.api.AddStock)
}

// WithdrawStock records a withdrawal/sale, with the same invalidation
// contract as AddStock.
func (s *Service) WithdrawStock(ctx context.Context, scopeID string, mutation resource.Mutation) error {
	return s.mutate(ctx, scopeID, mutation, s.api.WithdrawStock)
}

func (s *Service) mutate(ctx context.Context, scopeID string, mutation resource.Mutation, write func(context.Context, string, resource.Mutation) error) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if err := write(ctx, scopeID, mutation); err != nil {
		return err
	}
	s.invalidator.InvalidateScope(ctx, scopeID)
	return nil
}

// CancelPending drops any debounced work, e.g. when the owning view goes
// away.
func (s *Service) CancelPending() {
	s.scheduler.Cancel(scopeSelectChannel)
}

// Close releases the service's resources.
func (s *Service) Close() error {
	s.scheduler.Stop()
	for _, closer := range []interface{ Close() error }{
		s.inventoryStore, s.movementStore, s.scopeStore, s.summaryStore,
	} {
		_ = closer.Close()
	}
	return nil
}

// loadStreams populates freshly created streams for a newly selected
// scope. Cached snapshots may serve page zero.
func (s *Service) loadStreams(ctx context.Context, inventory *pagestream.Stream[resource.InventoryItem], additions, withdrawals *pagestream.Stream[resource.StockMovement]) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return inventory.Load(gctx) })
	g.Go(func() error { return additions.Load(gctx) })
	g.Go(func() error { return withdrawals.Load(gctx) })
	return g.Wait()
}

// inventoryFetcher builds the page fetcher for one scope's inventory. Page
// zero flows through the coordinator, so it is cached and single-flight;
// later pages are always live.
func (s *Service) inventoryFetcher(scopeID string) pagestream.PageFetcher[resource.InventoryItem] {
	return func(ctx context.Context, page int, force bool) (pagestream.Page[resource.InventoryItem], error) {
		var zero pagestream.Page[resource.InventoryItem]
		if err := s.checkReady(); err != nil {
			return zero, err
		}
		if page > 0 {
			return s.api.Inventory(ctx, scopeID, page)
		}
		key := snapshot.NewKey(scopeID, snapshot.ResourceInventory)
		return s.inventoryCoordinator.Request(ctx, key, func(ctx context.Context) (pagestream.Page[resource.InventoryItem], error) {
			return s.api.Inventory(ctx, scopeID, 0)
		}, fetch.RequestOptions{ForceRefresh: force})
	}
}

// movementFetcher builds the page fetcher for a scope's addition or
// withdrawal log; the resource type picks the endpoint and the cache key.
func (s *Service) movementFetcher(scopeID string, resourceType snapshot.ResourceType) pagestream.PageFetcher[resource.StockMovement] {
	read := s.api.Additions
	if resourceType == snapshot.ResourceWithdrawals {
		read = s.api.Withdrawals
	}
	return func(ctx context.Context, page int, force bool) (pagestream.Page[resource.StockMovement], error) {
		var zero pagestream.Page[resource.StockMovement]
		if err := s.checkReady(); err != nil {
			return zero, err
		}
		if page > 0 {
			return read(ctx, scopeID, page)
		}
		key := snapshot.NewKey(scopeID, resourceType)
		return s.movementCoordinator.Request(ctx, key, func(ctx context.Context) (pagestream.Page[resource.StockMovement], error) {
			return read(ctx, scopeID, 0)
		}, fetch.RequestOptions{ForceRefresh: force})
	}
}

func (s *Service) scopeFetcher() pagestream.PageFetcher[resource.Scope] {
	return func(ctx context.Context, page int, force bool) (pagestream.Page[resource.Scope], error) {
		var zero pagestream.Page[resource.Scope]
		if err := s.checkReady(); err != nil {
			return zero, err
		}
		if page > 0 {
			return s.api.Scopes(ctx, page)
		}
		key := snapshot.NewKey("", snapshot.ResourceScopes)
		return s.scopeCoordinator.Request(ctx, key, func(ctx context.Context) (pagestream.Page[resource.Scope], error) {
			return s.api.Scopes(ctx, 0)
		}, fetch.RequestOptions{ForceRefresh: force})
	}
}
