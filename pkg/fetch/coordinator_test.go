package fetch_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-stocksync/pkg/fetch"
	"github.com/illmade-knight/go-stocksync/pkg/snapshot"
)

func newTestCoordinator(t *testing.T) (*fetch.Coordinator[string], *snapshot.MemoryStore[string]) {
	t.Helper()
	store := snapshot.NewMemoryStore[string](snapshot.MemoryStoreConfig{})
	return fetch.NewCoordinator[string](store, zerolog.Nop()), store
}

func TestCoordinator_CacheShortCircuit(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(t)
	key := snapshot.NewKey("w1", snapshot.ResourceInventory)

	var fetchCount atomic.Int32
	op := func(ctx context.Context) (string, error) {
		fetchCount.Add(1)
		return "from-network", nil
	}

	// First request misses and fetches.
	value, err := coordinator.Request(ctx, key, op, fetch.RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "from-network", value)
	assert.Equal(t, int32(1), fetchCount.Load())

	// Second request is served from the snapshot store with no network call.
	value, err = coordinator.Request(ctx, key, op, fetch.RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "from-network", value)
	assert.Equal(t, int32(1), fetchCount.Load(), "a valid cached entry must short-circuit the fetch")

	assert.Equal(t, fetch.StateCached, coordinator.State(ctx, key))
}

func TestCoordinator_ForceRefreshBypassesCache(t *testing.T) {
	ctx := context.Background()
	coordinator, store := newTestCoordinator(t)
	key := snapshot.NewKey("w1", snapshot.ResourceInventory)

	var fetchCount atomic.Int32
	op := func(ctx context.Context) (string, error) {
		fetchCount.Add(1)
		if fetchCount.Load() == 1 {
			return "first", nil
		}
		return "second", nil
	}

	_, err := coordinator.Request(ctx, key, op, fetch.RequestOptions{})
	require.NoError(t, err)

	value, err := coordinator.Request(ctx, key, op, fetch.RequestOptions{ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, "second", value)
	assert.Equal(t, int32(2), fetchCount.Load(), "force refresh must fetch even with a valid cache entry")

	// The forced fetch overwrote the cached snapshot.
	entry, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "second", entry.Data)
}

func TestCoordinator_SingleFlight(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(t)
	key := snapshot.NewKey("w1", snapshot.ResourceInventory)

	const callers = 5
	var fetchCount atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	op := func(ctx context.Context) (string, error) {
		fetchCount.Add(1)
		close(started)
		<-release
		return "shared", nil
	}

	results := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup

	// First caller owns the fetch.
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = coordinator.Request(ctx, key, op, fetch.RequestOptions{})
	}()
	<-started
	assert.Equal(t, fetch.StateInFlight, coordinator.State(ctx, key))

	// Late callers attach to the in-flight fetch.
	var entered sync.WaitGroup
	for i := 1; i < callers; i++ {
		wg.Add(1)
		entered.Add(1)
		go func(i int) {
			defer wg.Done()
			entered.Done()
			results[i], errs[i] = coordinator.Request(ctx, key, op, fetch.RequestOptions{})
		}(i)
	}
	entered.Wait()
	time.Sleep(50 * time.Millisecond) // let the waiters reach the registry
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), fetchCount.Load(), "exactly one underlying fetch for N concurrent callers")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
}

func TestCoordinator_FailurePropagatesAndClearsPending(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(t)
	key := snapshot.NewKey("w1", snapshot.ResourceWithdrawals)

	boom := errors.New("connection reset")
	var fetchCount atomic.Int32
	op := func(ctx context.Context) (string, error) {
		fetchCount.Add(1)
		if fetchCount.Load() == 1 {
			return "", boom
		}
		return "recovered", nil
	}

	_, err := coordinator.Request(ctx, key, op, fetch.RequestOptions{})
	assert.ErrorIs(t, err, boom, "failures must surface unmodified")
	assert.Equal(t, fetch.StateIdle, coordinator.State(ctx, key), "a failed fetch must not leave the key pending")

	// Nothing was cached, so the next request fetches again and succeeds.
	value, err := coordinator.Request(ctx, key, op, fetch.RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", value)
	assert.Equal(t, int32(2), fetchCount.Load())
}

func TestCoordinator_WaiterContextCancellation(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(t)
	key := snapshot.NewKey("w1", snapshot.ResourceAdditions)

	started := make(chan struct{})
	release := make(chan struct{})
	op := func(ctx context.Context) (string, error) {
		close(started)
		<-release
		return "slow", nil
	}

	go func() {
		_, _ = coordinator.Request(ctx, key, op, fetch.RequestOptions{})
	}()
	<-started

	waiterCtx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() {
		_, err := coordinator.Request(waiterCtx, key, op, fetch.RequestOptions{})
		waiterDone <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-waiterDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter did not return")
	}

	// The abandoned waiter must not have cancelled the underlying fetch.
	close(release)
	assert.Eventually(t, func() bool {
		return coordinator.State(context.Background(), key) == fetch.StateCached
	}, time.Second, 10*time.Millisecond)
}

func TestCoordinator_IndependentKeysOverlap(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(t)

	keyA := snapshot.NewKey("w1", snapshot.ResourceInventory)
	keyB := snapshot.NewKey("w1", snapshot.ResourceAdditions)

	aStarted := make(chan struct{})
	aRelease := make(chan struct{})
	go func() {
		_, _ = coordinator.Request(ctx, keyA, func(ctx context.Context) (string, error) {
			close(aStarted)
			<-aRelease
			return "a", nil
		}, fetch.RequestOptions{})
	}()
	<-aStarted

	// A fetch for a different key proceeds while keyA is still in flight.
	value, err := coordinator.Request(ctx, keyB, func(ctx context.Context) (string, error) {
		return "b", nil
	}, fetch.RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "b", value)
	assert.Equal(t, fetch.StateInFlight, coordinator.State(ctx, keyA))

	close(aRelease)
}
