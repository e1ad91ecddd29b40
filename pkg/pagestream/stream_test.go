package pagestream_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-stocksync/pkg/fetch"
	"github.com/illmade-knight/go-stocksync/pkg/pagestream"
)

// pagedSource serves a fixed item list in pages of a given size, counting
// fetches and recording whether force was requested.
type pagedSource struct {
	items      []string
	pageSize   int
	fetchCount atomic.Int32
	lastForce  atomic.Bool
	failWith   error
}

func (p *pagedSource) fetch(_ context.Context, page int, force bool) (pagestream.Page[string], error) {
	p.fetchCount.Add(1)
	p.lastForce.Store(force)
	if p.failWith != nil {
		return pagestream.Page[string]{}, p.failWith
	}

	start := page * p.pageSize
	if start > len(p.items) {
		start = len(p.items)
	}
	end := start + p.pageSize
	if end > len(p.items) {
		end = len(p.items)
	}
	return pagestream.Page[string]{
		Items:       p.items[start:end],
		CurrentPage: page,
		TotalPages:  (len(p.items) + p.pageSize - 1) / p.pageSize,
		TotalItems:  len(p.items),
		HasMore:     end < len(p.items),
	}, nil
}

func makeItems(n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("item-%02d", i)
	}
	return items
}

func TestStream_LoadMoreAccumulates(t *testing.T) {
	ctx := context.Background()

	// 45 items served 20 at a time: 20, then 40, then all 45.
	source := &pagedSource{items: makeItems(45), pageSize: 20}
	stream := pagestream.NewStream[string](source.fetch, nil, zerolog.Nop())

	require.NoError(t, stream.Load(ctx))
	state := stream.State()
	assert.Len(t, state.Items, 20)
	assert.True(t, state.HasMore)
	assert.Equal(t, 45, state.TotalItems)

	require.NoError(t, stream.LoadMore(ctx))
	state = stream.State()
	assert.Len(t, state.Items, 40)
	assert.True(t, state.HasMore)

	require.NoError(t, stream.LoadMore(ctx))
	state = stream.State()
	assert.Len(t, state.Items, 45)
	assert.False(t, state.HasMore)
	assert.Equal(t, 2, state.Page)

	// Everything loaded: a further LoadMore is a no-op.
	fetches := source.fetchCount.Load()
	require.NoError(t, stream.LoadMore(ctx))
	assert.Equal(t, fetches, source.fetchCount.Load())
}

func TestStream_LoadMoreDuplicateTriggerDropped(t *testing.T) {
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	var fetchCount atomic.Int32

	fetcher := func(_ context.Context, page int, _ bool) (pagestream.Page[string], error) {
		n := fetchCount.Add(1)
		if n > 1 {
			close(started)
			<-release
		}
		return pagestream.Page[string]{
			Items:       []string{fmt.Sprintf("page-%d", page)},
			CurrentPage: page,
			TotalItems:  10,
			HasMore:     true,
		}, nil
	}
	stream := pagestream.NewStream[string](fetcher, nil, zerolog.Nop())
	require.NoError(t, stream.Load(ctx))

	go func() { _ = stream.LoadMore(ctx) }()
	<-started

	// A second tap while the advance is in flight is dropped, not queued.
	require.NoError(t, stream.LoadMore(ctx))
	assert.Equal(t, int32(2), fetchCount.Load())

	close(release)
	assert.Eventually(t, func() bool {
		return len(stream.State().Items) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestStream_RefreshReplacesAndForces(t *testing.T) {
	ctx := context.Background()
	source := &pagedSource{items: makeItems(45), pageSize: 20}
	stream := pagestream.NewStream[string](source.fetch, nil, zerolog.Nop())

	require.NoError(t, stream.Load(ctx))
	require.NoError(t, stream.LoadMore(ctx))
	require.Len(t, stream.State().Items, 40)

	require.NoError(t, stream.Refresh(ctx))

	state := stream.State()
	assert.Len(t, state.Items, 20, "refresh replaces accumulated pages with page zero")
	assert.Equal(t, 0, state.Page)
	assert.True(t, source.lastForce.Load(), "refresh must bypass the cache")
}

func TestStream_AbsentYieldsEmptyListWithoutError(t *testing.T) {
	ctx := context.Background()
	source := &pagedSource{
		items:    makeItems(5),
		pageSize: 20,
		failWith: fetch.NewError(fetch.ClassAbsent, 404, "no movements yet", nil),
	}
	stream := pagestream.NewStream[string](source.fetch, nil, zerolog.Nop())

	err := stream.Load(ctx)
	require.NoError(t, err, "absence is a successful empty outcome")

	state := stream.State()
	assert.Empty(t, state.Items)
	assert.NoError(t, state.Err)
	assert.False(t, state.HasMore)
}

func TestStream_TransientFailuresSurfaceRetryState(t *testing.T) {
	ctx := context.Background()
	source := &pagedSource{
		items:    makeItems(5),
		pageSize: 20,
		failWith: fetch.NewError(fetch.ClassTransient, 503, "upstream unavailable", nil),
	}
	stream := pagestream.NewStream[string](source.fetch, fetch.NewRetryPolicy(2), zerolog.Nop())

	// Two failures under budget, then terminal on the third.
	require.Error(t, stream.Load(ctx))
	assert.Equal(t, 1, stream.State().RetryCount)

	require.Error(t, stream.Refresh(ctx))
	assert.Equal(t, 2, stream.State().RetryCount)

	require.Error(t, stream.Refresh(ctx))
	assert.Equal(t, 2, stream.State().RetryCount)
	assert.Error(t, stream.State().Err)

	// Recovery resets the budget and clears the error.
	source.failWith = nil
	require.NoError(t, stream.Refresh(ctx))
	state := stream.State()
	assert.Equal(t, 0, state.RetryCount)
	assert.NoError(t, state.Err)
	assert.Len(t, state.Items, 5)
}

func TestStream_DiscardDropsInFlightResult(t *testing.T) {
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := func(_ context.Context, page int, _ bool) (pagestream.Page[string], error) {
		close(started)
		<-release
		return pagestream.Page[string]{
			Items: []string{"stale-a", "stale-b"}, TotalItems: 2,
		}, nil
	}
	stream := pagestream.NewStream[string](fetcher, nil, zerolog.Nop())

	loadDone := make(chan error, 1)
	go func() { loadDone <- stream.Load(ctx) }()
	<-started

	// The user switches away while the fetch is still in flight.
	stream.Discard()
	close(release)
	require.NoError(t, <-loadDone)

	state := stream.State()
	assert.Empty(t, state.Items, "a result from a discarded generation must not be applied")
	assert.Equal(t, 0, state.TotalItems)
	assert.False(t, state.Loading)
}
