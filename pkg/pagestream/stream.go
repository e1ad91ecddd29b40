package pagestream

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-stocksync/pkg/fetch"
)

// PageFetcher retrieves one page of a stream's resource. When force is
// true the fetch must bypass any cached snapshot.
type PageFetcher[T any] func(ctx context.Context, page int, force bool) (Page[T], error)

// State is the view-model snapshot a UI renders for one stream.
type State[T any] struct {
	Items       []T
	Page        int
	HasMore     bool
	TotalItems  int
	Loading     bool
	Refreshing  bool
	LoadingMore bool
	Err         error
	RetryCount  int
}

// Stream drives one (scope, resource type) list: it owns the accumulator,
// classifies failures through a retry policy, and tags every fetch with a
// generation so results arriving after Discard are thrown away instead of
// resurrecting stale state.
type Stream[T any] struct {
	fetchPage PageFetcher[T]
	policy    *fetch.RetryPolicy
	logger    zerolog.Logger
	acc       *Accumulator[T]

	mu         sync.Mutex
	generation uint64
	loading    bool
	refreshing bool
	err        error
}

// NewStream creates a stream over the given page fetcher. A nil policy
// gets the default retry budget.
func NewStream[T any](fetchPage PageFetcher[T], policy *fetch.RetryPolicy, logger zerolog.Logger) *Stream[T] {
	if policy == nil {
		policy = fetch.NewRetryPolicy(fetch.DefaultMaxRetries)
	}
	return &Stream[T]{
		fetchPage: fetchPage,
		policy:    policy,
		logger:    logger.With().Str("component", "Stream").Logger(),
		acc:       NewAccumulator[T](),
	}
}

// Load fetches page zero and replaces the stream's contents. Used for the
// initial population of a view; a cached snapshot may serve it.
func (s *Stream[T]) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	gen := s.generation
	s.mu.Unlock()

	page, err := s.fetchPage(ctx, 0, false)
	return s.settle(gen, page, Replace, err, func() { s.loading = false })
}

// LoadMore fetches the next page and appends it. A call while no more
// pages remain, or while another advance is still running, is a no-op.
func (s *Stream[T]) LoadMore(ctx context.Context) error {
	next, ok := s.acc.beginLoadMore()
	if !ok {
		return nil
	}

	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	page, err := s.fetchPage(ctx, next, false)
	return s.settle(gen, page, Append, err, s.acc.endLoadMore)
}

// Refresh resets to page zero with a forced, cache-bypassing fetch and
// replaces the stream's contents with the result.
func (s *Stream[T]) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return nil
	}
	s.refreshing = true
	gen := s.generation
	s.mu.Unlock()

	page, err := s.fetchPage(ctx, 0, true)
	return s.settle(gen, page, Replace, err, func() { s.refreshing = false })
}

// settle applies a fetch outcome unless the stream has moved to a newer
// generation, in which case the result is dropped wholesale.
func (s *Stream[T]) settle(gen uint64, page Page[T], mode Mode, err error, release func()) error {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug().Uint64("generation", gen).Msg("Dropping fetch result from a discarded generation.")
		return nil
	}
	release()

	if err == nil {
		s.policy.Outcome(nil)
		s.err = nil
		s.mu.Unlock()
		s.acc.Apply(page, mode)
		return nil
	}

	disposition := s.policy.Outcome(err)
	if disposition == fetch.DispositionAbsent {
		// Legitimate absence: a well-formed empty list, no error banner.
		s.err = nil
		s.mu.Unlock()
		s.acc.Apply(Page[T]{}, Replace)
		return nil
	}

	s.err = err
	s.mu.Unlock()
	s.logger.Warn().Err(err).Str("disposition", dispositionLabel(disposition)).Msg("Stream fetch failed.")
	return err
}

// Discard abandons the stream's contents and advances the generation, so
// any fetch still in flight resolves into the void. Used when the owning
// scope is switched away.
func (s *Stream[T]) Discard() {
	s.mu.Lock()
	s.generation++
	s.loading = false
	s.refreshing = false
	s.err = nil
	s.mu.Unlock()
	s.acc.reset()
	s.policy.Reset()
}

// State returns the current view-model snapshot.
func (s *Stream[T]) State() State[T] {
	s.mu.Lock()
	loading, refreshing, err := s.loading, s.refreshing, s.err
	s.mu.Unlock()

	return State[T]{
		Items:       s.acc.Items(),
		Page:        s.acc.Page(),
		HasMore:     s.acc.HasMore(),
		TotalItems:  s.acc.TotalItems(),
		Loading:     loading,
		Refreshing:  refreshing,
		LoadingMore: s.acc.LoadingMore(),
		Err:         err,
		RetryCount:  s.policy.RetryCount(),
	}
}

func dispositionLabel(d fetch.Disposition) string {
	switch d {
	case fetch.DispositionRetry:
		return "will_retry"
	case fetch.DispositionExhausted:
		return "exhausted"
	case fetch.DispositionRateLimited:
		return "rate_limited"
	case fetch.DispositionRejected:
		return "rejected"
	default:
		return "unknown"
	}
}
