// Package pagestream accumulates paginated resource results into the state
// a list view renders: loaded items, current page, and whether more pages
// remain. It pairs an Accumulator with a Stream that drives fetching,
// retry classification, and stale-result protection.
package pagestream

import "sync"

// Page is one server-reported page of a paginated resource. The field
// names mirror the remote endpoint's response shape exactly; the mapping
// layer in pkg/resource depends on them.
type Page[T any] struct {
	Items       []T  `json:"items"`
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalItems  int  `json:"totalItems"`
	HasMore     bool `json:"hasMore"`
}

// Mode selects how an incoming page combines with already-loaded items.
type Mode int

const (
	// Replace discards every loaded item and starts over from the page.
	Replace Mode = iota
	// Append concatenates the page's items after the loaded ones.
	Append
)

// Accumulator tracks the loaded items for one (scope, resource type)
// stream. Replace is atomic: readers see either the full pre-replace slice
// or the full post-replace slice, never a mix.
type Accumulator[T any] struct {
	mu          sync.Mutex
	items       []T
	page        int
	hasMore     bool
	totalItems  int
	loadingMore bool
}

// NewAccumulator creates an empty accumulator at page zero.
func NewAccumulator[T any]() *Accumulator[T] {
	return &Accumulator[T]{}
}

// Apply folds a server page into the accumulator. HasMore and TotalItems
// always take the latest server-reported values regardless of mode.
func (a *Accumulator[T]) Apply(page Page[T], mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch mode {
	case Replace:
		a.items = append([]T(nil), page.Items...)
	case Append:
		a.items = append(a.items, page.Items...)
	}
	a.page = page.CurrentPage
	a.hasMore = page.HasMore
	a.totalItems = page.TotalItems
}

// Items returns a copy of the loaded items.
func (a *Accumulator[T]) Items() []T {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]T(nil), a.items...)
}

// Page returns the most recently applied page index.
func (a *Accumulator[T]) Page() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.page
}

// HasMore reports whether the server says more pages remain.
func (a *Accumulator[T]) HasMore() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasMore
}

// TotalItems returns the server-reported total item count.
func (a *Accumulator[T]) TotalItems() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalItems
}

// LoadingMore reports whether a page-advance fetch is currently running.
func (a *Accumulator[T]) LoadingMore() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadingMore
}

// beginLoadMore claims the page-advance slot. It returns the next page to
// fetch, or ok=false when there is nothing more to load or an advance is
// already running. No more than one advance is ever in flight per stream;
// duplicate triggers are dropped, not queued.
func (a *Accumulator[T]) beginLoadMore() (next int, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasMore || a.loadingMore {
		return 0, false
	}
	a.loadingMore = true
	return a.page + 1, true
}

// endLoadMore releases the page-advance slot.
func (a *Accumulator[T]) endLoadMore() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loadingMore = false
}

// reset returns the accumulator to its initial empty state.
func (a *Accumulator[T]) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = nil
	a.page = 0
	a.hasMore = false
	a.totalItems = 0
	a.loadingMore = false
}
