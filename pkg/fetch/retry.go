package fetch

import "sync"

// DefaultMaxRetries is the automatic retry budget for one logical operation.
const DefaultMaxRetries = 2

// Disposition is what a caller should do after reporting an outcome to a
// RetryPolicy.
type Disposition int

const (
	// DispositionSucceeded clears any error state and resets the budget.
	DispositionSucceeded Disposition = iota
	// DispositionRetry surfaces a "will retry" message; the caller decides
	// when to re-invoke (e.g. pull-to-refresh). Retries are never
	// auto-scheduled here.
	DispositionRetry
	// DispositionExhausted means the budget is spent: substitute a zeroed
	// fallback result and surface a final error message.
	DispositionExhausted
	// DispositionRateLimited is terminal immediately, regardless of the
	// current count: surface a distinct "slow down" message.
	DispositionRateLimited
	// DispositionAbsent means the resource legitimately does not exist:
	// return a well-formed empty result with no error shown. Does not
	// consume the transient-failure budget.
	DispositionAbsent
	// DispositionRejected covers failures that must never be retried and
	// take no fallback: auth refusals and server-side validation
	// rejections, surfaced verbatim.
	DispositionRejected
)

// RetryPolicy tracks the retry budget for one logical operation (one
// dashboard summary, one list stream). It only classifies and counts; it
// never schedules anything. Construct one per operation and feed every
// outcome through Outcome.
type RetryPolicy struct {
	maxRetries int

	mu    sync.Mutex
	count int
}

// NewRetryPolicy creates a policy with the given budget. A non-positive
// budget falls back to DefaultMaxRetries.
func NewRetryPolicy(maxRetries int) *RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RetryPolicy{maxRetries: maxRetries}
}

// Outcome reports the result of one attempt and returns the caller's next
// move. The count resets to zero only on success, is forced to the budget
// on any terminal classification, and is never decremented otherwise.
func (p *RetryPolicy) Outcome(err error) Disposition {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		p.count = 0
		return DispositionSucceeded
	}

	switch ClassOf(err) {
	case ClassRateLimited:
		p.count = p.maxRetries
		return DispositionRateLimited
	case ClassAbsent:
		// Stop retrying, but this is an empty success, not a failure.
		p.count = p.maxRetries
		return DispositionAbsent
	case ClassAuthRequired, ClassValidationRejected:
		p.count = p.maxRetries
		return DispositionRejected
	default:
		if p.count < p.maxRetries {
			p.count++
			return DispositionRetry
		}
		return DispositionExhausted
	}
}

// RetryCount returns the current count, for surfacing in view-model state.
func (p *RetryPolicy) RetryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Reset clears the budget, e.g. when the logical operation's inputs change.
func (p *RetryPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count = 0
}
