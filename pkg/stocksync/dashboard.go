package stocksync

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-stocksync/pkg/fetch"
	"github.com/illmade-knight/go-stocksync/pkg/resource"
	"github.com/illmade-knight/go-stocksync/pkg/snapshot"
)

// dashboardState is the service's internal dashboard record.
type dashboardState struct {
	summary     resource.Summary
	err         error
	disposition fetch.Disposition
}

// DashboardState is the view-model for the dashboard summary. A new
// account with no data yet reads as a normal, explicitly empty summary,
// never as an error; a spent retry budget substitutes the same zeroed
// summary alongside a final error so the view always has something
// well-formed to render.
type DashboardState struct {
	Summary     resource.Summary
	Err         error
	Disposition fetch.Disposition
	RetryCount  int
}

// Dashboard returns the current dashboard view-model without fetching.
func (s *Service) Dashboard() DashboardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return DashboardState{
		Summary:     s.dashboard.summary,
		Err:         s.dashboard.err,
		Disposition: s.dashboard.disposition,
		RetryCount:  s.summaryPolicy.RetryCount(),
	}
}

// RefreshDashboard fetches the selected scope's summary and folds the
// outcome through the retry policy. Retries are never scheduled here; a
// "will retry" disposition relies on the caller re-invoking, e.g. via
// pull-to-refresh.
func (s *Service) RefreshDashboard(ctx context.Context, force bool) DashboardState {
	s.mu.Lock()
	scopeID := s.scopeID
	s.mu.Unlock()

	if scopeID == "" {
		return s.recordDashboard(dashboardState{
			summary:     resource.EmptySummary(),
			err:         fmt.Errorf("no scope selected"),
			disposition: fetch.DispositionRejected,
		})
	}

	// The auth gate fails synchronously, with no network I/O and no
	// retry budget consumed.
	if err := s.checkReady(); err != nil {
		return s.recordDashboard(dashboardState{
			summary:     resource.EmptySummary(),
			err:         err,
			disposition: fetch.DispositionRejected,
		})
	}

	key := snapshot.NewKey(scopeID, snapshot.ResourceSummary)
	summary, err := s.summaryCoordinator.Request(ctx, key, func(ctx context.Context) (resource.Summary, error) {
		return s.api.Summary(ctx, scopeID)
	}, fetch.RequestOptions{ForceRefresh: force})

	disposition := s.summaryPolicy.Outcome(err)
	next := dashboardState{disposition: disposition}
	switch disposition {
	case fetch.DispositionSucceeded:
		next.summary = summary
	case fetch.DispositionAbsent:
		// No data yet is a normal outcome: a zeroed, explicitly empty
		// summary and no error banner.
		next.summary = resource.EmptySummary()
	case fetch.DispositionRetry:
		// Keep whatever was shown before; surface the "will retry" error.
		s.mu.Lock()
		next.summary = s.dashboard.summary
		s.mu.Unlock()
		next.err = err
	case fetch.DispositionExhausted:
		next.summary = resource.EmptySummary()
		next.err = err
	default:
		// Rate limited or rejected: keep the last summary, surface the
		// classified error.
		s.mu.Lock()
		next.summary = s.dashboard.summary
		s.mu.Unlock()
		next.err = err
	}

	return s.recordDashboard(next)
}

func (s *Service) recordDashboard(state dashboardState) DashboardState {
	s.mu.Lock()
	s.dashboard = state
	s.mu.Unlock()

	if state.err != nil {
		s.logger.Warn().Err(state.err).Msg("Dashboard refresh did not produce fresh data.")
	}
	return s.Dashboard()
}
