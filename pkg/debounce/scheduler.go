// Package debounce coalesces bursts of refresh triggers into a single
// deferred operation per channel: rapid tab or scope switching schedules
// many operations, but only the most recent one for a channel ever runs.
package debounce

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDelay is the inactivity window before a scheduled operation runs.
const DefaultDelay = 300 * time.Millisecond

// Handle identifies one scheduled operation. A newer Schedule call on the
// same channel invalidates it; Cancel on a superseded or fired handle is a
// no-op.
type Handle struct {
	scheduler *Scheduler
	channel   string
	timer     *time.Timer
}

// Cancel removes the scheduled operation if this handle is still current.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.scheduler.cancelIfCurrent(h.channel, h.timer)
}

// Scheduler runs at most one deferred operation per channel.
type Scheduler struct {
	delay  time.Duration
	logger zerolog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewScheduler creates a Scheduler. A non-positive delay falls back to
// DefaultDelay.
func NewScheduler(delay time.Duration, logger zerolog.Logger) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Scheduler{
		delay:  delay,
		logger: logger.With().Str("component", "DebounceScheduler").Logger(),
		timers: make(map[string]*time.Timer),
	}
}

// Schedule defers op to run after the scheduler's delay of inactivity on
// the channel. Any operation already pending on the channel is cancelled
// and replaced. The returned handle cancels this operation for as long as
// it is the channel's latest.
func (s *Scheduler) Schedule(channel string, op func()) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return &Handle{scheduler: s, channel: channel}
	}
	if pending, ok := s.timers[channel]; ok {
		pending.Stop()
		s.logger.Debug().Str("channel", channel).Msg("Superseding pending operation.")
	}

	var timer *time.Timer
	timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		// Run only if this timer is still the channel's latest. A timer
		// that fired while being superseded must not execute.
		if s.timers[channel] != timer {
			s.mu.Unlock()
			return
		}
		delete(s.timers, channel)
		s.mu.Unlock()
		op()
	})
	s.timers[channel] = timer
	return &Handle{scheduler: s, channel: channel, timer: timer}
}

// Cancel unconditionally removes any operation pending on the channel.
// Invoked on cleanup when the owning view goes away.
func (s *Scheduler) Cancel(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pending, ok := s.timers[channel]; ok {
		pending.Stop()
		delete(s.timers, channel)
	}
}

// Stop cancels every pending operation and refuses further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for channel, pending := range s.timers {
		pending.Stop()
		delete(s.timers, channel)
	}
}

func (s *Scheduler) cancelIfCurrent(channel string, timer *time.Timer) {
	if timer == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timers[channel] == timer {
		timer.Stop()
		delete(s.timers, channel)
	}
}
