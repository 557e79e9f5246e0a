package accesscode

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Guard tracks failed validation attempts per source and blocks sources
// that exceed the failure threshold within a sliding window. A global
// token bucket sits in front of the per-source accounting so a
// distributed scan cannot grind the code table regardless of how many
// source addresses it rotates through.
type Guard struct {
	maxFailures int
	window      time.Duration
	block       time.Duration
	limiter     *rate.Limiter

	mu      sync.Mutex
	sources map[string]*sourceState
}

type sourceState struct {
	failures     []time.Time
	blockedUntil time.Time
}

// NewGuard creates a guard. globalPerSecond of zero disables the global
// throttle.
func NewGuard(maxFailures int, window, block time.Duration, globalPerSecond, globalBurst int) *Guard {
	var limiter *rate.Limiter
	if globalPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(globalPerSecond), globalBurst)
	}
	return &Guard{
		maxFailures: maxFailures,
		window:      window,
		block:       block,
		limiter:     limiter,
		sources:     make(map[string]*sourceState),
	}
}

// Allow reports whether a validation attempt from the source may
// proceed. When it may not, the returned time says when the block
// lifts. Global throttling reports a one-second retry horizon since the
// bucket refills continuously.
func (g *Guard) Allow(source string, now time.Time) (time.Time, bool) {
	if g.limiter != nil && !g.limiter.Allow() {
		return now.Add(time.Second), false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.sources[source]
	if !ok {
		return time.Time{}, true
	}
	if state.blockedUntil.After(now) {
		return state.blockedUntil, false
	}
	return time.Time{}, true
}

// RecordFailure counts a failed validation against the source. It
// returns the block expiry and true exactly once, at the moment the
// source crosses the failure threshold, so the caller can escalate a
// single critical event per block rather than one per attempt.
func (g *Guard) RecordFailure(source string, now time.Time) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.sources[source]
	if !ok {
		state = &sourceState{}
		g.sources[source] = state
	}

	// Drop failures that have slid out of the window.
	cutoff := now.Add(-g.window)
	kept := state.failures[:0]
	for _, t := range state.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	state.failures = append(kept, now)

	if len(state.failures) >= g.maxFailures && !state.blockedUntil.After(now) {
		state.blockedUntil = now.Add(g.block)
		state.failures = state.failures[:0]
		return state.blockedUntil, true
	}

	return state.blockedUntil, false
}

// Prune discards state for sources with no recent failures and no
// active block. Called periodically so the map does not grow without
// bound under scanning traffic.
func (g *Guard) Prune(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := now.Add(-g.window)
	for source, state := range g.sources {
		if state.blockedUntil.After(now) {
			continue
		}
		live := false
		for _, t := range state.failures {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(g.sources, source)
		}
	}
}
