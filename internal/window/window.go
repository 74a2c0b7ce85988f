// Package window implements the three availability windows (C6): atomic
// half-open time intervals stating what [t0,t1] each cached table
// currently answers for.
package window

import (
	"sync/atomic"
	"time"
)

// Interval is a half-open [Begin, End] time interval.
type Interval struct {
	Begin time.Time
	End   time.Time
}

// Window is one atomically-published, possibly-unset availability
// interval. The zero Window is unset.
type Window struct {
	value atomic.Pointer[Interval]
}

// Load returns the currently published interval and whether it is set.
// An unset Window answers "no" to any containment query.
func (w *Window) Load() (Interval, bool) {
	p := w.value.Load()
	if p == nil {
		return Interval{}, false
	}
	return *p, true
}

// Store atomically replaces the published interval.
func (w *Window) Store(interval Interval) {
	w.value.Store(&interval)
}

// Contains is the query-time predicate used to decide cache eligibility.
// It returns true iff the window is set AND t0 is not before the
// window's begin. The end of the interval is intentionally NOT checked:
// the authoritative store is always strictly newer than any cached
// window, so a request whose t1 runs past the cached end should still be
// answerable from the cache as far as t0 permits, with the dispatcher
// left to decide what (if anything) it does about the tail past end.
// This asymmetry is a deliberate design choice, not a gap to close.
func (w *Window) Contains(t0, t1 time.Time) bool {
	interval, ok := w.Load()
	if !ok {
		return false
	}
	return !t0.Before(interval.Begin)
}

// Windows bundles the three holders the pipeline publishes into and the
// dispatcher reads from: Finnish/opendata observations, foreign/road QC
// data, and flashes.
type Windows struct {
	Observation Window
	WeatherQC   Window
	Flash       Window
}
