package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnsetWindowNeverContains(t *testing.T) {
	var w Window
	now := time.Now()
	assert.False(t, w.Contains(now, now.Add(time.Hour)))
}

func TestContainsChecksOnlyBegin(t *testing.T) {
	var w Window
	begin := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	w.Store(Interval{Begin: begin, End: end})

	// t0 within [begin,end]: contained.
	assert.True(t, w.Contains(begin.Add(time.Hour), end.Add(time.Hour)))

	// t1 runs well past end, but t0 is still >= begin: still contained,
	// by design (the end is deliberately not checked).
	assert.True(t, w.Contains(begin, end.Add(365*24*time.Hour)))

	// t0 before begin: not contained.
	assert.False(t, w.Contains(begin.Add(-time.Minute), end))
}

func TestStoreReplacesAtomically(t *testing.T) {
	var w Window
	w.Store(Interval{Begin: time.Unix(0, 0), End: time.Unix(100, 0)})
	w.Store(Interval{Begin: time.Unix(50, 0), End: time.Unix(200, 0)})

	interval, ok := w.Load()
	assert.True(t, ok)
	assert.Equal(t, time.Unix(50, 0), interval.Begin)
}
