package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fmiobs/obsengine/internal/models"
	"github.com/fmiobs/obsengine/internal/window"
)

type fakeRow struct{ n int }

func TestRunDeltaPassUsesNow24hWhenWatermarkUnset(t *testing.T) {
	var fetchedSince time.Time
	var published window.Interval

	cfg := deltaLoopConfig[fakeRow]{
		name:         "test",
		retention:    time.Hour,
		catchUpEvery: 10,
		normalDelta:  3 * time.Minute,
		catchUpDelta: 3 * time.Hour,
		latest: func(ctx context.Context) (time.Time, bool, error) {
			return time.Time{}, false, nil
		},
		fetch: func(ctx context.Context, since time.Time) ([]fakeRow, error) {
			fetchedSince = since
			return []fakeRow{{1}, {2}}, nil
		},
		fill:  func(ctx context.Context, items []fakeRow) error { return nil },
		clean: func(ctx context.Context, keepFrom time.Time) error { return nil },
		publish: func(interval window.Interval) {
			published = interval
		},
	}

	before := time.Now().UTC().Add(-24 * time.Hour)
	require.NoError(t, runDeltaPass(context.Background(), cfg, 1, zap.NewNop()))
	after := time.Now().UTC().Add(-24 * time.Hour)

	require.True(t, !fetchedSince.Before(before) && !fetchedSince.After(after))
	require.True(t, published.End.Equal(fetchedSince))
}

func TestRunDeltaPassAppliesCatchUpDeltaOnNthPass(t *testing.T) {
	watermark := time.Now().UTC().Add(-time.Minute)
	var fetchedSince time.Time

	cfg := deltaLoopConfig[fakeRow]{
		name:         "test",
		retention:    6 * time.Hour,
		catchUpEvery: 10,
		normalDelta:  3 * time.Minute,
		catchUpDelta: 3 * time.Hour,
		latest: func(ctx context.Context) (time.Time, bool, error) {
			return watermark, true, nil
		},
		fetch: func(ctx context.Context, since time.Time) ([]fakeRow, error) {
			fetchedSince = since
			return nil, nil
		},
		fill:    func(ctx context.Context, items []fakeRow) error { return nil },
		clean:   func(ctx context.Context, keepFrom time.Time) error { return nil },
		publish: func(interval window.Interval) {},
	}

	require.NoError(t, runDeltaPass(context.Background(), cfg, 10, zap.NewNop()))
	require.WithinDuration(t, watermark.Add(-3*time.Hour), fetchedSince, time.Second)

	require.NoError(t, runDeltaPass(context.Background(), cfg, 11, zap.NewNop()))
	require.WithinDuration(t, watermark.Add(-3*time.Minute), fetchedSince, time.Second)
}

func TestRunDeltaPassClampsWatermarkToRetentionFloor(t *testing.T) {
	ancientWatermark := time.Now().UTC().Add(-30 * 24 * time.Hour)
	var fetchedSince time.Time

	cfg := deltaLoopConfig[fakeRow]{
		name:         "test",
		retention:    time.Hour,
		catchUpEvery: 10,
		normalDelta:  3 * time.Minute,
		catchUpDelta: 3 * time.Hour,
		latest: func(ctx context.Context) (time.Time, bool, error) {
			return ancientWatermark, true, nil
		},
		fetch: func(ctx context.Context, since time.Time) ([]fakeRow, error) {
			fetchedSince = since
			return nil, nil
		},
		fill:    func(ctx context.Context, items []fakeRow) error { return nil },
		clean:   func(ctx context.Context, keepFrom time.Time) error { return nil },
		publish: func(interval window.Interval) {},
	}

	require.NoError(t, runDeltaPass(context.Background(), cfg, 1, zap.NewNop()))

	floor := time.Now().UTC().Add(-time.Hour).Add(-3 * time.Minute)
	require.WithinDuration(t, floor, fetchedSince, time.Second)
}

func TestRunDeltaPassSwallowsFetchErrorsAtTheLoopLevel(t *testing.T) {
	calls := 0
	cfg := deltaLoopConfig[fakeRow]{
		name:         "test",
		interval:     10 * time.Millisecond,
		retention:    time.Hour,
		catchUpEvery: 10,
		normalDelta:  time.Minute,
		catchUpDelta: time.Hour,
		latest: func(ctx context.Context) (time.Time, bool, error) {
			calls++
			return time.Time{}, false, assertErr{}
		},
		fetch:   func(ctx context.Context, since time.Time) ([]fakeRow, error) { return nil, nil },
		fill:    func(ctx context.Context, items []fakeRow) error { return nil },
		clean:   func(ctx context.Context, keepFrom time.Time) error { return nil },
		publish: func(interval window.Interval) {},
	}

	shutdown := make(chan struct{})
	done := make(chan struct{})
	go func() {
		runDeltaLoop(context.Background(), cfg, shutdown, zap.NewNop())
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	close(shutdown)
	<-done

	require.Greater(t, calls, 1, "loop must keep running passes after a failed pass")
}

type assertErr struct{}

func (assertErr) Error() string { return "synthetic failure" }

func TestSleepInterruptibleReturnsFalseOnShutdown(t *testing.T) {
	shutdown := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	var result bool
	go func() {
		defer wg.Done()
		result = sleepInterruptible(context.Background(), 5*time.Second, shutdown)
	}()

	time.Sleep(10 * time.Millisecond)
	close(shutdown)
	wg.Wait()

	require.False(t, result)
}

func TestSleepInterruptibleReturnsTrueWhenDurationElapses(t *testing.T) {
	shutdown := make(chan struct{})
	require.True(t, sleepInterruptible(context.Background(), 20*time.Millisecond, shutdown))
}

type fakeNameResolver struct {
	fmisidHit, geoidHit, tightLatLonHit, wideLatLonHit bool
}

func (f fakeNameResolver) ByFMISID(ctx context.Context, fmisid int) (string, string, string, bool) {
	if f.fmisidHit {
		return "FI", "Uusimaa", "FI", true
	}
	return "", "", "", false
}

func (f fakeNameResolver) ByGeoID(ctx context.Context, geoid int) (string, string, string, bool) {
	if f.geoidHit {
		return "FI", "geoid-region", "FI", true
	}
	return "", "", "", false
}

func (f fakeNameResolver) ByLatLon(ctx context.Context, lat, lon, tolerance float64) (string, string, string, bool) {
	if tolerance == 0.05 && f.tightLatLonHit {
		return "FI", "tight", "FI", true
	}
	if tolerance == populationPlaceTolerance && f.wideLatLonHit {
		return "FI", "wide", "FI", true
	}
	return "", "", "", false
}

func (f fakeNameResolver) ByName(ctx context.Context, name string) (float64, float64, bool) {
	return 0, 0, false
}

func TestEnrichTriesLookupsInOrder(t *testing.T) {
	r := &Runner{names: fakeNameResolver{geoidHit: true, tightLatLonHit: true}}
	st := testStation()
	r.enrich(context.Background(), &st)
	t.Log(spew.Sdump(st))
	require.Equal(t, "geoid-region", st.Region, "geoid lookup must win over the tighter lat/lon fallback since fmisid missed and geoid is tried first")
}

func TestEnrichFallsBackToWideTolerance(t *testing.T) {
	r := &Runner{names: fakeNameResolver{wideLatLonHit: true}}
	st := testStation()
	r.enrich(context.Background(), &st)
	t.Log(spew.Sdump(st))
	require.Equal(t, "wide", st.Region)
}

func TestEnrichNoopWithoutResolver(t *testing.T) {
	r := &Runner{}
	st := testStation()
	r.enrich(context.Background(), &st)
	require.Empty(t, st.Region)
}

func testStation() models.Station {
	return models.Station{FMISID: 1, Latitude: 60.0, Longitude: 24.0}
}
