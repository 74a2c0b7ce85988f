// Package pipeline implements the reconciliation pipeline (C7): four
// independent loops that pull deltas from the authoritative store into
// the local cache, trim out-of-window rows, and atomically publish new
// availability windows. Each loop owns exactly one session at a time
// and carries its own pass counter; loops share no mutable state other
// than the cache store (which serializes writes internally) and the
// atomic availability windows.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fmiobs/obsengine/internal/authstore"
	"github.com/fmiobs/obsengine/internal/catalog"
	"github.com/fmiobs/obsengine/internal/localstore"
	"github.com/fmiobs/obsengine/internal/pool"
	"github.com/fmiobs/obsengine/internal/window"
)

// NameResolver enriches a preloaded station with geographic metadata
// the authoritative store does not carry directly. Lookups are tried in
// order; the first one to succeed wins (spec.md §4.9 step 3). The same
// collaborator backs the dispatcher's tagged/legacy-location resolution
// paths via ByName (spec.md §6's "by_name").
type NameResolver interface {
	ByFMISID(ctx context.Context, fmisid int) (country, region, iso2 string, ok bool)
	ByGeoID(ctx context.Context, geoid int) (country, region, iso2 string, ok bool)
	ByLatLon(ctx context.Context, lat, lon, toleranceDeg float64) (country, region, iso2 string, ok bool)
	ByName(ctx context.Context, name string) (lat, lon float64, ok bool)
}

// populationPlaceTolerance is the wide fallback tolerance the fourth
// by_latlon lookup uses when the tight 0.05-degree lookup misses,
// standing in for the "PPL" (populated place) feature-class radius
// spec.md §4.9 step 3 names.
const populationPlaceTolerance = 0.5

// Runner owns the four loops' lifecycle: construction, Start, and a
// cooperative Shutdown.
type Runner struct {
	pool    *pool.Pool
	cache   *localstore.Store
	catalog *catalog.Catalog
	windows *window.Windows
	names   NameResolver
	logger  *zap.Logger

	stationsFile string

	intervals   Intervals
	retentions  Retentions

	shutdown chan struct{}
	done     chan struct{}
}

// Intervals holds the three delta-loops' periods; the preloader has none.
type Intervals struct {
	Observation time.Duration
	QC          time.Duration
	Flash       time.Duration
}

// Retentions holds the three delta-loops' retention windows.
type Retentions struct {
	Observation time.Duration
	QC          time.Duration
	Flash       time.Duration
}

// New constructs a Runner. Call Start once the name-resolution service
// has been injected, per spec.md §4.7's "launched once the
// name-resolution service has been injected."
func New(p *pool.Pool, cache *localstore.Store, cat *catalog.Catalog, windows *window.Windows, names NameResolver, stationsFile string, intervals Intervals, retentions Retentions, logger *zap.Logger) *Runner {
	return &Runner{
		pool:         p,
		cache:        cache,
		catalog:      cat,
		windows:      windows,
		names:        names,
		stationsFile: stationsFile,
		intervals:    intervals,
		retentions:   retentions,
		logger:       logger,
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}, 4),
	}
}

// Start launches the four loops as separate goroutines. It does not
// block; call Shutdown to request a cooperative stop.
func (r *Runner) Start(ctx context.Context) {
	go r.runObservationLoop(ctx)
	go r.runQCLoop(ctx)
	go r.runFlashLoop(ctx)
	go r.runPreloaderLoop(ctx)
}

// Shutdown signals every loop to stop at its next sleep quantum or
// row-batch boundary and waits for all four to exit.
func (r *Runner) Shutdown() {
	close(r.shutdown)
	for i := 0; i < 4; i++ {
		<-r.done
	}
}

// Reload re-triggers a single preloader pass outside its normal
// schedule, per spec.md §4.7(d)'s "can be re-triggered via reload."
func (r *Runner) Reload(ctx context.Context) error {
	return r.runPreloaderPass(ctx)
}

func (r *Runner) withSession(ctx context.Context, fn func(*authstore.Session) error) error {
	h, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer h.Release()

	sess, ok := h.Session.(*authstore.Session)
	if !ok {
		return fmt.Errorf("pipeline: pool handle is not an authoritative-store session")
	}
	return fn(sess)
}

// sleepInterruptible sleeps d in steps of at most 500ms, per spec.md
// §4.7's "sleep in ≤500ms steps; exit early on shutdown." It returns
// false if shutdown or ctx fired before d elapsed.
func sleepInterruptible(ctx context.Context, d time.Duration, shutdown <-chan struct{}) bool {
	const step = 500 * time.Millisecond
	remaining := d
	for remaining > 0 {
		s := step
		if remaining < s {
			s = remaining
		}
		select {
		case <-shutdown:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(s):
		}
		remaining -= s
	}
	return true
}
