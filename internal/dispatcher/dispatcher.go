// Package dispatcher implements the query dispatcher (C9): the shared
// validate → resolve → decide → fetch → enrich flow behind both
// Values (timeseries) and MakeQuery (table) requests.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fmiobs/obsengine/internal/authstore"
	"github.com/fmiobs/obsengine/internal/catalog"
	"github.com/fmiobs/obsengine/internal/localstore"
	"github.com/fmiobs/obsengine/internal/lru"
	"github.com/fmiobs/obsengine/internal/models"
	"github.com/fmiobs/obsengine/internal/obserrors"
	"github.com/fmiobs/obsengine/internal/pipeline"
	"github.com/fmiobs/obsengine/internal/pool"
	"github.com/fmiobs/obsengine/internal/registry"
	"github.com/fmiobs/obsengine/internal/window"
)

// CachedClasses declares, per station class, which operation a class
// belongs to for cache eligibility (spec.md §4.9 step 3's "typical"
// per-class cached_set).
type CachedClasses struct {
	Observation map[string]struct{} // opendata, fmi, opendata_mareograph, opendata_buoy, research, syke
	QC          map[string]struct{} // road, foreign
	Flash       map[string]struct{} // flash
}

// DefaultCachedClasses returns the class→operation membership spec.md
// §4.9 names as typical.
func DefaultCachedClasses() CachedClasses {
	set := func(names ...string) map[string]struct{} {
		m := make(map[string]struct{}, len(names))
		for _, n := range names {
			m[n] = struct{}{}
		}
		return m
	}
	return CachedClasses{
		Observation: set("opendata", "fmi", "opendata_mareograph", "opendata_buoy", "research", "syke"),
		QC:          set("road", "foreign"),
		Flash:       set("flash"),
	}
}

// Dispatcher holds every component the resolve/decide/fetch/enrich flow
// reads from. It is constructed once at startup and is safe for
// concurrent use by many query-serving goroutines.
type Dispatcher struct {
	registry *registry.Registry
	catalog  *catalog.Catalog
	cache    *localstore.Store
	pool     *pool.Pool
	caches   *lru.Caches
	results  *lru.ResultCache
	windows  *window.Windows
	classes  CachedClasses
	names    pipeline.NameResolver
	logger   *zap.Logger
}

// New constructs a Dispatcher. pool may be nil in cache-only/degraded
// deployments; authoritative-path queries then fail with
// obserrors.ErrNoConnectionAvailable rather than panicking.
func New(reg *registry.Registry, cat *catalog.Catalog, cache *localstore.Store, p *pool.Pool, caches *lru.Caches, results *lru.ResultCache, windows *window.Windows, classes CachedClasses, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		catalog:  cat,
		cache:    cache,
		pool:     p,
		caches:   caches,
		results:  results,
		windows:  windows,
		classes:  classes,
		logger:   logger,
	}
}

// SetNames installs the geographic name-resolution collaborator backing
// the tagged/legacy-location resolution paths. Called once, after
// construction, once the engine has it available; nil leaves those
// paths resolving nothing, matching deployments without the
// collaborator.
func (d *Dispatcher) SetNames(names pipeline.NameResolver) {
	d.names = names
}

// queryPlan is everything the shared flow computes once, before the two
// distinct row-assembly shapes (table vs timeseries) diverge.
type queryPlan struct {
	settings   models.Settings
	stations   []models.Station
	useCache   bool
	class      string
}

// plan runs steps 1-3 of spec.md §4.9: validate parameters, expand
// class defaults, and decide cache eligibility. It does not resolve
// stations yet (step 4/5), since the two paths resolve them
// differently.
func (d *Dispatcher) plan(settings models.Settings) (queryPlan, error) {
	class := settings.StationType
	if err := d.validateParameters(settings.Parameters, class); err != nil {
		return queryPlan{}, err
	}

	settings = d.expandClassDefaults(settings, class)

	useCache := settings.UseDataCache &&
		d.classEligibleForCache(class) &&
		d.windowContains(class, settings.StartTime, settings.EndTime) &&
		len(d.catalog.GetSnapshot().Stations) > 0

	return queryPlan{settings: settings, useCache: useCache, class: class}, nil
}

// validateParameters asserts every non-special requested parameter is
// known to the registry, either directly for class or as a variant
// (qc_/sensor-suffixed form), or is one of the derived-parameter names
// C10 evaluates directly.
func (d *Dispatcher) validateParameters(names []string, class string) error {
	for _, name := range names {
		if isSpecialColumn(name) || isDerivedParameter(name) {
			continue
		}
		if d.registry.IsParameter(name, class) || d.registry.IsParameterVariant(name) {
			continue
		}
		return fmt.Errorf("dispatcher: parameter %q: %w", name, obserrors.ErrUnknownParameter)
	}
	return nil
}

// isSpecialColumn reports whether name is one of the always-present
// pass-through columns rather than a registered parameter.
func isSpecialColumn(name string) bool {
	switch name {
	case "fmisid", "time", "utctime", "localtime", "stationname", "lat", "lon", "distance":
		return true
	default:
		return false
	}
}

func isDerivedParameter(name string) bool {
	switch name {
	case "windcompass8", "windcompass16", "windcompass32", "feelslike",
		"stationdirection", "solarelevation", "solarazimuth", "sunrise", "sunset", "solarnoon", "epochtime":
		return true
	default:
		return false
	}
}

// expandClassDefaults fills producer_ids and group_codes from the
// registry when the caller left them unset, per spec.md §4.9 step 2.
func (d *Dispatcher) expandClassDefaults(settings models.Settings, class string) models.Settings {
	if len(settings.ProducerIDs) == 0 {
		for id := range d.registry.ProducerIDsFor(class) {
			settings.ProducerIDs = append(settings.ProducerIDs, id)
		}
	}
	if len(settings.StationGroupCodes) == 0 {
		for code := range d.registry.GroupCodesFor(class) {
			settings.StationGroupCodes = append(settings.StationGroupCodes, code)
		}
	}
	return settings
}

// classEligibleForCache defers entirely to the registry's per-class
// cached flag; CachedClasses exists to route a class to the right
// availability window and fetch shape, not to gate eligibility a
// second time.
func (d *Dispatcher) classEligibleForCache(class string) bool {
	return d.registry.IsCached(class)
}

func (d *Dispatcher) windowContains(class string, t0, t1 time.Time) bool {
	if _, ok := d.classes.Flash[class]; ok {
		return d.windows.Flash.Contains(t0, t1)
	}
	if _, ok := d.classes.QC[class]; ok {
		return d.windows.WeatherQC.Contains(t0, t1)
	}
	return d.windows.Observation.Contains(t0, t1)
}

func (d *Dispatcher) withSession(ctx context.Context, fn func(*authstore.Session) error) error {
	if d.pool == nil {
		return fmt.Errorf("dispatcher: no authoritative-store pool configured: %w", obserrors.ErrNoConnectionAvailable)
	}
	h, err := d.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer h.Release()

	sess, ok := h.Session.(*authstore.Session)
	if !ok {
		return fmt.Errorf("dispatcher: pool handle is not an authoritative-store session")
	}
	return fn(sess)
}
