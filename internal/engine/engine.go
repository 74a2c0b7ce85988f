// Package engine wires every component (registry, catalog, local store,
// session pool, LRU constellation, availability windows, reconciliation
// pipeline, and query dispatcher) into the single top-level object a
// hosting process constructs, starts, queries, and shuts down.
package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fmiobs/obsengine/internal/catalog"
	"github.com/fmiobs/obsengine/internal/config"
	"github.com/fmiobs/obsengine/internal/dispatcher"
	"github.com/fmiobs/obsengine/internal/localstore"
	"github.com/fmiobs/obsengine/internal/lru"
	"github.com/fmiobs/obsengine/internal/obserrors"
	"github.com/fmiobs/obsengine/internal/pipeline"
	"github.com/fmiobs/obsengine/internal/pool"
	"github.com/fmiobs/obsengine/internal/registry"
	"github.com/fmiobs/obsengine/internal/window"
)

// State is one stage of the engine's startup/shutdown state machine, per
// spec.md §4.9's "constructing → config-loaded → pool-initialized →
// name-resolver-set → preload-triggered → ready → draining → terminated".
type State int

const (
	StateConstructing State = iota
	StateConfigLoaded
	StatePoolInitialized
	StateNameResolverSet
	StatePreloadTriggered
	StateReady
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateConfigLoaded:
		return "config-loaded"
	case StatePoolInitialized:
		return "pool-initialized"
	case StateNameResolverSet:
		return "name-resolver-set"
	case StatePreloadTriggered:
		return "preload-triggered"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Engine is the fully-wired observation serving engine. The zero value is
// not usable; build one with New.
type Engine struct {
	mu    sync.Mutex
	state State

	cfg *config.Config
	log *zap.Logger

	registry *registry.Registry
	catalog  *catalog.Catalog
	cache    *localstore.Store
	pool     *pool.Pool
	caches   *lru.Caches
	results  *lru.ResultCache
	windows  *window.Windows
	runner   *pipeline.Runner
	dispatch *dispatcher.Dispatcher
}

// New constructs every long-lived component from cfg and advances the
// state machine through config-loaded and pool-initialized. Queries are
// not yet accepted: call SetGeonames then Start before Ready() is true.
// A per-slot pool failure does not fail New: the pool starts degraded
// (pool.Pool.Degraded() reports it) with its remaining sessions in
// service. If every slot fails, New returns an error wrapping
// obserrors.ErrPoolInitFailed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{cfg: cfg, log: logger, state: StateConfigLoaded}

	reg, err := registryFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	e.registry = reg

	e.catalog = catalog.New()
	if snap, loadErr := catalog.Load(cfg.SerializedStationsFile); loadErr == nil {
		e.catalog.Replace(snap)
	} else {
		logger.Warn("failed to load persisted station snapshot, starting empty", zap.Error(loadErr))
	}

	store, err := localstore.Open(ctx, cfg.SpatialiteFile, cfg.MaxInsertSize)
	if err != nil {
		return nil, fmt.Errorf("engine: open local store: %w", err)
	}
	e.cache = store

	caches, err := lru.New(sizesFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("engine: build lru constellation: %w", err)
	}
	e.caches = caches

	results, err := lru.NewResultCache(cfg.Cache.ResultCacheSize, resultCacheTTL(cfg))
	if err != nil {
		return nil, fmt.Errorf("engine: build result cache: %w", err)
	}
	e.results = results

	e.windows = &window.Windows{}

	p, err := pool.New(ctx, cfg.PoolSize, cfg.PoolGetTimeout(), dialFactory(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("engine: init session pool: %w", err)
	}
	e.pool = p
	e.state = StatePoolInitialized

	e.dispatch = dispatcher.New(e.registry, e.catalog, e.cache, e.pool, e.caches, e.results, e.windows,
		cachedClassesFromConfig(cfg), logger)

	return e, nil
}

// SetGeonames installs the geographic name-resolution collaborator the
// preloader's enrichment step calls and the dispatcher's tagged/legacy
// location resolution paths look names up through, and advances the
// state machine to name-resolver-set. Call this before Start.
func (e *Engine) SetGeonames(resolver pipeline.NameResolver) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.dispatch.SetNames(resolver)
	e.runner = pipeline.New(e.pool, e.cache, e.catalog, e.windows, resolver, e.cfg.SerializedStationsFile,
		pipeline.Intervals{
			Observation: e.cfg.FinUpdateInterval(),
			QC:          e.cfg.ExtUpdateInterval(),
			Flash:       e.cfg.FlashUpdateInterval(),
		},
		pipeline.Retentions{
			Observation: e.cfg.ObservationRetention(),
			QC:          e.cfg.QCRetention(),
			Flash:       e.cfg.FlashRetention(),
		},
		e.log,
	)
	e.state = StateNameResolverSet
}

// Start triggers the one-shot preload pass and launches the four
// reconciliation loops, then transitions to ready. Start requires
// SetGeonames to have run first, even if resolver is nil (a nil resolver
// simply leaves every station's country/region/iso2 fields blank).
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.runner == nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: Start called before SetGeonames: %w", obserrors.ErrConfig)
	}
	e.state = StatePreloadTriggered
	runner := e.runner
	e.mu.Unlock()

	if err := runner.Reload(ctx); err != nil {
		e.log.Warn("initial preload pass failed, starting with an empty/stale catalog", zap.Error(err))
	}
	runner.Start(ctx)

	e.mu.Lock()
	e.state = StateReady
	e.mu.Unlock()
	return nil
}

// Ready reports whether the engine is in the ready state and will accept
// queries.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateReady
}

// requireReady is the guard every public query operation runs first, per
// spec.md §4.9's "queries are accepted once ready is true."
func (e *Engine) requireReady() error {
	if !e.Ready() {
		return obserrors.ErrNotReady
	}
	return nil
}

// Shutdown transitions to draining (stopping the reconciliation loops and
// closing the session pool and local store), then terminated. It is safe
// to call once; a second call is a no-op.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.state == StateDraining || e.state == StateTerminated {
		e.mu.Unlock()
		return
	}
	e.state = StateDraining
	runner := e.runner
	e.mu.Unlock()

	if runner != nil {
		runner.Shutdown()
	}
	e.pool.Shutdown()
	if err := e.cache.Close(); err != nil {
		e.log.Warn("error closing local store", zap.Error(err))
	}

	e.mu.Lock()
	e.state = StateTerminated
	e.mu.Unlock()
}
