package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fmiobs/obsengine/internal/catalog"
	"github.com/fmiobs/obsengine/internal/dispatcher"
	"github.com/fmiobs/obsengine/internal/localstore"
	"github.com/fmiobs/obsengine/internal/lru"
	"github.com/fmiobs/obsengine/internal/models"
	"github.com/fmiobs/obsengine/internal/obserrors"
	"github.com/fmiobs/obsengine/internal/pool"
	"github.com/fmiobs/obsengine/internal/registry"
	"github.com/fmiobs/obsengine/internal/window"
)

// newBareEngine builds an Engine directly from its components, the way
// New would after registry/store/pool construction, without touching a
// configuration document or dialing a real authoritative store. It is
// left in StatePoolInitialized, mirroring New's return state.
func newBareEngine(t *testing.T) *Engine {
	t.Helper()

	reg, err := registry.Load(
		[]registry.AliasDecl{
			{Alias: "t2m", Classify: registry.Data, PerClass: map[string]string{"opendata": "1"}},
		},
		[]registry.ClassDecl{
			{Name: "opendata", Attrs: registry.ClassAttributes{Cached: true, DatabaseTableName: "observation_data"}},
		},
	)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}

	cat := catalog.New()
	cat.Replace(catalog.NewSnapshot([]models.Station{{FMISID: 100971, StationType: "opendata", Latitude: 60.17, Longitude: 24.94, StationEnd: 4102444800}}))

	store, err := localstore.Open(context.Background(), ":memory:", 100)
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	caches, err := lru.New(lru.Sizes{})
	if err != nil {
		t.Fatalf("new caches: %v", err)
	}
	results, err := lru.NewResultCache(0, 0)
	if err != nil {
		t.Fatalf("new result cache: %v", err)
	}
	windows := &window.Windows{}

	e := &Engine{
		log:      zap.NewNop(),
		registry: reg,
		catalog:  cat,
		cache:    store,
		caches:   caches,
		results:  results,
		windows:  windows,
		state:    StatePoolInitialized,
	}
	e.dispatch = dispatcher.New(reg, cat, store, nil, caches, results, windows, dispatcher.DefaultCachedClasses(), e.log)
	return e
}

func TestQueriesRejectedBeforeReady(t *testing.T) {
	e := newBareEngine(t)
	_, err := e.Values(context.Background(), models.Settings{StationType: "opendata", FMISIDs: []int{100971}})
	if !errors.Is(err, obserrors.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestQueriesAcceptedOnceReady(t *testing.T) {
	e := newBareEngine(t)
	e.state = StateReady

	stations, err := e.GetStations(context.Background(), models.Settings{StationType: "opendata"})
	if err != nil {
		t.Fatalf("GetStations: %v", err)
	}
	if len(stations) != 1 || stations[0].FMISID != 100971 {
		t.Fatalf("expected single station 100971, got %+v", stations)
	}
}

func TestShutdownIsIdempotentAndTerminates(t *testing.T) {
	e := newBareEngine(t)
	e.state = StateReady
	pl, err := pool.New(context.Background(), 0, time.Second, func(ctx context.Context, idx int) (pool.Session, error) {
		return nil, nil
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	e.pool = pl

	e.Shutdown()
	if e.state != StateTerminated {
		t.Fatalf("expected terminated, got %s", e.state)
	}
	e.Shutdown() // must not panic or re-run teardown
	if e.state != StateTerminated {
		t.Fatalf("expected to remain terminated, got %s", e.state)
	}
}

func TestIsParameterAndGetParameterID(t *testing.T) {
	e := newBareEngine(t)
	if !e.IsParameter("t2m", "opendata") {
		t.Fatal("expected t2m to be a registered parameter for opendata")
	}
	code, err := e.GetParameterID("t2m", "opendata")
	if err != nil || code != "1" {
		t.Fatalf("expected code=1, got %q err=%v", code, err)
	}
	if _, err := e.GetParameterID("nonexistent", "opendata"); !errors.Is(err, obserrors.ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestMakeParameterNormalizesQCAndSensorSuffix(t *testing.T) {
	e := newBareEngine(t)
	p := e.MakeParameter("qc_t2m_2")
	if p.BaseAlias != "t2m" || !p.QualityFlag || p.SensorNo != 2 {
		t.Fatalf("unexpected normalization: %+v", p)
	}
}

func TestGetValidStationTypes(t *testing.T) {
	e := newBareEngine(t)
	types := e.GetValidStationTypes()
	if len(types) != 1 || types[0] != "opendata" {
		t.Fatalf("expected [opendata], got %v", types)
	}
}

func TestStateStringsCoverEveryState(t *testing.T) {
	for s := StateConstructing; s <= StateTerminated; s++ {
		if s.String() == "unknown" {
			t.Fatalf("state %d has no label", s)
		}
	}
}
