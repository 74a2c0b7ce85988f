package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"

	"github.com/fmiobs/obsengine/internal/catalog"
	"github.com/fmiobs/obsengine/internal/localstore"
	"github.com/fmiobs/obsengine/internal/lru"
	"github.com/fmiobs/obsengine/internal/models"
	"github.com/fmiobs/obsengine/internal/obserrors"
	"github.com/fmiobs/obsengine/internal/registry"
	"github.com/fmiobs/obsengine/internal/window"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Load(
		[]registry.AliasDecl{
			{Alias: "t2m", Classify: registry.Data, PerClass: map[string]string{"opendata": "1", "foreign": "TA"}},
			{Alias: "ws_10min", Classify: registry.Data, PerClass: map[string]string{"opendata": "2"}},
		},
		[]registry.ClassDecl{
			{Name: "opendata", Attrs: registry.ClassAttributes{
				Cached:            true,
				DatabaseTableName: "observation_data",
				GroupCodes:        map[string]struct{}{},
				ProducerIDs:       map[int]struct{}{1: {}},
			}},
			{Name: "foreign", Attrs: registry.ClassAttributes{
				Cached:            true,
				DatabaseTableName: "weather_data_qc",
				GroupCodes:        map[string]struct{}{},
			}},
		},
	)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	return reg
}

func testStation() models.Station {
	return models.Station{
		FMISID: 100971, StationType: "opendata", Name: "Helsinki Kaisaniemi",
		Latitude: 60.17, Longitude: 24.94, StationStart: 0, StationEnd: 4102444800,
		TimezoneName: "Europe/Helsinki",
	}
}

func testForeignStation() models.Station {
	return models.Station{
		FMISID: 114226, StationType: "foreign", Name: "Tallinn",
		Latitude: 59.44, Longitude: 24.75, StationStart: 0, StationEnd: 4102444800,
		TimezoneName: "Europe/Tallinn",
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *catalog.Catalog, *localstore.Store) {
	t.Helper()
	reg := testRegistry(t)

	cat := catalog.New()
	cat.Replace(catalog.NewSnapshot([]models.Station{testStation(), testForeignStation()}))

	store, err := localstore.Open(context.Background(), ":memory:", 100)
	if err != nil {
		t.Fatalf("open localstore: %v", err)
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
	windows.Observation.Store(window.Interval{
		Begin: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	windows.WeatherQC.Store(window.Interval{
		Begin: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	})

	d := New(reg, cat, store, nil, caches, results, windows, DefaultCachedClasses(), zap.NewNop())
	return d, cat, store
}

func TestValidateParametersRejectsUnknownName(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	err := d.validateParameters([]string{"not_a_real_parameter"}, "opendata")
	if !errors.Is(err, obserrors.ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestValidateParametersAcceptsSpecialAndDerivedNames(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	err := d.validateParameters([]string{"fmisid", "time", "windcompass8", "feelslike", "t2m"}, "opendata")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPlanMarksCacheEligibleWhenWindowCoversRange(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	settings := models.Settings{
		StationType:  "opendata",
		StartTime:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		EndTime:      time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC),
		UseDataCache: true,
		Parameters:   []string{"t2m"},
	}
	plan, err := d.plan(settings)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !plan.useCache {
		t.Fatal("expected useCache=true when window covers the requested range")
	}
}

func TestPlanMarksCacheIneligibleWhenCallerDisablesIt(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	settings := models.Settings{
		StationType:  "opendata",
		StartTime:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		EndTime:      time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC),
		UseDataCache: false,
		Parameters:   []string{"t2m"},
	}
	plan, err := d.plan(settings)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.useCache {
		t.Fatal("expected useCache=false when caller disabled the cache")
	}
}

func TestResolveStationsFMISIDPath(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	settings := models.Settings{StationType: "opendata", FMISIDs: []int{100971}}
	stations, err := d.resolveStations(context.Background(), settings)
	if err != nil {
		t.Fatalf("resolveStations: %v", err)
	}
	if len(stations) != 1 || stations[0].FMISID != 100971 {
		t.Fatalf("expected single station 100971, got %+v", stations)
	}
}

func TestResolveStationsFailsWithoutAnySelectionField(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	_, err := d.resolveStations(context.Background(), models.Settings{StationType: "opendata"})
	if !errors.Is(err, obserrors.ErrInvalidParameterValue) {
		t.Fatalf("expected ErrInvalidParameterValue, got %v", err)
	}
}

func TestMakeQueryAssemblesRowsFromCache(t *testing.T) {
	d, _, store := newTestDispatcher(t)
	ctx := context.Background()

	obsTime := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := store.FillData(ctx, []models.ObservationRow{
		{FMISID: 100971, MeasurandID: 1, ProducerID: 1, SensorNo: 1, ObsTimeUTC: obsTime, Value: 18.5},
	}); err != nil {
		t.Fatalf("fill data: %v", err)
	}

	settings := models.Settings{
		StationType:  "opendata",
		FMISIDs:      []int{100971},
		StartTime:    obsTime.Add(-time.Hour),
		EndTime:      obsTime.Add(time.Hour),
		UseDataCache: true,
		Parameters:   []string{"fmisid", "t2m"},
	}

	table, err := d.MakeQuery(ctx, settings)
	if err != nil {
		t.Fatalf("MakeQuery: %v", err)
	}
	t.Log(spew.Sdump(table))
	if len(table.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(table.Rows))
	}
	got, ok := table.Rows[0][1].Float64()
	if !ok || got != 18.5 {
		t.Fatalf("expected t2m=18.5, got %v ok=%v", got, ok)
	}
}

// TestMakeQueryAppliesTimestepToQCCachePath guards against the QC
// (road/foreign) fetch path silently ignoring settings.Timestep: every
// returned row's obstime minute must be a multiple of the requested
// step, matching the observation path's FixedTimestep behavior.
func TestMakeQueryAppliesTimestepToQCCachePath(t *testing.T) {
	d, _, store := newTestDispatcher(t)
	ctx := context.Background()

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := make([]models.QCRow, 0, 6)
	for i := 0; i < 6; i++ {
		rows = append(rows, models.QCRow{
			FMISID: 114226, ObsTimeUTC: base.Add(time.Duration(i*10) * time.Minute),
			ParameterCode: "TA", SensorNo: 1, Value: 10 + float64(i), Flag: 0,
		})
	}
	if err := store.FillQC(ctx, rows); err != nil {
		t.Fatalf("fill qc: %v", err)
	}

	settings := models.Settings{
		StationType:  "foreign",
		FMISIDs:      []int{114226},
		StartTime:    base,
		EndTime:      base.Add(time.Hour),
		UseDataCache: true,
		Timestep:     20,
		Parameters:   []string{"fmisid", "time", "t2m"},
	}

	table, err := d.MakeQuery(ctx, settings)
	if err != nil {
		t.Fatalf("MakeQuery: %v", err)
	}
	t.Log(spew.Sdump(table))
	if len(table.Rows) == 0 {
		t.Fatal("expected at least one row")
	}
	timeCol := -1
	for i, col := range table.Columns {
		if col == "time" {
			timeCol = i
		}
	}
	if timeCol == -1 {
		t.Fatal("expected a time column in the assembled table")
	}
	for _, row := range table.Rows {
		ts, ok := row[timeCol].Timestamp()
		if !ok {
			t.Fatalf("expected row time to decode, got %+v", row[timeCol])
		}
		if ts.Minute()%20 != 0 {
			t.Fatalf("expected every row minute to be a multiple of 20, got %v", ts)
		}
	}
}

func TestMakeQueryReturnsMissingForUnobservedParameter(t *testing.T) {
	d, _, store := newTestDispatcher(t)
	ctx := context.Background()

	obsTime := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := store.FillData(ctx, []models.ObservationRow{
		{FMISID: 100971, MeasurandID: 1, ProducerID: 1, SensorNo: 1, ObsTimeUTC: obsTime, Value: 18.5},
	}); err != nil {
		t.Fatalf("fill data: %v", err)
	}

	settings := models.Settings{
		StationType:  "opendata",
		FMISIDs:      []int{100971},
		StartTime:    obsTime.Add(-time.Hour),
		EndTime:      obsTime.Add(time.Hour),
		UseDataCache: true,
		Parameters:   []string{"t2m", "ws_10min"},
	}

	table, err := d.MakeQuery(ctx, settings)
	if err != nil {
		t.Fatalf("MakeQuery: %v", err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(table.Rows))
	}
	if !table.Rows[0][1].IsNone() {
		t.Fatalf("expected ws_10min to be missing, got %+v", table.Rows[0][1])
	}
}
