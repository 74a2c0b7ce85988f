package localstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fmiobs/obsengine/internal/authstore"
	"github.com/fmiobs/obsengine/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.sqlite")
	s, err := Open(context.Background(), path, 500)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesSchemaIdempotently(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.sqlite")

	s1, err := Open(ctx, path, 500)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, path, 500)
	require.NoError(t, err)
	defer s2.Close()

	var version string
	require.NoError(t, s2.db.QueryRowContext(ctx, `SELECT version FROM schema_info`).Scan(&version))
	require.Equal(t, SchemaVersion, version)
}

func sampleStation(fmisid int, lat, lon float64, groups ...string) models.Station {
	return models.Station{
		FMISID:      fmisid,
		Name:        "station",
		StationType: "opendata",
		Latitude:    lat,
		Longitude:   lon,
		GroupCodes:  groups,
	}
}

func TestReplaceStationsAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stations := []models.Station{
		sampleStation(100001, 60.17, 24.94, "opendata", "mareograph"),
		sampleStation(100002, 65.0, 25.5, "opendata"),
	}
	require.NoError(t, s.ReplaceStations(ctx, stations))

	got, ok, err := s.GetStationByID(ctx, 100001, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "station", got.Name)

	_, ok, err = s.GetStationByID(ctx, 999999, nil)
	require.NoError(t, err)
	require.False(t, ok)

	inGroup, err := s.AllStationsInGroups(ctx, []string{"mareograph"})
	require.NoError(t, err)
	require.Len(t, inGroup, 1)
	require.Equal(t, 100001, inGroup[0].FMISID)

	all, err := s.AllStationsInGroups(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestReplaceStationsOverwritesPreviousSet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceStations(ctx, []models.Station{sampleStation(1, 60, 25)}))
	require.NoError(t, s.ReplaceStations(ctx, []models.Station{sampleStation(2, 61, 26)}))

	_, ok, err := s.GetStationByID(ctx, 1, nil)
	require.NoError(t, err)
	require.False(t, ok, "previous station set must not survive a replace")

	_, ok, err = s.GetStationByID(ctx, 2, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStationsInBBoxAndNearestStations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stations := []models.Station{
		sampleStation(1, 60.0, 24.0),
		sampleStation(2, 60.1, 24.1),
		sampleStation(3, 70.0, 30.0),
	}
	require.NoError(t, s.ReplaceStations(ctx, stations))

	inBox, err := s.StationsInBBox(ctx, 59.0, 61.0, 23.0, 25.0)
	require.NoError(t, err)
	require.Len(t, inBox, 2)

	nearest, err := s.NearestStations(ctx, 60.0, 24.0, 50, 5, nil)
	require.NoError(t, err)
	require.Len(t, nearest, 2)
	require.Equal(t, 1, nearest[0].FMISID, "exact match station must be closest")
	require.Less(t, nearest[0].DistanceKm, nearest[1].DistanceKm)
}

func TestStationsInWKTSelectsOnlyInteriorPoints(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stations := []models.Station{
		sampleStation(1, 60.5, 24.5),  // inside
		sampleStation(2, 61.5, 26.5),  // outside
	}
	require.NoError(t, s.ReplaceStations(ctx, stations))

	square := "POLYGON((24 60, 25 60, 25 61, 24 61, 24 60))"
	inside, err := s.StationsInWKT(ctx, square)
	require.NoError(t, err)
	require.Len(t, inside, 1)
	require.Equal(t, 1, inside[0].FMISID)
}

func TestFillDataAndCachedData(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	rows := []models.ObservationRow{
		{FMISID: 1, MeasurandID: 4, ProducerID: 1, SensorNo: 1, ObsTimeUTC: base, Value: 12.3, QualityFlag: 0},
		{FMISID: 1, MeasurandID: 4, ProducerID: 1, SensorNo: 1, ObsTimeUTC: base.Add(10 * time.Minute), Value: 12.7, QualityFlag: 0},
		{FMISID: 2, MeasurandID: 4, ProducerID: 1, SensorNo: 1, ObsTimeUTC: base, Value: 9.0, QualityFlag: 0},
	}
	require.NoError(t, s.FillData(ctx, rows))

	got, err := s.CachedData(ctx, []int{1}, []int{4}, base.Add(-time.Hour), base.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].ObsTimeUTC.Before(got[1].ObsTimeUTC))

	latest, ok, err := s.LatestObservationTime(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, base.Add(10*time.Minute), latest)
}

func TestFillQCAndCachedQCData(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	rows := []models.QCRow{
		{FMISID: 1, ObsTimeUTC: base, ParameterCode: "TA", SensorNo: 1, Value: 15.0, Flag: 0},
		{FMISID: 1, ObsTimeUTC: base.Add(10 * time.Minute), ParameterCode: "TA", SensorNo: 1, Value: 15.4, Flag: 0},
		{FMISID: 1, ObsTimeUTC: base.Add(20 * time.Minute), ParameterCode: "TA", SensorNo: 1, Value: 15.6, Flag: 0},
	}
	require.NoError(t, s.FillQC(ctx, rows))

	got, err := s.CachedQCData(ctx, []int{1}, []string{"TA"}, base.Add(-time.Hour), base.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 15.0, got[0].Value)

	stepped, err := s.CachedQCData(ctx, []int{1}, []string{"TA"}, base.Add(-time.Hour), base.Add(time.Hour), 20)
	require.NoError(t, err)
	require.Len(t, stepped, 2)
	for _, r := range stepped {
		require.Zero(t, r.ObsTimeUTC.Minute()%20)
	}
}

func TestFillFlashCachedFlashDataAndCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	rows := []models.FlashRow{
		{StrokeTime: base, Latitude: 60.5, Longitude: 24.5, Peak: -12.3, Multiplicity: 1, CloudIndicator: 0},
		{StrokeTime: base.Add(time.Minute), Latitude: 60.6, Longitude: 24.6, Peak: 8.1, Multiplicity: 2, CloudIndicator: 1},
	}
	require.NoError(t, s.FillFlash(ctx, rows))

	got, err := s.CachedFlashData(ctx, base.Add(-time.Hour), base.Add(time.Hour), 60.0, 61.0, 24.0, 25.0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	flash, stroke, ic, err := s.FlashCount(ctx, base.Add(-time.Hour), base.Add(time.Hour), 60.0, 61.0, 24.0, 25.0)
	require.NoError(t, err)
	require.Equal(t, 2, flash)
	require.Equal(t, 1, stroke)
	require.Equal(t, 1, ic)
}

func TestCleanRejectsUnknownTable(t *testing.T) {
	s := openTestStore(t)
	err := s.Clean(context.Background(), "stations", "fmisid", time.Now())
	require.Error(t, err)
}

func TestCleanRemovesOldRowsOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	rows := []models.ObservationRow{
		{FMISID: 1, MeasurandID: 4, ProducerID: 1, SensorNo: 1, ObsTimeUTC: base.Add(-48 * time.Hour), Value: 1},
		{FMISID: 1, MeasurandID: 4, ProducerID: 1, SensorNo: 1, ObsTimeUTC: base, Value: 2},
	}
	require.NoError(t, s.FillData(ctx, rows))
	require.NoError(t, s.Clean(ctx, "observation_data", "data_time_utc", base.Add(-time.Hour)))

	got, err := s.CachedData(ctx, []int{1}, []int{4}, base.Add(-72*time.Hour), base.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, base, got[0].ObsTimeUTC)
}

func TestFillLocations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC).Unix()
	items := []authstore.LocationItem{
		{FMISID: 1, Start: now - 3600, End: now + 3600, Latitude: 60, Longitude: 24, Elevation: 10, TimezoneName: "Europe/Helsinki"},
	}
	require.NoError(t, s.FillLocations(ctx, items))

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT count(*) FROM locations`).Scan(&count))
	require.Equal(t, 1, count)
}
