package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmiobs/obsengine/internal/models"
)

func sampleStations() []models.Station {
	return []models.Station{
		{FMISID: 100971, Name: "Helsinki Kaisaniemi", StationType: "opendata", Latitude: 60.175, Longitude: 24.944, LPNN: 1, Status: 20},
		{FMISID: 101004, Name: "Helsinki Kumpula", StationType: "opendata", Latitude: 60.203, Longitude: 24.961, LPNN: models.NoID, Status: 20},
		{FMISID: 100971, Name: "duplicate fmisid", StationType: "opendata", Latitude: 0, Longitude: 0},
	}
}

func TestNewSnapshotDedupsByFirstOccurrence(t *testing.T) {
	snap := NewSnapshot(sampleStations())
	assert.Len(t, snap.Stations, 2)

	st, ok := snap.FindByID(100971)
	require.True(t, ok)
	assert.Equal(t, "Helsinki Kaisaniemi", st.Name)
}

func TestPruneWithoutLPNN(t *testing.T) {
	pruned := PruneWithoutLPNN(sampleStations())
	for _, s := range pruned {
		assert.Greater(t, s.LPNN, 0)
	}
}

func TestFindByRadiusOrdersByDistanceAscending(t *testing.T) {
	snap := NewSnapshot(sampleStations())
	found := snap.FindByRadius(60.17, 24.94, RadiusFilter{StationType: "opendata", MaxDistance: 50})

	require.Len(t, found, 2)
	assert.LessOrEqual(t, found[0].DistanceKm, found[1].DistanceKm)
}

func TestFindByRadiusRespectsMaxDistance(t *testing.T) {
	snap := NewSnapshot(sampleStations())
	found := snap.FindByRadius(60.17, 24.94, RadiusFilter{StationType: "opendata", MaxDistance: 0.001})
	assert.Empty(t, found)
}

func TestCatalogReplaceIsAtomic(t *testing.T) {
	c := New()
	assert.Empty(t, c.GetSnapshot().Stations)

	c.Replace(NewSnapshot(sampleStations()))
	assert.Len(t, c.GetSnapshot().Stations, 2)
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stations.gob")

	snap := NewSnapshot(sampleStations())
	require.NoError(t, Persist(snap, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Stations, 2)

	_, ok := loaded.FindByID(101004)
	assert.True(t, ok)
}

func TestLoadMissingFileReturnsEmptySnapshot(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "does-not-exist.gob"))
	require.NoError(t, err)
	assert.Empty(t, loaded.Stations)
}

func TestPersistWritesViaRenameNotInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stations.gob")
	require.NoError(t, Persist(NewSnapshot(sampleStations()), path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "stations.gob", entries[0].Name())
}
