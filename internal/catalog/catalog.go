// Package catalog implements the station catalog (C2): an atomically
// published, immutable snapshot of every known station plus the lookup
// and spatial-scan operations the dispatcher and pipeline run against it.
package catalog

import (
	"sync/atomic"

	"github.com/fmiobs/obsengine/internal/geo"
	"github.com/fmiobs/obsengine/internal/models"
)

// Snapshot is the immutable pair (ordered station list, fmisid index)
// published by Catalog.Replace. Once built it is never mutated; readers
// hold a reference for the duration of one request.
type Snapshot struct {
	Stations []models.Station
	byFMISID map[int]models.Station
}

// NewSnapshot builds a Snapshot from stations, deduplicating by first
// fmisid occurrence as mandated by spec.md §3.1.
func NewSnapshot(stations []models.Station) *Snapshot {
	deduped := Dedup(stations)
	idx := make(map[int]models.Station, len(deduped))
	for _, s := range deduped {
		idx[s.FMISID] = s
	}
	return &Snapshot{Stations: deduped, byFMISID: idx}
}

// FindByID is the O(1) lookup against the snapshot's index.
func (s *Snapshot) FindByID(fmisid int) (models.Station, bool) {
	st, ok := s.byFMISID[fmisid]
	return st, ok
}

// Catalog holds the currently-published snapshot behind an atomic
// pointer. Replacement never blocks readers; an in-flight reader's
// Snapshot reference remains valid (the old value is simply
// garbage-collected once unreferenced, standing in for the
// reference-counted retention spec.md describes).
type Catalog struct {
	current atomic.Pointer[Snapshot]
}

// New returns an empty Catalog. Callers typically call Replace once with
// a loaded or persisted snapshot before serving any query.
func New() *Catalog {
	c := &Catalog{}
	c.current.Store(NewSnapshot(nil))
	return c
}

// GetSnapshot returns a reference to the current immutable snapshot.
func (c *Catalog) GetSnapshot() *Snapshot {
	return c.current.Load()
}

// Replace atomically swaps in newSnapshot.
func (c *Catalog) Replace(newSnapshot *Snapshot) {
	c.current.Store(newSnapshot)
}

// Dedup preserves first occurrence by fmisid, dropping later duplicates.
func Dedup(stations []models.Station) []models.Station {
	seen := make(map[int]struct{}, len(stations))
	out := make([]models.Station, 0, len(stations))
	for _, s := range stations {
		if _, ok := seen[s.FMISID]; ok {
			continue
		}
		seen[s.FMISID] = struct{}{}
		out = append(out, s)
	}
	return out
}

// PruneWithoutLPNN removes stations with lpnn <= 0, used before querying
// lpnn-keyed tables.
func PruneWithoutLPNN(stations []models.Station) []models.Station {
	out := make([]models.Station, 0, len(stations))
	for _, s := range stations {
		if s.LPNN > 0 {
			out = append(out, s)
		}
	}
	return out
}

// RadiusFilter is the class/group predicate passed to FindByRadius; it
// mirrors the class- and group-restriction fields of models.Settings
// without requiring catalog to import the dispatcher's request shaping.
type RadiusFilter struct {
	StationType string
	Groups      []string
	MaxDistance float64
}

// FindByRadius performs a linear scan with a great-circle filter and
// class filter, returning stations within settings.max_distance,
// annotated with distance and bearing from (lat,lon). Order is
// distance-ascending.
func (s *Snapshot) FindByRadius(lat, lon float64, filter RadiusFilter) []models.Station {
	var out []models.Station
	for _, st := range s.Stations {
		if filter.StationType != "" && st.StationType != filter.StationType {
			continue
		}
		if !st.InAnyGroup(filter.Groups) {
			continue
		}
		d := geo.DistanceKm(lat, lon, st.Latitude, st.Longitude)
		if d >= filter.MaxDistance {
			continue
		}
		annotated := st
		annotated.RequestedLat = lat
		annotated.RequestedLon = lon
		annotated.DistanceKm = d
		annotated.BearingDeg = geo.BearingDeg(lat, lon, st.Latitude, st.Longitude)
		out = append(out, annotated)
	}
	sortByDistance(out)
	return out
}

func sortByDistance(stations []models.Station) {
	// insertion sort: result sets from one radius scan are small
	// (station counts, not observation counts), and this keeps the
	// comparator trivially stable for equidistant stations per
	// spec.md's "implementation-defined" ordering note.
	for i := 1; i < len(stations); i++ {
		for j := i; j > 0 && stations[j].DistanceKm < stations[j-1].DistanceKm; j-- {
			stations[j], stations[j-1] = stations[j-1], stations[j]
		}
	}
}
