package localstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"

	"github.com/fmiobs/obsengine/internal/geo"
	"github.com/fmiobs/obsengine/internal/models"
)

// NearestStations returns up to n stations within maxDistance km of
// (lat,lon), belonging to any of groups, ordered distance-ascending.
// Spatial filtering is done in two phases: a bounding-box pre-filter
// narrows the SQL scan to an indexed range, then an exact haversine
// distance check and sort run in Go. This stands in for the source
// system's true R-tree spatial index, which modernc.org/sqlite has no
// equivalent for.
func (s *Store) NearestStations(ctx context.Context, lat, lon, maxDistance float64, n int, groups []string) ([]models.Station, error) {
	minLat, maxLat, minLon, maxLon := geo.BoundingBox(lat, lon, maxDistance)

	candidates, err := s.StationsInBBox(ctx, minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, err
	}

	if len(groups) > 0 {
		candidates, err = s.filterByGroups(ctx, candidates, groups)
		if err != nil {
			return nil, err
		}
	}

	type withDistance struct {
		station models.Station
		dist    float64
	}
	var withinRadius []withDistance
	for _, st := range candidates {
		d := geo.DistanceKm(lat, lon, st.Latitude, st.Longitude)
		if d < maxDistance {
			annotated := st
			annotated.RequestedLat = lat
			annotated.RequestedLon = lon
			annotated.DistanceKm = d
			annotated.BearingDeg = geo.BearingDeg(lat, lon, st.Latitude, st.Longitude)
			withinRadius = append(withinRadius, withDistance{annotated, d})
		}
	}

	sort.SliceStable(withinRadius, func(i, j int) bool { return withinRadius[i].dist < withinRadius[j].dist })

	if n > 0 && len(withinRadius) > n {
		withinRadius = withinRadius[:n]
	}
	out := make([]models.Station, len(withinRadius))
	for i, wd := range withinRadius {
		out[i] = wd.station
	}
	return out, nil
}

func (s *Store) filterByGroups(ctx context.Context, stations []models.Station, groups []string) ([]models.Station, error) {
	var out []models.Station
	for _, st := range stations {
		ok, err := s.stationInAnyGroup(ctx, st.FMISID, groups)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, st)
		}
	}
	return out, nil
}

// StationsInWKT returns every station whose point falls within the
// polygon described by wkt, using the bounding box of the polygon as an
// index-friendly pre-filter and an exact ray-cast point-in-polygon test
// as the precise second phase.
func (s *Store) StationsInWKT(ctx context.Context, wktString string) ([]models.Station, error) {
	g, err := wkt.Unmarshal(wktString)
	if err != nil {
		return nil, fmt.Errorf("localstore: parse wkt polygon: %w", err)
	}
	poly, ok := g.(*geom.Polygon)
	if !ok {
		return nil, fmt.Errorf("localstore: wkt geometry is not a polygon")
	}

	minLat, maxLat, minLon, maxLon := polygonBounds(poly)
	candidates, err := s.StationsInBBox(ctx, minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, err
	}

	var out []models.Station
	for _, st := range candidates {
		if pointInPolygon(poly, st.Longitude, st.Latitude) {
			out = append(out, st)
		}
	}
	return out, nil
}

func polygonBounds(poly *geom.Polygon) (minLat, maxLat, minLon, maxLon float64) {
	ring := poly.LinearRing(0)
	flat := ring.FlatCoords()
	minLat, maxLat = 90, -90
	minLon, maxLon = 180, -180
	for i := 0; i+1 < len(flat); i += 2 {
		lon, lat := flat[i], flat[i+1]
		if lat < minLat {
			minLat = lat
		}
		if lat > maxLat {
			maxLat = lat
		}
		if lon < minLon {
			minLon = lon
		}
		if lon > maxLon {
			maxLon = lon
		}
	}
	return
}

// pointInPolygon implements the standard ray-casting test against the
// polygon's outer ring.
func pointInPolygon(poly *geom.Polygon, x, y float64) bool {
	ring := poly.LinearRing(0)
	flat := ring.FlatCoords()
	inside := false
	n := len(flat) / 2
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := flat[i*2], flat[i*2+1]
		xj, yj := flat[j*2], flat[j*2+1]
		if (yi > y) != (yj > y) &&
			x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
