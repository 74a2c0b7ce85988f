package dispatcher

import (
	"context"
	"fmt"

	"github.com/fmiobs/obsengine/internal/catalog"
	"github.com/fmiobs/obsengine/internal/models"
	"github.com/fmiobs/obsengine/internal/obserrors"
)

// resolveStations implements spec.md §4.9 step 4's eight station
// resolution paths, tried in the documented precedence order: the
// first path with any applicable settings wins, the rest are not
// consulted. The id paths (fmisids, wmos, lpnns) are augmented with
// nearest neighbors when settings.NumberOfStations > 1, per step 5; the
// coordinate and place-name paths keep the nearest NumberOfStations
// stations (default 1) around each point; all-places and bounding-box
// are not narrowed.
func (d *Dispatcher) resolveStations(ctx context.Context, settings models.Settings) ([]models.Station, error) {
	snap := d.catalog.GetSnapshot()

	var stations []models.Station
	var err error

	switch {
	case settings.AllPlaces:
		stations = d.resolveAllPlaces(snap, settings)
	case len(settings.TaggedLocations) > 0:
		stations, err = d.resolveTaggedLocations(ctx, snap, settings)
	case len(settings.Locations) > 0:
		stations, err = d.resolveLegacyLocations(ctx, snap, settings)
	case len(settings.Coordinates) > 0:
		stations = d.resolveCoordinates(snap, settings)
	case len(settings.FMISIDs) > 0:
		stations = d.resolveFMISIDs(snap, settings)
	case len(settings.WMOs) > 0:
		stations = d.resolveWMOs(snap, settings)
	case len(settings.LPNNs) > 0:
		stations = d.resolveLPNNs(snap, settings)
	case settings.BoundingBoxIsGiven:
		stations = d.resolveBoundingBox(snap, settings)
	default:
		return nil, fmt.Errorf("dispatcher: request names no station selection: %w", obserrors.ErrInvalidParameterValue)
	}
	if err != nil {
		return nil, err
	}

	return catalog.Dedup(stations), nil
}

// resolveAllPlaces returns every catalog station matching class/group,
// the "all-places" path.
func (d *Dispatcher) resolveAllPlaces(snap *catalog.Snapshot, settings models.Settings) []models.Station {
	var out []models.Station
	for _, st := range snap.Stations {
		if settings.StationType != "" && st.StationType != settings.StationType {
			continue
		}
		if !st.InAnyGroup(settings.StationGroupCodes) {
			continue
		}
		out = append(out, st)
	}
	return out
}

// resolveTaggedLocations looks each tag up via the injected name
// resolver (see lookupTaggedLocation), then nearest-station-narrows
// around the returned coordinate.
func (d *Dispatcher) resolveTaggedLocations(ctx context.Context, snap *catalog.Snapshot, settings models.Settings) ([]models.Station, error) {
	var out []models.Station
	for _, tag := range settings.TaggedLocations {
		lat, lon, ok := d.lookupTaggedLocation(ctx, tag)
		if !ok {
			continue
		}
		n := settings.NumberOfStations
		if n <= 0 {
			n = 1
		}
		near := snap.FindByRadius(lat, lon, catalog.RadiusFilter{
			StationType: settings.StationType,
			Groups:      settings.StationGroupCodes,
			MaxDistance: maxDistanceOrDefault(settings.MaxDistance),
		})
		if len(near) > n {
			near = near[:n]
		}
		for i := range near {
			near[i].RequestedTag = tag
		}
		out = append(out, near...)
	}
	return out, nil
}

// resolveLegacyLocations is the older free-text "locations" path,
// resolved identically to tagged locations (both ultimately key off a
// place-name-to-coordinate lookup); kept as a distinct path since the
// two request fields are independently settable and must not shadow
// each other's RequestedTag/RequestedName annotation.
func (d *Dispatcher) resolveLegacyLocations(ctx context.Context, snap *catalog.Snapshot, settings models.Settings) ([]models.Station, error) {
	var out []models.Station
	for _, name := range settings.Locations {
		lat, lon, ok := d.lookupTaggedLocation(ctx, name)
		if !ok {
			continue
		}
		n := settings.NumberOfStations
		if n <= 0 {
			n = 1
		}
		near := snap.FindByRadius(lat, lon, catalog.RadiusFilter{
			StationType: settings.StationType,
			Groups:      settings.StationGroupCodes,
			MaxDistance: maxDistanceOrDefault(settings.MaxDistance),
		})
		if len(near) > n {
			near = near[:n]
		}
		for i := range near {
			near[i].RequestedName = name
		}
		out = append(out, near...)
	}
	return out, nil
}

// lookupTaggedLocation resolves a tagged or legacy location name to
// coordinates via the injected name resolver (spec.md §6's "by_name"),
// the same collaborator the preload pipeline uses for reverse lookups.
// Without one installed (no gazetteer in this deployment) it misses.
func (d *Dispatcher) lookupTaggedLocation(ctx context.Context, name string) (lat, lon float64, ok bool) {
	if d.names == nil {
		return 0, 0, false
	}
	return d.names.ByName(ctx, name)
}

func (d *Dispatcher) resolveCoordinates(snap *catalog.Snapshot, settings models.Settings) []models.Station {
	n := settings.NumberOfStations
	if n <= 0 {
		n = 1
	}
	var out []models.Station
	for _, c := range settings.Coordinates {
		near := snap.FindByRadius(c.Lat, c.Lon, catalog.RadiusFilter{
			StationType: settings.StationType,
			Groups:      settings.StationGroupCodes,
			MaxDistance: maxDistanceOrDefault(settings.MaxDistance),
		})
		if len(near) > n {
			near = near[:n]
		}
		out = append(out, near...)
	}
	return out
}

func (d *Dispatcher) resolveFMISIDs(snap *catalog.Snapshot, settings models.Settings) []models.Station {
	var out []models.Station
	for _, id := range settings.FMISIDs {
		st, ok := snap.FindByID(id)
		if !ok {
			continue
		}
		if settings.StationType != "" && st.StationType != settings.StationType {
			continue
		}
		out = append(out, d.withNeighbors(snap, st, settings)...)
	}
	return out
}

func (d *Dispatcher) resolveWMOs(snap *catalog.Snapshot, settings models.Settings) []models.Station {
	byWMO := make(map[int]models.Station, len(snap.Stations))
	for _, st := range snap.Stations {
		if st.HasWMO() {
			byWMO[st.WMO] = st
		}
	}
	var out []models.Station
	for _, wmo := range settings.WMOs {
		st, ok := byWMO[wmo]
		if !ok {
			continue
		}
		out = append(out, d.withNeighbors(snap, st, settings)...)
	}
	return out
}

func (d *Dispatcher) resolveLPNNs(snap *catalog.Snapshot, settings models.Settings) []models.Station {
	byLPNN := make(map[int]models.Station, len(snap.Stations))
	for _, st := range snap.Stations {
		if st.HasLPNN() {
			byLPNN[st.LPNN] = st
		}
	}
	var out []models.Station
	for _, lpnn := range settings.LPNNs {
		st, ok := byLPNN[lpnn]
		if !ok {
			continue
		}
		out = append(out, d.withNeighbors(snap, st, settings)...)
	}
	return out
}

func (d *Dispatcher) resolveBoundingBox(snap *catalog.Snapshot, settings models.Settings) []models.Station {
	bb := settings.BoundingBox
	var out []models.Station
	for _, st := range snap.Stations {
		if st.Latitude < bb.MinY || st.Latitude > bb.MaxY || st.Longitude < bb.MinX || st.Longitude > bb.MaxX {
			continue
		}
		if settings.StationType != "" && st.StationType != settings.StationType {
			continue
		}
		if !st.InAnyGroup(settings.StationGroupCodes) {
			continue
		}
		out = append(out, st)
	}
	return out
}

// withNeighbors augments a single directly-named station with its
// nearest N-1 neighbors when settings.NumberOfStations > 1, per
// spec.md §4.9 step 5.
func (d *Dispatcher) withNeighbors(snap *catalog.Snapshot, st models.Station, settings models.Settings) []models.Station {
	if settings.NumberOfStations <= 1 {
		return []models.Station{st}
	}
	near := snap.FindByRadius(st.Latitude, st.Longitude, catalog.RadiusFilter{
		StationType: settings.StationType,
		Groups:      settings.StationGroupCodes,
		MaxDistance: maxDistanceOrDefault(settings.MaxDistance),
	})
	out := []models.Station{st}
	for _, candidate := range near {
		if candidate.FMISID == st.FMISID {
			continue
		}
		out = append(out, candidate)
		if len(out) >= settings.NumberOfStations {
			break
		}
	}
	return out
}

func maxDistanceOrDefault(d float64) float64 {
	if d <= 0 {
		return 50.0
	}
	return d
}

// stationsForTimeRange filters stations to those that existed at some
// point in [t0,t1], applying the class-specific always-existing
// carve-outs from models.Station.ExistedInInterval.
func stationsForTimeRange(stations []models.Station, t0, t1 int64) []models.Station {
	var out []models.Station
	for _, st := range stations {
		if st.ExistedInInterval(t0, t1) {
			out = append(out, st)
		}
	}
	return out
}

