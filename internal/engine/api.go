package engine

import (
	"context"
	"fmt"

	"github.com/fmiobs/obsengine/internal/models"
	"github.com/fmiobs/obsengine/internal/registry"
)

// Values runs the timeseries-shaped query operation.
func (e *Engine) Values(ctx context.Context, settings models.Settings) (*models.TimeSeriesVector, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	return e.dispatch.Values(ctx, settings)
}

// MakeQuery runs the table-shaped query operation.
func (e *Engine) MakeQuery(ctx context.Context, settings models.Settings) (*models.Table, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	return e.dispatch.MakeQuery(ctx, settings)
}

// GetFlashCount answers the flash/stroke/intra-cloud count operation for
// [settings.StartTime, settings.EndTime] and settings.BoundingBox.
func (e *Engine) GetFlashCount(ctx context.Context, settings models.Settings) (flash, stroke, ic int, err error) {
	if err := e.requireReady(); err != nil {
		return 0, 0, 0, err
	}
	return e.dispatch.GetFlashCount(ctx, settings)
}

// GetStations returns every station matching settings.StationType and
// settings.StationGroupCodes, restricted to stations that existed during
// [settings.StartTime, settings.EndTime] when those are set.
func (e *Engine) GetStations(ctx context.Context, settings models.Settings) ([]models.Station, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	snap := e.catalog.GetSnapshot()
	var out []models.Station
	for _, st := range snap.Stations {
		if settings.StationType != "" && st.StationType != settings.StationType {
			continue
		}
		if !st.InAnyGroup(settings.StationGroupCodes) {
			continue
		}
		if !settings.StartTime.IsZero() && !settings.EndTime.IsZero() {
			if !st.ExistedInInterval(settings.StartTime.Unix(), settings.EndTime.Unix()) {
				continue
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// GetStationsByArea returns every station whose point falls within the
// polygon described by wkt, restricted to settings.StationType/groups.
func (e *Engine) GetStationsByArea(ctx context.Context, settings models.Settings, wkt string) ([]models.Station, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	candidates, err := e.cache.StationsInWKT(ctx, wkt)
	if err != nil {
		return nil, fmt.Errorf("engine: stations by area: %w", err)
	}
	return filterByClassAndGroups(candidates, settings), nil
}

// GetStationsByBoundingBox returns every station within
// settings.BoundingBox, restricted to settings.StationType/groups.
func (e *Engine) GetStationsByBoundingBox(ctx context.Context, settings models.Settings) ([]models.Station, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	bb := settings.BoundingBox
	candidates, err := e.cache.StationsInBBox(ctx, bb.MinY, bb.MaxY, bb.MinX, bb.MaxX)
	if err != nil {
		return nil, fmt.Errorf("engine: stations by bounding box: %w", err)
	}
	return filterByClassAndGroups(candidates, settings), nil
}

// GetStationsByRadius returns up to settings.NumberOfStations stations
// within settings.MaxDistance km of (lat,lon), distance-ascending,
// restricted to settings.StationGroupCodes.
func (e *Engine) GetStationsByRadius(ctx context.Context, settings models.Settings, lon, lat float64) ([]models.Station, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	stations, err := e.cache.NearestStations(ctx, lat, lon, settings.MaxDistance, settings.NumberOfStations, settings.StationGroupCodes)
	if err != nil {
		return nil, fmt.Errorf("engine: stations by radius: %w", err)
	}
	if settings.StationType == "" {
		return stations, nil
	}
	out := make([]models.Station, 0, len(stations))
	for _, st := range stations {
		if st.StationType == settings.StationType {
			out = append(out, st)
		}
	}
	return out, nil
}

func filterByClassAndGroups(stations []models.Station, settings models.Settings) []models.Station {
	out := make([]models.Station, 0, len(stations))
	for _, st := range stations {
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

// ObservableProperty is one entry of an observablePropertyQuery result: a
// registered parameter alias plus its classification, labeled for the
// requested language (language is carried through as-is; per-language
// descriptive text is a collaborator this engine treats as external,
// matching spec.md §1's out-of-scope name-resolution/formatting
// services).
type ObservableProperty struct {
	Name           string
	Classification registry.Classification
	Language       string
}

// ObservablePropertyQuery reports the classification of each requested
// parameter alias, skipping any alias the registry does not recognize
// under any class.
func (e *Engine) ObservablePropertyQuery(parameters []string, language string) []ObservableProperty {
	out := make([]ObservableProperty, 0, len(parameters))
	for _, name := range parameters {
		class, ok := e.registry.Classify(name)
		if !ok {
			continue
		}
		out = append(out, ObservableProperty{Name: name, Classification: class, Language: language})
	}
	return out
}

// Parameter is the result of MakeParameter: a raw query-time alias
// normalized into its base form plus the quality-flag/sensor-number
// selectors the "qc_" prefix and "_<digit>" suffix conventions encode.
type Parameter struct {
	BaseAlias   string
	QualityFlag bool
	SensorNo    int
}

// MakeParameter normalizes a raw query-time alias without consulting the
// registered parameter map, mirroring registry.NormalizeAlias.
func (e *Engine) MakeParameter(name string) Parameter {
	lk := registry.NormalizeAlias(name)
	return Parameter{BaseAlias: lk.BaseAlias, QualityFlag: lk.QualityFlag, SensorNo: lk.SensorNo}
}

// IsParameter reports whether alias is registered for class.
func (e *Engine) IsParameter(alias, class string) bool {
	return e.registry.IsParameter(alias, class)
}

// GetParameterID returns the measurand/parameter code alias resolves to
// for class.
func (e *Engine) GetParameterID(alias, class string) (string, error) {
	code, _, _, err := e.registry.ParameterID(alias, class)
	if err != nil {
		return "", err
	}
	return code, nil
}

// GetValidStationTypes returns the ordered list of known station-class
// names.
func (e *Engine) GetValidStationTypes() []string {
	return e.registry.ValidStationTypes()
}
