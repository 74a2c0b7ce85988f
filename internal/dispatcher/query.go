package dispatcher

import (
	"context"
	"fmt"

	"github.com/fmiobs/obsengine/internal/authstore"
	"github.com/fmiobs/obsengine/internal/models"
)

// prepare runs the full validate/expand/decide/resolve/fetch pipeline
// shared by Values and MakeQuery, stopping short of the two distinct
// row-assembly shapes.
func (d *Dispatcher) prepare(ctx context.Context, settings models.Settings) ([]*stationFrame, models.Settings, error) {
	plan, err := d.plan(settings)
	if err != nil {
		return nil, models.Settings{}, err
	}

	stations, err := d.resolveStations(ctx, plan.settings)
	if err != nil {
		return nil, models.Settings{}, err
	}
	stations = stationsForTimeRange(stations, plan.settings.StartTime.Unix(), plan.settings.EndTime.Unix())
	if len(stations) == 0 {
		return nil, plan.settings, nil
	}

	params := d.resolveParamRequests(plan.settings.Parameters, plan.class)
	cells, err := d.fetchData(ctx, plan, stations, params)
	if err != nil {
		return nil, models.Settings{}, err
	}

	return buildFrames(stations, cells), plan.settings, nil
}

// Values runs the timeseries-shaped query (the `values(settings)`
// operation): validate, resolve stations, fetch, and assemble one
// TimeSeries per (station, parameter) pair.
func (d *Dispatcher) Values(ctx context.Context, settings models.Settings) (*models.TimeSeriesVector, error) {
	frames, resolved, err := d.prepare(ctx, settings)
	if err != nil {
		return nil, err
	}
	if frames == nil {
		return &models.TimeSeriesVector{}, nil
	}
	return buildTimeSeriesVector(frames, resolved), nil
}

// MakeQuery runs the table-shaped query (the `makeQuery(settings)`
// operation): the same pipeline as Values, assembled into a flat table
// instead of per-parameter series.
func (d *Dispatcher) MakeQuery(ctx context.Context, settings models.Settings) (*models.Table, error) {
	frames, resolved, err := d.prepare(ctx, settings)
	if err != nil {
		return nil, err
	}
	if frames == nil {
		return models.NewTable(settings.Parameters), nil
	}
	return buildTable(frames, resolved), nil
}

// GetFlashCount answers the flash/stroke/intra-cloud count operation
// for a bounding box and time range, routing through the cache when
// the flash window covers the request and falling back to a full
// authoritative-store scan (filtered in process) otherwise. The
// authoritative path accepts only a lower time bound, so it pulls every
// flash since start and discards what falls outside [start,end] and the
// bounding box client-side; this is acceptable since flash counts are
// requested over short, recent windows in practice.
func (d *Dispatcher) GetFlashCount(ctx context.Context, settings models.Settings) (flash, stroke, ic int, err error) {
	bb := settings.BoundingBox
	if d.windows.Flash.Contains(settings.StartTime, settings.EndTime) && settings.UseDataCache {
		return d.cache.FlashCount(ctx, settings.StartTime, settings.EndTime, bb.MinY, bb.MaxY, bb.MinX, bb.MaxX)
	}

	err = d.withSession(ctx, func(sess *authstore.Session) error {
		rows, fetchErr := sess.ReadFlashesSince(ctx, settings.StartTime)
		if fetchErr != nil {
			return fetchErr
		}
		for _, r := range rows {
			if r.StrokeTime.After(settings.EndTime) {
				continue
			}
			if r.Latitude < bb.MinY || r.Latitude > bb.MaxY || r.Longitude < bb.MinX || r.Longitude > bb.MaxX {
				continue
			}
			flash++
			if r.Multiplicity <= 1 {
				stroke++
			}
			if r.CloudIndicator == 1 {
				ic++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, 0, fmt.Errorf("dispatcher: flash count: %w", err)
	}
	return flash, stroke, ic, nil
}
