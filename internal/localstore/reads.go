package localstore

import (
	"context"
	"fmt"
	"time"

	"github.com/fmiobs/obsengine/internal/models"
)

// CachedData reads observation_data rows for the given stations and
// measurand codes within [start,end], honoring an optional fixed
// timestep (0 means every row). Results are ordered by fmisid, then
// obstime ascending within a fmisid, matching spec.md §5's ordering
// guarantee.
func (s *Store) CachedData(ctx context.Context, fmisids []int, measurandIDs []int, start, end time.Time, timestepMin int) ([]models.ObservationRow, error) {
	if len(fmisids) == 0 || len(measurandIDs) == 0 {
		return nil, nil
	}

	query := `SELECT fmisid, measurand_id, producer_id, measurand_no, data_time_utc, data_value, data_quality
FROM observation_data WHERE data_time_utc BETWEEN ? AND ? AND fmisid IN (` + placeholders(len(fmisids)) + `) AND measurand_id IN (` + placeholders(len(measurandIDs)) + `)`

	args := []any{start.UTC().Unix(), end.UTC().Unix()}
	for _, f := range fmisids {
		args = append(args, f)
	}
	for _, m := range measurandIDs {
		args = append(args, m)
	}

	if timestepMin > 0 {
		query += fmt.Sprintf(" AND (data_time_utc / 60) %% %d = 0", timestepMin)
	}
	query += " ORDER BY fmisid, data_time_utc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("localstore: cached data: %w", err)
	}
	defer rows.Close()

	var out []models.ObservationRow
	for rows.Next() {
		var r models.ObservationRow
		var unixTime int64
		if err := rows.Scan(&r.FMISID, &r.MeasurandID, &r.ProducerID, &r.SensorNo, &unixTime, &r.Value, &r.QualityFlag); err != nil {
			return nil, fmt.Errorf("localstore: scan observation row: %w", err)
		}
		r.ObsTimeUTC = time.Unix(unixTime, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// CachedQCData is CachedData's counterpart over weather_data_qc, keyed
// by string parameter codes rather than numeric measurand ids. It
// honors an optional fixed timestep the same way CachedData does (0
// means every row).
func (s *Store) CachedQCData(ctx context.Context, fmisids []int, parameterCodes []string, start, end time.Time, timestepMin int) ([]models.QCRow, error) {
	if len(fmisids) == 0 || len(parameterCodes) == 0 {
		return nil, nil
	}

	query := `SELECT fmisid, obstime_utc, parameter_code, sensor_no, value, flag
FROM weather_data_qc WHERE obstime_utc BETWEEN ? AND ? AND fmisid IN (` + placeholders(len(fmisids)) + `) AND parameter_code IN (` + placeholders(len(parameterCodes)) + `)`

	args := []any{start.UTC().Unix(), end.UTC().Unix()}
	for _, f := range fmisids {
		args = append(args, f)
	}
	for _, p := range parameterCodes {
		args = append(args, p)
	}

	if timestepMin > 0 {
		query += fmt.Sprintf(" AND (obstime_utc / 60) %% %d = 0", timestepMin)
	}
	query += " ORDER BY fmisid, obstime_utc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("localstore: cached qc data: %w", err)
	}
	defer rows.Close()

	var out []models.QCRow
	for rows.Next() {
		var r models.QCRow
		var unixTime int64
		if err := rows.Scan(&r.FMISID, &unixTime, &r.ParameterCode, &r.SensorNo, &r.Value, &r.Flag); err != nil {
			return nil, fmt.Errorf("localstore: scan qc row: %w", err)
		}
		r.ObsTimeUTC = time.Unix(unixTime, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// CachedFlashData returns flash rows within [start,end] in the bounding
// box (minLat,maxLat,minLon,maxLon).
func (s *Store) CachedFlashData(ctx context.Context, start, end time.Time, minLat, maxLat, minLon, maxLon float64) ([]models.FlashRow, error) {
	const query = `SELECT stroke_time_utc, stroke_time_frac_us, latitude, longitude, peak_current, multiplicity, cloud_indicator
FROM flash_data WHERE stroke_time_utc BETWEEN ? AND ? AND latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ? ORDER BY stroke_time_utc`

	rows, err := s.db.QueryContext(ctx, query, start.UTC().Unix(), end.UTC().Unix(), minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, fmt.Errorf("localstore: cached flash data: %w", err)
	}
	defer rows.Close()

	var out []models.FlashRow
	for rows.Next() {
		var r models.FlashRow
		var unixTime, fracUs int64
		if err := rows.Scan(&unixTime, &fracUs, &r.Latitude, &r.Longitude, &r.Peak, &r.Multiplicity, &r.CloudIndicator); err != nil {
			return nil, fmt.Errorf("localstore: scan flash row: %w", err)
		}
		r.StrokeTime = time.Unix(unixTime, fracUs*1000).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// FlashCount returns the flash/stroke/intra-cloud counts within
// [start,end] restricted to a bounding-box set of locations.
func (s *Store) FlashCount(ctx context.Context, start, end time.Time, minLat, maxLat, minLon, maxLon float64) (flash, stroke, ic int, err error) {
	const query = `SELECT
  count(*),
  count(*) FILTER (WHERE multiplicity <= 1),
  count(*) FILTER (WHERE cloud_indicator = 1)
FROM flash_data WHERE stroke_time_utc BETWEEN ? AND ? AND latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?`

	row := s.db.QueryRowContext(ctx, query, start.UTC().Unix(), end.UTC().Unix(), minLat, maxLat, minLon, maxLon)
	if scanErr := row.Scan(&flash, &stroke, &ic); scanErr != nil {
		return 0, 0, 0, fmt.Errorf("localstore: flash count: %w", scanErr)
	}
	return flash, stroke, ic, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
