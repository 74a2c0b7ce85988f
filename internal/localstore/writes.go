package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fmiobs/obsengine/internal/authstore"
	"github.com/fmiobs/obsengine/internal/models"
)

// batch splits items into chunks of at most size, mirroring the
// teacher's batched-insert loop shape (defaultBatchSize there, maxInsertSize
// here) from the authoritative-store config.
func batch[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
		if size == 0 {
			return nil
		}
	}
	var out [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

// FillLocations inserts location delta rows in batches of at most
// maxInsertSize per transaction.
func (s *Store) FillLocations(ctx context.Context, items []authstore.LocationItem) error {
	for _, chunk := range batch(items, s.maxInsertSize) {
		if err := s.insertLocationsBatch(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertLocationsBatch(ctx context.Context, items []authstore.LocationItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("localstore: begin locations batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO locations(fmisid, location_start, location_end, latitude, longitude, elevation, timezone_name) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("localstore: prepare locations insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.FMISID, it.Start, it.End, it.Latitude, it.Longitude, it.Elevation, it.TimezoneName); err != nil {
			tx.Rollback()
			return fmt.Errorf("localstore: insert location row: %w", err)
		}
	}
	return tx.Commit()
}

// FillData inserts observation_data delta rows in batches.
func (s *Store) FillData(ctx context.Context, items []models.ObservationRow) error {
	for _, chunk := range batch(items, s.maxInsertSize) {
		if err := s.insertDataBatch(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertDataBatch(ctx context.Context, items []models.ObservationRow) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("localstore: begin data batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO observation_data(fmisid, measurand_id, producer_id, measurand_no, data_time_utc, data_value, data_quality) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("localstore: prepare data insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range items {
		if _, err := stmt.ExecContext(ctx, r.FMISID, r.MeasurandID, r.ProducerID, r.SensorNo, r.ObsTimeUTC.UTC().Unix(), r.Value, r.QualityFlag); err != nil {
			tx.Rollback()
			return fmt.Errorf("localstore: insert observation row: %w", err)
		}
	}
	return tx.Commit()
}

// FillQC inserts weather_data_qc delta rows in batches.
func (s *Store) FillQC(ctx context.Context, items []models.QCRow) error {
	for _, chunk := range batch(items, s.maxInsertSize) {
		if err := s.insertQCBatch(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertQCBatch(ctx context.Context, items []models.QCRow) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("localstore: begin qc batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO weather_data_qc(fmisid, obstime_utc, parameter_code, sensor_no, value, flag) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("localstore: prepare qc insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range items {
		if _, err := stmt.ExecContext(ctx, r.FMISID, r.ObsTimeUTC.UTC().Unix(), r.ParameterCode, r.SensorNo, r.Value, r.Flag); err != nil {
			tx.Rollback()
			return fmt.Errorf("localstore: insert qc row: %w", err)
		}
	}
	return tx.Commit()
}

// FillFlash inserts flash_data delta rows in batches, preserving the
// microsecond fraction of stroke_time as a separate integer column.
func (s *Store) FillFlash(ctx context.Context, items []models.FlashRow) error {
	for _, chunk := range batch(items, s.maxInsertSize) {
		if err := s.insertFlashBatch(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertFlashBatch(ctx context.Context, items []models.FlashRow) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("localstore: begin flash batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO flash_data(stroke_time_utc, stroke_time_frac_us, latitude, longitude, peak_current, multiplicity, cloud_indicator) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("localstore: prepare flash insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range items {
		t := r.StrokeTime.UTC()
		if _, err := stmt.ExecContext(ctx, t.Unix(), t.Nanosecond()/1000, r.Latitude, r.Longitude, r.Peak, r.Multiplicity, r.CloudIndicator); err != nil {
			tx.Rollback()
			return fmt.Errorf("localstore: insert flash row: %w", err)
		}
	}
	return tx.Commit()
}

// Clean deletes rows strictly older than keepFrom from table, using
// timeCol as the boundary column. table/timeCol are validated against a
// fixed allow-list rather than interpolated from caller-controlled
// input, since this is the only place the store builds SQL by string
// concatenation.
func (s *Store) Clean(ctx context.Context, table, timeCol string, keepFrom time.Time) error {
	allowed := map[string]string{
		"observation_data": "data_time_utc",
		"weather_data_qc":  "obstime_utc",
		"flash_data":       "stroke_time_utc",
	}
	col, ok := allowed[table]
	if !ok || col != timeCol {
		return fmt.Errorf("localstore: clean: unrecognized table/column %s/%s", table, timeCol)
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s < ?`, table, timeCol)
	_, err := s.db.ExecContext(ctx, query, keepFrom.UTC().Unix())
	if err != nil {
		return fmt.Errorf("localstore: clean %s: %w", table, err)
	}
	return nil
}

// LatestObservationTime returns the most recent data_time_utc in
// observation_data, or ok=false for an empty table.
func (s *Store) LatestObservationTime(ctx context.Context) (time.Time, bool, error) {
	return s.latestTime(ctx, "observation_data", "data_time_utc")
}

// LatestQCTime returns the most recent obstime_utc in weather_data_qc.
func (s *Store) LatestQCTime(ctx context.Context) (time.Time, bool, error) {
	return s.latestTime(ctx, "weather_data_qc", "obstime_utc")
}

// LatestFlashTime returns the most recent stroke_time_utc in flash_data.
func (s *Store) LatestFlashTime(ctx context.Context) (time.Time, bool, error) {
	return s.latestTime(ctx, "flash_data", "stroke_time_utc")
}

func (s *Store) latestTime(ctx context.Context, table, col string) (time.Time, bool, error) {
	query := fmt.Sprintf(`SELECT max(%s) FROM %s`, col, table)
	var unix sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query).Scan(&unix); err != nil {
		return time.Time{}, false, fmt.Errorf("localstore: latest time on %s: %w", table, err)
	}
	if !unix.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(unix.Int64, 0).UTC(), true, nil
}
