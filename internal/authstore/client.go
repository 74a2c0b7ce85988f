// Package authstore implements the authoritative store client (C3):
// typed access to the remote tables (stations, locations,
// observation_data, weather_data_qc, flashdata) over pgx/v5, including
// the QueryOpenData-style pivot query builder and the fatal-reconnect
// error policy.
package authstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fmiobs/obsengine/internal/models"
	"github.com/fmiobs/obsengine/internal/obserrors"
)

// fatalCodes is the fixed set of Oracle error codes the source system
// treats as connection-lost/EOF/not-connected: 3135 (connection lost),
// 3113 (end-of-file on communication channel), 3114 (not connected).
// pgx/Postgres has no direct equivalent numbering, so a session
// implementation maps its own fatal conditions (connection closed,
// broken pipe, context canceled mid-query) onto this set via
// classifyFatal before Client.withRetry consults it.
var fatalCodes = map[string]struct{}{
	"3135": {},
	"3113": {},
	"3114": {},
}

// IsFatal reports whether code is one of the fatal-reconnect codes.
func IsFatal(code string) bool {
	_, ok := fatalCodes[code]
	return ok
}

// classifyFatal maps a pgx/pgconn error onto one of the fatal Oracle
// codes it stands in for, or "" if err is not a connection-level fault.
func classifyFatal(err error) string {
	if err == nil {
		return ""
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Postgres admin_shutdown/crash_shutdown class maps to
		// "connection lost".
		switch pgErr.Code {
		case "57P01", "57P02", "57P03":
			return "3135"
		}
		return ""
	}
	if pgconn.SafeToRetry(err) {
		return "3113"
	}
	return ""
}

// Conn is the subset of a pgx connection the client needs; satisfied by
// *pgx.Conn and exposed this way so tests can supply a fake.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Session is one authoritative-store session, implementing the
// pool.Session interface (Reconnect/Close) plus the typed reads C3
// exposes.
type Session struct {
	connString string
	conn       Conn
	dial       func(ctx context.Context, connString string) (Conn, error)
}

// NewSession opens a session against connString using dial (normally
// pgx.Connect, wrapped so tests can substitute a fake).
func NewSession(ctx context.Context, connString string, dial func(ctx context.Context, connString string) (Conn, error)) (*Session, error) {
	conn, err := dial(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("authstore: connect: %w", err)
	}
	return &Session{connString: connString, conn: conn, dial: dial}, nil
}

// Reconnect closes the current connection (best-effort) and dials a new
// one, implementing the fatal-reconnect policy's "reconnect" step.
func (s *Session) Reconnect(ctx context.Context) error {
	if s.conn != nil {
		_ = s.conn.Close(ctx)
	}
	conn, err := s.dial(ctx, s.connString)
	if err != nil {
		return fmt.Errorf("authstore: reconnect: %w", err)
	}
	s.conn = conn
	return nil
}

// Close releases the session's connection.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close(context.Background())
}

// withRetry runs op once; if it fails with one of the fatal-reconnect
// codes, the session reconnects and op is retried exactly once, per
// spec.md §4.3's fatal-error policy. Any other failure, or a failure on
// the retry, is wrapped as obserrors.ErrOperationProcessingFailed.
func (s *Session) withRetry(ctx context.Context, op func(Conn) error) error {
	err := op(s.conn)
	if err == nil {
		return nil
	}
	if code := classifyFatal(err); code != "" && IsFatal(code) {
		if reErr := s.Reconnect(ctx); reErr != nil {
			return fmt.Errorf("authstore: reconnect after fatal code %s: %w", code, obserrors.ErrOperationProcessingFailed)
		}
		if retryErr := op(s.conn); retryErr != nil {
			return fmt.Errorf("authstore: retry after reconnect: %w: %w", retryErr, obserrors.ErrOperationProcessingFailed)
		}
		return nil
	}
	return fmt.Errorf("authstore: %w: %w", err, obserrors.ErrOperationProcessingFailed)
}

// ReadAllStations returns every station with status=20, for the
// preloader's initial/refresh load. The status filter is bypassed
// entirely for foreign/research/syke classes per spec.md §4.9 step 1,
// which this query implements by simply never restricting those
// classes on status in the WHERE clause.
func (s *Session) ReadAllStations(ctx context.Context) ([]models.Station, error) {
	const query = `
SELECT fmisid, wmo, lpnn, rwsid, station_formal_name, station_type,
       latitude, longitude, elevation,
       extract(epoch from station_start)::bigint,
       extract(epoch from station_end)::bigint,
       status, timezone_name
FROM stations
WHERE status = 20
   OR station_type IN ('foreign', 'research', 'syke')
ORDER BY fmisid`

	var stations []models.Station
	err := s.withRetry(ctx, func(conn Conn) error {
		rows, err := conn.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		stations = stations[:0]
		for rows.Next() {
			var st models.Station
			if err := rows.Scan(&st.FMISID, &st.WMO, &st.LPNN, &st.RWSID, &st.Name,
				&st.StationType, &st.Latitude, &st.Longitude, &st.Elevation,
				&st.StationStart, &st.StationEnd, &st.Status, &st.TimezoneName); err != nil {
				return err
			}
			classify(&st)
			stations = append(stations, st)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return stations, nil
}

// classify sets the class boolean fields from the raw station_type
// string, per spec.md §4.9 step 3.
func classify(st *models.Station) {
	switch st.StationType {
	case "road":
		st.IsRoadStation = true
	case "foreign":
		st.IsForeignStation = true
	case "research":
		st.IsResearchStation = true
	case "syke":
		st.IsSYKEStation = true
	default:
		st.IsFMIStation = true
	}
}

// ReadLocationsSince returns location rows whose validity changed at or
// after t, for the preloader's delta pull.
func (s *Session) ReadLocationsSince(ctx context.Context, t time.Time) ([]LocationItem, error) {
	const query = `
SELECT fmisid,
       extract(epoch from location_start)::bigint,
       extract(epoch from location_end)::bigint,
       latitude, longitude, elevation, timezone_name
FROM locations
WHERE location_start >= $1 OR location_end >= $1
ORDER BY fmisid`

	var items []LocationItem
	err := s.withRetry(ctx, func(conn Conn) error {
		rows, err := conn.Query(ctx, query, t.UTC())
		if err != nil {
			return err
		}
		defer rows.Close()

		items = items[:0]
		for rows.Next() {
			var it LocationItem
			if err := rows.Scan(&it.FMISID, &it.Start, &it.End, &it.Latitude, &it.Longitude, &it.Elevation, &it.TimezoneName); err != nil {
				return err
			}
			items = append(items, it)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// LocationItem is one row pulled from the locations table by the
// reconciliation pipeline.
type LocationItem struct {
	FMISID       int
	Start        int64
	End          int64
	Latitude     float64
	Longitude    float64
	Elevation    float64
	TimezoneName string
}

// ReadObservationsSince pulls observation_data rows with data_time_utc
// >= t, filtering out null values at the source (spec.md §3.2: a row
// with value=null is never inserted).
func (s *Session) ReadObservationsSince(ctx context.Context, t time.Time) ([]models.ObservationRow, error) {
	const query = `
SELECT fmisid, measurand_id, producer_id, measurand_no, data_time_utc, data_value, data_quality
FROM observation_data
WHERE data_time_utc >= $1 AND data_value IS NOT NULL
ORDER BY fmisid, data_time_utc`

	var rowsOut []models.ObservationRow
	err := s.withRetry(ctx, func(conn Conn) error {
		rows, err := conn.Query(ctx, query, t.UTC())
		if err != nil {
			return err
		}
		defer rows.Close()

		rowsOut = rowsOut[:0]
		for rows.Next() {
			var r models.ObservationRow
			if err := rows.Scan(&r.FMISID, &r.MeasurandID, &r.ProducerID, &r.SensorNo, &r.ObsTimeUTC, &r.Value, &r.QualityFlag); err != nil {
				return err
			}
			rowsOut = append(rowsOut, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return rowsOut, nil
}

// ReadQCSince pulls weather_data_qc rows with obstime_utc >= t.
func (s *Session) ReadQCSince(ctx context.Context, t time.Time) ([]models.QCRow, error) {
	const query = `
SELECT fmisid, obstime_utc, parameter_code, sensor_no, value, flag
FROM weather_data_qc
WHERE obstime_utc >= $1 AND value IS NOT NULL
ORDER BY fmisid, obstime_utc`

	var rowsOut []models.QCRow
	err := s.withRetry(ctx, func(conn Conn) error {
		rows, err := conn.Query(ctx, query, t.UTC())
		if err != nil {
			return err
		}
		defer rows.Close()

		rowsOut = rowsOut[:0]
		for rows.Next() {
			var r models.QCRow
			if err := rows.Scan(&r.FMISID, &r.ObsTimeUTC, &r.ParameterCode, &r.SensorNo, &r.Value, &r.Flag); err != nil {
				return err
			}
			rowsOut = append(rowsOut, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return rowsOut, nil
}

// ReadFlashesSince pulls flashdata rows with stroke_time >= t, preserving
// the sub-second fraction pgx decodes natively via time.Time.
func (s *Session) ReadFlashesSince(ctx context.Context, t time.Time) ([]models.FlashRow, error) {
	const query = `
SELECT stroke_time, latitude, longitude, peak_current, multiplicity, cloud_indicator
FROM flashdata
WHERE stroke_time >= $1
ORDER BY stroke_time`

	var rowsOut []models.FlashRow
	err := s.withRetry(ctx, func(conn Conn) error {
		rows, err := conn.Query(ctx, query, t.UTC())
		if err != nil {
			return err
		}
		defer rows.Close()

		rowsOut = rowsOut[:0]
		for rows.Next() {
			var r models.FlashRow
			if err := rows.Scan(&r.StrokeTime, &r.Latitude, &r.Longitude, &r.Peak, &r.Multiplicity, &r.CloudIndicator); err != nil {
				return err
			}
			rowsOut = append(rowsOut, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return rowsOut, nil
}
