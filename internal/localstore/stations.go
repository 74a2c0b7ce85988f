package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fmiobs/obsengine/internal/models"
)

// ReplaceStations rewrites the stations/station_groups/group_members
// tables from a freshly preloaded station list, as the final step of a
// preloader pass (spec.md §4.9 step 4: "update local store
// stations+groups tables").
func (s *Store) ReplaceStations(ctx context.Context, stations []models.Station) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("localstore: begin replace stations: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members`); err != nil {
		tx.Rollback()
		return fmt.Errorf("localstore: clear group_members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stations`); err != nil {
		tx.Rollback()
		return fmt.Errorf("localstore: clear stations: %w", err)
	}

	stStmt, err := tx.PrepareContext(ctx, `INSERT INTO stations(fmisid, wmo, lpnn, rwsid, name, station_type, latitude, longitude, elevation, station_start, station_end, status, timezone_name) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("localstore: prepare station insert: %w", err)
	}
	defer stStmt.Close()

	groupStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO station_groups(code) VALUES (?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("localstore: prepare group insert: %w", err)
	}
	defer groupStmt.Close()

	memberStmt, err := tx.PrepareContext(ctx, `INSERT INTO group_members(fmisid, group_code) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("localstore: prepare member insert: %w", err)
	}
	defer memberStmt.Close()

	for _, st := range stations {
		if _, err := stStmt.ExecContext(ctx, st.FMISID, st.WMO, st.LPNN, st.RWSID, st.Name, st.StationType,
			st.Latitude, st.Longitude, st.Elevation, st.StationStart, st.StationEnd, st.Status, st.TimezoneName); err != nil {
			tx.Rollback()
			return fmt.Errorf("localstore: insert station %d: %w", st.FMISID, err)
		}
		for _, g := range st.GroupCodes {
			if _, err := groupStmt.ExecContext(ctx, g); err != nil {
				tx.Rollback()
				return fmt.Errorf("localstore: insert group %s: %w", g, err)
			}
			if _, err := memberStmt.ExecContext(ctx, st.FMISID, g); err != nil {
				tx.Rollback()
				return fmt.Errorf("localstore: insert member %d/%s: %w", st.FMISID, g, err)
			}
		}
	}

	return tx.Commit()
}

// GetStationByID returns the station with fmisid, restricted to one of
// groups if groups is non-empty.
func (s *Store) GetStationByID(ctx context.Context, fmisid int, groups []string) (models.Station, bool, error) {
	st, err := s.scanOneStation(ctx, `SELECT fmisid, wmo, lpnn, rwsid, name, station_type, latitude, longitude, elevation, station_start, station_end, status, timezone_name FROM stations WHERE fmisid = ?`, fmisid)
	if err != nil {
		return models.Station{}, false, err
	}
	if st == nil {
		return models.Station{}, false, nil
	}
	if len(groups) > 0 {
		ok, err := s.stationInAnyGroup(ctx, fmisid, groups)
		if err != nil {
			return models.Station{}, false, err
		}
		if !ok {
			return models.Station{}, false, nil
		}
	}
	return *st, true, nil
}

func (s *Store) scanOneStation(ctx context.Context, query string, args ...any) (*models.Station, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	var st models.Station
	err := row.Scan(&st.FMISID, &st.WMO, &st.LPNN, &st.RWSID, &st.Name, &st.StationType,
		&st.Latitude, &st.Longitude, &st.Elevation, &st.StationStart, &st.StationEnd, &st.Status, &st.TimezoneName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("localstore: scan station: %w", err)
	}
	return &st, nil
}

func (s *Store) stationInAnyGroup(ctx context.Context, fmisid int, groups []string) (bool, error) {
	placeholders := make([]any, 0, len(groups)+1)
	placeholders = append(placeholders, fmisid)
	q := `SELECT count(*) FROM group_members WHERE fmisid = ? AND group_code IN (`
	for i, g := range groups {
		if i > 0 {
			q += ","
		}
		q += "?"
		placeholders = append(placeholders, g)
	}
	q += ")"

	var count int
	if err := s.db.QueryRowContext(ctx, q, placeholders...).Scan(&count); err != nil {
		return false, fmt.Errorf("localstore: group membership check: %w", err)
	}
	return count > 0, nil
}

// AllStationsInGroups returns every station belonging to any of groups.
// An empty groups list returns every station.
func (s *Store) AllStationsInGroups(ctx context.Context, groups []string) ([]models.Station, error) {
	var query string
	var args []any
	if len(groups) == 0 {
		query = `SELECT fmisid, wmo, lpnn, rwsid, name, station_type, latitude, longitude, elevation, station_start, station_end, status, timezone_name FROM stations ORDER BY fmisid`
	} else {
		query = `SELECT DISTINCT s.fmisid, s.wmo, s.lpnn, s.rwsid, s.name, s.station_type, s.latitude, s.longitude, s.elevation, s.station_start, s.station_end, s.status, s.timezone_name
FROM stations s JOIN group_members gm ON gm.fmisid = s.fmisid
WHERE gm.group_code IN (`
		for i, g := range groups {
			if i > 0 {
				query += ","
			}
			query += "?"
			args = append(args, g)
		}
		query += ") ORDER BY s.fmisid"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("localstore: all stations in groups: %w", err)
	}
	defer rows.Close()

	var out []models.Station
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.FMISID, &st.WMO, &st.LPNN, &st.RWSID, &st.Name, &st.StationType,
			&st.Latitude, &st.Longitude, &st.Elevation, &st.StationStart, &st.StationEnd, &st.Status, &st.TimezoneName); err != nil {
			return nil, fmt.Errorf("localstore: scan station row: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// StationsInBBox returns stations whose coordinates fall within the
// given rectangle, a plain SQL range scan over the indexed
// (latitude,longitude) columns standing in for the SpatiaLite spatial
// index the source system uses.
func (s *Store) StationsInBBox(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]models.Station, error) {
	const query = `SELECT fmisid, wmo, lpnn, rwsid, name, station_type, latitude, longitude, elevation, station_start, station_end, status, timezone_name
FROM stations WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ? ORDER BY fmisid`

	rows, err := s.db.QueryContext(ctx, query, minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, fmt.Errorf("localstore: stations in bbox: %w", err)
	}
	defer rows.Close()

	var out []models.Station
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.FMISID, &st.WMO, &st.LPNN, &st.RWSID, &st.Name, &st.StationType,
			&st.Latitude, &st.Longitude, &st.Elevation, &st.StationStart, &st.StationEnd, &st.Status, &st.TimezoneName); err != nil {
			return nil, fmt.Errorf("localstore: scan station row: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
