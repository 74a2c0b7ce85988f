// Package localstore implements the local cache store (C5): an embedded
// SQL store (modernc.org/sqlite, a pure-Go stand-in for the
// cgo-dependent SpatiaLite extension the source system uses) holding
// the denormalized station catalog plus a rolling window of
// observation/QC/flash rows, with write-only-by-pipeline,
// read-by-queries discipline.
package localstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the schema version string persisted stores are
// stamped with, per spec.md §6. Schema upgrades are out of scope; a
// mismatched version is a fatal configuration error.
const SchemaVersion = "2"

// Store wraps the embedded database/sql handle. create_tables is
// idempotent and safe to call on every startup.
type Store struct {
	db            *sql.DB
	maxInsertSize int
}

// Open opens (creating if absent) the sqlite file at path and ensures
// the schema exists.
func Open(ctx context.Context, path string, maxInsertSize int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("localstore: open %s: %w", path, err)
	}
	// sqlite already serializes writes; database/sql's own pool is bounded
	// to a single connection, which reads and writes share one at a time,
	// to avoid SQLITE_BUSY under the embedded driver.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, maxInsertSize: maxInsertSize}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// createTables is idempotent: every statement uses CREATE TABLE IF NOT
// EXISTS / CREATE INDEX IF NOT EXISTS.
func (s *Store) createTables(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("localstore: begin schema tx: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_info (version TEXT NOT NULL)`,

		`CREATE TABLE IF NOT EXISTS stations (
			fmisid INTEGER PRIMARY KEY,
			wmo INTEGER,
			lpnn INTEGER,
			rwsid INTEGER,
			name TEXT,
			station_type TEXT,
			latitude REAL,
			longitude REAL,
			elevation REAL,
			station_start INTEGER,
			station_end INTEGER,
			status INTEGER,
			timezone_name TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stations_latlon ON stations(latitude, longitude)`,
		`CREATE INDEX IF NOT EXISTS idx_stations_wmo ON stations(wmo)`,
		`CREATE INDEX IF NOT EXISTS idx_stations_lpnn ON stations(lpnn)`,
		`CREATE INDEX IF NOT EXISTS idx_stations_rwsid ON stations(rwsid)`,

		`CREATE TABLE IF NOT EXISTS station_groups (code TEXT PRIMARY KEY)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			fmisid INTEGER NOT NULL REFERENCES stations(fmisid),
			group_code TEXT NOT NULL REFERENCES station_groups(code),
			PRIMARY KEY (fmisid, group_code)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_group_members_group ON group_members(group_code)`,

		`CREATE TABLE IF NOT EXISTS locations (
			fmisid INTEGER NOT NULL REFERENCES stations(fmisid),
			location_start INTEGER NOT NULL,
			location_end INTEGER NOT NULL,
			latitude REAL,
			longitude REAL,
			elevation REAL,
			timezone_name TEXT,
			PRIMARY KEY (fmisid, location_start)
		)`,

		`CREATE TABLE IF NOT EXISTS observation_data (
			fmisid INTEGER NOT NULL,
			measurand_id INTEGER NOT NULL,
			producer_id INTEGER NOT NULL,
			measurand_no INTEGER NOT NULL,
			data_time_utc INTEGER NOT NULL,
			data_value REAL,
			data_quality INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_obsdata_time ON observation_data(data_time_utc)`,
		`CREATE INDEX IF NOT EXISTS idx_obsdata_fmisid_time ON observation_data(fmisid, data_time_utc)`,

		`CREATE TABLE IF NOT EXISTS weather_data_qc (
			fmisid INTEGER NOT NULL,
			obstime_utc INTEGER NOT NULL,
			parameter_code TEXT NOT NULL,
			sensor_no INTEGER NOT NULL,
			value REAL,
			flag INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_qc_time ON weather_data_qc(obstime_utc)`,
		`CREATE INDEX IF NOT EXISTS idx_qc_fmisid_time ON weather_data_qc(fmisid, obstime_utc)`,

		`CREATE TABLE IF NOT EXISTS flash_data (
			stroke_time_utc INTEGER NOT NULL,
			stroke_time_frac_us INTEGER NOT NULL,
			latitude REAL,
			longitude REAL,
			peak_current REAL,
			multiplicity INTEGER,
			cloud_indicator INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_flash_time ON flash_data(stroke_time_utc)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("localstore: schema statement failed: %w", err)
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM schema_info`).Scan(&count); err != nil {
		tx.Rollback()
		return fmt.Errorf("localstore: count schema_info: %w", err)
	}
	if count == 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_info(version) VALUES (?)`, SchemaVersion); err != nil {
			tx.Rollback()
			return fmt.Errorf("localstore: stamp schema version: %w", err)
		}
	} else {
		var version string
		if err := tx.QueryRowContext(ctx, `SELECT version FROM schema_info LIMIT 1`).Scan(&version); err != nil {
			tx.Rollback()
			return fmt.Errorf("localstore: read schema version: %w", err)
		}
		if version != SchemaVersion {
			tx.Rollback()
			return fmt.Errorf("localstore: store schema version %q does not match %q", version, SchemaVersion)
		}
	}

	return tx.Commit()
}
