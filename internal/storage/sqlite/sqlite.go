// Package sqlite stores processing results in a local SQLite database
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/oceandata/internal/log"
	"github.com/chrissnell/oceandata/internal/report"
	"github.com/chrissnell/oceandata/internal/types"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		source      TEXT NOT NULL,
		format      TEXT,
		started_at  TIMESTAMP NOT NULL,
		duration_ms INTEGER,
		records     INTEGER,
		samples     INTEGER,
		error       TEXT,
		report      TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS samples (
		run_id           TEXT NOT NULL REFERENCES runs(run_id),
		sample_index     INTEGER NOT NULL,
		station_id       TEXT,
		cast_id          TEXT,
		time             TIMESTAMP,
		latitude         REAL,
		longitude        REAL,
		pressure_dbar    REAL,
		depth_m          REAL,
		temperature_c    REAL,
		salinity_psu     REAL,
		oxygen_umol_kg   REAL,
		nutrients        TEXT,
		quality_flag     TEXT NOT NULL,
		water_mass       TEXT,
		pressure_derived INTEGER NOT NULL DEFAULT 0,
		depth_derived    INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, sample_index)
	)`,
	`CREATE INDEX IF NOT EXISTS samples_cast ON samples (station_id, cast_id)`,
}

const insertRunSQL = `INSERT INTO runs
	(run_id, source, format, started_at, duration_ms, records, samples, error, report)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertSampleSQL = `INSERT INTO samples
	(run_id, sample_index, station_id, cast_id, time, latitude, longitude, pressure_dbar, depth_m,
	 temperature_c, salinity_psu, oxygen_umol_kg, nutrients, quality_flag, water_mass,
	 pressure_derived, depth_derived)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Storage is a SQLite result sink
type Storage struct {
	db     *sql.DB
	path   string
	logger *zap.SugaredLogger
}

// New opens (creating if needed) the database at path and its schema
func New(ctx context.Context, path string, logger *zap.SugaredLogger) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &Storage{db: db, path: path, logger: log.OrNop(logger)}, nil
}

func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: types.Present(v)}
}

// Store writes the run and its samples in one transaction
func (s *Storage) Store(ctx context.Context, r *report.Report, ds *types.Dataset) error {
	rep, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, insertRunSQL, r.RunID, r.Source, r.Format, r.StartedAt,
		r.Duration.Milliseconds(), r.Records, r.Samples, sql.NullString{String: r.Error, Valid: r.Error != ""}, string(rep))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if ds != nil && len(ds.Samples) > 0 {
		stmt, err := tx.PrepareContext(ctx, insertSampleSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare sample insert: %w", err)
		}
		defer stmt.Close()

		for _, smp := range ds.Samples {
			var ts sql.NullTime
			if !smp.Timestamp.IsZero() {
				ts = sql.NullTime{Time: smp.Timestamp.UTC(), Valid: true}
			}
			var nutrients sql.NullString
			if len(smp.Nutrients) > 0 {
				b, err := json.Marshal(smp.Nutrients)
				if err != nil {
					return fmt.Errorf("failed to encode nutrients: %w", err)
				}
				nutrients = sql.NullString{String: string(b), Valid: true}
			}
			_, err := stmt.ExecContext(ctx, r.RunID, smp.Index, smp.StationID, smp.CastID, ts,
				nullable(smp.Latitude), nullable(smp.Longitude), nullable(smp.PressureDbar), nullable(smp.DepthM),
				nullable(smp.TemperatureC), nullable(smp.SalinityPSU), nullable(smp.OxygenUmolKg),
				nutrients, smp.QualityFlag.String(), sql.NullString{String: smp.WaterMass, Valid: smp.WaterMass != ""},
				smp.PressureDerived, smp.DepthDerived)
			if err != nil {
				return fmt.Errorf("failed to insert sample %d: %w", smp.Index, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	s.logger.Debugf("storage [sqlite] stored run %s with %d samples in %s", r.RunID, r.Samples, s.path)
	return nil
}

// ClassCounts returns the number of samples per water mass for a run.
// Unclassified samples are counted under types.Unclassified.
func (s *Storage) ClassCounts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(water_mass, ?), COUNT(*) FROM samples WHERE run_id = ? GROUP BY 1`,
		types.Unclassified, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query class counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan class count: %w", err)
		}
		counts[strings.TrimSpace(name)] = n
	}
	return counts, rows.Err()
}

// CheckHealth pings the database
func (s *Storage) CheckHealth(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("SQLite health query failed: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}
