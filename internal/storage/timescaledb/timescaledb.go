// Package timescaledb stores processing results in a TimescaleDB hypertable
package timescaledb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/oceandata/internal/log"
	"github.com/chrissnell/oceandata/internal/report"
	"github.com/chrissnell/oceandata/internal/types"
)

// batchSize is the number of sample rows sent per INSERT
const batchSize = 500

// Storage holds the connection for a TimescaleDB storage backend
type Storage struct {
	TimescaleDBConn *gorm.DB
	logger          *zap.SugaredLogger
}

// Run is one processed file
type Run struct {
	RunID      string    `gorm:"column:run_id;primaryKey"`
	Source     string    `gorm:"column:source"`
	Format     string    `gorm:"column:format"`
	StartedAt  time.Time `gorm:"column:started_at"`
	DurationMS int64     `gorm:"column:duration_ms"`
	Records    int       `gorm:"column:records"`
	Samples    int       `gorm:"column:samples"`
	Error      *string   `gorm:"column:error"`
	Report     string    `gorm:"column:report;type:jsonb"`
}

func (Run) TableName() string {
	return "runs"
}

// Sample is one stored canonical sample.  Samples without a timestamp are
// filed under the start of their run so that the hypertable always has a
// time to partition on.
type Sample struct {
	Time            time.Time `gorm:"column:time"`
	HasTimestamp    bool      `gorm:"column:has_timestamp"`
	RunID           string    `gorm:"column:run_id"`
	SampleIndex     int       `gorm:"column:sample_index"`
	StationID       string    `gorm:"column:station_id"`
	CastID          string    `gorm:"column:cast_id"`
	Latitude        *float64  `gorm:"column:latitude"`
	Longitude       *float64  `gorm:"column:longitude"`
	PressureDbar    *float64  `gorm:"column:pressure_dbar"`
	DepthM          *float64  `gorm:"column:depth_m"`
	TemperatureC    *float64  `gorm:"column:temperature_c"`
	SalinityPSU     *float64  `gorm:"column:salinity_psu"`
	OxygenUmolKg    *float64  `gorm:"column:oxygen_umol_kg"`
	Nutrients       *string   `gorm:"column:nutrients;type:jsonb"`
	QualityFlag     string    `gorm:"column:quality_flag"`
	WaterMass       *string   `gorm:"column:water_mass"`
	PressureDerived bool      `gorm:"column:pressure_derived"`
	DepthDerived    bool      `gorm:"column:depth_derived"`
}

func (Sample) TableName() string {
	return "samples"
}

// ClassCount is one row of a per-run water mass summary
type ClassCount struct {
	WaterMass string `gorm:"column:water_mass"`
	Samples   int    `gorm:"column:samples"`
}

func present(v float64) *float64 {
	if !types.Present(v) {
		return nil
	}
	return &v
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RunRow converts a report to its table row
func RunRow(r *report.Report) (Run, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return Run{}, fmt.Errorf("could not encode report: %w", err)
	}
	return Run{
		RunID:      r.RunID,
		Source:     r.Source,
		Format:     r.Format,
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
		Records:    r.Records,
		Samples:    r.Samples,
		Error:      optional(r.Error),
		Report:     string(b),
	}, nil
}

// SampleRows converts the samples of ds to table rows for the run
func SampleRows(r *report.Report, ds *types.Dataset) ([]Sample, error) {
	if ds == nil {
		return nil, nil
	}
	rows := make([]Sample, 0, len(ds.Samples))
	for _, s := range ds.Samples {
		row := Sample{
			Time:            r.StartedAt.UTC(),
			RunID:           r.RunID,
			SampleIndex:     s.Index,
			StationID:       s.StationID,
			CastID:          s.CastID,
			Latitude:        present(s.Latitude),
			Longitude:       present(s.Longitude),
			PressureDbar:    present(s.PressureDbar),
			DepthM:          present(s.DepthM),
			TemperatureC:    present(s.TemperatureC),
			SalinityPSU:     present(s.SalinityPSU),
			OxygenUmolKg:    present(s.OxygenUmolKg),
			QualityFlag:     s.QualityFlag.String(),
			WaterMass:       optional(s.WaterMass),
			PressureDerived: s.PressureDerived,
			DepthDerived:    s.DepthDerived,
		}
		if !s.Timestamp.IsZero() {
			row.Time = s.Timestamp.UTC()
			row.HasTimestamp = true
		}
		if len(s.Nutrients) > 0 {
			b, err := json.Marshal(s.Nutrients)
			if err != nil {
				return nil, fmt.Errorf("could not encode nutrients of sample %d: %w", s.Index, err)
			}
			row.Nutrients = optional(string(b))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// CreateConnection opens a gorm connection that logs through logger
func CreateConnection(connectionString string, l *zap.SugaredLogger) (*gorm.DB, error) {
	dbLogger := logger.New(
		zap.NewStdLog(l.Desugar()),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // Ignore ErrRecordNotFound error for logger
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// New connects to TimescaleDB and creates the result tables
func New(ctx context.Context, connectionString string, l *zap.SugaredLogger) (*Storage, error) {
	t := &Storage{logger: log.OrNop(l)}

	t.logger.Info("connecting to TimescaleDB...")
	db, err := CreateConnection(connectionString, t.logger)
	if err != nil {
		return nil, fmt.Errorf("unable to create a TimescaleDB connection: %w", err)
	}
	t.TimescaleDBConn = db

	steps := []struct {
		name string
		sql  string
	}{
		{"runs table", createRunsTableSQL},
		{"samples table", createSamplesTableSQL},
		{"TimescaleDB extension", createExtensionSQL},
		{"hypertable", createHypertableSQL},
		{"cast index", createCastIndexSQL},
	}
	for _, step := range steps {
		t.logger.Infof("creating %s...", step.name)
		if err := db.WithContext(ctx).Exec(step.sql).Error; err != nil {
			t.Close()
			return nil, fmt.Errorf("could not create %s: %w", step.name, err)
		}
	}

	return t, nil
}

// Store writes the run and its samples in one transaction
func (t *Storage) Store(ctx context.Context, r *report.Report, ds *types.Dataset) error {
	run, err := RunRow(r)
	if err != nil {
		return err
	}
	samples, err := SampleRows(r, ds)
	if err != nil {
		return err
	}

	err = t.TimescaleDBConn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("could not store run: %w", err)
		}
		if len(samples) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&samples, batchSize).Error; err != nil {
			return fmt.Errorf("could not store samples: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	t.logger.Debugf("storage [timescaledb] stored run %s with %d samples", r.RunID, len(samples))
	return nil
}

// ClassCounts returns the number of stored samples per water mass for a run
func (t *Storage) ClassCounts(ctx context.Context, runID string) ([]ClassCount, error) {
	var counts []ClassCount
	if err := t.TimescaleDBConn.WithContext(ctx).Raw(classCountsSQL, types.Unclassified, runID).Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("error querying class counts: %w", err)
	}
	return counts, nil
}

// CheckHealth runs a trivial query against the database
func (t *Storage) CheckHealth(ctx context.Context) error {
	var one int
	if err := t.TimescaleDBConn.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		return fmt.Errorf("TimescaleDB health query failed: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool
func (t *Storage) Close() error {
	if t.TimescaleDBConn == nil {
		return nil
	}
	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
