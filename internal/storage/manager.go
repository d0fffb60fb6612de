package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chrissnell/oceandata/internal/log"
	"github.com/chrissnell/oceandata/internal/report"
	"github.com/chrissnell/oceandata/internal/storage/sqlite"
	"github.com/chrissnell/oceandata/internal/storage/timescaledb"
	"github.com/chrissnell/oceandata/internal/types"
	"github.com/chrissnell/oceandata/pkg/config"
)

// HealthChecker is implemented by sinks that can verify their connection
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Engine is one configured sink and its name
type Engine struct {
	Name string
	Sink Sink
}

// Manager fans results out to every configured sink
type Manager struct {
	Engines []Engine
	logger  *zap.SugaredLogger
}

// NewManager opens every sink named in the storage configuration.  A
// configuration without sinks yields a manager that stores nothing.
func NewManager(ctx context.Context, c config.StorageData, logger *zap.SugaredLogger) (*Manager, error) {
	m := &Manager{logger: log.OrNop(logger)}

	if c.SQLite != nil && c.SQLite.Path != "" {
		s, err := sqlite.New(ctx, c.SQLite.Path, m.logger.Named("sqlite"))
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("could not add SQLite storage backend: %w", err)
		}
		m.AddEngine("sqlite", s)
	}

	if c.TimescaleDB != nil && c.TimescaleDB.ConnectionString != "" {
		t, err := timescaledb.New(ctx, c.TimescaleDB.ConnectionString, m.logger.Named("timescaledb"))
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("could not add TimescaleDB storage backend: %w", err)
		}
		m.AddEngine("timescaledb", t)
	}

	return m, nil
}

// AddEngine adds a sink under name
func (m *Manager) AddEngine(name string, s Sink) {
	m.Engines = append(m.Engines, Engine{Name: name, Sink: s})
}

// Store writes the result to every sink.  A failing sink does not prevent
// the others from storing; all failures are returned together.
func (m *Manager) Store(ctx context.Context, r *report.Report, ds *types.Dataset) error {
	var errs []error
	for _, e := range m.Engines {
		if err := e.Sink.Store(ctx, r, ds); err != nil {
			m.logger.Errorf("storage [%s] could not store %s: %v", e.Name, r.Source, err)
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
		}
	}
	return errors.Join(errs...)
}

// CheckHealth checks every sink that supports it
func (m *Manager) CheckHealth(ctx context.Context) error {
	var errs []error
	for _, e := range m.Engines {
		hc, ok := e.Sink.(HealthChecker)
		if !ok {
			continue
		}
		if err := hc.CheckHealth(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
		} else {
			m.logger.Debugf("storage [%s] healthy", e.Name)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m *Manager) Close() error {
	var errs []error
	for _, e := range m.Engines {
		if err := e.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
		}
	}
	m.Engines = nil
	return errors.Join(errs...)
}
