package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/chrissnell/oceandata/internal/report"
	"github.com/chrissnell/oceandata/internal/types"
	"github.com/chrissnell/oceandata/pkg/config"
)

type fakeSink struct {
	stored []string
	err    error
	closed bool
}

func (f *fakeSink) Store(_ context.Context, r *report.Report, _ *types.Dataset) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, r.Source)
	return nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

type unhealthySink struct {
	fakeSink
}

func (u *unhealthySink) CheckHealth(context.Context) error {
	return errors.New("connection refused")
}

func TestManagerFansOut(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	m, err := NewManager(context.Background(), config.StorageData{}, zap.New(core).Sugar())
	require.NoError(t, err)
	assert.Empty(t, m.Engines)

	good := &fakeSink{}
	bad := &fakeSink{err: errors.New("disk full")}
	m.AddEngine("good", good)
	m.AddEngine("bad", bad)

	ds := &types.Dataset{Source: "cast.cnv"}
	err = m.Store(context.Background(), report.Build(ds, nil), ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: disk full")
	assert.Equal(t, []string{"cast.cnv"}, good.stored)
	assert.Equal(t, 1, logs.FilterMessageSnippet("storage [bad]").Len())

	require.NoError(t, m.Close())
	assert.True(t, good.closed)
	assert.True(t, bad.closed)
}

func TestManagerHealth(t *testing.T) {
	m, err := NewManager(context.Background(), config.StorageData{}, nil)
	require.NoError(t, err)
	m.AddEngine("plain", &fakeSink{})
	require.NoError(t, m.CheckHealth(context.Background()))

	m.AddEngine("remote", &unhealthySink{})
	err = m.CheckHealth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote: connection refused")
}

func TestManagerOpensSQLite(t *testing.T) {
	ctx := context.Background()
	c := config.StorageData{SQLite: &config.SQLiteData{Path: filepath.Join(t.TempDir(), "results.db")}}
	m, err := NewManager(ctx, c, nil)
	require.NoError(t, err)
	defer m.Close()

	require.Len(t, m.Engines, 1)
	assert.Equal(t, "sqlite", m.Engines[0].Name)
	require.NoError(t, m.CheckHealth(ctx))

	ds := &types.Dataset{Source: "cast.cnv", Samples: []types.CanonicalSample{types.NewSample(0, "S", "1")}}
	assert.NoError(t, m.Store(ctx, report.Build(ds, nil), ds))
}
