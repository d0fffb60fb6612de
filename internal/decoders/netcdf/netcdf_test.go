package netcdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chrissnell/oceandata/internal/types"
)

func attrs(t *testing.T, kv ...any) api.AttributeMap {
	t.Helper()
	keys := make([]string, 0, len(kv)/2)
	values := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k := kv[i].(string)
		keys = append(keys, k)
		values[k] = kv[i+1]
	}
	m, err := util.NewOrderedMap(keys, values)
	require.NoError(t, err)
	return m
}

func writeSeries(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mooring.nc")
	w, err := netcdf.OpenWriter(path, netcdf.KindCDF)
	require.NoError(t, err)

	require.NoError(t, w.AddAttributes(attrs(t, "title", "mooring test", "station", "M1")))
	require.NoError(t, w.AddVar("time", api.Variable{
		Values:     []float64{18273.5, 18273.75, 18274},
		Dimensions: []string{"obs"},
		Attributes: attrs(t, "units", "days since 1970-01-01 00:00:00", "standard_name", "time"),
	}))
	require.NoError(t, w.AddVar("TEMP", api.Variable{
		Values:     []float32{-1.5, -999, 0.25},
		Dimensions: []string{"obs"},
		Attributes: attrs(t, "units", "degree_Celsius", "standard_name", "sea_water_temperature",
			"long_name", "Sea temperature", "missing_value", float32(-999)),
	}))
	require.NoError(t, w.AddVar("PSAL", api.Variable{
		Values:     []int16{4100, 4200, 4250},
		Dimensions: []string{"obs"},
		Attributes: attrs(t, "units", "1", "scale_factor", 0.001, "add_offset", 30.0),
	}))
	require.NoError(t, w.AddVar("PRES", api.Variable{
		Values:     []float32{5, 10, 15},
		Dimensions: []string{"obs"},
		Attributes: attrs(t, "units", "dbar", "axis", "Z"),
	}))
	require.NoError(t, w.AddVar("instrument_depth", api.Variable{
		Values:     float32(120),
		Attributes: attrs(t, "units", "m"),
	}))
	require.NoError(t, w.Close())
	return path
}

func TestDecodeSeriesFile(t *testing.T) {
	path := writeSeries(t)
	d := New(zaptest.NewLogger(t).Sugar())

	records, warnings, err := d.DecodeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, records, 3)

	rec := records[0]
	assert.Equal(t, "M1", rec.StationID)
	assert.Equal(t, "mooring-0", rec.CastID)

	// coordinates come first
	names := make([]string, len(rec.Variables))
	for i, v := range rec.Variables {
		names[i] = v.Name
	}
	assert.Equal(t, []string{"time", "PRES", "TEMP", "PSAL", "instrument_depth"}, names)
	assert.Equal(t, "degree_Celsius", rec.Variables[2].Unit)
	assert.Equal(t, []string{"sea_water_temperature", "Sea temperature"}, rec.Variables[2].Aliases)

	assert.Equal(t, "2020-01-12T12:00:00Z", rec.Values["time"].Str)
	assert.Equal(t, "2020-01-12T18:00:00Z", records[1].Values["time"].Str)

	sal, _ := rec.Values["PSAL"].Float()
	assert.InDelta(t, 34.1, sal, 1e-9)

	_, ok := records[1].Values["TEMP"]
	assert.False(t, ok, "missing_value must decode as missing")

	depth, _ := records[2].Values["instrument_depth"].Float()
	assert.Equal(t, 120.0, depth)
}

func TestDecodeUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.nc")
	require.NoError(t, os.WriteFile(path, []byte("CDF\x01 not really"), 0o644))

	d := New(zaptest.NewLogger(t).Sugar())
	_, _, err := d.DecodeFile(context.Background(), path)
	var mie *types.MalformedInputError
	require.True(t, errors.As(err, &mie), "expected MalformedInputError, got %v", err)
	assert.Equal(t, path, mie.Source)
}

type fakeGroup struct {
	attrs  api.AttributeMap
	order  []string
	vars   map[string]*api.Variable
	dims   []string
	closed bool
}

func (g *fakeGroup) Attributes() api.AttributeMap { return g.attrs }
func (g *fakeGroup) ListVariables() []string      { return g.order }
func (g *fakeGroup) ListDimensions() []string     { return g.dims }
func (g *fakeGroup) Close()                       { g.closed = true }

func (g *fakeGroup) GetVariable(name string) (*api.Variable, error) {
	v, ok := g.vars[name]
	if !ok {
		return nil, fmt.Errorf("no variable %s", name)
	}
	return v, nil
}

func TestDecodeProfileCollection(t *testing.T) {
	g := &fakeGroup{
		attrs: attrs(t, "institution", "test"),
		order: []string{"temp", "platform_code", "pres"},
		dims:  []string{"profile", "level"},
		vars: map[string]*api.Variable{
			"platform_code": {
				Values:     []string{"A\x00\x00", "B\x00\x00"},
				Dimensions: []string{"profile", "strlen"},
				Attributes: attrs(t),
			},
			"pres": {
				Values:     []float32{1, 2, 3},
				Dimensions: []string{"level"},
				Attributes: attrs(t, "units", "decibar", "standard_name", "sea_water_pressure"),
			},
			"temp": {
				Values:     [][]float32{{1, 2, 3}, {4, 5, 99999}},
				Dimensions: []string{"profile", "level"},
				Attributes: attrs(t, "units", "degC", "_FillValue", float32(99999)),
			},
		},
	}

	d := New(zaptest.NewLogger(t).Sugar())
	d.open = func(string) (Group, error) { return g, nil }

	records, warnings, err := d.DecodeFile(context.Background(), "/argo/argo.nc")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.True(t, g.closed)
	require.Len(t, records, 5)

	want := []struct {
		station, cast string
		pres, temp    float64
	}{
		{"A", "argo-0", 1, 1},
		{"A", "argo-0", 2, 2},
		{"A", "argo-0", 3, 3},
		{"B", "argo-1", 1, 4},
		{"B", "argo-1", 2, 5},
	}
	for i, w := range want {
		rec := records[i]
		assert.Equal(t, i, rec.Index)
		assert.Equal(t, w.station, rec.StationID, "record %d", i)
		assert.Equal(t, w.cast, rec.CastID, "record %d", i)
		p, _ := rec.Values["pres"].Float()
		tc, _ := rec.Values["temp"].Float()
		assert.Equal(t, w.pres, p)
		assert.Equal(t, w.temp, tc)
	}
	assert.Equal(t, "platform_code", records[0].Variables[0].Name)
	assert.True(t, records[0].Variables[0].Text)
}

func TestParseEpochUnits(t *testing.T) {
	tests := []struct {
		units  string
		epoch  time.Time
		perDay float64
		ok     bool
	}{
		{"days since 1950-01-01 00:00:00", time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC), 1, true},
		{"seconds since 1970-01-01T00:00:00Z", time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), 86400, true},
		{"hours since 2000-1-1", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), 24, true},
		{"minutes since 2010-06-01 12:30 UTC", time.Date(2010, 6, 1, 12, 30, 0, 0, time.UTC), 1440, true},
		{"dbar", time.Time{}, 0, false},
		{"fortnights since 2000-01-01", time.Time{}, 0, false},
	}
	for _, tt := range tests {
		epoch, perDay, ok := ParseEpochUnits(tt.units)
		assert.Equal(t, tt.ok, ok, tt.units)
		if ok {
			assert.True(t, tt.epoch.Equal(epoch), "%s: got %v", tt.units, epoch)
			assert.Equal(t, tt.perDay, perDay, tt.units)
		}
	}
}

func TestEpochTime(t *testing.T) {
	epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	got := EpochTime(epoch, 86400, 1578830400)
	assert.Equal(t, time.Date(2020, 1, 12, 12, 0, 0, 0, time.UTC), got)
}
