package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
workers: 2
normalizer:
  primary_variables:
    temperature_c: t090C
qc:
  max_gap: 3
  outlier_zscore: 3
classifier:
  strategy: range-rule
  classes:
    - name: HSSW
      description: High Salinity Shelf Water
      temperature: {min: -2.0, max: 0.0}
      salinity: {min: 34.5, max: 34.9}
      oxygen: {min: 180, max: 350}
    - name: AASW
      temperature: {min: -1.5, max: 1.5}
      salinity: {min: 33.6, max: 34.5}
storage:
  sqlite:
    path: /tmp/results.db
output:
  format: msgpack
`

func TestParseYAMLKeepsDefaults(t *testing.T) {
	cfg, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "t090C", cfg.Normalizer.PrimaryVariables["temperature_c"])
	assert.Equal(t, 45.0, cfg.Normalizer.DefaultLatitude)

	// unset QC bounds keep their defaults
	assert.Equal(t, -2.0, cfg.QC.TemperatureMin)
	assert.Equal(t, 40.0, cfg.QC.TemperatureMax)
	assert.Equal(t, 42.0, cfg.QC.SalinityMax)
	assert.Equal(t, 3, cfg.QC.MaxGap)
	assert.Equal(t, 3.0, cfg.QC.OutlierZScore)

	require.Len(t, cfg.Classifier.Classes, 2)
	hssw := cfg.Classifier.Classes[0]
	assert.Equal(t, "HSSW", hssw.Name)
	assert.Equal(t, RangeData{Min: -2, Max: 0}, hssw.Temperature)
	require.NotNil(t, hssw.Oxygen)
	assert.Equal(t, 180.0, hssw.Oxygen.Min)
	assert.Nil(t, cfg.Classifier.Classes[1].Oxygen)

	require.NotNil(t, cfg.Storage.SQLite)
	assert.Equal(t, "/tmp/results.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, FormatMsgPack, cfg.Output.Format)
	assert.NoError(t, cfg.Validate())
}

func TestParseYAMLZeroGapIsHonoured(t *testing.T) {
	cfg, err := ParseYAML([]byte("qc:\n  max_gap: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.QC.MaxGap)
}

func TestParseYAMLDensityBounds(t *testing.T) {
	cfg, err := ParseYAML([]byte("qc:\n  min_density: 1020\n  max_density: 1030\n"))
	require.NoError(t, err)
	assert.True(t, cfg.QC.DensityCheck())
	assert.Equal(t, 1020.0, cfg.QC.MinDensity)
	assert.Equal(t, 1030.0, cfg.QC.MaxDensity)
	assert.NoError(t, cfg.Validate())

	assert.False(t, Default().QC.DensityCheck())
}

func TestParseYAMLRejectsUnknownKeys(t *testing.T) {
	_, err := ParseYAML([]byte("qc:\n  max_gapp: 2\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ConfigData)
	}{
		{"negative workers", func(c *ConfigData) { c.Workers = -1 }},
		{"empty temperature range", func(c *ConfigData) { c.QC.TemperatureMin = 50 }},
		{"negative gap", func(c *ConfigData) { c.QC.MaxGap = -1 }},
		{"density bound alone", func(c *ConfigData) { c.QC.MinDensity = 1020 }},
		{"inverted density range", func(c *ConfigData) { c.QC.MinDensity, c.QC.MaxDensity = 1030, 1020 }},
		{"unknown strategy", func(c *ConfigData) { c.Classifier.Strategy = "dbscan" }},
		{"unknown metric", func(c *ConfigData) { c.Classifier.Metric = "manhattan" }},
		{"unknown format", func(c *ConfigData) { c.Output.Format = "xml" }},
	}

	base := Default()
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestYAMLProviderLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oceandata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	p := NewYAMLProvider(path)
	defer p.Close()
	cfg, err := p.LoadConfig()
	require.NoError(t, err)
	assert.True(t, p.IsReadOnly())
	assert.Equal(t, 2, cfg.Workers)

	_, err = NewYAMLProvider(filepath.Join(t.TempDir(), "missing.yaml")).LoadConfig()
	assert.Error(t, err)
}

func TestMarshalClassifierYAMLRoundTrip(t *testing.T) {
	in := ClassifierData{
		Strategy: StrategyNearestCentroid,
		Metric:   MetricStandardized,
		Classes: []ClassData{
			{Name: "mCDW", Temperature: RangeData{Min: 0, Max: 2}, Salinity: RangeData{Min: 34.3, Max: 34.75},
				Centroid: &CentroidData{Temperature: 1.2, Salinity: 34.6}},
		},
		Scale: &ScaleData{TemperatureMean: 0.5, TemperatureStd: 0.8, SalinityMean: 34.2, SalinityStd: 0.3},
	}
	data, err := MarshalClassifierYAML(in)
	require.NoError(t, err)

	cfg, err := ParseYAML(data)
	require.NoError(t, err)
	assert.Equal(t, in.Strategy, cfg.Classifier.Strategy)
	assert.Equal(t, in.Classes, cfg.Classifier.Classes)
	assert.Equal(t, in.Scale, cfg.Classifier.Scale)
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := NewYAMLProvider(filepath.Join("..", "..", "config.example.yaml")).LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	names := make([]string, len(cfg.Classifier.Classes))
	for i, c := range cfg.Classifier.Classes {
		names[i] = c.Name
		assert.NotNil(t, c.Oxygen, c.Name)
	}
	assert.Equal(t, []string{"GMW", "mCDW", "HSSW", "AASW"}, names)
	require.NotNil(t, cfg.Storage.SQLite)
	assert.Nil(t, cfg.Storage.TimescaleDB)
	assert.Equal(t, FormatJSON, cfg.Output.Format)
}
