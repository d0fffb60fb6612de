package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chrissnell/oceandata/pkg/config"
)

const castCSV = `station,pressure [dbar],temperature [degC],salinity [PSU]
A1,5,-1.8,34.5
A1,10,15,34.5
`

func testConfig(t *testing.T) *config.ConfigData {
	cfg, err := config.ParseYAML([]byte(`
workers: 2
classifier:
  strategy: range-rule
  classes:
    - name: HSSW
      temperature: {min: -2, max: 0}
      salinity: {min: 34, max: 35}
storage:
  sqlite:
    path: ` + filepath.Join(t.TempDir(), "results.db") + `
`))
	require.NoError(t, err)
	return cfg
}

func TestRunWritesOutputPerFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "cast.csv")
	require.NoError(t, os.WriteFile(in, []byte(castCSV), 0o644))
	missing := filepath.Join(dir, "missing.cnv")
	out := filepath.Join(dir, "out")

	failed, err := run(context.Background(), testConfig(t), options{outDir: out, store: true},
		[]string{in, missing}, nil, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	b, err := os.ReadFile(filepath.Join(out, "cast.json"))
	require.NoError(t, err)
	var doc struct {
		Report struct {
			ClassCounts map[string]int `json:"class_counts"`
		} `json:"report"`
		Samples []map[string]any `json:"samples"`
	}
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Len(t, doc.Samples, 2)
	assert.Equal(t, 1, doc.Report.ClassCounts["HSSW"])

	_, err = os.Stat(filepath.Join(out, "missing.json"))
	assert.NoError(t, err, "failed files still get a report")
}

func TestRunCSVToStdout(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "cast.csv")
	require.NoError(t, os.WriteFile(in, []byte(castCSV), 0o644))

	var stdout bytes.Buffer
	failed, err := run(context.Background(), testConfig(t), options{format: config.FormatCSV},
		[]string{in}, &stdout, nil)
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Contains(t, stdout.String(), "temperature_c [degC]")
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.Default().Workers, cfg.Workers)

	_, err = loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestOutputNamesDoNotCollide(t *testing.T) {
	names := outputNames([]string{"a/x.cnv", "b/x.cnv", "c/y.odv", "x.csv"}, ".json")
	assert.Equal(t, []string{"x-1.json", "x-2.json", "y.json", "x-4.json"}, names)
}

func TestRunSameBaseNameInTwoDirectories(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, sub := range []string{"a", "b"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0o755))
		p := filepath.Join(dir, sub, "cast.csv")
		require.NoError(t, os.WriteFile(p, []byte(castCSV), 0o644))
		paths = append(paths, p)
	}
	out := filepath.Join(dir, "out")

	failed, err := run(context.Background(), testConfig(t), options{outDir: out}, paths, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, failed)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	assert.ElementsMatch(t, []string{"cast-1.json", "cast-2.json"}, got)
}
