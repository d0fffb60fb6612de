package formats

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/oceandata/internal/types"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		sniff    string
		expected Format
	}{
		{"odv extension", "cruise.odv", "", ODV},
		{"netcdf extension", "argo.nc", "", NetCDF},
		{"cnv extension", "gs18.CNV", "", CNV},
		{"odv spreadsheet as txt", "export.txt", "//ODV Spreadsheet\n//NumberOfVariables = 3\n", ODV},
		{"odv declaration without comment prefix", "export.txt", "NumberOfMetaVariables = 2\n", ODV},
		{"seabird cast as txt", "cast.txt", "* Sea-Bird SBE 9 Data File:\n# nquan = 3\n", CNV},
		{"cnv header fragment", "cast.csv", "# name 0 = prDM: Pressure, Digiquartz [db]\n", CNV},
		{"semicolon csv", "gerlache.csv", "Station;depth [m];temperature [ºC];salinity [PSU]\nGS1;5;0.5;34.0\n", Delimited},
		{"whitespace table", "profile.txt", "  PRES   TEMP   PSAL\n 1.0 0.1 34.1\n", Delimited},
		{"netcdf magic in txt", "data.txt", "CDF\x01\x00\x00\x00\x00", NetCDF},
		{"comment preamble", "bottle.csv", "# cruise PS117 bottle data\n#\npressure,temperature,salinity\n5,-1.2,34.1\n", Delimited},
		{"whitespace header with units", "cast.txt", "pressure [dbar]  temperature [degC]  salinity [PSU]\n5 -1.2 34.1\n", Delimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.path, []byte(tt.sniff))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDetectUnsupported(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		sniff string
	}{
		{"unknown extension", "notes.docx", ""},
		{"no extension", "README", ""},
		{"csv without ctd columns", "ledger.csv", "date,amount,payee\n2024-01-01,10,shop\n"},
		{"single column txt", "list.txt", "pressure\n1\n2\n"},
		{"empty txt", "empty.txt", "   \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Detect(tt.path, []byte(tt.sniff))
			var ufe *types.UnsupportedFormatError
			require.True(t, errors.As(err, &ufe), "expected UnsupportedFormatError, got %v", err)
			assert.Equal(t, tt.path, ufe.Path)
		})
	}
}

func TestDetectFileReadsBoundedPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.csv")

	content := []byte("pressure,temperature,salinity\n")
	for len(content) < 3*SniffBytes {
		content = append(content, []byte("10.0,1.5,34.2\n")...)
	}
	require.NoError(t, os.WriteFile(path, content, 0o644))

	got, err := DetectFile(path)
	require.NoError(t, err)
	assert.Equal(t, Delimited, got)

	// extension-only formats do not need the file to exist
	got, err = DetectFile(filepath.Join(dir, "missing.cnv"))
	require.NoError(t, err)
	assert.Equal(t, CNV, got)
}

func TestSplitNameUnit(t *testing.T) {
	tests := []struct {
		in         string
		name, unit string
	}{
		{"temperature [ºC]", "temperature", "ºC"},
		{"salinity (PSU)", "salinity", "PSU"},
		{"O2[umol/kg]", "O2", "umol/kg"},
		{"Station", "Station", ""},
		{"[weird]", "[weird]", ""},
	}
	for _, tt := range tests {
		name, unit := SplitNameUnit(tt.in)
		assert.Equal(t, tt.name, name, tt.in)
		assert.Equal(t, tt.unit, unit, tt.in)
	}
}

func TestDelimiter(t *testing.T) {
	assert.Equal(t, '\t', Delimiter("a\tb\tc"))
	assert.Equal(t, ';', Delimiter("a;b;c"))
	assert.Equal(t, ',', Delimiter("a,b,c"))
	assert.Equal(t, rune(0), Delimiter("a b c"))
	assert.Equal(t, []string{"1.0", "2.0", "3.0"}, SplitLine("  1.0   2.0 3.0 ", 0))
}

func TestSplitHeader(t *testing.T) {
	tests := []struct {
		line     string
		expected []string
	}{
		{"pressure [dbar]  temperature [degC]  salinity [PSU]", []string{"pressure [dbar]", "temperature [degC]", "salinity [PSU]"}},
		{"PRES TEMP(ITS-90) sal (PSU)", []string{"PRES", "TEMP(ITS-90)", "sal (PSU)"}},
		{"  depth [m]\ttemp", []string{"depth [m]", "temp"}},
		{"a;b [m];c", []string{"a", "b [m]", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitHeader(tt.line))
		})
	}
}
