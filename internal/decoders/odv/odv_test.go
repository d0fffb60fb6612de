package odv

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chrissnell/oceandata/internal/types"
)

const spreadsheet = `//<Creator>ctd-export</Creator>
//NumberOfMetaVariables = 2
//NumberOfVariables = 3
//[Meta Variables]
//1 = Station;;TEXT;20;0
//2 = Cruise;;TEXT;20;0
//[Variables]
//1 = Pressure;dbar;FLOAT;8;1
//2 = Temperature;degC;FLOAT;8;3
//3 = Salinity;PSU;FLOAT;8;3
Station	Cruise	Pressure [dbar]	Temperature [degC]	Salinity [PSU]
GS1	PS117	5	-1.2	34.1
		10	-1.5	34.3
GS2	PS117	5	0.4	-1e10
`

func decode(t *testing.T, input string) ([]types.RawRecord, []string, error) {
	t.Helper()
	d := New(zaptest.NewLogger(t).Sugar())
	return d.Decode(context.Background(), strings.NewReader(input), "cruise.odv")
}

func TestDecodeSpreadsheet(t *testing.T) {
	records, warnings, err := decode(t, spreadsheet)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "GS1", first.StationID)
	assert.Equal(t, "GS1_PS117", first.CastID)
	assert.Equal(t, 12, first.Line)
	assert.Equal(t, []types.Variable{
		{Name: "Station", Text: true},
		{Name: "Cruise", Text: true},
		{Name: "Pressure", Unit: "dbar"},
		{Name: "Temperature", Unit: "degC"},
		{Name: "Salinity", Unit: "PSU"},
	}, first.Variables)
	assert.Equal(t, types.Number(-1.2), first.Values["Temperature"])

	// empty metadata continues the previous row's station
	assert.Equal(t, "GS1", records[1].StationID)
	assert.Equal(t, "GS1_PS117", records[1].CastID)

	// ODV missing value
	_, ok := records[2].Values["Salinity"]
	assert.False(t, ok)
	assert.Equal(t, "GS2", records[2].StationID)
}

func TestColumnOrderDoesNotChangeRecords(t *testing.T) {
	reordered := `NumberOfMetaVariables = 1
NumberOfVariables = 2
[Meta Variables]
1 = Station;;TEXT
[Variables]
1 = Salinity;PSU;FLOAT
2 = Pressure;dbar;FLOAT
GS1;34.1;5
GS1;34.3;10
`
	original := `NumberOfMetaVariables = 1
NumberOfVariables = 2
[Meta Variables]
1 = Station;;TEXT
[Variables]
1 = Pressure;dbar;FLOAT
2 = Salinity;PSU;FLOAT
GS1;5;34.1
GS1;10;34.3
`
	a, _, err := decode(t, original)
	require.NoError(t, err)
	b, _, err := decode(t, reordered)
	require.NoError(t, err)
	require.Len(t, b, len(a))

	for i := range a {
		assert.Equal(t, a[i].Values, b[i].Values)
		assert.Equal(t, a[i].StationID, b[i].StationID)
		assert.Equal(t, a[i].CastID, b[i].CastID)
	}
	assert.Equal(t, "1", a[0].CastID)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{
			name: "row field count",
			input: `NumberOfMetaVariables = 1
NumberOfVariables = 2
[Meta Variables]
1 = Station;;TEXT
[Variables]
1 = Pressure;dbar;FLOAT
2 = Salinity;PSU;FLOAT
GS1;5;34.1
GS1;10
`,
			line: 9,
		},
		{
			name: "missing variable entry",
			input: `NumberOfMetaVariables = 1
NumberOfVariables = 2
[Meta Variables]
1 = Station;;TEXT
[Variables]
1 = Pressure;dbar;FLOAT
GS1;5;34.1
`,
			line: 7,
		},
		{
			name:  "no declaration",
			input: "GS1;5;34.1\n",
			line:  1,
		},
		{
			name: "bad count",
			input: `NumberOfVariables = many
`,
			line: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, _, err := decode(t, tt.input)
			assert.Nil(t, records)
			var mie *types.MalformedInputError
			require.True(t, errors.As(err, &mie), "expected MalformedInputError, got %v", err)
			assert.Equal(t, tt.line, mie.Line)
			assert.Equal(t, "cruise.odv", mie.Source)
		})
	}
}

func TestUnparseableValueSkipsRow(t *testing.T) {
	input := `NumberOfMetaVariables = 1
NumberOfVariables = 1
[Meta Variables]
1 = Station;;TEXT
[Variables]
1 = Pressure;dbar;FLOAT
GS1;5
GS1;five
GS1;15
`
	records, warnings, err := decode(t, input)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Len(t, warnings, 1)
	assert.True(t, strings.HasPrefix(warnings[0], "line 8:"), warnings[0])
	assert.Equal(t, 1, records[1].Index)
}

func TestRepeatedQualityColumnsAreKept(t *testing.T) {
	input := `//NumberOfMetaVariables = 1
//NumberOfVariables = 4
//[Meta Variables]
//1 = Station;;TEXT
//[Variables]
//1 = Pressure;dbar;FLOAT
//2 = QV:SEADATANET;;INTEGER
//3 = Temperature;degC;FLOAT
//4 = QV:SEADATANET;;INTEGER
Station	Pressure [dbar]	QV:SEADATANET	Temperature [degC]	QV:SEADATANET
S1	5	1	-1.2	4
`
	records, warnings, err := decode(t, input)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, records, 1)

	rec := records[0]
	require.Len(t, rec.Variables, 5)
	assert.Equal(t, "QV:SEADATANET", rec.Variables[2].Name)
	assert.Equal(t, "QV:SEADATANET#2", rec.Variables[4].Name)
	assert.Len(t, rec.Values, 5)
	assert.Equal(t, types.Number(1), rec.Values["QV:SEADATANET"])
	assert.Equal(t, types.Number(4), rec.Values["QV:SEADATANET#2"])
	assert.Equal(t, types.Number(-1.2), rec.Values["Temperature"])
}
