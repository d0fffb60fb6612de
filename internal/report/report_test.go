package report

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/oceandata/internal/seawater"
	"github.com/chrissnell/oceandata/internal/types"
)

func dataset() *types.Dataset {
	mk := func(t, s float64, flag types.QualityFlag, class string) types.CanonicalSample {
		out := types.NewSample(0, "ST1", "1")
		out.TemperatureC, out.SalinityPSU = t, s
		out.QualityFlag = flag
		out.WaterMass = class
		return out
	}
	ds := &types.Dataset{Source: "gs1.cnv", Format: "cnv", Samples: []types.CanonicalSample{
		mk(-1.8, 34.5, types.FlagGood, "HSSW"),
		mk(-1.6, 34.6, types.FlagInterpolated, "HSSW"),
		mk(0.5, math.NaN(), types.FlagSuspect, ""),
		mk(45, 34.4, types.FlagBad, ""),
	}}
	ds.Samples[0].Nutrients = map[string]float64{"nitrate": 30}
	return ds
}

func TestBuild(t *testing.T) {
	r := Build(dataset(), []string{"physical range: 1 samples flagged BAD"})

	_, err := uuid.Parse(r.RunID)
	require.NoError(t, err)
	assert.Equal(t, "gs1.cnv", r.Source)
	assert.Equal(t, "cnv", r.Format)
	assert.Equal(t, 4, r.Samples)
	assert.Equal(t, map[string]int{"GOOD": 1, "INTERPOLATED": 1, "SUSPECT": 1, "BAD": 1}, r.FlagCounts)
	assert.Equal(t, map[string]int{"HSSW": 2, types.Unclassified: 2}, r.ClassCounts)
	assert.Equal(t, []string{"physical range: 1 samples flagged BAD"}, r.Warnings)
}

func TestSummariesSkipBadSamples(t *testing.T) {
	sums := Summaries(dataset().Samples)

	temp := sums[types.VarTemperature]
	assert.Equal(t, 3, temp.Count)
	assert.Equal(t, -1.8, temp.Min)
	assert.Equal(t, 0.5, temp.Max, "the BAD 45 degree sample is excluded")
	assert.InDelta(t, (-1.8-1.6+0.5)/3, temp.Mean, 1e-12)
	assert.Greater(t, temp.StdDev, 0.0)

	sal := sums[types.VarSalinity]
	assert.Equal(t, 2, sal.Count)

	nitrate := sums[types.NutrientPrefix+"nitrate"]
	assert.Equal(t, Summary{Count: 1, Min: 30, Max: 30, Mean: 30}, nitrate)

	_, ok := sums[types.VarOxygen]
	assert.False(t, ok)
}

func TestFail(t *testing.T) {
	r := New("broken.odv")
	r.Fail(errors.New("malformed input"))
	r.Finish()
	assert.Equal(t, "malformed input", r.Error)
	assert.GreaterOrEqual(t, int64(r.Duration), int64(0))
}

func TestClassStats(t *testing.T) {
	ds := dataset()
	ds.Samples[0].DepthM = 400
	ds.Samples[1].DepthM = 650

	r := Build(ds, nil)
	require.Len(t, r.ClassStats, 1)

	hssw := r.ClassStats["HSSW"]
	assert.Equal(t, 2, hssw.Count)
	assert.InDelta(t, 0.5, hssw.Fraction, 1e-12)
	assert.InDelta(t, -1.7, hssw.MeanTemperature, 1e-12)
	assert.InDelta(t, 34.55, hssw.MeanSalinity, 1e-12)
	wantSigma := (seawater.SigmaT(34.5, -1.8) + seawater.SigmaT(34.6, -1.6)) / 2
	assert.InDelta(t, wantSigma, hssw.MeanSigmaT, 1e-9)
	assert.Greater(t, hssw.MeanSigmaT, 27.0)
	require.NotNil(t, hssw.MinDepth)
	require.NotNil(t, hssw.MaxDepth)
	assert.Equal(t, 400.0, *hssw.MinDepth)
	assert.Equal(t, 650.0, *hssw.MaxDepth)
}

func TestClassStatsWithoutDepthOrClasses(t *testing.T) {
	stats := Classes(dataset().Samples)
	assert.Nil(t, stats["HSSW"].MinDepth)
	assert.Nil(t, stats["HSSW"].MaxDepth)

	ds := dataset()
	for i := range ds.Samples {
		ds.Samples[i].WaterMass = ""
	}
	assert.Nil(t, Classes(ds.Samples))
}
