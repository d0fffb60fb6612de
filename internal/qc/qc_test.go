package qc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chrissnell/oceandata/internal/seawater"
	"github.com/chrissnell/oceandata/internal/types"
	"github.com/chrissnell/oceandata/pkg/config"
)

var nan = math.NaN()

func profile(cast string, pressures, temps []float64) []types.CanonicalSample {
	out := make([]types.CanonicalSample, len(pressures))
	for i := range pressures {
		s := types.NewSample(i, "ST1", cast)
		s.PressureDbar = pressures[i]
		if types.Present(s.PressureDbar) {
			s.DepthM = seawater.Depth(s.PressureDbar, 45)
			s.DepthDerived = true
		}
		if temps != nil {
			s.TemperatureC = temps[i]
		}
		s.SalinityPSU = 34.5
		out[i] = s
	}
	return out
}

func flags(samples []types.CanonicalSample) []types.QualityFlag {
	out := make([]types.QualityFlag, len(samples))
	for i, s := range samples {
		out[i] = s.QualityFlag
	}
	return out
}

func newController(t *testing.T, mutate func(*config.QCData)) *Controller {
	cfg := config.Default().QC
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, zaptest.NewLogger(t).Sugar(), WithDefaultLatitude(45))
}

func TestPhysicalRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.CanonicalSample)
		want   types.QualityFlag
	}{
		{"in range", func(s *types.CanonicalSample) { s.TemperatureC = 1.5 }, types.FlagGood},
		{"lower temperature bound is inclusive", func(s *types.CanonicalSample) { s.TemperatureC = -2 }, types.FlagGood},
		{"too warm", func(s *types.CanonicalSample) { s.TemperatureC = 40.5 }, types.FlagBad},
		{"too cold", func(s *types.CanonicalSample) { s.TemperatureC = -2.5 }, types.FlagBad},
		{"negative salinity", func(s *types.CanonicalSample) { s.SalinityPSU = -0.1 }, types.FlagBad},
		{"salinity over 42", func(s *types.CanonicalSample) { s.SalinityPSU = 43 }, types.FlagBad},
		{"negative pressure", func(s *types.CanonicalSample) { s.PressureDbar = -1 }, types.FlagBad},
		{"negative depth", func(s *types.CanonicalSample) { s.DepthM = -3 }, types.FlagBad},
		{"missing temperature is not bad", func(s *types.CanonicalSample) { s.TemperatureC = nan }, types.FlagGood},
	}

	c := newController(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := types.NewSample(0, "ST1", "1")
			s.TemperatureC, s.SalinityPSU, s.PressureDbar, s.DepthM = 1, 34.5, 10, 9.9
			tt.mutate(&s)
			out, _ := c.Validate([]types.CanonicalSample{s})
			assert.Equal(t, tt.want, out[0].QualityFlag)
		})
	}
}

func TestPressureGapFilled(t *testing.T) {
	in := profile("1", []float64{10, 20, nan, 40, 50}, nil)

	out, warnings := newController(t, func(cfg *config.QCData) { cfg.MaxGap = 1 }).Validate(in)
	require.Len(t, out, 5)
	assert.InDelta(t, 30, out[2].PressureDbar, 1e-12)
	assert.Equal(t, types.FlagInterpolated, out[2].QualityFlag)
	assert.True(t, out[2].DepthDerived)
	assert.InDelta(t, seawater.Depth(30, 45), out[2].DepthM, 1e-12)
	assert.Contains(t, warnings, "gap interpolation: 1 pressure_dbar values filled")

	// the input is left alone
	assert.True(t, math.IsNaN(in[2].PressureDbar))
	assert.Equal(t, types.FlagGood, in[2].QualityFlag)
}

func TestGapFillDisabledOrTooLong(t *testing.T) {
	t.Run("k is zero", func(t *testing.T) {
		in := profile("1", []float64{10, 20, nan, 40, 50}, nil)
		out, _ := newController(t, func(cfg *config.QCData) { cfg.MaxGap = 0 }).Validate(in)
		assert.True(t, math.IsNaN(out[2].PressureDbar))
		assert.Equal(t, types.FlagGood, out[2].QualityFlag)
	})

	t.Run("gap longer than k", func(t *testing.T) {
		in := profile("1", []float64{10, nan, nan, 40}, nil)
		out, _ := newController(t, func(cfg *config.QCData) { cfg.MaxGap = 1 }).Validate(in)
		assert.True(t, math.IsNaN(out[1].PressureDbar))
		assert.True(t, math.IsNaN(out[2].PressureDbar))
	})

	t.Run("gap at cast edge", func(t *testing.T) {
		in := append(profile("1", []float64{10, nan}, nil), profile("2", []float64{30, 40}, nil)...)
		out, _ := newController(t, func(cfg *config.QCData) { cfg.MaxGap = 1 }).Validate(in)
		assert.True(t, math.IsNaN(out[1].PressureDbar), "bounds must come from the same cast")
	})
}

func TestTemperatureGapUsesPressureAbscissa(t *testing.T) {
	in := profile("1", []float64{0, 10, 40}, []float64{1, nan, 5})
	out, _ := newController(t, nil).Validate(in)
	assert.InDelta(t, 2, out[1].TemperatureC, 1e-12)
	assert.Equal(t, types.FlagInterpolated, out[1].QualityFlag)
}

func TestTemperatureGapFallsBackToIndex(t *testing.T) {
	in := profile("1", []float64{0, nan, nan, 40}, []float64{1, nan, 4, 7})
	out, _ := newController(t, func(cfg *config.QCData) { cfg.MaxGap = 2 }).Validate(in)
	// pressure is filled first and then serves as abscissa
	assert.InDelta(t, 40.0/3, out[1].PressureDbar, 1e-9)
	assert.InDelta(t, 2.5, out[1].TemperatureC, 1e-9)
}

func TestGapNextToBadSampleIsNotFilled(t *testing.T) {
	in := profile("1", []float64{1, 2, 3}, []float64{1, nan, 45})
	out, _ := newController(t, nil).Validate(in)
	assert.Equal(t, types.FlagBad, out[2].QualityFlag)
	assert.True(t, math.IsNaN(out[1].TemperatureC))
}

func TestPressureReversal(t *testing.T) {
	t.Run("reversal is suspect", func(t *testing.T) {
		in := profile("1", []float64{1, 2, 3, 2.5, 4}, nil)
		out, warnings := newController(t, nil).Validate(in)
		assert.Equal(t, []types.QualityFlag{types.FlagGood, types.FlagGood, types.FlagGood, types.FlagSuspect, types.FlagGood}, flags(out))
		assert.Contains(t, warnings, "pressure monotonicity: 1 samples flagged SUSPECT")
	})

	t.Run("within tolerance", func(t *testing.T) {
		in := profile("1", []float64{1, 2, 3, 2.5, 4}, nil)
		out, _ := newController(t, func(cfg *config.QCData) { cfg.PressureReversalTolerance = 1 }).Validate(in)
		assert.NotContains(t, flags(out), types.FlagSuspect)
	})

	t.Run("bad samples do not raise the running maximum", func(t *testing.T) {
		in := profile("1", []float64{1, 100, 2, 3}, nil)
		in[1].TemperatureC = 50
		out, _ := newController(t, nil).Validate(in)
		assert.Equal(t, []types.QualityFlag{types.FlagGood, types.FlagBad, types.FlagGood, types.FlagGood}, flags(out))
	})

	t.Run("casts are independent", func(t *testing.T) {
		in := append(profile("1", []float64{1, 500}, nil), profile("2", []float64{1, 2}, nil)...)
		out, _ := newController(t, nil).Validate(in)
		assert.NotContains(t, flags(out), types.FlagSuspect)
	})
}

func TestOutliers(t *testing.T) {
	pressures := make([]float64, 12)
	temps := make([]float64, 12)
	for i := range pressures {
		pressures[i] = float64(i + 1)
		temps[i] = 1
	}
	temps[6] = 10

	t.Run("disabled by default", func(t *testing.T) {
		out, _ := newController(t, nil).Validate(profile("1", pressures, temps))
		assert.NotContains(t, flags(out), types.FlagSuspect)
	})

	t.Run("z-score threshold", func(t *testing.T) {
		out, warnings := newController(t, func(cfg *config.QCData) { cfg.OutlierZScore = 3 }).Validate(profile("1", pressures, temps))
		for i, f := range flags(out) {
			if i == 6 {
				assert.Equal(t, types.FlagSuspect, f)
			} else {
				assert.Equal(t, types.FlagGood, f, "sample %d", i)
			}
		}
		assert.Contains(t, warnings, "outliers: 1 samples flagged SUSPECT")
	})

	t.Run("short casts are skipped", func(t *testing.T) {
		out, _ := newController(t, func(cfg *config.QCData) {
			cfg.OutlierZScore = 3
			cfg.MinOutlierSamples = 20
		}).Validate(profile("1", pressures, temps))
		assert.NotContains(t, flags(out), types.FlagSuspect)
	})
}

func TestDensityRange(t *testing.T) {
	temps := []float64{-1.5, 25, nan, 45}
	in := profile("1", []float64{1, 2, 3, 4}, temps)
	bounds := func(cfg *config.QCData) { cfg.MinDensity, cfg.MaxDensity = 1026, 1029 }

	t.Run("disabled by default", func(t *testing.T) {
		out, warnings := newController(t, nil).Validate(in)
		assert.Equal(t, []types.QualityFlag{types.FlagGood, types.FlagGood, types.FlagGood, types.FlagBad}, flags(out))
		assert.NotContains(t, warnings, "density: 1 samples flagged SUSPECT")
	})

	t.Run("outside bounds", func(t *testing.T) {
		require.Greater(t, seawater.Density(34.5, -1.5), 1026.0)
		require.Less(t, seawater.Density(34.5, 25), 1026.0)

		out, warnings := newController(t, bounds).Validate(in)
		assert.Equal(t, []types.QualityFlag{types.FlagGood, types.FlagSuspect, types.FlagGood, types.FlagBad}, flags(out),
			"missing temperature and BAD samples are not density checked")
		assert.Contains(t, warnings, "density: 1 samples flagged SUSPECT")
	})
}

func TestFlagsOnlyEscalate(t *testing.T) {
	in := profile("1", []float64{1, 2, 1.5}, nil)
	in[2].QualityFlag = types.FlagBad
	in[2].TemperatureC = 1
	out, _ := newController(t, nil).Validate(in)
	assert.Equal(t, types.FlagBad, out[2].QualityFlag)
	assert.Len(t, out, 3)
}
