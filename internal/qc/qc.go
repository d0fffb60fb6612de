// Package qc applies physical range, density, gap interpolation, pressure
// monotonicity and outlier checks to normalized samples, one cast at a time.
package qc

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/oceandata/internal/log"
	"github.com/chrissnell/oceandata/internal/normalize"
	"github.com/chrissnell/oceandata/internal/seawater"
	"github.com/chrissnell/oceandata/internal/types"
	"github.com/chrissnell/oceandata/pkg/config"
)

// Controller runs the quality checks.  It keeps no state between calls.
type Controller struct {
	cfg             config.QCData
	defaultLatitude float64
	logger          *zap.SugaredLogger
}

// Option configures a Controller
type Option func(*Controller)

// WithDefaultLatitude sets the latitude used when recomputing a derived
// depth or pressure for a sample without one.
func WithDefaultLatitude(lat float64) Option {
	return func(c *Controller) {
		c.defaultLatitude = lat
	}
}

// New creates a Controller
func New(cfg config.QCData, logger *zap.SugaredLogger, opts ...Option) *Controller {
	c := &Controller{
		cfg:             cfg,
		defaultLatitude: config.Default().Normalizer.DefaultLatitude,
		logger:          log.OrNop(logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// counts tallies what each rule changed
type counts struct {
	bad          int
	dense        int
	interpolated map[string]int
	reversals    int
	outliers     int
}

// Validate returns a copy of samples, same length and order, with flags
// raised and short gaps filled.  Warnings summarize each rule that fired.
func (c *Controller) Validate(samples []types.CanonicalSample) ([]types.CanonicalSample, []string) {
	out := make([]types.CanonicalSample, len(samples))
	for i, s := range samples {
		out[i] = s.Clone()
	}

	n := counts{interpolated: make(map[string]int)}
	for _, cast := range types.GroupCasts(out) {
		c.rangeCheck(out, cast.Indices, &n)
		if c.cfg.DensityCheck() {
			c.densityCheck(out, cast.Indices, &n)
		}
		if c.cfg.MaxGap > 0 {
			c.fillGaps(out, cast.Indices, &n)
		}
		c.monotonicity(out, cast.Indices, &n)
		if c.cfg.OutlierZScore > 0 && len(cast.Indices) >= c.cfg.MinOutlierSamples {
			c.outliers(out, cast.Indices, &n)
		}
	}

	var warnings []string
	if n.bad > 0 {
		warnings = append(warnings, fmt.Sprintf("physical range: %d samples flagged BAD", n.bad))
	}
	if n.dense > 0 {
		warnings = append(warnings, fmt.Sprintf("density: %d samples flagged SUSPECT", n.dense))
	}
	for _, f := range gapFields {
		if k := n.interpolated[f.name]; k > 0 {
			warnings = append(warnings, fmt.Sprintf("gap interpolation: %d %s values filled", k, f.name))
		}
	}
	if n.reversals > 0 {
		warnings = append(warnings, fmt.Sprintf("pressure monotonicity: %d samples flagged SUSPECT", n.reversals))
	}
	if n.outliers > 0 {
		warnings = append(warnings, fmt.Sprintf("outliers: %d samples flagged SUSPECT", n.outliers))
	}
	for _, w := range warnings {
		c.logger.Debugf("qc %s", w)
	}
	return out, warnings
}

func (c *Controller) rangeCheck(samples []types.CanonicalSample, idx []int, n *counts) {
	for _, i := range idx {
		s := &samples[i]
		bad := (types.Present(s.TemperatureC) && (s.TemperatureC < c.cfg.TemperatureMin || s.TemperatureC > c.cfg.TemperatureMax)) ||
			(types.Present(s.SalinityPSU) && (s.SalinityPSU < c.cfg.SalinityMin || s.SalinityPSU > c.cfg.SalinityMax)) ||
			(types.Present(s.PressureDbar) && s.PressureDbar < 0) ||
			(types.Present(s.DepthM) && s.DepthM < 0)
		if bad {
			s.QualityFlag.Raise(types.FlagBad)
			n.bad++
		}
	}
}

// densityCheck flags samples whose surface density falls outside
// [MinDensity, MaxDensity].  BAD samples and samples missing temperature or
// salinity are skipped.
func (c *Controller) densityCheck(samples []types.CanonicalSample, idx []int, n *counts) {
	for _, i := range idx {
		s := &samples[i]
		if s.QualityFlag == types.FlagBad || !s.Eligible() {
			continue
		}
		rho := seawater.Density(s.SalinityPSU, s.TemperatureC)
		if rho < c.cfg.MinDensity || rho > c.cfg.MaxDensity {
			s.QualityFlag.Raise(types.FlagSuspect)
			n.dense++
		}
	}
}

// gapField names a sample field that gap interpolation fills
type gapField struct {
	name string
	get  func(*types.CanonicalSample) float64
	set  func(*types.CanonicalSample, float64)
}

var gapFields = []gapField{
	{types.VarPressure,
		func(s *types.CanonicalSample) float64 { return s.PressureDbar },
		func(s *types.CanonicalSample, v float64) { s.PressureDbar = v }},
	{types.VarTemperature,
		func(s *types.CanonicalSample) float64 { return s.TemperatureC },
		func(s *types.CanonicalSample, v float64) { s.TemperatureC = v }},
	{types.VarSalinity,
		func(s *types.CanonicalSample) float64 { return s.SalinityPSU },
		func(s *types.CanonicalSample, v float64) { s.SalinityPSU = v }},
	{types.VarOxygen,
		func(s *types.CanonicalSample) float64 { return s.OxygenUmolKg },
		func(s *types.CanonicalSample, v float64) { s.OxygenUmolKg = v }},
}

// fillGaps interpolates runs of at most MaxGap missing values inside a
// cast.  Runs are found on the values as they were before any filling, and
// pressure is filled first so that the other fields can use it as abscissa.
func (c *Controller) fillGaps(samples []types.CanonicalSample, idx []int, n *counts) {
	for _, f := range gapFields {
		present := make([]bool, len(idx))
		for pos, i := range idx {
			present[pos] = types.Present(f.get(&samples[i]))
		}

		pos := 0
		for pos < len(idx) {
			if present[pos] {
				pos++
				continue
			}
			start := pos
			for pos < len(idx) && !present[pos] {
				pos++
			}
			// run is idx[start:pos], bounded by start-1 and pos
			if start == 0 || pos == len(idx) || pos-start > c.cfg.MaxGap {
				continue
			}
			left, right := &samples[idx[start-1]], &samples[idx[pos]]
			if left.QualityFlag == types.FlagBad || right.QualityFlag == types.FlagBad {
				continue
			}
			c.interpolate(samples, idx, start-1, pos, f)
			n.interpolated[f.name] += pos - start
		}
	}
}

// interpolate fills positions a+1..b-1 of idx linearly between a and b
func (c *Controller) interpolate(samples []types.CanonicalSample, idx []int, a, b int, f gapField) {
	x := func(pos int) float64 { return float64(pos) }
	if f.name != types.VarPressure {
		byPressure := true
		for pos := a; pos <= b; pos++ {
			if !types.Present(samples[idx[pos]].PressureDbar) {
				byPressure = false
				break
			}
		}
		if byPressure && samples[idx[a]].PressureDbar != samples[idx[b]].PressureDbar {
			x = func(pos int) float64 { return samples[idx[pos]].PressureDbar }
		}
	}

	y0, y1 := f.get(&samples[idx[a]]), f.get(&samples[idx[b]])
	x0, x1 := x(a), x(b)
	for pos := a + 1; pos < b; pos++ {
		s := &samples[idx[pos]]
		f.set(s, y0+(y1-y0)*(x(pos)-x0)/(x1-x0))
		s.QualityFlag.Raise(types.FlagInterpolated)
		if f.name == types.VarPressure {
			if s.DepthDerived {
				s.DepthM, s.DepthDerived = types.Missing, false
			}
			normalize.DeriveVertical(s, c.defaultLatitude)
		}
	}
}

// monotonicity flags samples whose pressure falls below the running maximum
// of the cast by more than the configured tolerance
func (c *Controller) monotonicity(samples []types.CanonicalSample, idx []int, n *counts) {
	maxP := math.Inf(-1)
	for _, i := range idx {
		s := &samples[i]
		if s.QualityFlag == types.FlagBad || !types.Present(s.PressureDbar) {
			continue
		}
		if s.PressureDbar < maxP-c.cfg.PressureReversalTolerance {
			s.QualityFlag.Raise(types.FlagSuspect)
			n.reversals++
			continue
		}
		maxP = math.Max(maxP, s.PressureDbar)
	}
}

// outliers flags temperature and salinity values whose z-score within the
// cast reaches the configured threshold
func (c *Controller) outliers(samples []types.CanonicalSample, idx []int, n *counts) {
	flagged := make(map[int]bool)
	for _, get := range []func(*types.CanonicalSample) float64{
		func(s *types.CanonicalSample) float64 { return s.TemperatureC },
		func(s *types.CanonicalSample) float64 { return s.SalinityPSU },
	} {
		var xs []float64
		var members []int
		for _, i := range idx {
			s := &samples[i]
			if s.QualityFlag == types.FlagBad || !types.Present(get(s)) {
				continue
			}
			xs = append(xs, get(s))
			members = append(members, i)
		}
		if len(xs) < 2 {
			continue
		}
		mean, std := stat.MeanStdDev(xs, nil)
		if std == 0 || math.IsNaN(std) {
			continue
		}
		for k, i := range members {
			if math.Abs(xs[k]-mean)/std >= c.cfg.OutlierZScore {
				samples[i].QualityFlag.Raise(types.FlagSuspect)
				flagged[i] = true
			}
		}
	}
	n.outliers += len(flagged)
}
