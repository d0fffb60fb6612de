// Package report builds the per-file processing report
package report

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/oceandata/internal/seawater"
	"github.com/chrissnell/oceandata/internal/types"
)

// Summary describes the distribution of one variable over the non-BAD
// samples that carry it.
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

// ClassStats describes the samples assigned to one water mass.  Depth bounds
// are omitted when no member sample carries a depth.
type ClassStats struct {
	Count           int      `json:"count"`
	Fraction        float64  `json:"fraction"`
	MeanTemperature float64  `json:"mean_temperature_c"`
	MeanSalinity    float64  `json:"mean_salinity_psu"`
	MeanSigmaT      float64  `json:"mean_sigma_t"`
	MinDepth        *float64 `json:"min_depth_m,omitempty"`
	MaxDepth        *float64 `json:"max_depth_m,omitempty"`
}

// Report is the outcome of processing one file
type Report struct {
	RunID       string             `json:"run_id"`
	Source      string             `json:"source"`
	Format      string             `json:"format,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	Duration    time.Duration      `json:"duration_ns"`
	Records     int                `json:"records"`
	Samples     int                `json:"samples"`
	FlagCounts  map[string]int     `json:"flag_counts,omitempty"`
	ClassCounts map[string]int     `json:"class_counts,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	Error       string             `json:"error,omitempty"`
	Summaries   map[string]Summary `json:"summaries,omitempty"`

	ClassStats map[string]ClassStats `json:"class_stats,omitempty"`
}

// New starts a report for source
func New(source string) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
}

// Build creates a report for a processed dataset
func Build(ds *types.Dataset, warnings []string) *Report {
	r := New(ds.Source)
	r.Fill(ds, warnings)
	return r
}

// Fill computes the counts and summaries of ds and appends warnings
func (r *Report) Fill(ds *types.Dataset, warnings []string) {
	r.Format = ds.Format
	r.Samples = len(ds.Samples)
	r.Warnings = append(r.Warnings, warnings...)

	r.FlagCounts = make(map[string]int, len(types.AllFlags))
	for _, f := range types.AllFlags {
		r.FlagCounts[f.String()] = 0
	}
	r.ClassCounts = make(map[string]int)
	for _, s := range ds.Samples {
		r.FlagCounts[s.QualityFlag.String()]++
		name := s.WaterMass
		if name == "" {
			name = types.Unclassified
		}
		r.ClassCounts[name]++
	}
	r.Summaries = Summaries(ds.Samples)
	r.ClassStats = Classes(ds.Samples)
}

// Fail records the error that stopped processing
func (r *Report) Fail(err error) {
	if err != nil {
		r.Error = err.Error()
	}
}

// Finish records the elapsed processing time
func (r *Report) Finish() {
	r.Duration = time.Since(r.StartedAt)
}

// Summaries computes per-variable statistics over present values of samples
// that are not BAD.  Nutrients are keyed by their canonical variable name.
func Summaries(samples []types.CanonicalSample) map[string]Summary {
	values := make(map[string][]float64)
	add := func(name string, v float64) {
		if types.Present(v) {
			values[name] = append(values[name], v)
		}
	}
	for _, s := range samples {
		if s.QualityFlag == types.FlagBad {
			continue
		}
		add(types.VarPressure, s.PressureDbar)
		add(types.VarDepth, s.DepthM)
		add(types.VarTemperature, s.TemperatureC)
		add(types.VarSalinity, s.SalinityPSU)
		add(types.VarOxygen, s.OxygenUmolKg)
		for k, v := range s.Nutrients {
			add(types.NutrientPrefix+k, v)
		}
	}

	out := make(map[string]Summary, len(values))
	for name, xs := range values {
		sum := Summary{
			Count: len(xs),
			Min:   floats.Min(xs),
			Max:   floats.Max(xs),
		}
		if len(xs) > 1 {
			sum.Mean, sum.StdDev = stat.MeanStdDev(xs, nil)
		} else {
			sum.Mean = xs[0]
		}
		if math.IsNaN(sum.StdDev) {
			sum.StdDev = 0
		}
		out[name] = sum
	}
	return out
}

// Classes computes per-water-mass statistics over classified samples.
// Unclassified samples count toward the fraction denominator only.
func Classes(samples []types.CanonicalSample) map[string]ClassStats {
	type members struct {
		t, s, sigma, depth []float64
	}
	byClass := make(map[string]*members)
	for _, smp := range samples {
		if smp.WaterMass == "" || !smp.Eligible() {
			continue
		}
		m, ok := byClass[smp.WaterMass]
		if !ok {
			m = &members{}
			byClass[smp.WaterMass] = m
		}
		m.t = append(m.t, smp.TemperatureC)
		m.s = append(m.s, smp.SalinityPSU)
		m.sigma = append(m.sigma, seawater.SigmaT(smp.SalinityPSU, smp.TemperatureC))
		if types.Present(smp.DepthM) {
			m.depth = append(m.depth, smp.DepthM)
		}
	}
	if len(byClass) == 0 {
		return nil
	}

	out := make(map[string]ClassStats, len(byClass))
	for name, m := range byClass {
		cs := ClassStats{
			Count:           len(m.t),
			Fraction:        float64(len(m.t)) / float64(len(samples)),
			MeanTemperature: stat.Mean(m.t, nil),
			MeanSalinity:    stat.Mean(m.s, nil),
			MeanSigmaT:      stat.Mean(m.sigma, nil),
		}
		if len(m.depth) > 0 {
			lo, hi := floats.Min(m.depth), floats.Max(m.depth)
			cs.MinDepth, cs.MaxDepth = &lo, &hi
		}
		out[name] = cs
	}
	return out
}
