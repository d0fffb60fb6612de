package watermass

import (
	"math"

	"github.com/chrissnell/oceandata/internal/types"
	"github.com/chrissnell/oceandata/pkg/config"
)

// Classify returns the class of a sample under the model.  ok is false when
// the sample is unclassified, including when it lacks temperature or
// salinity.
func Classify(s types.CanonicalSample, m Model) (string, bool) {
	if !s.Eligible() {
		return "", false
	}
	switch m := m.(type) {
	case RangeRule:
		return m.classify(s)
	case NearestCentroid:
		return m.classify(s)
	}
	return "", false
}

func (r RangeRule) classify(s types.CanonicalSample) (string, bool) {
	for _, c := range r.Classes {
		if c.Envelope.contains(s) {
			return c.Name, true
		}
	}
	return "", false
}

func (e Envelope) contains(s types.CanonicalSample) bool {
	if !e.Temperature.Contains(s.TemperatureC) || !e.Salinity.Contains(s.SalinityPSU) {
		return false
	}
	if e.Pressure != nil && !e.Pressure.Contains(s.PressureDbar) {
		return false
	}
	if e.Oxygen != nil && !e.Oxygen.Contains(s.OxygenUmolKg) {
		return false
	}
	return true
}

func (n NearestCentroid) classify(s types.CanonicalSample) (string, bool) {
	best, bestDist := "", math.Inf(1)
	for _, c := range n.Classes {
		if c.Centroid == nil {
			continue
		}
		// strict less-than keeps the earlier class on ties
		if d := n.distance(s, *c.Centroid); d < bestDist {
			best, bestDist = c.Name, d
		}
	}
	if best == "" {
		return "", false
	}
	if n.MaxDistance > 0 && bestDist > n.MaxDistance {
		return "", false
	}
	return best, true
}

func (n NearestCentroid) distance(s types.CanonicalSample, c Centroid) float64 {
	dt := s.TemperatureC - c.Temperature
	ds := s.SalinityPSU - c.Salinity
	if n.Metric != config.MetricEuclidean {
		dt /= n.Scale.TemperatureStd
		ds /= n.Scale.SalinityStd
	}
	return math.Hypot(dt, ds)
}

// ClassifyDataset writes the class of every sample into its WaterMass
// field.  Unclassified samples get an empty WaterMass.
func ClassifyDataset(ds *types.Dataset, m Model, opts Options) {
	for i := range ds.Samples {
		s := &ds.Samples[i]
		s.WaterMass = ""
		if s.QualityFlag == types.FlagBad && !opts.ClassifyBad {
			continue
		}
		if name, ok := Classify(*s, m); ok {
			s.WaterMass = name
		}
	}
}

// Labels classifies samples without modifying them.  Unclassified samples
// get an empty label.
func Labels(samples []types.CanonicalSample, m Model, opts Options) []string {
	labels := make([]string, len(samples))
	for i, s := range samples {
		if s.QualityFlag == types.FlagBad && !opts.ClassifyBad {
			continue
		}
		labels[i], _ = Classify(s, m)
	}
	return labels
}
