package watermass

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/oceandata/internal/types"
	"github.com/chrissnell/oceandata/pkg/config"
)

// FitOptions controls centroid fitting
type FitOptions struct {
	Metric      string
	MaxDistance float64
	// SkipEmpty drops classes that have no labelled samples instead of
	// failing.
	SkipEmpty bool
}

// FitNearestCentroid learns class centroids from labelled samples.  labels
// runs parallel to samples; an empty label leaves the sample out.  The
// standardization is computed over every labelled sample.  Warnings list
// the classes that were skipped.
func FitNearestCentroid(samples []types.CanonicalSample, labels []string, classes []Class, opts FitOptions) (NearestCentroid, []string, error) {
	if len(samples) != len(labels) {
		return NearestCentroid{}, nil, fmt.Errorf("%d samples but %d labels", len(samples), len(labels))
	}

	byClass := make(map[string][2][]float64)
	var allT, allS []float64
	for i, s := range samples {
		label := labels[i]
		if label == "" || label == types.Unclassified || !s.Eligible() {
			continue
		}
		ts := byClass[label]
		ts[0] = append(ts[0], s.TemperatureC)
		ts[1] = append(ts[1], s.SalinityPSU)
		byClass[label] = ts
		allT = append(allT, s.TemperatureC)
		allS = append(allS, s.SalinityPSU)
	}
	if len(allT) < 2 {
		return NearestCentroid{}, nil, errors.New("need at least two labelled samples")
	}

	model := NearestCentroid{Metric: opts.Metric, MaxDistance: opts.MaxDistance}
	if model.Metric == "" {
		model.Metric = config.MetricStandardized
	}
	model.Scale.TemperatureMean, model.Scale.TemperatureStd = stat.MeanStdDev(allT, nil)
	model.Scale.SalinityMean, model.Scale.SalinityStd = stat.MeanStdDev(allS, nil)

	var warnings []string
	for _, c := range classes {
		ts, ok := byClass[c.Name]
		if !ok {
			if opts.SkipEmpty {
				warnings = append(warnings, fmt.Sprintf("class %s has no labelled samples, skipped", c.Name))
				continue
			}
			return NearestCentroid{}, nil, fmt.Errorf("class %q has no labelled samples", c.Name)
		}
		c.Centroid = &Centroid{
			Temperature: stat.Mean(ts[0], nil),
			Salinity:    stat.Mean(ts[1], nil),
		}
		model.Classes = append(model.Classes, c)
	}

	if err := Validate(model); err != nil {
		return NearestCentroid{}, warnings, fmt.Errorf("fitted model is unusable: %w", err)
	}
	return model, warnings, nil
}
