// Package watermass assigns water-mass classes to samples from their
// temperature, salinity, pressure and oxygen.
package watermass

import (
	"errors"
	"fmt"
	"math"

	"github.com/chrissnell/oceandata/pkg/config"
)

// Range is an inclusive interval
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies in the range.  NaN is never contained.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Envelope bounds a class in property space.  Pressure and Oxygen are
// optional constraints.
type Envelope struct {
	Temperature Range
	Salinity    Range
	Pressure    *Range
	Oxygen      *Range
}

// Centroid is a class centre in temperature-salinity space
type Centroid struct {
	Temperature float64
	Salinity    float64
}

// Scale standardizes temperature and salinity before centroid distances
// are taken.
type Scale struct {
	TemperatureMean float64
	TemperatureStd  float64
	SalinityMean    float64
	SalinityStd     float64
}

// Class is one named water mass
type Class struct {
	Name        string
	Description string
	Envelope    Envelope
	Centroid    *Centroid
}

// Model is a classification strategy: RangeRule or NearestCentroid.
type Model interface {
	strategy() string
}

// RangeRule assigns the first class whose envelope contains the sample
type RangeRule struct {
	Classes []Class
}

func (RangeRule) strategy() string { return config.StrategyRangeRule }

// NearestCentroid assigns the class with the nearest centroid
type NearestCentroid struct {
	Classes     []Class
	Scale       Scale
	Metric      string
	MaxDistance float64
}

func (NearestCentroid) strategy() string { return config.StrategyNearestCentroid }

// Options controls dataset classification
type Options struct {
	// ClassifyBad lets BAD samples be classified
	ClassifyBad bool
}

// OptionsFrom builds Options from the classifier configuration
func OptionsFrom(cfg config.ClassifierData) Options {
	return Options{ClassifyBad: cfg.ClassifyBad}
}

// NewModel builds and validates the model described by cfg
func NewModel(cfg config.ClassifierData) (Model, error) {
	classes := make([]Class, len(cfg.Classes))
	for i, c := range cfg.Classes {
		classes[i] = Class{
			Name:        c.Name,
			Description: c.Description,
			Envelope: Envelope{
				Temperature: Range(c.Temperature),
				Salinity:    Range(c.Salinity),
			},
		}
		if c.Pressure != nil {
			r := Range(*c.Pressure)
			classes[i].Envelope.Pressure = &r
		}
		if c.Oxygen != nil {
			r := Range(*c.Oxygen)
			classes[i].Envelope.Oxygen = &r
		}
		if c.Centroid != nil {
			classes[i].Centroid = &Centroid{Temperature: c.Centroid.Temperature, Salinity: c.Centroid.Salinity}
		}
	}

	var m Model
	switch cfg.Strategy {
	case "", config.StrategyRangeRule:
		m = RangeRule{Classes: classes}
	case config.StrategyNearestCentroid:
		nc := NearestCentroid{Classes: classes, Metric: cfg.Metric, MaxDistance: cfg.MaxDistance}
		if nc.Metric == "" {
			nc.Metric = config.MetricStandardized
		}
		if cfg.Scale != nil {
			nc.Scale = Scale(*cfg.Scale)
		}
		m = nc
	default:
		return nil, fmt.Errorf("unknown classifier strategy %q", cfg.Strategy)
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks a model for unusable class definitions
func Validate(m Model) error {
	var errs []error
	var classes []Class
	switch m := m.(type) {
	case RangeRule:
		classes = m.Classes
	case NearestCentroid:
		classes = m.Classes
		if len(classes) == 0 {
			errs = append(errs, errors.New("nearest-centroid model has no classes"))
		}
		switch m.Metric {
		case config.MetricStandardized:
			if !(m.Scale.TemperatureStd > 0) || !(m.Scale.SalinityStd > 0) {
				errs = append(errs, errors.New("standardized metric needs positive temperature and salinity std"))
			}
		case config.MetricEuclidean:
		default:
			errs = append(errs, fmt.Errorf("unknown metric %q", m.Metric))
		}
		if m.MaxDistance < 0 {
			errs = append(errs, fmt.Errorf("max_distance must be >= 0, got %g", m.MaxDistance))
		}
		for _, c := range classes {
			if c.Centroid == nil {
				errs = append(errs, fmt.Errorf("class %q has no centroid", c.Name))
			} else if math.IsNaN(c.Centroid.Temperature) || math.IsNaN(c.Centroid.Salinity) {
				errs = append(errs, fmt.Errorf("class %q centroid is not a number", c.Name))
			}
		}
	default:
		return fmt.Errorf("unsupported model %T", m)
	}

	seen := make(map[string]bool)
	for _, c := range classes {
		if c.Name == "" {
			errs = append(errs, errors.New("class with empty name"))
			continue
		}
		if seen[c.Name] {
			errs = append(errs, fmt.Errorf("duplicate class %q", c.Name))
		}
		seen[c.Name] = true
		if !ordered(c.Envelope.Temperature) {
			errs = append(errs, fmt.Errorf("class %q temperature range is inverted", c.Name))
		}
		if !ordered(c.Envelope.Salinity) {
			errs = append(errs, fmt.Errorf("class %q salinity range is inverted", c.Name))
		}
		if c.Envelope.Pressure != nil && !ordered(*c.Envelope.Pressure) {
			errs = append(errs, fmt.Errorf("class %q pressure range is inverted", c.Name))
		}
		if c.Envelope.Oxygen != nil && !ordered(*c.Envelope.Oxygen) {
			errs = append(errs, fmt.Errorf("class %q oxygen range is inverted", c.Name))
		}
	}
	return errors.Join(errs...)
}

func ordered(r Range) bool {
	return r.Min <= r.Max
}

// Config renders a model back into classifier configuration
func Config(m Model) config.ClassifierData {
	var out config.ClassifierData
	var classes []Class
	switch m := m.(type) {
	case RangeRule:
		out.Strategy = config.StrategyRangeRule
		classes = m.Classes
	case NearestCentroid:
		out.Strategy = config.StrategyNearestCentroid
		out.Metric = m.Metric
		out.MaxDistance = m.MaxDistance
		scale := config.ScaleData(m.Scale)
		out.Scale = &scale
		classes = m.Classes
	}
	for _, c := range classes {
		cd := config.ClassData{
			Name:        c.Name,
			Description: c.Description,
			Temperature: config.RangeData(c.Envelope.Temperature),
			Salinity:    config.RangeData(c.Envelope.Salinity),
		}
		if c.Envelope.Pressure != nil {
			r := config.RangeData(*c.Envelope.Pressure)
			cd.Pressure = &r
		}
		if c.Envelope.Oxygen != nil {
			r := config.RangeData(*c.Envelope.Oxygen)
			cd.Oxygen = &r
		}
		if c.Centroid != nil {
			cd.Centroid = &config.CentroidData{Temperature: c.Centroid.Temperature, Salinity: c.Centroid.Salinity}
		}
		out.Classes = append(out.Classes, cd)
	}
	return out
}
