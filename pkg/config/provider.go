package config

import (
	"errors"
	"fmt"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// Classification strategies
const (
	StrategyRangeRule       = "range-rule"
	StrategyNearestCentroid = "nearest-centroid"
)

// Distance metrics for the nearest-centroid strategy
const (
	MetricStandardized = "standardized"
	MetricEuclidean    = "euclidean"
)

// Output formats
const (
	FormatJSON    = "json"
	FormatMsgPack = "msgpack"
	FormatODV     = "odv"
	FormatCSV     = "csv"
)

// ConfigData represents the complete configuration structure.  It is built
// once at startup and handed to the pipeline, which never modifies it.
type ConfigData struct {
	Workers    int            `json:"workers"`
	Debug      bool           `json:"debug,omitempty"`
	Normalizer NormalizerData `json:"normalizer"`
	QC         QCData         `json:"qc"`
	Classifier ClassifierData `json:"classifier"`
	Storage    StorageData    `json:"storage,omitempty"`
	Output     OutputData     `json:"output,omitempty"`
}

// NormalizerData holds schema normalizer settings
type NormalizerData struct {
	// PrimaryVariables maps a canonical field (e.g. "temperature_c") to the
	// source variable name that wins when two columns disagree.
	PrimaryVariables map[string]string `json:"primary_variables,omitempty"`
	// DefaultLatitude is used for pressure/depth conversion when a sample
	// carries no latitude.
	DefaultLatitude float64 `json:"default_latitude"`
}

// QCData holds quality controller settings
type QCData struct {
	TemperatureMin            float64 `json:"temperature_min"`
	TemperatureMax            float64 `json:"temperature_max"`
	SalinityMin               float64 `json:"salinity_min"`
	SalinityMax               float64 `json:"salinity_max"`
	MaxGap                    int     `json:"max_gap"`
	PressureReversalTolerance float64 `json:"pressure_reversal_tolerance"`
	// OutlierZScore enables the z-score check when > 0
	OutlierZScore     float64 `json:"outlier_zscore,omitempty"`
	MinOutlierSamples int     `json:"min_outlier_samples,omitempty"`
	// MinDensity and MaxDensity (kg/m3) enable the density check when both
	// are > 0
	MinDensity float64 `json:"min_density,omitempty"`
	MaxDensity float64 `json:"max_density,omitempty"`
}

// DensityCheck reports whether the density range check is enabled
func (q QCData) DensityCheck() bool {
	return q.MinDensity > 0 && q.MaxDensity > 0
}

// RangeData is an inclusive [Min, Max] interval
type RangeData struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// CentroidData is a class centre in temperature-salinity space
type CentroidData struct {
	Temperature float64 `json:"temperature"`
	Salinity    float64 `json:"salinity"`
}

// ScaleData holds the standardization used by the nearest-centroid strategy
type ScaleData struct {
	TemperatureMean float64 `json:"temperature_mean"`
	TemperatureStd  float64 `json:"temperature_std"`
	SalinityMean    float64 `json:"salinity_mean"`
	SalinityStd     float64 `json:"salinity_std"`
}

// ClassData describes one water mass class
type ClassData struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Temperature RangeData     `json:"temperature"`
	Salinity    RangeData     `json:"salinity"`
	Pressure    *RangeData    `json:"pressure,omitempty"`
	Oxygen      *RangeData    `json:"oxygen,omitempty"`
	Centroid    *CentroidData `json:"centroid,omitempty"`
}

// ClassifierData holds water-mass classifier settings
type ClassifierData struct {
	Strategy    string      `json:"strategy"`
	Metric      string      `json:"metric,omitempty"`
	MaxDistance float64     `json:"max_distance,omitempty"`
	ClassifyBad bool        `json:"classify_bad,omitempty"`
	Classes     []ClassData `json:"classes"`
	Scale       *ScaleData  `json:"scale,omitempty"`
}

// StorageData holds the configuration for result storage backends
type StorageData struct {
	SQLite      *SQLiteData      `json:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty"`
}

type SQLiteData struct {
	Path string `json:"path"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
}

// OutputData selects how classified datasets are written by the CLI
type OutputData struct {
	Format string `json:"format,omitempty"`
}

// Default returns the configuration used when no file overrides a setting.
func Default() ConfigData {
	return ConfigData{
		Workers: 4,
		Normalizer: NormalizerData{
			DefaultLatitude: 45,
		},
		QC: QCData{
			TemperatureMin:    -2,
			TemperatureMax:    40,
			SalinityMin:       0,
			SalinityMax:       42,
			MaxGap:            1,
			MinOutlierSamples: 10,
		},
		Classifier: ClassifierData{
			Strategy: StrategyRangeRule,
			Metric:   MetricStandardized,
		},
		Output: OutputData{
			Format: FormatJSON,
		},
	}
}

// Validate checks the configuration for settings the pipeline cannot run with.
func (c *ConfigData) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	if c.QC.TemperatureMin >= c.QC.TemperatureMax {
		errs = append(errs, fmt.Errorf("qc temperature range [%g, %g] is empty", c.QC.TemperatureMin, c.QC.TemperatureMax))
	}
	if c.QC.SalinityMin >= c.QC.SalinityMax {
		errs = append(errs, fmt.Errorf("qc salinity range [%g, %g] is empty", c.QC.SalinityMin, c.QC.SalinityMax))
	}
	if c.QC.MaxGap < 0 {
		errs = append(errs, fmt.Errorf("qc max_gap must be >= 0, got %d", c.QC.MaxGap))
	}
	if c.QC.MinDensity < 0 || c.QC.MaxDensity < 0 {
		errs = append(errs, errors.New("qc density bounds must not be negative"))
	} else if (c.QC.MinDensity > 0) != (c.QC.MaxDensity > 0) {
		errs = append(errs, errors.New("qc min_density and max_density must be set together"))
	} else if c.QC.DensityCheck() && c.QC.MinDensity >= c.QC.MaxDensity {
		errs = append(errs, fmt.Errorf("qc min_density %g must be below max_density %g", c.QC.MinDensity, c.QC.MaxDensity))
	}
	if c.QC.PressureReversalTolerance < 0 {
		errs = append(errs, fmt.Errorf("qc pressure_reversal_tolerance must be >= 0"))
	}
	if c.Normalizer.DefaultLatitude < -90 || c.Normalizer.DefaultLatitude > 90 {
		errs = append(errs, fmt.Errorf("normalizer default_latitude %g out of range", c.Normalizer.DefaultLatitude))
	}
	switch c.Classifier.Strategy {
	case StrategyRangeRule, StrategyNearestCentroid:
	default:
		errs = append(errs, fmt.Errorf("unknown classifier strategy %q", c.Classifier.Strategy))
	}
	switch c.Classifier.Metric {
	case "", MetricStandardized, MetricEuclidean:
	default:
		errs = append(errs, fmt.Errorf("unknown classifier metric %q", c.Classifier.Metric))
	}
	switch c.Output.Format {
	case "", FormatJSON, FormatMsgPack, FormatODV, FormatCSV:
	default:
		errs = append(errs, fmt.Errorf("unknown output format %q", c.Output.Format))
	}
	return errors.Join(errs...)
}
