package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// YAML mirror structs.  Pointers distinguish "not set" from zero so that
// unset values keep their defaults.
type fileYAML struct {
	Workers    *int           `yaml:"workers,omitempty"`
	Debug      bool           `yaml:"debug,omitempty"`
	Normalizer NormalizerYAML `yaml:"normalizer,omitempty"`
	QC         QCYAML         `yaml:"qc,omitempty"`
	Classifier ClassifierYAML `yaml:"classifier,omitempty"`
	Storage    StorageYAML    `yaml:"storage,omitempty"`
	Output     OutputYAML     `yaml:"output,omitempty"`
}

type NormalizerYAML struct {
	PrimaryVariables map[string]string `yaml:"primary_variables,omitempty"`
	DefaultLatitude  *float64          `yaml:"default_latitude,omitempty"`
}

type QCYAML struct {
	TemperatureMin            *float64 `yaml:"temperature_min,omitempty"`
	TemperatureMax            *float64 `yaml:"temperature_max,omitempty"`
	SalinityMin               *float64 `yaml:"salinity_min,omitempty"`
	SalinityMax               *float64 `yaml:"salinity_max,omitempty"`
	MaxGap                    *int     `yaml:"max_gap,omitempty"`
	PressureReversalTolerance *float64 `yaml:"pressure_reversal_tolerance,omitempty"`
	OutlierZScore             *float64 `yaml:"outlier_zscore,omitempty"`
	MinOutlierSamples         *int     `yaml:"min_outlier_samples,omitempty"`
	MinDensity                *float64 `yaml:"min_density,omitempty"`
	MaxDensity                *float64 `yaml:"max_density,omitempty"`
}

type RangeYAML struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type CentroidYAML struct {
	Temperature float64 `yaml:"temperature"`
	Salinity    float64 `yaml:"salinity"`
}

type ScaleYAML struct {
	TemperatureMean float64 `yaml:"temperature_mean"`
	TemperatureStd  float64 `yaml:"temperature_std"`
	SalinityMean    float64 `yaml:"salinity_mean"`
	SalinityStd     float64 `yaml:"salinity_std"`
}

type ClassYAML struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Temperature RangeYAML     `yaml:"temperature"`
	Salinity    RangeYAML     `yaml:"salinity"`
	Pressure    *RangeYAML    `yaml:"pressure,omitempty"`
	Oxygen      *RangeYAML    `yaml:"oxygen,omitempty"`
	Centroid    *CentroidYAML `yaml:"centroid,omitempty"`
}

type ClassifierYAML struct {
	Strategy    string      `yaml:"strategy,omitempty"`
	Metric      string      `yaml:"metric,omitempty"`
	MaxDistance float64     `yaml:"max_distance,omitempty"`
	ClassifyBad bool        `yaml:"classify_bad,omitempty"`
	Classes     []ClassYAML `yaml:"classes,omitempty"`
	Scale       *ScaleYAML  `yaml:"scale,omitempty"`
}

type StorageYAML struct {
	SQLite *struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite,omitempty"`
	TimescaleDB *struct {
		ConnectionString string `yaml:"connection-string"`
	} `yaml:"timescaledb,omitempty"`
}

type OutputYAML struct {
	Format string `yaml:"format,omitempty"`
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}
	return ParseYAML(cfgFile)
}

// ParseYAML converts YAML configuration bytes into ConfigData, starting from
// Default() for anything the document does not set.
func ParseYAML(data []byte) (*ConfigData, error) {
	var f fileYAML
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, err
	}

	config := Default()

	if f.Workers != nil {
		config.Workers = *f.Workers
	}
	config.Debug = f.Debug

	// Convert normalizer
	if len(f.Normalizer.PrimaryVariables) > 0 {
		config.Normalizer.PrimaryVariables = make(map[string]string, len(f.Normalizer.PrimaryVariables))
		for k, v := range f.Normalizer.PrimaryVariables {
			config.Normalizer.PrimaryVariables[k] = v
		}
	}
	setFloat(&config.Normalizer.DefaultLatitude, f.Normalizer.DefaultLatitude)

	// Convert QC
	setFloat(&config.QC.TemperatureMin, f.QC.TemperatureMin)
	setFloat(&config.QC.TemperatureMax, f.QC.TemperatureMax)
	setFloat(&config.QC.SalinityMin, f.QC.SalinityMin)
	setFloat(&config.QC.SalinityMax, f.QC.SalinityMax)
	setInt(&config.QC.MaxGap, f.QC.MaxGap)
	setFloat(&config.QC.PressureReversalTolerance, f.QC.PressureReversalTolerance)
	setFloat(&config.QC.OutlierZScore, f.QC.OutlierZScore)
	setInt(&config.QC.MinOutlierSamples, f.QC.MinOutlierSamples)
	setFloat(&config.QC.MinDensity, f.QC.MinDensity)
	setFloat(&config.QC.MaxDensity, f.QC.MaxDensity)

	// Convert classifier
	if f.Classifier.Strategy != "" {
		config.Classifier.Strategy = f.Classifier.Strategy
	}
	if f.Classifier.Metric != "" {
		config.Classifier.Metric = f.Classifier.Metric
	}
	config.Classifier.MaxDistance = f.Classifier.MaxDistance
	config.Classifier.ClassifyBad = f.Classifier.ClassifyBad
	config.Classifier.Classes = make([]ClassData, len(f.Classifier.Classes))
	for i, c := range f.Classifier.Classes {
		config.Classifier.Classes[i] = ClassData{
			Name:        c.Name,
			Description: c.Description,
			Temperature: RangeData(c.Temperature),
			Salinity:    RangeData(c.Salinity),
		}
		if c.Pressure != nil {
			r := RangeData(*c.Pressure)
			config.Classifier.Classes[i].Pressure = &r
		}
		if c.Oxygen != nil {
			r := RangeData(*c.Oxygen)
			config.Classifier.Classes[i].Oxygen = &r
		}
		if c.Centroid != nil {
			cd := CentroidData(*c.Centroid)
			config.Classifier.Classes[i].Centroid = &cd
		}
	}
	if f.Classifier.Scale != nil {
		s := ScaleData(*f.Classifier.Scale)
		config.Classifier.Scale = &s
	}

	// Convert storage
	if f.Storage.SQLite != nil {
		config.Storage.SQLite = &SQLiteData{Path: f.Storage.SQLite.Path}
	}
	if f.Storage.TimescaleDB != nil {
		config.Storage.TimescaleDB = &TimescaleDBData{ConnectionString: f.Storage.TimescaleDB.ConnectionString}
	}

	if f.Output.Format != "" {
		config.Output.Format = f.Output.Format
	}

	return &config, nil
}

// MarshalClassifierYAML renders classifier settings in the same layout
// ParseYAML reads, for tools that generate model files.
func MarshalClassifierYAML(c ClassifierData) ([]byte, error) {
	out := struct {
		Classifier ClassifierYAML `yaml:"classifier"`
	}{}
	out.Classifier = ClassifierYAML{
		Strategy:    c.Strategy,
		Metric:      c.Metric,
		MaxDistance: c.MaxDistance,
		ClassifyBad: c.ClassifyBad,
		Classes:     make([]ClassYAML, len(c.Classes)),
	}
	for i, cl := range c.Classes {
		out.Classifier.Classes[i] = ClassYAML{
			Name:        cl.Name,
			Description: cl.Description,
			Temperature: RangeYAML(cl.Temperature),
			Salinity:    RangeYAML(cl.Salinity),
		}
		if cl.Pressure != nil {
			r := RangeYAML(*cl.Pressure)
			out.Classifier.Classes[i].Pressure = &r
		}
		if cl.Oxygen != nil {
			r := RangeYAML(*cl.Oxygen)
			out.Classifier.Classes[i].Oxygen = &r
		}
		if cl.Centroid != nil {
			cd := CentroidYAML(*cl.Centroid)
			out.Classifier.Classes[i].Centroid = &cd
		}
	}
	if c.Scale != nil {
		s := ScaleYAML(*c.Scale)
		out.Classifier.Scale = &s
	}
	return yaml.Marshal(out)
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

// IsReadOnly returns true for YAML provider (read-only)
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}
