package types

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// QualityFlag describes the outcome of quality control for one sample.
// Flags are ordered by severity so that a later stage can only raise them.
type QualityFlag uint8

const (
	FlagGood QualityFlag = iota
	FlagInterpolated
	FlagSuspect
	FlagBad
)

// AllFlags lists every flag in severity order.
var AllFlags = []QualityFlag{FlagGood, FlagInterpolated, FlagSuspect, FlagBad}

func (f QualityFlag) String() string {
	switch f {
	case FlagGood:
		return "GOOD"
	case FlagInterpolated:
		return "INTERPOLATED"
	case FlagSuspect:
		return "SUSPECT"
	case FlagBad:
		return "BAD"
	default:
		return fmt.Sprintf("QualityFlag(%d)", uint8(f))
	}
}

// ParseQualityFlag is the inverse of QualityFlag.String.
func ParseQualityFlag(s string) (QualityFlag, error) {
	for _, f := range AllFlags {
		if f.String() == s {
			return f, nil
		}
	}
	return FlagGood, fmt.Errorf("unknown quality flag %q", s)
}

func (f QualityFlag) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *QualityFlag) UnmarshalText(b []byte) error {
	parsed, err := ParseQualityFlag(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Raise sets the flag to next if next is more severe than the current flag.
func (f *QualityFlag) Raise(next QualityFlag) {
	if next > *f {
		*f = next
	}
}

// Unclassified is the class name reported for samples that matched no water mass.
const Unclassified = "UNCLASSIFIED"

// Missing is the sentinel for absent numeric fields.
var Missing = math.NaN()

// Present reports whether a numeric field holds a value.
func Present(v float64) bool {
	return !math.IsNaN(v)
}

// CanonicalSample is one normalized reading.  Absent numeric fields are NaN.
type CanonicalSample struct {
	Index           int
	StationID       string
	CastID          string
	Timestamp       time.Time
	Latitude        float64
	Longitude       float64
	PressureDbar    float64
	DepthM          float64
	TemperatureC    float64
	SalinityPSU     float64
	OxygenUmolKg    float64
	Nutrients       map[string]float64
	QualityFlag     QualityFlag
	WaterMass       string
	PressureDerived bool
	DepthDerived    bool
}

// NewSample returns a sample with every numeric field missing.
func NewSample(index int, station, cast string) CanonicalSample {
	return CanonicalSample{
		Index:        index,
		StationID:    station,
		CastID:       cast,
		Latitude:     Missing,
		Longitude:    Missing,
		PressureDbar: Missing,
		DepthM:       Missing,
		TemperatureC: Missing,
		SalinityPSU:  Missing,
		OxygenUmolKg: Missing,
	}
}

// Eligible reports whether the sample carries the temperature and salinity
// needed for classification.
func (s CanonicalSample) Eligible() bool {
	return Present(s.TemperatureC) && Present(s.SalinityPSU)
}

// castKey identifies the cast a sample belongs to.
type castKey struct {
	station, cast string
}

func (s CanonicalSample) castKey() castKey {
	return castKey{station: s.StationID, cast: s.CastID}
}

// Clone returns a deep copy of the sample.
func (s CanonicalSample) Clone() CanonicalSample {
	if s.Nutrients != nil {
		n := make(map[string]float64, len(s.Nutrients))
		for k, v := range s.Nutrients {
			n[k] = v
		}
		s.Nutrients = n
	}
	return s
}

// NutrientNames returns the nutrient keys in sorted order.
func (s CanonicalSample) NutrientNames() []string {
	names := make([]string, 0, len(s.Nutrients))
	for k := range s.Nutrients {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
