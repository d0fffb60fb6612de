package types

import (
	"sort"
	"strings"
	"time"
)

// Canonical variable names and units.  A RawRecord that uses these names is
// already canonical and normalizes without conversion.
const (
	VarStation     = "station_id"
	VarCast        = "cast_id"
	VarTimestamp   = "timestamp"
	VarLatitude    = "latitude"
	VarLongitude   = "longitude"
	VarPressure    = "pressure_dbar"
	VarDepth       = "depth_m"
	VarTemperature = "temperature_c"
	VarSalinity    = "salinity_psu"
	VarOxygen      = "oxygen_umol_kg"
	VarQualityFlag = "quality_flag"
	VarWaterMass   = "water_mass"

	// NutrientPrefix marks a canonical nutrient variable, e.g. "nutrient:nitrate".
	NutrientPrefix = "nutrient:"

	UnitLatitude    = "degrees_north"
	UnitLongitude   = "degrees_east"
	UnitPressure    = "dbar"
	UnitDepth       = "m"
	UnitTemperature = "degC"
	UnitSalinity    = "PSU"
	UnitOxygen      = "umol/kg"
)

// Dataset is the ordered set of samples decoded from one input file.
// Sample order is acquisition order and is preserved by every stage.
type Dataset struct {
	Source  string
	Format  string
	Samples []CanonicalSample
}

// Cast is a group of sample positions sharing station and cast identifiers.
type Cast struct {
	StationID string
	CastID    string
	Indices   []int
}

// Casts groups the dataset's samples by cast in first-seen order.
func (d *Dataset) Casts() []Cast {
	return GroupCasts(d.Samples)
}

// GroupCasts groups sample positions by cast key in first-seen order.
func GroupCasts(samples []CanonicalSample) []Cast {
	var casts []Cast
	pos := make(map[castKey]int)
	for i, s := range samples {
		key := s.castKey()
		idx, ok := pos[key]
		if !ok {
			idx = len(casts)
			pos[key] = idx
			casts = append(casts, Cast{StationID: s.StationID, CastID: s.CastID})
		}
		casts[idx].Indices = append(casts[idx].Indices, i)
	}
	return casts
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{Source: d.Source, Format: d.Format, Samples: make([]CanonicalSample, len(d.Samples))}
	for i, s := range d.Samples {
		out.Samples[i] = s.Clone()
	}
	return out
}

// CanonicalVariables returns the variable declarations used by Records for
// the given samples, in a stable order.
func CanonicalVariables(samples []CanonicalSample) []Variable {
	vars := []Variable{
		{Name: VarStation, Text: true},
		{Name: VarCast, Text: true},
		{Name: VarTimestamp, Text: true},
		{Name: VarLatitude, Unit: UnitLatitude},
		{Name: VarLongitude, Unit: UnitLongitude},
		{Name: VarPressure, Unit: UnitPressure},
		{Name: VarDepth, Unit: UnitDepth},
		{Name: VarTemperature, Unit: UnitTemperature},
		{Name: VarSalinity, Unit: UnitSalinity},
		{Name: VarOxygen, Unit: UnitOxygen},
	}
	seen := make(map[string]bool)
	var nutrients []string
	for _, s := range samples {
		for k := range s.Nutrients {
			if !seen[k] {
				seen[k] = true
				nutrients = append(nutrients, k)
			}
		}
	}
	sort.Strings(nutrients)
	for _, n := range nutrients {
		vars = append(vars, Variable{Name: NutrientPrefix + n})
	}
	vars = append(vars,
		Variable{Name: VarQualityFlag, Text: true},
		Variable{Name: VarWaterMass, Text: true},
	)
	return vars
}

// Records re-encodes the dataset as canonical RawRecords.  Derived depth or
// pressure values are omitted so that normalizing the records derives them
// again in the same way.
func (d *Dataset) Records() []RawRecord {
	vars := CanonicalVariables(d.Samples)
	records := make([]RawRecord, len(d.Samples))
	for i, s := range d.Samples {
		values := map[string]Value{
			VarStation:     Text(s.StationID),
			VarCast:        Text(s.CastID),
			VarQualityFlag: Text(s.QualityFlag.String()),
		}
		if s.WaterMass != "" {
			values[VarWaterMass] = Text(s.WaterMass)
		}
		if !s.Timestamp.IsZero() {
			values[VarTimestamp] = Text(s.Timestamp.UTC().Format(time.RFC3339Nano))
		}
		put := func(name string, v float64) {
			if Present(v) {
				values[name] = Number(v)
			}
		}
		put(VarLatitude, s.Latitude)
		put(VarLongitude, s.Longitude)
		if !s.PressureDerived {
			put(VarPressure, s.PressureDbar)
		}
		if !s.DepthDerived {
			put(VarDepth, s.DepthM)
		}
		put(VarTemperature, s.TemperatureC)
		put(VarSalinity, s.SalinityPSU)
		put(VarOxygen, s.OxygenUmolKg)
		for k, v := range s.Nutrients {
			put(NutrientPrefix+k, v)
		}
		records[i] = RawRecord{
			Source:    d.Source,
			Index:     s.Index,
			StationID: s.StationID,
			CastID:    s.CastID,
			Variables: vars,
			Values:    values,
		}
	}
	return records
}

// IsNutrientVariable reports whether name is a canonical nutrient variable and
// returns the nutrient's key.
func IsNutrientVariable(name string) (string, bool) {
	if strings.HasPrefix(name, NutrientPrefix) {
		return strings.TrimPrefix(name, NutrientPrefix), true
	}
	return "", false
}
