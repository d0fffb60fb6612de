package normalize

import (
	"strings"

	"github.com/chrissnell/oceandata/internal/seawater"
)

// converter turns a source value into canonical units.  density is the
// in-situ density in kg/m³ and is only consulted by volume-based oxygen units.
type converter func(v, density float64) float64

func identity(v, _ float64) float64 { return v }

func scaleBy(k float64) converter {
	return func(v, _ float64) float64 { return v * k }
}

// unitParts lower-cases a unit, folds micro and degree signs and splits
// comma separated qualifiers such as "ITS-90, deg C".
func unitParts(unit string) []string {
	u := strings.ToLower(strings.TrimSpace(unit))
	r := strings.NewReplacer(
		"µ", "u", "μ", "u", "º", "deg", "°", "deg",
		" ", "", "_", "", "-", "", "^", "", "**", "", "³", "3",
	)
	u = r.Replace(u)
	if u == "" {
		return nil
	}
	parts := strings.Split(u, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.Trim(p, "[]()")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// unitConverter selects the conversion for a field given the declared unit
// and source name.  ok is false when the unit is not recognised.
func unitConverter(f field, unit, name string) (converter, bool) {
	parts := unitParts(unit)
	switch f {
	case fieldPressure:
		return pressureUnit(parts)
	case fieldDepth:
		return depthUnit(parts)
	case fieldTemperature:
		return temperatureUnit(parts, key(name))
	case fieldSalinity:
		return salinityUnit(parts)
	case fieldOxygen:
		return oxygenUnit(parts)
	case fieldLatitude, fieldLongitude:
		return coordinateUnit(parts)
	case fieldNutrient, fieldTimeJ, fieldTimeS:
		return identity, true
	}
	return nil, false
}

func single(parts []string, qualifiers ...string) (string, bool) {
	var unit string
	for _, p := range parts {
		skip := false
		for _, q := range qualifiers {
			if p == q {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		if unit != "" {
			return "", false
		}
		unit = p
	}
	return unit, true
}

func pressureUnit(parts []string) (converter, bool) {
	u, ok := single(parts)
	if !ok {
		return nil, false
	}
	switch u {
	case "", "dbar", "db", "decibar", "decibars", "dbars":
		return identity, true
	case "pa":
		return scaleBy(1e-4), true
	case "hpa", "mbar":
		return scaleBy(1e-2), true
	case "kpa":
		return scaleBy(0.1), true
	case "bar":
		return scaleBy(10), true
	}
	return nil, false
}

func depthUnit(parts []string) (converter, bool) {
	u, ok := single(parts, "saltwater", "freshwater")
	if !ok {
		return nil, false
	}
	switch u {
	case "", "m", "meter", "meters", "metre", "metres":
		return identity, true
	case "ft", "feet":
		return scaleBy(0.3048), true
	}
	return nil, false
}

func temperatureUnit(parts []string, name string) (converter, bool) {
	scale68 := strings.Contains(name, "68")
	degree := "c"
	for _, p := range parts {
		switch p {
		case "its90", "ipts90", "t90":
		case "ipts68", "its68", "t68":
			scale68 = true
		case "degc", "c", "celsius", "degreec", "degreesc", "degreecelsius", "degreescelsius", "degcelsius":
			degree = "c"
		case "degf", "f", "fahrenheit", "degreef", "degreesf", "degreefahrenheit", "degreesfahrenheit":
			degree = "f"
		case "k", "kelvin", "degk":
			degree = "k"
		default:
			return nil, false
		}
	}
	var base converter
	switch degree {
	case "f":
		base = func(v, _ float64) float64 { return (v - 32) * 5 / 9 }
	case "k":
		base = func(v, _ float64) float64 { return v - 273.15 }
	default:
		base = identity
	}
	if !scale68 {
		return base, true
	}
	return func(v, d float64) float64 { return base(v, d) / seawater.T68Factor }, true
}

func salinityUnit(parts []string) (converter, bool) {
	u, ok := single(parts, "practical")
	if !ok {
		return nil, false
	}
	switch u {
	case "", "psu", "pss78", "pss", "psspsu", "practical", "1", "unitless", "dimensionless", "1e3", "0.001", "psu(pss78)":
		return identity, true
	case "g/kg", "gkg1":
		return func(v, _ float64) float64 { return v / seawater.ReferenceSalinityRatio }, true
	}
	return nil, false
}

func oxygenUnit(parts []string) (converter, bool) {
	u, ok := single(parts)
	if !ok {
		return nil, false
	}
	switch u {
	case "umol/kg", "micromol/kg", "umolkg1", "umol/kgsw":
		return identity, true
	case "umol/l", "micromol/l", "mmol/m3", "mmolm3", "umoll1":
		return func(v, d float64) float64 { return v * 1000 / d }, true
	case "ml/l", "mll1":
		return func(v, d float64) float64 { return v * seawater.OxygenMlToUmol * 1000 / d }, true
	case "mg/l", "mgl1":
		return func(v, d float64) float64 { return v * seawater.OxygenMgToUmol * 1000 / d }, true
	}
	return nil, false
}

func coordinateUnit(parts []string) (converter, bool) {
	u, ok := single(parts)
	if !ok {
		return nil, false
	}
	switch u {
	case "", "deg", "degree", "degrees", "decimaldegrees",
		"degn", "degreen", "degreesn", "degreenorth", "degreesnorth", "n",
		"dege", "degreee", "degreese", "degreeeast", "degreeseast", "e":
		return identity, true
	case "degs", "degreess", "degreesouth", "degreessouth", "s",
		"degw", "degreesw", "degreewest", "degreeswest", "w":
		return scaleBy(-1), true
	}
	return nil, false
}
