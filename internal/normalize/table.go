package normalize

import (
	"strings"

	"github.com/chrissnell/oceandata/internal/decoders"
	"github.com/chrissnell/oceandata/internal/formats"
	"github.com/chrissnell/oceandata/internal/types"
)

// field is the canonical destination of a source variable
type field int

const (
	fieldUnknown field = iota
	fieldIgnored
	fieldPressure
	fieldDepth
	fieldTemperature
	fieldSalinity
	fieldOxygen
	fieldLatitude
	fieldLongitude
	fieldTimestamp
	fieldDate
	fieldClock
	fieldTimeJ
	fieldTimeS
	fieldNutrient
	fieldQualityFlag
	fieldWaterMass
)

// canonical returns the canonical variable name a field is reported under
func (f field) canonical() string {
	switch f {
	case fieldPressure:
		return types.VarPressure
	case fieldDepth:
		return types.VarDepth
	case fieldTemperature:
		return types.VarTemperature
	case fieldSalinity:
		return types.VarSalinity
	case fieldOxygen:
		return types.VarOxygen
	case fieldLatitude:
		return types.VarLatitude
	case fieldLongitude:
		return types.VarLongitude
	case fieldTimestamp, fieldDate, fieldClock, fieldTimeJ, fieldTimeS:
		return types.VarTimestamp
	case fieldQualityFlag:
		return types.VarQualityFlag
	case fieldWaterMass:
		return types.VarWaterMass
	}
	return ""
}

// names maps a normalized source name to its field.  Canonical names are
// included with identity conversion so canonical records normalize unchanged.
var names = map[string]field{
	types.VarPressure:    fieldPressure,
	types.VarDepth:       fieldDepth,
	types.VarTemperature: fieldTemperature,
	types.VarSalinity:    fieldSalinity,
	types.VarOxygen:      fieldOxygen,
	types.VarLatitude:    fieldLatitude,
	types.VarLongitude:   fieldLongitude,
	types.VarTimestamp:   fieldTimestamp,
	types.VarQualityFlag: fieldQualityFlag,
	types.VarWaterMass:   fieldWaterMass,

	"pressure": fieldPressure, "pres": fieldPressure, "press": fieldPressure, "prdm": fieldPressure,
	"prde": fieldPressure, "prsm": fieldPressure, "ctdprs": fieldPressure, "sea_water_pressure": fieldPressure,
	"pressure, digiquartz": fieldPressure, "pressure, strain gauge": fieldPressure,

	"depth": fieldDepth, "depsm": fieldDepth, "dep": fieldDepth, "depth_below_sea_surface": fieldDepth,
	"depth(m)": fieldDepth,

	"temperature": fieldTemperature, "temp": fieldTemperature, "ctdtmp": fieldTemperature,
	"sea_water_temperature": fieldTemperature, "water temperature": fieldTemperature,
	"t090c": fieldTemperature, "t190c": fieldTemperature, "t068c": fieldTemperature, "t090f": fieldTemperature,
	"t068": fieldTemperature, "t090": fieldTemperature, "tv290c": fieldTemperature, "tv268c": fieldTemperature,

	"salinity": fieldSalinity, "sal": fieldSalinity, "sal00": fieldSalinity, "sal11": fieldSalinity,
	"psal": fieldSalinity, "salnty": fieldSalinity, "ctdsal": fieldSalinity, "sea_water_salinity": fieldSalinity,
	"sea_water_practical_salinity": fieldSalinity, "practical salinity": fieldSalinity,

	"oxygen": fieldOxygen, "o2": fieldOxygen, "oxy": fieldOxygen, "doxy": fieldOxygen, "ctdoxy": fieldOxygen,
	"dissolved oxygen": fieldOxygen, "dissolved_oxygen": fieldOxygen,
	"moles_of_oxygen_per_unit_mass_in_sea_water":                    fieldOxygen,
	"mole_concentration_of_dissolved_molecular_oxygen_in_sea_water": fieldOxygen,

	"lat": fieldLatitude,
	"lon": fieldLongitude, "long": fieldLongitude,

	"time": fieldTimestamp, "datetime": fieldTimestamp, "date_time": fieldTimestamp,
	"yyyy-mm-ddthh:mm:ss.sss": fieldTimestamp, "yyyy-mm-ddthh:mm": fieldTimestamp,

	"date": fieldDate, "dd/mm/yyyy": fieldDate, "mon/day/yr": fieldDate, "mm/dd/yyyy": fieldDate,
	"yyyy-mm-dd": fieldDate,

	"hh:mm": fieldClock, "hh:mm:ss": fieldClock, "time of day": fieldClock,

	"timej": fieldTimeJ, "times": fieldTimeS,

	"cruise": fieldIgnored, "type": fieldIgnored, "bot. depth": fieldIgnored, "bottom depth": fieldIgnored,
	"bottom_depth": fieldIgnored, "flag": fieldIgnored, "scan": fieldIgnored, "nbin": fieldIgnored,
}

// familyPrefixes catch instrument-specific Sea-Bird names such as
// sbeox0Mm/Kg or t190C that the exact table does not list.
var familyPrefixes = []struct {
	prefix string
	field  field
}{
	{"sbeox", fieldOxygen},
	{"sbox", fieldOxygen},
	{"oxsat", fieldIgnored},
	{"prd", fieldPressure},
	{"deps", fieldDepth},
	{"t090", fieldTemperature},
	{"t190", fieldTemperature},
	{"t068", fieldTemperature},
	{"sal0", fieldSalinity},
	{"sal1", fieldSalinity},
}

// nutrientTokens identify nutrient and pigment variables kept verbatim
var nutrientTokens = []string{"no3", "no2", "nh4", "po4", "sio4", "si(oh)4", "nitr", "phos", "silic", "ammon", "chl"}

// key normalizes a source name for lookup
func key(name string) string {
	return strings.ToLower(strings.TrimSpace(formats.StripUnit(name)))
}

// lookup resolves a declared variable to its field.  For nutrients the
// returned string is the nutrient key.
func lookup(v types.Variable) (field, string) {
	if n, ok := types.IsNutrientVariable(v.Name); ok {
		return fieldNutrient, n
	}
	candidates := append([]string{v.Name}, v.Aliases...)
	for _, c := range candidates {
		k := key(c)
		if f, ok := names[k]; ok {
			return f, ""
		}
		if decoders.IsStationName(k) || decoders.IsCastName(k) {
			return fieldIgnored, ""
		}
	}
	for _, c := range candidates {
		k := key(c)
		for _, fp := range familyPrefixes {
			if strings.HasPrefix(k, fp.prefix) {
				return fp.field, ""
			}
		}
	}
	k := key(v.Name)
	for _, tok := range nutrientTokens {
		if strings.Contains(k, tok) {
			return fieldNutrient, strings.TrimSpace(formats.StripUnit(v.Name))
		}
	}
	return fieldUnknown, ""
}
