// Package normalize maps decoded records of any source format onto the
// canonical sample schema.
package normalize

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/chrissnell/oceandata/internal/log"
	"github.com/chrissnell/oceandata/internal/seawater"
	"github.com/chrissnell/oceandata/internal/types"
	"github.com/chrissnell/oceandata/pkg/config"
)

// conflictTolerance is the largest difference between two converted values
// that still counts as agreement.
const conflictTolerance = 1e-9

// Options controls how records are normalized
type Options struct {
	// PrimaryVariables maps a canonical name to the source variable that wins
	// a conflict for that field.
	PrimaryVariables map[string]string
	// DefaultLatitude is used for depth/pressure conversion when a sample has
	// no latitude of its own.
	DefaultLatitude float64
}

// OptionsFrom builds Options from the normalizer section of the configuration
func OptionsFrom(cfg config.NormalizerData) Options {
	return Options{
		PrimaryVariables: cfg.PrimaryVariables,
		DefaultLatitude:  cfg.DefaultLatitude,
	}
}

// DroppedVariableError notes a source variable that was not carried into the
// canonical samples.  It is reported once per file and variable.
type DroppedVariableError struct {
	Source   string
	Variable string
	Unit     string
	Reason   string
}

func (e *DroppedVariableError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("%s: dropped variable %q [%s]: %s", e.Source, e.Variable, e.Unit, e.Reason)
	}
	return fmt.Sprintf("%s: dropped variable %q: %s", e.Source, e.Variable, e.Reason)
}

// Normalizer converts RawRecords to CanonicalSamples.  It holds no state
// between calls and is safe for concurrent use.
type Normalizer struct {
	opts   Options
	logger *zap.SugaredLogger
}

// New creates a Normalizer
func New(opts Options, logger *zap.SugaredLogger) *Normalizer {
	return &Normalizer{opts: opts, logger: log.OrNop(logger)}
}

// mapping is the resolved destination of one declared variable
type mapping struct {
	field    field
	nutrient string
	conv     converter
	// reason is set when the variable is dropped
	reason string
}

type candidate struct {
	name  string
	value float64
	conv  converter
}

// run holds the per-call caches
type run struct {
	n        *Normalizer
	plans    map[string]mapping
	reported map[string]bool
	notices  []error
}

func planKey(v types.Variable) string {
	return v.Name + "\x00" + v.Unit + "\x00" + strings.Join(v.Aliases, "\x00")
}

func (r *run) plan(v types.Variable) mapping {
	k := planKey(v)
	if m, ok := r.plans[k]; ok {
		return m
	}
	f, nutrient := lookup(v)
	m := mapping{field: f, nutrient: nutrient}
	switch f {
	case fieldUnknown:
		m.reason = "unrecognized variable"
	case fieldIgnored, fieldQualityFlag, fieldWaterMass, fieldTimestamp, fieldDate, fieldClock:
	default:
		conv, ok := unitConverter(f, v.Unit, v.Name)
		if !ok {
			m.reason = "unknown unit"
		}
		m.conv = conv
	}
	r.plans[k] = m
	return m
}

// drop records a notice for a variable once per source file
func (r *run) drop(source string, v types.Variable, reason string) {
	k := source + "\x00" + v.Name
	if r.reported[k] {
		return
	}
	r.reported[k] = true
	r.n.logger.Infof("normalizer dropped variable [%s] from [%s]: %s", v.Name, source, reason)
	r.notices = append(r.notices, &DroppedVariableError{Source: source, Variable: v.Name, Unit: v.Unit, Reason: reason})
}

// Normalize maps records onto canonical samples, one sample per record in
// the same order.  The returned errors are recoverable notices:
// *types.AmbiguousVariableError for conflicting columns and
// *DroppedVariableError for variables that could not be carried over.
func (n *Normalizer) Normalize(records []types.RawRecord) ([]types.CanonicalSample, []error) {
	r := &run{n: n, plans: make(map[string]mapping), reported: make(map[string]bool)}
	samples := make([]types.CanonicalSample, len(records))
	for i := range records {
		samples[i] = r.sample(&records[i])
	}
	return samples, r.notices
}

func (r *run) sample(rec *types.RawRecord) types.CanonicalSample {
	s := types.NewSample(rec.Index, rec.StationID, rec.CastID)
	cands := make(map[field][]candidate)
	tp := newTimeParts()

	for _, v := range rec.Variables {
		val, ok := rec.Values[v.Name]
		if !ok {
			continue
		}
		m := r.plan(v)
		if m.reason != "" {
			r.drop(rec.Source, v, m.reason)
			continue
		}
		switch m.field {
		case fieldIgnored:
		case fieldQualityFlag:
			flag, err := types.ParseQualityFlag(strings.TrimSpace(val.String()))
			if err != nil {
				r.drop(rec.Source, v, err.Error())
				continue
			}
			s.QualityFlag.Raise(flag)
		case fieldWaterMass:
			if name := strings.TrimSpace(val.String()); name != types.Unclassified {
				s.WaterMass = name
			}
		case fieldTimestamp, fieldDate, fieldClock, fieldTimeJ, fieldTimeS:
			if err := tp.set(m.field, v.Name, val); err != nil {
				r.drop(rec.Source, v, err.Error())
			}
		default:
			num, ok := val.Float()
			if !ok || math.IsNaN(num) {
				r.drop(rec.Source, v, fmt.Sprintf("non-numeric value %q", val.String()))
				continue
			}
			if m.field == fieldNutrient {
				if s.Nutrients == nil {
					s.Nutrients = make(map[string]float64)
				}
				if _, seen := s.Nutrients[m.nutrient]; !seen {
					s.Nutrients[m.nutrient] = num
				}
				continue
			}
			cands[m.field] = append(cands[m.field], candidate{name: v.Name, value: num, conv: m.conv})
		}
	}

	s.Timestamp = tp.resolve()

	// temperature and salinity first: volume-based oxygen needs the density
	s.TemperatureC = r.resolve(rec, &s, fieldTemperature, cands[fieldTemperature], 0)
	s.SalinityPSU = r.resolve(rec, &s, fieldSalinity, cands[fieldSalinity], 0)
	density := seawater.DensityOrReference(s.SalinityPSU, s.TemperatureC)
	s.OxygenUmolKg = r.resolve(rec, &s, fieldOxygen, cands[fieldOxygen], density)
	s.PressureDbar = r.resolve(rec, &s, fieldPressure, cands[fieldPressure], 0)
	s.DepthM = r.resolve(rec, &s, fieldDepth, cands[fieldDepth], 0)
	s.Latitude = r.resolve(rec, &s, fieldLatitude, cands[fieldLatitude], 0)
	s.Longitude = r.resolve(rec, &s, fieldLongitude, cands[fieldLongitude], 0)

	DeriveVertical(&s, r.n.opts.DefaultLatitude)
	return s
}

// resolve picks one value out of the candidates for a field
func (r *run) resolve(rec *types.RawRecord, s *types.CanonicalSample, f field, cands []candidate, density float64) float64 {
	if len(cands) == 0 {
		return types.Missing
	}
	primary := r.n.opts.PrimaryVariables[f.canonical()]
	isPrimary := func(c candidate) bool {
		return primary != "" && strings.EqualFold(c.name, primary)
	}

	winner := cands[0]
	value := winner.conv(winner.value, density)
	for _, c := range cands[1:] {
		v := c.conv(c.value, density)
		if math.Abs(v-value) <= conflictTolerance {
			continue
		}
		amb := &types.AmbiguousVariableError{
			Source: rec.Source,
			Record: rec.Index,
			Field:  f.canonical(),
		}
		switch {
		case isPrimary(c):
			amb.Winner, amb.Loser, amb.Primary = c.name, winner.name, true
			winner, value = c, v
		case isPrimary(winner):
			amb.Winner, amb.Loser, amb.Primary = winner.name, c.name, true
		default:
			amb.Winner, amb.Loser = winner.name, c.name
			s.QualityFlag.Raise(types.FlagSuspect)
		}
		r.n.logger.Debugf("normalizer [%s] record %d: %v", rec.Source, rec.Index, amb)
		r.notices = append(r.notices, amb)
	}
	return value
}

// DeriveVertical fills whichever of depth and pressure is missing from the
// other and marks the derived field.  defaultLatitude is used when the
// sample has no latitude.
func DeriveVertical(s *types.CanonicalSample, defaultLatitude float64) {
	lat := s.Latitude
	if !types.Present(lat) {
		lat = defaultLatitude
	}
	switch {
	case types.Present(s.PressureDbar) && !types.Present(s.DepthM):
		s.DepthM = seawater.Depth(s.PressureDbar, lat)
		s.DepthDerived = true
	case types.Present(s.DepthM) && !types.Present(s.PressureDbar):
		s.PressureDbar = seawater.Pressure(s.DepthM, lat)
		s.PressureDerived = true
	}
}
