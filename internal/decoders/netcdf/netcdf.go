// Package netcdf decodes classic and netCDF-4 files holding point series or
// [profile, level] profile collections.
package netcdf

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/soniakeys/meeus/v3/julian"
	"go.uber.org/zap"

	"github.com/chrissnell/oceandata/internal/decoders"
	"github.com/chrissnell/oceandata/internal/formats"
	"github.com/chrissnell/oceandata/internal/log"
	"github.com/chrissnell/oceandata/internal/types"
)

// Group is the part of a netCDF group the decoder reads.  api.Group
// satisfies it.
type Group interface {
	Attributes() api.AttributeMap
	ListVariables() []string
	GetVariable(name string) (*api.Variable, error)
	ListDimensions() []string
	Close()
}

// coordinateNames are standard_name or axis values that mark a coordinate
var coordinateNames = map[string]bool{
	"time": true, "depth": true, "sea_water_pressure": true, "latitude": true, "longitude": true,
	"t": true, "z": true, "x": true, "y": true,
}

// Decoder reads netCDF files
type Decoder struct {
	logger *zap.SugaredLogger
	open   func(path string) (Group, error)
}

// New returns a netCDF decoder
func New(logger *zap.SugaredLogger) *Decoder {
	return &Decoder{
		logger: log.OrNop(logger),
		open: func(path string) (Group, error) {
			return netcdf.Open(path)
		},
	}
}

func (d *Decoder) Name() string {
	return string(formats.NetCDF)
}

// variable is one decoded netCDF variable ready to be spread over records
type variable struct {
	types.Variable
	dims []string
	data *array
	// isTime is set for "<unit> since <epoch>" variables
	isTime bool
	epoch  time.Time
	perDay float64
	coord  bool
}

// DecodeFile opens path and decodes it
func (d *Decoder) DecodeFile(ctx context.Context, path string) ([]types.RawRecord, []string, error) {
	g, err := d.open(path)
	if err != nil {
		return nil, nil, types.Malformed(path, 0, "unreadable netCDF header: %v", err)
	}
	defer g.Close()
	return d.DecodeGroup(ctx, g, path)
}

// DecodeGroup decodes an already opened group
func (d *Decoder) DecodeGroup(ctx context.Context, g Group, source string) ([]types.RawRecord, []string, error) {
	var warnings []string

	var coords, values []*variable
	for _, name := range g.ListVariables() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		raw, err := g.GetVariable(name)
		if err != nil {
			return nil, nil, types.Malformed(source, 0, "variable %s: %v", name, err)
		}
		v, err := newVariable(name, raw)
		if err != nil {
			return nil, nil, types.Malformed(source, 0, "variable %s: %v", name, err)
		}
		if v.coord {
			coords = append(coords, v)
		} else {
			values = append(values, v)
		}
	}
	vars := append(coords, values...)
	if len(vars) == 0 {
		return nil, nil, types.Malformed(source, 0, "file has no variables")
	}

	station, cast := globalIdentifiers(g.Attributes())

	var series []*variable
	var constants []*variable
	profileDim, levelDim := "", ""
	for _, v := range vars {
		switch len(v.dims) {
		case 0:
			constants = append(constants, v)
		case 1:
			series = append(series, v)
		case 2:
			if profileDim == "" {
				profileDim, levelDim = v.dims[0], v.dims[1]
			}
			series = append(series, v)
		default:
			warnings = append(warnings, fmt.Sprintf("variable %s: %d dimensions are not supported, skipped", v.Name, len(v.dims)))
		}
	}

	ids := identifiers{station: station, cast: cast}
	var records []types.RawRecord
	if profileDim != "" {
		records, warnings = d.profiles(source, profileDim, levelDim, series, constants, ids, warnings)
	} else {
		records, warnings = d.points(source, g.ListDimensions(), series, constants, ids, warnings)
	}

	d.logger.Debugf("decoder [netcdf] decoded %d records from [%s]", len(records), source)
	return records, warnings, nil
}

// points lays out a sample series: every record is one index along the
// dimension shared by most one-dimensional variables.
func (d *Decoder) points(source string, dimOrder []string, series, constants []*variable, ids identifiers, warnings []string) ([]types.RawRecord, []string) {
	counts := make(map[string]int)
	for _, v := range series {
		counts[v.dims[0]]++
	}
	dim, best := "", 0
	for _, name := range dimOrder {
		if counts[name] > best {
			dim, best = name, counts[name]
		}
	}
	if dim == "" {
		for _, v := range series {
			if counts[v.dims[0]] > best {
				dim, best = v.dims[0], counts[v.dims[0]]
			}
		}
	}

	var onDim []*variable
	for _, v := range series {
		if v.dims[0] == dim {
			onDim = append(onDim, v)
		} else {
			warnings = append(warnings, fmt.Sprintf("variable %s: dimension %s is not the sample dimension %s, skipped", v.Name, v.dims[0], dim))
		}
	}
	used := append(append([]*variable{}, onDim...), constants...)
	declared := declare(used)

	n := 0
	if len(onDim) > 0 {
		n = onDim[0].data.len()
	} else if len(constants) > 0 {
		n = 1
	}
	records := make([]types.RawRecord, 0, n)
	for i := 0; i < n; i++ {
		rec := newRecord(source, i, declared)
		for _, v := range onDim {
			v.put(rec.Values, i)
		}
		for _, v := range constants {
			v.put(rec.Values, 0)
		}
		ids.apply(&rec, decoders.SyntheticCast(source, 0))
		records = append(records, rec)
	}
	return records, warnings
}

// profiles lays out [profile, level] collections: one record per level of
// every profile, with profile-dimension variables as per-profile metadata.
func (d *Decoder) profiles(source, profileDim, levelDim string, series, constants []*variable, ids identifiers, warnings []string) ([]types.RawRecord, []string) {
	var grid, perProfile, perLevel []*variable
	for _, v := range series {
		switch {
		case len(v.dims) == 2 && v.dims[0] == profileDim && v.dims[1] == levelDim:
			grid = append(grid, v)
		case len(v.dims) == 1 && v.dims[0] == profileDim:
			perProfile = append(perProfile, v)
		case len(v.dims) == 1 && v.dims[0] == levelDim:
			perLevel = append(perLevel, v)
		default:
			warnings = append(warnings, fmt.Sprintf("variable %s: dimensions %v do not match [%s, %s], skipped", v.Name, v.dims, profileDim, levelDim))
		}
	}
	used := make([]*variable, 0, len(series)+len(constants))
	used = append(used, perProfile...)
	used = append(used, perLevel...)
	used = append(used, grid...)
	used = append(used, constants...)
	declared := declare(used)

	nProfiles, nLevels := grid[0].data.shape[0], grid[0].data.shape[1]
	records := make([]types.RawRecord, 0, nProfiles*nLevels)
	for p := 0; p < nProfiles; p++ {
		for l := 0; l < nLevels; l++ {
			rec := newRecord(source, len(records), declared)
			for _, v := range perProfile {
				v.put(rec.Values, p)
			}
			for _, v := range perLevel {
				v.put(rec.Values, l)
			}
			for _, v := range grid {
				v.put(rec.Values, p*nLevels+l)
			}
			for _, v := range constants {
				v.put(rec.Values, 0)
			}
			if !hasAny(rec.Values, grid) {
				// padding levels past the end of a shorter profile
				continue
			}
			ids.apply(&rec, decoders.SyntheticCast(source, p))
			records = append(records, rec)
		}
	}
	return records, warnings
}

func newRecord(source string, index int, declared []types.Variable) types.RawRecord {
	return types.RawRecord{Source: source, Index: index, Variables: declared, Values: make(map[string]types.Value)}
}

func declare(used []*variable) []types.Variable {
	declared := make([]types.Variable, len(used))
	for i, v := range used {
		declared[i] = v.Variable
	}
	return declared
}

func hasAny(values map[string]types.Value, vars []*variable) bool {
	for _, v := range vars {
		if _, ok := values[v.Name]; ok {
			return true
		}
	}
	return false
}

// identifiers are the station and cast named by global attributes
type identifiers struct {
	station string
	cast    string
}

// apply sets the record's identifiers.  Variables of the record win over
// global attributes, which win over synthetic identifiers.
func (ids identifiers) apply(rec *types.RawRecord, fallbackCast string) {
	station, cast := decoders.FromValues(*rec)
	rec.StationID = first(station, ids.station, decoders.SyntheticStation(rec.Source))
	rec.CastID = first(cast, ids.cast, fallbackCast)
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func newVariable(name string, raw *api.Variable) (*variable, error) {
	data, err := flatten(raw.Values)
	if err != nil {
		return nil, err
	}
	v := &variable{Variable: types.Variable{Name: name, Text: data.text}, data: data}

	// char variables carry a trailing string length dimension
	v.dims = raw.Dimensions
	if data.text && len(v.dims) > len(data.shape) {
		v.dims = v.dims[:len(data.shape)]
	}

	attrs := raw.Attributes
	if attrs == nil {
		return v, v.scale(nil)
	}
	if u, ok := stringAttr(attrs, "units"); ok {
		v.Unit = u
	}
	for _, key := range []string{"standard_name", "long_name"} {
		if s, ok := stringAttr(attrs, key); ok && s != "" && s != name {
			v.Aliases = append(v.Aliases, s)
		}
	}
	std, _ := stringAttr(attrs, "standard_name")
	axis, _ := stringAttr(attrs, "axis")
	v.coord = len(v.dims) == 1 && (v.dims[0] == name || coordinateNames[strings.ToLower(std)] || coordinateNames[strings.ToLower(axis)])

	if !data.text {
		if epoch, perDay, ok := ParseEpochUnits(v.Unit); ok {
			v.epoch, v.perDay, v.isTime = epoch, perDay, true
			v.Text = true
		}
	}
	return v, v.scale(attrs)
}

// scale applies fill values, scale_factor and add_offset in place
func (v *variable) scale(attrs api.AttributeMap) error {
	if v.data.text {
		return nil
	}
	factor, offset := 1.0, 0.0
	var fills []float64
	if attrs != nil {
		if val, ok := attrs.Get("scale_factor"); ok {
			if f := attrFloats(val); len(f) == 1 {
				factor = f[0]
			}
		}
		if val, ok := attrs.Get("add_offset"); ok {
			if f := attrFloats(val); len(f) == 1 {
				offset = f[0]
			}
		}
		for _, key := range []string{"_FillValue", "missing_value"} {
			if val, ok := attrs.Get(key); ok {
				fills = append(fills, attrFloats(val)...)
			}
		}
	}
	for i, raw := range v.data.nums {
		missing := math.IsNaN(raw)
		for _, fill := range fills {
			if sameValue(raw, fill) {
				missing = true
			}
		}
		if missing {
			v.data.nums[i] = math.NaN()
			continue
		}
		v.data.nums[i] = raw*factor + offset
	}
	return nil
}

// put stores element i of v into values, skipping missing elements
func (v *variable) put(values map[string]types.Value, i int) {
	if i >= v.data.len() {
		return
	}
	if v.data.text {
		if s := v.data.strs[i]; s != "" {
			values[v.Name] = types.Text(s)
		}
		return
	}
	f := v.data.nums[i]
	if math.IsNaN(f) {
		return
	}
	if v.isTime {
		values[v.Name] = types.Text(EpochTime(v.epoch, v.perDay, f).Format(time.RFC3339Nano))
		return
	}
	values[v.Name] = types.Number(f)
}

func stringAttr(attrs api.AttributeMap, key string) (string, bool) {
	val, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	s, ok := val.(string)
	return strings.TrimRight(s, "\x00 "), ok
}

func globalIdentifiers(attrs api.AttributeMap) (station, cast string) {
	if attrs == nil {
		return "", ""
	}
	for _, key := range attrs.Keys() {
		val, _ := attrs.Get(key)
		var s string
		switch t := val.(type) {
		case string:
			s = strings.TrimSpace(t)
		default:
			if f := attrFloats(val); len(f) == 1 {
				s = strconv.FormatFloat(f[0], 'f', -1, 64)
			}
		}
		if s == "" {
			continue
		}
		switch {
		case station == "" && decoders.IsStationName(key):
			station = s
		case cast == "" && decoders.IsCastName(key):
			cast = s
		}
	}
	return station, cast
}

var epochLayouts = []string{
	"2006-1-2T15:4:5Z07:00",
	"2006-1-2T15:4:5",
	"2006-1-2 15:4:5Z07:00",
	"2006-1-2 15:4:5 -07:00",
	"2006-1-2 15:4:5",
	"2006-1-2 15:4",
	"2006-1-2",
}

// ParseEpochUnits parses CF time units such as "days since 1950-01-01 00:00:00"
// and returns the epoch and the number of units per day.
func ParseEpochUnits(units string) (time.Time, float64, bool) {
	unit, epoch, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return time.Time{}, 0, false
	}
	var perDay float64
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "days", "day", "d":
		perDay = 1
	case "hours", "hour", "hrs", "hr", "h":
		perDay = 24
	case "minutes", "minute", "mins", "min":
		perDay = 24 * 60
	case "seconds", "second", "secs", "sec", "s":
		perDay = 24 * 60 * 60
	default:
		return time.Time{}, 0, false
	}
	epoch = strings.TrimSpace(epoch)
	epoch = strings.TrimSuffix(strings.TrimSuffix(epoch, " UTC"), " GMT")
	for _, layout := range epochLayouts {
		if t, err := time.Parse(layout, epoch); err == nil {
			return t.UTC(), perDay, true
		}
	}
	return time.Time{}, 0, false
}

// EpochTime converts an offset in units of 1/perDay days since epoch into a
// UTC time, rounded to the millisecond.
func EpochTime(epoch time.Time, perDay, offset float64) time.Time {
	jd := julian.TimeToJD(epoch) + offset/perDay
	return julian.JDToTime(jd).UTC().Round(time.Millisecond)
}
