// Package cnv decodes Sea-Bird SBE Data Processing .cnv cast files.
package cnv

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/oceandata/internal/decoders"
	"github.com/chrissnell/oceandata/internal/formats"
	"github.com/chrissnell/oceandata/internal/log"
	"github.com/chrissnell/oceandata/internal/types"
)

// Pseudo-variables added to every record from the header
const (
	VarLatitude  = "latitude"
	VarLongitude = "longitude"
	VarTime      = "time"
)

// StartTimeLayout is the layout of "# start_time" and "* NMEA UTC (Time)"
const StartTimeLayout = "Jan 2 2006 15:04:05"

// Decoder reads Sea-Bird CNV files
type Decoder struct {
	logger *zap.SugaredLogger
}

// New returns a CNV decoder
func New(logger *zap.SugaredLogger) *Decoder {
	return &Decoder{logger: log.OrNop(logger)}
}

func (d *Decoder) Name() string {
	return string(formats.CNV)
}

// Header is the parsed header block of a CNV file
type Header struct {
	NQuan     int
	Variables []types.Variable
	BadFlag   float64
	HasBad    bool
	Station   string
	Cast      string
	Latitude  float64
	Longitude float64
	StartTime time.Time

	// header values copied into every record; names the file declares
	// itself keep their per-scan values
	pseudo []string
}

func newHeader() *Header {
	return &Header{NQuan: -1, Latitude: math.NaN(), Longitude: math.NaN()}
}

// Decode reads a CNV file from r
func (d *Decoder) Decode(ctx context.Context, r io.Reader, source string) ([]types.RawRecord, []string, error) {
	h := newHeader()
	var (
		inHeader  = true
		names     = make(map[int]types.Variable)
		variables []types.Variable
		records   []types.RawRecord
		warnings  []string
		lastLine  int
	)

	err := decoders.ScanLines(ctx, bufio.NewScanner(r), func(lineNo int, line string) error {
		lastLine = lineNo
		trimmed := strings.TrimSpace(line)

		if inHeader {
			if strings.HasPrefix(trimmed, "*END*") {
				inHeader = false
				var err error
				variables, err = h.finish(names)
				if err != nil {
					return types.Malformed(source, lineNo, "%v", err)
				}
				if h.Station == "" {
					h.Station = decoders.SyntheticStation(source)
				}
				return nil
			}
			if trimmed == "" {
				return nil
			}
			if trimmed[0] != '*' && trimmed[0] != '#' {
				return types.Malformed(source, lineNo, "data before *END* header terminator")
			}
			if w, err := h.parseLine(trimmed, names); err != nil {
				return types.Malformed(source, lineNo, "%v", err)
			} else if w != "" {
				warnings = append(warnings, fmt.Sprintf("line %d: %s", lineNo, w))
			}
			return nil
		}

		if trimmed == "" {
			return nil
		}
		fields := strings.Fields(trimmed)
		if len(fields) != h.NQuan {
			return types.Malformed(source, lineNo, "row has %d values, header declares %d", len(fields), h.NQuan)
		}

		rec := types.RawRecord{
			Source:    source,
			Index:     len(records),
			Line:      lineNo,
			StationID: h.Station,
			CastID:    h.Cast,
			Variables: variables,
			Values:    make(map[string]types.Value, len(variables)),
		}
		for i, tok := range fields {
			name := variables[i].Name
			if decoders.IsMissing(tok) {
				continue
			}
			f, err := decoders.ParseNumber(tok)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("line %d: %s: unparseable value %q", lineNo, name, tok))
				d.logger.Debugf("decoder [cnv] skipped line %d of [%s]: %v", lineNo, source, err)
				return nil
			}
			if h.isBad(f) {
				continue
			}
			rec.Values[name] = types.Number(f)
		}
		h.addPseudo(rec.Values)
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if inHeader {
		return nil, nil, types.Malformed(source, lastLine, "missing *END* header terminator")
	}

	d.logger.Debugf("decoder [cnv] decoded %d records from [%s] station [%s] cast [%s]",
		len(records), source, h.Station, h.Cast)
	return records, warnings, nil
}

// parseLine applies one header line.  A non-empty return string is a
// recoverable problem with the line.
func (h *Header) parseLine(line string, names map[int]types.Variable) (string, error) {
	switch {
	case strings.HasPrefix(line, "**"):
		body := strings.TrimSpace(strings.TrimPrefix(line, "**"))
		key, val, ok := strings.Cut(body, ":")
		if !ok {
			return "", nil
		}
		val = strings.TrimSpace(val)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "station", "station name":
			h.Station = val
		case "cast", "cast number":
			h.Cast = val
		case "latitude":
			if lat, err := ParseCoordinate(val); err == nil && !h.hasLatitude() {
				h.Latitude = lat
			}
		case "longitude":
			if lon, err := ParseCoordinate(val); err == nil && !h.hasLongitude() {
				h.Longitude = lon
			}
		}
		return "", nil

	case strings.HasPrefix(line, "*"):
		body := strings.TrimSpace(strings.TrimPrefix(line, "*"))
		key, val, ok := strings.Cut(body, "=")
		if !ok {
			return "", nil
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		switch key {
		case "NMEA Latitude":
			lat, err := ParseCoordinate(val)
			if err != nil {
				return fmt.Sprintf("NMEA latitude: %v", err), nil
			}
			h.Latitude = lat
		case "NMEA Longitude":
			lon, err := ParseCoordinate(val)
			if err != nil {
				return fmt.Sprintf("NMEA longitude: %v", err), nil
			}
			h.Longitude = lon
		case "NMEA UTC (Time)":
			if h.StartTime.IsZero() {
				if t, err := ParseStartTime(val); err == nil {
					h.StartTime = t
				}
			}
		}
		return "", nil

	case strings.HasPrefix(line, "#"):
		body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
		key, val, ok := strings.Cut(body, "=")
		if !ok {
			return "", nil
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		switch {
		case key == "nquan":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return "", fmt.Errorf("invalid nquan %q", val)
			}
			h.NQuan = n
		case key == "bad_flag":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return "", fmt.Errorf("invalid bad_flag %q", val)
			}
			h.BadFlag, h.HasBad = f, true
		case key == "start_time":
			t, err := ParseStartTime(val)
			if err != nil {
				return fmt.Sprintf("start_time: %v", err), nil
			}
			h.StartTime = t
		case strings.HasPrefix(key, "name "):
			idx, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(key, "name ")))
			if err != nil || idx < 0 {
				return "", fmt.Errorf("invalid name index in %q", key)
			}
			v, err := ParseName(val)
			if err != nil {
				return "", err
			}
			names[idx] = v
		}
	}
	return "", nil
}

func (h *Header) finish(names map[int]types.Variable) ([]types.Variable, error) {
	if h.NQuan < 0 {
		return nil, fmt.Errorf("header does not declare nquan")
	}
	if len(names) != h.NQuan {
		return nil, fmt.Errorf("nquan = %d but %d names declared", h.NQuan, len(names))
	}
	seen := make(map[string]bool, h.NQuan)
	vars := make([]types.Variable, 0, h.NQuan+3)
	for i := 0; i < h.NQuan; i++ {
		v, ok := names[i]
		if !ok {
			return nil, fmt.Errorf("name %d is not declared", i)
		}
		if seen[v.Name] {
			return nil, fmt.Errorf("variable %s declared twice", v.Name)
		}
		seen[v.Name] = true
		vars = append(vars, v)
	}
	pseudo := []struct {
		ok bool
		v  types.Variable
	}{
		{h.hasLatitude(), types.Variable{Name: VarLatitude, Unit: types.UnitLatitude}},
		{h.hasLongitude(), types.Variable{Name: VarLongitude, Unit: types.UnitLongitude}},
		{!h.StartTime.IsZero(), types.Variable{Name: VarTime, Text: true}},
	}
	for _, p := range pseudo {
		if p.ok && !seen[p.v.Name] {
			vars = append(vars, p.v)
			h.pseudo = append(h.pseudo, p.v.Name)
		}
	}
	if h.Cast == "" {
		h.Cast = "1"
	}
	h.Variables = vars
	return vars, nil
}

func (h *Header) hasLatitude() bool  { return !math.IsNaN(h.Latitude) }
func (h *Header) hasLongitude() bool { return !math.IsNaN(h.Longitude) }

func (h *Header) isBad(f float64) bool {
	if !h.HasBad {
		return false
	}
	return f == h.BadFlag || math.Abs(f-h.BadFlag) <= 1e-6*math.Abs(h.BadFlag)
}

func (h *Header) addPseudo(values map[string]types.Value) {
	for _, name := range h.pseudo {
		switch name {
		case VarLatitude:
			values[name] = types.Number(h.Latitude)
		case VarLongitude:
			values[name] = types.Number(h.Longitude)
		case VarTime:
			values[name] = types.Text(h.StartTime.Format(time.RFC3339))
		}
	}
}

// ParseName parses the right-hand side of "# name i = token: long name [unit]".
// The token becomes the variable name, the long name an alias.
func ParseName(val string) (types.Variable, error) {
	token, long, _ := strings.Cut(val, ":")
	token = strings.TrimSpace(token)
	if token == "" {
		return types.Variable{}, fmt.Errorf("empty variable name in %q", val)
	}
	v := types.Variable{Name: token}
	long = strings.TrimSpace(long)
	if strings.HasSuffix(long, "]") {
		if i := strings.LastIndex(long, "["); i >= 0 {
			v.Unit = strings.TrimSpace(long[i+1 : len(long)-1])
			long = strings.TrimSpace(long[:i])
		}
	}
	if long != "" {
		v.Aliases = []string{long}
	}
	return v, nil
}

// ParseCoordinate parses an NMEA style position "DD MM.mm H" into signed
// decimal degrees.  Southern and western hemispheres are negative.
func ParseCoordinate(val string) (float64, error) {
	fields := strings.Fields(val)
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed position %q", val)
	}
	deg, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed degrees in %q", val)
	}
	v := math.Abs(deg)
	hemi := ""
	switch len(fields) {
	case 2:
		// "DD.ddd H"
		hemi = fields[1]
	default:
		minutes, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || minutes < 0 || minutes >= 60 {
			return 0, fmt.Errorf("malformed minutes in %q", val)
		}
		v += minutes / 60
		hemi = fields[2]
	}
	switch strings.ToUpper(hemi) {
	case "N", "E":
	case "S", "W":
		v = -v
	default:
		return 0, fmt.Errorf("unknown hemisphere %q", hemi)
	}
	if deg < 0 {
		v = -math.Abs(v)
	}
	return v, nil
}

// ParseStartTime parses "Mon DD YYYY HH:MM:SS", ignoring trailing text such
// as "[NMEA time, header]".
func ParseStartTime(val string) (time.Time, error) {
	fields := strings.Fields(val)
	if len(fields) < 4 {
		return time.Time{}, fmt.Errorf("malformed time %q", val)
	}
	return time.Parse(StartTimeLayout, strings.Join(fields[:4], " "))
}
