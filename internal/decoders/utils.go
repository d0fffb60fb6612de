package decoders

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chrissnell/oceandata/internal/formats"
	"github.com/chrissnell/oceandata/internal/types"
)

// MaxLineBytes bounds a single input line
const MaxLineBytes = 1 << 20

// missingTokens are the spellings of "no value" accepted in every text format
var missingTokens = map[string]bool{
	"":    true,
	"na":  true,
	"nan": true,
	"n/a": true,
	"-":   true,
}

// IsMissing reports whether tok denotes an absent value.
func IsMissing(tok string) bool {
	return missingTokens[strings.ToLower(strings.TrimSpace(tok))]
}

// ParseNumber parses a numeric token.  Decimal commas are accepted when the
// token contains no dot.
func ParseNumber(tok string) (float64, error) {
	t := strings.TrimSpace(tok)
	if strings.Contains(t, ",") && !strings.Contains(t, ".") {
		t = strings.Replace(t, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) {
		return 0, fmt.Errorf("infinite value %q", tok)
	}
	return f, nil
}

// ParseValue converts a token into a Value.  Numeric-looking tokens become
// numbers, everything else text.  ok is false for missing tokens.
func ParseValue(tok string) (types.Value, bool) {
	if IsMissing(tok) {
		return types.Value{}, false
	}
	if f, err := ParseNumber(tok); err == nil {
		if math.IsNaN(f) {
			return types.Value{}, false
		}
		return types.Number(f), true
	}
	return types.Text(strings.TrimSpace(tok)), true
}

var stationNames = map[string]bool{
	"station": true, "station_id": true, "stationid": true, "stn": true, "station name": true,
	"station_name": true, "site": true, "platform_code": true, "platform": true,
}

var castNames = map[string]bool{
	"cast": true, "cast_id": true, "castid": true, "cast number": true, "cast_number": true,
	"profile": true, "profile_id": true, "cycle_number": true,
}

// IsStationName reports whether a variable carries the station identifier.
func IsStationName(name string) bool {
	return stationNames[normalizeIdentName(name)]
}

// IsCastName reports whether a variable carries the cast identifier.
func IsCastName(name string) bool {
	return castNames[normalizeIdentName(name)]
}

func normalizeIdentName(name string) string {
	return strings.ToLower(strings.TrimSpace(formats.StripUnit(name)))
}

// SyntheticStation derives a station identifier from a file name.
func SyntheticStation(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SyntheticCast derives a cast identifier from a file name and record index.
func SyntheticCast(source string, index int) string {
	return fmt.Sprintf("%s-%d", SyntheticStation(source), index)
}

// FromValues returns the station and cast identifiers carried by the
// record's own variables.
func FromValues(rec types.RawRecord) (station, cast string) {
	for _, v := range rec.Variables {
		val, ok := rec.Values[v.Name]
		if !ok {
			continue
		}
		switch {
		case station == "" && IsStationName(v.Name):
			station = strings.TrimSpace(val.String())
		case cast == "" && IsCastName(v.Name):
			cast = strings.TrimSpace(val.String())
		}
	}
	return station, cast
}

// Identify fills StationID and CastID on rec from its values, using the file
// name for a missing station and fallbackCast for a missing cast.
func Identify(rec *types.RawRecord, fallbackCast string) {
	station, cast := FromValues(*rec)
	if rec.StationID == "" {
		rec.StationID = station
	}
	if rec.CastID == "" {
		rec.CastID = cast
	}
	if rec.StationID == "" {
		rec.StationID = SyntheticStation(rec.Source)
	}
	if rec.CastID == "" {
		rec.CastID = fallbackCast
	}
}

// ScanLines calls fn for every line read by sc with its 1-based line number.  The
// context is checked between lines; a read error aborts the scan.
func ScanLines(ctx context.Context, sc *bufio.Scanner, fn func(lineNo int, line string) error) error {
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := fn(lineNo, strings.TrimRight(sc.Text(), "\r")); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read failed after line %d: %w", lineNo, err)
	}
	return ctx.Err()
}
