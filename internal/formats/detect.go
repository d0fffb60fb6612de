// Package formats selects the decoder for an input file from its extension
// and, for ambiguous extensions, from a bounded prefix of its content.
package formats

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/chrissnell/oceandata/internal/types"
)

// Format identifies one supported input format
type Format string

const (
	ODV       Format = "odv"
	CNV       Format = "cnv"
	Delimited Format = "delimited"
	NetCDF    Format = "netcdf"
)

// SniffBytes is the largest prefix DetectFile reads
const SniffBytes = 4096

// ctdTokens are column names that identify a delimited CTD or bottle table.
var ctdTokens = []string{
	"pressure", "pres", "prdm", "prde", "prsm", "ctdprs",
	"depth", "depsm", "depth_m",
	"temperature", "temp", "t090c", "t190c", "t068c", "ctdtmp", "pot. temp.",
	"salinity", "sal", "sal00", "sal11", "psal", "salnty", "ctdsal",
	"pressure_dbar", "temperature_c", "salinity_psu",
}

// DetectFile opens path, reads at most SniffBytes and calls Detect.
func DetectFile(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".odv", ".nc", ".cdf", ".netcdf", ".cnv":
		return Detect(path, nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, SniffBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return Detect(path, buf[:n])
}

// Detect returns the format of path.  The extension decides when it is
// unambiguous; .txt and .csv files are identified from sniff.
func Detect(path string, sniff []byte) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".odv":
		return ODV, nil
	case ".nc", ".cdf", ".netcdf":
		return NetCDF, nil
	case ".cnv":
		return CNV, nil
	case ".txt", ".csv":
		return sniffContent(path, sniff)
	case "":
		return "", &types.UnsupportedFormatError{Path: path, Reason: "file has no extension"}
	default:
		return "", &types.UnsupportedFormatError{Path: path, Reason: "unknown extension " + ext}
	}
}

func sniffContent(path string, sniff []byte) (Format, error) {
	if len(bytes.TrimSpace(sniff)) == 0 {
		return "", &types.UnsupportedFormatError{Path: path, Reason: "empty content"}
	}
	if bytes.HasPrefix(sniff, []byte("CDF\x01")) || bytes.HasPrefix(sniff, []byte("CDF\x02")) ||
		bytes.HasPrefix(sniff, []byte("\x89HDF")) {
		return NetCDF, nil
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(sniff))
	sc.Buffer(make([]byte, 0, len(sniff)+1), len(sniff)+1)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	if looksODV(lines) {
		return ODV, nil
	}
	if looksCNV(lines) {
		return CNV, nil
	}
	if looksDelimited(lines) {
		return Delimited, nil
	}
	return "", &types.UnsupportedFormatError{Path: path, Reason: "content matches no known layout"}
}

func looksODV(lines []string) bool {
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if strings.HasPrefix(t, "//") {
			return true
		}
		if strings.HasPrefix(t, "NumberOfVariables") || strings.HasPrefix(t, "NumberOfMetaVariables") {
			return true
		}
	}
	return false
}

func looksCNV(lines []string) bool {
	for _, l := range lines {
		t := strings.TrimSpace(l)
		switch {
		case strings.HasPrefix(t, "* Sea-Bird"),
			strings.HasPrefix(t, "*END*"),
			strings.HasPrefix(t, "# nquan"),
			strings.HasPrefix(t, "# name 0 ="):
			return true
		}
	}
	return false
}

func looksDelimited(lines []string) bool {
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		fields := SplitHeader(l)
		if len(fields) < 2 {
			return false
		}
		for _, f := range fields {
			if IsCTDToken(f) {
				return true
			}
		}
		return false
	}
	return false
}

// IsCTDToken reports whether a header field names a known CTD variable.
// Units in brackets or parentheses are ignored.
func IsCTDToken(field string) bool {
	name := strings.ToLower(strings.TrimSpace(StripUnit(field)))
	for _, tok := range ctdTokens {
		if name == tok {
			return true
		}
	}
	return false
}

// StripUnit removes a trailing "[unit]" or "(unit)" from a header field.
func StripUnit(field string) string {
	name, _ := SplitNameUnit(field)
	return name
}

// SplitNameUnit splits "salinity [PSU]" or "salinity (PSU)" into name and unit.
func SplitNameUnit(field string) (string, string) {
	f := strings.TrimSpace(field)
	for _, pair := range [][2]string{{"[", "]"}, {"(", ")"}} {
		if strings.HasSuffix(f, pair[1]) {
			if i := strings.LastIndex(f, pair[0]); i > 0 {
				return strings.TrimSpace(f[:i]), strings.TrimSpace(f[i+1 : len(f)-1])
			}
		}
	}
	return f, ""
}

// Delimiter picks the delimiter of a header line: tab, then semicolon, then
// comma, and whitespace when none of them occur.  It returns 0 for whitespace.
func Delimiter(line string) rune {
	best, bestCount := rune(0), 0
	for _, d := range []rune{'\t', ';', ','} {
		if c := strings.Count(line, string(d)); c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}

// headerFieldRe matches one whitespace separated header field, keeping a
// following "[unit]" or "(unit)" with its name.
var headerFieldRe = regexp.MustCompile(`\S+(?:\s*[\[(][^\])]*[\])])?`)

// SplitHeader splits a header line using Delimiter.  On whitespace separated
// headers "name [unit]" stays one field.
func SplitHeader(line string) []string {
	d := Delimiter(line)
	if d == 0 {
		return headerFieldRe.FindAllString(strings.TrimSpace(line), -1)
	}
	return SplitLine(line, d)
}

// SplitLine splits a line on d, or on runs of whitespace when d is 0.
func SplitLine(line string, d rune) []string {
	line = strings.TrimRight(line, "\r\n")
	if d == 0 {
		return strings.Fields(line)
	}
	parts := strings.Split(line, string(d))
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
