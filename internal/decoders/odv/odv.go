// Package odv decodes Ocean Data View spreadsheet exports.
//
// A file starts with a declaration block, optionally prefixed with "//":
//
//	//NumberOfMetaVariables = 2
//	//NumberOfVariables = 3
//	//[Meta Variables]
//	//1 = Station;;TEXT;20;0
//	//2 = Cruise;;TEXT;20;0
//	//[Variables]
//	//1 = Pressure;dbar;FLOAT;8;1
//	//...
//
// followed by an optional header row and data rows of exactly M+V fields.
package odv

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/chrissnell/oceandata/internal/decoders"
	"github.com/chrissnell/oceandata/internal/formats"
	"github.com/chrissnell/oceandata/internal/log"
	"github.com/chrissnell/oceandata/internal/types"
)

// MissingValue is the ODV convention for an absent numeric value; anything at
// or below it is treated as missing.
const MissingValue = -1e10

const (
	sectionNone = iota
	sectionMeta
	sectionData
)

// Decoder reads ODV spreadsheets
type Decoder struct {
	logger *zap.SugaredLogger
}

// New returns an ODV decoder
func New(logger *zap.SugaredLogger) *Decoder {
	return &Decoder{logger: log.OrNop(logger)}
}

func (d *Decoder) Name() string {
	return string(formats.ODV)
}

type column struct {
	types.Variable
	meta bool
	// declared is the name as written in the declaration; Name is made
	// unique when several columns share it
	declared string
}

type declaration struct {
	metaCount int
	varCount  int
	meta      map[int]column
	vars      map[int]column
}

func (decl *declaration) complete() error {
	if decl.metaCount < 0 {
		return fmt.Errorf("NumberOfMetaVariables is not declared")
	}
	if decl.varCount <= 0 {
		return fmt.Errorf("NumberOfVariables is not declared")
	}
	if len(decl.meta) != decl.metaCount {
		return fmt.Errorf("declared %d meta variables, found %d", decl.metaCount, len(decl.meta))
	}
	if len(decl.vars) != decl.varCount {
		return fmt.Errorf("declared %d variables, found %d", decl.varCount, len(decl.vars))
	}
	for i := 1; i <= decl.metaCount; i++ {
		if _, ok := decl.meta[i]; !ok {
			return fmt.Errorf("meta variable %d is not declared", i)
		}
	}
	for i := 1; i <= decl.varCount; i++ {
		if _, ok := decl.vars[i]; !ok {
			return fmt.Errorf("variable %d is not declared", i)
		}
	}
	return nil
}

func (decl *declaration) columns() []column {
	cols := make([]column, 0, decl.metaCount+decl.varCount)
	for i := 1; i <= decl.metaCount; i++ {
		cols = append(cols, decl.meta[i])
	}
	for i := 1; i <= decl.varCount; i++ {
		cols = append(cols, decl.vars[i])
	}

	// ODV exports repeat quality columns such as QV:SEADATANET after every
	// variable; later occurrences become "name#2", "name#3", ...
	seen := make(map[string]int, len(cols))
	for i := range cols {
		cols[i].declared = cols[i].Name
		seen[cols[i].Name]++
		if n := seen[cols[i].Name]; n > 1 {
			cols[i].Name = fmt.Sprintf("%s#%d", cols[i].Name, n)
		}
	}
	return cols
}

// Decode reads an ODV spreadsheet from r
func (d *Decoder) Decode(ctx context.Context, r io.Reader, source string) ([]types.RawRecord, []string, error) {
	decl := &declaration{metaCount: -1, meta: make(map[int]column), vars: make(map[int]column)}
	section := sectionNone

	var (
		cols      []column
		variables []types.Variable
		records   []types.RawRecord
		warnings  []string
		prevMeta  []string
		hasCruise bool
	)

	err := decoders.ScanLines(ctx, bufio.NewScanner(r), func(lineNo int, line string) error {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			return nil
		}

		if cols == nil {
			body, commented := strings.CutPrefix(trimmed, "//")
			body = strings.TrimSpace(body)
			handled, err := parseDeclarationLine(decl, &section, body)
			if err != nil {
				return types.Malformed(source, lineNo, "%v", err)
			}
			if handled || commented {
				return nil
			}

			// first row that is not part of the declaration
			if err := decl.complete(); err != nil {
				return types.Malformed(source, lineNo, "incomplete declaration before first data row: %v", err)
			}
			cols = decl.columns()
			variables = make([]types.Variable, len(cols))
			for i, c := range cols {
				variables[i] = c.Variable
				if strings.EqualFold(c.Name, "cruise") {
					hasCruise = true
				}
			}
			if isHeaderRow(splitRow(line), cols) {
				return nil
			}
		} else if strings.HasPrefix(trimmed, "//") {
			return nil
		}

		fields := splitRow(line)
		if len(fields) != len(cols) {
			return types.Malformed(source, lineNo, "row has %d fields, declaration has %d", len(fields), len(cols))
		}

		rec := types.RawRecord{
			Source:    source,
			Index:     len(records),
			Line:      lineNo,
			Variables: variables,
			Values:    make(map[string]types.Value, len(cols)),
		}
		meta := make([]string, decl.metaCount)
		for i, c := range cols {
			tok := fields[i]
			if c.meta {
				if tok == "" && prevMeta != nil {
					tok = prevMeta[i]
				}
				meta[i] = tok
			}
			v, ok, err := parseToken(tok, c)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("line %d: %s: %v", lineNo, c.Name, err))
				d.logger.Debugf("decoder [odv] skipped line %d of [%s]: %v", lineNo, source, err)
				return nil
			}
			if ok {
				rec.Values[c.Name] = v
			}
		}
		prevMeta = meta

		decoders.Identify(&rec, "")
		if rec.CastID == "" {
			rec.CastID = "1"
			if hasCruise {
				if cruise, ok := lookupFold(rec, "cruise"); ok {
					rec.CastID = rec.StationID + "_" + cruise
				}
			}
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if cols == nil {
		if cerr := decl.complete(); cerr != nil {
			return nil, nil, types.Malformed(source, 0, "incomplete declaration: %v", cerr)
		}
	}

	d.logger.Debugf("decoder [odv] decoded %d records from [%s]", len(records), source)
	return records, warnings, nil
}

// parseDeclarationLine applies body to decl and reports whether it was part
// of the declaration.
func parseDeclarationLine(decl *declaration, section *int, body string) (bool, error) {
	switch {
	case strings.EqualFold(body, "[Meta Variables]"):
		*section = sectionMeta
		return true, nil
	case strings.EqualFold(body, "[Variables]"):
		*section = sectionData
		return true, nil
	}

	key, val, ok := strings.Cut(body, "=")
	if !ok {
		return false, nil
	}
	key, val = strings.TrimSpace(key), strings.TrimSpace(val)

	switch key {
	case "NumberOfMetaVariables":
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return true, fmt.Errorf("invalid NumberOfMetaVariables %q", val)
		}
		decl.metaCount = n
		return true, nil
	case "NumberOfVariables":
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			return true, fmt.Errorf("invalid NumberOfVariables %q", val)
		}
		decl.varCount = n
		return true, nil
	}

	idx, err := strconv.Atoi(key)
	if err != nil {
		return false, nil
	}
	parts := strings.Split(val, ";")
	col := column{Variable: types.Variable{Name: strings.TrimSpace(parts[0])}}
	if col.Name == "" {
		return true, fmt.Errorf("variable %d has no name", idx)
	}
	if len(parts) > 1 {
		col.Unit = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		col.Text = strings.EqualFold(strings.TrimSpace(parts[2]), "TEXT")
	}

	switch *section {
	case sectionMeta:
		col.meta = true
		if idx < 1 || (decl.metaCount >= 0 && idx > decl.metaCount) {
			return true, fmt.Errorf("meta variable index %d out of range", idx)
		}
		decl.meta[idx] = col
	case sectionData:
		if idx < 1 || (decl.varCount > 0 && idx > decl.varCount) {
			return true, fmt.Errorf("variable index %d out of range", idx)
		}
		decl.vars[idx] = col
	default:
		return true, fmt.Errorf("variable %d declared outside a section", idx)
	}
	return true, nil
}

func splitRow(line string) []string {
	line = strings.TrimRight(line, "\r\n")
	sep := ";"
	if strings.Contains(line, "\t") {
		sep = "\t"
	}
	parts := strings.Split(line, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func isHeaderRow(fields []string, cols []column) bool {
	if len(fields) != len(cols) {
		return false
	}
	for i, f := range fields {
		if !strings.EqualFold(formats.StripUnit(f), cols[i].declared) {
			return false
		}
	}
	return true
}

func parseToken(tok string, c column) (types.Value, bool, error) {
	if decoders.IsMissing(tok) {
		return types.Value{}, false, nil
	}
	if c.Text {
		return types.Text(tok), true, nil
	}
	f, err := decoders.ParseNumber(tok)
	if err != nil {
		if c.meta {
			// undeclared-type metadata is kept verbatim
			return types.Text(tok), true, nil
		}
		return types.Value{}, false, fmt.Errorf("unparseable value %q", tok)
	}
	if f <= MissingValue || math.IsNaN(f) {
		return types.Value{}, false, nil
	}
	return types.Number(f), true, nil
}

func lookupFold(rec types.RawRecord, name string) (string, bool) {
	for _, v := range rec.Variables {
		if strings.EqualFold(v.Name, name) {
			if val, ok := rec.Values[v.Name]; ok {
				return val.String(), true
			}
		}
	}
	return "", false
}
