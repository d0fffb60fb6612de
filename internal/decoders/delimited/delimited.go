// Package delimited decodes CSV and plain text tables whose first row names
// the columns.
package delimited

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/chrissnell/oceandata/internal/decoders"
	"github.com/chrissnell/oceandata/internal/formats"
	"github.com/chrissnell/oceandata/internal/log"
	"github.com/chrissnell/oceandata/internal/types"
)

// Decoder reads delimited tables
type Decoder struct {
	logger *zap.SugaredLogger
}

// New returns a delimited table decoder
func New(logger *zap.SugaredLogger) *Decoder {
	return &Decoder{logger: log.OrNop(logger)}
}

func (d *Decoder) Name() string {
	return string(formats.Delimited)
}

type columnKind int

const (
	kindUnknown columnKind = iota
	kindNumeric
	kindText
)

type row struct {
	line   int
	fields []string
}

// Decode reads a delimited table from r
func (d *Decoder) Decode(ctx context.Context, r io.Reader, source string) ([]types.RawRecord, []string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, types.Malformed(source, 0, "read failed: %v", err)
	}

	headerLine, header := firstLine(data)
	if header == "" {
		return nil, nil, types.Malformed(source, 0, "no header row")
	}
	delim := formats.Delimiter(header)

	var rows []row
	if delim == 0 {
		rows, err = whitespaceRows(ctx, data)
	} else {
		rows, err = csvRows(ctx, data, delim)
	}
	if err != nil {
		var mie *types.MalformedInputError
		if errors.As(err, &mie) {
			mie.Source = source
			return nil, nil, mie
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, err
		}
		return nil, nil, types.Malformed(source, 0, "%v", err)
	}
	if len(rows) == 0 {
		return nil, nil, types.Malformed(source, headerLine, "no header row")
	}

	variables, err := declare(rows[0].fields)
	if err != nil {
		return nil, nil, types.Malformed(source, rows[0].line, "%v", err)
	}

	var (
		records  []types.RawRecord
		warnings []string
	)
	// without a cast column the whole file is one cast named after the file
	// and its first record
	fallback := decoders.SyntheticCast(source, 0)
	kinds := make([]columnKind, len(variables))
	for i, v := range variables {
		if decoders.IsStationName(v.Name) || decoders.IsCastName(v.Name) {
			kinds[i] = kindText
		}
	}

next:
	for _, rw := range rows[1:] {
		if len(rw.fields) != len(variables) {
			return nil, nil, types.Malformed(source, rw.line, "row has %d fields, header has %d", len(rw.fields), len(variables))
		}
		rec := types.RawRecord{
			Source:    source,
			Index:     len(records),
			Line:      rw.line,
			Variables: variables,
			Values:    make(map[string]types.Value, len(variables)),
		}
		for i, tok := range rw.fields {
			v, ok := decoders.ParseValue(tok)
			if !ok {
				continue
			}
			if kinds[i] == kindUnknown {
				kinds[i] = kindNumeric
				if v.IsText {
					kinds[i] = kindText
				}
			}
			switch kinds[i] {
			case kindText:
				v = types.Text(strings.TrimSpace(tok))
			case kindNumeric:
				if v.IsText {
					warnings = append(warnings, fmt.Sprintf("line %d: %s: unparseable value %q", rw.line, variables[i].Name, tok))
					d.logger.Debugf("decoder [delimited] skipped line %d of [%s]", rw.line, source)
					continue next
				}
			}
			rec.Values[variables[i].Name] = v
		}
		decoders.Identify(&rec, fallback)
		records = append(records, rec)
	}

	d.logger.Debugf("decoder [delimited] decoded %d records from [%s] delimiter [%q]", len(records), source, delim)
	return records, warnings, nil
}

func declare(header []string) ([]types.Variable, error) {
	vars := make([]types.Variable, len(header))
	seen := make(map[string]bool, len(header))
	for i, field := range header {
		name, unit := formats.SplitNameUnit(field)
		if name == "" {
			return nil, fmt.Errorf("column %d has no name", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("column %q appears twice", name)
		}
		seen[name] = true
		vars[i] = types.Variable{Name: name, Unit: unit}
	}
	return vars, nil
}

func firstLine(data []byte) (int, string) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), decoders.MaxLineBytes)
	n := 0
	for sc.Scan() {
		n++
		t := strings.TrimSpace(sc.Text())
		if t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		return n, t
	}
	return n, ""
}

func csvRows(ctx context.Context, data []byte, delim rune) ([]row, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = delim
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var rows []row
	for {
		if len(rows)%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &types.MalformedInputError{Line: pe.Line, Reason: pe.Err.Error()}
			}
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if blank(fields) {
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		rows = append(rows, row{line: line, fields: fields})
	}
	return rows, nil
}

func whitespaceRows(ctx context.Context, data []byte) ([]row, error) {
	var rows []row
	err := decoders.ScanLines(ctx, bufio.NewScanner(bytes.NewReader(data)), func(lineNo int, line string) error {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "#") {
			return nil
		}
		fields := strings.Fields(t)
		if len(rows) == 0 {
			fields = formats.SplitHeader(t)
		}
		rows = append(rows, row{line: lineNo, fields: fields})
		return nil
	})
	return rows, err
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
