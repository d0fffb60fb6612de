package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chrissnell/oceandata/internal/types"
)

// odvMeta maps the canonical metadata variables onto ODV meta variables.
// The ODV names are ones the normalizer reads back to the same fields.
var odvMeta = []struct {
	canonical string
	name      string
	unit      string
	dataType  string
}{
	{types.VarStation, "Station", "", "TEXT"},
	{types.VarCast, "Cast", "", "TEXT"},
	{types.VarTimestamp, "time", "ISO-8601", "TEXT"},
	{types.VarLatitude, "Latitude", types.UnitLatitude, "DOUBLE"},
	{types.VarLongitude, "Longitude", types.UnitLongitude, "DOUBLE"},
}

func isMeta(name string) bool {
	for _, m := range odvMeta {
		if m.canonical == name {
			return true
		}
	}
	return false
}

func format(v types.Value) string {
	if v.IsText {
		return v.Str
	}
	return strconv.FormatFloat(v.Num, 'g', -1, 64)
}

// WriteODV writes ds as an ODV generic spreadsheet.  Derived depth or
// pressure values are left out so that reading the file back derives them
// again.
func WriteODV(w io.Writer, ds *types.Dataset) error {
	bw := bufio.NewWriter(w)
	vars := types.CanonicalVariables(ds.Samples)
	var data []types.Variable
	for _, v := range vars {
		if !isMeta(v.Name) {
			data = append(data, v)
		}
	}

	fmt.Fprintf(bw, "//<Creator>oceandata</Creator>\n")
	fmt.Fprintf(bw, "//<Source>%s</Source>\n", ds.Source)
	fmt.Fprintf(bw, "//NumberOfMetaVariables = %d\n", len(odvMeta))
	fmt.Fprintf(bw, "//NumberOfVariables = %d\n", len(data))
	fmt.Fprintf(bw, "//[Meta Variables]\n")
	for i, m := range odvMeta {
		fmt.Fprintf(bw, "//%d = %s;%s;%s\n", i+1, m.name, m.unit, m.dataType)
	}
	fmt.Fprintf(bw, "//[Variables]\n")
	for i, v := range data {
		dataType := "DOUBLE"
		if v.Text {
			dataType = "TEXT"
		}
		fmt.Fprintf(bw, "//%d = %s;%s;%s\n", i+1, v.Name, v.Unit, dataType)
	}

	header := make([]string, 0, len(odvMeta)+len(data))
	for _, m := range odvMeta {
		header = append(header, headerName(m.name, m.unit))
	}
	for _, v := range data {
		header = append(header, headerName(v.Name, v.Unit))
	}
	fmt.Fprintln(bw, strings.Join(header, "\t"))

	row := make([]string, len(header))
	for _, rec := range ds.Records() {
		for i, m := range odvMeta {
			if v, ok := rec.Values[m.canonical]; ok {
				row[i] = format(v)
			} else {
				// an empty metadata field would continue the previous row
				row[i] = "NaN"
			}
		}
		for i, v := range data {
			row[len(odvMeta)+i] = ""
			if val, ok := rec.Values[v.Name]; ok {
				row[len(odvMeta)+i] = format(val)
			}
		}
		fmt.Fprintln(bw, strings.Join(row, "\t"))
	}
	return bw.Flush()
}

func headerName(name, unit string) string {
	if unit == "" {
		return name
	}
	return name + " [" + unit + "]"
}

// WriteCSV writes ds as a comma separated table with "name [unit]" headers
func WriteCSV(w io.Writer, ds *types.Dataset) error {
	vars := types.CanonicalVariables(ds.Samples)
	cw := csv.NewWriter(w)

	header := make([]string, len(vars))
	for i, v := range vars {
		header[i] = headerName(v.Name, v.Unit)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("could not write csv header: %w", err)
	}

	row := make([]string, len(vars))
	for _, rec := range ds.Records() {
		for i, v := range vars {
			row[i] = ""
			if val, ok := rec.Values[v.Name]; ok {
				row[i] = format(val)
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("could not write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
