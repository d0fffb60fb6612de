package types

import (
	"strconv"
	"strings"
)

// Variable is a column or data variable as declared by the source file.
// Name and Unit are kept exactly as the source spelled them.
type Variable struct {
	Name string `json:"name"`
	Unit string `json:"unit,omitempty"`
	// Aliases carries alternate names the source attached to the variable,
	// such as netCDF standard_name and long_name attributes.
	Aliases []string `json:"aliases,omitempty"`
	// Text is set when the source declares the variable as textual.
	Text bool `json:"text,omitempty"`
}

// Value is one decoded token: either a number or a piece of text.
type Value struct {
	Num    float64
	Str    string
	IsText bool
}

// Number returns a numeric Value.
func Number(f float64) Value {
	return Value{Num: f}
}

// Text returns a textual Value.
func Text(s string) Value {
	return Value{Str: s, IsText: true}
}

// Float returns the numeric content of v, parsing text when it looks numeric.
func (v Value) Float() (float64, bool) {
	if !v.IsText {
		return v.Num, true
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// String renders v the way it would appear in a delimited file.
func (v Value) String() string {
	if v.IsText {
		return v.Str
	}
	return strconv.FormatFloat(v.Num, 'g', -1, 64)
}

// RawRecord is one instrument reading as decoded, before any unit or naming
// guarantees.  Values holds only the variables that were present; missing
// tokens are simply absent.
type RawRecord struct {
	Source    string
	Index     int
	Line      int
	StationID string
	CastID    string
	Variables []Variable
	Values    map[string]Value
}

// Value returns the value recorded for the named variable.
func (r RawRecord) Value(name string) (Value, bool) {
	v, ok := r.Values[name]
	return v, ok
}
