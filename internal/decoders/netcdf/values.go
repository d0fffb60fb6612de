package netcdf

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// array is a variable's values flattened in row-major order
type array struct {
	nums  []float64
	strs  []string
	shape []int
	text  bool
}

func (a *array) len() int {
	if a.text {
		return len(a.strs)
	}
	return len(a.nums)
}

// flatten converts the nested slices returned by the netCDF library into a
// flat array.  Strings are leaves, so a char variable loses its string
// length dimension.
func flatten(values any) (*array, error) {
	a := &array{}
	v := reflect.ValueOf(values)
	if !v.IsValid() {
		return nil, fmt.Errorf("variable has no values")
	}
	for t := v.Type(); t.Kind() == reflect.Slice; t = t.Elem() {
		a.shape = append(a.shape, 0)
		if t.Elem().Kind() == reflect.String {
			a.text = true
		}
	}
	if v.Kind() == reflect.String {
		a.text = true
	}
	if err := a.walk(v, 0); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *array) walk(v reflect.Value, depth int) error {
	if v.Kind() == reflect.Slice {
		n := v.Len()
		if a.shape[depth] == 0 {
			a.shape[depth] = n
		} else if a.shape[depth] != n {
			return fmt.Errorf("ragged array at dimension %d", depth)
		}
		for i := 0; i < n; i++ {
			if err := a.walk(v.Index(i), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if v.Kind() == reflect.String {
		a.strs = append(a.strs, strings.TrimRight(v.String(), "\x00 "))
		return nil
	}
	f, ok := number(v)
	if !ok {
		return fmt.Errorf("unsupported value type %s", v.Type())
	}
	a.nums = append(a.nums, f)
	return nil
}

func number(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	}
	return 0, false
}

// attrFloats converts a scalar or slice attribute value to float64s
func attrFloats(val any) []float64 {
	v := reflect.ValueOf(val)
	if !v.IsValid() {
		return nil
	}
	if v.Kind() == reflect.Slice {
		out := make([]float64, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			if f, ok := number(v.Index(i)); ok {
				out = append(out, f)
			}
		}
		return out
	}
	if f, ok := number(v); ok {
		return []float64{f}
	}
	return nil
}

// sameValue compares a raw value with a fill value at the precision of the
// stored type
func sameValue(raw, fill float64) bool {
	if math.IsNaN(fill) {
		return math.IsNaN(raw)
	}
	if raw == fill {
		return true
	}
	return math.Abs(raw-fill) <= 1e-6*math.Abs(fill)
}
