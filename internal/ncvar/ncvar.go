// Package ncvar decodes NetCDF variables into plain float64 and time.Time
// slices, applying the CF packing and fill value conventions.
package ncvar

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// Floats reads all values of the named variable, flattened in row-major
// order.
func Floats(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	return Decode(v, vg.Attributes())
}

// Slice reads the records [begin, limit) of the named variable along its
// first dimension, flattened in row-major order.
func Slice(vg api.VarGetter, begin, limit int64) ([]float64, error) {
	v, err := vg.GetSlice(begin, limit)
	if err != nil {
		return nil, err
	}
	return Decode(v, vg.Attributes())
}

// Decode flattens the raw value returned by the netcdf reader and applies
// _FillValue, missing_value, scale_factor and add_offset from attrs. Fill
// values become NaN.
func Decode(v any, attrs api.AttributeMap) ([]float64, error) {
	vals, err := flatten(v)
	if err != nil {
		return nil, err
	}
	fill, hasFill := attrFloat(attrs, "_FillValue")
	missing, hasMissing := attrFloat(attrs, "missing_value")
	scale, hasScale := attrFloat(attrs, "scale_factor")
	offset, hasOffset := attrFloat(attrs, "add_offset")
	for i, x := range vals {
		if (hasFill && x == fill) || (hasMissing && x == missing) {
			vals[i] = math.NaN()
			continue
		}
		if hasScale {
			x *= scale
		}
		if hasOffset {
			x += offset
		}
		vals[i] = x
	}
	return vals, nil
}

func flatten(v any) ([]float64, error) {
	switch v := v.(type) {
	case []float64:
		return convert(v), nil
	case []float32:
		return convert(v), nil
	case []int8:
		return convert(v), nil
	case []uint8:
		return convert(v), nil
	case []int16:
		return convert(v), nil
	case []uint16:
		return convert(v), nil
	case []int32:
		return convert(v), nil
	case []uint32:
		return convert(v), nil
	case []int64:
		return convert(v), nil
	case []uint64:
		return convert(v), nil
	case [][]float64:
		return convert2(v), nil
	case [][]float32:
		return convert2(v), nil
	case [][]int8:
		return convert2(v), nil
	case [][]uint8:
		return convert2(v), nil
	case [][]int16:
		return convert2(v), nil
	case [][]uint16:
		return convert2(v), nil
	case [][]int32:
		return convert2(v), nil
	case [][]uint32:
		return convert2(v), nil
	case [][]int64:
		return convert2(v), nil
	case [][]uint64:
		return convert2(v), nil
	case [][][]float64:
		return convert3(v), nil
	case [][][]float32:
		return convert3(v), nil
	case [][][]int8:
		return convert3(v), nil
	case [][][]uint8:
		return convert3(v), nil
	case [][][]int16:
		return convert3(v), nil
	case [][][]uint16:
		return convert3(v), nil
	case [][][]int32:
		return convert3(v), nil
	case [][][]uint32:
		return convert3(v), nil
	case [][][]int64:
		return convert3(v), nil
	case [][][]uint64:
		return convert3(v), nil
	case float64:
		return []float64{v}, nil
	case float32:
		return []float64{float64(v)}, nil
	case int8:
		return []float64{float64(v)}, nil
	case uint8:
		return []float64{float64(v)}, nil
	case int16:
		return []float64{float64(v)}, nil
	case uint16:
		return []float64{float64(v)}, nil
	case int32:
		return []float64{float64(v)}, nil
	case uint32:
		return []float64{float64(v)}, nil
	case int64:
		return []float64{float64(v)}, nil
	case uint64:
		return []float64{float64(v)}, nil
	}
	return nil, fmt.Errorf("unsupported variable type %T", v)
}

type number interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

func convert[T number](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func convert2[T number](v [][]T) []float64 {
	var out []float64
	if len(v) > 0 {
		out = make([]float64, 0, len(v)*len(v[0]))
	}
	for _, row := range v {
		for _, x := range row {
			out = append(out, float64(x))
		}
	}
	return out
}

func convert3[T number](v [][][]T) []float64 {
	var out []float64
	for _, plane := range v {
		out = append(out, convert2(plane)...)
	}
	return out
}

// attrFloat returns a numeric attribute. Single-element slices are accepted
// since some writers store scalars that way.
func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	vals, err := flatten(v)
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

// AttrString returns a string attribute of a variable, or "" if absent.
func AttrString(attrs api.AttributeMap, key string) string {
	if attrs == nil {
		return ""
	}
	v, ok := attrs.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Times reads the named variable as CF time coordinates. Values that are NaN
// (missing) decode to the zero time.
func Times(nc api.Group, name string) ([]time.Time, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	vals, err := Decode(v, vg.Attributes())
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	unit, ref, err := ParseTimeUnits(AttrString(vg.Attributes(), "units"))
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	return ToTimes(vals, unit, ref), nil
}

// ToTimes converts offsets counted in unit from ref into times.
func ToTimes(vals []float64, unit time.Duration, ref time.Time) []time.Time {
	out := make([]time.Time, len(vals))
	for i, x := range vals {
		if math.IsNaN(x) {
			continue
		}
		out[i] = ref.Add(time.Duration(math.Round(x * float64(unit)))).UTC()
	}
	return out
}

var refLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-1-2 15:04:05",
	"2006-1-2",
}

// ParseTimeUnits parses a CF units string such as
// "seconds since 1970-01-01 00:00:00". An empty string means seconds since
// the Unix epoch.
func ParseTimeUnits(s string) (time.Duration, time.Time, error) {
	if s == "" {
		return time.Second, time.Unix(0, 0).UTC(), nil
	}
	unitStr, refStr, ok := strings.Cut(s, " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q: missing \"since\"", s)
	}
	var unit time.Duration
	switch strings.ToLower(strings.TrimSpace(unitStr)) {
	case "seconds", "second", "secs", "sec", "s":
		unit = time.Second
	case "minutes", "minute", "mins", "min":
		unit = time.Minute
	case "hours", "hour", "hrs", "hr", "h":
		unit = time.Hour
	case "days", "day", "d":
		unit = 24 * time.Hour
	case "milliseconds", "millisecond", "msec", "ms":
		unit = time.Millisecond
	default:
		return 0, time.Time{}, fmt.Errorf("time units %q: unsupported unit %q", s, unitStr)
	}
	refStr = strings.TrimSpace(refStr)
	refStr = strings.TrimSuffix(refStr, " UTC")
	refStr = strings.TrimSuffix(refStr, "Z")
	refStr = strings.TrimSuffix(refStr, "+00:00")
	refStr = strings.TrimSpace(refStr)
	for _, layout := range refLayouts {
		if ref, err := time.ParseInLocation(layout, refStr, time.UTC); err == nil {
			return unit, ref, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("time units %q: unsupported reference time %q", s, refStr)
}
