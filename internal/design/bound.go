package design

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Stat names the statistic a Bound is derived from.
type Stat int

const (
	// Literal bounds carry their value directly.
	Literal Stat = iota
	Min
	Max
	Mean
	Median
	// Percentile bounds use Bound.Value as the percentile in [0, 100].
	Percentile
)

// Bound is one end of a colormap value range: either a literal number or a
// statistic computed from the data being drawn.
type Bound struct {
	Stat  Stat
	Value float64
}

// Sampler is the data a derived Bound is computed from.
type Sampler interface {
	// Quantile returns the q-quantile of the valid values, 0 <= q <= 1.
	Quantile(q float64) float64
	Mean() float64
}

// ParseBound parses a configuration value. Numbers and numeric strings are
// literals; "min", "max", "mean", "median" and "pNN" (e.g. "p99", "p2.5")
// are derived statistics.
func ParseBound(v any) (Bound, error) {
	switch v := v.(type) {
	case int:
		return Bound{Value: float64(v)}, nil
	case int64:
		return Bound{Value: float64(v)}, nil
	case float64:
		return Bound{Value: v}, nil
	case float32:
		return Bound{Value: float64(v)}, nil
	case string:
		return parseBoundString(v)
	case nil:
		return Bound{}, fmt.Errorf("value range bound is missing")
	}
	return Bound{}, fmt.Errorf("value range bound %v: unsupported type %T", v, v)
}

func parseBoundString(s string) (Bound, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Bound{Value: f}, nil
	}
	switch strings.ToLower(s) {
	case "min":
		return Bound{Stat: Min}, nil
	case "max":
		return Bound{Stat: Max}, nil
	case "mean":
		return Bound{Stat: Mean}, nil
	case "median":
		return Bound{Stat: Median}, nil
	}
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "p"); ok {
		p, err := strconv.ParseFloat(rest, 64)
		if err == nil && p >= 0 && p <= 100 {
			return Bound{Stat: Percentile, Value: p}, nil
		}
	}
	return Bound{}, fmt.Errorf("value range bound %q is neither a number nor one of min, max, mean, median, pNN", s)
}

// Resolve returns the bound's value for the given data. Derived bounds
// resolve to NaN when there is no data.
func (b Bound) Resolve(s Sampler) float64 {
	if b.Stat == Literal {
		return b.Value
	}
	if s == nil {
		return math.NaN()
	}
	switch b.Stat {
	case Min:
		return s.Quantile(0)
	case Max:
		return s.Quantile(1)
	case Mean:
		return s.Mean()
	case Median:
		return s.Quantile(0.5)
	case Percentile:
		return s.Quantile(b.Value / 100)
	}
	return math.NaN()
}

func (b Bound) String() string {
	switch b.Stat {
	case Min:
		return "min"
	case Max:
		return "max"
	case Mean:
		return "mean"
	case Median:
		return "median"
	case Percentile:
		return "p" + strconv.FormatFloat(b.Value, 'g', -1, 64)
	}
	return strconv.FormatFloat(b.Value, 'g', -1, 64)
}
