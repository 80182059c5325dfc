package satellite

import (
	"math"
	"sort"
	"time"
)

// Grid is a single time slice of a gridded satellite field on a regular
// longitude/latitude grid.
type Grid struct {
	// Dimensions
	Time time.Time
	Lon  []float64
	Lat  []float64

	// Var is the name of the field the values were read from.
	Var string
	// Values holds len(Lat)*len(Lon) readings in row-major (lat, lon) order.
	// Missing readings are NaN.
	Values []float64
}

// At returns the value at latitude index i and longitude index j.
func (g *Grid) At(i, j int) float64 {
	return g.Values[i*len(g.Lon)+j]
}

// Crop returns the part of the grid inside the closed box
// [lonMin, lonMax] x [latMin, latMax]. The grid may be stored with either
// latitude order.
func (g *Grid) Crop(lonMin, lonMax, latMin, latMax float64) *Grid {
	lonIdx := indicesWithin(g.Lon, lonMin, lonMax)
	latIdx := indicesWithin(g.Lat, latMin, latMax)
	out := &Grid{
		Time:   g.Time,
		Var:    g.Var,
		Lon:    make([]float64, len(lonIdx)),
		Lat:    make([]float64, len(latIdx)),
		Values: make([]float64, 0, len(lonIdx)*len(latIdx)),
	}
	for k, j := range lonIdx {
		out.Lon[k] = g.Lon[j]
	}
	for k, i := range latIdx {
		out.Lat[k] = g.Lat[i]
		for _, j := range lonIdx {
			out.Values = append(out.Values, g.At(i, j))
		}
	}
	return out
}

func indicesWithin(coords []float64, lo, hi float64) []int {
	if lo > hi {
		lo, hi = hi, lo
	}
	var idx []int
	for i, c := range coords {
		if c >= lo && c <= hi {
			idx = append(idx, i)
		}
	}
	return idx
}

// Quantile returns the q-quantile (0 <= q <= 1) of the non-NaN values using
// linear interpolation between closest ranks. It returns NaN if there are no
// valid values.
func (g *Grid) Quantile(q float64) float64 {
	vals := g.valid()
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	q = math.Max(0, math.Min(1, q))
	pos := q * float64(len(vals)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return vals[lo] + (vals[hi]-vals[lo])*frac
}

// Mean returns the mean of the non-NaN values, or NaN if there are none.
func (g *Grid) Mean() float64 {
	vals := g.valid()
	if len(vals) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func (g *Grid) valid() []float64 {
	vals := make([]float64, 0, len(g.Values))
	for _, v := range g.Values {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	return vals
}
