package satellite

import (
	"errors"
	"fmt"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/observingClouds/eurec4a-movies/internal/ncvar"
)

// ErrNoSample is returned when a dataset has no time step within the
// requested tolerance.
var ErrNoSample = errors.New("no sample within tolerance")

// Dataset gives access to a gridded field one time step at a time.
type Dataset interface {
	// Nearest returns the time step closest to t, or ErrNoSample if the
	// closest one is further than tol away.
	Nearest(t time.Time, tol time.Duration) (*Grid, error)
	Close() error
}

// File is a Dataset backed by a NetCDF file. Coordinates are read when the
// file is opened; field values are only read for the requested time step.
type File struct {
	nc    api.Group
	lon   []float64
	lat   []float64
	times []time.Time
	name  string
	field api.VarGetter
}

var (
	lonNames  = []string{"lon", "longitude"}
	latNames  = []string{"lat", "latitude"}
	timeNames = []string{"time", "t"}
)

// Open opens a NetCDF file holding a (time, lat, lon) field. The field is the
// first variable with three dimensions.
func Open(filePath string) (*File, error) {
	nc, err := netcdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	f, err := newFile(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return f, nil
}

func newFile(nc api.Group) (*File, error) {
	f := &File{nc: nc}
	vars := nc.ListVariables()
	lonVar, err := firstOf(vars, lonNames)
	if err != nil {
		return nil, err
	}
	latVar, err := firstOf(vars, latNames)
	if err != nil {
		return nil, err
	}
	timeVar, err := firstOf(vars, timeNames)
	if err != nil {
		return nil, err
	}
	if f.lon, err = ncvar.Floats(nc, lonVar); err != nil {
		return nil, err
	}
	if f.lat, err = ncvar.Floats(nc, latVar); err != nil {
		return nil, err
	}
	if f.times, err = ncvar.Times(nc, timeVar); err != nil {
		return nil, err
	}
	for _, name := range vars {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			return nil, err
		}
		if len(vg.Dimensions()) == 3 {
			f.name = name
			f.field = vg
			break
		}
	}
	if f.field == nil {
		return nil, errors.New("no (time, lat, lon) variable found")
	}
	return f, nil
}

func firstOf(vars, candidates []string) (string, error) {
	for _, c := range candidates {
		for _, v := range vars {
			if v == c {
				return v, nil
			}
		}
	}
	return "", fmt.Errorf("none of the variables %q found", candidates)
}

// Summary returns the summary information about the dataset suitable for
// logging.
func (f *File) Summary() []any {
	s := []any{
		"var", f.name,
		"tsCnt", len(f.times),
		"latCnt", len(f.lat),
		"lonCnt", len(f.lon),
	}
	if len(f.times) > 0 {
		s = append(s, "first", f.times[0], "last", f.times[len(f.times)-1])
	}
	return s
}

// Nearest implements Dataset.
func (f *File) Nearest(t time.Time, tol time.Duration) (*Grid, error) {
	pos, ok := nearestIndex(f.times, t, tol)
	if !ok {
		return nil, ErrNoSample
	}
	vals, err := ncvar.Slice(f.field, int64(pos), int64(pos)+1)
	if err != nil {
		return nil, fmt.Errorf("read %s at %s: %w", f.name, f.times[pos].Format(time.RFC3339), err)
	}
	if len(vals) != len(f.lat)*len(f.lon) {
		return nil, fmt.Errorf("read %s: got %d values for a %dx%d grid", f.name, len(vals), len(f.lat), len(f.lon))
	}
	return &Grid{
		Time:   f.times[pos],
		Lon:    f.lon,
		Lat:    f.lat,
		Var:    f.name,
		Values: vals,
	}, nil
}

// nearestIndex returns the index of the time closest to t if it is within
// tol. Zero (missing) times are never selected.
func nearestIndex(times []time.Time, t time.Time, tol time.Duration) (int, bool) {
	best := -1
	var bestDist time.Duration
	for i, ts := range times {
		if ts.IsZero() {
			continue
		}
		d := ts.Sub(t)
		if d < 0 {
			d = -d
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 || bestDist > tol {
		return 0, false
	}
	return best, true
}

// Close closes the underlying file.
func (f *File) Close() error {
	f.nc.Close()
	return nil
}
