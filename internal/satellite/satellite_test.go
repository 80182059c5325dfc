package satellite

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2020, 2, 5, 0, 0, 0, 0, time.UTC)

func TestGridCrop(t *testing.T) {
	g := &Grid{
		Lon: []float64{-60, -59, -58, -57},
		Lat: []float64{15, 14, 13},
		Values: []float64{
			1, 2, 3, 4,
			5, 6, 7, 8,
			9, 10, 11, 12,
		},
	}
	c := g.Crop(-59, -58, 13, 14)
	assert.Equal(t, []float64{-59, -58}, c.Lon)
	assert.Equal(t, []float64{14, 13}, c.Lat)
	assert.Equal(t, []float64{6, 7, 10, 11}, c.Values)
	assert.Equal(t, 11.0, c.At(1, 1))

	empty := g.Crop(0, 1, 0, 1)
	assert.Empty(t, empty.Values)
	assert.True(t, math.IsNaN(empty.Mean()))
}

func TestGridStatistics(t *testing.T) {
	g := &Grid{Values: []float64{4, math.NaN(), 1, 3, 2, 5}}
	assert.Equal(t, 1.0, g.Quantile(0))
	assert.Equal(t, 5.0, g.Quantile(1))
	assert.Equal(t, 3.0, g.Quantile(0.5))
	assert.InDelta(t, 4.96, g.Quantile(0.99), 1e-9)
	assert.Equal(t, 3.0, g.Mean())
}

func TestNearestIndex(t *testing.T) {
	times := []time.Time{
		day.Add(10 * time.Minute),
		{},
		day.Add(20 * time.Minute),
	}
	i, ok := nearestIndex(times, day.Add(14*time.Minute), 6*time.Minute)
	require.True(t, ok)
	assert.Equal(t, 0, i)

	i, ok = nearestIndex(times, day.Add(16*time.Minute), 6*time.Minute)
	require.True(t, ok)
	assert.Equal(t, 2, i)

	_, ok = nearestIndex(times, day.Add(30*time.Minute), 6*time.Minute)
	assert.False(t, ok)

	_, ok = nearestIndex(nil, day, time.Hour)
	assert.False(t, ok)
}

type fakeDataset struct {
	times []time.Time
	calls int
}

func (f *fakeDataset) Nearest(t time.Time, tol time.Duration) (*Grid, error) {
	f.calls++
	i, ok := nearestIndex(f.times, t, tol)
	if !ok {
		return nil, ErrNoSample
	}
	return &Grid{Time: f.times[i]}, nil
}

func (f *fakeDataset) Close() error { return nil }

func everyMinutes(step, n int) []time.Time {
	ts := make([]time.Time, n)
	for i := range ts {
		ts[i] = day.Add(time.Duration(i*step) * time.Minute)
	}
	return ts
}

func TestSelectPrefersHighResolution(t *testing.T) {
	hi := &fakeDataset{times: everyMinutes(1, 600)}
	lo := &fakeDataset{times: everyMinutes(10, 60)}
	s := Sources{{13, 1}: hi, {13, 10}: lo}

	g, key, ok := s.Select(13, day.Add(37*time.Minute), DefaultTiers)
	require.True(t, ok)
	assert.Equal(t, Key{13, 1}, key)
	assert.Equal(t, day.Add(37*time.Minute), g.Time)
	assert.Equal(t, 0, lo.calls)
}

func TestSelectFallsBack(t *testing.T) {
	// high resolution data ends after one hour
	hi := &fakeDataset{times: everyMinutes(1, 60)}
	lo := &fakeDataset{times: everyMinutes(10, 60)}
	s := Sources{{2, 1}: hi, {2, 10}: lo}

	g, key, ok := s.Select(2, day.Add(124*time.Minute), DefaultTiers)
	require.True(t, ok)
	assert.Equal(t, Key{2, 10}, key)
	assert.Equal(t, day.Add(120*time.Minute), g.Time)
	assert.Equal(t, "CH02_10min", key.String())
}

func TestSelectBlank(t *testing.T) {
	lo := &fakeDataset{times: everyMinutes(10, 6)}
	s := Sources{{13, 10}: lo}

	_, _, ok := s.Select(13, day.Add(5*time.Hour), DefaultTiers)
	assert.False(t, ok)

	_, _, ok = s.Select(2, day, DefaultTiers)
	assert.False(t, ok)
}

func TestSourcesKeys(t *testing.T) {
	s := Sources{{13, 10}: &fakeDataset{}, {2, 1}: &fakeDataset{}, {13, 1}: &fakeDataset{}}
	assert.Equal(t, []Key{{2, 1}, {13, 1}, {13, 10}}, s.Keys())
	assert.NoError(t, s.Close())
}

func attrs(t *testing.T, kv map[string]any) api.AttributeMap {
	t.Helper()
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	m, err := util.NewOrderedMap(keys, kv)
	require.NoError(t, err)
	return m
}

// writeGridFile writes a small (time, lat, lon) NetCDF file with three time
// steps ten minutes apart.
func writeGridFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grid.nc")
	cw, err := cdf.OpenWriter(path)
	require.NoError(t, err)

	base := float64(day.Unix())
	require.NoError(t, cw.AddVar("time", api.Variable{
		Values:     []float64{base, base + 600, base + 1200},
		Dimensions: []string{"time"},
		Attributes: attrs(t, map[string]any{"units": "seconds since 1970-01-01 00:00:00"}),
	}))
	require.NoError(t, cw.AddVar("lat", api.Variable{
		Values:     []float64{14, 13},
		Dimensions: []string{"lat"},
		Attributes: attrs(t, map[string]any{"units": "degrees_north"}),
	}))
	require.NoError(t, cw.AddVar("lon", api.Variable{
		Values:     []float64{-59, -58, -57},
		Dimensions: []string{"lon"},
		Attributes: attrs(t, map[string]any{"units": "degrees_east"}),
	}))
	field := make([][][]float32, 3)
	for k := range field {
		field[k] = [][]float32{
			{float32(k), 1, 2},
			{3, 4, -999},
		}
	}
	require.NoError(t, cw.AddVar("C13", api.Variable{
		Values:     field,
		Dimensions: []string{"time", "lat", "lon"},
		Attributes: attrs(t, map[string]any{"_FillValue": float32(-999)}),
	}))
	require.NoError(t, cw.Close())
	return path
}

func TestFileNearest(t *testing.T) {
	f, err := Open(writeGridFile(t))
	require.NoError(t, err)
	defer f.Close()

	g, err := f.Nearest(day.Add(11*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, day.Add(10*time.Minute), g.Time)
	assert.Equal(t, "C13", g.Var)
	assert.Equal(t, []float64{-59, -58, -57}, g.Lon)
	assert.Equal(t, []float64{14, 13}, g.Lat)
	require.Len(t, g.Values, 6)
	assert.Equal(t, 1.0, g.Values[0])
	assert.True(t, math.IsNaN(g.Values[5]))

	_, err = f.Nearest(day.Add(5*time.Minute), time.Minute)
	assert.True(t, errors.Is(err, ErrNoSample))
	assert.NotEmpty(t, f.Summary())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.nc"))
	assert.Error(t, err)
}
