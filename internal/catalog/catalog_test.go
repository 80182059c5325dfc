package catalog

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observingClouds/eurec4a-movies/internal/design"
	"github.com/observingClouds/eurec4a-movies/internal/satellite"
)

var (
	day    = time.Date(2020, 2, 5, 0, 0, 0, 0, time.UTC)
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func writeGrid(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grid.nc")
	cw, err := cdf.OpenWriter(path)
	require.NoError(t, err)
	units, err := util.NewOrderedMap([]string{"units"}, map[string]any{"units": "minutes since 2020-02-05 00:00:00"})
	require.NoError(t, err)
	require.NoError(t, cw.AddVar("time", api.Variable{Values: []float64{0, 10}, Dimensions: []string{"time"}, Attributes: units}))
	require.NoError(t, cw.AddVar("lat", api.Variable{Values: []float32{13, 14}, Dimensions: []string{"lat"}}))
	require.NoError(t, cw.AddVar("lon", api.Variable{Values: []float32{-58, -57}, Dimensions: []string{"lon"}}))
	require.NoError(t, cw.AddVar("CMI", api.Variable{
		Values:     [][][]float32{{{1, 2}, {3, 4}}, {{5, 6}, {7, 8}}},
		Dimensions: []string{"time", "lat", "lon"},
	}))
	require.NoError(t, cw.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

type server struct {
	*httptest.Server
	hits atomic.Int32
}

// newServer serves the grid for channel 13 only. Channel 2 fails on the
// server side and channel 3 sends data that is not NetCDF.
func newServer(t *testing.T) *server {
	data := writeGrid(t)
	s := &server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		switch r.URL.Path {
		case "/2020/02/05/CH13_1min.nc", "/2020/02/05/CH13_10min.nc":
			w.Write(data)
		case "/2020/02/05/CH02_1min.nc":
			conn, _, err := w.(http.Hijacker).Hijack()
			if err != nil {
				t.Errorf("hijack: %v", err)
				return
			}
			conn.Close()
		case "/2020/02/05/CH02_10min.nc":
			w.WriteHeader(http.StatusInternalServerError)
		case "/2020/02/05/CH03_1min.nc":
			w.Write([]byte("<html>maintenance</html>"))
		case "/forbidden.nc":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func newClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(logger, &design.Catalog{
		Entries: map[string]string{
			EntryLatLonGrid:      baseURL + "/%Y/%m/%d/CH{channel}_1min.nc",
			EntryLatLonGrid10Min: baseURL + "/%Y/%m/%d/CH{channel}_10min.nc",
			"forbidden":          baseURL + "/forbidden.nc",
		},
		CacheDir:  t.TempDir(),
		Timeout:   10 * time.Second,
		MaxConns:  2,
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestURL(t *testing.T) {
	c := newClient(t, "https://example.org")
	url, err := c.URL(EntryLatLonGrid, 2, day)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/2020/02/05/CH02_1min.nc", url)

	_, err = c.URL("nope", 2, day)
	assert.Error(t, err)
}

func TestOpenCachesDownloads(t *testing.T) {
	s := newServer(t)
	c := newClient(t, s.URL)

	f, err := c.Open(EntryLatLonGrid, 13, day)
	require.NoError(t, err)
	g, err := f.Nearest(day.Add(9*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6, 7, 8}, g.Values)
	require.NoError(t, f.Close())

	f, err = c.Open(EntryLatLonGrid, 13, day)
	require.NoError(t, err)
	f.Close()
	assert.Equal(t, int32(1), s.hits.Load())
}

func TestOpenRedownloadsMissingFile(t *testing.T) {
	s := newServer(t)
	c := newClient(t, s.URL)

	f, err := c.Open(EntryLatLonGrid, 13, day)
	require.NoError(t, err)
	f.Close()

	url, _ := c.URL(EntryLatLonGrid, 13, day)
	e, ok, err := c.cache.Lookup(url)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, os.Remove(e.Path))

	f, err = c.Open(EntryLatLonGrid, 13, day)
	require.NoError(t, err)
	f.Close()
	assert.Equal(t, int32(2), s.hits.Load())
}

func TestOpenNotFound(t *testing.T) {
	s := newServer(t)
	c := newClient(t, s.URL)

	_, err := c.Open(EntryLatLonGrid, 4, day)
	assert.True(t, errors.Is(err, ErrNotFound), err)

	_, err = c.Open("forbidden", 4, day)
	assert.True(t, errors.Is(err, ErrNotFound), err)
}

func TestOpenUnavailable(t *testing.T) {
	s := newServer(t)
	c := newClient(t, s.URL)

	_, err := c.Open(EntryLatLonGrid10Min, 2, day)
	assert.True(t, errors.Is(err, ErrUnavailable), err)
	assert.False(t, errors.Is(err, ErrNotFound), err)
	assert.ErrorContains(t, err, "500")

	_, err = c.Open(EntryLatLonGrid, 2, day)
	assert.True(t, errors.Is(err, ErrUnavailable), err)

	_, err = c.Open(EntryLatLonGrid, 3, day)
	assert.True(t, errors.Is(err, ErrUnavailable), err)
	url, _ := c.URL(EntryLatLonGrid, 3, day)
	_, ok, err := c.cache.Lookup(url)
	require.NoError(t, err)
	assert.False(t, ok, "unreadable download stays out of the cache")
}

func TestSources(t *testing.T) {
	s := newServer(t)
	c := newClient(t, s.URL)

	sources, err := c.Sources(day, []int{13, 2, 3, 4})
	require.NoError(t, err)
	defer sources.Close()
	assert.Equal(t, []satellite.Key{{Channel: 13, Resolution: 1}, {Channel: 13, Resolution: 10}}, sources.Keys())
}

func TestSourcesUnreachableServer(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1")

	sources, err := c.Sources(day, []int{13, 2})
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestSourcesCacheFailure(t *testing.T) {
	s := newServer(t)
	c := newClient(t, s.URL)
	require.NoError(t, c.cache.Close())

	_, err := c.Sources(day, []int{13})
	assert.ErrorContains(t, err, "cache")
}

func TestCache(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer cache.Close()

	_, ok, err := cache.Lookup("https://example.org/a.nc")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, cache.Put(Entry{URL: "https://example.org/a.nc", Path: "/tmp/a.nc", Size: 42, FetchedAt: at}))
	require.NoError(t, cache.Put(Entry{URL: "https://example.org/a.nc", Path: "/tmp/b.nc", Size: 43, FetchedAt: at}))

	e, ok, err := cache.Lookup("https://example.org/a.nc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/tmp/b.nc", e.Path)
	assert.Equal(t, int64(43), e.Size)
	assert.True(t, at.Equal(e.FetchedAt))

	require.NoError(t, cache.Forget("https://example.org/a.nc"))
	_, ok, err = cache.Lookup("https://example.org/a.nc")
	require.NoError(t, err)
	assert.False(t, ok)
}
