// Package catalog downloads gridded satellite datasets from a remote data
// server and opens them as satellite datasets.
package catalog

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/observingClouds/eurec4a-movies/internal/design"
	"github.com/observingClouds/eurec4a-movies/internal/satellite"
)

var (
	// ErrNotFound is returned when the server answers a catalog query with a
	// 4xx status.
	ErrNotFound = errors.New("catalog entry not available")
	// ErrUnavailable is returned when the server cannot be reached, answers
	// with another unexpected status or sends data that cannot be read.
	ErrUnavailable = errors.New("catalog server unavailable")
)

// Entry names used by the frame exporter.
const (
	EntryLatLonGrid      = "latlongrid"
	EntryLatLonGrid10Min = "latlongrid_10min"
)

// Client is a catalog client. Downloads are kept in a cache directory and
// reused by later queries for the same URL.
type Client struct {
	logger    *slog.Logger
	httpCli   *http.Client
	entries   map[string]string
	cacheDir  string
	cache     *Cache
	userAgent string
}

// NewClient creates a new catalog client.
func NewClient(logger *slog.Logger, cfg *design.Catalog) (*Client, error) {
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	cache, err := OpenCache(filepath.Join(cfg.CacheDir, "index.db"))
	if err != nil {
		return nil, err
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 1
	}
	return &Client{
		logger: logger,
		httpCli: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        maxConns,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: maxConns,
				MaxConnsPerHost:     maxConns,
			},
		},
		entries:   cfg.Entries,
		cacheDir:  cfg.CacheDir,
		cache:     cache,
		userAgent: cfg.UserAgent,
	}, nil
}

// URL expands the template of entry for a channel and date.
func (c *Client) URL(entry string, channel int, date time.Time) (string, error) {
	tmpl, ok := c.entries[entry]
	if !ok {
		return "", fmt.Errorf("unknown catalog entry %q", entry)
	}
	tmpl = strings.ReplaceAll(tmpl, "{channel}", fmt.Sprintf("%02d", channel))
	return strftime.Format(tmpl, date)
}

// Open returns the dataset of entry for a channel and date, downloading it
// if it is not cached yet.
func (c *Client) Open(entry string, channel int, date time.Time) (*satellite.File, error) {
	url, err := c.URL(entry, channel, date)
	if err != nil {
		return nil, err
	}
	path, err := c.fetch(url)
	if err != nil {
		return nil, err
	}
	f, err := satellite.Open(path)
	if err != nil {
		// do not trust the cached copy again
		if ferr := c.cache.Forget(url); ferr != nil {
			return nil, fmt.Errorf("cache update: %w", ferr)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	c.logger.Info("Opened dataset", append([]any{"entry", entry, "channel", channel}, f.Summary()...)...)
	return f, nil
}

func (c *Client) fetch(url string) (string, error) {
	e, ok, err := c.cache.Lookup(url)
	if err != nil {
		return "", fmt.Errorf("cache lookup: %w", err)
	}
	if ok {
		if _, err := os.Stat(e.Path); err == nil {
			c.logger.Debug("Using cached download", "url", url, "path", e.Path, "fetchedAt", e.FetchedAt)
			return e.Path, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	start := time.Now()
	res, err := c.httpCli.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: could not get %s: %w", ErrUnavailable, url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		if res.StatusCode >= 400 && res.StatusCode < 500 {
			return "", fmt.Errorf("%w: %s: %s", ErrNotFound, url, res.Status)
		}
		return "", fmt.Errorf("%w: %s: unexpected status %s", ErrUnavailable, url, res.Status)
	}

	sum := sha1.Sum([]byte(url))
	path := filepath.Join(c.cacheDir, hex.EncodeToString(sum[:])+".nc")
	size, err := writeFile(path, remoteReader{res.Body})
	if err != nil {
		return "", fmt.Errorf("could not download %s: %w", url, err)
	}
	if err := c.cache.Put(Entry{URL: url, Path: path, Size: size, FetchedAt: time.Now()}); err != nil {
		return "", fmt.Errorf("cache update: %w", err)
	}
	c.logger.Info("Downloaded", "url", url, "bytes", size, "in", time.Since(start).Round(time.Millisecond))
	return path, nil
}

// remoteReader marks read errors as coming from the server.
type remoteReader struct {
	r io.Reader
}

func (r remoteReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return n, err
}

// writeFile writes r to a temporary file renamed to path once complete.
func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(f.Name(), path)
	}
	if err != nil {
		os.Remove(f.Name())
		return 0, err
	}
	return n, nil
}

// Close releases the cache index.
func (c *Client) Close() error {
	return c.cache.Close()
}

// Resolutions maps the catalog entries to the temporal resolution of their
// data in minutes.
var Resolutions = map[string]int{
	EntryLatLonGrid:      1,
	EntryLatLonGrid10Min: 10,
}

// Sources opens every entry of Resolutions for each channel. Queries the
// server fails or has no data for are left out of the result; only local
// errors such as a broken cache index are returned.
func (c *Client) Sources(date time.Time, channels []int) (satellite.Sources, error) {
	sources := make(satellite.Sources)
	for _, ch := range channels {
		for entry, res := range Resolutions {
			key := satellite.Key{Channel: ch, Resolution: res}
			f, err := c.Open(entry, ch, date)
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
				c.logger.Warn("Source unavailable", "source", key.String(), "err", err)
				continue
			}
			if err != nil {
				sources.Close()
				return nil, fmt.Errorf("open %s: %w", key, err)
			}
			sources[key] = f
		}
	}
	return sources, nil
}
