package movie

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/observingClouds/eurec4a-movies/internal/sonde"
)

// NearestImageTime returns the time of the GOES image shown at t: the minute
// rounded to the nearest multiple of ten, half-way minutes rounding up.
// Seconds are ignored and an overflow carries into the hour and day.
func NearestImageTime(t time.Time) time.Time {
	t = t.UTC()
	hour := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	return hour.Add(time.Duration((t.Minute()+5)/10*10) * time.Minute)
}

// ImagePath returns <goesdir>/<varid>/<YYYY-MM-DD>/<YYYY-MM-DDTHH:MM:00Z>.jpg
// for an image time.
func ImagePath(goesDir, varID string, t time.Time) string {
	return filepath.Join(goesDir, varID, t.Format(DateLayout), t.Format("2006-01-02T15:04:00Z")+".jpg")
}

// Inputs provides the data a movie is made of.
type Inputs interface {
	// Image returns the background image shown at t.
	Image(t time.Time) (image.Image, error)
	// Sondes returns the sondes launched on the day of t.
	Sondes(day time.Time) ([]*sonde.Sonde, error)
}

// Files reads GOES images and the sonde archive from disk. An image shown on
// consecutive frames is decoded once.
type Files struct {
	GoesDir    string
	VarID      string
	SondePath  string
	MinSamples int

	lastPath string
	last     image.Image
	decoded  int
}

// NewFiles returns the inputs described by p.
func NewFiles(p *Params) *Files {
	return &Files{
		GoesDir:    p.GoesDir,
		VarID:      p.GoesVarID,
		SondePath:  p.SondePath(),
		MinSamples: p.MinSamples,
	}
}

// Image implements Inputs.
func (f *Files) Image(t time.Time) (image.Image, error) {
	path := ImagePath(f.GoesDir, f.VarID, NearestImageTime(t))
	if path == f.lastPath {
		return f.last, nil
	}
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}
	defer r.Close()
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	f.lastPath, f.last = path, img
	f.decoded++
	return img, nil
}

// Sondes implements Inputs.
func (f *Files) Sondes(day time.Time) ([]*sonde.Sonde, error) {
	return sonde.LoadDay(f.SondePath, sonde.DefaultVars, day, f.MinSamples)
}
