// Package render rasterizes satellite grids into image files.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/observingClouds/eurec4a-movies/internal/colormap"
	"github.com/observingClouds/eurec4a-movies/internal/design"
	"github.com/observingClouds/eurec4a-movies/internal/satellite"
)

// paletteSize is the number of discrete colors the heat map uses.
const paletteSize = 256

// Renderer draws frames without axes, margins or decoration. The image
// height follows from the width and the aspect ratio of the domain.
type Renderer struct {
	WidthInches float64
	DPI         float64
}

// Render draws g cropped to fc.Domain. A nil grid, or a grid with no data in
// the domain, gives an empty frame of the same size.
func (r *Renderer) Render(g *satellite.Grid, fc design.FrameConfig) (*vgimg.Canvas, error) {
	box := fc.Domain
	p := plot.New()
	p.HideAxes()
	p.X.Padding, p.Y.Padding = 0, 0

	if g != nil {
		hm, err := heatMap(g.Crop(box.LonMin, box.LonMax, box.LatMin, box.LatMax), fc)
		if err != nil {
			return nil, err
		}
		if hm != nil {
			p.Add(hm)
		}
	}
	p.X.Min, p.X.Max = math.Min(box.LonMin, box.LonMax), math.Max(box.LonMin, box.LonMax)
	p.Y.Min, p.Y.Max = math.Min(box.LatMin, box.LatMax), math.Max(box.LatMin, box.LatMax)

	w := vg.Length(r.WidthInches) * vg.Inch
	h := w * vg.Length(box.AspectRatio())
	c := vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(int(math.Round(r.DPI))))
	p.Draw(draw.New(c))
	return c, nil
}

func heatMap(g *satellite.Grid, fc design.FrameConfig) (*plotter.HeatMap, error) {
	if len(g.Lon) < 2 || len(g.Lat) < 2 {
		return nil, nil
	}
	vmin := fc.VMin.Resolve(g)
	vmax := fc.VMax.Resolve(g)
	if math.IsNaN(vmin) || math.IsNaN(vmax) {
		// no valid data to derive the range from
		return nil, nil
	}
	if vmin >= vmax {
		if fc.VMin.Stat == design.Literal && fc.VMax.Stat == design.Literal {
			return nil, fmt.Errorf("empty value range [%v, %v] from vmin=%s vmax=%s", vmin, vmax, fc.VMin, fc.VMax)
		}
		// a derived bound over uniform data: values at vmin take the low
		// color
		vmax = vmin + math.Max(math.Abs(vmin)*1e-9, 1e-9)
	}
	cmap, err := colormap.Lookup(fc.Colormap)
	if err != nil {
		return nil, err
	}
	cmap.SetMin(vmin)
	cmap.SetMax(vmax)
	pal := cmap.Palette(paletteSize)
	colors := pal.Colors()

	hm := plotter.NewHeatMap(newGridXYZ(g), pal)
	hm.Min, hm.Max = vmin, vmax
	hm.Underflow = colors[0]
	hm.Overflow = colors[len(colors)-1]
	hm.NaN = color.Transparent
	hm.Rasterized = true
	return hm, nil
}

// gridXYZ adapts a satellite grid to plotter.GridXYZ with both coordinates
// increasing.
type gridXYZ struct {
	g          *satellite.Grid
	flipLon    bool
	flipLat    bool
	cols, rows int
}

func newGridXYZ(g *satellite.Grid) gridXYZ {
	return gridXYZ{
		g:       g,
		cols:    len(g.Lon),
		rows:    len(g.Lat),
		flipLon: g.Lon[0] > g.Lon[len(g.Lon)-1],
		flipLat: g.Lat[0] > g.Lat[len(g.Lat)-1],
	}
}

func (x gridXYZ) Dims() (c, r int) { return x.cols, x.rows }

func (x gridXYZ) col(c int) int {
	if x.flipLon {
		return x.cols - 1 - c
	}
	return c
}

func (x gridXYZ) row(r int) int {
	if x.flipLat {
		return x.rows - 1 - r
	}
	return r
}

func (x gridXYZ) Z(c, r int) float64 { return x.g.At(x.row(r), x.col(c)) }
func (x gridXYZ) X(c int) float64    { return x.g.Lon[x.col(c)] }
func (x gridXYZ) Y(r int) float64    { return x.g.Lat[x.row(r)] }

// WriteFrame renders the frame and saves it to path.
func (r *Renderer) WriteFrame(path string, g *satellite.Grid, fc design.FrameConfig) error {
	c, err := r.Render(g, fc)
	if err != nil {
		return err
	}
	return Save(c, path)
}

// Save encodes the canvas in the format given by the extension of path. The
// file is written next to its destination and renamed into place, so an
// existing file at path is always complete.
func Save(c *vgimg.Canvas, path string) error {
	var enc io.WriterTo
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		enc = vgimg.PngCanvas{Canvas: c}
	case ".jpg", ".jpeg":
		enc = vgimg.JpegCanvas{Canvas: c}
	case ".tif", ".tiff":
		enc = vgimg.TiffCanvas{Canvas: c}
	default:
		return fmt.Errorf("unsupported image format %q", filepath.Ext(path))
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	_, err = enc.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(f.Name(), path)
	}
	if err != nil {
		return errors.Join(fmt.Errorf("write %s: %w", path, err), os.Remove(f.Name()))
	}
	return nil
}
