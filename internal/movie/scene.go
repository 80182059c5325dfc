package movie

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/observingClouds/eurec4a-movies/internal/colormap"
	"github.com/observingClouds/eurec4a-movies/internal/design"
	"github.com/observingClouds/eurec4a-movies/internal/sonde"
)

// Frame is everything that changes from one movie frame to the next.
type Frame struct {
	Time       time.Time
	Background image.Image
	Markers    []sonde.Marker
}

// Scene draws frames. It holds the parts of the picture that never change.
type Scene struct {
	domain design.Box
	width  vg.Length
	height vg.Length
	dpi    int

	centerLon, centerLat, rCircle float64
	circleColor                   color.Color
	markerRadius                  vg.Length

	colorbar palette.ColorMap
	altMax   float64

	timeSize, labelSize, cbarSize, cbarLabelSize vg.Length
}

// unboxed hides the glyph boxes of a plotter so that markers and labels near
// the border do not shrink the data area.
type unboxed struct {
	plot.Plotter
}

func add(p *plot.Plot, ps ...plot.Plotter) {
	for _, pl := range ps {
		p.Add(unboxed{pl})
	}
}

// gridSpacing is the spacing of the lon/lat grid lines in degrees.
const gridSpacing = 0.5

// NewScene prepares the static parts of the picture described by p.
func NewScene(p *Params) (*Scene, error) {
	if err := p.Domain.Validate(); err != nil {
		return nil, err
	}
	if p.WidthInches <= 0 || p.DPI <= 0 {
		return nil, fmt.Errorf("w_inches and dpi must be positive")
	}
	top, err := colormap.Color(p.ColTop)
	if err != nil {
		return nil, err
	}
	cb, err := colormap.Lookup(p.Colormap)
	if err != nil {
		return nil, err
	}
	cb.SetMin(0)
	cb.SetMax(p.AltMax)

	w := vg.Length(p.WidthInches) * vg.Inch
	lonSpan := math.Abs(p.Domain.LonMax - p.Domain.LonMin)
	return &Scene{
		domain:      p.Domain,
		width:       w,
		height:      w * vg.Length(p.Domain.AspectRatio()),
		dpi:         p.DPI,
		centerLon:   p.CenterLon,
		centerLat:   p.CenterLat,
		rCircle:     p.RCircle,
		circleColor: top,
		// a 2pt edge around the marker disc
		markerRadius:  w*vg.Length(p.MarkerRadius/lonSpan) + vg.Points(1),
		colorbar:      cb,
		altMax:        p.AltMax,
		timeSize:      vg.Points(p.TimeFontSize),
		labelSize:     vg.Points(p.LabelFontSize),
		cbarSize:      vg.Points(p.ColorbarFontSize),
		cbarLabelSize: vg.Points(p.ColorbarLabelSize),
	}, nil
}

// Size returns the frame size in pixels.
func (s *Scene) Size() image.Point {
	c := vgimg.NewWith(vgimg.UseWH(s.width, s.height), vgimg.UseDPI(s.dpi))
	return c.Image().Bounds().Size()
}

// Draw renders one frame.
func (s *Scene) Draw(f Frame) (image.Image, error) {
	p := plot.New()
	p.HideAxes()
	p.X.Padding, p.Y.Padding = 0, 0
	p.BackgroundColor = color.Black

	lonMin, lonMax := math.Min(s.domain.LonMin, s.domain.LonMax), math.Max(s.domain.LonMin, s.domain.LonMax)
	latMin, latMax := math.Min(s.domain.LatMin, s.domain.LatMax), math.Max(s.domain.LatMin, s.domain.LatMax)

	if f.Background != nil {
		add(p, plotter.NewImage(f.Background, lonMin, latMin, lonMax, latMax))
	}
	grid, err := s.gridLines(lonMin, lonMax, latMin, latMax)
	if err != nil {
		return nil, err
	}
	add(p, grid...)

	circle, err := s.circle()
	if err != nil {
		return nil, err
	}
	add(p, circle)

	ms, err := s.markers(f.Markers)
	if err != nil {
		return nil, err
	}
	add(p, ms...)

	clock, err := s.text(lonMin+0.1, latMax-0.45, f.Time.UTC().Format("2006-01-02\n15:04 UTC"), color.White, s.timeSize)
	if err != nil {
		return nil, err
	}
	clock.TextStyle[0].YAlign = text.YTop
	add(p, clock)

	p.X.Min, p.X.Max = lonMin, lonMax
	p.Y.Min, p.Y.Max = latMin, latMax

	c := vgimg.NewWith(vgimg.UseWH(s.width, s.height), vgimg.UseDPI(s.dpi))
	dc := draw.New(c)
	p.Draw(dc)
	s.colorbarPlot().Draw(draw.Crop(dc, 0.84*s.width, -0.09*s.width, 0.05*s.height, -0.45*s.height))
	return c.Image(), nil
}

func (s *Scene) gridLines(lonMin, lonMax, latMin, latMax float64) ([]plot.Plotter, error) {
	var ps []plot.Plotter
	add := func(xys plotter.XYs) error {
		l, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		l.Color = color.White
		l.Width = vg.Points(0.3)
		ps = append(ps, l)
		return nil
	}
	for _, x := range multiples(lonMin, lonMax, gridSpacing) {
		if err := add(plotter.XYs{{X: x, Y: latMin}, {X: x, Y: latMax}}); err != nil {
			return nil, err
		}
	}
	for _, y := range multiples(latMin, latMax, gridSpacing) {
		if err := add(plotter.XYs{{X: lonMin, Y: y}, {X: lonMax, Y: y}}); err != nil {
			return nil, err
		}
	}
	return ps, nil
}

// multiples returns the multiples of step in [lo, hi].
func multiples(lo, hi, step float64) []float64 {
	var out []float64
	for k := math.Ceil(lo / step); k*step <= hi; k++ {
		out = append(out, k*step)
	}
	return out
}

func (s *Scene) circle() (*plotter.Line, error) {
	const n = 180
	xys := make(plotter.XYs, n+1)
	for i := range xys {
		a := 2 * math.Pi * float64(i) / n
		xys[i].X = s.centerLon + s.rCircle*math.Cos(a)
		xys[i].Y = s.centerLat + s.rCircle*math.Sin(a)
	}
	l, err := plotter.NewLine(xys)
	if err != nil {
		return nil, err
	}
	l.Color = s.circleColor
	l.Width = vg.Points(2)
	return l, nil
}

// markers draws the visible markers and their launch time labels. It
// returns nil if no marker is visible.
func (s *Scene) markers(ms []sonde.Marker) ([]plot.Plotter, error) {
	var (
		xys    plotter.XYs
		labels []string
		cols   []color.NRGBA
	)
	for _, m := range ms {
		if !m.Visible() {
			continue
		}
		xys = append(xys, plotter.XY{X: m.Lon, Y: m.Lat})
		labels = append(labels, m.Label)
		cols = append(cols, colormap.WithAlpha(m.Fill, m.Alpha))
	}
	if len(xys) == 0 {
		return nil, nil
	}

	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		return draw.GlyphStyle{Color: cols[i], Radius: s.markerRadius, Shape: draw.CircleGlyph{}}
	}

	at := make(plotter.XYs, len(xys))
	for i, xy := range xys {
		at[i] = plotter.XY{X: xy.X + 0.05, Y: xy.Y + 0.05}
	}
	lb, err := plotter.NewLabels(plotter.XYLabels{XYs: at, Labels: labels})
	if err != nil {
		return nil, err
	}
	for i := range lb.TextStyle {
		lb.TextStyle[i].Color = cols[i]
		lb.TextStyle[i].Font.Size = s.labelSize
	}
	return []plot.Plotter{sc, lb}, nil
}

func (s *Scene) text(x, y float64, txt string, c color.Color, size vg.Length) (*plotter.Labels, error) {
	lb, err := plotter.NewLabels(plotter.XYLabels{XYs: plotter.XYs{{X: x, Y: y}}, Labels: []string{txt}})
	if err != nil {
		return nil, err
	}
	lb.TextStyle[0].Color = c
	lb.TextStyle[0].Font.Size = size
	return lb, nil
}

// colorbarPlot is the vertical altitude scale: six ticks over [0, altmax]
// labelled in km.
func (s *Scene) colorbarPlot() *plot.Plot {
	p := plot.New()
	p.BackgroundColor = color.Transparent
	p.Add(&plotter.ColorBar{ColorMap: s.colorbar, Vertical: true, Colors: 256})
	p.HideX()
	p.X.Padding, p.Y.Padding = 0, 0

	p.Y.Min, p.Y.Max = 0, s.altMax
	p.Y.Color = color.White
	p.Y.Label.Text = "z(km)"
	p.Y.Label.TextStyle.Color = color.White
	p.Y.Label.TextStyle.Font.Size = s.cbarLabelSize
	p.Y.Tick.Color = color.White
	p.Y.Tick.Label.Color = color.White
	p.Y.Tick.Label.Font.Size = s.cbarSize
	ticks := make(plot.ConstantTicks, 6)
	for i := range ticks {
		v := s.altMax * float64(i) / 5
		ticks[i] = plot.Tick{Value: v, Label: fmt.Sprintf("%1.1f", v/1000)}
	}
	p.Y.Tick.Marker = ticks
	return p
}
