// Package colormap provides the named colormaps and colors used in the
// rendered frames.
package colormap

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// Linear is a palette.ColorMap interpolating between evenly spaced color
// stops in the CIE L*a*b* space.
type Linear struct {
	stops    []colorful.Color
	min, max float64
	alpha    float64
}

// NewLinear returns a colormap over [0, 1] through the given colors.
func NewLinear(colors ...color.Color) *Linear {
	l := &Linear{max: 1, alpha: 1}
	for _, c := range colors {
		cf, _ := colorful.MakeColor(c)
		l.stops = append(l.stops, cf)
	}
	return l
}

func hexLinear(hexes ...string) *Linear {
	l := &Linear{max: 1, alpha: 1}
	for _, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			panic(err)
		}
		l.stops = append(l.stops, c)
	}
	return l
}

// At implements palette.ColorMap.
func (l *Linear) At(v float64) (color.Color, error) {
	switch {
	case math.IsNaN(v):
		return nil, palette.ErrNaN
	case v < l.min:
		return nil, palette.ErrUnderflow
	case v > l.max:
		return nil, palette.ErrOverflow
	}
	if l.max == l.min || len(l.stops) == 1 {
		return l.rgba(l.stops[0]), nil
	}
	pos := (v - l.min) / (l.max - l.min) * float64(len(l.stops)-1)
	i := int(math.Floor(pos))
	if i >= len(l.stops)-1 {
		return l.rgba(l.stops[len(l.stops)-1]), nil
	}
	return l.rgba(l.stops[i].BlendLab(l.stops[i+1], pos-float64(i)).Clamped()), nil
}

func (l *Linear) rgba(c colorful.Color) color.Color {
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(math.Round(l.alpha * 255))}
}

// Max implements palette.ColorMap.
func (l *Linear) Max() float64 { return l.max }

// SetMax implements palette.ColorMap.
func (l *Linear) SetMax(v float64) { l.max = v }

// Min implements palette.ColorMap.
func (l *Linear) Min() float64 { return l.min }

// SetMin implements palette.ColorMap.
func (l *Linear) SetMin(v float64) { l.min = v }

// Alpha implements palette.ColorMap.
func (l *Linear) Alpha() float64 { return l.alpha }

// SetAlpha implements palette.ColorMap.
func (l *Linear) SetAlpha(a float64) { l.alpha = a }

// Palette implements palette.ColorMap.
func (l *Linear) Palette(n int) palette.Palette {
	colors := make([]color.Color, n)
	for i := range colors {
		v := l.min
		if n > 1 {
			v = l.min + (l.max-l.min)*float64(i)/float64(n-1)
		}
		c, err := l.At(v)
		if err != nil {
			c = l.rgba(l.stops[0])
		}
		colors[i] = c
	}
	return plainPalette(colors)
}

type plainPalette []color.Color

func (p plainPalette) Colors() []color.Color { return p }

var viridis = []string{
	"#440154", "#482475", "#414487", "#355f8d", "#2a788e",
	"#21918c", "#22a884", "#44bf70", "#7ad151", "#bddf26", "#fde725",
}

var magma = []string{
	"#000004", "#140e36", "#3b0f70", "#641a80", "#8c2981",
	"#b73779", "#de4968", "#f7705c", "#fe9f6d", "#fecf92", "#fcfdbf",
}

var registry = map[string]func() palette.ColorMap{
	"gray":      func() palette.ColorMap { return hexLinear("#000000", "#ffffff") },
	"greys_r":   func() palette.ColorMap { return hexLinear("#000000", "#ffffff") },
	"gray_r":    func() palette.ColorMap { return hexLinear("#ffffff", "#000000") },
	"greys":     func() palette.ColorMap { return hexLinear("#ffffff", "#000000") },
	"viridis":   func() palette.ColorMap { return hexLinear(viridis...) },
	"magma":     func() palette.ColorMap { return hexLinear(magma...) },
	"blues_r":   func() palette.ColorMap { return hexLinear("#08306b", "#2171b5", "#6baed6", "#c6dbef", "#f7fbff") },
	"coolwarm":  func() palette.ColorMap { return moreland.SmoothBlueRed() },
	"rdbu_r":    func() palette.ColorMap { return moreland.SmoothBlueRed() },
	"blackbody": moreland.ExtendedBlackBody,
	"kindlmann": moreland.ExtendedKindlmann,
}

// Lookup returns a fresh colormap by name. Names are case-insensitive.
func Lookup(name string) (palette.ColorMap, error) {
	mk, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown colormap %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return mk(), nil
}

// Names lists the registered colormaps.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Color parses a color given as "#rrggbb" or as an SVG color name such as
// "darkorange".
func Color(s string) (color.Color, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		c, err := colorful.Hex(s)
		if err != nil {
			return nil, fmt.Errorf("color %q: %w", s, err)
		}
		r, g, b := c.RGB255()
		return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
	}
	if c, ok := colornames.Map[strings.ToLower(s)]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unknown color %q", s)
}

// WithAlpha returns c with its opacity replaced by alpha in [0, 1].
func WithAlpha(c color.Color, alpha float64) color.NRGBA {
	alpha = math.Max(0, math.Min(1, alpha))
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = uint8(math.Round(alpha * 255))
	return n
}
