package sonde

import (
	"image/color"
	"math"
	"time"

	"gonum.org/v1/plot/palette"
)

// Marker is the display state of one slot on one frame.
type Marker struct {
	Lon, Lat float64
	// Fill and Edge are opaque; Alpha is applied on top of them.
	Fill  color.Color
	Edge  color.Color
	Alpha float64
	// Label is the launch time, empty for unused slots.
	Label string
}

// Visible reports whether the marker would leave a mark.
func (m Marker) Visible() bool {
	return m.Alpha > 0
}

// Style decides marker colors and opacity.
type Style struct {
	// ColorMap colors falling sondes by altitude over [0, AltMax].
	ColorMap palette.ColorMap
	AltMax   float64
	// Landed is used once the sonde's last sample is in the past.
	Landed color.Color
	// Launched is used at the launch minute.
	Launched color.Color
	// Fade is how long a marker takes to disappear after the sonde stopped
	// reporting.
	Fade time.Duration
	// Subsamples bounds the number of samples searched for the current
	// position.
	Subsamples int
	// DefaultLon and DefaultLat place the markers of unused slots.
	DefaultLon, DefaultLat float64
}

// Default returns the invisible marker of an unused slot.
func (st *Style) Default() Marker {
	return Marker{
		Lon:   st.DefaultLon,
		Lat:   st.DefaultLat,
		Fill:  color.White,
		Edge:  color.White,
		Alpha: 0,
	}
}

// Marker returns the marker of s at time t. A nil sonde, or one without a
// known position at t, gives the default marker.
func (st *Style) Marker(s *Sonde, t time.Time) Marker {
	if s == nil || len(s.Samples) == 0 {
		return st.Default()
	}
	i, falling := st.currentSample(s, t)
	smp := s.Samples[i]
	if math.IsNaN(smp.Lon) || math.IsNaN(smp.Lat) {
		return st.Default()
	}

	c := st.altitudeColor(smp.Alt)
	if t.After(s.LastTime()) {
		c = st.Landed
	}
	if t.Equal(s.LaunchTime) {
		c = st.Launched
	}

	alpha := 1.0
	if !falling {
		alpha = FadeAlpha(smp.Time, t, st.Fade)
	}
	return Marker{
		Lon:   smp.Lon,
		Lat:   smp.Lat,
		Fill:  c,
		Edge:  c,
		Alpha: alpha,
		Label: s.LaunchTime.Format("15:04"),
	}
}

// currentSample finds a sample recorded in the same minute as t, searching
// only every n/Subsamples-th sample counted back from the touchdown. When
// several match, the earliest wins. Without a match the sonde is considered
// on the ground and the touchdown sample is returned.
func (st *Style) currentSample(s *Sonde, t time.Time) (idx int, falling bool) {
	n := len(s.Samples)
	step := 1
	if st.Subsamples > 0 && n/st.Subsamples > 1 {
		step = n / st.Subsamples
	}
	minute := t.Truncate(time.Minute)
	idx = n - 1
	for k := 0; k < n; k += step {
		i := n - 1 - k
		if s.Samples[i].Time.Truncate(time.Minute).Equal(minute) {
			idx, falling = i, true
		}
	}
	return idx, falling
}

func (st *Style) altitudeColor(alt float64) color.Color {
	if math.IsNaN(alt) {
		alt = 0
	}
	alt = math.Max(st.ColorMap.Min(), math.Min(st.ColorMap.Max(), alt))
	c, err := st.ColorMap.At(alt)
	if err != nil {
		return st.Landed
	}
	return c
}

// FadeAlpha returns the opacity of a marker whose sonde stopped at last:
// ((last + fade - t) / fade)^3, at most 1 and at least 0.
func FadeAlpha(last, t time.Time, fade time.Duration) float64 {
	if fade <= 0 {
		return 0
	}
	r := float64(last.Add(fade).Sub(t)) / float64(fade)
	a := r * r * r
	return math.Max(0, math.Min(1, a))
}

// Markers returns one marker per slot for time t.
func (st *Style) Markers(all []*Sonde, t time.Time, slots int) []Marker {
	active := Active(all, t, st.Fade, slots)
	markers := make([]Marker, len(active))
	for i, s := range active {
		markers[i] = st.Marker(s, t)
	}
	return markers
}
