// Package movie composes the dropsonde movies: a GOES image background with
// the sondes of the day drawn on top, one frame per time step.
package movie

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/observingClouds/eurec4a-movies/internal/colormap"
	"github.com/observingClouds/eurec4a-movies/internal/design"
	"github.com/observingClouds/eurec4a-movies/internal/sonde"
)

// DateLayout is the layout of the movie date.
const DateLayout = "2006-01-02"

// Params holds every setting of a movie. It is read from a YAML document,
// the command line overriding Date and GoesVarID.
type Params struct {
	Date      string
	GoesVarID string
	// StartTime and EndTime are HH:MM on Date.
	StartTime string
	EndTime   string
	// DeltaT is the simulated time between two frames.
	DeltaT time.Duration
	// Fade is how long a sonde stays visible after its last sample.
	Fade time.Duration
	// SpeedFactor over DeltaT in seconds is the frame rate.
	SpeedFactor float64

	GoesDir   string
	SondeDir  string
	SondeFile string
	OutputDir string

	Domain    design.Box
	CenterLon float64
	CenterLat float64
	RCircle   float64

	WidthInches float64
	DPI         int

	AltMax    float64
	Colormap  string
	ColTop    string
	ColBottom string

	Slots        int
	MarkerRadius float64
	MinSamples   int
	Subsamples   int

	TimeFontSize      float64
	LabelFontSize     float64
	ColorbarFontSize  float64
	ColorbarLabelSize float64
}

// LoadParams reads the movie parameters document at path.
func LoadParams(path string) (*Params, error) {
	v := design.NewViper(path)
	v.SetDefault("date", "2020-02-05")
	v.SetDefault("goes_varid", "C02")
	v.SetDefault("start_time", "08:00")
	v.SetDefault("end_time", "18:00")
	v.SetDefault("delta_t", 60)
	v.SetDefault("dt_fade", 30)
	v.SetDefault("speed_factor", 600.0)
	v.SetDefault("goesdir", "images")
	v.SetDefault("sondedir", "sondes")
	v.SetDefault("sonde_file", "all_sondes.nc")
	v.SetDefault("outputdir", "movies")
	v.SetDefault("domain.lonmin", -60.0)
	v.SetDefault("domain.lonmax", -55.4)
	v.SetDefault("domain.latmin", 11.8)
	v.SetDefault("domain.latmax", 14.8)
	v.SetDefault("lon_center", -57.717)
	v.SetDefault("lat_center", 13.3)
	v.SetDefault("r_circle", 1.0)
	v.SetDefault("w_inches", 16.0)
	v.SetDefault("dpi", 100)
	v.SetDefault("altmax", 10000.0)
	v.SetDefault("colormap", "viridis")
	v.SetDefault("col_top", "#fde725")
	v.SetDefault("col_bottom", "darkorange")
	v.SetDefault("slots", 30)
	v.SetDefault("marker_radius", 0.03)
	v.SetDefault("min_samples", 15)
	v.SetDefault("subsamples", 15)
	v.SetDefault("font.time", 30.0)
	v.SetDefault("font.label", 20.0)
	v.SetDefault("font.colorbar", 15.0)
	v.SetDefault("font.colorbar_label", 20.0)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	p := &Params{
		Date:        v.GetString("date"),
		GoesVarID:   v.GetString("goes_varid"),
		StartTime:   v.GetString("start_time"),
		EndTime:     v.GetString("end_time"),
		DeltaT:      time.Duration(v.GetFloat64("delta_t") * float64(time.Second)),
		Fade:        time.Duration(v.GetFloat64("dt_fade") * float64(time.Minute)),
		SpeedFactor: v.GetFloat64("speed_factor"),
		GoesDir:     v.GetString("goesdir"),
		SondeDir:    v.GetString("sondedir"),
		SondeFile:   v.GetString("sonde_file"),
		OutputDir:   v.GetString("outputdir"),
		Domain: design.Box{
			LonMin: v.GetFloat64("domain.lonmin"),
			LonMax: v.GetFloat64("domain.lonmax"),
			LatMin: v.GetFloat64("domain.latmin"),
			LatMax: v.GetFloat64("domain.latmax"),
		},
		CenterLon:         v.GetFloat64("lon_center"),
		CenterLat:         v.GetFloat64("lat_center"),
		RCircle:           v.GetFloat64("r_circle"),
		WidthInches:       v.GetFloat64("w_inches"),
		DPI:               v.GetInt("dpi"),
		AltMax:            v.GetFloat64("altmax"),
		Colormap:          v.GetString("colormap"),
		ColTop:            v.GetString("col_top"),
		ColBottom:         v.GetString("col_bottom"),
		Slots:             v.GetInt("slots"),
		MarkerRadius:      v.GetFloat64("marker_radius"),
		MinSamples:        v.GetInt("min_samples"),
		Subsamples:        v.GetInt("subsamples"),
		TimeFontSize:      v.GetFloat64("font.time"),
		LabelFontSize:     v.GetFloat64("font.label"),
		ColorbarFontSize:  v.GetFloat64("font.colorbar"),
		ColorbarLabelSize: v.GetFloat64("font.colorbar_label"),
	}
	if err := p.Domain.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Plan is the timeline of a movie.
type Plan struct {
	Start  time.Time
	End    time.Time
	Step   time.Duration
	Frames int
	FPS    float64
}

// Time returns the simulated time of frame i.
func (pl Plan) Time(i int) time.Time {
	return pl.Start.Add(time.Duration(i) * pl.Step)
}

// Plan derives the movie timeline: floor((end-start)/DeltaT) frames shown at
// SpeedFactor/DeltaT frames per second.
func (p *Params) Plan() (Plan, error) {
	start, err := time.ParseInLocation(DateLayout+"15:04", p.Date+p.StartTime, time.UTC)
	if err != nil {
		return Plan{}, fmt.Errorf("start: %w", err)
	}
	end, err := time.ParseInLocation(DateLayout+"15:04", p.Date+p.EndTime, time.UTC)
	if err != nil {
		return Plan{}, fmt.Errorf("end: %w", err)
	}
	if p.DeltaT <= 0 {
		return Plan{}, fmt.Errorf("delta_t must be positive, got %v", p.DeltaT)
	}
	if !end.After(start) {
		return Plan{}, fmt.Errorf("end %s is not after start %s", p.EndTime, p.StartTime)
	}
	if p.SpeedFactor <= 0 {
		return Plan{}, fmt.Errorf("speed_factor must be positive, got %v", p.SpeedFactor)
	}
	pl := Plan{
		Start:  start,
		End:    end,
		Step:   p.DeltaT,
		Frames: int(end.Sub(start) / p.DeltaT),
		FPS:    p.SpeedFactor / p.DeltaT.Seconds(),
	}
	if pl.Frames == 0 {
		return Plan{}, fmt.Errorf("no frame between %s and %s every %v", p.StartTime, p.EndTime, p.DeltaT)
	}
	return pl, nil
}

// OutputPath returns <outputdir>/<goes_varid>/<date>_<HH:MM>_<HH:MM>.mp4.
func (p *Params) OutputPath(pl Plan) string {
	name := fmt.Sprintf("%s_%s_%s.mp4", pl.Start.Format(DateLayout), pl.Start.Format("15:04"), pl.End.Format("15:04"))
	return filepath.Join(p.OutputDir, p.GoesVarID, name)
}

// SondePath returns the sonde archive file.
func (p *Params) SondePath() string {
	return filepath.Join(p.SondeDir, p.SondeFile)
}

// Style returns the marker style: the colormap spans [0, AltMax], landed
// sondes take ColBottom and sondes at their launch minute ColTop.
func (p *Params) Style() (*sonde.Style, error) {
	cm, err := colormap.Lookup(p.Colormap)
	if err != nil {
		return nil, err
	}
	if p.AltMax <= 0 {
		return nil, fmt.Errorf("altmax must be positive, got %v", p.AltMax)
	}
	cm.SetMin(0)
	cm.SetMax(p.AltMax)
	top, err := colormap.Color(p.ColTop)
	if err != nil {
		return nil, err
	}
	bottom, err := colormap.Color(p.ColBottom)
	if err != nil {
		return nil, err
	}
	return &sonde.Style{
		ColorMap:   cm,
		AltMax:     p.AltMax,
		Landed:     bottom,
		Launched:   top,
		Fade:       p.Fade,
		Subsamples: p.Subsamples,
		DefaultLon: p.CenterLon,
		DefaultLat: p.CenterLat,
	}, nil
}
