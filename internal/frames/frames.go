// Package frames exports one satellite image per time step of a time range.
package frames

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/observingClouds/eurec4a-movies/internal/design"
	"github.com/observingClouds/eurec4a-movies/internal/satellite"
)

// TimeRange is an inclusive range of times sampled every Step.
type TimeRange struct {
	Start time.Time
	End   time.Time
	Step  time.Duration
}

// Times returns Start, Start+Step, ... up to and including End.
func (r TimeRange) Times() []time.Time {
	if r.Step <= 0 || r.End.Before(r.Start) {
		return nil
	}
	var ts []time.Time
	for t := r.Start; !t.After(r.End); t = t.Add(r.Step) {
		ts = append(ts, t)
	}
	return ts
}

// FrameWriter draws a frame and saves it. g is nil when no data is available
// for the frame.
type FrameWriter interface {
	WriteFrame(path string, g *satellite.Grid, fc design.FrameConfig) error
}

// Progress is notified once per processed time step.
type Progress interface {
	Add(n int) error
}

// Stats summarizes an export run. Rendered counts the frames written with
// data and Blank the ones written without.
type Stats struct {
	Rendered int
	Skipped  int
	Blank    int
	BySource map[satellite.Key]int
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("rendered", s.Rendered),
		slog.Int("skipped", s.Skipped),
		slog.Int("blank", s.Blank),
	}
	for k, n := range s.BySource {
		attrs = append(attrs, slog.Int(k.String(), n))
	}
	return slog.GroupValue(attrs...)
}

// Exporter writes one image file per time step. Existing files are left
// alone unless Overwrite is set, so an interrupted run can be restarted.
type Exporter struct {
	logger  *slog.Logger
	design  *design.Design
	output  *design.Output
	sources satellite.Sources
	writer  FrameWriter

	Tiers     []satellite.Tier
	Overwrite bool
	Progress  Progress
}

// New creates a new exporter.
func New(logger *slog.Logger, d *design.Design, o *design.Output, sources satellite.Sources, w FrameWriter) *Exporter {
	return &Exporter{
		logger:  logger,
		design:  d,
		output:  o,
		sources: sources,
		writer:  w,
		Tiers:   satellite.DefaultTiers,
	}
}

// Run exports the frames for times in order. It stops at the first error;
// frames written before it stay on disk.
func (e *Exporter) Run(times []time.Time) (Stats, error) {
	stats := Stats{BySource: make(map[satellite.Key]int)}
	for _, t := range times {
		if err := e.export(t, &stats); err != nil {
			return stats, fmt.Errorf("frame %s: %w", t.Format(time.RFC3339), err)
		}
		if e.Progress != nil {
			e.Progress.Add(1)
		}
	}
	return stats, nil
}

func (e *Exporter) export(t time.Time, stats *Stats) error {
	fc, window, err := e.design.Resolve(t)
	if err != nil {
		return err
	}
	path, err := e.output.Path(t)
	if err != nil {
		return err
	}
	if !e.Overwrite {
		if _, err := os.Stat(path); err == nil {
			stats.Skipped++
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	g, key, ok := e.sources.Select(fc.Channel, t, e.Tiers)
	if ok {
		e.logger.Debug("Rendering frame", "time", t, "source", key.String(), "sample", g.Time, "window", window, "path", path)
	} else {
		e.logger.Debug("No data for frame, writing blank image", "time", t, "channel", fc.Channel, "window", window, "path", path)
	}
	if err := e.writer.WriteFrame(path, g, fc); err != nil {
		return err
	}
	if !ok {
		stats.Blank++
		return nil
	}
	stats.Rendered++
	stats.BySource[key]++
	return nil
}
