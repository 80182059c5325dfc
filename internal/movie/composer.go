package movie

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/observingClouds/eurec4a-movies/internal/sonde"
	"github.com/observingClouds/eurec4a-movies/internal/video"
)

// State is the stage a Composer is in.
type State int

const (
	// Preparing: inputs not loaded yet.
	Preparing State = iota
	// Streaming: frames are being produced.
	Streaming
	// Done: the movie is finalized or was abandoned.
	Done
)

func (s State) String() string {
	switch s {
	case Preparing:
		return "preparing"
	case Streaming:
		return "streaming"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Drawer renders a frame.
type Drawer interface {
	Draw(f Frame) (image.Image, error)
}

// Composer produces the frames of one movie and feeds them to a sink.
type Composer struct {
	logger *slog.Logger
	plan   Plan
	slots  int
	style  *sonde.Style
	inputs Inputs
	drawer Drawer
	sink   video.FrameSink

	state  State
	sondes []*sonde.Sonde
}

// NewComposer creates a composer for the movie described by p and pl.
func NewComposer(logger *slog.Logger, p *Params, pl Plan, inputs Inputs, drawer Drawer, sink video.FrameSink) (*Composer, error) {
	style, err := p.Style()
	if err != nil {
		return nil, err
	}
	if p.Slots <= 0 {
		return nil, fmt.Errorf("slots must be positive, got %d", p.Slots)
	}
	return &Composer{
		logger: logger,
		plan:   pl,
		slots:  p.Slots,
		style:  style,
		inputs: inputs,
		drawer: drawer,
		sink:   sink,
	}, nil
}

// State returns the current stage.
func (c *Composer) State() State {
	return c.state
}

// Prepare loads the sondes of the day and checks the first image is
// readable.
func (c *Composer) Prepare() error {
	if c.state != Preparing {
		return fmt.Errorf("prepare: composer is %s", c.state)
	}
	if _, err := c.inputs.Image(c.plan.Start); err != nil {
		return err
	}
	sondes, err := c.inputs.Sondes(c.plan.Start)
	if err != nil {
		return fmt.Errorf("load sondes: %w", err)
	}
	c.sondes = sondes
	c.logger.Info("Loaded sondes", "day", c.plan.Start.Format(DateLayout), "count", len(sondes))
	c.state = Streaming
	return nil
}

// Frame returns the state of the picture at t.
func (c *Composer) Frame(t time.Time) (Frame, error) {
	img, err := c.inputs.Image(t)
	if err != nil {
		return Frame{}, err
	}
	if n := sonde.CountActive(c.sondes, t, c.style.Fade); n > c.slots {
		c.logger.Debug("More active sondes than slots", "time", t, "active", n, "dropped", n-c.slots)
	}
	return Frame{
		Time:       t,
		Background: img,
		Markers:    c.style.Markers(c.sondes, t, c.slots),
	}, nil
}

// Run prepares the composer if needed, streams every frame of the plan and
// finalizes the movie. On failure the partial movie is discarded.
func (c *Composer) Run(ctx context.Context) (err error) {
	defer func() {
		if err != nil && c.state != Done {
			err = errors.Join(err, c.sink.Abort())
		}
		c.state = Done
	}()
	if c.state == Preparing {
		if err := c.Prepare(); err != nil {
			return err
		}
	}
	if c.state != Streaming {
		return fmt.Errorf("run: composer is %s", c.state)
	}

	start := time.Now()
	for i := 0; i < c.plan.Frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := c.plan.Time(i)
		if t.Minute()%10 == 0 && t.Second() == 0 {
			c.logger.Info("progress", "time", t.Format("2006-01-02 15:04"), "frame", i+1, "of", c.plan.Frames, "in", time.Since(start).Round(time.Second))
		}
		f, err := c.Frame(t)
		if err != nil {
			return fmt.Errorf("frame %d (%s): %w", i, t.Format(time.RFC3339), err)
		}
		img, err := c.drawer.Draw(f)
		if err != nil {
			return fmt.Errorf("frame %d (%s): %w", i, t.Format(time.RFC3339), err)
		}
		if err := c.sink.WriteFrame(img); err != nil {
			return fmt.Errorf("frame %d (%s): %w", i, t.Format(time.RFC3339), err)
		}
	}
	if err := c.sink.Close(); err != nil {
		return err
	}
	c.state = Done
	return nil
}
