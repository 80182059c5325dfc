// Command sondemovie makes a movie of the dropsondes of one flight day over
// the GOES images of that day.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/observingClouds/eurec4a-movies/internal/movie"
	"github.com/observingClouds/eurec4a-movies/internal/video"
)

var (
	date      = flag.String("date", "", "flight date, YYYY-MM-DD (default: date from the parameters file)")
	goesVarID = flag.String("goes_varid", "", "GOES variable ID (default: goes_varid from the parameters file)")
	params    = flag.String("params", "config/movie_params.yaml", "path to the movie parameters file")
	ffmpeg    = flag.String("ffmpeg", "", "ffmpeg executable (default: ffmpeg from PATH)")
	framesDir = flag.String("frames", "", "write the frames as PNG files into this directory instead of encoding a movie")
	verbose   = flag.Bool("v", false, "log debug messages")
)

func main() {
	flag.Parse()
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("Could not load .env", "err", err)
		os.Exit(1)
	}

	p, err := movie.LoadParams(*params)
	if err != nil {
		logger.Error("Could not load movie parameters", "err", err)
		os.Exit(1)
	}
	if *date != "" {
		p.Date = *date
	}
	if *goesVarID != "" {
		p.GoesVarID = *goesVarID
	}
	plan, err := p.Plan()
	if err != nil {
		logger.Error("Invalid movie timeline", "err", err)
		os.Exit(1)
	}
	logger.Info("Show dropsondes on GOES images",
		"day", p.Date,
		"step", p.DeltaT,
		"frames", plan.Frames,
		"start", p.StartTime,
		"fps", plan.FPS,
		"goesVarID", p.GoesVarID)

	scene, err := movie.NewScene(p)
	if err != nil {
		logger.Error("Could not set up the scene", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink video.FrameSink
	if *framesDir != "" {
		sink, err = video.NewDir(*framesDir)
	} else {
		sink, err = video.NewEncoder(ctx, logger, p.OutputPath(plan), video.Options{FFmpeg: *ffmpeg, FPS: plan.FPS})
	}
	if err != nil {
		logger.Error("Could not create the frame sink", "err", err)
		os.Exit(1)
	}

	c, err := movie.NewComposer(logger, p, plan, movie.NewFiles(p), scene, sink)
	if err != nil {
		sink.Abort()
		logger.Error("Could not create the composer", "err", err)
		os.Exit(1)
	}
	start := time.Now()
	if err := c.Run(ctx); err != nil {
		logger.Error("Movie failed", "err", err)
		os.Exit(1)
	}
	logger.Info("Done", "in", time.Since(start).Round(time.Second))
}
