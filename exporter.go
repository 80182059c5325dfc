package main

import (
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/observingClouds/eurec4a-movies/internal/catalog"
	"github.com/observingClouds/eurec4a-movies/internal/design"
	"github.com/observingClouds/eurec4a-movies/internal/frames"
	"github.com/observingClouds/eurec4a-movies/internal/render"
)

var (
	date      = flag.String("date", "20200205", "date to export, YYYYMMDD")
	startTime = flag.String("start_time", "00:00", "first frame time, HH:MM")
	stopTime  = flag.String("stop_time", "23:59", "last frame time, HH:MM")
	source    = flag.String("source", "opendap", "data source; only opendap is supported")
	overwrite = flag.Bool("overwrite", false, "render frames whose image file already exists")
	configDir = flag.String("config", "config", "directory holding design.yaml, access_opendap.yaml and output_user.yaml")
	verbose   = flag.Bool("v", false, "log debug messages")
)

// channels are the GOES channels opened at startup.
var channels = []int{13, 2}

func main() {
	flag.Parse()
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if *source != "opendap" {
		logger.Error("Unsupported source", "source", *source)
		os.Exit(1)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("Could not load .env", "err", err)
		os.Exit(1)
	}

	day, err := time.ParseInLocation("20060102", *date, time.UTC)
	if err != nil {
		logger.Error("Invalid date", "date", *date, "err", err)
		os.Exit(1)
	}
	start, err := time.ParseInLocation("2006010215:04", *date+*startTime, time.UTC)
	if err != nil {
		logger.Error("Invalid start time", "start_time", *startTime, "err", err)
		os.Exit(1)
	}
	stop, err := time.ParseInLocation("2006010215:04", *date+*stopTime, time.UTC)
	if err != nil {
		logger.Error("Invalid stop time", "stop_time", *stopTime, "err", err)
		os.Exit(1)
	}

	cfg, err := design.Load(*configDir)
	if err != nil {
		logger.Error("Could not load configuration", "err", err)
		os.Exit(1)
	}

	cli, err := catalog.NewClient(logger, cfg.Catalog)
	if err != nil {
		logger.Error("Could not create catalog client", "err", err)
		os.Exit(1)
	}
	defer cli.Close()

	sources, err := cli.Sources(day, channels)
	if err != nil {
		logger.Error("Could not open sources", "err", err)
		os.Exit(1)
	}
	defer sources.Close()
	logger.Info("Sources", "available", len(sources), "keys", sources.Keys())

	times := frames.TimeRange{Start: start, End: stop, Step: cfg.Design.Step}.Times()
	r := &render.Renderer{WidthInches: cfg.Design.WidthInches, DPI: cfg.Design.DPI}
	e := frames.New(logger, cfg.Design, cfg.Output, sources, r)
	e.Overwrite = *overwrite
	e.Progress = progressbar.Default(int64(len(times)), "frames")

	begin := time.Now()
	stats, err := e.Run(times)
	if err != nil {
		logger.Error("Export failed", "stats", stats, "err", err)
		os.Exit(1)
	}
	logger.Info("Export done", "stats", stats, "in", time.Since(begin).Round(time.Second))
}
