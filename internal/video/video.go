// Package video turns a sequence of frames into a movie file.
package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// FrameSink consumes the frames of one movie. Close finalizes the output;
// Abort discards it.
type FrameSink interface {
	WriteFrame(img image.Image) error
	Close() error
	Abort() error
}

// Options configures the ffmpeg encoder.
type Options struct {
	// FFmpeg is the ffmpeg executable. Empty means "ffmpeg" from PATH.
	FFmpeg string
	FPS    float64
	// Codec and PixFmt default to libx264 and yuv420p.
	Codec  string
	PixFmt string
}

// Encoder pipes PNG-encoded frames into an ffmpeg process. The movie is
// written to a temporary file next to the destination and renamed into
// place by Close, so a partial movie never appears under the final name.
type Encoder struct {
	logger *slog.Logger
	path   string
	tmp    string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	w      *bufio.Writer
	stderr bytes.Buffer
	png    png.Encoder
	size   image.Point
	frames int
	done   bool
}

// NewEncoder starts ffmpeg writing the movie at path.
func NewEncoder(ctx context.Context, logger *slog.Logger, path string, opts Options) (*Encoder, error) {
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("invalid frame rate %v", opts.FPS)
	}
	bin := opts.FFmpeg
	if bin == "" {
		p, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("find ffmpeg executable: %w", err)
		}
		bin = p
	}
	if opts.Codec == "" {
		opts.Codec = "libx264"
	}
	if opts.PixFmt == "" {
		opts.PixFmt = "yuv420p"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".movie-*"+filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("make temp file: %w", err)
	}
	f.Close()

	e := &Encoder{
		logger: logger,
		path:   path,
		tmp:    f.Name(),
		png:    png.Encoder{CompressionLevel: png.BestSpeed},
	}
	e.cmd = exec.CommandContext(ctx, bin, ffmpegArgs(opts, e.tmp)...)
	e.cmd.Stderr = &e.stderr
	if e.stdin, err = e.cmd.StdinPipe(); err != nil {
		os.Remove(e.tmp)
		return nil, err
	}
	if err := e.cmd.Start(); err != nil {
		os.Remove(e.tmp)
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}
	e.w = bufio.NewWriterSize(e.stdin, 1<<20)
	logger.Debug("Started encoder", "cmd", e.cmd.String())
	return e, nil
}

func ffmpegArgs(opts Options, out string) []string {
	return []string{
		"-y", "-loglevel", "error",
		"-f", "image2pipe",
		"-framerate", strconv.FormatFloat(opts.FPS, 'f', -1, 64),
		"-c:v", "png",
		"-i", "-",
		// h264 needs even dimensions
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", opts.Codec,
		"-pix_fmt", opts.PixFmt,
		"-f", "mp4",
		out,
	}
}

// WriteFrame encodes one frame. All frames must have the size of the first.
func (e *Encoder) WriteFrame(img image.Image) error {
	if e.done {
		return errors.New("encoder closed")
	}
	size := img.Bounds().Size()
	if e.frames == 0 {
		e.size = size
	} else if size != e.size {
		return fmt.Errorf("frame %d is %v, want %v", e.frames, size, e.size)
	}
	if err := e.png.Encode(e.w, img); err != nil {
		return fmt.Errorf("ffmpeg: frame %d: %w", e.frames, err)
	}
	e.frames++
	return nil
}

// Frames returns the number of frames written so far.
func (e *Encoder) Frames() int {
	return e.frames
}

// Close waits for ffmpeg to finish and moves the movie into place.
func (e *Encoder) Close() error {
	if e.done {
		return nil
	}
	e.done = true
	err := e.w.Flush()
	if cerr := e.stdin.Close(); err == nil {
		err = cerr
	}
	if werr := e.cmd.Wait(); werr != nil {
		err = werr
	}
	if err != nil {
		os.Remove(e.tmp)
		return e.failure(err)
	}
	if err := os.Rename(e.tmp, e.path); err != nil {
		os.Remove(e.tmp)
		return err
	}
	e.logger.Info("Wrote movie", "path", e.path, "frames", e.frames)
	return nil
}

// Abort stops ffmpeg and removes the partial movie.
func (e *Encoder) Abort() error {
	if e.done {
		return nil
	}
	e.done = true
	e.stdin.Close()
	if e.cmd.Process != nil {
		e.cmd.Process.Kill()
	}
	e.cmd.Wait()
	return os.Remove(e.tmp)
}

func (e *Encoder) failure(err error) error {
	if msg := strings.TrimSpace(e.stderr.String()); msg != "" {
		return fmt.Errorf("ffmpeg: %w (stderr: %q)", err, msg)
	}
	return fmt.Errorf("ffmpeg: %w", err)
}
