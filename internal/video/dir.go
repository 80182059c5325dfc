package video

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// Dir writes every frame as a numbered PNG file into a directory. It is
// meant for inspecting single frames without encoding a movie.
type Dir struct {
	path   string
	frames int
}

// NewDir creates the directory at path if needed.
func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}
	return &Dir{path: path}, nil
}

// WriteFrame writes frame_NNNNN.png.
func (d *Dir) WriteFrame(img image.Image) error {
	name := filepath.Join(d.path, fmt.Sprintf("frame_%05d.png", d.frames))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	d.frames++
	return nil
}

// Frames returns the number of frames written so far.
func (d *Dir) Frames() int {
	return d.frames
}

func (d *Dir) Close() error { return nil }
func (d *Dir) Abort() error { return nil }
