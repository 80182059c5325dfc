package video

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeFFmpeg writes a shell script standing in for ffmpeg. The script sees
// the output path as its last argument.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor a; do out=$a; done\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func frame(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	des, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, de := range des {
		names = append(names, de.Name())
	}
	return names
}

func TestFFmpegArgs(t *testing.T) {
	args := ffmpegArgs(Options{FPS: 10, Codec: "libx264", PixFmt: "yuv420p"}, "out.mp4")
	assert.Equal(t, "out.mp4", args[len(args)-1])
	assert.Contains(t, args, "image2pipe")
	assert.Contains(t, args, "yuv420p")
	i := indexOf(args, "-framerate")
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, "10", args[i+1])
}

func indexOf(args []string, s string) int {
	for i, a := range args {
		if a == s {
			return i
		}
	}
	return -1
}

func TestEncoderWritesAtomically(t *testing.T) {
	bin := fakeFFmpeg(t, `cat > "$out"`)
	dir := t.TempDir()
	out := filepath.Join(dir, "C02", "movie.mp4")

	e, err := NewEncoder(context.Background(), logger, out, Options{FFmpeg: bin, FPS: 10})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, e.WriteFrame(frame(4, 3, color.White)))
	}
	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err), "movie must not appear before Close")

	require.NoError(t, e.Close())
	assert.Equal(t, 3, e.Frames())
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
	assert.Equal(t, 3, bytes.Count(data, []byte("IEND")))
	assert.Equal(t, []string{"movie.mp4"}, entries(t, filepath.Dir(out)))

	assert.Error(t, e.WriteFrame(frame(4, 3, color.White)))
}

func TestEncoderFrameSize(t *testing.T) {
	bin := fakeFFmpeg(t, "cat >/dev/null")
	e, err := NewEncoder(context.Background(), logger, filepath.Join(t.TempDir(), "m.mp4"), Options{FFmpeg: bin, FPS: 1})
	require.NoError(t, err)
	defer e.Abort()

	require.NoError(t, e.WriteFrame(frame(4, 3, color.Black)))
	assert.Error(t, e.WriteFrame(frame(3, 4, color.Black)))
}

func TestEncoderFailure(t *testing.T) {
	bin := fakeFFmpeg(t, "cat >/dev/null\necho 'unknown encoder' >&2\nexit 3")
	dir := t.TempDir()
	out := filepath.Join(dir, "m.mp4")

	e, err := NewEncoder(context.Background(), logger, out, Options{FFmpeg: bin, FPS: 1})
	require.NoError(t, err)
	require.NoError(t, e.WriteFrame(frame(2, 2, color.Black)))
	err = e.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown encoder")
	assert.Empty(t, entries(t, dir))
}

func TestEncoderAbort(t *testing.T) {
	bin := fakeFFmpeg(t, "cat >/dev/null")
	dir := t.TempDir()

	e, err := NewEncoder(context.Background(), logger, filepath.Join(dir, "m.mp4"), Options{FFmpeg: bin, FPS: 1})
	require.NoError(t, err)
	require.NoError(t, e.WriteFrame(frame(2, 2, color.Black)))
	e.Abort()
	assert.Empty(t, entries(t, dir))
	assert.NoError(t, e.Close())
}

func TestNewEncoderRejectsFrameRate(t *testing.T) {
	_, err := NewEncoder(context.Background(), logger, filepath.Join(t.TempDir(), "m.mp4"), Options{FFmpeg: "ffmpeg"})
	assert.Error(t, err)
}

func TestEncoderFFmpeg(t *testing.T) {
	bin, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	out := filepath.Join(t.TempDir(), "m.mp4")
	e, err := NewEncoder(context.Background(), logger, out, Options{FFmpeg: bin, FPS: 5, Codec: "mpeg4"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		// odd size exercises the padding filter
		require.NoError(t, e.WriteFrame(frame(33, 21, color.Gray{Y: uint8(40 * i)})))
	}
	require.NoError(t, e.Close())
	fi, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, fi.Size(), int64(0))
}

func TestDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	d, err := NewDir(dir)
	require.NoError(t, err)
	var sink FrameSink = d
	require.NoError(t, sink.WriteFrame(frame(2, 2, color.White)))
	require.NoError(t, sink.WriteFrame(frame(2, 2, color.White)))
	require.NoError(t, sink.Close())
	assert.Equal(t, []string{"frame_00000.png", "frame_00001.png"}, entries(t, dir))
	assert.Equal(t, 2, d.Frames())
}
