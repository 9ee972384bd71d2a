package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/cruisereel/internal/audio"
	"github.com/ivlev/cruisereel/internal/config"
)

func testParams() Params {
	cfg := config.Default()
	cfg.Render.Width, cfg.Render.Height = 64, 36
	cfg.Timeline.FPS = 10
	return NewParams(cfg, "libx264")
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestBuildFFmpegArgs(t *testing.T) {
	p := testParams()
	args := buildFFmpegArgs(p)
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-f rawvideo -pixel_format rgba -video_size 64x36 -framerate 10")
	assert.Contains(t, joined, "-i pipe:0")
	assert.Contains(t, joined, "-f s16le -ar 48000 -ac 2")
	assert.Contains(t, joined, "-i pipe:3")
	assert.Contains(t, joined, "-shortest")
	assert.Equal(t, "libx264", argValue(args, "-c:v"))
	assert.Equal(t, "aac", argValue(args, "-c:a"))
	assert.Equal(t, "128k", argValue(args, "-b:a"))
	assert.Equal(t, "yuv420p", argValue(args, "-pix_fmt"))
	assert.Equal(t, "pipe:1", args[len(args)-1])
}

func TestQualityArgs(t *testing.T) {
	tests := []struct {
		encoder string
		quality int
		want    []string
	}{
		{"h264_videotoolbox", 75, []string{"-b:v", "7500k"}},
		{"h264_videotoolbox", 0, []string{"-b:v", "6000k"}},
		{"h264_nvenc", 28, []string{"-cq", "28"}},
		{"libx264", 20, []string{"-crf", "20", "-preset", "medium"}},
		{"libx264", 0, []string{"-crf", "23", "-preset", "medium"}},
	}
	for _, tt := range tests {
		t.Run(tt.encoder, func(t *testing.T) {
			assert.Equal(t, tt.want, qualityArgs(tt.encoder, tt.quality))
		})
	}
}

func TestWriteRawRGBAPacksSubImages(t *testing.T) {
	big := image.NewRGBA(image.Rect(0, 0, 4, 4))
	big.SetRGBA(1, 1, color.RGBA{R: 9, G: 8, B: 7, A: 255})
	sub := big.SubImage(image.Rect(1, 1, 3, 3)).(*image.RGBA)

	var buf bytes.Buffer
	require.NoError(t, writeRawRGBA(&buf, sub))
	require.Equal(t, 2*2*4, buf.Len())
	assert.Equal(t, []byte{9, 8, 7, 255}, buf.Bytes()[:4])
}

func TestOpenMissingBinary(t *testing.T) {
	enc := &FFmpegEncoder{Path: "/nonexistent/cruisereel-ffmpeg"}
	_, err := enc.Open(context.Background(), testParams(), nil)
	assert.ErrorIs(t, err, ErrEncoderInit)
}

func TestWriteFrameRejectsWrongSize(t *testing.T) {
	s := &ffmpegSession{params: testParams(), ring: NewLineRing(4)}
	err := s.WriteFrame(image.NewRGBA(image.Rect(0, 0, 10, 10)))
	assert.ErrorIs(t, err, ErrEncoderRuntime)
}

func TestFFmpegSessionProducesMP4(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	p := testParams()
	pad := audio.NewPad(config.Default().Audio)
	const frames = 20

	enc := &FFmpegEncoder{Path: "ffmpeg"}
	s, err := enc.Open(context.Background(), p, pad.NewReader(float64(frames)/float64(p.FPS)))
	require.NoError(t, err)

	frame := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	for i := 0; i < frames; i++ {
		for j := range frame.Pix {
			frame.Pix[j] = uint8(i * 10)
		}
		require.NoError(t, s.WriteFrame(frame))
	}
	out, err := s.Finalize()
	require.NoError(t, err)
	s.Abort()

	assert.Equal(t, frames, out.Frames)
	assert.InDelta(t, 2.0, out.Duration, 1e-9)
	assert.Equal(t, ContentType, out.ContentType)
	require.Greater(t, len(out.Data), 8)
	assert.Equal(t, "ftyp", string(out.Data[4:8]))
}

func TestFFmpegSessionAbort(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	p := testParams()
	pad := audio.NewPad(config.Default().Audio)

	enc := &FFmpegEncoder{Path: "ffmpeg"}
	s, err := enc.Open(context.Background(), p, pad.NewReader(10))
	require.NoError(t, err)
	require.NoError(t, s.WriteFrame(image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))))

	s.Abort()
	s.Abort()
	_, err = s.Finalize()
	assert.ErrorIs(t, err, ErrEncoderRuntime)
}

// fakeFFmpeg writes a shell script that stands in for the ffmpeg binary.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func writeFrames(t *testing.T, s Session, p Params, n int) {
	t.Helper()
	frame := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	for i := 0; i < n; i++ {
		require.NoError(t, s.WriteFrame(frame))
	}
}

func TestSessionFeedsAudioAndCollectsOutput(t *testing.T) {
	bin := fakeFFmpeg(t, `head -c 1000 <&3 >/dev/null
cat >/dev/null
printf 'ftypfake-mp4'`)
	p := testParams()
	pad := audio.NewPad(config.Default().Audio)

	s, err := (&FFmpegEncoder{Path: bin}).Open(context.Background(), p, pad.NewReader(10))
	require.NoError(t, err)
	writeFrames(t, s, p, 5)

	out, err := s.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "ftypfake-mp4", string(out.Data))
	assert.Equal(t, 5, out.Frames)
	assert.InDelta(t, 0.5, out.Duration, 1e-9)
	assert.Equal(t, ContentType, out.ContentType)
}

func TestSessionIgnoresAudioPipeClosedEarly(t *testing.T) {
	// exits without reading the audio pipe, like -shortest ending the stream
	bin := fakeFFmpeg(t, `printf 'ftyp-early'`)
	p := testParams()
	pad := audio.NewPad(config.Default().Audio)

	s, err := (&FFmpegEncoder{Path: bin}).Open(context.Background(), p, pad.NewReader(30))
	require.NoError(t, err)

	out, err := s.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "ftyp-early", string(out.Data))
	assert.Zero(t, out.Frames)
}

func TestSessionReportsEncoderFailure(t *testing.T) {
	bin := fakeFFmpeg(t, `echo "Unknown encoder 'libx264'" >&2
exit 1`)
	p := testParams()

	s, err := (&FFmpegEncoder{Path: bin}).Open(context.Background(), p, nil)
	require.NoError(t, err)

	_, err = s.Finalize()
	assert.ErrorIs(t, err, ErrEncoderRuntime)
	assert.ErrorContains(t, err, "Unknown encoder")
}

func TestSessionRejectsEmptyOutput(t *testing.T) {
	bin := fakeFFmpeg(t, `cat >/dev/null`)
	p := testParams()

	s, err := (&FFmpegEncoder{Path: bin}).Open(context.Background(), p, nil)
	require.NoError(t, err)
	writeFrames(t, s, p, 2)

	_, err = s.Finalize()
	assert.ErrorIs(t, err, ErrEncoderRuntime)
	assert.ErrorContains(t, err, "empty output")
}

func TestSessionAbortKillsEncoder(t *testing.T) {
	bin := fakeFFmpeg(t, `exec sleep 30`)
	p := testParams()
	pad := audio.NewPad(config.Default().Audio)

	s, err := (&FFmpegEncoder{Path: bin}).Open(context.Background(), p, pad.NewReader(30))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.Abort()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("abort did not return")
	}
	_, err = s.Finalize()
	assert.ErrorIs(t, err, ErrEncoderRuntime)
}

func TestOpenFailsWhenAudioPipeFails(t *testing.T) {
	orig := newPipe
	newPipe = func() (*os.File, *os.File, error) { return nil, nil, errors.New("too many open files") }
	defer func() { newPipe = orig }()

	_, err := (&FFmpegEncoder{Path: "ffmpeg"}).Open(context.Background(), testParams(), nil)
	assert.ErrorIs(t, err, ErrEncoderInit)
	assert.ErrorContains(t, err, "audio pipe")
}
