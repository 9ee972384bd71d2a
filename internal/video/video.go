package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/cruisereel/internal/config"
	"github.com/ivlev/cruisereel/internal/log"
	"github.com/ivlev/cruisereel/internal/metrics"
)

var (
	// ErrEncoderInit means the encoder process could not be started.
	ErrEncoderInit = errors.New("encoder init failed")
	// ErrEncoderRuntime means the encoder failed while frames were written or finalized.
	ErrEncoderRuntime = errors.New("encoder runtime failure")
)

const ContentType = "video/mp4"

// Params describes the stream handed to the encoder.
type Params struct {
	Width, Height int
	FPS           int
	SampleRate    int
	Channels      int
	Encoder       string
	Quality       int
	AudioBitrate  string
}

// NewParams derives encoder parameters from configuration. encoder overrides
// the configured video encoder when non-empty (probing result).
func NewParams(cfg *config.Config, encoder string) Params {
	if encoder == "" {
		encoder = cfg.Encode.VideoEncoder
	}
	return Params{
		Width:        cfg.Render.Width,
		Height:       cfg.Render.Height,
		FPS:          cfg.Timeline.FPS,
		SampleRate:   cfg.Audio.SampleRate,
		Channels:     cfg.Audio.Channels,
		Encoder:      encoder,
		Quality:      cfg.Encode.Quality,
		AudioBitrate: cfg.Encode.AudioBitrate,
	}
}

// Output is the finished, downloadable video.
type Output struct {
	Data        []byte
	ContentType string
	Filename    string
	Frames      int
	Duration    float64
	Partial     bool
}

// VideoEncoder opens streaming encode sessions.
type VideoEncoder interface {
	Open(ctx context.Context, params Params, audio io.Reader) (Session, error)
}

// Session accepts frames in presentation order.
type Session interface {
	WriteFrame(img *image.RGBA) error
	// Finalize flushes the encoder and returns once the container is complete.
	Finalize() (*Output, error)
	// Abort stops the encoder and discards its output. Safe to call more than once.
	Abort()
}

// newPipe creates the audio pipe handed to ffmpeg as fd 3.
var newPipe = os.Pipe

// FFmpegEncoder runs one ffmpeg process per session: raw RGBA frames on stdin,
// PCM on fd 3, fragmented MP4 on stdout.
type FFmpegEncoder struct {
	Path string
}

func (e *FFmpegEncoder) Open(ctx context.Context, params Params, audio io.Reader) (Session, error) {
	if params.Width <= 0 || params.Height <= 0 || params.FPS <= 0 {
		return nil, fmt.Errorf("%w: invalid stream %dx%d@%d", ErrEncoderInit, params.Width, params.Height, params.FPS)
	}
	if params.Encoder == "" {
		params.Encoder = "libx264"
	}
	path := e.Path
	if path == "" {
		path = "ffmpeg"
	}
	logger := log.WithComponent("ffmpeg")

	// the process outlives a cancelled caller so a partial run can still be finalized
	procCtx, kill := context.WithCancel(context.WithoutCancel(ctx))
	args := buildFFmpegArgs(params)
	cmd := exec.CommandContext(procCtx, path, args...)

	audioR, audioW, err := newPipe()
	if err != nil {
		kill()
		return nil, fmt.Errorf("%w: audio pipe: %w", ErrEncoderInit, err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		audioR.Close()
		audioW.Close()
		kill()
		return nil, fmt.Errorf("%w: stdin pipe: %w", ErrEncoderInit, err)
	}
	cmd.ExtraFiles = []*os.File{audioR}

	s := &ffmpegSession{
		params: params,
		cmd:    cmd,
		stdin:  stdin,
		kill:   kill,
		ring:   NewLineRing(64),
		logger: logger,
	}
	cmd.Stdout = &s.out
	cmd.Stderr = s.ring

	logger.Debug().Str("bin", path).Strs("args", args).Msg("starting encoder")
	if err := cmd.Start(); err != nil {
		audioR.Close()
		audioW.Close()
		kill()
		return nil, fmt.Errorf("%w: start %s: %w", ErrEncoderInit, path, err)
	}
	audioR.Close()

	s.feed.Go(func() error {
		defer audioW.Close()
		if audio == nil {
			return nil
		}
		if _, err := io.Copy(audioW, audio); err != nil && !isClosedPipe(err) {
			return fmt.Errorf("feed audio: %w", err)
		}
		return nil
	})
	return s, nil
}

type ffmpegSession struct {
	params Params
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	kill   context.CancelFunc
	feed   errgroup.Group
	out    bytes.Buffer
	ring   *LineRing
	logger zerolog.Logger

	frames int
	once   sync.Once
	done   bool
}

func (s *ffmpegSession) WriteFrame(img *image.RGBA) error {
	if s.done {
		return fmt.Errorf("%w: session closed", ErrEncoderRuntime)
	}
	if sz := img.Bounds().Size(); sz.X != s.params.Width || sz.Y != s.params.Height {
		return fmt.Errorf("%w: frame is %v, stream is %dx%d", ErrEncoderRuntime, sz, s.params.Width, s.params.Height)
	}
	if err := writeRawRGBA(s.stdin, img); err != nil {
		return fmt.Errorf("%w: write frame %d: %w (%s)", ErrEncoderRuntime, s.frames, err, s.ring.Tail(5))
	}
	s.frames++
	return nil
}

func (s *ffmpegSession) Finalize() (*Output, error) {
	if s.done {
		return nil, fmt.Errorf("%w: session closed", ErrEncoderRuntime)
	}
	s.done = true
	defer s.kill()

	closeErr := s.stdin.Close()
	waitErr := s.cmd.Wait()
	feedErr := s.feed.Wait()

	switch {
	case waitErr != nil:
		metrics.EncoderExits.WithLabelValues("error").Inc()
		s.logger.Error().Err(waitErr).Strs("stderr", s.ring.LastN(20)).Msg("encoder failed")
		return nil, fmt.Errorf("%w: %w (%s)", ErrEncoderRuntime, waitErr, s.ring.Tail(5))
	case closeErr != nil && !isClosedPipe(closeErr):
		metrics.EncoderExits.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: close video input: %w", ErrEncoderRuntime, closeErr)
	case feedErr != nil:
		metrics.EncoderExits.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrEncoderRuntime, feedErr)
	}
	if s.out.Len() == 0 {
		metrics.EncoderExits.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: empty output (%s)", ErrEncoderRuntime, s.ring.Tail(5))
	}

	metrics.EncoderExits.WithLabelValues("ok").Inc()
	s.logger.Debug().Int("frames", s.frames).Int("bytes", s.out.Len()).Msg("encoder finished")
	return &Output{
		Data:        s.out.Bytes(),
		ContentType: ContentType,
		Frames:      s.frames,
		Duration:    float64(s.frames) / float64(s.params.FPS),
	}, nil
}

func (s *ffmpegSession) Abort() {
	s.once.Do(func() {
		if s.done {
			return
		}
		s.done = true
		s.kill()
		_ = s.stdin.Close()
		_ = s.cmd.Wait()
		_ = s.feed.Wait()
		s.out.Reset()
		metrics.EncoderExits.WithLabelValues("aborted").Inc()
		s.logger.Debug().Int("frames", s.frames).Msg("encoder aborted")
	})
}

func buildFFmpegArgs(p Params) []string {
	fps := strconv.Itoa(p.FPS)
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", fps,
		"-thread_queue_size", "512",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(p.SampleRate),
		"-ac", strconv.Itoa(p.Channels),
		"-thread_queue_size", "512",
		"-i", "pipe:3",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", p.Encoder,
	}
	args = append(args, qualityArgs(p.Encoder, p.Quality)...)

	bitrate := p.AudioBitrate
	if bitrate == "" {
		bitrate = "128k"
	}
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-r", fps,
		"-c:a", "aac",
		"-b:a", bitrate,
		"-shortest",
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"-f", "mp4",
		"pipe:1",
	)
	return args
}

// qualityArgs maps one quality knob onto each encoder's rate control. Zero
// selects the encoder default.
func qualityArgs(encoder string, quality int) []string {
	switch encoder {
	case "h264_videotoolbox":
		if quality <= 0 {
			quality = 60
		}
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		if quality <= 0 {
			quality = 23
		}
		return []string{"-cq", strconv.Itoa(quality)}
	default: // libx264
		if quality <= 0 {
			quality = 23
		}
		return []string{"-crf", strconv.Itoa(quality), "-preset", "medium"}
	}
}

func writeRawRGBA(w io.Writer, img *image.RGBA) error {
	bounds := img.Bounds()
	if img.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		packed := image.NewRGBA(image.Rectangle{Max: bounds.Size()})
		draw.Draw(packed, packed.Bounds(), img, bounds.Min, draw.Src)
		img = packed
	}
	_, err := w.Write(img.Pix[:bounds.Dx()*bounds.Dy()*4])
	return err
}

func isClosedPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed)
}
