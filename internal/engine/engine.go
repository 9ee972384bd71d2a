package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/cruisereel/internal/audio"
	"github.com/ivlev/cruisereel/internal/config"
	"github.com/ivlev/cruisereel/internal/log"
	"github.com/ivlev/cruisereel/internal/metrics"
	"github.com/ivlev/cruisereel/internal/source"
	"github.com/ivlev/cruisereel/internal/system"
	"github.com/ivlev/cruisereel/internal/timeline"
	"github.com/ivlev/cruisereel/internal/video"
)

// FrameRenderer paints one frame into dst.
type FrameRenderer interface {
	Render(dst *image.RGBA, phase timeline.Phase, photo image.Image)
}

// ProgressFunc is called after every submitted frame with the number of
// frames done so far and the total.
type ProgressFunc func(done, total int)

// VideoProject drives one slideshow through the renderer into the encoder,
// one frame at a time.
type VideoProject struct {
	Config   *config.Config
	Encoder  video.VideoEncoder
	Renderer FrameRenderer
	Params   video.Params

	logger zerolog.Logger
}

func NewVideoProject(cfg *config.Config, enc video.VideoEncoder, r FrameRenderer, params video.Params) *VideoProject {
	return &VideoProject{
		Config:   cfg,
		Encoder:  enc,
		Renderer: r,
		Params:   params,
		logger:   log.WithComponent("engine"),
	}
}

// Run renders every frame of the timeline for photos and returns the encoded
// video. If ctx is cancelled after at least one frame was submitted, the frames
// so far are finalized and the output is marked Partial. Cancellation before
// the first frame returns ctx.Err().
func (p *VideoProject) Run(ctx context.Context, photos []source.Photo, progress ProgressFunc) (*video.Output, error) {
	if len(photos) == 0 {
		return nil, source.ErrNoDisplayablePhotos
	}
	tl := timeline.New(p.Config.Timeline, len(photos))
	total := tl.TotalFrames()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pad := audio.NewPad(p.Config.Audio)
	sess, err := p.Encoder.Open(ctx, p.Params, pad.NewReader(tl.TotalDuration()))
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Int("photos", len(photos)).
		Int("frames", total).
		Float64("duration", tl.TotalDuration()).
		Str("encoder", p.Params.Encoder).
		Msg("render started")
	start := time.Now()

	surface := system.GetImage(image.Rect(0, 0, p.Params.Width, p.Params.Height))
	defer system.PutImage(surface)

	written := 0
	for frame := 0; frame < total; frame++ {
		if ctx.Err() != nil {
			break
		}
		phase := tl.PhaseAtFrame(frame)
		var photo image.Image
		if phase.Kind == timeline.Content {
			photo = photos[phase.PhotoIndex].Image
		}
		p.Renderer.Render(surface, phase, photo)
		if err := sess.WriteFrame(surface); err != nil {
			sess.Abort()
			return nil, err
		}
		written++
		metrics.FramesRendered.Inc()
		if progress != nil {
			progress(written, total)
		}
		runtime.Gosched()
	}

	partial := written < total
	if partial && written == 0 {
		sess.Abort()
		return nil, ctx.Err()
	}

	out, err := sess.Finalize()
	if err != nil {
		sess.Abort()
		return nil, fmt.Errorf("finalize: %w", err)
	}
	out.Partial = partial

	ev := p.logger.Info()
	if partial {
		ev = p.logger.Warn().Err(context.Cause(ctx))
	}
	ev.Int("frames", written).
		Int("bytes", len(out.Data)).
		Dur("elapsed", time.Since(start)).
		Bool("partial", partial).
		Msg("render finished")
	return out, nil
}

// IsCancelled reports whether err came from a cancelled run.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
