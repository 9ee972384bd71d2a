package effects

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/ivlev/cruisereel/internal/config"
)

// FrameParams describes how one photo is placed on one frame.
type FrameParams struct {
	Scale    float64
	Alpha    float64
	DrawRect image.Rectangle
}

// Effect maps the local offset inside a photo slot to frame parameters.
type Effect interface {
	Params(local float64, src, frame image.Point) FrameParams
}

// New picks the effect named in the render config: "kenburns" (default) or "still".
func New(r config.Render, t config.Timeline) (Effect, error) {
	switch strings.ToLower(r.Effect) {
	case "", "kenburns":
		return &KenBurns{ZoomRate: r.ZoomRate, MaxScale: r.MaxScale, Transition: t.TransitionSeconds}, nil
	case "still":
		return &Still{Transition: t.TransitionSeconds}, nil
	default:
		return nil, fmt.Errorf("unknown effect %q", r.Effect)
	}
}

// KenBurns zooms in linearly about the frame centre for the whole slot and
// fades the photo in during the first Transition seconds.
type KenBurns struct {
	ZoomRate   float64
	MaxScale   float64
	Transition float64
}

func (k *KenBurns) Scale(local float64) float64 {
	s := 1 + math.Max(local, 0)*k.ZoomRate
	if k.MaxScale >= 1 && s > k.MaxScale {
		s = k.MaxScale
	}
	return s
}

func (k *KenBurns) Params(local float64, src, frame image.Point) FrameParams {
	scale := k.Scale(local)
	return FrameParams{
		Scale:    scale,
		Alpha:    FadeIn(local, k.Transition),
		DrawRect: CoverRect(src, frame, scale),
	}
}

// Still keeps the photo at cover size and only fades it in.
type Still struct {
	Transition float64
}

func (s *Still) Params(local float64, src, frame image.Point) FrameParams {
	return FrameParams{
		Scale:    1,
		Alpha:    FadeIn(local, s.Transition),
		DrawRect: CoverRect(src, frame, 1),
	}
}

// FadeIn ramps linearly from 0 to 1 over duration and stays at 1 afterwards.
func FadeIn(local, duration float64) float64 {
	if duration <= 0 {
		return 1
	}
	return clamp01(local / duration)
}

// CardAlpha is the text card fade: min(1, local).
func CardAlpha(local float64) float64 {
	return clamp01(local)
}

// CoverRect returns the destination rectangle that aspect-fills frame with src,
// enlarged by scale about the frame centre. The rectangle may exceed the frame.
func CoverRect(src, frame image.Point, scale float64) image.Rectangle {
	if src.X <= 0 || src.Y <= 0 {
		return image.Rectangle{Max: frame}
	}
	cover := math.Max(float64(frame.X)/float64(src.X), float64(frame.Y)/float64(src.Y)) * scale
	w := float64(src.X) * cover
	h := float64(src.Y) * cover
	x0 := (float64(frame.X) - w) / 2
	y0 := (float64(frame.Y) - h) / 2
	return image.Rect(
		int(math.Floor(x0)),
		int(math.Floor(y0)),
		int(math.Ceil(x0+w)),
		int(math.Ceil(y0+h)),
	)
}

// FitSize is the largest size a source needs to be kept at so that CoverRect at
// maxScale never upsamples it. Sources already smaller are returned unchanged.
func FitSize(src, frame image.Point, maxScale float64) image.Point {
	if src.X <= 0 || src.Y <= 0 {
		return src
	}
	f := math.Max(float64(frame.X)/float64(src.X), float64(frame.Y)/float64(src.Y)) * maxScale
	if f >= 1 {
		return src
	}
	return image.Pt(
		int(math.Ceil(float64(src.X)*f-1e-6)),
		int(math.Ceil(float64(src.Y)*f-1e-6)),
	)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
