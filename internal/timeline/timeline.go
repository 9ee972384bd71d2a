package timeline

import (
	"fmt"
	"math"

	"github.com/ivlev/cruisereel/internal/config"
)

// Kind identifies the top-level segment of the timeline.
type Kind int

const (
	Intro Kind = iota
	Content
	Outro
)

func (k Kind) String() string {
	switch k {
	case Intro:
		return "intro"
	case Content:
		return "content"
	case Outro:
		return "outro"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// boundaryEpsilon absorbs float error in frame/fps so segment edges resolve the same way every run.
const boundaryEpsilon = 1e-9

// Phase is the timeline state at a moment. Local is the time elapsed since the
// start of the phase; for Content it is the offset within the photo's slot.
type Phase struct {
	Kind       Kind
	PhotoIndex int
	Local      float64
}

func (p Phase) String() string {
	if p.Kind == Content {
		return fmt.Sprintf("content(%d, %.4f)", p.PhotoIndex, p.Local)
	}
	return fmt.Sprintf("%s(%.4f)", p.Kind, p.Local)
}

// Timeline is the Intro / Content / Outro schedule for a fixed photo count.
type Timeline struct {
	Intro           float64
	Outro           float64
	SecondsPerPhoto float64
	Transition      float64
	FPS             int
	PhotoCount      int
}

// New builds a timeline from configuration.
func New(cfg config.Timeline, photoCount int) Timeline {
	return Timeline{
		Intro:           cfg.IntroSeconds,
		Outro:           cfg.OutroSeconds,
		SecondsPerPhoto: cfg.SecondsPerPhoto,
		Transition:      cfg.TransitionSeconds,
		FPS:             cfg.FPS,
		PhotoCount:      photoCount,
	}
}

func (tl Timeline) ContentDuration() float64 {
	return float64(tl.PhotoCount) * tl.SecondsPerPhoto
}

func (tl Timeline) TotalDuration() float64 {
	return tl.Intro + tl.ContentDuration() + tl.Outro
}

// TotalFrames is the exact number of frames the scheduler must render.
func (tl Timeline) TotalFrames() int {
	return int(math.Round(tl.TotalDuration() * float64(tl.FPS)))
}

// FrameTime returns the presentation time of a frame in seconds.
func (tl Timeline) FrameTime(frame int) float64 {
	return float64(frame) / float64(tl.FPS)
}

// PhaseAt resolves global time t to exactly one phase. t == Intro starts the
// first photo; t == Intro+Content starts the outro.
func (tl Timeline) PhaseAt(t float64) Phase {
	if t < tl.Intro-boundaryEpsilon {
		return Phase{Kind: Intro, Local: math.Max(t, 0)}
	}
	outroStart := tl.Intro + tl.ContentDuration()
	if t >= outroStart-boundaryEpsilon || tl.PhotoCount == 0 {
		return Phase{Kind: Outro, Local: math.Max(t-outroStart, 0)}
	}

	elapsed := t - tl.Intro
	idx := int(math.Floor(elapsed/tl.SecondsPerPhoto + boundaryEpsilon))
	if idx < 0 {
		idx = 0
	}
	if idx > tl.PhotoCount-1 {
		idx = tl.PhotoCount - 1
	}
	local := elapsed - float64(idx)*tl.SecondsPerPhoto
	if local < 0 {
		local = 0
	}
	return Phase{Kind: Content, PhotoIndex: idx, Local: local}
}

// PhaseAtFrame is PhaseAt(FrameTime(frame)).
func (tl Timeline) PhaseAtFrame(frame int) Phase {
	return tl.PhaseAt(tl.FrameTime(frame))
}

// Segment is a contiguous span of the timeline. Frames are [FirstFrame, EndFrame).
type Segment struct {
	Kind       Kind
	PhotoIndex int
	Start      float64
	End        float64
	FirstFrame int
	EndFrame   int
}

// Segments lists intro, one segment per photo and outro in order, with frame ranges
// computed by the same PhaseAt rule the scheduler uses.
func (tl Timeline) Segments() []Segment {
	var segs []Segment
	total := tl.TotalFrames()
	for frame := 0; frame < total; frame++ {
		p := tl.PhaseAtFrame(frame)
		n := len(segs)
		if n > 0 && segs[n-1].Kind == p.Kind && segs[n-1].PhotoIndex == p.PhotoIndex {
			segs[n-1].EndFrame = frame + 1
			continue
		}
		start, end := tl.bounds(p)
		segs = append(segs, Segment{
			Kind:       p.Kind,
			PhotoIndex: p.PhotoIndex,
			Start:      start,
			End:        end,
			FirstFrame: frame,
			EndFrame:   frame + 1,
		})
	}
	return segs
}

func (tl Timeline) bounds(p Phase) (float64, float64) {
	switch p.Kind {
	case Intro:
		return 0, tl.Intro
	case Content:
		start := tl.Intro + float64(p.PhotoIndex)*tl.SecondsPerPhoto
		return start, start + tl.SecondsPerPhoto
	default:
		start := tl.Intro + tl.ContentDuration()
		return start, start + tl.Outro
	}
}
