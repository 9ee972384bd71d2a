package effects

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/cruisereel/internal/config"
	"github.com/ivlev/cruisereel/internal/timeline"
)

var frame = image.Pt(1280, 720)

func defaultEffect(t *testing.T) Effect {
	cfg := config.Default()
	eff, err := New(cfg.Render, cfg.Timeline)
	require.NoError(t, err)
	return eff
}

func TestAlphaRampsThenPins(t *testing.T) {
	eff := defaultEffect(t)
	src := image.Pt(4000, 3000)

	prev := -1.0
	for local := 0.0; local < 4.0; local += 1.0 / 30 {
		p := eff.Params(local, src, frame)
		assert.GreaterOrEqual(t, p.Alpha, prev, "alpha decreased at %.3f", local)
		assert.GreaterOrEqual(t, p.Alpha, 0.0)
		assert.LessOrEqual(t, p.Alpha, 1.0)
		if local >= 1.0 {
			assert.Equal(t, 1.0, p.Alpha, "alpha not pinned at %.3f", local)
		}
		prev = p.Alpha
	}
	assert.Equal(t, 0.0, eff.Params(0, src, frame).Alpha)
	assert.InDelta(t, 0.5, eff.Params(0.5, src, frame).Alpha, 1e-9)
}

func TestScaleGrowsAndResetsPerSlot(t *testing.T) {
	cfg := config.Default()
	eff := defaultEffect(t)
	tl := timeline.New(cfg.Timeline, 3)
	src := image.Pt(1600, 1200)

	var prev timeline.Phase
	prevScale := 0.0
	for frame := 0; frame < tl.TotalFrames(); frame++ {
		p := tl.PhaseAtFrame(frame)
		if p.Kind != timeline.Content {
			prevScale = 0
			prev = p
			continue
		}
		params := eff.Params(p.Local, src, image.Pt(1280, 720))
		require.GreaterOrEqual(t, params.Scale, 1.0)
		require.LessOrEqual(t, params.Scale, 1.1+1e-12)
		if prev.Kind == timeline.Content && prev.PhotoIndex == p.PhotoIndex {
			require.GreaterOrEqual(t, params.Scale, prevScale, "scale decreased at frame %d", frame)
		} else {
			require.Equal(t, 1.0, params.Scale, "scale must reset at the start of photo %d", p.PhotoIndex)
		}
		prevScale = params.Scale
		prev = p
	}
}

func TestScaleFormula(t *testing.T) {
	kb := &KenBurns{ZoomRate: 0.025, MaxScale: 1.1, Transition: 1}
	assert.Equal(t, 1.0, kb.Scale(0))
	assert.InDelta(t, 1.05, kb.Scale(2), 1e-12)
	assert.InDelta(t, 1.1, kb.Scale(4), 1e-12)
	assert.InDelta(t, 1.1, kb.Scale(10), 1e-12, "clamped at MaxScale")
}

func TestCoverRectFillsFrame(t *testing.T) {
	tests := []struct {
		name string
		src  image.Point
	}{
		{"landscape 4:3", image.Pt(4000, 3000)},
		{"portrait", image.Pt(1080, 1920)},
		{"exact 16:9", image.Pt(1280, 720)},
		{"tiny", image.Pt(64, 48)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, scale := range []float64{1, 1.05, 1.1} {
				r := CoverRect(tt.src, frame, scale)
				assert.True(t, image.Rectangle{Max: frame}.In(r), "rect %v does not cover frame at scale %v", r, scale)

				cx := (r.Min.X + r.Max.X) / 2
				cy := (r.Min.Y + r.Max.Y) / 2
				assert.InDelta(t, frame.X/2, cx, 1)
				assert.InDelta(t, frame.Y/2, cy, 1)
			}
		})
	}
}

func TestCoverRectGrowsWithScale(t *testing.T) {
	src := image.Pt(1600, 1200)
	a := CoverRect(src, frame, 1)
	b := CoverRect(src, frame, 1.1)
	assert.Greater(t, b.Dx(), a.Dx())
	assert.Greater(t, b.Dy(), a.Dy())
}

func TestFitSize(t *testing.T) {
	got := FitSize(image.Pt(4000, 3000), frame, 1.1)
	assert.Equal(t, image.Pt(1408, 1056), got)

	small := image.Pt(640, 480)
	assert.Equal(t, small, FitSize(small, frame, 1.1))
}

func TestStillEffect(t *testing.T) {
	cfg := config.Default()
	cfg.Render.Effect = "still"
	eff, err := New(cfg.Render, cfg.Timeline)
	require.NoError(t, err)

	p := eff.Params(3, image.Pt(1280, 720), frame)
	assert.Equal(t, 1.0, p.Scale)
	assert.Equal(t, 1.0, p.Alpha)
	assert.Equal(t, image.Rect(0, 0, 1280, 720), p.DrawRect)

	cfg.Render.Effect = "spin"
	_, err = New(cfg.Render, cfg.Timeline)
	assert.Error(t, err)
}

func TestCardAlpha(t *testing.T) {
	assert.Equal(t, 0.0, CardAlpha(0))
	assert.InDelta(t, 0.25, CardAlpha(0.25), 1e-12)
	assert.Equal(t, 1.0, CardAlpha(2.9))
}
