package renderer

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"

	"github.com/ivlev/cruisereel/internal/config"
	"github.com/ivlev/cruisereel/internal/effects"
	"github.com/ivlev/cruisereel/internal/timeline"
)

const margin = 48

// Card is the text shown on the intro card.
type Card struct {
	Title    string
	Subtitle string
}

// Renderer paints frames for one run. Font faces are not safe for concurrent
// use, so a Renderer must be driven from a single goroutine.
type Renderer struct {
	Frame image.Point

	bg     color.RGBA
	text   color.RGBA
	effect effects.Effect
	intro  Card
	brand  string
	qr     image.Image

	titleFace font.Face
	bodyFace  font.Face
}

func New(cfg config.Render, tl config.Timeline, intro Card) (*Renderer, error) {
	bg, err := config.ParseColor(cfg.Background)
	if err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}
	fg, err := config.ParseColor(cfg.TextColor)
	if err != nil {
		return nil, fmt.Errorf("text color: %w", err)
	}
	eff, err := effects.New(cfg, tl)
	if err != nil {
		return nil, err
	}
	titleFace, bodyFace, err := loadFaces(cfg.TitleSize, cfg.BodySize)
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		Frame:     image.Pt(cfg.Width, cfg.Height),
		bg:        bg,
		text:      fg,
		effect:    eff,
		intro:     intro,
		brand:     cfg.Brand,
		titleFace: titleFace,
		bodyFace:  bodyFace,
	}
	if cfg.ShareURL != "" {
		side := cfg.Height / 3
		if r.qr, err = shareCode(cfg.ShareURL, side); err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

// Close releases the font faces.
func (r *Renderer) Close() error {
	var err error
	if r.titleFace != nil {
		err = r.titleFace.Close()
	}
	if r.bodyFace != nil {
		if cerr := r.bodyFace.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Render paints the frame for phase into dst. photo is used only for Content
// phases; a nil photo leaves the background.
func (r *Renderer) Render(dst *image.RGBA, phase timeline.Phase, photo image.Image) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(r.bg), image.Point{}, draw.Src)

	switch phase.Kind {
	case timeline.Intro:
		r.introCard(dst, phase.Local)
	case timeline.Outro:
		r.outroCard(dst, phase.Local)
	case timeline.Content:
		if photo != nil {
			r.photo(dst, phase.Local, photo)
		}
	}
}

func (r *Renderer) introCard(dst *image.RGBA, local float64) {
	c := withAlpha(r.text, effects.CardAlpha(local))
	maxW := dst.Bounds().Dx() - 2*margin

	title := fitText(r.titleFace, r.intro.Title, maxW)
	sub := fitText(r.bodyFace, r.intro.Subtitle, maxW)

	th := lineHeight(r.titleFace)
	block := th
	if sub != "" {
		block += th/2 + lineHeight(r.bodyFace)
	}
	top := dst.Bounds().Min.Y + (dst.Bounds().Dy()-block)/2
	drawCentered(dst, r.titleFace, title, top, c)
	drawCentered(dst, r.bodyFace, sub, top+th+th/2, c)
}

func (r *Renderer) outroCard(dst *image.RGBA, local float64) {
	alpha := effects.CardAlpha(local)
	c := withAlpha(r.text, alpha)
	brand := fitText(r.titleFace, r.brand, dst.Bounds().Dx()-2*margin)
	th := lineHeight(r.titleFace)

	if r.qr == nil {
		top := dst.Bounds().Min.Y + (dst.Bounds().Dy()-th)/2
		drawCentered(dst, r.titleFace, brand, top, c)
		return
	}

	qs := r.qr.Bounds().Size()
	block := th + margin/2 + qs.Y
	top := dst.Bounds().Min.Y + (dst.Bounds().Dy()-block)/2
	drawCentered(dst, r.titleFace, brand, top, c)

	x := dst.Bounds().Min.X + (dst.Bounds().Dx()-qs.X)/2
	y := top + th + margin/2
	drawFaded(dst, image.Rectangle{Min: image.Pt(x, y), Max: image.Pt(x+qs.X, y+qs.Y)}, r.qr, alpha)
}

// photo draws the Ken Burns framed photo and fades it in over the background.
func (r *Renderer) photo(dst *image.RGBA, local float64, photo image.Image) {
	frame := dst.Bounds().Size()
	p := r.effect.Params(local, photo.Bounds().Size(), frame)
	if p.Alpha <= 0 {
		return
	}
	rect := p.DrawRect.Add(dst.Bounds().Min)
	xdraw.ApproxBiLinear.Scale(dst, rect, photo, photo.Bounds(), xdraw.Over, nil)
	if p.Alpha >= 1 {
		return
	}
	// photo is already in place; lay the background back over it at (1 - alpha)
	cover := image.NewUniform(color.Alpha{A: uint8(math.Round((1 - p.Alpha) * 255))})
	draw.DrawMask(dst, dst.Bounds(), image.NewUniform(r.bg), image.Point{}, cover, image.Point{}, draw.Over)
}
