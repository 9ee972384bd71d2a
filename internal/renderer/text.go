package renderer

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const ellipsis = "…"

func loadFace(ttf []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

func loadFaces(titleSize, bodySize float64) (title, body font.Face, err error) {
	if title, err = loadFace(gobold.TTF, titleSize); err != nil {
		return nil, nil, err
	}
	if body, err = loadFace(goregular.TTF, bodySize); err != nil {
		title.Close()
		return nil, nil, err
	}
	return title, body, nil
}

// fitText shortens s with an ellipsis until it is at most maxWidth pixels wide.
func fitText(face font.Face, s string, maxWidth int) string {
	limit := fixed.I(maxWidth)
	if font.MeasureString(face, s) <= limit {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + ellipsis
		if font.MeasureString(face, candidate) <= limit {
			return candidate
		}
	}
	return ""
}

// lineHeight is ascent plus descent in whole pixels.
func lineHeight(face font.Face) int {
	m := face.Metrics()
	return (m.Ascent + m.Descent).Ceil()
}

// drawCentered draws s horizontally centred with its line box starting at top.
func drawCentered(dst *image.RGBA, face font.Face, s string, top int, c color.NRGBA) {
	if s == "" || c.A == 0 {
		return
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
	}
	w := d.MeasureString(s).Ceil()
	x := dst.Bounds().Min.X + (dst.Bounds().Dx()-w)/2
	d.Dot = fixed.P(x, top+face.Metrics().Ascent.Ceil())
	d.DrawString(s)
}

func withAlpha(c color.RGBA, alpha float64) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(math.Round(float64(c.A) * alpha))}
}

// shareCode renders url as a QR code of side px pixels.
func shareCode(url string, px int) (image.Image, error) {
	q, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode share qr: %w", err)
	}
	return q.Image(px), nil
}

// drawFaded composites src at r with a uniform opacity.
func drawFaded(dst *image.RGBA, r image.Rectangle, src image.Image, alpha float64) {
	if alpha <= 0 {
		return
	}
	if alpha >= 1 {
		draw.Draw(dst, r, src, src.Bounds().Min, draw.Over)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(alpha * 255))})
	draw.DrawMask(dst, r, src, src.Bounds().Min, mask, image.Point{}, draw.Over)
}
