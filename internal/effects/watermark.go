package effects

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Watermarker stamps a short text in the lower left corner of published images.
// A zero Watermarker (no text) returns images untouched.
type Watermarker struct {
	text string
	font *truetype.Font
}

func NewWatermarker(text string) (*Watermarker, error) {
	const op = "effects.NewWatermarker"

	text = strings.TrimSpace(text)
	if text == "" {
		return &Watermarker{}, nil
	}
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &Watermarker{text: text, font: f}, nil
}

func (w *Watermarker) Enabled() bool { return w != nil && w.text != "" }

func (w *Watermarker) Apply(img image.Image) (image.Image, error) {
	const op = "effects.Watermark"

	if !w.Enabled() {
		return img, nil
	}

	dst := imaging.Clone(img)
	bounds := dst.Bounds()
	size := float64(bounds.Dx()) / 30
	if size < 12 {
		size = 12
	}
	margin := int(size)

	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(w.font)
	ctx.SetFontSize(size)
	ctx.SetClip(bounds)
	ctx.SetDst(dst)
	ctx.SetHinting(font.HintingNone)

	x, y := margin, bounds.Dy()-margin

	// shadow first, then the text itself
	ctx.SetSrc(image.NewUniform(color.NRGBA{A: 160}))
	if _, err := ctx.DrawString(w.text, freetype.Pt(x+1, y+1)); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	ctx.SetSrc(image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 220}))
	if _, err := ctx.DrawString(w.text, freetype.Pt(x, y)); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return dst, nil
}
