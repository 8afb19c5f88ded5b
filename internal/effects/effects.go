// Package effects derives the preview and publish variants of a queue image.
package effects

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// ErrDecode is returned when the asset bytes are not an image we can read.
var ErrDecode = errors.New("image decode failed")

const (
	Original  = "original"
	Greyscale = "greyscale"
	Blur      = "blur"
	Contrast  = "contrast"
)

const (
	blurSigma       = 5
	contrastFactor  = 1.5
	jpegQuality     = 90
)

// Names lists the effects in display order.
var Names = []string{Original, Greyscale, Blur, Contrast}

// Valid reports whether name is one of the fixed effects.
func Valid(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

type Set map[string]image.Image

// Apply decodes data and returns all four variants.
func Apply(data []byte) (Set, error) {
	src, err := Decode(data)
	if err != nil {
		return nil, err
	}
	grey := imaging.Grayscale(src)
	return Set{
		Original:  src,
		Greyscale: grey,
		Blur:      imaging.Blur(src, blurSigma),
		Contrast:  stretchContrast(src, meanLevel(grey), contrastFactor),
	}, nil
}

// stretchContrast moves every channel away from pivot by factor. The pivot is
// the mean luminance, not mid-grey, so a flat image comes back unchanged.
func stretchContrast(src image.Image, pivot uint8, factor float64) *image.NRGBA {
	p := float64(pivot)
	scale := func(v uint8) uint8 {
		return clamp(p + factor*(float64(v)-p))
	}
	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: scale(c.R), G: scale(c.G), B: scale(c.B), A: c.A}
	})
}

// meanLevel averages the first channel of a greyscale image, rounded.
func meanLevel(grey *image.NRGBA) uint8 {
	b := grey.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}
	var sum uint64
	for y := 0; y < b.Dy(); y++ {
		row := grey.Pix[y*grey.Stride : y*grey.Stride+b.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			sum += uint64(row[x])
		}
	}
	return uint8((sum + uint64(n)/2) / uint64(n))
}

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}

// Decode reads data and flattens it onto an opaque white canvas so the result
// never carries alpha into JPEG encoding.
func Decode(data []byte) (image.Image, error) {
	const op = "effects.Decode"

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrDecode, err)
	}
	src := imaging.Clone(img)
	bounds := src.Bounds()
	canvas := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(canvas, src, image.Pt(0, 0), 1.0), nil
}

func EncodeJPEG(img image.Image) ([]byte, error) {
	const op = "effects.EncodeJPEG"

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return buf.Bytes(), nil
}

// Base64JPEG is used to inline previews in the review pages.
func Base64JPEG(img image.Image) (string, error) {
	data, err := EncodeJPEG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
