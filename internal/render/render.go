// Package render turns source photographs into panel-ready bitmaps.
//
// The pipeline is a pure function of (source bytes, display profile,
// options): decode, orientation normalization, geometric fit, gamma
// correction, palette quantization, and indexed-PNG encoding. It keeps no
// state, so any number of renders may run concurrently.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"

	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kalambet/inkframe/internal/display"
)

// ErrDecode is returned when the source bytes cannot be decoded as an
// image. It is distinct from internal pipeline failures.
var ErrDecode = errors.New("cannot decode source image")

// Options control the optional pipeline stages.
type Options struct {
	// Dither enables Floyd–Steinberg error diffusion during quantization.
	Dither bool
	// Resize scales the source to the profile's resolution.
	Resize bool
	// Crop selects fill-and-crop when resizing; false letterboxes instead.
	Crop bool
}

// Transform renders src into a bitmap for the given panel profile and
// returns it encoded as an indexed PNG, so no color outside the configured
// palette can be reintroduced downstream.
func Transform(src []byte, profile display.Profile, opts Options) ([]byte, error) {
	pal, _, err := BuildPalette(profile.Palette)
	if err != nil {
		return nil, err
	}

	decoded, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	img := toRGB(decoded)

	// Orientation metadata is advisory: a missing or corrupt EXIF block
	// never aborts a render.
	if orient, err := readOrientation(src); err == nil {
		img = applyOrientation(img, orient)
	} else if !errors.Is(err, errNoOrientation) {
		slog.Warn("could not read image orientation", "format", format, "error", err)
	}

	if opts.Resize {
		if opts.Crop {
			img = fillAndCrop(img, profile.Width, profile.Height)
		} else {
			img = fitAndLetterbox(img, profile.Width, profile.Height)
		}
	}

	if profile.Gamma != 1.0 {
		applyGamma(img, profile.Gamma)
	}

	out := quantize(img, pal, opts.Dither)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encoding output: %w", err)
	}
	return buf.Bytes(), nil
}

// toRGB normalizes any decoded image to 8-bit RGB. Alpha is discarded:
// the draw composites premultiplied color, which is equivalent to
// flattening onto black, and the alpha channel itself is forced opaque so
// it cannot skew palette distance.
func toRGB(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xFF
	}
	return dst
}

// fillAndCrop scales uniformly so the image fully covers width×height,
// cropping symmetrically from the center. The crop is expressed as a
// centered source sub-rectangle of the target aspect ratio, so a single
// scale pass produces the final canvas with no intermediate image.
func fillAndCrop(src *image.RGBA, width, height int) *image.RGBA {
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()

	srcW, srcH := sw, sh
	if sw*height > width*sh {
		// Source is wider than the target aspect: trim the sides.
		srcW = sh * width / height
	} else {
		srcH = sw * height / width
	}
	if srcW < 1 {
		srcW = 1
	}
	if srcH < 1 {
		srcH = 1
	}
	x0 := (sw - srcW) / 2
	y0 := (sh - srcH) / 2

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, image.Rect(x0, y0, x0+srcW, y0+srcH), draw.Src, nil)
	return dst
}

// fitAndLetterbox scales uniformly so the image fits inside width×height
// and centers it on an opaque black canvas of exactly that size.
func fitAndLetterbox(src *image.RGBA, width, height int) *image.RGBA {
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()

	scale := math.Min(float64(width)/float64(sw), float64(height)/float64(sh))
	dw := int(math.Round(float64(sw) * scale))
	dh := int(math.Round(float64(sh) * scale))
	if dw < 1 {
		dw = 1
	}
	if dw > width {
		dw = width
	}
	if dh < 1 {
		dh = 1
	}
	if dh > height {
		dh = height
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xFF // opaque black canvas
	}

	x0 := (width - dw) / 2
	y0 := (height - dh) / 2
	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+dw, y0+dh), src, src.Bounds(), draw.Src, nil)
	return dst
}

// applyGamma corrects every channel in place: out = in^(1/gamma), scaled
// back to 0–255 and rounded. Callers skip the pass entirely for gamma 1.0
// so that case stays bit-exact.
func applyGamma(img *image.RGBA, gamma float64) {
	var lut [256]uint8
	inv := 1.0 / gamma
	for i := range lut {
		v := math.Round(math.Pow(float64(i)/255.0, inv) * 255.0)
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		lut[i] = uint8(v)
	}

	pix := img.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i] = lut[pix[i]]
		pix[i+1] = lut[pix[i+1]]
		pix[i+2] = lut[pix[i+2]]
	}
}

// quantize maps the image onto the palette. With dithering, Floyd–Steinberg
// error diffusion runs in raster order with the canonical 7/16, 3/16, 5/16,
// 1/16 coefficients; without it, each pixel is matched independently.
func quantize(img *image.RGBA, pal color.Palette, dither bool) *image.Paletted {
	b := img.Bounds()
	dst := image.NewPaletted(b, pal)
	if dither {
		draw.FloydSteinberg.Draw(dst, b, img, b.Min)
	} else {
		draw.Draw(dst, b, img, b.Min, draw.Src)
	}
	return dst
}
