package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/rwcarlsen/goexif/exif"
)

// errNoOrientation means the source simply carries no usable orientation
// metadata (PNGs, stripped JPEGs). Not an error worth logging per render.
var errNoOrientation = errors.New("no orientation metadata")

// readOrientation extracts the EXIF orientation value (1–8) from the raw
// source bytes.
func readOrientation(src []byte) (int, error) {
	x, err := exif.Decode(bytes.NewReader(src))
	if err != nil {
		return 0, errNoOrientation
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0, errNoOrientation
	}
	o, err := tag.Int(0)
	if err != nil {
		return 0, fmt.Errorf("reading orientation tag: %w", err)
	}
	if o < 1 || o > 8 {
		return 0, fmt.Errorf("orientation value %d out of range", o)
	}
	return o, nil
}

// applyOrientation rotates/flips pixel data into the intended upright
// orientation. The eight EXIF cases map each destination pixel back to its
// source position.
func applyOrientation(src *image.RGBA, orientation int) *image.RGBA {
	if orientation == 1 {
		return src
	}

	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	// Orientations 5–8 swap the axes.
	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}

	var at func(x, y int) (int, int)
	switch orientation {
	case 2: // mirrored horizontally
		at = func(x, y int) (int, int) { return w - 1 - x, y }
	case 3: // rotated 180
		at = func(x, y int) (int, int) { return w - 1 - x, h - 1 - y }
	case 4: // mirrored vertically
		at = func(x, y int) (int, int) { return x, h - 1 - y }
	case 5: // mirrored along top-left diagonal
		at = func(x, y int) (int, int) { return y, x }
	case 6: // rotated 90 CW
		at = func(x, y int) (int, int) { return y, h - 1 - x }
	case 7: // mirrored along top-right diagonal
		at = func(x, y int) (int, int) { return w - 1 - y, h - 1 - x }
	case 8: // rotated 90 CCW
		at = func(x, y int) (int, int) { return w - 1 - y, x }
	default:
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			sx, sy := at(x, y)
			si := src.PixOffset(sx, sy)
			di := dst.PixOffset(x, y)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}
