package render

import (
	"errors"
	"image/color"

	"github.com/kalambet/inkframe/internal/display"
)

// ErrEmptyPalette is returned when quantization is attempted with no
// configured colors. This must never silently succeed.
var ErrEmptyPalette = errors.New("palette has no colors")

// Table is the fixed-capacity quantization target: 256 RGB slots, where
// slot i holds the i-th configured color and unused trailing slots are
// zero-filled. Slot order is preserved exactly as configured — it is not
// sorted or deduplicated — because dithering tie-breaks and index-based
// consumers depend on positional stability.
type Table [256][3]uint8

// BuildPalette converts a profile's ordered color list into the
// quantization palette and the fixed 256-slot table. Only the first
// len(colors) slots are reachable output colors.
func BuildPalette(colors []display.Color) (color.Palette, Table, error) {
	if len(colors) == 0 {
		return nil, Table{}, ErrEmptyPalette
	}
	if len(colors) > 256 {
		return nil, Table{}, errors.New("palette exceeds 256 colors")
	}

	pal := make(color.Palette, len(colors))
	var table Table
	for i, c := range colors {
		pal[i] = color.RGBA{R: c[0], G: c[1], B: c[2], A: 0xFF}
		table[i] = c
	}
	return pal, table, nil
}
