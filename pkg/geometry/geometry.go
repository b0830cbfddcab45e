package geometry

import (
	"fmt"
	"image"
	"math"

	"github.com/menta2k/watermarker/pkg/types"
)

// Scale computes the watermark size for a base image. LINEAR targets a
// fraction of the base width, AREA a fraction of the base area; both apply
// a single factor to width and height so the aspect ratio is preserved.
// Dimensions are truncated to whole pixels and never drop below 1x1.
func Scale(base, mark image.Point, mode types.RescaleMode, proportion float64) (image.Point, error) {
	if proportion <= 0 || proportion > 1 {
		return image.Point{}, fmt.Errorf("%w: %v", types.ErrInvalidProportion, proportion)
	}
	if mark.X <= 0 || mark.Y <= 0 {
		return image.Point{}, fmt.Errorf("%w: watermark has no pixels", types.ErrSizeMismatch)
	}

	var factor float64
	switch mode {
	case types.RescaleLinear:
		factor = float64(base.X) * proportion / float64(mark.X)
	case types.RescaleArea:
		targetArea := float64(base.X) * float64(base.Y) * proportion
		factor = math.Sqrt(targetArea / (float64(mark.X) * float64(mark.Y)))
	default:
		return image.Point{}, fmt.Errorf("%w: rescale mode %q", types.ErrInvalidMode, mode)
	}

	w := int(float64(mark.X) * factor)
	h := int(float64(mark.Y) * factor)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return image.Pt(w, h), nil
}

// Place resolves a single-watermark position to a pixel offset.
//
// Corner anchors sit flush against their corner, inset by margin. MIDDLE
// centers the watermark and ignores margin. Explicit coordinates are used
// verbatim and only rejected when the watermark would miss the base image
// entirely. Anchored placements whose top-left corner cannot stay inside
// the base image fail with ErrSizeMismatch.
func Place(base, mark image.Point, pos types.Position, margin int) (image.Point, error) {
	if margin < 0 {
		return image.Point{}, fmt.Errorf("%w: %d", types.ErrInvalidMargin, margin)
	}

	if pos.Anchor == types.AnchorExplicit {
		off := image.Pt(pos.X, pos.Y)
		if off.X >= base.X || off.Y >= base.Y || off.X+mark.X <= 0 || off.Y+mark.Y <= 0 {
			return image.Point{}, fmt.Errorf("%w: watermark at (%d,%d) misses %dx%d base",
				types.ErrOutOfBounds, off.X, off.Y, base.X, base.Y)
		}
		return off, nil
	}

	var off image.Point
	switch pos.Anchor {
	case types.AnchorUpperLeft:
		off = image.Pt(margin, margin)
	case types.AnchorUpperRight:
		off = image.Pt(base.X-mark.X-margin, margin)
	case types.AnchorLowerLeft:
		off = image.Pt(margin, base.Y-mark.Y-margin)
	case types.AnchorLowerRight:
		off = image.Pt(base.X-mark.X-margin, base.Y-mark.Y-margin)
	case types.AnchorMiddle:
		off = image.Pt((base.X-mark.X)/2, (base.Y-mark.Y)/2)
	default:
		return image.Point{}, fmt.Errorf("%w: position %q", types.ErrInvalidMode, pos.Anchor)
	}

	if off.X < 0 || off.Y < 0 || off.X >= base.X || off.Y >= base.Y {
		return image.Point{}, fmt.Errorf("%w: %dx%d watermark on %dx%d base (margin %d)",
			types.ErrSizeMismatch, mark.X, mark.Y, base.X, base.Y, margin)
	}
	return off, nil
}

// Tiles produces the offsets of a tile layout in row-major order. Offsets
// start at (0,0) and advance by the watermark size plus padding on each
// axis while the tile's top-left corner is still inside the base image;
// tiles reaching past the far edges are kept and clipped at composite
// time. CHECKER keeps only cells with even row+column parity.
func Tiles(base, mark image.Point, padding int, style types.TileStyle) ([]image.Point, error) {
	if padding < 0 {
		return nil, fmt.Errorf("%w: %d", types.ErrInvalidPadding, padding)
	}
	switch style {
	case types.TileGrid, types.TileChecker:
	default:
		return nil, fmt.Errorf("%w: tile style %q", types.ErrInvalidMode, style)
	}
	if mark.X <= 0 || mark.Y <= 0 {
		return nil, fmt.Errorf("%w: watermark has no pixels", types.ErrSizeMismatch)
	}

	stepX := mark.X + padding
	stepY := mark.Y + padding

	var offsets []image.Point
	for row, y := 0, 0; y < base.Y; row, y = row+1, y+stepY {
		for col, x := 0, 0; x < base.X; col, x = col+1, x+stepX {
			if style == types.TileChecker && (row+col)%2 != 0 {
				continue
			}
			offsets = append(offsets, image.Pt(x, y))
		}
	}
	return offsets, nil
}
