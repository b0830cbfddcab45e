package composite

import (
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
)

// Overlay blends mark over base at each offset and returns the result.
//
// Both images are converted to NRGBA. The mark is pasted onto a fully
// transparent canvas the size of the base, once per offset in iteration
// order, and the canvas is then alpha-composited over the base in a single
// pass, so semi-transparent pixels blend exactly once against the base.
// Offsets may reach past the base edges; those pastes are clipped.
// Neither input is mutated.
func Overlay(base image.Image, mark image.Image, offsets []image.Point) *image.NRGBA {
	out := imaging.Clone(base)
	m := imaging.Clone(mark)

	canvas := image.NewNRGBA(out.Bounds())
	for _, off := range offsets {
		draw.Draw(canvas, m.Bounds().Add(off), m, image.Point{}, draw.Over)
	}

	draw.Draw(out, out.Bounds(), canvas, image.Point{}, draw.Over)
	return out
}
