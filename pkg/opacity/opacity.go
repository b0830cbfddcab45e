package opacity

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/watermarker/pkg/types"
)

// Apply returns a copy of img with every alpha value scaled by factor.
// RGB channels are left untouched and the input is never mutated. Opaque
// inputs gain a synthesized alpha channel through the NRGBA conversion.
// Fails with ErrInvalidOpacity when factor is outside [0, 1].
func Apply(img image.Image, factor float64) (*image.NRGBA, error) {
	if factor < 0 || factor > 1 {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidOpacity, factor)
	}

	out := imaging.Clone(img)
	if factor == 1 {
		return out, nil
	}

	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = uint8(math.Round(float64(out.Pix[i]) * factor))
	}
	return out, nil
}
