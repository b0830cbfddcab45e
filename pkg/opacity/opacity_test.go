package opacity

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/watermarker/pkg/types"
)

// createTestImage builds an NRGBA image with varied colors and a full
// sweep of alpha values.
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / width),
				G: uint8(y * 255 / height),
				B: 128,
				A: uint8((x + y*width) % 256),
			})
		}
	}
	return img
}

func TestApplyIdentity(t *testing.T) {
	src := createTestImage(32, 32)

	out, err := Apply(src, 1.0)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, out.Pix)
}

func TestApplyZero(t *testing.T) {
	src := createTestImage(32, 32)

	out, err := Apply(src, 0.0)
	require.NoError(t, err)

	for i := 0; i < len(out.Pix); i += 4 {
		assert.Equal(t, src.Pix[i], out.Pix[i], "red changed at %d", i)
		assert.Equal(t, src.Pix[i+1], out.Pix[i+1], "green changed at %d", i)
		assert.Equal(t, src.Pix[i+2], out.Pix[i+2], "blue changed at %d", i)
		require.Equal(t, uint8(0), out.Pix[i+3], "alpha not zeroed at %d", i)
	}
}

func TestApplyScalesAlphaOnly(t *testing.T) {
	src := createTestImage(16, 16)

	out, err := Apply(src, 0.5)
	require.NoError(t, err)

	for i := 0; i < len(out.Pix); i += 4 {
		assert.Equal(t, src.Pix[i], out.Pix[i])
		assert.Equal(t, src.Pix[i+1], out.Pix[i+1])
		assert.Equal(t, src.Pix[i+2], out.Pix[i+2])

		want := uint8(math.Round(float64(src.Pix[i+3]) * 0.5))
		require.Equal(t, want, out.Pix[i+3], "alpha at %d", i)
	}
}

func TestApplyComposes(t *testing.T) {
	src := createTestImage(16, 16)

	first, err := Apply(src, 0.8)
	require.NoError(t, err)
	chained, err := Apply(first, 0.5)
	require.NoError(t, err)

	direct, err := Apply(src, 0.8*0.5)
	require.NoError(t, err)

	for i := 3; i < len(chained.Pix); i += 4 {
		diff := int(chained.Pix[i]) - int(direct.Pix[i])
		if diff < 0 {
			diff = -diff
		}
		require.LessOrEqual(t, diff, 1, "alpha drift at %d: chained=%d direct=%d", i, chained.Pix[i], direct.Pix[i])
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	src := createTestImage(8, 8)
	before := make([]uint8, len(src.Pix))
	copy(before, src.Pix)

	_, err := Apply(src, 0.25)
	require.NoError(t, err)
	assert.Equal(t, before, src.Pix)
}

func TestApplySynthesizesOpaqueAlpha(t *testing.T) {
	// RGB input without an alpha channel becomes fully opaque before scaling.
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.SetRGBA(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	out, err := Apply(src, 0.5)
	require.NoError(t, err)
	for i := 3; i < len(out.Pix); i += 4 {
		require.Equal(t, uint8(128), out.Pix[i])
	}
}

func TestApplyInvalidFactor(t *testing.T) {
	src := createTestImage(4, 4)
	for _, factor := range []float64{-0.1, 1.1, 2} {
		_, err := Apply(src, factor)
		require.ErrorIs(t, err, types.ErrInvalidOpacity, "factor %v", factor)
	}
}
