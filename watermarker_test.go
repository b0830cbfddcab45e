package watermarker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/watermarker/internal/config"
	"github.com/menta2k/watermarker/pkg/processing"
	"github.com/menta2k/watermarker/pkg/types"
)

var (
	blue = color.NRGBA{0, 0, 255, 255}
	red  = color.NRGBA{255, 0, 0, 255}
)

func solidImage(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, processing.NewProcessor().SaveImage(img, path, 95, false))
}

// writeMark writes a solid red 40x20 watermark and returns its path.
func writeMark(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mark.png")
	writeImage(t, path, solidImage(40, 20, red))
	return path
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestWatermarker(t *testing.T, opts Options) *Watermarker {
	t.Helper()
	w, err := New(writeMark(t), opts)
	require.NoError(t, err)
	w.SetLogger(quietLogger())
	return w
}

func TestDefaultOptionsValid(t *testing.T) {
	require.NoError(t, DefaultOptions().Validate())
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		want   error
	}{
		{"negative opacity", func(o *Options) { o.Opacity = -0.1 }, types.ErrInvalidOpacity},
		{"opacity above one", func(o *Options) { o.Opacity = 1.1 }, types.ErrInvalidOpacity},
		{"zero proportion", func(o *Options) { o.Proportion = 0 }, types.ErrInvalidProportion},
		{"proportion above one", func(o *Options) { o.Proportion = 1.2 }, types.ErrInvalidProportion},
		{"negative margin", func(o *Options) { o.Margin = -1 }, types.ErrInvalidMargin},
		{"negative padding", func(o *Options) { o.TilePadding = -1 }, types.ErrInvalidPadding},
		{"unknown mode", func(o *Options) { o.Mode = "DOUBLE" }, types.ErrInvalidMode},
		{"unknown position", func(o *Options) { o.Position = types.Position{Anchor: "NOWHERE"} }, types.ErrInvalidMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			assert.ErrorIs(t, opts.Validate(), tt.want)
		})
	}

	t.Run("zero quality", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Quality = 0
		assert.Error(t, opts.Validate())
	})
	t.Run("zero workers", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Workers = 0
		assert.Error(t, opts.Validate())
	})
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(config.Default())
	require.NoError(t, err)

	assert.Equal(t, types.ModeSingle, opts.Mode)
	assert.Equal(t, types.AnchorLowerRight, opts.Position.Anchor)
	assert.Equal(t, types.RescaleLinear, opts.RescaleMode)
	assert.Equal(t, types.TileGrid, opts.TileStyle)
	assert.Equal(t, 0.5, opts.Opacity)
	assert.Equal(t, "output", opts.OutputDir)
	assert.Equal(t, 95, opts.Quality)
	assert.Equal(t, 1, opts.Workers)
	require.NoError(t, opts.Validate())
}

func TestOptionsFromConfigRejectsBadValues(t *testing.T) {
	cfg := config.Default()
	cfg.Watermark.Mode = "bananas"

	_, err := OptionsFromConfig(cfg)
	assert.ErrorIs(t, err, types.ErrInvalidMode)
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Proportion = 0

	_, err := New(writeMark(t), opts)
	assert.ErrorIs(t, err, types.ErrInvalidProportion)
}

func TestNewRejectsMissingMark(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.png"), DefaultOptions())
	assert.ErrorIs(t, err, types.ErrPathNotFound)
}

func TestProcessImageSinglePlacement(t *testing.T) {
	opts := DefaultOptions()
	opts.Opacity = 1.0
	w := newTestWatermarker(t, opts)

	base := solidImage(200, 160, blue)
	out, placement, err := w.ProcessImage(context.Background(), base)
	require.NoError(t, err)

	// 40x20 mark scaled to a tenth of the 200px base width.
	assert.Equal(t, image.Pt(20, 10), placement.Size)
	require.Equal(t, []image.Point{image.Pt(180, 150)}, placement.Offsets)
	assert.Equal(t, types.AnchorLowerRight, placement.Anchor)
	assert.Nil(t, placement.Subject)

	assert.Equal(t, red, out.NRGBAAt(180, 150))
	assert.Equal(t, red, out.NRGBAAt(199, 159))
	assert.Equal(t, blue, out.NRGBAAt(179, 150))
	assert.Equal(t, blue, out.NRGBAAt(0, 0))

	// Input untouched.
	assert.Equal(t, blue, base.NRGBAAt(180, 150))
}

func TestProcessImageOpacityBlend(t *testing.T) {
	w := newTestWatermarker(t, DefaultOptions()) // opacity 0.5

	out, _, err := w.ProcessImage(context.Background(), solidImage(200, 160, blue))
	require.NoError(t, err)

	got := out.NRGBAAt(190, 155)
	assert.InDelta(t, 128, int(got.R), 2)
	assert.InDelta(t, 127, int(got.B), 2)
	assert.EqualValues(t, 255, got.A)
}

func TestProcessImageTile(t *testing.T) {
	opts := DefaultOptions()
	opts.Mode = types.ModeTile
	opts.TilePadding = 30
	opts.Opacity = 1.0
	w := newTestWatermarker(t, opts)

	out, placement, err := w.ProcessImage(context.Background(), solidImage(200, 160, blue))
	require.NoError(t, err)

	// 20x10 tiles stepping 50x40 over a 200x160 base.
	assert.Len(t, placement.Offsets, 16)
	assert.Equal(t, image.Pt(0, 0), placement.Offsets[0])
	assert.Empty(t, placement.Anchor)

	assert.Equal(t, red, out.NRGBAAt(0, 0))
	assert.Equal(t, red, out.NRGBAAt(50, 5))
	assert.Equal(t, blue, out.NRGBAAt(25, 5), "padding gap stays clear")
}

func TestProcessImageExplicitOutOfBounds(t *testing.T) {
	opts := DefaultOptions()
	opts.Position = types.Position{Anchor: types.AnchorExplicit, X: 500, Y: 500}
	w := newTestWatermarker(t, opts)

	_, _, err := w.ProcessImage(context.Background(), solidImage(200, 160, blue))
	assert.ErrorIs(t, err, types.ErrOutOfBounds)
}

func TestProcessImageMarkTooLarge(t *testing.T) {
	opts := DefaultOptions()
	opts.Proportion = 1.0
	w := newTestWatermarker(t, opts)

	// Scaling to the full 200px width makes the mark 100px tall.
	_, _, err := w.ProcessImage(context.Background(), solidImage(200, 30, blue))
	assert.ErrorIs(t, err, types.ErrSizeMismatch)
}

type fixedSuggester struct {
	anchor  types.Anchor
	subject *types.Box
	err     error
}

func (s *fixedSuggester) Suggest(ctx context.Context, base image.Image, mark image.Point, margin int) (types.Anchor, *types.Box, error) {
	return s.anchor, s.subject, s.err
}

func TestProcessImageAutoUsesSuggester(t *testing.T) {
	opts := DefaultOptions()
	opts.Position = types.Position{Anchor: types.AnchorAuto}
	opts.Opacity = 1.0
	w := newTestWatermarker(t, opts)
	w.SetSuggester(&fixedSuggester{
		anchor:  types.AnchorUpperLeft,
		subject: &types.Box{X: 0.5, Y: 0.5, W: 0.4, H: 0.4},
	})

	out, placement, err := w.ProcessImage(context.Background(), solidImage(200, 160, blue))
	require.NoError(t, err)

	assert.Equal(t, types.AnchorUpperLeft, placement.Anchor)
	require.NotNil(t, placement.Subject)
	assert.Equal(t, []image.Point{image.Pt(0, 0)}, placement.Offsets)
	assert.Equal(t, red, out.NRGBAAt(0, 0))
}

func TestProcessImageAutoAdvisorFailure(t *testing.T) {
	opts := DefaultOptions()
	opts.Position = types.Position{Anchor: types.AnchorAuto}
	w := newTestWatermarker(t, opts)
	w.SetSuggester(&fixedSuggester{err: errors.New("model unreachable")})

	_, placement, err := w.ProcessImage(context.Background(), solidImage(200, 160, blue))
	require.NoError(t, err, "advisor failure must not fail the image")

	assert.Equal(t, types.AnchorLowerRight, placement.Anchor)
	assert.Nil(t, placement.Subject)
	assert.Equal(t, []image.Point{image.Pt(180, 150)}, placement.Offsets)
}

func TestPlacementRects(t *testing.T) {
	p := &Placement{
		Size:    image.Pt(20, 10),
		Offsets: []image.Point{{X: 0, Y: 0}, {X: 50, Y: 40}},
	}

	rects := p.Rects()
	require.Len(t, rects, 2)
	assert.Equal(t, image.Rect(0, 0, 20, 10), rects[0])
	assert.Equal(t, image.Rect(50, 40, 70, 50), rects[1])
}

func TestProcessFileWritesOutput(t *testing.T) {
	opts := DefaultOptions()
	opts.Opacity = 1.0
	opts.OutputDir = t.TempDir()
	w := newTestWatermarker(t, opts)

	inputPath := filepath.Join(t.TempDir(), "photo.png")
	writeImage(t, inputPath, solidImage(200, 160, blue))

	outcome := w.ProcessFile(context.Background(), inputPath)
	require.NoError(t, outcome.Err)
	assert.Equal(t, inputPath, outcome.Input)
	assert.Equal(t, filepath.Join(opts.OutputDir, "photo.png"), outcome.Output)
	require.NotNil(t, outcome.Placement)

	img, err := processing.NewProcessor().LoadImage(outcome.Output)
	require.NoError(t, err)

	r, _, _, _ := img.At(199, 159).RGBA()
	assert.EqualValues(t, 0xffff, r, "watermark corner is red")
	_, _, b, _ := img.At(0, 0).RGBA()
	assert.EqualValues(t, 0xffff, b, "background stays blue")
}

func TestProcessFileFormatOverride(t *testing.T) {
	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()
	opts.Format = "jpg"
	w := newTestWatermarker(t, opts)

	inputPath := filepath.Join(t.TempDir(), "photo.png")
	writeImage(t, inputPath, solidImage(200, 160, blue))

	outcome := w.ProcessFile(context.Background(), inputPath)
	require.NoError(t, outcome.Err)
	assert.Equal(t, filepath.Join(opts.OutputDir, "photo.jpg"), outcome.Output)
	assert.FileExists(t, outcome.Output)
}

func TestProcessFileDebugOverlay(t *testing.T) {
	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()
	opts.DebugSuffix = "_boxes"
	w := newTestWatermarker(t, opts)

	inputPath := filepath.Join(t.TempDir(), "photo.png")
	writeImage(t, inputPath, solidImage(200, 160, blue))

	outcome := w.ProcessFile(context.Background(), inputPath)
	require.NoError(t, outcome.Err)
	assert.FileExists(t, filepath.Join(opts.OutputDir, "photo.png"))
	assert.FileExists(t, filepath.Join(opts.OutputDir, "photo_boxes.png"))
}

func TestProcessFileDecodeError(t *testing.T) {
	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()
	w := newTestWatermarker(t, opts)

	inputPath := filepath.Join(t.TempDir(), "broken.png")
	require.NoError(t, os.WriteFile(inputPath, []byte("not an image"), 0o644))

	outcome := w.ProcessFile(context.Background(), inputPath)
	assert.ErrorIs(t, outcome.Err, types.ErrDecode)
	assert.Empty(t, outcome.Output)
}

func TestProcessFileOutOfBoundsWritesNothing(t *testing.T) {
	opts := DefaultOptions()
	opts.Position = types.Position{Anchor: types.AnchorExplicit, X: 500, Y: 500}
	opts.OutputDir = t.TempDir()
	w := newTestWatermarker(t, opts)

	inputPath := filepath.Join(t.TempDir(), "photo.png")
	writeImage(t, inputPath, solidImage(200, 160, blue))

	outcome := w.ProcessFile(context.Background(), inputPath)
	assert.ErrorIs(t, outcome.Err, types.ErrOutOfBounds)
	assert.Empty(t, outcome.Output)

	entries, err := os.ReadDir(opts.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunBatchContinuesAfterFailures(t *testing.T) {
	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()
	w := newTestWatermarker(t, opts)

	inputDir := t.TempDir()
	for i := 0; i < 3; i++ {
		writeImage(t, filepath.Join(inputDir, fmt.Sprintf("good%d.png", i)), solidImage(120, 90, blue))
	}
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "broken.png"), []byte("garbage"), 0o644))

	summary, err := w.Run(context.Background(), inputDir)
	require.NoError(t, err, "per-file failures do not abort the batch")

	assert.Equal(t, 4, summary.Attempted)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Len(t, summary.Outcomes, 4)

	for i := 0; i < 3; i++ {
		assert.FileExists(t, filepath.Join(opts.OutputDir, fmt.Sprintf("good%d.png", i)))
	}
}

func TestRunSingleFile(t *testing.T) {
	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()
	w := newTestWatermarker(t, opts)

	inputPath := filepath.Join(t.TempDir(), "photo.png")
	writeImage(t, inputPath, solidImage(120, 90, blue))

	summary, err := w.Run(context.Background(), inputPath)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Attempted)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Zero(t, summary.Failed)
}

func TestRunMissingInput(t *testing.T) {
	w := newTestWatermarker(t, DefaultOptions())

	_, err := w.Run(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, types.ErrPathNotFound)
}

func TestRunEmptyDirectory(t *testing.T) {
	w := newTestWatermarker(t, DefaultOptions())

	summary, err := w.Run(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, summary.Attempted)
}

func TestRunParallelWorkers(t *testing.T) {
	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()
	opts.Workers = 4
	w := newTestWatermarker(t, opts)

	inputDir := t.TempDir()
	for i := 0; i < 8; i++ {
		writeImage(t, filepath.Join(inputDir, fmt.Sprintf("img%d.png", i)), solidImage(120, 90, blue))
	}

	summary, err := w.Run(context.Background(), inputDir)
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Attempted)
	assert.Equal(t, 8, summary.Succeeded)
	assert.Zero(t, summary.Failed)
}

func TestRunRecursive(t *testing.T) {
	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()
	opts.Recursive = true
	w := newTestWatermarker(t, opts)

	inputDir := t.TempDir()
	nested := filepath.Join(inputDir, "nested")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	writeImage(t, filepath.Join(inputDir, "top.png"), solidImage(120, 90, blue))
	writeImage(t, filepath.Join(nested, "deep.png"), solidImage(120, 90, blue))

	summary, err := w.Run(context.Background(), inputDir)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
}
