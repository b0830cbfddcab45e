// Package watermarker applies image watermarks to single files or whole
// directories.
//
// A watermark is rescaled against each base image, faded to the requested
// opacity, and composited either once at a chosen position or tiled across
// the full image. Position can be a named corner, the middle, explicit
// pixel coordinates, or AUTO, which asks a placement advisor to keep the
// mark away from the dominant subject.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		"github.com/menta2k/watermarker"
//	)
//
//	func main() {
//		opts := watermarker.DefaultOptions()
//		opts.Opacity = 0.4
//
//		w, err := watermarker.New("logo.png", opts)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		summary, err := w.Run(context.Background(), "photos/")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		log.Printf("%d processed, %d failed", summary.Attempted, summary.Failed)
//	}
//
// The package consists of four main components:
//
// 1. Geometry (pkg/geometry): Computes watermark sizes, positions and tile layouts
// 2. Opacity (pkg/opacity): Scales the watermark's alpha channel
// 3. Composite (pkg/composite): Alpha-composites the watermark onto the base image
// 4. Processing (pkg/processing): Handles image decoding, encoding and overlays
//
// AUTO placement is served by pkg/vision (offline saliency analysis) or by
// a vision model reached through pkg/ollama or pkg/llamacpp.
package watermarker

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/watermarker/internal/config"
	"github.com/menta2k/watermarker/internal/utils"
	"github.com/menta2k/watermarker/pkg/composite"
	"github.com/menta2k/watermarker/pkg/geometry"
	"github.com/menta2k/watermarker/pkg/opacity"
	"github.com/menta2k/watermarker/pkg/processing"
	"github.com/menta2k/watermarker/pkg/types"
)

// Version of the watermarker library
const Version = "1.0.0"

// Options controls how watermarks are applied and where results go.
type Options struct {
	// Mode selects SINGLE placement or TILE repetition.
	Mode types.Mode
	// Position resolves the placement in SINGLE mode; ignored for TILE.
	Position types.Position
	// Opacity multiplies the watermark's alpha channel, in [0, 1].
	Opacity float64
	// Proportion sets the watermark size relative to the base, in (0, 1].
	Proportion float64
	// RescaleMode interprets Proportion against width (LINEAR) or area (AREA).
	RescaleMode types.RescaleMode
	// Margin insets corner placements, in pixels.
	Margin int
	// TilePadding separates tiles, in pixels.
	TilePadding int
	// TileStyle fills every grid cell or every other one.
	TileStyle types.TileStyle

	// OutputDir receives the processed images.
	OutputDir string
	// Prefix and Suffix wrap the original file name.
	Prefix string
	Suffix string
	// Format forces an output extension; empty keeps the input's.
	Format string
	// Quality applies to lossy encoders, in [1, 100].
	Quality int
	// Lossless switches WebP output to lossless encoding.
	Lossless bool

	// Workers bounds concurrent file processing.
	Workers int
	// Recursive walks subdirectories when the input is a directory.
	Recursive bool

	// DebugSuffix, when set, writes a placement overlay next to each
	// output (e.g. "_boxes").
	DebugSuffix string
}

// DefaultOptions returns the options used when nothing is configured:
// a single watermark in the lower right corner at half opacity, sized
// to a tenth of the base width.
func DefaultOptions() Options {
	return Options{
		Mode:        types.ModeSingle,
		Position:    types.Position{Anchor: types.AnchorLowerRight},
		Opacity:     0.5,
		Proportion:  0.1,
		RescaleMode: types.RescaleLinear,
		Margin:      0,
		TilePadding: 50,
		TileStyle:   types.TileGrid,
		OutputDir:   "output",
		Quality:     95,
		Workers:     1,
	}
}

// OptionsFromConfig converts a loaded configuration into Options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	mode, err := types.ParseMode(cfg.Watermark.Mode)
	if err != nil {
		return Options{}, err
	}
	rescale, err := types.ParseRescaleMode(cfg.Watermark.RescaleMode)
	if err != nil {
		return Options{}, err
	}
	style, err := types.ParseTileStyle(cfg.Watermark.TileStyle)
	if err != nil {
		return Options{}, err
	}
	pos, err := types.ParsePosition(cfg.Watermark.Position)
	if err != nil {
		return Options{}, err
	}

	return Options{
		Mode:        mode,
		Position:    pos,
		Opacity:     cfg.Watermark.Opacity,
		Proportion:  cfg.Watermark.Proportion,
		RescaleMode: rescale,
		Margin:      cfg.Watermark.Margin,
		TilePadding: cfg.Watermark.TilePadding,
		TileStyle:   style,
		OutputDir:   cfg.Output.OutputDir,
		Prefix:      cfg.Output.Prefix,
		Suffix:      cfg.Output.Suffix,
		Format:      cfg.Output.Format,
		Quality:     cfg.Output.Quality,
		Lossless:    cfg.Output.Lossless,
		Workers:     cfg.Batch.Workers,
		Recursive:   cfg.Batch.Recursive,
	}, nil
}

// Validate checks every batch-wide parameter. Violations surface the
// structured error kinds from pkg/types so callers can match them.
func (o Options) Validate() error {
	if _, err := types.ParseMode(string(o.Mode)); err != nil {
		return err
	}
	if _, err := types.ParseRescaleMode(string(o.RescaleMode)); err != nil {
		return err
	}
	if _, err := types.ParseTileStyle(string(o.TileStyle)); err != nil {
		return err
	}
	if _, err := types.ParsePosition(o.Position.String()); err != nil {
		return err
	}
	if o.Opacity < 0 || o.Opacity > 1 {
		return fmt.Errorf("%w: %v", types.ErrInvalidOpacity, o.Opacity)
	}
	if o.Proportion <= 0 || o.Proportion > 1 {
		return fmt.Errorf("%w: %v", types.ErrInvalidProportion, o.Proportion)
	}
	if o.Margin < 0 {
		return fmt.Errorf("%w: %d", types.ErrInvalidMargin, o.Margin)
	}
	if o.TilePadding < 0 {
		return fmt.Errorf("%w: %d", types.ErrInvalidPadding, o.TilePadding)
	}
	if o.Quality < 1 || o.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", o.Quality)
	}
	if o.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", o.Workers)
	}
	return nil
}

// Watermarker applies one watermark image to base images.
type Watermarker struct {
	opts      Options
	mark      image.Image
	processor *processing.Processor
	suggester AnchorSuggester
	log       *logrus.Logger
}

// New validates the options, loads the watermark image and returns a
// Watermarker ready for use. AUTO positions get the offline placement
// advisor by default; SetSuggester swaps in a model-backed one.
func New(markPath string, opts Options) (*Watermarker, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	processor := processing.NewProcessor()
	mark, err := processor.LoadImage(markPath)
	if err != nil {
		return nil, err
	}

	w := &Watermarker{
		opts:      opts,
		mark:      mark,
		processor: processor,
		log:       logrus.New(),
	}
	if opts.Position.Anchor == types.AnchorAuto {
		w.suggester = NewLocalSuggester()
	}
	return w, nil
}

// SetLogger replaces the default logger.
func (w *Watermarker) SetLogger(log *logrus.Logger) {
	if log != nil {
		w.log = log
	}
}

// SetSuggester replaces the AUTO placement advisor.
func (w *Watermarker) SetSuggester(s AnchorSuggester) {
	w.suggester = s
}

// Placement describes where the watermark landed on one image.
type Placement struct {
	// Size is the watermark size after rescaling.
	Size image.Point
	// Offsets holds the top-left corners; one entry in SINGLE mode.
	Offsets []image.Point
	// Anchor is the resolved anchor in SINGLE mode.
	Anchor types.Anchor
	// Subject is the box reported by the AUTO advisor, when consulted.
	Subject *types.Box
}

// Rects returns the watermark rectangles for drawing or inspection.
func (p *Placement) Rects() []image.Rectangle {
	rects := make([]image.Rectangle, len(p.Offsets))
	for i, off := range p.Offsets {
		rects[i] = image.Rectangle{Min: off, Max: off.Add(p.Size)}
	}
	return rects
}

// ProcessImage watermarks a decoded image and reports the placement.
// The input is not modified.
func (w *Watermarker) ProcessImage(ctx context.Context, base image.Image) (*image.NRGBA, *Placement, error) {
	baseBounds := base.Bounds()
	baseSize := image.Pt(baseBounds.Dx(), baseBounds.Dy())
	markBounds := w.mark.Bounds()

	markSize, err := geometry.Scale(baseSize, image.Pt(markBounds.Dx(), markBounds.Dy()),
		w.opts.RescaleMode, w.opts.Proportion)
	if err != nil {
		return nil, nil, err
	}

	resized := imaging.Resize(w.mark, markSize.X, markSize.Y, imaging.Lanczos)
	faded, err := opacity.Apply(resized, w.opts.Opacity)
	if err != nil {
		return nil, nil, err
	}

	placement := &Placement{Size: markSize}
	switch w.opts.Mode {
	case types.ModeTile:
		placement.Offsets, err = geometry.Tiles(baseSize, markSize, w.opts.TilePadding, w.opts.TileStyle)
	case types.ModeSingle:
		pos, subject := w.resolvePosition(ctx, base, markSize)
		placement.Anchor = pos.Anchor
		placement.Subject = subject

		var offset image.Point
		offset, err = geometry.Place(baseSize, markSize, pos, w.opts.Margin)
		placement.Offsets = []image.Point{offset}
	default:
		err = fmt.Errorf("%w: mode %q", types.ErrInvalidMode, w.opts.Mode)
	}
	if err != nil {
		return nil, nil, err
	}

	return composite.Overlay(base, faded, placement.Offsets), placement, nil
}

// resolvePosition turns an AUTO position into a concrete anchor. Advisor
// failures degrade to the lower right corner instead of failing the image.
func (w *Watermarker) resolvePosition(ctx context.Context, base image.Image, markSize image.Point) (types.Position, *types.Box) {
	pos := w.opts.Position
	if pos.Anchor != types.AnchorAuto {
		return pos, nil
	}

	suggester := w.suggester
	if suggester == nil {
		suggester = NewLocalSuggester()
	}

	anchor, subject, err := suggester.Suggest(ctx, base, markSize, w.opts.Margin)
	if err != nil {
		w.log.WithError(err).Warn("placement advisor failed, falling back to lower right")
		return types.Position{Anchor: types.AnchorLowerRight}, nil
	}
	return types.Position{Anchor: anchor}, subject
}

// Outcome describes one processed file.
type Outcome struct {
	Input     string
	Output    string
	Placement *Placement
	Err       error
}

// ProcessFile loads, watermarks and saves a single image file. Failures
// are reported in the Outcome rather than aborting the batch.
func (w *Watermarker) ProcessFile(ctx context.Context, inputPath string) Outcome {
	outcome := Outcome{Input: inputPath}

	base, err := w.processor.LoadImage(inputPath)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	result, placement, err := w.ProcessImage(ctx, base)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Placement = placement

	if err := utils.EnsureDir(w.opts.OutputDir); err != nil {
		outcome.Err = err
		return outcome
	}

	outputPath := utils.GenerateOutputFilename(inputPath, w.opts.OutputDir,
		w.opts.Prefix, w.opts.Suffix, w.opts.Format)
	if err := w.processor.SaveImage(result, outputPath, w.opts.Quality, w.opts.Lossless); err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Output = outputPath

	if w.opts.DebugSuffix != "" {
		overlay := w.processor.DrawPlacementOverlay(base, placement.Subject, placement.Rects())
		overlayPath := utils.GenerateOutputFilename(inputPath, w.opts.OutputDir,
			w.opts.Prefix, w.opts.Suffix+w.opts.DebugSuffix, w.opts.Format)
		if err := w.processor.SaveImage(overlay, overlayPath, w.opts.Quality, w.opts.Lossless); err != nil {
			w.log.WithError(err).WithField("file", overlayPath).Warn("failed to save placement overlay")
		}
	}

	return outcome
}

// Summary aggregates a batch run.
type Summary struct {
	Attempted int
	Succeeded int
	Failed    int
	Outcomes  []Outcome
}

// Run watermarks a single file or every recognized image in a directory.
// Per-file failures are logged and counted; the returned error is non-nil
// only when the input cannot be resolved at all or the context ends.
func (w *Watermarker) Run(ctx context.Context, inputPath string) (Summary, error) {
	var files []string
	switch {
	case utils.FileExists(inputPath):
		files = []string{inputPath}
	case utils.DirExists(inputPath):
		list, err := utils.ListImageFiles(inputPath, w.opts.Recursive)
		if err != nil {
			return Summary{}, err
		}
		files = list
	default:
		return Summary{}, fmt.Errorf("%w: %s", types.ErrPathNotFound, inputPath)
	}

	summary := Summary{}
	if len(files) == 0 {
		w.log.Warn("no image files found")
		return summary, nil
	}

	workers := w.opts.Workers
	if workers > len(files) {
		workers = len(files)
	}

	jobs := make(chan string)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				outcome := w.ProcessFile(ctx, path)

				mu.Lock()
				summary.Attempted++
				if outcome.Err != nil {
					summary.Failed++
				} else {
					summary.Succeeded++
				}
				summary.Outcomes = append(summary.Outcomes, outcome)
				mu.Unlock()

				if outcome.Err != nil {
					w.log.WithField("file", path).WithError(outcome.Err).Error("watermarking failed")
				} else if info, statErr := os.Stat(outcome.Output); statErr == nil {
					w.log.WithField("file", path).Infof("wrote %s (%s)", outcome.Output, utils.FormatFileSize(info.Size()))
				} else {
					w.log.WithField("file", path).Infof("wrote %s", outcome.Output)
				}
			}
		}()
	}

dispatch:
	for _, path := range files {
		select {
		case jobs <- path:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	w.log.Infof("processed %d files: %d succeeded, %d failed",
		summary.Attempted, summary.Succeeded, summary.Failed)
	return summary, ctx.Err()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
