package vision

import (
	"image"
	"math"

	"github.com/menta2k/watermarker/pkg/geometry"
	"github.com/menta2k/watermarker/pkg/types"
)

// SubjectDetector finds salient regions in images without calling a model,
// so automatic placement works offline.
type SubjectDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for subject detection
type DetectionConfig struct {
	EdgeThreshold   float64
	ContrastWeight  float64
	ColorWeight     float64
	MinSubjectRatio float64
}

// New creates a new SubjectDetector with default configuration
func New() *SubjectDetector {
	return &SubjectDetector{
		config: DetectionConfig{
			EdgeThreshold:   0.01,
			ContrastWeight:  0.3,
			ColorWeight:     0.2,
			MinSubjectRatio: 0.05,
		},
	}
}

// NewWithConfig creates a new SubjectDetector with custom configuration
func NewWithConfig(config DetectionConfig) *SubjectDetector {
	return &SubjectDetector{config: config}
}

// Region represents a rectangular region of interest
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// anchorPreference orders the candidate placements; earlier entries win ties.
var anchorPreference = []types.Anchor{
	types.AnchorLowerRight,
	types.AnchorLowerLeft,
	types.AnchorUpperRight,
	types.AnchorUpperLeft,
	types.AnchorMiddle,
}

// SuggestPlacement scores the candidate placements on a saliency map and
// returns the anchor whose watermark rectangle covers the least salient
// area, plus the most salient region as a normalized box (nil when nothing
// crosses the detection threshold). Placements that do not fit the base
// image are skipped.
func (d *SubjectDetector) SuggestPlacement(img image.Image, mark image.Point, margin int) (types.Anchor, *types.Box) {
	bounds := img.Bounds()
	base := image.Pt(bounds.Dx(), bounds.Dy())
	if base.X < 3 || base.Y < 3 {
		return types.AnchorLowerRight, nil
	}

	saliencyMap := d.calculateSaliencyMap(img)

	best := types.AnchorLowerRight
	bestScore := math.Inf(1)
	for _, anchor := range anchorPreference {
		offset, err := geometry.Place(base, mark, types.Position{Anchor: anchor}, margin)
		if err != nil {
			continue
		}
		score := d.calculateRegionScore(saliencyMap, offset.X, offset.Y, mark.X, mark.Y)
		if score < bestScore {
			best = anchor
			bestScore = score
		}
	}
	return best, d.subjectBox(saliencyMap, base.X, base.Y)
}

// subjectBox returns the top-scoring salient region in normalized form.
func (d *SubjectDetector) subjectBox(saliencyMap [][]float64, width, height int) *types.Box {
	regions := d.findImportantRegions(saliencyMap, width, height)
	regions = d.filterAndScoreRegions(regions, width, height)
	if len(regions) == 0 {
		return nil
	}

	top := regions[0]
	return &types.Box{
		X: float64(top.X) / float64(width),
		Y: float64(top.Y) / float64(height),
		W: float64(top.Width) / float64(width),
		H: float64(top.Height) / float64(height),
	}
}

func (d *SubjectDetector) calculateSaliencyMap(img image.Image) [][]float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	saliencyMap := make([][]float64, height)
	for i := range saliencyMap {
		saliencyMap[i] = make([]float64, width)
	}

	// Simple saliency calculation based on edge detection and contrast
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			// Get current pixel
			currentColor := img.At(x+bounds.Min.X, y+bounds.Min.Y)
			r1, g1, b1, _ := currentColor.RGBA()

			// Calculate edge strength using Sobel-like operator
			var edgeStrength float64

			// Check 8 neighboring pixels
			neighbors := [][]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}

			for _, offset := range neighbors {
				nx, ny := x+offset[0], y+offset[1]
				neighborColor := img.At(nx+bounds.Min.X, ny+bounds.Min.Y)
				r2, g2, b2, _ := neighborColor.RGBA()

				// Calculate color difference
				dr := float64(r1) - float64(r2)
				dg := float64(g1) - float64(g2)
				db := float64(b1) - float64(b2)

				colorDiff := math.Sqrt(dr*dr + dg*dg + db*db)
				edgeStrength += colorDiff
			}

			// Normalize edge strength
			edgeStrength /= (8.0 * 65535.0) // 8 neighbors, max color value 65535

			// Calculate brightness for contrast
			brightness := (float64(r1) + float64(g1) + float64(b1)) / (3.0 * 65535.0)

			// Combine edge and contrast information
			saliency := d.config.ContrastWeight*edgeStrength + d.config.ColorWeight*brightness
			saliencyMap[y][x] = saliency
		}
	}

	return saliencyMap
}

func (d *SubjectDetector) findImportantRegions(saliencyMap [][]float64, width, height int) []Region {
	var regions []Region

	// Use sliding window approach to find high-saliency regions
	windowSizes := []int{width / 20, width / 16, width / 12, width / 8, width / 4}

	for _, windowSize := range windowSizes {
		if windowSize < 10 {
			continue // Skip very small windows
		}
		windowHeight := windowSize

		for y := 0; y <= height-windowHeight; y += windowSize / 8 {
			for x := 0; x <= width-windowSize; x += windowSize / 8 {
				score := d.calculateRegionScore(saliencyMap, x, y, windowSize, windowHeight)

				if score > d.config.EdgeThreshold {
					regions = append(regions, Region{
						X:      x,
						Y:      y,
						Width:  windowSize,
						Height: windowHeight,
						Score:  score,
					})
				}
			}
		}
	}

	return regions
}

func (d *SubjectDetector) calculateRegionScore(saliencyMap [][]float64, x, y, width, height int) float64 {
	var totalScore float64
	count := 0

	for ry := y; ry < y+height && ry < len(saliencyMap); ry++ {
		for rx := x; rx < x+width && rx < len(saliencyMap[0]); rx++ {
			totalScore += saliencyMap[ry][rx]
			count++
		}
	}

	if count == 0 {
		return 0
	}

	return totalScore / float64(count)
}

func (d *SubjectDetector) filterAndScoreRegions(regions []Region, imageWidth, imageHeight int) []Region {
	var filtered []Region

	imageArea := imageWidth * imageHeight
	minArea := int(float64(imageArea) * d.config.MinSubjectRatio)

	for _, region := range regions {
		if region.Area() >= minArea {
			filtered = append(filtered, region)
		}
	}

	// Sort by score (descending)
	for i := 0; i < len(filtered)-1; i++ {
		for j := i + 1; j < len(filtered); j++ {
			if filtered[i].Score < filtered[j].Score {
				filtered[i], filtered[j] = filtered[j], filtered[i]
			}
		}
	}

	return filtered
}
