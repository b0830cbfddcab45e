package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Mode selects how the watermark is applied to the base image.
type Mode string

const (
	// ModeSingle places one watermark at the resolved position.
	ModeSingle Mode = "SINGLE"
	// ModeTile repeats the watermark across the base image.
	ModeTile Mode = "TILE"
)

// RescaleMode selects how the watermark is sized relative to the base image.
type RescaleMode string

const (
	// RescaleLinear sizes the watermark to a fraction of the base width.
	RescaleLinear RescaleMode = "LINEAR"
	// RescaleArea sizes the watermark to a fraction of the base area.
	RescaleArea RescaleMode = "AREA"
)

// TileStyle selects which cells of the tile grid receive a watermark.
type TileStyle string

const (
	// TileGrid fills every cell of the grid.
	TileGrid TileStyle = "GRID"
	// TileChecker fills cells with even row+column parity only.
	TileChecker TileStyle = "CHECKER"
)

// Anchor names a predefined placement for a single watermark.
type Anchor string

const (
	AnchorUpperLeft  Anchor = "UPPER_LEFT"
	AnchorUpperRight Anchor = "UPPER_RIGHT"
	AnchorLowerLeft  Anchor = "LOWER_LEFT"
	AnchorLowerRight Anchor = "LOWER_RIGHT"
	AnchorMiddle     Anchor = "MIDDLE"
	// AnchorAuto defers the choice to a placement advisor.
	AnchorAuto Anchor = "AUTO"
	// AnchorExplicit uses the X,Y coordinates carried by the Position.
	AnchorExplicit Anchor = "EXPLICIT"
)

// Position is a resolved placement request: a named anchor, AUTO, or
// explicit pixel coordinates.
type Position struct {
	Anchor Anchor `json:"anchor"`
	X      int    `json:"x,omitempty"`
	Y      int    `json:"y,omitempty"`
}

// String renders the position the way ParsePosition accepts it.
func (p Position) String() string {
	if p.Anchor == AnchorExplicit {
		return fmt.Sprintf("%d,%d", p.X, p.Y)
	}
	return string(p.Anchor)
}

// Sentinel errors for parameter validation and per-file failures. Callers
// wrap them with fmt.Errorf("%w: ...") and match with errors.Is.
var (
	ErrInvalidProportion = errors.New("proportion must be in (0, 1]")
	ErrInvalidOpacity    = errors.New("opacity must be in [0, 1]")
	ErrInvalidMode       = errors.New("unrecognized mode")
	ErrInvalidPadding    = errors.New("tile padding must be >= 0")
	ErrInvalidMargin     = errors.New("margin must be >= 0")
	ErrOutOfBounds       = errors.New("placement outside base image bounds")
	ErrSizeMismatch      = errors.New("watermark does not fit base image")
	ErrDecode            = errors.New("decode image")
	ErrEncode            = errors.New("encode image")
	ErrPathNotFound      = errors.New("path not found")
)

var modes = map[Mode]struct{}{
	ModeSingle: {},
	ModeTile:   {},
}

var rescaleModes = map[RescaleMode]struct{}{
	RescaleLinear: {},
	RescaleArea:   {},
}

var tileStyles = map[TileStyle]struct{}{
	TileGrid:    {},
	TileChecker: {},
}

var anchors = map[Anchor]struct{}{
	AnchorUpperLeft:  {},
	AnchorUpperRight: {},
	AnchorLowerLeft:  {},
	AnchorLowerRight: {},
	AnchorMiddle:     {},
	AnchorAuto:       {},
}

// ParseMode validates an apply-mode string, case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := modes[m]; !ok {
		return "", fmt.Errorf("%w: mode %q", ErrInvalidMode, s)
	}
	return m, nil
}

// ParseRescaleMode validates a rescale-mode string, case-insensitively.
func ParseRescaleMode(s string) (RescaleMode, error) {
	m := RescaleMode(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := rescaleModes[m]; !ok {
		return "", fmt.Errorf("%w: rescale mode %q", ErrInvalidMode, s)
	}
	return m, nil
}

// ParseTileStyle validates a tile-style string, case-insensitively.
func ParseTileStyle(s string) (TileStyle, error) {
	t := TileStyle(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := tileStyles[t]; !ok {
		return "", fmt.Errorf("%w: tile style %q", ErrInvalidMode, s)
	}
	return t, nil
}

// ParsePosition accepts a named anchor ("LOWER_RIGHT", "middle", "auto")
// or explicit pixel coordinates as "x,y" with x,y >= 0.
func ParsePosition(s string) (Position, error) {
	trimmed := strings.TrimSpace(s)
	if xs, ys, ok := strings.Cut(trimmed, ","); ok {
		x, errX := strconv.Atoi(strings.TrimSpace(xs))
		y, errY := strconv.Atoi(strings.TrimSpace(ys))
		if errX != nil || errY != nil {
			return Position{}, fmt.Errorf("%w: position %q", ErrInvalidMode, s)
		}
		if x < 0 || y < 0 {
			return Position{}, fmt.Errorf("%w: position %q (coordinates must be >= 0)", ErrInvalidMode, s)
		}
		return Position{Anchor: AnchorExplicit, X: x, Y: y}, nil
	}

	a := Anchor(strings.ToUpper(trimmed))
	if _, ok := anchors[a]; !ok {
		return Position{}, fmt.Errorf("%w: position %q", ErrInvalidMode, s)
	}
	return Position{Anchor: a}, nil
}

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Primary represents the primary subject detected in an image
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Cx         float64 `json:"cx"`
	Cy         float64 `json:"cy"`
}

// AnalysisResult contains the subject report returned by a vision model,
// used to steer AUTO watermark placement away from the subject.
type AnalysisResult struct {
	Primary     Primary  `json:"primary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}
