// Package heatmap accumulates per-cell visit counts over a viewport and
// renders them as a transparent color raster.
package heatmap

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/paulmach/orb"

	"github.com/jengzang/records-heatmap/internal/spatial"
)

// Heatmap is implemented by every grid resolution.
//
// AddPoint and Decay mutate the counters and must be called from a single
// goroutine. ProjectToScreen is read-only and safe for concurrent use.
type Heatmap interface {
	// AddPoint increments the counter at p. A point outside the grid is an
	// invariant violation and panics.
	AddPoint(p spatial.ScreenPoint)

	// Decay lowers every counter above amount by amount.
	Decay(amount uint32)

	// Image renders the counters.
	Image() *image.NRGBA

	// ImageWithOverlay renders the counters and draws the title and date.
	ImageWithOverlay(name string, date time.Time) *image.NRGBA

	// ProjectToScreen maps a geographic point to a grid cell.
	// It returns false if the point is off the grid.
	ProjectToScreen(p orb.Point) (spatial.ScreenPoint, bool)

	// Count returns the counter at p, or 0 outside the grid.
	Count(p spatial.ScreenPoint) uint32

	// MaxValue returns the normalization maximum.
	MaxValue() uint32
}

// Kind selects the grid resolution
type Kind string

const (
	KindPixel       Kind = "pixel"
	KindSquadrat    Kind = "squadrat"
	KindSquadratino Kind = "squadratino"
)

// Tile zoom levels of the tile-resolution kinds
const (
	SquadratZoom    uint8 = 14
	SquadratinoZoom uint8 = 17
)

// Options carries the shared, immutable rendering resources
type Options struct {
	Palette     Palette
	Overlay     *Overlay
	RenderTitle bool
	RenderDate  bool
	Workers     int
}

// ParseKind validates a kind name
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindPixel, KindSquadrat, KindSquadratino:
		return k, nil
	}
	return "", fmt.Errorf("unknown heatmap kind %q", s)
}

// ErrGridTooLarge is returned when a tile grid would need more counters than
// MaxGridCells allows for the viewport
var ErrGridTooLarge = errors.New("heatmap grid too large")

// minGridBudget is the counter budget of small viewports
const minGridBudget = 1 << 24

// MaxGridCells is the largest grid allowed over m: one counter per pixel or
// 1<<24, whichever is more
func MaxGridCells(m spatial.Map) int64 {
	width, height := m.PixelSize()
	return max(int64(width)*int64(height), minGridBudget)
}

// GridCells returns the number of counters kind needs over m
func GridCells(kind Kind, m spatial.Map) (int64, error) {
	switch kind {
	case KindPixel:
		width, height := m.PixelSize()
		return int64(width) * int64(height), nil
	case KindSquadrat:
		return TileGridCells(m, SquadratZoom), nil
	case KindSquadratino:
		return TileGridCells(m, SquadratinoZoom), nil
	}
	return 0, fmt.Errorf("unknown heatmap kind %q", kind)
}

// CheckGridSize rejects kind over m when its grid exceeds MaxGridCells
func CheckGridSize(kind Kind, m spatial.Map) error {
	cells, err := GridCells(kind, m)
	if err != nil {
		return err
	}
	if budget := MaxGridCells(m); cells > budget {
		return fmt.Errorf("%w: %s at zoom %d needs %d cells, at most %d allowed; raise the zoom",
			ErrGridTooLarge, kind, m.Zoom(), cells, budget)
	}
	return nil
}

// New creates the heatmap implementation for kind over m
func New(kind Kind, m spatial.Map, opts Options) (Heatmap, error) {
	if opts.Palette == nil {
		opts.Palette = DefaultPalette()
	}
	if err := CheckGridSize(kind, m); err != nil {
		return nil, err
	}
	switch kind {
	case KindPixel:
		return NewPixelHeatmap(m, opts), nil
	case KindSquadrat:
		return NewTileHeatmap(m, SquadratZoom, opts), nil
	case KindSquadratino:
		return NewTileHeatmap(m, SquadratinoZoom, opts), nil
	}
	return nil, fmt.Errorf("unknown heatmap kind %q", kind)
}
