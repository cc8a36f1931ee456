package heatmap

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/image/draw"

	"github.com/jengzang/records-heatmap/internal/spatial"
)

// TileHeatmap keeps one counter per map tile at a fixed tile zoom, covering
// the viewport. Screen points of this grid are tile indices relative to the
// grid's top-left tile.
type TileHeatmap struct {
	m        spatial.Map
	zoom     uint8
	scale    float64 // tiles at zoom per tile at the map zoom
	minX     int
	minY     int
	maxX     int // exclusive
	maxY     int // exclusive
	counts   []uint32
	maxValue uint32
	opts     Options
}

// NewTileHeatmap covers the viewport of m with tiles at zoom. The lower bound
// is floored and the upper bound ceiled per axis, so every tile touching the
// viewport is included.
func NewTileHeatmap(m spatial.Map, zoom uint8, opts Options) *TileHeatmap {
	if opts.Palette == nil {
		opts.Palette = DefaultPalette()
	}
	b := tileBounds(m, zoom)
	h := &TileHeatmap{
		m:     m,
		zoom:  zoom,
		scale: tileScale(m, zoom),
		minX:  b.Min.X,
		minY:  b.Min.Y,
		maxX:  b.Max.X,
		maxY:  b.Max.Y,
		opts:  opts,
	}
	h.counts = make([]uint32, h.cols()*h.rows())
	return h
}

func tileScale(m spatial.Map, zoom uint8) float64 {
	return math.Pow(2, float64(zoom)-float64(m.Zoom()))
}

// tileBounds returns the tiles at zoom touching the viewport, max exclusive
func tileBounds(m spatial.Map, zoom uint8) image.Rectangle {
	scale := tileScale(m, zoom)
	ext := m.TileExtents()
	return image.Rect(
		int(math.Floor(ext.Lo().X*scale)),
		int(math.Floor(ext.Lo().Y*scale)),
		int(math.Ceil(ext.Hi().X*scale)),
		int(math.Ceil(ext.Hi().Y*scale)),
	)
}

// TileGridCells returns how many counters a tile grid at zoom over m needs,
// without allocating them
func TileGridCells(m spatial.Map, zoom uint8) int64 {
	scale := tileScale(m, zoom)
	ext := m.TileExtents()
	cols := math.Ceil(ext.Hi().X*scale) - math.Floor(ext.Lo().X*scale)
	rows := math.Ceil(ext.Hi().Y*scale) - math.Floor(ext.Lo().Y*scale)
	cells := cols * rows
	if math.IsNaN(cells) || cells > math.MaxInt64/2 {
		return math.MaxInt64
	}
	return int64(cells)
}

func (h *TileHeatmap) cols() int { return h.maxX - h.minX }
func (h *TileHeatmap) rows() int { return h.maxY - h.minY }

// Bounds returns the covered tile indices, max exclusive
func (h *TileHeatmap) Bounds() image.Rectangle {
	return image.Rect(h.minX, h.minY, h.maxX, h.maxY)
}

// Zoom returns the tile zoom of the grid
func (h *TileHeatmap) Zoom() uint8 {
	return h.zoom
}

func (h *TileHeatmap) index(p spatial.ScreenPoint) (int, bool) {
	if int(p.X) >= h.cols() || int(p.Y) >= h.rows() {
		return 0, false
	}
	return int(p.X) + int(p.Y)*h.cols(), true
}

// AddPoint implements Heatmap
func (h *TileHeatmap) AddPoint(p spatial.ScreenPoint) {
	i, ok := h.index(p)
	if !ok {
		panic(fmt.Sprintf("heatmap: tile %v outside %dx%d grid", p, h.cols(), h.rows()))
	}
	h.counts[i]++
	h.maxValue = max(h.maxValue, h.counts[i])
}

// Decay implements Heatmap
func (h *TileHeatmap) Decay(amount uint32) {
	if amount == 0 {
		return
	}
	h.maxValue = decayCounts(h.counts, amount, h.opts.Workers)
}

// Count implements Heatmap
func (h *TileHeatmap) Count(p spatial.ScreenPoint) uint32 {
	i, ok := h.index(p)
	if !ok {
		return 0
	}
	return h.counts[i]
}

// MaxValue implements Heatmap
func (h *TileHeatmap) MaxValue() uint32 {
	return h.maxValue
}

// ProjectToScreen implements Heatmap. The point is floored to its tile and
// checked against the grid's own bounds, not the viewport's.
func (h *TileHeatmap) ProjectToScreen(p orb.Point) (spatial.ScreenPoint, bool) {
	t := spatial.GeoToTile(p, h.zoom)
	x, y := math.Floor(t.X), math.Floor(t.Y)
	if math.IsNaN(x) || math.IsNaN(y) {
		return spatial.ScreenPoint{}, false
	}
	if x < float64(h.minX) || x >= float64(h.maxX) || y < float64(h.minY) || y >= float64(h.maxY) {
		return spatial.ScreenPoint{}, false
	}
	return spatial.ScreenPoint{X: uint32(int(x) - h.minX), Y: uint32(int(y) - h.minY)}, true
}

// cellRect returns the viewport pixels covered by grid cell (cx, cy)
func (h *TileHeatmap) cellRect(cx, cy int) image.Rectangle {
	lo := h.m.TileExtents().Lo()
	px := func(tile int, origin float64) int {
		return int(math.Floor((float64(tile)/h.scale - origin) * spatial.TileSize))
	}
	tx, ty := h.minX+cx, h.minY+cy
	return image.Rect(px(tx, lo.X), px(ty, lo.Y), px(tx+1, lo.X), px(ty+1, lo.Y))
}

// Image implements Heatmap. Each tile is painted as a filled rectangle clipped
// to the viewport.
func (h *TileHeatmap) Image() *image.NRGBA {
	width, height := h.m.PixelSize()
	img := image.NewNRGBA(image.Rect(0, 0, int(width), int(height)))
	samples := renderSamples(h.counts, h.maxValue, h.opts.Palette, h.opts.Workers)

	cols := h.cols()
	for i, c := range samples {
		if c.A == 0 {
			continue
		}
		r := h.cellRect(i%cols, i/cols).Intersect(img.Bounds())
		if r.Empty() {
			continue
		}
		draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
	}
	return img
}

// ImageWithOverlay implements Heatmap
func (h *TileHeatmap) ImageWithOverlay(name string, date time.Time) *image.NRGBA {
	img := h.Image()
	drawOverlay(img, h.opts, name, date)
	return img
}
