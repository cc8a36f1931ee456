package heatmap

import (
	"fmt"
	"image"
	"log"
	"time"

	"github.com/paulmach/orb"

	"github.com/jengzang/records-heatmap/internal/spatial"
)

// PixelHeatmap keeps one counter per output pixel
type PixelHeatmap struct {
	m        spatial.Map
	counts   []uint32
	width    uint32
	height   uint32
	maxValue uint32
	opts     Options
}

// NewPixelHeatmap allocates a zeroed grid the size of m
func NewPixelHeatmap(m spatial.Map, opts Options) *PixelHeatmap {
	if opts.Palette == nil {
		opts.Palette = DefaultPalette()
	}
	width, height := m.PixelSize()
	return &PixelHeatmap{
		m:      m,
		counts: make([]uint32, int(width)*int(height)),
		width:  width,
		height: height,
		opts:   opts,
	}
}

func (h *PixelHeatmap) index(p spatial.ScreenPoint) (int, bool) {
	if p.X >= h.width || p.Y >= h.height {
		return 0, false
	}
	return int(p.X) + int(p.Y)*int(h.width), true
}

// AddPoint implements Heatmap
func (h *PixelHeatmap) AddPoint(p spatial.ScreenPoint) {
	i, ok := h.index(p)
	if !ok {
		panic(fmt.Sprintf("heatmap: pixel %v outside %dx%d grid", p, h.width, h.height))
	}
	h.counts[i]++
	h.maxValue = max(h.maxValue, h.counts[i])
}

// Decay implements Heatmap. The maximum is recomputed from the decayed
// counters.
func (h *PixelHeatmap) Decay(amount uint32) {
	if amount == 0 {
		return
	}
	h.maxValue = decayCounts(h.counts, amount, h.opts.Workers)
}

// Count implements Heatmap
func (h *PixelHeatmap) Count(p spatial.ScreenPoint) uint32 {
	i, ok := h.index(p)
	if !ok {
		return 0
	}
	return h.counts[i]
}

// MaxValue implements Heatmap
func (h *PixelHeatmap) MaxValue() uint32 {
	return h.maxValue
}

// ProjectToScreen implements Heatmap
func (h *PixelHeatmap) ProjectToScreen(p orb.Point) (spatial.ScreenPoint, bool) {
	return h.m.ToPixels(p)
}

// Image implements Heatmap
func (h *PixelHeatmap) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, int(h.width), int(h.height)))
	samples := renderSamples(h.counts, h.maxValue, h.opts.Palette, h.opts.Workers)
	for i, c := range samples {
		o := i * 4
		img.Pix[o+0] = c.R
		img.Pix[o+1] = c.G
		img.Pix[o+2] = c.B
		img.Pix[o+3] = c.A
	}
	return img
}

// ImageWithOverlay implements Heatmap
func (h *PixelHeatmap) ImageWithOverlay(name string, date time.Time) *image.NRGBA {
	img := h.Image()
	drawOverlay(img, h.opts, name, date)
	return img
}

func drawOverlay(img *image.NRGBA, opts Options, name string, date time.Time) {
	if opts.Overlay == nil {
		return
	}
	lines := opts.Overlay.Lines(name, date, opts.RenderTitle, opts.RenderDate)
	if err := opts.Overlay.Draw(img, lines); err != nil {
		log.Printf("[Heatmap] Overlay skipped: %v", err)
	}
}
