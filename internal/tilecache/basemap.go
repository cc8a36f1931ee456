package tilecache

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/paulmach/orb/maptile"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/records-heatmap/internal/spatial"
)

// DefaultFetchConcurrency bounds parallel tile downloads
const DefaultFetchConcurrency = 8

// TileSource returns the encoded image of one tile
type TileSource interface {
	Fetch(ctx context.Context, t maptile.Tile) ([]byte, error)
}

// Basemap assembles background tiles into one image per viewport
type Basemap struct {
	src     TileSource
	workers int
}

// NewBasemap creates a Basemap fetching up to workers tiles at a time
func NewBasemap(src TileSource, workers int) *Basemap {
	if workers <= 0 {
		workers = DefaultFetchConcurrency
	}
	return &Basemap{src: src, workers: workers}
}

// Image fetches every tile the viewport touches and composites them onto a
// canvas of the viewport's size. Tiles are fetched and decoded in parallel and
// drawn by a single goroutine. Any fetch failure aborts.
func (b *Basemap) Image(ctx context.Context, m spatial.Map) (*image.NRGBA, error) {
	xs, ys := m.TileRangeX(), m.TileRangeY()
	cols, rows := xs.Len(), ys.Len()
	zoom := m.Zoom()
	world := 1 << zoom

	tiles := make([]image.Image, cols*rows)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			x, y := xs.Min+i, ys.Min+j
			if x < 0 || y < 0 || x >= world || y >= world {
				continue
			}
			slot := j*cols + i
			g.Go(func() error {
				t := maptile.New(uint32(x), uint32(y), maptile.Zoom(zoom))
				data, err := b.src.Fetch(gctx, t)
				if err != nil {
					return err
				}
				img, _, err := image.Decode(bytes.NewReader(data))
				if err != nil {
					return fmt.Errorf("failed to decode tile %d/%d/%d: %w", zoom, x, y, err)
				}
				tiles[slot] = img
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	width, height := m.PixelSize()
	canvas := image.NewNRGBA(image.Rect(0, 0, int(width), int(height)))
	offX, offY := m.PixelOffsets()
	for slot, tile := range tiles {
		if tile == nil {
			continue
		}
		placeTile(canvas, tile, slot%cols, slot/cols, int(offX), int(offY))
	}
	return canvas, nil
}

// placeTile draws the tile in column i, row j of the viewport's tile range.
// The tile is cropped to TileSize; the first column and row are further
// cropped by the sub-tile offsets of the viewport's top-left corner.
func placeTile(canvas draw.Image, tile image.Image, i, j, offX, offY int) {
	b := tile.Bounds()
	src := image.Rect(b.Min.X, b.Min.Y, b.Min.X+spatial.TileSize, b.Min.Y+spatial.TileSize).Intersect(b)

	dx := i*spatial.TileSize - offX
	dy := j*spatial.TileSize - offY
	if i == 0 {
		src.Min.X += offX
		dx = 0
	}
	if j == 0 {
		src.Min.Y += offY
		dy = 0
	}
	if src.Empty() {
		return
	}
	dst := image.Rect(dx, dy, dx+src.Dx(), dy+src.Dy())
	draw.Draw(canvas, dst, tile, src.Min, draw.Src)
}

// Tint returns a uniform black layer the size of the viewport. strength is
// clamped to [0, 1] and scaled to the alpha channel.
func Tint(m spatial.Map, strength float64) *image.NRGBA {
	strength = max(0, min(1, strength))
	width, height := m.PixelSize()
	img := image.NewNRGBA(image.Rect(0, 0, int(width), int(height)))
	c := color.NRGBA{A: uint8(strength * 255)}
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// Composite draws layers over each other in order onto a blank canvas
func Composite(width, height int, layers ...image.Image) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	for _, l := range layers {
		if l == nil {
			continue
		}
		draw.Draw(canvas, canvas.Bounds(), l, l.Bounds().Min, draw.Over)
	}
	return canvas
}
