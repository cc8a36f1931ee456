package spatial

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/paulmach/orb"
)

// TileSize is the edge length of a slippy-map raster tile in pixels
const TileSize = 256

// ScreenPoint is a cell address in pixel or tile index space
type ScreenPoint struct {
	X uint32
	Y uint32
}

// GeoToTile projects a lon/lat point into fractional tile space at the given zoom
// using the spherical Mercator slippy-map formula.
// Latitudes outside the Mercator range yield NaN or Inf, never a panic.
func GeoToTile(p orb.Point, zoom uint8) r2.Point {
	n := zoomScale(zoom)
	latRad := p.Lat() * math.Pi / 180
	return r2.Point{
		X: n * (p.Lon() + 180) / 360,
		Y: n * (1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2,
	}
}

// TileToGeo is the inverse of GeoToTile
func TileToGeo(t r2.Point, zoom uint8) orb.Point {
	n := zoomScale(zoom)
	lon := t.X/n*360 - 180
	lat := math.Atan(math.Sinh(math.Pi*(1-2*t.Y/n))) * 180 / math.Pi
	return orb.Point{lon, lat}
}

func zoomScale(zoom uint8) float64 {
	return float64(uint64(1) << zoom)
}

// TileRange is an inclusive range of integer tile indices
type TileRange struct {
	Min int
	Max int
}

// Len returns the number of tiles in the range
func (r TileRange) Len() int {
	if r.Max < r.Min {
		return 0
	}
	return r.Max - r.Min + 1
}

// Map is a fixed viewport: a center, a pixel size and a zoom level.
// Map is immutable and cheap to copy.
type Map struct {
	tileExtents r2.Rect // fractional tile space at zoom
	geoExtents  r2.Rect // X = longitude, Y = latitude
	width       uint32
	height      uint32
	zoom        uint8
}

// NewMap builds the viewport centred on (centerLon, centerLat)
func NewMap(centerLon, centerLat float64, width, height uint32, zoom uint8) Map {
	center := GeoToTile(orb.Point{centerLon, centerLat}, zoom)
	size := r2.Point{X: float64(width) / TileSize, Y: float64(height) / TileSize}
	tiles := r2.RectFromCenterSize(center, size)

	lo := TileToGeo(tiles.Lo(), zoom)
	hi := TileToGeo(tiles.Hi(), zoom)
	geo := r2.RectFromPoints(
		r2.Point{X: lo.Lon(), Y: lo.Lat()},
		r2.Point{X: hi.Lon(), Y: hi.Lat()},
	)

	return Map{
		tileExtents: tiles,
		geoExtents:  geo,
		width:       width,
		height:      height,
		zoom:        zoom,
	}
}

// PixelSize returns the viewport size in pixels
func (m Map) PixelSize() (uint32, uint32) {
	return m.width, m.height
}

// Zoom returns the viewport zoom level
func (m Map) Zoom() uint8 {
	return m.zoom
}

// TileExtents returns the viewport rectangle in fractional tile space
func (m Map) TileExtents() r2.Rect {
	return m.tileExtents
}

// GeoExtents returns the viewport rectangle in degrees (X = lon, Y = lat)
func (m Map) GeoExtents() r2.Rect {
	return m.geoExtents
}

// Contains reports whether p lies inside the closed geographic extents
func (m Map) Contains(p orb.Point) bool {
	return m.geoExtents.ContainsPoint(r2.Point{X: p.Lon(), Y: p.Lat()})
}

// PixelOffsets returns how many pixels of the first tile column and row lie
// above and left of the viewport.
func (m Map) PixelOffsets() (uint32, uint32) {
	lo := m.tileExtents.Lo()
	x := (lo.X - math.Floor(lo.X)) * TileSize
	y := (lo.Y - math.Floor(lo.Y)) * TileSize
	return uint32(x), uint32(y)
}

// TileOffsets returns the index of the top-left tile
func (m Map) TileOffsets() (int, int) {
	lo := m.tileExtents.Lo()
	return int(math.Floor(lo.X)), int(math.Floor(lo.Y))
}

// TileRangeX returns the tile columns touched by the viewport
func (m Map) TileRangeX() TileRange {
	return TileRange{
		Min: int(math.Floor(m.tileExtents.Lo().X)),
		Max: int(math.Floor(m.tileExtents.Hi().X)),
	}
}

// TileRangeY returns the tile rows touched by the viewport
func (m Map) TileRangeY() TileRange {
	return TileRange{
		Min: int(math.Floor(m.tileExtents.Lo().Y)),
		Max: int(math.Floor(m.tileExtents.Hi().Y)),
	}
}

// ToPixels maps p to a pixel of the viewport. It returns false when p is
// outside the geographic extents. A point on the far edge would land one past
// the last pixel and is reported as off-screen too.
func (m Map) ToPixels(p orb.Point) (ScreenPoint, bool) {
	if !m.Contains(p) {
		return ScreenPoint{}, false
	}
	offset := GeoToTile(p, m.zoom).Sub(m.tileExtents.Lo()).Mul(TileSize)
	if offset.X < 0 || offset.Y < 0 {
		return ScreenPoint{}, false
	}
	x, y := uint32(offset.X), uint32(offset.Y)
	if x >= m.width || y >= m.height {
		return ScreenPoint{}, false
	}
	return ScreenPoint{X: x, Y: y}, true
}
