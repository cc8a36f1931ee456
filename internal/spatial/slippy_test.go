package spatial

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

func TestGeoToTileRoundTrip(t *testing.T) {
	points := []orb.Point{
		{0, 0},
		{13.404954, 52.520008},
		{-122.419416, 37.774929},
		{151.209296, -33.868820},
		{-179.9, 85.0},
		{179.9, -85.0},
	}

	for zoom := uint8(0); zoom <= 20; zoom++ {
		for _, p := range points {
			got := TileToGeo(GeoToTile(p, zoom), zoom)
			if math.Abs(got.Lon()-p.Lon()) > 1e-9 || math.Abs(got.Lat()-p.Lat()) > 1e-9 {
				t.Errorf("zoom %d: round trip of %v gave %v", zoom, p, got)
			}
		}
	}
}

func TestGeoToTileMatchesMaptile(t *testing.T) {
	p := orb.Point{8.5417, 47.3769}
	for _, zoom := range []uint8{1, 5, 10, 14, 17} {
		tile := GeoToTile(p, zoom)
		want := maptile.At(p, maptile.Zoom(zoom))
		if uint32(math.Floor(tile.X)) != want.X || uint32(math.Floor(tile.Y)) != want.Y {
			t.Errorf("zoom %d: got tile (%f, %f), maptile says (%d, %d)", zoom, tile.X, tile.Y, want.X, want.Y)
		}
	}
}

func TestGeoToTileInvalidLatitudeDoesNotPanic(t *testing.T) {
	for _, lat := range []float64{90, -90, 95, math.NaN(), math.Inf(1)} {
		_ = GeoToTile(orb.Point{0, lat}, 10)
	}
}

func TestNewMapExtents(t *testing.T) {
	m := NewMap(13.4, 52.5, 1920, 1080, 10)

	size := m.TileExtents().Size()
	if math.Abs(size.X-1920.0/TileSize) > 1e-12 || math.Abs(size.Y-1080.0/TileSize) > 1e-12 {
		t.Errorf("tile extents size = %v", size)
	}

	center := GeoToTile(orb.Point{13.4, 52.5}, 10)
	if c := m.TileExtents().Center(); math.Abs(c.X-center.X) > 1e-9 || math.Abs(c.Y-center.Y) > 1e-9 {
		t.Errorf("tile extents centred at %v, want %v", c, center)
	}

	geo := m.GeoExtents()
	if geo.Lo().X >= geo.Hi().X || geo.Lo().Y >= geo.Hi().Y {
		t.Errorf("geo extents not normalised: %v", geo)
	}
}

func TestToPixelsCenter(t *testing.T) {
	tests := []struct {
		name          string
		lon, lat      float64
		width, height uint32
		zoom          uint8
	}{
		{"berlin", 13.4, 52.5, 1920, 1080, 10},
		{"equator", 0, 0, 800, 600, 3},
		{"south", 151.2, -33.9, 1000, 1000, 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMap(tt.lon, tt.lat, tt.width, tt.height, tt.zoom)
			px, ok := m.ToPixels(orb.Point{tt.lon, tt.lat})
			if !ok {
				t.Fatal("center should be on screen")
			}
			dx := math.Abs(float64(px.X) - float64(tt.width)/2)
			dy := math.Abs(float64(px.Y) - float64(tt.height)/2)
			if dx > TileSize/2 || dy > TileSize/2 {
				t.Errorf("center mapped to %v, image center is (%d, %d)", px, tt.width/2, tt.height/2)
			}
		})
	}
}

func TestToPixelsOutside(t *testing.T) {
	m := NewMap(13.4, 52.5, 512, 512, 12)
	geo := m.GeoExtents()

	outside := []orb.Point{
		{geo.Lo().X - 0.01, 52.5},
		{geo.Hi().X + 0.01, 52.5},
		{13.4, geo.Lo().Y - 0.01},
		{13.4, geo.Hi().Y + 0.01},
	}
	for _, p := range outside {
		if px, ok := m.ToPixels(p); ok {
			t.Errorf("%v should be off screen, got %v", p, px)
		}
	}

	if _, ok := m.ToPixels(orb.Point{geo.Lo().X, geo.Hi().Y}); !ok {
		t.Error("top-left corner should be on screen")
	}
}

func TestToPixelsTruncates(t *testing.T) {
	m := NewMap(0, 0, 512, 512, 1)
	// the map covers exactly tiles (0,0)..(2,2) at zoom 1, one pixel per 1/256 tile
	p := TileToGeo(GeoToTile(orb.Point{0, 0}, 1).Add(r2.Point{X: 0.7 / TileSize, Y: 0.2 / TileSize}), 1)
	px, ok := m.ToPixels(p)
	if !ok {
		t.Fatal("point should be on screen")
	}
	if px.X != 256 || px.Y != 256 {
		t.Errorf("got %v, want (256, 256)", px)
	}
}

func TestTileRanges(t *testing.T) {
	m := NewMap(0, 0, 512, 512, 2)
	// center tile (2,2), extents (1,1)..(3,3)
	if r := m.TileRangeX(); r.Min != 1 || r.Max != 3 || r.Len() != 3 {
		t.Errorf("TileRangeX = %+v", r)
	}
	if r := m.TileRangeY(); r.Min != 1 || r.Max != 3 {
		t.Errorf("TileRangeY = %+v", r)
	}
	if x, y := m.PixelOffsets(); x != 0 || y != 0 {
		t.Errorf("PixelOffsets = (%d, %d)", x, y)
	}

	m = NewMap(0, 0, 300, 300, 2)
	x, y := m.PixelOffsets()
	if x != 106 || y != 106 {
		t.Errorf("PixelOffsets = (%d, %d), want (106, 106)", x, y)
	}
	if tx, ty := m.TileOffsets(); tx != 1 || ty != 1 {
		t.Errorf("TileOffsets = (%d, %d)", tx, ty)
	}
}
