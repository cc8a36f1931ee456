package heatmap

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"github.com/dustin/go-heatmap/schemes"
)

// Palette maps a normalized heat in [0, 1] to an opaque color
type Palette interface {
	At(heat float64) color.NRGBA
}

// hsv is a color in hue (degrees), saturation and value, all but hue in [0, 1]
type hsv struct {
	H, S, V float64
}

func (c hsv) nrgba() color.NRGBA {
	h := math.Mod(c.H, 360)
	if h < 0 {
		h += 360
	}
	chroma := c.V * c.S
	x := chroma * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := c.V - chroma

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = chroma, x, 0
	case h < 120:
		r, g, b = x, chroma, 0
	case h < 180:
		r, g, b = 0, chroma, x
	case h < 240:
		r, g, b = 0, x, chroma
	case h < 300:
		r, g, b = x, 0, chroma
	default:
		r, g, b = chroma, 0, x
	}
	return color.NRGBA{
		R: channel(r + m),
		G: channel(g + m),
		B: channel(b + m),
		A: 0xff,
	}
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// HSVGradient interpolates linearly between two HSV colors
type HSVGradient struct {
	from, to hsv
}

// At implements Palette
func (g HSVGradient) At(heat float64) color.NRGBA {
	t := math.Max(0, math.Min(1, heat))
	return hsv{
		H: g.from.H + (g.to.H-g.from.H)*t,
		S: g.from.S + (g.to.S-g.from.S)*t,
		V: g.from.V + (g.to.V-g.from.V)*t,
	}.nrgba()
}

// SchemePalette picks colors from a discrete color scheme
type SchemePalette struct {
	colors []color.NRGBA
}

// NewSchemePalette converts a scheme to a palette
func NewSchemePalette(scheme []color.Color) SchemePalette {
	colors := make([]color.NRGBA, len(scheme))
	for i, c := range scheme {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		n.A = 0xff
		colors[i] = n
	}
	return SchemePalette{colors: colors}
}

// At implements Palette
func (p SchemePalette) At(heat float64) color.NRGBA {
	if len(p.colors) == 0 {
		return color.NRGBA{A: 0xff}
	}
	t := math.Max(0, math.Min(1, heat))
	return p.colors[int(t*float64(len(p.colors)-1))]
}

// DefaultPalette is the dark-to-bright red ramp
func DefaultPalette() Palette {
	return HSVGradient{
		from: hsv{H: 0, S: 0.75, V: 0.45},
		to:   hsv{H: 0, S: 0.75, V: 1.00},
	}
}

var schemePalettes = map[string][]color.Color{
	"classic": schemes.Classic,
	"fire":    schemes.Fire,
	"omg":     schemes.OMG,
	"pbj":     schemes.PBJ,
}

// PaletteNames lists the names accepted by PaletteByName
func PaletteNames() []string {
	names := []string{"red"}
	for name := range schemePalettes {
		names = append(names, name)
	}
	sort.Strings(names[1:])
	return names
}

// PaletteByName resolves a configured palette name
func PaletteByName(name string) (Palette, error) {
	if name == "" || name == "red" {
		return DefaultPalette(), nil
	}
	scheme, ok := schemePalettes[name]
	if !ok {
		return nil, fmt.Errorf("unknown palette %q", name)
	}
	return NewSchemePalette(scheme), nil
}
