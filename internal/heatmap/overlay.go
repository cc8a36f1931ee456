package heatmap

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// DateLayout is the format of the date line
const DateLayout = "January 02, 2006"

const (
	overlayMarginX  = 20
	overlayFraction = 15 // text height is image height / overlayFraction
)

// Overlay draws the activity title and date in the bottom-left corner.
// The font is parsed once; faces are cached per text height.
type Overlay struct {
	font  *opentype.Font
	color color.Color

	mu    sync.Mutex
	faces map[int]font.Face
}

// NewOverlay parses the embedded Go Regular font
func NewOverlay() (*Overlay, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse overlay font: %w", err)
	}
	return &Overlay{
		font:  f,
		color: color.White,
		faces: make(map[int]font.Face),
	}, nil
}

func (o *Overlay) face(size int) (font.Face, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if f, ok := o.faces[size]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(o.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	o.faces[size] = f
	return f, nil
}

// Lines returns the text lines drawn for an activity, top line first
func (o *Overlay) Lines(name string, date time.Time, title, showDate bool) []string {
	var lines []string
	if title {
		lines = append(lines, name)
	}
	if showDate {
		lines = append(lines, date.Format(DateLayout))
	}
	return lines
}

// Draw renders lines bottom-up from the lower-left corner of img, the last
// line at the bottom.
func (o *Overlay) Draw(img *image.NRGBA, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	height := img.Bounds().Dy()
	size := height / overlayFraction
	if size < 1 {
		return nil
	}
	face, err := o.face(size)
	if err != nil {
		return fmt.Errorf("failed to create overlay face: %w", err)
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(o.color),
		Face: face,
	}
	ascent := face.Metrics().Ascent.Ceil()
	top := img.Bounds().Min.Y + height - size
	for i := len(lines) - 1; i >= 0; i-- {
		d.Dot = fixed.P(img.Bounds().Min.X+overlayMarginX, top+ascent)
		d.DrawString(lines[i])
		top -= size
	}
	return nil
}
