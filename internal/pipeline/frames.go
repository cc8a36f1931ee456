package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/mattn/go-isatty"
)

// ErrTerminalStream is returned when frames would be written to a terminal
var ErrTerminalStream = errors.New("refusing to write frame data to a terminal; pipe the output to a file or program")

// FrameWriter writes a sequence of images to one stream
type FrameWriter interface {
	WriteFrame(img *image.NRGBA) error
	Frames() int
}

// NewFrameWriter returns a writer for format "png" or "ppm"
func NewFrameWriter(w io.Writer, format string) (FrameWriter, error) {
	bw := bufio.NewWriterSize(w, 1<<20)
	switch format {
	case "png":
		return &pngFrames{w: bw, enc: &png.Encoder{CompressionLevel: png.BestSpeed}}, nil
	case "ppm":
		return &ppmFrames{w: bw}, nil
	}
	return nil, fmt.Errorf("unknown frame format %q", format)
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type pngFrames struct {
	w   *bufio.Writer
	enc *png.Encoder
	n   int
}

func (p *pngFrames) WriteFrame(img *image.NRGBA) error {
	if err := p.enc.Encode(p.w, img); err != nil {
		return fmt.Errorf("failed to encode frame %d: %w", p.n, err)
	}
	if err := p.w.Flush(); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", p.n, err)
	}
	p.n++
	return nil
}

func (p *pngFrames) Frames() int { return p.n }

// ppmFrames writes binary P6 pixmaps. Alpha is flattened onto black.
type ppmFrames struct {
	w   *bufio.Writer
	row []byte
	n   int
}

func (p *ppmFrames) WriteFrame(img *image.NRGBA) error {
	if err := EncodePPM(p.w, img, &p.row); err != nil {
		return fmt.Errorf("failed to encode frame %d: %w", p.n, err)
	}
	if err := p.w.Flush(); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", p.n, err)
	}
	p.n++
	return nil
}

func (p *ppmFrames) Frames() int { return p.n }

// EncodePPM writes img as a binary PPM. buf is reused between calls when
// non-nil.
func EncodePPM(w io.Writer, img *image.NRGBA, buf *[]byte) error {
	b := img.Bounds()
	if _, err := fmt.Fprintf(w, "P6\n%d %d\n255\n", b.Dx(), b.Dy()); err != nil {
		return err
	}
	var row []byte
	if buf != nil {
		row = *buf
	}
	if cap(row) < 3*b.Dx() {
		row = make([]byte, 3*b.Dx())
	}
	row = row[:3*b.Dx()]
	for y := b.Min.Y; y < b.Max.Y; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			a := uint32(src[4*x+3])
			row[3*x] = uint8(uint32(src[4*x]) * a / 255)
			row[3*x+1] = uint8(uint32(src[4*x+1]) * a / 255)
			row[3*x+2] = uint8(uint32(src[4*x+2]) * a / 255)
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	if buf != nil {
		*buf = row
	}
	return nil
}
