// Package imgbuf provides the canonical in-memory image shared by the codec and every kernel:
// a contiguous 8-bit pixel grid in RGB order (RGBA when 4 channels, luma when 1).
package imgbuf

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

type Channels int

const (
	Gray Channels = 1
	RGB  Channels = 3
	RGBA Channels = 4
)

func (c Channels) Valid() bool {
	switch c {
	case Gray, RGB, RGBA:
		return true
	default:
		return false
	}
}

func (c Channels) String() string {
	switch c {
	case Gray:
		return "gray"
	case RGB:
		return "rgb"
	case RGBA:
		return "rgba"
	default:
		return fmt.Sprintf("channels(%d)", int(c))
	}
}

var ErrInvalidBuffer = errors.New("invalid image buffer")

// Buffer is a decoded image. len(Pix) == Width*Height*Channels at all times.
type Buffer struct {
	Width    int
	Height   int
	Channels Channels
	Pix      []uint8
}

// New allocates a zeroed buffer.
func New(width, height int, ch Channels) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidBuffer, width, height)
	}
	if !ch.Valid() {
		return nil, fmt.Errorf("%w: unsupported channel count %d", ErrInvalidBuffer, int(ch))
	}
	return &Buffer{
		Width:    width,
		Height:   height,
		Channels: ch,
		Pix:      make([]uint8, width*height*int(ch)),
	}, nil
}

func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidBuffer)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidBuffer, b.Width, b.Height)
	}
	if !b.Channels.Valid() {
		return fmt.Errorf("%w: unsupported channel count %d", ErrInvalidBuffer, int(b.Channels))
	}
	if len(b.Pix) != b.Width*b.Height*int(b.Channels) {
		return fmt.Errorf("%w: pixel data has %d bytes, want %d", ErrInvalidBuffer, len(b.Pix), b.Width*b.Height*int(b.Channels))
	}
	return nil
}

func (b *Buffer) Pixels() int {
	return b.Width * b.Height
}

// Offset returns the index of the first sample of pixel (x, y).
func (b *Buffer) Offset(x, y int) int {
	return (y*b.Width + x) * int(b.Channels)
}

func (b *Buffer) Clone() *Buffer {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer{Width: b.Width, Height: b.Height, Channels: b.Channels, Pix: pix}
}

func (b *Buffer) Equal(o *Buffer) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.Width != o.Width || b.Height != o.Height || b.Channels != o.Channels || len(b.Pix) != len(o.Pix) {
		return false
	}
	for i := range b.Pix {
		if b.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// LumaOf converts one RGB sample triple with the fixed-point BT.601 weights
// (0.299, 0.587, 0.114) scaled by 2^14.
func LumaOf(r, g, b uint8) uint8 {
	return uint8((uint32(r)*4899 + uint32(g)*9617 + uint32(b)*1868 + 8192) >> 14)
}

// Luma returns the single-channel grayscale derivative of the buffer.
// Alpha is ignored.
func (b *Buffer) Luma() []uint8 {
	n := b.Pixels()
	out := make([]uint8, n)
	if b.Channels == Gray {
		copy(out, b.Pix)
		return out
	}
	ch := int(b.Channels)
	for i, j := 0, 0; i < n; i, j = i+1, j+ch {
		out[i] = LumaOf(b.Pix[j], b.Pix[j+1], b.Pix[j+2])
	}
	return out
}

// FromLuma re-expands a single-channel plane into a buffer with ch channels.
// The alpha channel, if any, is opaque.
func FromLuma(luma []uint8, width, height int, ch Channels) *Buffer {
	out := &Buffer{Width: width, Height: height, Channels: ch, Pix: make([]uint8, width*height*int(ch))}
	if ch == Gray {
		copy(out.Pix, luma)
		return out
	}
	c := int(ch)
	for i, j := 0, 0; i < len(luma); i, j = i+1, j+c {
		v := luma[i]
		out.Pix[j], out.Pix[j+1], out.Pix[j+2] = v, v, v
		if ch == RGBA {
			out.Pix[j+3] = 0xff
		}
	}
	return out
}

// ToRGB returns a 3-channel copy: gray is replicated, alpha is dropped.
func (b *Buffer) ToRGB() *Buffer {
	if b.Channels == RGB {
		return b.Clone()
	}
	if b.Channels == Gray {
		return FromLuma(b.Pix, b.Width, b.Height, RGB)
	}
	out := &Buffer{Width: b.Width, Height: b.Height, Channels: RGB, Pix: make([]uint8, b.Pixels()*3)}
	for i, j := 0, 0; j < len(b.Pix); i, j = i+3, j+4 {
		out.Pix[i], out.Pix[i+1], out.Pix[i+2] = b.Pix[j], b.Pix[j+1], b.Pix[j+2]
	}
	return out
}

// Image exposes the buffer as an image.Image sharing no memory with it:
// *image.Gray for one channel, *image.NRGBA otherwise.
func (b *Buffer) Image() image.Image {
	rect := image.Rect(0, 0, b.Width, b.Height)
	if b.Channels == Gray {
		img := image.NewGray(rect)
		copy(img.Pix, b.Pix)
		return img
	}

	img := image.NewNRGBA(rect)
	ch := int(b.Channels)
	for i, j := 0, 0; j < len(b.Pix); i, j = i+4, j+ch {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2] = b.Pix[j], b.Pix[j+1], b.Pix[j+2]
		if b.Channels == RGBA {
			img.Pix[i+3] = b.Pix[j+3]
		} else {
			img.Pix[i+3] = 0xff
		}
	}
	return img
}

// FromImage converts any image into a buffer with ch channels.
// For Gray and RGB targets translucent pixels are flattened onto opaque white.
func FromImage(img image.Image, ch Channels) (*Buffer, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidBuffer)
	}
	bounds := img.Bounds()
	out, err := New(bounds.Dx(), bounds.Dy(), ch)
	if err != nil {
		return nil, err
	}

	// быстрый путь для типов, которые возвращают imaging и bild
	switch src := img.(type) {
	case *image.Gray:
		if ch == Gray {
			for y := 0; y < out.Height; y++ {
				row := src.Pix[(y+bounds.Min.Y-src.Rect.Min.Y)*src.Stride+(bounds.Min.X-src.Rect.Min.X):]
				copy(out.Pix[y*out.Width:(y+1)*out.Width], row[:out.Width])
			}
			return out, nil
		}
	case *image.NRGBA:
		fillFromNRGBA(out, src.Pix, src.Stride, src.PixOffset(bounds.Min.X, bounds.Min.Y))
		return out, nil
	}

	c := int(ch)
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			px := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			putNRGBA(out, (y*out.Width+x)*c, px.R, px.G, px.B, px.A)
		}
	}
	return out, nil
}

func fillFromNRGBA(out *Buffer, pix []uint8, stride, start int) {
	c := int(out.Channels)
	for y := 0; y < out.Height; y++ {
		row := start + y*stride
		for x := 0; x < out.Width; x++ {
			s := row + x*4
			putNRGBA(out, (y*out.Width+x)*c, pix[s], pix[s+1], pix[s+2], pix[s+3])
		}
	}
}

func putNRGBA(out *Buffer, off int, r, g, b, a uint8) {
	if out.Channels == RGBA {
		out.Pix[off], out.Pix[off+1], out.Pix[off+2], out.Pix[off+3] = r, g, b, a
		return
	}
	if a != 0xff {
		r, g, b = flatten(r, a), flatten(g, a), flatten(b, a)
	}
	if out.Channels == Gray {
		out.Pix[off] = LumaOf(r, g, b)
		return
	}
	out.Pix[off], out.Pix[off+1], out.Pix[off+2] = r, g, b
}

// flatten composes a straight-alpha sample over white.
func flatten(v, a uint8) uint8 {
	return uint8((uint32(v)*uint32(a) + 255*(255-uint32(a)) + 127) / 255)
}
