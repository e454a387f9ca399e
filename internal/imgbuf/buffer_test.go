package imgbuf

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		w, h    int
		ch      Channels
		wantErr bool
	}{
		{name: "rgb", w: 4, h: 3, ch: RGB},
		{name: "gray 1x1", w: 1, h: 1, ch: Gray},
		{name: "rgba column", w: 1, h: 7, ch: RGBA},
		{name: "zero width", w: 0, h: 3, ch: RGB, wantErr: true},
		{name: "two channels", w: 2, h: 2, ch: Channels(2), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.w, tt.h, tt.ch)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidBuffer)
				return
			}
			require.NoError(t, err)
			require.Len(t, b.Pix, tt.w*tt.h*int(tt.ch))
			require.NoError(t, b.Validate())
		})
	}
}

func TestValidate_LengthMismatch(t *testing.T) {
	b := &Buffer{Width: 2, Height: 2, Channels: RGB, Pix: make([]uint8, 11)}
	require.ErrorIs(t, b.Validate(), ErrInvalidBuffer)
}

func TestLuma(t *testing.T) {
	b := &Buffer{Width: 3, Height: 1, Channels: RGB, Pix: []uint8{
		255, 255, 255,
		0, 0, 0,
		255, 0, 0,
	}}

	luma := b.Luma()
	require.Equal(t, []uint8{255, 0, 76}, luma)
}

func TestFromLuma_Expands(t *testing.T) {
	b := FromLuma([]uint8{10, 20}, 2, 1, RGBA)
	require.Equal(t, []uint8{10, 10, 10, 255, 20, 20, 20, 255}, b.Pix)
	require.NoError(t, b.Validate())
}

func TestImageRoundTrip(t *testing.T) {
	rgb := &Buffer{Width: 2, Height: 2, Channels: RGB, Pix: []uint8{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	}}
	back, err := FromImage(rgb.Image(), RGB)
	require.NoError(t, err)
	require.True(t, rgb.Equal(back))

	gray := &Buffer{Width: 3, Height: 1, Channels: Gray, Pix: []uint8{0, 128, 255}}
	back, err = FromImage(gray.Image(), Gray)
	require.NoError(t, err)
	require.True(t, gray.Equal(back))
}

func TestFromImage_FlattensAlphaOnWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 0})
	img.SetNRGBA(1, 0, color.NRGBA{R: 200, G: 100, B: 0, A: 255})

	b, err := FromImage(img, RGB)
	require.NoError(t, err)
	require.Equal(t, []uint8{255, 255, 255, 200, 100, 0}, b.Pix)
}

func TestFromImage_SubImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	sub := img.SubImage(image.Rect(1, 1, 3, 3))

	b, err := FromImage(sub, Gray)
	require.NoError(t, err)
	require.Equal(t, []uint8{5, 6, 9, 10}, b.Pix)
}

func TestToRGB(t *testing.T) {
	rgba := &Buffer{Width: 1, Height: 1, Channels: RGBA, Pix: []uint8{9, 8, 7, 6}}
	require.Equal(t, []uint8{9, 8, 7}, rgba.ToRGB().Pix)

	gray := &Buffer{Width: 1, Height: 1, Channels: Gray, Pix: []uint8{42}}
	require.Equal(t, []uint8{42, 42, 42}, gray.ToRGB().Pix)
}
