package imageproc

import (
	"context"
	"fmt"
	"math"

	"github.com/UnendingLoop/ImageOps/internal/imgbuf"
	"github.com/UnendingLoop/ImageOps/internal/registry"
	"github.com/lucasb-eyer/go-colorful"
)

func grayscale(_ context.Context, buf *imgbuf.Buffer, _ registry.Params) (*imgbuf.Buffer, error) {
	if buf.Channels == imgbuf.Gray {
		return buf.Clone(), nil
	}
	return expandLuma(buf.Luma(), buf), nil
}

// rgbToHSV stores hue as degrees/2 so it fits a byte; S and V are scaled to 0..255.
func rgbToHSV(_ context.Context, buf *imgbuf.Buffer, _ registry.Params) (*imgbuf.Buffer, error) {
	if buf.Channels != imgbuf.RGB {
		return nil, fmt.Errorf("hsv conversion needs a 3-channel image, got %s", buf.Channels)
	}

	out := buf.Clone()
	for i := 0; i < len(out.Pix); i += 3 {
		c := colorful.Color{
			R: float64(buf.Pix[i]) / 255,
			G: float64(buf.Pix[i+1]) / 255,
			B: float64(buf.Pix[i+2]) / 255,
		}
		h, s, v := c.Hsv()
		if math.IsNaN(h) {
			h = 0
		}
		hue := clampByte(h / 2)
		if hue >= 180 {
			hue = 0
		}
		out.Pix[i] = hue
		out.Pix[i+1] = clampByte(s * 255)
		out.Pix[i+2] = clampByte(v * 255)
	}
	return out, nil
}

// channelOnly keeps one of R, G, B and zeroes the others. Gray input is expanded to RGB first.
func channelOnly(keep int) kernelFunc {
	return func(_ context.Context, buf *imgbuf.Buffer, _ registry.Params) (*imgbuf.Buffer, error) {
		src := buf
		if buf.Channels == imgbuf.Gray {
			src = buf.ToRGB()
		}

		out := src.Clone()
		ch := int(out.Channels)
		for i := 0; i < len(out.Pix); i += ch {
			for c := 0; c < 3; c++ {
				if c != keep {
					out.Pix[i+c] = 0
				}
			}
		}
		return out, nil
	}
}
