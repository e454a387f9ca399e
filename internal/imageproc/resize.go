package imageproc

import (
	"context"
	"fmt"
	"image/color"
	"math"

	"github.com/UnendingLoop/ImageOps/internal/imgbuf"
	"github.com/UnendingLoop/ImageOps/internal/registry"
	"github.com/disintegration/imaging"
)

func scaledDim(d int, scale float64) float64 {
	return max(1, math.Round(float64(d)*scale))
}

// resizeWithin scales both sides uniformly: area averaging when shrinking,
// cubic when enlarging. Results above maxPixels are rejected before any
// allocation.
func resizeWithin(maxPixels int64) kernelFunc {
	return func(_ context.Context, buf *imgbuf.Buffer, params registry.Params) (*imgbuf.Buffer, error) {
		scale := params.Float("scale")
		fw, fh := scaledDim(buf.Width, scale), scaledDim(buf.Height, scale)
		if fw*fh > float64(maxPixels) {
			return nil, &registry.InvalidParameterError{
				Op:     "resize",
				Param:  "scale",
				Value:  scale,
				Reason: fmt.Sprintf("result of %.0fx%.0f exceeds %d pixels", fw, fh, maxPixels),
			}
		}

		w, h := int(fw), int(fh)
		if w == buf.Width && h == buf.Height {
			return buf.Clone(), nil
		}

		filter := imaging.CatmullRom
		if w*h < buf.Width*buf.Height {
			filter = imaging.Box
		}
		return fromRendered(imaging.Resize(buf.Image(), w, h, filter), buf)
	}
}

// rotate turns the image counter-clockwise; the canvas grows to fit and the
// uncovered corners are white.
func rotate(_ context.Context, buf *imgbuf.Buffer, params registry.Params) (*imgbuf.Buffer, error) {
	angle := math.Mod(params.Float("angle"), 360)
	if angle < 0 {
		angle += 360
	}
	if angle == 0 {
		return buf.Clone(), nil
	}
	return fromRendered(imaging.Rotate(buf.Image(), angle, color.White), buf)
}

func flipHorizontal(_ context.Context, buf *imgbuf.Buffer, _ registry.Params) (*imgbuf.Buffer, error) {
	return fromRendered(imaging.FlipH(buf.Image()), buf)
}

func flipVertical(_ context.Context, buf *imgbuf.Buffer, _ registry.Params) (*imgbuf.Buffer, error) {
	return fromRendered(imaging.FlipV(buf.Image()), buf)
}
