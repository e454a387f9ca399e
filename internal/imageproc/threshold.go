package imageproc

import (
	"context"
	"image"

	"github.com/UnendingLoop/ImageOps/internal/imgbuf"
	"github.com/UnendingLoop/ImageOps/internal/registry"
)

const (
	adaptiveBlockSize = 11
	adaptiveC         = 2
)

func thresholdBinary(_ context.Context, buf *imgbuf.Buffer, params registry.Params) (*imgbuf.Buffer, error) {
	return expandLuma(binarize(buf.Luma(), params.Int("threshold")), buf), nil
}

// thresholdAdaptive compares every pixel with the Gaussian-weighted mean of its
// 11x11 neighbourhood minus a constant.
func thresholdAdaptive(_ context.Context, buf *imgbuf.Buffer, _ registry.Params) (*imgbuf.Buffer, error) {
	luma := buf.Luma()
	blurred := gaussianConvolve(lumaImage(luma, buf.Width, buf.Height), adaptiveBlockSize)
	mean := firstSamples(blurred.Pix, blurred.Stride, blurred.Rect)

	out := make([]uint8, len(luma))
	for i, v := range luma {
		if int(v) > int(mean[i])-adaptiveC {
			out[i] = 255
		}
	}
	return expandLuma(out, buf), nil
}

func thresholdOtsu(_ context.Context, buf *imgbuf.Buffer, _ registry.Params) (*imgbuf.Buffer, error) {
	luma := buf.Luma()
	return expandLuma(binarize(luma, otsuLevel(luma)), buf), nil
}

func binarize(luma []uint8, level int) []uint8 {
	out := make([]uint8, len(luma))
	for i, v := range luma {
		if int(v) > level {
			out[i] = 255
		}
	}
	return out
}

// otsuLevel returns the level maximizing the between-class variance.
func otsuLevel(luma []uint8) int {
	var hist [256]float64
	for _, v := range luma {
		hist[v]++
	}
	total := float64(len(luma))

	var sum float64
	for i, h := range hist {
		sum += float64(i) * h
	}

	var (
		sumB, wB float64
		best     float64
		level    int
	)
	for i := 0; i < 256; i++ {
		wB += hist[i]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * hist[i]
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			level = i
		}
	}
	return level
}

func lumaImage(luma []uint8, width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	copy(img.Pix, luma)
	return img
}

// firstSamples reads the red sample of every pixel of a 4-byte-per-pixel image
// rendered from a gray source, where R == G == B.
func firstSamples(pix []uint8, stride int, rect image.Rectangle) []uint8 {
	out := make([]uint8, 0, rect.Dx()*rect.Dy())
	for y := 0; y < rect.Dy(); y++ {
		row := pix[y*stride:]
		for x := 0; x < rect.Dx(); x++ {
			out = append(out, row[x*4])
		}
	}
	return out
}
