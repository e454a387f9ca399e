package imageproc

import (
	"context"
	"image"
	"math"

	"github.com/UnendingLoop/ImageOps/internal/imgbuf"
	"github.com/UnendingLoop/ImageOps/internal/registry"
	"github.com/anthonynsimon/bild/convolution"
)

var sharpenMatrix = []float64{
	-1, -1, -1,
	-1, 9, -1,
	-1, -1, -1,
}

// gaussianSigma derives sigma from the kernel size the same way OpenCV does for sigma=0.
func gaussianSigma(size int) float64 {
	return 0.3*(float64(size-1)*0.5-1) + 0.8
}

// gaussianWeights returns normalized 1D Gaussian weights of the given size.
func gaussianWeights(size int, sigma float64) []float64 {
	weights := make([]float64, size)
	center := float64(size-1) / 2
	var sum float64
	for i := range weights {
		d := float64(i) - center
		weights[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// gaussianConvolve blurs img with a size x size Gaussian as a horizontal
// pass followed by a vertical one.
func gaussianConvolve(img image.Image, size int) *image.RGBA {
	weights := gaussianWeights(size, gaussianSigma(size))

	horizontal := convolution.NewKernel(size, 1)
	copy(horizontal.Matrix, weights)
	vertical := convolution.NewKernel(1, size)
	copy(vertical.Matrix, weights)

	opts := &convolution.Options{KeepAlpha: true}
	return convolution.Convolve(convolution.Convolve(img, horizontal, opts), vertical, opts)
}

func gaussianBlur(_ context.Context, buf *imgbuf.Buffer, params registry.Params) (*imgbuf.Buffer, error) {
	size := params.Int("intensity")
	if size <= 1 {
		return buf.Clone(), nil
	}
	return fromRendered(gaussianConvolve(buf.Image(), size), buf)
}

func medianBlur(_ context.Context, buf *imgbuf.Buffer, params registry.Params) (*imgbuf.Buffer, error) {
	size := params.Int("intensity")
	if size <= 1 {
		return buf.Clone(), nil
	}

	out := buf.Clone()
	colors := min(int(buf.Channels), 3)
	for c := 0; c < colors; c++ {
		medianPlane(buf, out, c, size/2)
	}
	return out, nil
}

// medianPlane writes the per-channel median of every (2r+1)x(2r+1) window of
// channel c into dst. Borders replicate the edge samples. The window
// histogram slides along each row and the running median is shifted instead
// of recounted.
func medianPlane(src, dst *imgbuf.Buffer, c, r int) {
	w, h, ch := src.Width, src.Height, int(src.Channels)
	rank := (2*r + 1) * (2*r + 1) / 2
	sample := func(x, y int) uint8 {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return src.Pix[(y*w+x)*ch+c]
	}

	var hist [256]int
	for y := 0; y < h; y++ {
		hist = [256]int{}
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				hist[sample(dx, y+dy)]++
			}
		}

		// lt - количество значений окна строго меньше med
		med, lt := 0, 0
		for x := 0; x < w; x++ {
			if x > 0 {
				for dy := -r; dy <= r; dy++ {
					old := sample(x-r-1, y+dy)
					hist[old]--
					if int(old) < med {
						lt--
					}
					v := sample(x+r, y+dy)
					hist[v]++
					if int(v) < med {
						lt++
					}
				}
			}

			for lt > rank {
				med--
				lt -= hist[med]
			}
			for lt+hist[med] <= rank {
				lt += hist[med]
				med++
			}
			dst.Pix[(y*w+x)*ch+c] = uint8(med)
		}
	}
}

func sharpen(_ context.Context, buf *imgbuf.Buffer, _ registry.Params) (*imgbuf.Buffer, error) {
	k := convolution.NewKernel(3, 3)
	copy(k.Matrix, sharpenMatrix)
	return fromRendered(convolution.Convolve(buf.Image(), k, &convolution.Options{KeepAlpha: true}), buf)
}
