package imageproc

import (
	"context"
	"math"

	"github.com/UnendingLoop/ImageOps/internal/imgbuf"
	"github.com/UnendingLoop/ImageOps/internal/registry"
	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/floats"
)

const (
	cannyLow  = 100
	cannyHigh = 200
)

var (
	laplacianKernel = [9]float64{
		0, 1, 0,
		1, -4, 1,
		0, 1, 0,
	}
	tan22 = math.Tan(math.Pi / 8)
	tan67 = math.Tan(3 * math.Pi / 8)
)

// sobel returns the horizontal and vertical 3x3 Sobel responses with replicated borders.
func sobel(luma []uint8, w, h int) (gx, gy []float64) {
	at := func(x, y int) float64 {
		x = max(0, min(w-1, x))
		y = max(0, min(h-1, y))
		return float64(luma[y*w+x])
	}

	gx = make([]float64, w*h)
	gy = make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tl, t, tr := at(x-1, y-1), at(x, y-1), at(x+1, y-1)
			l, r := at(x-1, y), at(x+1, y)
			bl, b, br := at(x-1, y+1), at(x, y+1), at(x+1, y+1)

			gx[y*w+x] = (tr + 2*r + br) - (tl + 2*l + bl)
			gy[y*w+x] = (bl + 2*b + br) - (tl + 2*t + tr)
		}
	}
	return gx, gy
}

func magnitude(gx, gy []float64) []float64 {
	mag := make([]float64, len(gx))
	for i := range gx {
		mag[i] = math.Hypot(gx[i], gy[i])
	}
	return mag
}

func edgeSobel(_ context.Context, buf *imgbuf.Buffer, _ registry.Params) (*imgbuf.Buffer, error) {
	mag := magnitude(sobel(buf.Luma(), buf.Width, buf.Height))

	out := make([]uint8, len(mag))
	peak := floats.Max(mag)
	if peak > 0 {
		for i, m := range mag {
			out[i] = clampByte(m / peak * 255)
		}
	}
	return expandLuma(out, buf), nil
}

func edgeLaplacian(_ context.Context, buf *imgbuf.Buffer, _ registry.Params) (*imgbuf.Buffer, error) {
	res := imaging.Convolve3x3(lumaImage(buf.Luma(), buf.Width, buf.Height), laplacianKernel, &imaging.ConvolveOptions{Abs: true})
	return expandLuma(firstSamples(res.Pix, res.Stride, res.Rect), buf), nil
}

// edgeCanny: L2 Sobel gradient, non-maximum suppression along the gradient
// direction, then hysteresis with 8-connected growth from strong pixels.
func edgeCanny(_ context.Context, buf *imgbuf.Buffer, _ registry.Params) (*imgbuf.Buffer, error) {
	w, h := buf.Width, buf.Height
	gx, gy := sobel(buf.Luma(), w, h)
	mag := magnitude(gx, gy)

	at := func(x, y int) float64 {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	// 0 - подавлен, 1 - слабый кандидат, 2 - сильный
	state := make([]uint8, w*h)
	stack := make([]int, 0, w*h/8+1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if m <= cannyLow {
				continue
			}

			ax, ay := math.Abs(gx[i]), math.Abs(gy[i])
			var n1, n2 float64
			switch {
			case ay <= ax*tan22:
				n1, n2 = at(x-1, y), at(x+1, y)
			case ay >= ax*tan67:
				n1, n2 = at(x, y-1), at(x, y+1)
			case gx[i]*gy[i] > 0:
				n1, n2 = at(x-1, y-1), at(x+1, y+1)
			default:
				n1, n2 = at(x+1, y-1), at(x-1, y+1)
			}
			if m <= n1 || m < n2 {
				continue
			}

			if m > cannyHigh {
				state[i] = 2
				stack = append(stack, i)
			} else {
				state[i] = 1
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == 1 {
					state[j] = 2
					stack = append(stack, j)
				}
			}
		}
	}

	out := make([]uint8, w*h)
	for i, s := range state {
		if s == 2 {
			out[i] = 255
		}
	}
	return expandLuma(out, buf), nil
}
