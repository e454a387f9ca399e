package imageproc

import (
	"context"
	"image/color"
	"math"

	"github.com/UnendingLoop/ImageOps/internal/imgbuf"
	"github.com/UnendingLoop/ImageOps/internal/registry"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	claheClipLimit = 2.0
	claheGrid      = 8
)

// equalizeLUT builds the equalization table for a plane: the darkest present
// level maps to 0 and the cumulative distribution is spread over 0..255.
func equalizeLUT(plane []uint8) [256]uint8 {
	var hist [256]int
	for _, v := range plane {
		hist[v]++
	}

	var lut [256]uint8
	first := 0
	for first < 255 && hist[first] == 0 {
		first++
	}
	total := len(plane)
	if hist[first] == total {
		// одно значение на всё изображение
		for i := range lut {
			lut[i] = uint8(first)
		}
		return lut
	}

	scale := 255.0 / float64(total-hist[first])
	sum := 0
	for i := first + 1; i < 256; i++ {
		sum += hist[i]
		lut[i] = clampByte(float64(sum) * scale)
	}
	return lut
}

// equalizeHistogram equalizes the Y plane of YCbCr and keeps chroma.
func equalizeHistogram(_ context.Context, buf *imgbuf.Buffer, _ registry.Params) (*imgbuf.Buffer, error) {
	if buf.Channels == imgbuf.Gray {
		lut := equalizeLUT(buf.Pix)
		out := buf.Clone()
		for i, v := range buf.Pix {
			out.Pix[i] = lut[v]
		}
		return out, nil
	}

	ch := int(buf.Channels)
	n := buf.Pixels()
	ys := make([]uint8, n)
	cbs := make([]uint8, n)
	crs := make([]uint8, n)
	for i, j := 0, 0; i < n; i, j = i+1, j+ch {
		ys[i], cbs[i], crs[i] = color.RGBToYCbCr(buf.Pix[j], buf.Pix[j+1], buf.Pix[j+2])
	}

	lut := equalizeLUT(ys)
	out := buf.Clone()
	for i, j := 0, 0; i < n; i, j = i+1, j+ch {
		out.Pix[j], out.Pix[j+1], out.Pix[j+2] = color.YCbCrToRGB(lut[ys[i]], cbs[i], crs[i])
	}
	return out, nil
}

// normalize stretches the global sample range linearly to 0..255. Alpha is not touched.
func normalize(_ context.Context, buf *imgbuf.Buffer, _ registry.Params) (*imgbuf.Buffer, error) {
	ch := int(buf.Channels)
	colors := min(ch, 3)

	lo, hi := uint8(255), uint8(0)
	for i := 0; i < len(buf.Pix); i += ch {
		for c := 0; c < colors; c++ {
			v := buf.Pix[i+c]
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}

	out := buf.Clone()
	if lo == hi {
		return out, nil
	}
	scale := 255.0 / float64(hi-lo)
	for i := 0; i < len(out.Pix); i += ch {
		for c := 0; c < colors; c++ {
			out.Pix[i+c] = clampByte(float64(buf.Pix[i+c]-lo) * scale)
		}
	}
	return out, nil
}

// clahe runs contrast limited adaptive equalization on CIELAB lightness and
// recomposes the color from the untouched a*, b*.
func clahe(_ context.Context, buf *imgbuf.Buffer, _ registry.Params) (*imgbuf.Buffer, error) {
	w, h := buf.Width, buf.Height
	if buf.Channels == imgbuf.Gray {
		out := buf.Clone()
		out.Pix = claheApply(buf.Pix, w, h)
		return out, nil
	}

	ch := int(buf.Channels)
	n := buf.Pixels()
	lightness := make([]uint8, n)
	as := make([]float64, n)
	bs := make([]float64, n)
	for i, j := 0, 0; i < n; i, j = i+1, j+ch {
		c := colorful.Color{
			R: float64(buf.Pix[j]) / 255,
			G: float64(buf.Pix[j+1]) / 255,
			B: float64(buf.Pix[j+2]) / 255,
		}
		l, a, b := c.Lab()
		lightness[i] = clampByte(l * 255)
		as[i], bs[i] = a, b
	}

	eq := claheApply(lightness, w, h)

	out := buf.Clone()
	for i, j := 0, 0; i < n; i, j = i+1, j+ch {
		r, g, b := colorful.Lab(float64(eq[i])/255, as[i], bs[i]).Clamped().RGB255()
		out.Pix[j], out.Pix[j+1], out.Pix[j+2] = r, g, b
	}
	return out, nil
}

// tileBounds splits length into n nearly equal spans.
func tileBounds(length, n int) []int {
	b := make([]int, n+1)
	for i := 0; i <= n; i++ {
		b[i] = i * length / n
	}
	return b
}

// claheApply equalizes a plane tile by tile and blends neighbouring tile
// tables bilinearly around tile centres.
func claheApply(plane []uint8, w, h int) []uint8 {
	gx, gy := min(claheGrid, w), min(claheGrid, h)
	xs, ys := tileBounds(w, gx), tileBounds(h, gy)

	luts := make([][256]uint8, gx*gy)
	for ty := 0; ty < gy; ty++ {
		for tx := 0; tx < gx; tx++ {
			luts[ty*gx+tx] = clippedLUT(plane, w, xs[tx], xs[tx+1], ys[ty], ys[ty+1])
		}
	}

	tileW := float64(w) / float64(gx)
	tileH := float64(h) / float64(gy)

	out := make([]uint8, len(plane))
	for y := 0; y < h; y++ {
		fy := (float64(y)+0.5)/tileH - 0.5
		ty1 := int(math.Floor(fy))
		wy := fy - float64(ty1)
		ty2 := min(ty1+1, gy-1)
		ty1 = max(ty1, 0)

		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)/tileW - 0.5
			tx1 := int(math.Floor(fx))
			wx := fx - float64(tx1)
			tx2 := min(tx1+1, gx-1)
			tx1 = max(tx1, 0)

			v := plane[y*w+x]
			top := (1-wx)*float64(luts[ty1*gx+tx1][v]) + wx*float64(luts[ty1*gx+tx2][v])
			bottom := (1-wx)*float64(luts[ty2*gx+tx1][v]) + wx*float64(luts[ty2*gx+tx2][v])
			out[y*w+x] = clampByte((1-wy)*top + wy*bottom)
		}
	}
	return out
}

// clippedLUT builds one tile's table: the histogram is clipped and the excess
// spread evenly over all bins before accumulation.
func clippedLUT(plane []uint8, w, x0, x1, y0, y1 int) [256]uint8 {
	var hist [256]int
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[plane[y*w+x]]++
		}
	}
	area := (x1 - x0) * (y1 - y0)

	limit := max(1, int(claheClipLimit*float64(area)/256))
	clipped := 0
	for i := range hist {
		if hist[i] > limit {
			clipped += hist[i] - limit
			hist[i] = limit
		}
	}

	batch := clipped / 256
	residual := clipped - batch*256
	for i := range hist {
		hist[i] += batch
	}
	if residual > 0 {
		step := max(256/residual, 1)
		for i := 0; i < 256 && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}

	var lut [256]uint8
	scale := 255.0 / float64(area)
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = clampByte(float64(sum) * scale)
	}
	return lut
}
