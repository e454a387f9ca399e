package facedetect

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Options control the multi-scale scan.
type Options struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
	MaxSize      image.Point
	GroupEps     float64
}

// DefaultOptions matches the usual frontal face settings.
func DefaultOptions() Options {
	return Options{
		ScaleFactor:  1.1,
		MinNeighbors: 5,
		MinSize:      image.Pt(30, 30),
		GroupEps:     0.2,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ScaleFactor <= 1 {
		o.ScaleFactor = def.ScaleFactor
	}
	if o.MinNeighbors < 0 {
		o.MinNeighbors = 0
	}
	if o.GroupEps <= 0 {
		o.GroupEps = def.GroupEps
	}
	return o
}

type integral struct {
	stride int
	sum    []int64
	sqsum  []int64
}

func newIntegral(plane []uint8, w, h int) *integral {
	stride := w + 1
	ii := &integral{
		stride: stride,
		sum:    make([]int64, stride*(h+1)),
		sqsum:  make([]int64, stride*(h+1)),
	}
	for y := 0; y < h; y++ {
		var rowSum, rowSq int64
		for x := 0; x < w; x++ {
			v := int64(plane[y*w+x])
			rowSum += v
			rowSq += v * v
			i := (y+1)*stride + x + 1
			ii.sum[i] = ii.sum[i-stride] + rowSum
			ii.sqsum[i] = ii.sqsum[i-stride] + rowSq
		}
	}
	return ii
}

func (ii *integral) rect(table []int64, x, y, w, h int) int64 {
	a := y*ii.stride + x
	b := a + w
	c := (y+h)*ii.stride + x
	d := c + w
	return table[d] - table[b] - table[c] + table[a]
}

// evalWindow runs all stages on the window with top-left (x, y). Feature sums
// are normalized by area*stddev of the window without its one pixel border.
func (c *Cascade) evalWindow(ii *integral, x, y int) bool {
	nx, ny, nw, nh := x+1, y+1, c.Width-2, c.Height-2
	s := float64(ii.rect(ii.sum, nx, ny, nw, nh))
	sq := float64(ii.rect(ii.sqsum, nx, ny, nw, nh))
	nf := float64(nw*nh)*sq - s*s
	if nf > 0 {
		nf = math.Sqrt(nf)
	} else {
		nf = 1
	}
	inv := 1 / nf

	for _, st := range c.stages {
		var sum float64
		for _, wc := range st.weak {
			idx := 0
			for {
				n := wc.nodes[idx]
				var val float64
				for _, r := range c.features[n.feature].rects {
					val += r.weight * float64(ii.rect(ii.sum, x+r.x, y+r.y, r.w, r.h))
				}
				if val*inv < n.threshold {
					idx = n.left
				} else {
					idx = n.right
				}
				if idx <= 0 {
					break
				}
			}
			sum += wc.leaves[-idx]
		}
		if sum < st.threshold {
			return false
		}
	}
	return true
}

// Detect scans a luma plane over an image pyramid and returns grouped face rectangles.
func (c *Cascade) Detect(gray []uint8, width, height int, opts Options) []image.Rectangle {
	opts = opts.withDefaults()
	if width <= 0 || height <= 0 || len(gray) < width*height {
		return nil
	}
	src := &image.Gray{Pix: gray, Stride: width, Rect: image.Rect(0, 0, width, height)}

	var found []image.Rectangle
	for factor := 1.0; ; factor *= opts.ScaleFactor {
		winW := int(math.Round(float64(c.Width) * factor))
		winH := int(math.Round(float64(c.Height) * factor))
		sw := int(math.Round(float64(width) / factor))
		sh := int(math.Round(float64(height) / factor))
		if sw < c.Width || sh < c.Height {
			break
		}
		if opts.MaxSize.X > 0 && opts.MaxSize.Y > 0 && (winW > opts.MaxSize.X || winH > opts.MaxSize.Y) {
			break
		}
		if winW < opts.MinSize.X || winH < opts.MinSize.Y {
			continue
		}

		plane := gray
		if sw != width || sh != height {
			plane = scaledPlane(src, sw, sh)
		}
		ii := newIntegral(plane, sw, sh)

		step := 2
		if factor > 2 {
			step = 1
		}
		for y := 0; y+c.Height <= sh; y += step {
			for x := 0; x+c.Width <= sw; x += step {
				if !c.evalWindow(ii, x, y) {
					continue
				}
				rx := int(math.Round(float64(x) * factor))
				ry := int(math.Round(float64(y) * factor))
				found = append(found, image.Rect(rx, ry, rx+winW, ry+winH))
			}
		}
	}
	return GroupRectangles(found, opts.MinNeighbors, opts.GroupEps)
}

func scaledPlane(src *image.Gray, w, h int) []uint8 {
	res := imaging.Resize(src, w, h, imaging.Linear)
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := res.Pix[y*res.Stride:]
		for x := 0; x < w; x++ {
			out[y*w+x] = row[x*4]
		}
	}
	return out
}

func similar(a, b image.Rectangle, eps float64) bool {
	delta := eps * float64(min(a.Dx(), b.Dx())+min(a.Dy(), b.Dy())) * 0.5
	return math.Abs(float64(a.Min.X-b.Min.X)) <= delta &&
		math.Abs(float64(a.Min.Y-b.Min.Y)) <= delta &&
		math.Abs(float64(a.Max.X-b.Max.X)) <= delta &&
		math.Abs(float64(a.Max.Y-b.Max.Y)) <= delta
}

// GroupRectangles clusters similar rectangles, keeps clusters with more than
// minNeighbors members (averaged) and drops clusters nested in a stronger one.
// With minNeighbors <= 0 the input is returned unchanged.
func GroupRectangles(rects []image.Rectangle, minNeighbors int, eps float64) []image.Rectangle {
	if minNeighbors <= 0 || len(rects) == 0 {
		return rects
	}

	parent := make([]int, len(rects))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range rects {
		for j := i + 1; j < len(rects); j++ {
			if similar(rects[i], rects[j], eps) {
				if ri, rj := find(i), find(j); ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	type cluster struct {
		x, y, w, h float64
		n          int
	}
	byRoot := map[int]*cluster{}
	var order []int
	for i, r := range rects {
		root := find(i)
		cl, ok := byRoot[root]
		if !ok {
			cl = &cluster{}
			byRoot[root] = cl
			order = append(order, root)
		}
		cl.x += float64(r.Min.X)
		cl.y += float64(r.Min.Y)
		cl.w += float64(r.Dx())
		cl.h += float64(r.Dy())
		cl.n++
	}

	var (
		avg     []image.Rectangle
		weights []int
	)
	for _, root := range order {
		cl := byRoot[root]
		if cl.n <= minNeighbors {
			continue
		}
		s := 1 / float64(cl.n)
		x, y := int(math.Round(cl.x*s)), int(math.Round(cl.y*s))
		avg = append(avg, image.Rect(x, y, x+int(math.Round(cl.w*s)), y+int(math.Round(cl.h*s))))
		weights = append(weights, cl.n)
	}

	out := make([]image.Rectangle, 0, len(avg))
	for i, r1 := range avg {
		nested := false
		for j, r2 := range avg {
			if i == j {
				continue
			}
			dx := int(math.Round(float64(r2.Dx()) * eps))
			dy := int(math.Round(float64(r2.Dy()) * eps))
			n1, n2 := weights[i], weights[j]
			if r1.Min.X >= r2.Min.X-dx && r1.Min.Y >= r2.Min.Y-dy &&
				r1.Max.X <= r2.Max.X+dx && r1.Max.Y <= r2.Max.Y+dy &&
				(n2 > max(3, n1) || n1 < 3) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, r1)
		}
	}
	return out
}
