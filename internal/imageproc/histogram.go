package imageproc

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/UnendingLoop/ImageOps/internal/codec"
	"github.com/UnendingLoop/ImageOps/internal/imgbuf"
	"github.com/UnendingLoop/ImageOps/internal/registry"
	"github.com/anthonynsimon/bild/histogram"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
	"gonum.org/v1/gonum/stat"
)

const (
	chartWidth  = 640
	chartHeight = 360

	marginLeft   = 48
	marginRight  = 16
	marginTop    = 28
	marginBottom = 36
)

var (
	chartBackground = color.White
	chartAxis       = color.NRGBA{R: 60, G: 60, B: 60, A: 255}
	chartText       = color.NRGBA{R: 20, G: 20, B: 20, A: 255}
)

type histSeries struct {
	label string
	bins  []int
	fill  color.NRGBA
	line  color.NRGBA
}

// histogramChart renders intensity histograms as a PNG chart instead of
// returning a transformed buffer.
type histogramChart struct{}

func (h *histogramChart) Name() string                 { return "show_histogram" }
func (h *histogramChart) Schema() registry.ParamSchema { return nil }

func (h *histogramChart) Apply(_ context.Context, buf *imgbuf.Buffer, _ registry.Params) (registry.Result, error) {
	uri, err := codec.EncodeAsset(renderHistogram(histogramSeries(buf)))
	if err != nil {
		return registry.Result{}, registry.NewKernelError(h.Name(), err)
	}
	return registry.Result{Asset: &registry.Asset{MimeType: codec.MimePNG, DataURI: uri}}, nil
}

func histogramSeries(buf *imgbuf.Buffer) []histSeries {
	hist := histogram.NewRGBAHistogram(buf.Image())
	if buf.Channels == imgbuf.Gray {
		return []histSeries{{
			label: "L",
			bins:  hist.R.Bins,
			fill:  color.NRGBA{R: 90, G: 90, B: 90, A: 120},
			line:  color.NRGBA{R: 40, G: 40, B: 40, A: 255},
		}}
	}
	return []histSeries{
		{label: "R", bins: hist.R.Bins, fill: color.NRGBA{R: 230, A: 90}, line: color.NRGBA{R: 200, A: 255}},
		{label: "G", bins: hist.G.Bins, fill: color.NRGBA{G: 200, A: 90}, line: color.NRGBA{G: 150, A: 255}},
		{label: "B", bins: hist.B.Bins, fill: color.NRGBA{B: 230, A: 90}, line: color.NRGBA{B: 200, A: 255}},
	}
}

func renderHistogram(series []histSeries) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, chartWidth, chartHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(chartBackground), image.Point{}, draw.Src)

	plot := image.Rect(marginLeft, marginTop, chartWidth-marginRight, chartHeight-marginBottom)

	peak := 1
	for _, s := range series {
		for _, v := range s.bins {
			peak = max(peak, v)
		}
	}

	xOf := func(i int) float32 {
		return float32(plot.Min.X) + float32(i)*float32(plot.Dx()-1)/255
	}
	yOf := func(v int) float32 {
		return float32(plot.Max.Y) - float32(v)*float32(plot.Dy()-1)/float32(peak)
	}

	raster := vector.NewRasterizer(chartWidth, chartHeight)
	for _, s := range series {
		raster.Reset(chartWidth, chartHeight)
		raster.MoveTo(xOf(0), float32(plot.Max.Y))
		for i, v := range s.bins {
			raster.LineTo(xOf(i), yOf(v))
		}
		raster.LineTo(xOf(255), float32(plot.Max.Y))
		raster.ClosePath()
		raster.Draw(canvas, canvas.Bounds(), image.NewUniform(s.fill), image.Point{})

		// контур кривой поверх заливки
		for i := 1; i < len(s.bins); i++ {
			strokeSegment(raster, canvas, xOf(i-1), yOf(s.bins[i-1]), xOf(i), yOf(s.bins[i]), s.line)
		}
	}

	fillRect(canvas, image.Rect(plot.Min.X, plot.Min.Y, plot.Min.X+1, plot.Max.Y+1), chartAxis)
	fillRect(canvas, image.Rect(plot.Min.X, plot.Max.Y, plot.Max.X, plot.Max.Y+1), chartAxis)

	for _, tick := range []int{0, 64, 128, 192, 255} {
		x := int(xOf(tick))
		fillRect(canvas, image.Rect(x, plot.Max.Y, x+1, plot.Max.Y+4), chartAxis)
		label := fmt.Sprint(tick)
		drawText(canvas, x-textWidth(label)/2, plot.Max.Y+17, label, chartText)
	}
	drawText(canvas, plot.Min.X-textWidth(fmt.Sprint(peak))-4, plot.Min.Y+10, fmt.Sprint(peak), chartText)
	drawText(canvas, marginLeft, 18, "Intensity histogram", chartText)
	drawText(canvas, plot.Min.X+plot.Dx()/2-textWidth("intensity")/2, chartHeight-6, "intensity", chartText)

	legendY := plot.Min.Y + 14
	for _, s := range series {
		mean, sd := binStats(s.bins)
		text := fmt.Sprintf("%s  mean %.1f  sd %.1f", s.label, mean, sd)
		x := plot.Max.X - textWidth(text) - 8
		fillRect(canvas, image.Rect(x-14, legendY-9, x-4, legendY+1), s.line)
		drawText(canvas, x, legendY, text, chartText)
		legendY += 16
	}
	return canvas
}

// binStats returns the weighted mean and standard deviation of levels 0..255.
func binStats(bins []int) (mean, sd float64) {
	levels := make([]float64, len(bins))
	weights := make([]float64, len(bins))
	var total float64
	for i, v := range bins {
		levels[i] = float64(i)
		weights[i] = float64(v)
		total += weights[i]
	}
	if total < 2 {
		for i, w := range weights {
			if w > 0 {
				return levels[i], 0
			}
		}
		return 0, 0
	}
	return stat.MeanStdDev(levels, weights)
}

func strokeSegment(raster *vector.Rasterizer, dst draw.Image, x0, y0, x1, y1 float32, c color.Color) {
	const half = 0.75
	raster.Reset(chartWidth, chartHeight)
	raster.MoveTo(x0, y0-half)
	raster.LineTo(x1, y1-half)
	raster.LineTo(x1, y1+half)
	raster.LineTo(x0, y0+half)
	raster.ClosePath()
	raster.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

func fillRect(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Over)
}

func drawText(dst draw.Image, x, y int, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func textWidth(text string) int {
	return font.MeasureString(basicfont.Face7x13, text).Ceil()
}
