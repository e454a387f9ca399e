package imageproc

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/UnendingLoop/ImageOps/internal/imgbuf"
	"github.com/UnendingLoop/ImageOps/internal/registry"
)

const faceBorder = 2

var faceColor = color.NRGBA{G: 255, A: 255}

// faceAnnotator outlines detected faces on an RGB copy of the input.
type faceAnnotator struct {
	detector FaceDetector
}

func (f *faceAnnotator) Name() string                 { return "detect_faces" }
func (f *faceAnnotator) Schema() registry.ParamSchema { return nil }

func (f *faceAnnotator) Apply(ctx context.Context, buf *imgbuf.Buffer, _ registry.Params) (registry.Result, error) {
	if f.detector == nil {
		return registry.Result{}, &registry.AssetMissingError{Asset: "face cascade", Err: errors.New("no detector configured")}
	}

	faces, err := f.detector.Detect(ctx, buf.Luma(), buf.Width, buf.Height)
	if err != nil {
		return registry.Result{}, wrapKernelErr(f.Name(), err)
	}

	src := buf
	if buf.Channels == imgbuf.Gray {
		src = buf.ToRGB()
	}
	canvas := src.Image().(*image.NRGBA)
	annotateFaces(canvas, faces)

	out, err := imgbuf.FromImage(canvas, src.Channels)
	if err != nil {
		return registry.Result{}, registry.NewKernelError(f.Name(), err)
	}
	return registry.Result{Buffer: out}, nil
}

func annotateFaces(canvas *image.NRGBA, faces []image.Rectangle) {
	for i, r := range faces {
		r = r.Intersect(canvas.Bounds())
		if r.Empty() {
			continue
		}
		strokeRect(canvas, r, faceBorder, faceColor)

		label := fmt.Sprintf("Face %d", i+1)
		y := r.Min.Y - 4
		if y < 11 {
			y = r.Min.Y + faceBorder + 11
		}
		drawText(canvas, r.Min.X, y, label, faceColor)
	}
}

func strokeRect(dst draw.Image, r image.Rectangle, width int, c color.Color) {
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), c)
	fillRect(dst, image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), c)
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), c)
	fillRect(dst, image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), c)
}
