// Package imageproc implements the image operations served by the API.
//
// Every operation receives a validated buffer with already normalized
// parameters and returns a fresh buffer; the input is never modified.
// Grayscale-producing operations re-expand their result to the channel
// count of the input.
package imageproc

import (
	"context"
	"errors"
	"image"

	"github.com/UnendingLoop/ImageOps/internal/imgbuf"
	"github.com/UnendingLoop/ImageOps/internal/registry"
)

// FaceDetector finds face regions on a luma plane.
type FaceDetector interface {
	Detect(ctx context.Context, gray []uint8, width, height int) ([]image.Rectangle, error)
}

type kernelFunc func(ctx context.Context, buf *imgbuf.Buffer, params registry.Params) (*imgbuf.Buffer, error)

type kernel struct {
	name   string
	schema registry.ParamSchema
	fn     kernelFunc
}

func (k *kernel) Name() string                 { return k.name }
func (k *kernel) Schema() registry.ParamSchema { return k.schema }

func (k *kernel) Apply(ctx context.Context, buf *imgbuf.Buffer, params registry.Params) (registry.Result, error) {
	out, err := k.fn(ctx, buf, params)
	if err != nil {
		return registry.Result{}, wrapKernelErr(k.name, err)
	}
	return registry.Result{Buffer: out}, nil
}

// wrapKernelErr keeps already classified errors and turns everything else into a KernelError.
func wrapKernelErr(op string, err error) error {
	if errors.Is(err, registry.ErrKernel) || errors.Is(err, registry.ErrAssetMissing) ||
		errors.Is(err, registry.ErrInvalidParameter) {
		return err
	}
	return registry.NewKernelError(op, err)
}

var intensitySchema = registry.ParamSchema{
	"intensity": {
		Kind:        registry.KindInt,
		Default:     5,
		Min:         1,
		Max:         15,
		Clamp:       true,
		Odd:         true,
		Description: "kernel size, forced odd",
	},
}

// DefaultMaxOutputPixels bounds the canvas an operation may allocate for its result.
const DefaultMaxOutputPixels = 40_000_000

type options struct {
	maxOutputPixels int64
}

type Option func(*options)

// WithMaxOutputPixels caps the result size of resize. Non-positive values keep the default.
func WithMaxOutputPixels(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOutputPixels = n
		}
	}
}

// Operations returns every supported operation. faces may be nil, in which
// case detect_faces reports a missing asset.
func Operations(faces FaceDetector, opts ...Option) []registry.Operation {
	o := options{maxOutputPixels: DefaultMaxOutputPixels}
	for _, opt := range opts {
		opt(&o)
	}

	return []registry.Operation{
		&kernel{name: "grayscale", fn: grayscale},
		&kernel{name: "rgb_to_hsv", fn: rgbToHSV},
		&kernel{
			name: "threshold_binary",
			schema: registry.ParamSchema{
				"threshold": {Kind: registry.KindInt, Default: 127, Min: 0, Max: 255, Clamp: true},
			},
			fn: thresholdBinary,
		},
		&kernel{name: "threshold_adaptive", fn: thresholdAdaptive},
		&kernel{name: "threshold_otsu", fn: thresholdOtsu},
		&kernel{name: "blur", schema: intensitySchema, fn: gaussianBlur},
		&kernel{name: "median_blur", schema: intensitySchema, fn: medianBlur},
		&kernel{name: "sharpen", fn: sharpen},
		&kernel{name: "edge_canny", fn: edgeCanny},
		&kernel{name: "edge_sobel", fn: edgeSobel},
		&kernel{name: "edge_laplacian", fn: edgeLaplacian},
		&kernel{
			name: "resize",
			schema: registry.ParamSchema{
				"scale": {Kind: registry.KindFloat, Default: 1.0, Positive: true},
			},
			fn: resizeWithin(o.maxOutputPixels),
		},
		&kernel{
			name: "rotate",
			schema: registry.ParamSchema{
				"angle": {Kind: registry.KindFloat, Default: 0, Description: "degrees, counter-clockwise"},
			},
			fn: rotate,
		},
		&kernel{name: "flip_horizontal", fn: flipHorizontal},
		&kernel{name: "flip_vertical", fn: flipVertical},
		&kernel{name: "histogram_equalization", fn: equalizeHistogram},
		&kernel{name: "normalize", fn: normalize},
		&kernel{name: "clahe", fn: clahe},
		&kernel{name: "channel_r", fn: channelOnly(0)},
		&kernel{name: "channel_g", fn: channelOnly(1)},
		&kernel{name: "channel_b", fn: channelOnly(2)},
		&histogramChart{},
		&faceAnnotator{detector: faces},
	}
}

// expandLuma builds a buffer shaped like src from a luma plane, keeping src's alpha.
func expandLuma(luma []uint8, src *imgbuf.Buffer) *imgbuf.Buffer {
	out := imgbuf.FromLuma(luma, src.Width, src.Height, src.Channels)
	if src.Channels == imgbuf.RGBA {
		for i := 3; i < len(out.Pix); i += 4 {
			out.Pix[i] = src.Pix[i]
		}
	}
	return out
}

// fromRendered converts an image produced by imaging or bild back into a
// buffer with the channel count of src.
func fromRendered(img image.Image, src *imgbuf.Buffer) (*imgbuf.Buffer, error) {
	return imgbuf.FromImage(img, src.Channels)
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
