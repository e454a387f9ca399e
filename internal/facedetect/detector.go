package facedetect

import (
	"context"
	"image"
)

type Detector interface {
	Detect(ctx context.Context, gray []uint8, width, height int) ([]image.Rectangle, error)
}

// New returns the OpenCV backed detector when the binary is built with the
// gocv tag and the cascade is a local file, the pure Go loader otherwise.
func New(source AssetSource, opts Options) Detector {
	if fs, ok := source.(FileSource); ok && nativeBuilt {
		return newNative(fs.Path, opts)
	}
	return NewLoader(source, opts)
}

// Native reports whether the OpenCV backend is compiled in.
func Native() bool { return nativeBuilt }
