//go:build gocv && cgo

package facedetect

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/UnendingLoop/ImageOps/internal/registry"
	"gocv.io/x/gocv"
)

const nativeBuilt = true

// nativeDetector runs OpenCV's CascadeClassifier. The classifier keeps
// internal buffers, so calls are serialized.
type nativeDetector struct {
	path string
	opts Options

	mu         sync.Mutex
	classifier *gocv.CascadeClassifier
}

func newNative(path string, opts Options) Detector {
	return &nativeDetector{path: path, opts: opts.withDefaults()}
}

func (n *nativeDetector) Detect(_ context.Context, gray []uint8, width, height int) ([]image.Rectangle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.classifier == nil {
		c := gocv.NewCascadeClassifier()
		if !c.Load(n.path) {
			_ = c.Close()
			return nil, &registry.AssetMissingError{Asset: n.path, Err: errors.New("opencv could not load cascade")}
		}
		n.classifier = &c
	}

	mat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC1, gray)
	if err != nil {
		return nil, fmt.Errorf("wrap luma plane: %w", err)
	}
	defer mat.Close()

	return n.classifier.DetectMultiScaleWithParams(mat, n.opts.ScaleFactor, n.opts.MinNeighbors, 0, n.opts.MinSize, n.opts.MaxSize), nil
}
