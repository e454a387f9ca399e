//go:build !gocv || !cgo

package facedetect

const nativeBuilt = false

func newNative(path string, opts Options) Detector {
	return NewLoader(FileSource{Path: path}, opts)
}
