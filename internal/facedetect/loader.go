package facedetect

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"

	"github.com/UnendingLoop/ImageOps/internal/registry"
)

// AssetSource opens the serialized cascade.
type AssetSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// FileSource reads the cascade from the local filesystem.
type FileSource struct {
	Path string
}

func (f FileSource) Open(_ context.Context) (io.ReadCloser, error) {
	if f.Path == "" {
		return nil, errors.New("cascade path is not configured")
	}
	return os.Open(f.Path)
}

func (f FileSource) String() string { return f.Path }

// Loader lazily parses the cascade on first use and shares it afterwards.
// Failed loads are not cached, so a request after the asset is deployed succeeds.
type Loader struct {
	source AssetSource
	opts   Options

	mu      sync.Mutex
	cascade *Cascade
}

func NewLoader(source AssetSource, opts Options) *Loader {
	return &Loader{source: source, opts: opts}
}

// Cascade returns the shared cascade, loading it if needed.
// Errors are *registry.AssetMissingError.
func (l *Loader) Cascade(ctx context.Context) (*Cascade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cascade != nil {
		return l.cascade, nil
	}
	if l.source == nil {
		return nil, &registry.AssetMissingError{Asset: "face cascade", Err: errors.New("no cascade source configured")}
	}

	c, err := l.load(ctx)
	if err != nil {
		return nil, &registry.AssetMissingError{Asset: l.source.String(), Err: err}
	}
	l.cascade = c
	return c, nil
}

func (l *Loader) load(ctx context.Context) (*Cascade, error) {
	rc, err := l.source.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open cascade: %w", err)
	}
	defer rc.Close()

	return ParseCascade(rc)
}

// Detect implements the face detector used by the detect_faces operation.
func (l *Loader) Detect(ctx context.Context, gray []uint8, width, height int) ([]image.Rectangle, error) {
	c, err := l.Cascade(ctx)
	if err != nil {
		return nil, err
	}
	return c.Detect(gray, width, height, l.opts), nil
}
