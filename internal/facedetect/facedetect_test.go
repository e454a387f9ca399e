package facedetect

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/UnendingLoop/ImageOps/internal/registry"
	"github.com/stretchr/testify/require"
)

// edgeCascade accepts 20x20 windows whose right half is clearly brighter than the left half.
const edgeCascade = `<?xml version="1.0"?>
<opencv_storage>
<cascade type_id="opencv-cascade-classifier"><stageType>BOOST</stageType>
  <featureType>HAAR</featureType>
  <height>20</height>
  <width>20</width>
  <stageNum>1</stageNum>
  <stages>
    <_>
      <maxWeakCount>1</maxWeakCount>
      <stageThreshold>0.</stageThreshold>
      <weakClassifiers>
        <_>
          <internalNodes>
            0 -1 0 5.0000000000000003e-02</internalNodes>
          <leafValues>
            -1. 1.</leafValues></_></weakClassifiers></_></stages>
  <features>
    <_>
      <rects>
        <_>
          0 0 10 20 -1.</_>
        <_>
          10 0 10 20 1.</_></rects></_></features></cascade>
</opencv_storage>
`

func mustParse(t *testing.T, doc string) *Cascade {
	t.Helper()

	c, err := ParseCascade(strings.NewReader(doc))
	require.NoError(t, err)
	return c
}

// stepImage is black left of column edge and white from it on.
func stepImage(w, h, edge int) []uint8 {
	pix := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := edge; x < w; x++ {
			pix[y*w+x] = 255
		}
	}
	return pix
}

func TestParseCascade(t *testing.T) {
	c := mustParse(t, edgeCascade)
	require.Equal(t, 20, c.Width)
	require.Equal(t, 20, c.Height)
	require.Equal(t, 1, c.Stages())
	require.Len(t, c.features, 1)
	require.Len(t, c.features[0].rects, 2)
	require.Equal(t, weightedRect{x: 10, y: 0, w: 10, h: 20, weight: 1}, c.features[0].rects[1])
}

func TestParseCascade_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not xml", doc: "definitely not xml <"},
		{name: "no cascade", doc: "<opencv_storage></opencv_storage>"},
		{name: "lbp features", doc: strings.Replace(edgeCascade, "<featureType>HAAR", "<featureType>LBP", 1)},
		{name: "tilted feature", doc: strings.Replace(edgeCascade, "</rects></_></features>", "</rects><tilted>1</tilted></_></features>", 1)},
		{name: "feature index out of range", doc: strings.Replace(edgeCascade, "0 -1 0 5.", "0 -1 3 5.", 1)},
		{name: "leaf index out of range", doc: strings.Replace(edgeCascade, "0 -1 0 5.", "0 -4 0 5.", 1)},
		{name: "rect outside window", doc: strings.Replace(edgeCascade, "10 0 10 20 1.", "15 0 10 20 1.", 1)},
		{name: "bad number", doc: strings.Replace(edgeCascade, "-1. 1.", "-1. one", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCascade(strings.NewReader(tt.doc))
			require.ErrorIs(t, err, ErrInvalidCascade)
		})
	}
}

func TestCascadeDetect(t *testing.T) {
	c := mustParse(t, edgeCascade)
	opts := Options{ScaleFactor: 1.1, MinNeighbors: 3, MinSize: image.Pt(20, 20)}

	faces := c.Detect(stepImage(80, 80, 40), 80, 80, opts)
	require.NotEmpty(t, faces)
	for _, r := range faces {
		require.Less(t, r.Min.X, 40)
		require.Greater(t, r.Max.X, 40)
	}

	flat := make([]uint8, 80*80)
	require.Empty(t, c.Detect(flat, 80, 80, opts))

	// окно больше изображения
	require.Empty(t, c.Detect(stepImage(10, 10, 5), 10, 10, opts))
	require.Empty(t, c.Detect(nil, 0, 0, opts))
}

func TestCascadeDetect_MinSizeSkipsSmallScales(t *testing.T) {
	c := mustParse(t, edgeCascade)

	faces := c.Detect(stepImage(80, 80, 40), 80, 80, Options{MinNeighbors: 0, MinSize: image.Pt(30, 30)})
	require.NotEmpty(t, faces)
	for _, r := range faces {
		require.GreaterOrEqual(t, r.Dx(), 30)
	}
}

func TestGroupRectangles(t *testing.T) {
	rects := []image.Rectangle{
		image.Rect(10, 10, 40, 40),
		image.Rect(11, 10, 41, 40),
		image.Rect(10, 11, 40, 41),
		image.Rect(12, 12, 42, 42),
		image.Rect(100, 100, 130, 130),
	}

	require.Equal(t, rects, GroupRectangles(rects, 0, 0.2))

	got := GroupRectangles(rects, 1, 0.2)
	require.Equal(t, []image.Rectangle{image.Rect(11, 11, 41, 41)}, got)

	require.Empty(t, GroupRectangles(rects, 4, 0.2))
}

func TestGroupRectangles_DropsNested(t *testing.T) {
	var rects []image.Rectangle
	for i := 0; i < 6; i++ {
		rects = append(rects, image.Rect(0, 0, 100, 100))
	}
	for i := 0; i < 2; i++ {
		rects = append(rects, image.Rect(30, 30, 50, 50))
	}

	got := GroupRectangles(rects, 1, 0.2)
	require.Equal(t, []image.Rectangle{image.Rect(0, 0, 100, 100)}, got)
}

type countingSource struct {
	opens atomic.Int32
	mu    sync.Mutex
	doc   string
	err   error
}

func (s *countingSource) Open(context.Context) (io.ReadCloser, error) {
	s.opens.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.doc)), nil
}

func (s *countingSource) String() string { return "counting" }

func TestLoader_LoadsOnceConcurrently(t *testing.T) {
	src := &countingSource{doc: edgeCascade}
	l := NewLoader(src, DefaultOptions())

	var wg sync.WaitGroup
	results := make([]*Cascade, 16)
	errs := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = l.Cascade(context.Background())
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), src.opens.Load())
	for i, c := range results {
		require.NoError(t, errs[i])
		require.Same(t, results[0], c)
	}
}

func TestLoader_FailureIsNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("no such object")}
	l := NewLoader(src, DefaultOptions())

	_, err := l.Detect(context.Background(), make([]uint8, 4), 2, 2)
	require.ErrorIs(t, err, registry.ErrAssetMissing)
	var aErr *registry.AssetMissingError
	require.ErrorAs(t, err, &aErr)
	require.Equal(t, "counting", aErr.Asset)

	src.mu.Lock()
	src.err = nil
	src.doc = edgeCascade
	src.mu.Unlock()

	faces, err := l.Detect(context.Background(), make([]uint8, 4), 2, 2)
	require.NoError(t, err)
	require.Empty(t, faces)
	require.Equal(t, int32(2), src.opens.Load())
}

func TestLoader_BrokenAssetIsMissing(t *testing.T) {
	l := NewLoader(&countingSource{doc: "<broken"}, DefaultOptions())
	_, err := l.Cascade(context.Background())
	require.ErrorIs(t, err, registry.ErrAssetMissing)
	require.ErrorIs(t, err, ErrInvalidCascade)

	_, err = NewLoader(nil, DefaultOptions()).Cascade(context.Background())
	require.ErrorIs(t, err, registry.ErrAssetMissing)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cascade.xml")

	l := NewLoader(FileSource{Path: path}, DefaultOptions())
	_, err := l.Cascade(context.Background())
	require.ErrorIs(t, err, registry.ErrAssetMissing)

	require.NoError(t, os.WriteFile(path, []byte(edgeCascade), 0o600))
	c, err := l.Cascade(context.Background())
	require.NoError(t, err)
	require.Equal(t, 20, c.Width)

	_, err = FileSource{}.Open(context.Background())
	require.Error(t, err)
}
