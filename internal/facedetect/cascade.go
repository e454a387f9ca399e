// Package facedetect finds frontal faces with a pretrained Haar cascade in
// the OpenCV XML format. The evaluator is pure Go; a native OpenCV backend is
// available with the gocv build tag.
package facedetect

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var ErrInvalidCascade = errors.New("invalid cascade")

type weightedRect struct {
	x, y, w, h int
	weight     float64
}

type feature struct {
	rects []weightedRect
}

// node is one split of a weak classifier tree. Child indices <= 0 point to leaf -idx.
type node struct {
	left, right int
	feature     int
	threshold   float64
}

type weakClassifier struct {
	nodes  []node
	leaves []float64
}

type stage struct {
	threshold float64
	weak      []weakClassifier
}

// Cascade is an immutable boosted Haar classifier, safe for concurrent use.
type Cascade struct {
	Width    int
	Height   int
	stages   []stage
	features []feature
}

func (c *Cascade) Stages() int { return len(c.stages) }

type xmlStorage struct {
	Cascade *xmlCascade `xml:"cascade"`
}

type xmlCascade struct {
	StageType   string       `xml:"stageType"`
	FeatureType string       `xml:"featureType"`
	Width       int          `xml:"width"`
	Height      int          `xml:"height"`
	Stages      []xmlStage   `xml:"stages>_"`
	Features    []xmlFeature `xml:"features>_"`
}

type xmlStage struct {
	Threshold float64   `xml:"stageThreshold"`
	Weak      []xmlWeak `xml:"weakClassifiers>_"`
}

type xmlWeak struct {
	InternalNodes string `xml:"internalNodes"`
	LeafValues    string `xml:"leafValues"`
}

type xmlFeature struct {
	Rects  []string `xml:"rects>_"`
	Tilted int      `xml:"tilted"`
}

// ParseCascade reads a cascade in the "new" OpenCV format (opencv_storage/cascade).
// Only BOOST stages with upright HAAR features are supported.
func ParseCascade(r io.Reader) (*Cascade, error) {
	var doc xmlStorage
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCascade, err)
	}
	raw := doc.Cascade
	if raw == nil {
		return nil, fmt.Errorf("%w: no cascade element", ErrInvalidCascade)
	}
	if t := strings.TrimSpace(raw.FeatureType); t != "" && !strings.EqualFold(t, "HAAR") {
		return nil, fmt.Errorf("%w: unsupported feature type %q", ErrInvalidCascade, t)
	}
	if t := strings.TrimSpace(raw.StageType); t != "" && !strings.EqualFold(t, "BOOST") {
		return nil, fmt.Errorf("%w: unsupported stage type %q", ErrInvalidCascade, t)
	}
	if raw.Width < 3 || raw.Height < 3 {
		return nil, fmt.Errorf("%w: window %dx%d is too small", ErrInvalidCascade, raw.Width, raw.Height)
	}
	if len(raw.Stages) == 0 {
		return nil, fmt.Errorf("%w: no stages", ErrInvalidCascade)
	}

	c := &Cascade{Width: raw.Width, Height: raw.Height}

	for i, f := range raw.Features {
		if f.Tilted != 0 {
			return nil, fmt.Errorf("%w: feature %d is tilted", ErrInvalidCascade, i)
		}
		parsed, err := parseFeature(f, c.Width, c.Height)
		if err != nil {
			return nil, fmt.Errorf("%w: feature %d: %v", ErrInvalidCascade, i, err)
		}
		c.features = append(c.features, parsed)
	}

	for si, s := range raw.Stages {
		st := stage{threshold: s.Threshold}
		for wi, w := range s.Weak {
			wc, err := parseWeak(w, len(c.features))
			if err != nil {
				return nil, fmt.Errorf("%w: stage %d classifier %d: %v", ErrInvalidCascade, si, wi, err)
			}
			st.weak = append(st.weak, wc)
		}
		c.stages = append(c.stages, st)
	}
	return c, nil
}

func parseFeature(f xmlFeature, width, height int) (feature, error) {
	if len(f.Rects) == 0 {
		return feature{}, errors.New("no rects")
	}
	var out feature
	for _, s := range f.Rects {
		nums, err := parseFloats(s)
		if err != nil {
			return feature{}, err
		}
		if len(nums) != 5 {
			return feature{}, fmt.Errorf("rect %q: want 5 values, got %d", s, len(nums))
		}
		r := weightedRect{x: int(nums[0]), y: int(nums[1]), w: int(nums[2]), h: int(nums[3]), weight: nums[4]}
		if r.x < 0 || r.y < 0 || r.w <= 0 || r.h <= 0 || r.x+r.w > width || r.y+r.h > height {
			return feature{}, fmt.Errorf("rect %q is outside the %dx%d window", s, width, height)
		}
		out.rects = append(out.rects, r)
	}
	return out, nil
}

func parseWeak(w xmlWeak, features int) (weakClassifier, error) {
	nodeVals, err := parseFloats(w.InternalNodes)
	if err != nil {
		return weakClassifier{}, err
	}
	leaves, err := parseFloats(w.LeafValues)
	if err != nil {
		return weakClassifier{}, err
	}
	if len(nodeVals) == 0 || len(nodeVals)%4 != 0 {
		return weakClassifier{}, fmt.Errorf("internalNodes has %d values, want a multiple of 4", len(nodeVals))
	}

	wc := weakClassifier{leaves: leaves}
	count := len(nodeVals) / 4
	for i := 0; i < count; i++ {
		n := node{
			left:      int(nodeVals[i*4]),
			right:     int(nodeVals[i*4+1]),
			feature:   int(nodeVals[i*4+2]),
			threshold: nodeVals[i*4+3],
		}
		if n.feature < 0 || n.feature >= features {
			return weakClassifier{}, fmt.Errorf("feature index %d out of range", n.feature)
		}
		for _, child := range []int{n.left, n.right} {
			// дочерние узлы только впереди, иначе обход может зациклиться
			if child > 0 && (child <= i || child >= count) {
				return weakClassifier{}, fmt.Errorf("node index %d out of range", child)
			}
			if child <= 0 && -child >= len(leaves) {
				return weakClassifier{}, fmt.Errorf("leaf index %d out of range", -child)
			}
		}
		wc.nodes = append(wc.nodes, n)
	}
	return wc, nil
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}
