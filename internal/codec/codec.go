// Package codec converts between the base64 data-URI transport form and the canonical image buffer.
//
// Decoding accepts PNG, JPEG and GIF. Gray sources stay single-channel; every
// other source is flattened onto opaque white into RGB, so kernels never see
// an alpha channel coming from a client. Encoding is always lossless PNG.
package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/UnendingLoop/ImageOps/internal/imgbuf"
	"github.com/disintegration/imaging"
)

const (
	MimePNG       = "image/png"
	DataURIPrefix = "data:" + MimePNG + ";base64,"
)

var (
	ErrDecode = errors.New("failed to decode image")
	ErrEncode = errors.New("failed to encode image")
)

var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// DefaultMaxPixels bounds the canvas a payload may declare.
const DefaultMaxPixels = 40_000_000

// Decode turns a base64 payload, optionally prefixed with "data:<mime>;base64,", into a buffer.
func Decode(payload string) (*imgbuf.Buffer, error) {
	return DecodeWithin(payload, DefaultMaxPixels)
}

// DecodeWithin is Decode with an explicit limit on the declared pixel count.
func DecodeWithin(payload string, maxPixels int64) (*imgbuf.Buffer, error) {
	raw, err := decodeBase64(payload)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(raw, maxPixels)
}

// DecodeBytes decodes raw raster bytes into a canonical buffer. The header is
// read first and images declaring more than maxPixels pixels are rejected
// before the raster is allocated.
func DecodeBytes(raw []byte, maxPixels int64) (*imgbuf.Buffer, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty image data", ErrDecode)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return nil, fmt.Errorf("%w: image is %dx%d, limit is %d pixels", ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	buf, err := imgbuf.FromImage(img, channelsFor(img))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return buf, nil
}

func channelsFor(img image.Image) imgbuf.Channels {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return imgbuf.Gray
	default:
		return imgbuf.RGB
	}
}

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	// префикс data-URI отрезаем по первой запятой
	if idx := strings.IndexByte(payload, ','); idx >= 0 {
		payload = payload[idx+1:]
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	var lastErr error
	for _, enc := range encodings {
		raw, err := enc.DecodeString(payload)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: invalid base64: %v", ErrDecode, lastErr)
}

// Encode serializes a buffer to PNG and wraps it into a data URI.
func Encode(buf *imgbuf.Buffer) (string, error) {
	if err := buf.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return EncodeAsset(buf.Image())
}

// EncodeAsset serializes an already rendered image (e.g. a chart) to a PNG data URI.
func EncodeAsset(img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("%w: nil image", ErrEncode)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return DataURIPrefix + base64.StdEncoding.EncodeToString(out.Bytes()), nil
}
