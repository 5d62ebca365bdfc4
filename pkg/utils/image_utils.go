package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrEmptyImage    = errors.New("empty image")
	ErrImageTooLarge = errors.New("image dimensions out of bounds")
)

// DecodedImage is an uploaded image that decoded successfully. Data keeps the
// original encoded bytes, which are what gets sent to OCR and storage.
type DecodedImage struct {
	Data   []byte
	Width  int
	Height int
	Format string
}

func (d *DecodedImage) Size() int64 {
	return int64(len(d.Data))
}

// ContentType returns the MIME type for the decoded format.
func (d *DecodedImage) ContentType() string {
	return ContentTypeForFormat(d.Format)
}

// Extension returns the file extension, including the dot, for the decoded format.
func (d *DecodedImage) Extension() string {
	if d.Format == "jpeg" {
		return ".jpg"
	}
	return "." + d.Format
}

func ContentTypeForFormat(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	}
	return "application/octet-stream"
}

// DefaultMaxPixels bounds width*height of an accepted image.
const DefaultMaxPixels = 40_000_000

type ImageDecoder struct {
	allowed   map[string]struct{}
	maxPixels int64
	log       *zap.Logger
}

// NewImageDecoder accepts the listed formats ("jpeg", "png", "gif"). An empty list allows every registered format.
// maxPixels <= 0 means DefaultMaxPixels.
func NewImageDecoder(allowedFormats []string, maxPixels int64, log *zap.Logger) *ImageDecoder {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	allowed := make(map[string]struct{}, len(allowedFormats))
	for _, f := range allowedFormats {
		f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
		if f == "jpg" {
			f = "jpeg"
		}
		if f != "" {
			allowed[f] = struct{}{}
		}
	}
	return &ImageDecoder{allowed: allowed, maxPixels: maxPixels, log: log}
}

// Decode fully decodes data to make sure it is a readable image.
func (d *ImageDecoder) Decode(data []byte) (*DecodedImage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	// Headers are checked before decoding so a crafted size cannot force a huge allocation.
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		d.log.Warn("Image header decode failed", zap.Int("size", len(data)), zap.Error(err))
		return nil, fmt.Errorf("decode image config: %w", err)
	}

	if len(d.allowed) > 0 {
		if _, ok := d.allowed[format]; !ok {
			return nil, fmt.Errorf("image format %q not allowed", format)
		}
	}

	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > d.maxPixels {
		d.log.Warn("Image dimensions out of bounds",
			zap.Int("width", cfg.Width),
			zap.Int("height", cfg.Height),
			zap.Int64("max_pixels", d.maxPixels))
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, d.maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		d.log.Warn("Image decode failed", zap.Int("size", len(data)), zap.Error(err))
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	decoded := &DecodedImage{
		Data:   data,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: format,
	}

	d.log.Debug("Image decoded",
		zap.String("format", format),
		zap.Int("width", decoded.Width),
		zap.Int("height", decoded.Height),
		zap.Int("size", len(data)))

	return decoded, nil
}
