package content

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
)

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/content")

// Image decoding errors.
var (
	ErrImageTooLarge    = errors.New("image exceeds size limit")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrInvalidImage     = errors.New("invalid image encoding")
)

// DefaultMaxImageMB is the size limit used when none is configured.
const DefaultMaxImageMB = 10

// allowedImageTypes are the sniffed types accepted for analysis.
var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// ImageDecoder validates uploaded images against a size limit.
type ImageDecoder struct {
	maxSize int64
}

// NewImageDecoder creates a decoder with a size limit in megabytes.
func NewImageDecoder(maxSizeMB int) *ImageDecoder {
	return &ImageDecoder{maxSize: int64(maxSizeMB) * 1024 * 1024}
}

// Decode accepts a data URL ("data:image/png;base64,...") or bare base64 and
// returns the image bytes with their sniffed content type.
func (d *ImageDecoder) Decode(ctx context.Context, encoded string) ([]byte, string, error) {
	_, span := tracer.Start(ctx, "content.decode_image")
	defer span.End()

	payload := strings.TrimSpace(encoded)
	if strings.HasPrefix(payload, "data:") {
		meta, data, ok := strings.Cut(payload, ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("%w: data URL is not base64", ErrInvalidImage)
		}
		payload = data
	}
	// base64 expands by 4/3; reject before allocating.
	if int64(len(payload))/4*3 > d.maxSize+3 {
		return nil, "", fmt.Errorf("%w: limit %d bytes", ErrImageTooLarge, d.maxSize)
	}

	img, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if img, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}
	ct, err := d.check(img)
	if err != nil {
		return nil, "", err
	}
	span.SetAttributes(attribute.Int("content.image_bytes", len(img)), attribute.String("content.image_type", ct))
	return img, ct, nil
}

// ReadFile loads an image from disk under the same limits.
func (d *ImageDecoder) ReadFile(ctx context.Context, path string) ([]byte, string, error) {
	_, span := tracer.Start(ctx, "content.read_image")
	defer span.End()

	info, err := os.Stat(path)
	if err != nil {
		return nil, "", fmt.Errorf("stat file %s: %w", path, err)
	}
	if info.Size() > d.maxSize {
		return nil, "", fmt.Errorf("%w: file size %d exceeds %d bytes", ErrImageTooLarge, info.Size(), d.maxSize)
	}
	img, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading file %s: %w", path, err)
	}
	ct, err := d.check(img)
	if err != nil {
		return nil, "", err
	}
	return img, ct, nil
}

func (d *ImageDecoder) check(img []byte) (string, error) {
	if len(img) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	if int64(len(img)) > d.maxSize {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrImageTooLarge, len(img), d.maxSize)
	}
	ct := http.DetectContentType(img)
	if !allowedImageTypes[ct] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, ct)
	}
	return ct, nil
}
