// Package ocr holds the image-understanding clients: Google Cloud Vision
// (text, objects, faces) and OCR.space (text only).
package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/Aafreen2203/SafePostAI/internal/analyzer"
	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
)

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/ocr")

// ErrNoAPIKey is returned when a client is built without a key.
var ErrNoAPIKey = errors.New("ocr api key not configured")

// VisionClient calls the Cloud Vision images:annotate endpoint.
type VisionClient struct {
	svc *vision.Service
}

// NewVisionClient creates a Vision client authenticated with an API key.
// Extra options (e.g. option.WithEndpoint in tests) are applied after it.
func NewVisionClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*VisionClient, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	svc, err := vision.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating vision service: %w", err)
	}
	return &VisionClient{svc: svc}, nil
}

func (v *VisionClient) annotate(ctx context.Context, image []byte, features ...string) (*vision.AnnotateImageResponse, error) {
	req := &vision.AnnotateImageRequest{
		Image: &vision.Image{Content: base64.StdEncoding.EncodeToString(image)},
	}
	for _, f := range features {
		req.Features = append(req.Features, &vision.Feature{Type: f, MaxResults: 20})
	}
	resp, err := v.svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{req},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("vision annotate: %w", err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("vision annotate: empty response")
	}
	r := resp.Responses[0]
	if r.Error != nil && r.Error.Code != 0 {
		return nil, fmt.Errorf("vision annotate: %d %s", r.Error.Code, r.Error.Message)
	}
	return r, nil
}

// ExtractText runs TEXT_DETECTION. Confidence is the mean page confidence,
// or 1 when Vision returns text without page details.
func (v *VisionClient) ExtractText(ctx context.Context, image []byte) (string, float64, error) {
	ctx, span := tracer.Start(ctx, "ocr.vision.text")
	defer span.End()

	r, err := v.annotate(ctx, image, "TEXT_DETECTION")
	if err != nil {
		span.RecordError(err)
		return "", 0, err
	}

	var text string
	confidence := 0.0
	switch {
	case r.FullTextAnnotation != nil:
		text = r.FullTextAnnotation.Text
		var sum float64
		for _, p := range r.FullTextAnnotation.Pages {
			sum += p.Confidence
		}
		if n := len(r.FullTextAnnotation.Pages); n > 0 && sum > 0 {
			confidence = sum / float64(n)
		}
	case len(r.TextAnnotations) > 0:
		text = r.TextAnnotations[0].Description
	}
	text = strings.TrimSpace(text)
	if text != "" && confidence == 0 {
		confidence = 1
	}
	span.SetAttributes(attribute.Int("ocr.text_length", len(text)))
	return text, confidence, nil
}

// DetectObjects merges localized objects and image labels.
func (v *VisionClient) DetectObjects(ctx context.Context, image []byte) ([]analyzer.Label, error) {
	ctx, span := tracer.Start(ctx, "ocr.vision.objects")
	defer span.End()

	r, err := v.annotate(ctx, image, "OBJECT_LOCALIZATION", "LABEL_DETECTION")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var out []analyzer.Label
	for _, o := range r.LocalizedObjectAnnotations {
		out = append(out, analyzer.Label{Label: strings.ToLower(o.Name), Score: o.Score})
	}
	for _, l := range r.LabelAnnotations {
		out = append(out, analyzer.Label{Label: strings.ToLower(l.Description), Score: l.Score})
	}
	span.SetAttributes(attribute.Int("ocr.objects", len(out)))
	return out, nil
}

// DetectFaces runs FACE_DETECTION and returns the face count.
func (v *VisionClient) DetectFaces(ctx context.Context, image []byte) (int, error) {
	ctx, span := tracer.Start(ctx, "ocr.vision.faces")
	defer span.End()

	r, err := v.annotate(ctx, image, "FACE_DETECTION")
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("ocr.faces", len(r.FaceAnnotations)))
	return len(r.FaceAnnotations), nil
}

var (
	_ analyzer.OCR            = (*VisionClient)(nil)
	_ analyzer.ObjectDetector = (*VisionClient)(nil)
	_ analyzer.FaceDetector   = (*VisionClient)(nil)
)
