package analyzer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Aafreen2203/SafePostAI/internal/llm"
)

const facePrompt = `Count the human faces clearly visible in this image. Reply with JSON only: {"faces": <number>}`

// VisionFaceDetector counts faces by asking a vision-capable language model.
type VisionFaceDetector struct {
	provider llm.Provider
	model    string
}

// NewVisionFaceDetector creates a face detector backed by provider.
func NewVisionFaceDetector(provider llm.Provider, model string) *VisionFaceDetector {
	return &VisionFaceDetector{provider: provider, model: model}
}

// DetectFaces returns the face count reported by the model.
func (d *VisionFaceDetector) DetectFaces(ctx context.Context, image []byte) (int, error) {
	if d.provider == nil {
		return 0, ErrAnalyzerUnavailable
	}
	ctx, span := tracer.Start(ctx, "analyzer.faces")
	defer span.End()

	dataURL := "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
	resp, err := d.provider.Generate(ctx, &llm.Request{
		Model:       d.model,
		Temperature: 0,
		MaxTokens:   50,
		Messages:    []llm.Message{{Role: "user", Content: facePrompt, Images: []string{dataURL}}},
	})
	if err != nil {
		span.RecordError(err)
		return 0, failure("faces:"+d.provider.Name(), err)
	}

	obj, ok := ExtractJSONObject(resp.Content)
	if !ok {
		return 0, fmt.Errorf("%w: no JSON object in face count", ErrMalformedResponse)
	}
	var out struct {
		Faces *int `json:"faces"`
	}
	if err := json.Unmarshal(obj, &out); err != nil || out.Faces == nil || *out.Faces < 0 {
		return 0, fmt.Errorf("%w: bad face count %s", ErrMalformedResponse, string(obj))
	}
	return *out.Faces, nil
}

// FaceChain tries each detector in order and returns the first count that
// succeeds.
type FaceChain []FaceDetector

// FallbackFaces chains the non-nil detectors. It returns nil when there are
// none and the detector itself when there is only one.
func FallbackFaces(detectors ...FaceDetector) FaceDetector {
	var chain FaceChain
	for _, d := range detectors {
		if d != nil {
			chain = append(chain, d)
		}
	}
	switch len(chain) {
	case 0:
		return nil
	case 1:
		return chain[0]
	}
	return chain
}

// DetectFaces returns the first successful count, or every error joined.
func (c FaceChain) DetectFaces(ctx context.Context, image []byte) (int, error) {
	var errs []error
	for _, d := range c {
		n, err := d.DetectFaces(ctx, image)
		if err == nil {
			return n, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return 0, errors.Join(errs...)
}

var (
	_ FaceDetector = (*VisionFaceDetector)(nil)
	_ FaceDetector = FaceChain(nil)
)
