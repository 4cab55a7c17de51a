package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultSpaceURL is the OCR.space parse endpoint.
const DefaultSpaceURL = "https://api.ocr.space/parse/image"

// SpaceClient calls the OCR.space API. The key must come from the credential
// store; there is no built-in key.
type SpaceClient struct {
	apiKey     string
	url        string
	language   string
	httpClient *http.Client
}

// NewSpaceClient creates an OCR.space client. url may be empty.
func NewSpaceClient(apiKey, url string) (*SpaceClient, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if url == "" {
		url = DefaultSpaceURL
	}
	return &SpaceClient{
		apiKey:     apiKey,
		url:        url,
		language:   "eng",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type spaceResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

// ExtractText uploads the image as a base64 data URL. OCR.space reports no
// confidence, so a non-empty result scores 1.
func (s *SpaceClient) ExtractText(ctx context.Context, image []byte) (string, float64, error) {
	ctx, span := tracer.Start(ctx, "ocr.space.text")
	defer span.End()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"language":          s.language,
		"isOverlayRequired": "false",
		"OCREngine":         "2",
		"base64Image":       "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", 0, fmt.Errorf("building ocr.space form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", 0, fmt.Errorf("building ocr.space form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, &body)
	if err != nil {
		return "", 0, fmt.Errorf("creating ocr.space request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("apikey", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", 0, fmt.Errorf("ocr.space call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, fmt.Errorf("ocr.space status %d: %s", resp.StatusCode, string(b))
	}

	var out spaceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("decoding ocr.space response: %w", err)
	}
	if out.IsErroredOnProcessing {
		return "", 0, fmt.Errorf("ocr.space processing error: %s", spaceErrorText(out.ErrorMessage))
	}

	var parts []string
	for _, r := range out.ParsedResults {
		if t := strings.TrimSpace(r.ParsedText); t != "" {
			parts = append(parts, t)
		}
	}
	text := strings.Join(parts, "\n")
	span.SetAttributes(attribute.Int("ocr.text_length", len(text)))
	if text == "" {
		return "", 0, nil
	}
	return text, 1, nil
}

// spaceErrorText flattens ErrorMessage, which is a string or a list.
func spaceErrorText(raw json.RawMessage) string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
