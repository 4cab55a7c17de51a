// Package hf is a client for the HuggingFace inference API covering the
// tasks SafePost uses: token classification (NER), text classification
// (toxicity, sentiment), zero-shot classification (policy), and object and
// face detection.
package hf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
)

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/hf")

// DefaultBaseURL is the hosted inference API.
const DefaultBaseURL = "https://api-inference.huggingface.co"

// Default models.
const (
	DefaultNERModel       = "dbmdz/bert-large-cased-finetuned-conll03-english"
	DefaultToxicityModel  = "unitary/toxic-bert"
	DefaultZeroShotModel  = "facebook/bart-large-mnli"
	DefaultObjectModel    = "facebook/detr-resnet-50"
	DefaultSentimentModel = "cardiffnlp/twitter-roberta-base-sentiment-latest"
	DefaultFaceModel      = "opencv/opencv-face-detection"
)

// ErrNoToken is returned when the client is built without an API token.
var ErrNoToken = errors.New("huggingface token not configured")

// StatusError reports a non-2xx answer from the inference API. A 503 usually
// means the model is still loading.
type StatusError struct {
	Model string
	Code  int
	Body  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("huggingface %s: status %d: %s", e.Model, e.Code, e.Body)
}

// Models selects the model per task.
type Models struct {
	NER       string
	Toxicity  string
	ZeroShot  string
	Objects   string
	Sentiment string
	Faces     string
}

func (m Models) withDefaults() Models {
	if m.NER == "" {
		m.NER = DefaultNERModel
	}
	if m.Toxicity == "" {
		m.Toxicity = DefaultToxicityModel
	}
	if m.ZeroShot == "" {
		m.ZeroShot = DefaultZeroShotModel
	}
	if m.Objects == "" {
		m.Objects = DefaultObjectModel
	}
	if m.Sentiment == "" {
		m.Sentiment = DefaultSentimentModel
	}
	if m.Faces == "" {
		m.Faces = DefaultFaceModel
	}
	return m
}

// Client calls the inference API.
type Client struct {
	token      string
	baseURL    string
	models     Models
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another host (self-hosted TGI, tests).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithModels overrides the per-task models; empty fields keep the defaults.
func WithModels(m Models) Option {
	return func(c *Client) { c.models = m.withDefaults() }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client. It fails with ErrNoToken when token is empty.
func NewClient(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	c := &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		models:     Models{}.withDefaults(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Models returns the models in use.
func (c *Client) Models() Models { return c.models }

func (c *Client) post(ctx context.Context, model, contentType string, body []byte, out any) error {
	ctx, span := tracer.Start(ctx, "hf.inference")
	defer span.End()
	span.SetAttributes(attribute.String("hf.model", model))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/models/"+model, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating huggingface request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("huggingface %s: %w", model, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Model: model, Code: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding huggingface %s response: %w", model, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, model string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshalling huggingface request: %w", err)
	}
	return c.post(ctx, model, "application/json", body, out)
}
