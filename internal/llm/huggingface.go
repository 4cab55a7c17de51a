package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
)

// DefaultHuggingFaceBaseURL is the hosted inference API.
const DefaultHuggingFaceBaseURL = "https://api-inference.huggingface.co"

// HuggingFaceProvider implements Provider for text-generation models served
// by the HuggingFace inference API. Chat messages are flattened into one
// instruction prompt.
type HuggingFaceProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewHuggingFaceProvider creates a provider for the given base URL, or the
// hosted API when empty.
func NewHuggingFaceProvider(apiKey, baseURL string) *HuggingFaceProvider {
	if baseURL == "" {
		baseURL = DefaultHuggingFaceBaseURL
	}
	return &HuggingFaceProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Name returns the provider identifier.
func (p *HuggingFaceProvider) Name() string {
	return "huggingface"
}

type hfGenerateRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters"`
}

type hfGenerated struct {
	GeneratedText string `json:"generated_text"`
}

// Generate posts the flattened prompt to /models/{model}.
func (p *HuggingFaceProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(spotel.LLMRequestAttributes("huggingface", req.Model, req.Temperature, req.MaxTokens)...))
	defer span.End()

	if hasImages(req.Messages) {
		return nil, fmt.Errorf("huggingface: %w", ErrImagesUnsupported)
	}

	ctx, cancel := context.WithTimeout(ctx, TimeoutLLMCall)
	defer cancel()

	var prompt strings.Builder
	prompt.WriteString("<s>[INST] ")
	for i, msg := range req.Messages {
		if i > 0 {
			prompt.WriteString("\n\n")
		}
		prompt.WriteString(msg.Content)
	}
	prompt.WriteString(" [/INST]")

	params := map[string]any{"return_full_text": false}
	if req.MaxTokens > 0 {
		params["max_new_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		params["temperature"] = req.Temperature
	}

	var out []hfGenerated
	err := postJSON(ctx, p.httpClient, p.baseURL+"/models/"+req.Model, map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	}, hfGenerateRequest{Inputs: prompt.String(), Parameters: params}, &out)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("huggingface api call: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("huggingface api call: %w", ErrEmptyResponse)
	}

	return &Response{
		Content:      out[0].GeneratedText,
		FinishReason: "stop",
		Model:        req.Model,
	}, nil
}
